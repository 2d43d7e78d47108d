// Package store persists raid room state.
//
// Rooms live in a fast shared cache (Redis) and, when a database is
// configured, in Postgres. LayeredStore combines the two the way the
// server reads and writes rooms: reads go through the cache and fall back
// to the database, writes land in the cache and are copied to the
// database on save.
package store

import (
	"context"
	"errors"

	"github.com/mitplan/raidsocket/src/room"
)

var (
	// ErrRoomNotFound is returned for an unknown room id.
	ErrRoomNotFound = errors.New("room not found")
	// ErrRoomExists is returned by Create when the id is taken.
	ErrRoomExists = errors.New("room already exists")
	// ErrConflict is returned when an update lost the optimistic-lock race
	// more times than the retry budget allows.
	ErrConflict = errors.New("room update conflict")
)

// UpdateFunc mutates a room state in place. Returning an error aborts the
// update and leaves the stored state untouched.
type UpdateFunc func(*room.State) error

// Store is a keyed room state repository. Update increments the state's
// Revision on every successful commit.
type Store interface {
	Create(ctx context.Context, id string, s *room.State) error
	Get(ctx context.Context, id string) (*room.State, error)
	Exists(ctx context.Context, id string) (bool, error)
	Put(ctx context.Context, id string, s *room.State) error
	Update(ctx context.Context, id string, fn UpdateFunc) (*room.State, error)
}
