package store

import (
	"context"
	"fmt"
	"sync"

	"github.com/mitplan/raidsocket/src/room"
)

// MemoryStore keeps rooms in process memory.
type MemoryStore struct {
	mu    sync.RWMutex
	rooms map[string]*room.State
}

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{rooms: make(map[string]*room.State)}
}

// Create stores a copy of s under id. It fails with ErrRoomExists when id
// is taken.
func (m *MemoryStore) Create(_ context.Context, id string, s *room.State) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.rooms[id]; ok {
		return fmt.Errorf("%w: %s", ErrRoomExists, id)
	}
	m.rooms[id] = s.Clone()
	return nil
}

// Get returns a copy of the room, or ErrRoomNotFound.
func (m *MemoryStore) Get(_ context.Context, id string) (*room.State, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.rooms[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrRoomNotFound, id)
	}
	return s.Clone(), nil
}

// Exists reports whether a room is stored under id.
func (m *MemoryStore) Exists(_ context.Context, id string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.rooms[id]
	return ok, nil
}

// Put stores a copy of s under id, replacing any previous state.
func (m *MemoryStore) Put(_ context.Context, id string, s *room.State) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rooms[id] = s.Clone()
	return nil
}

// Update runs fn on a copy of the room while holding the store lock and
// commits the copy with the next revision when fn succeeds.
func (m *MemoryStore) Update(_ context.Context, id string, fn UpdateFunc) (*room.State, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cur, ok := m.rooms[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrRoomNotFound, id)
	}
	next := cur.Clone()
	if err := fn(next); err != nil {
		return nil, err
	}
	next.Revision = cur.Revision + 1
	m.rooms[id] = next
	return next.Clone(), nil
}
