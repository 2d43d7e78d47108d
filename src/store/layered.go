package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/mitplan/raidsocket/src/room"
	"github.com/rs/zerolog"
)

// LayeredStore fronts an optional durable store with a cache. Either layer
// may be missing: without a database the cache is the only copy, without a
// cache every operation goes straight to the database.
type LayeredStore struct {
	cache   Store // nil when rooms are served from the database directly
	durable Store // nil when no database is configured
	logger  zerolog.Logger
}

// NewLayeredStore creates a layered store. cache or durable may be nil, not
// both.
func NewLayeredStore(cache, durable Store, logger zerolog.Logger) *LayeredStore {
	if cache == nil && durable == nil {
		panic("store: layered store needs a cache or a durable store")
	}
	return &LayeredStore{
		cache:   cache,
		durable: durable,
		logger:  logger.With().Str("component", "room-store").Logger(),
	}
}

// Create stores a new room in the cache and the database.
func (l *LayeredStore) Create(ctx context.Context, id string, s *room.State) error {
	if l.cache == nil {
		return l.durable.Create(ctx, id, s)
	}
	if err := l.cache.Create(ctx, id, s); err != nil {
		return err
	}
	if l.durable != nil {
		if err := l.durable.Create(ctx, id, s); err != nil {
			return fmt.Errorf("persist new room: %w", err)
		}
	}
	return nil
}

// Get reads through the cache, repopulating it from the database on a miss.
func (l *LayeredStore) Get(ctx context.Context, id string) (*room.State, error) {
	if l.cache == nil {
		return l.durable.Get(ctx, id)
	}
	s, err := l.cache.Get(ctx, id)
	if err == nil || !errors.Is(err, ErrRoomNotFound) || l.durable == nil {
		return s, err
	}

	s, err = l.durable.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := l.cache.Put(ctx, id, s); err != nil {
		l.logger.Warn().Err(err).Str("room", id).Msg("cache refill failed")
	}
	l.logger.Debug().Str("room", id).Msg("room loaded from database")
	return s, nil
}

// Exists checks the cache, then the database.
func (l *LayeredStore) Exists(ctx context.Context, id string) (bool, error) {
	if l.cache == nil {
		return l.durable.Exists(ctx, id)
	}
	ok, err := l.cache.Exists(ctx, id)
	if err != nil || ok || l.durable == nil {
		return ok, err
	}
	return l.durable.Exists(ctx, id)
}

// Put overwrites the room in both layers.
func (l *LayeredStore) Put(ctx context.Context, id string, s *room.State) error {
	if l.cache != nil {
		if err := l.cache.Put(ctx, id, s); err != nil {
			return err
		}
	}
	if l.durable != nil {
		return l.durable.Put(ctx, id, s)
	}
	return nil
}

// Update mutates the cached copy. Rooms only present in the database are
// loaded into the cache first. Without a cache the database row is updated
// under a row lock.
func (l *LayeredStore) Update(ctx context.Context, id string, fn UpdateFunc) (*room.State, error) {
	if l.cache == nil {
		return l.durable.Update(ctx, id, fn)
	}
	s, err := l.cache.Update(ctx, id, fn)
	if err == nil || !errors.Is(err, ErrRoomNotFound) || l.durable == nil {
		return s, err
	}
	if _, err := l.Get(ctx, id); err != nil {
		return nil, err
	}
	return l.cache.Update(ctx, id, fn)
}

// Save copies the cached state of a room to the database. Without a cache
// the database already holds the latest state and Save only checks that the
// room exists.
func (l *LayeredStore) Save(ctx context.Context, id string) error {
	if l.cache == nil {
		ok, err := l.durable.Exists(ctx, id)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("%w: %s", ErrRoomNotFound, id)
		}
		return nil
	}
	s, err := l.cache.Get(ctx, id)
	if err != nil {
		return err
	}
	if l.durable == nil {
		return nil
	}
	return l.durable.Put(ctx, id, s)
}
