package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/mitplan/raidsocket/src/room"
	"github.com/redis/go-redis/v9"
)

// DefaultUpdateRetries bounds optimistic-lock retries in RedisStore.Update.
const DefaultUpdateRetries = 8

// RedisStore keeps each room as a JSON document under "<prefix>room:<id>".
type RedisStore struct {
	client  *redis.Client
	prefix  string
	retries int
}

// NewRedisStore creates a store on an existing client.
func NewRedisStore(client *redis.Client, prefix string) *RedisStore {
	return &RedisStore{client: client, prefix: prefix, retries: DefaultUpdateRetries}
}

func (r *RedisStore) key(id string) string {
	return r.prefix + "room:" + id
}

// Create writes the room only if the key is free (SETNX).
func (r *RedisStore) Create(ctx context.Context, id string, s *room.State) error {
	data, err := s.Encode()
	if err != nil {
		return err
	}
	ok, err := r.client.SetNX(ctx, r.key(id), data, 0).Result()
	if err != nil {
		return fmt.Errorf("create room %s: %w", id, err)
	}
	if !ok {
		return fmt.Errorf("%w: %s", ErrRoomExists, id)
	}
	return nil
}

// Get reads and decodes the room. A missing key is ErrRoomNotFound.
func (r *RedisStore) Get(ctx context.Context, id string) (*room.State, error) {
	data, err := r.client.Get(ctx, r.key(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("%w: %s", ErrRoomNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("get room %s: %w", id, err)
	}
	return room.Decode(data)
}

// Exists reports whether the room key is present.
func (r *RedisStore) Exists(ctx context.Context, id string) (bool, error) {
	n, err := r.client.Exists(ctx, r.key(id)).Result()
	if err != nil {
		return false, fmt.Errorf("exists room %s: %w", id, err)
	}
	return n > 0, nil
}

// Put overwrites the room document without expiry.
func (r *RedisStore) Put(ctx context.Context, id string, s *room.State) error {
	data, err := s.Encode()
	if err != nil {
		return err
	}
	if err := r.client.Set(ctx, r.key(id), data, 0).Err(); err != nil {
		return fmt.Errorf("put room %s: %w", id, err)
	}
	return nil
}

// Update applies fn inside a WATCH/MULTI transaction and bumps the revision. A concurrent write to
// the same room between read and commit aborts the transaction and fn is
// re-run against the fresh state, at most retries times before ErrConflict.
func (r *RedisStore) Update(ctx context.Context, id string, fn UpdateFunc) (*room.State, error) {
	key := r.key(id)
	var out *room.State

	txf := func(tx *redis.Tx) error {
		data, err := tx.Get(ctx, key).Bytes()
		if errors.Is(err, redis.Nil) {
			return fmt.Errorf("%w: %s", ErrRoomNotFound, id)
		}
		if err != nil {
			return err
		}
		s, err := room.Decode(data)
		if err != nil {
			return err
		}
		rev := s.Revision
		if err := fn(s); err != nil {
			return err
		}
		s.Revision = rev + 1
		enc, err := s.Encode()
		if err != nil {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, enc, 0)
			return nil
		})
		if err != nil {
			return err
		}
		out = s
		return nil
	}

	for i := 0; i < r.retries; i++ {
		err := r.client.Watch(ctx, txf, key)
		if err == nil {
			return out, nil
		}
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		return nil, err
	}
	return nil, fmt.Errorf("%w: %s", ErrConflict, id)
}
