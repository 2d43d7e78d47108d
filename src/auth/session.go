package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/mitplan/raidsocket/src/types"
	"github.com/redis/go-redis/v9"
)

// RedisSessionStore looks up sessions stored as JSON identities under
// "<prefix>session:<token>".
type RedisSessionStore struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// NewRedisSessionStore creates a session store on an existing client.
func NewRedisSessionStore(client *redis.Client, prefix string, ttl time.Duration) *RedisSessionStore {
	return &RedisSessionStore{client: client, prefix: prefix, ttl: ttl}
}

func (s *RedisSessionStore) key(token string) string {
	return s.prefix + "session:" + token
}

// Lookup resolves a token. Each successful lookup slides the expiry; the
// read and the refresh are one GETEX command.
func (s *RedisSessionStore) Lookup(ctx context.Context, token string) (types.Identity, error) {
	var cmd *redis.StringCmd
	if s.ttl > 0 {
		cmd = s.client.GetEx(ctx, s.key(token), s.ttl)
	} else {
		cmd = s.client.Get(ctx, s.key(token))
	}
	data, err := cmd.Bytes()
	if errors.Is(err, redis.Nil) {
		return types.Identity{}, ErrInvalidToken
	}
	if err != nil {
		return types.Identity{}, fmt.Errorf("lookup session: %w", err)
	}
	var id types.Identity
	if err := json.Unmarshal(data, &id); err != nil {
		return types.Identity{}, fmt.Errorf("%w: corrupt session", ErrInvalidToken)
	}
	return id, nil
}

// Put stores a session for token.
func (s *RedisSessionStore) Put(ctx context.Context, token string, id types.Identity) error {
	data, err := json.Marshal(id)
	if err != nil {
		return err
	}
	return s.client.Set(ctx, s.key(token), data, s.ttl).Err()
}

// MemorySessionStore keeps sessions in process. Used in standalone mode and tests.
type MemorySessionStore struct {
	mu       sync.RWMutex
	sessions map[string]types.Identity
}

// NewMemorySessionStore creates an empty in-memory store.
func NewMemorySessionStore() *MemorySessionStore {
	return &MemorySessionStore{sessions: make(map[string]types.Identity)}
}

// Lookup resolves a token.
func (s *MemorySessionStore) Lookup(_ context.Context, token string) (types.Identity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.sessions[token]
	if !ok {
		return types.Identity{}, ErrInvalidToken
	}
	return id, nil
}

// Put stores a session for token.
func (s *MemorySessionStore) Put(_ context.Context, token string, id types.Identity) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[token] = id
	return nil
}
