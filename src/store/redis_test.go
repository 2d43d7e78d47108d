package store

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/mitplan/raidsocket/src/room"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRedisStore(t *testing.T) (*RedisStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewRedisStore(client, "test:"), mr
}

func TestRedisStoreCreateGet(t *testing.T) {
	ctx := context.Background()
	r, mr := newRedisStore(t)
	seeded(t, r, "alpha")

	assert.ErrorIs(t, r.Create(ctx, "alpha", room.NewState()), ErrRoomExists)
	assert.True(t, mr.Exists("test:room:alpha"))

	s, err := r.Get(ctx, "alpha")
	require.NoError(t, err)
	assert.Empty(t, s.Sheets)
	assert.Zero(t, s.Revision)

	_, err = r.Get(ctx, "missing")
	assert.ErrorIs(t, err, ErrRoomNotFound)

	ok, err := r.Exists(ctx, "missing")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRedisStoreUpdateBumpsRevision(t *testing.T) {
	ctx := context.Background()
	r, _ := newRedisStore(t)
	seeded(t, r, "alpha")

	for i := 1; i <= 3; i++ {
		s, err := r.Update(ctx, "alpha", func(s *room.State) error {
			return s.CreateEvent("p1", room.Event{Key: fmt.Sprintf("k%d", i)})
		})
		require.NoError(t, err)
		assert.EqualValues(t, i, s.Revision)
	}

	s, err := r.Get(ctx, "alpha")
	require.NoError(t, err)
	assert.EqualValues(t, 3, s.Revision)
	assert.Len(t, s.Sheets["p1"].Events, 3)

	_, err = r.Update(ctx, "missing", func(*room.State) error { return nil })
	assert.ErrorIs(t, err, ErrRoomNotFound)
}

func TestRedisStoreUpdateAbortLeavesState(t *testing.T) {
	ctx := context.Background()
	r, _ := newRedisStore(t)
	seeded(t, r, "alpha")

	_, err := r.Update(ctx, "alpha", func(s *room.State) error {
		_ = s.CreateSheet("p1")
		return room.ErrInvalidSheet
	})
	assert.ErrorIs(t, err, room.ErrInvalidSheet)

	s, err := r.Get(ctx, "alpha")
	require.NoError(t, err)
	assert.Empty(t, s.Sheets)
	assert.Zero(t, s.Revision)
}

func TestRedisStoreInterleavedUpdatesBothSurvive(t *testing.T) {
	ctx := context.Background()
	r, _ := newRedisStore(t)
	seeded(t, r, "alpha")

	// The outer update reads the room, then a second writer commits before
	// the outer one does. The outer transaction must fail and re-run.
	calls := 0
	_, err := r.Update(ctx, "alpha", func(s *room.State) error {
		calls++
		if calls == 1 {
			_, err := r.Update(ctx, "alpha", func(s *room.State) error {
				return s.CreateEvent("p1", room.Event{Key: "inner"})
			})
			require.NoError(t, err)
		}
		return s.CreateEvent("p1", room.Event{Key: "outer"})
	})
	require.NoError(t, err)
	assert.Equal(t, 2, calls)

	s, err := r.Get(ctx, "alpha")
	require.NoError(t, err)
	keys := []string{}
	for _, ev := range s.Sheets["p1"].Events {
		keys = append(keys, ev.Key)
	}
	assert.Equal(t, []string{"inner", "outer"}, keys)
	assert.EqualValues(t, 2, s.Revision)
}

func TestRedisStoreConflictAfterRetryBudget(t *testing.T) {
	ctx := context.Background()
	r, mr := newRedisStore(t)
	seeded(t, r, "alpha")

	other := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer other.Close()

	calls := 0
	_, err := r.Update(ctx, "alpha", func(s *room.State) error {
		calls++
		enc, err := room.NewState().Encode()
		require.NoError(t, err)
		require.NoError(t, other.Set(ctx, "test:room:alpha", enc, 0).Err())
		return s.CreateSheet("p1")
	})
	assert.ErrorIs(t, err, ErrConflict)
	assert.Equal(t, DefaultUpdateRetries, calls)

	s, err := r.Get(ctx, "alpha")
	require.NoError(t, err)
	assert.Empty(t, s.Sheets, "a lost update must not be written")
}

func TestRedisStoreConcurrentUpdatesAllSurvive(t *testing.T) {
	ctx := context.Background()
	r, _ := newRedisStore(t)
	r.retries = 100
	seeded(t, r, "alpha")

	const writers = 8
	var wg sync.WaitGroup
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := r.Update(ctx, "alpha", func(s *room.State) error {
				return s.CreateEvent("p1", room.Event{Key: fmt.Sprintf("ev-%d", i)})
			})
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	s, err := r.Get(ctx, "alpha")
	require.NoError(t, err)
	assert.Len(t, s.Sheets["p1"].Events, writers)
	assert.EqualValues(t, writers, s.Revision)
}

func TestLayeredStoreOverRedisRefillsFromDatabase(t *testing.T) {
	ctx := context.Background()
	r, mr := newRedisStore(t)
	durable := NewMemoryStore()
	l := NewLayeredStore(r, durable, zerolog.Nop())

	require.NoError(t, durable.Put(ctx, "cold", room.NewState()))
	s, err := l.Update(ctx, "cold", func(s *room.State) error { return s.CreateSheet("p1") })
	require.NoError(t, err)
	assert.Contains(t, s.Sheets, "p1")
	assert.True(t, mr.Exists("test:room:cold"))
}
