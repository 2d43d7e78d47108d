package bridge

import (
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/mitplan/raidsocket/src/types"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// mockBroadcastTarget records messages forwarded from the bridge. The
// bridge listener calls it from its own goroutine.
type mockBroadcastTarget struct {
	mu       sync.Mutex
	received []types.Message
}

func (m *mockBroadcastTarget) BroadcastToLocal(msg types.Message) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.received = append(m.received, msg)
}

func (m *mockBroadcastTarget) messages() []types.Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]types.Message(nil), m.received...)
}

func newTestBridge(target BroadcastTarget) *RedisBridge {
	// The client connects lazily; no Redis server is needed until Start.
	client := redis.NewClient(&redis.Options{Addr: "localhost:6379"})
	return NewRedisBridge(client, "test:", target, zerolog.Nop())
}

func TestRedisEnvelopeRoundTrip(t *testing.T) {
	b := newTestBridge(&mockBroadcastTarget{})
	msg := types.Message{
		Type:      types.TypeStateUpdate,
		Room:      "fierce_jolly_murloc",
		Data:      json.RawMessage(`{"sheets":{}}`),
		ClientID:  "client-1",
		Timestamp: time.Now().Truncate(time.Millisecond),
	}

	data, err := b.encode(msg)
	require.NoError(t, err)

	var out redisEnvelope
	require.NoError(t, json.Unmarshal(data, &out))

	assert.Equal(t, b.InstanceID(), out.InstanceID)
	assert.Equal(t, msg.Room, out.Message.Room)
	assert.Equal(t, msg.Type, out.Message.Type)
	assert.JSONEq(t, `{"sheets":{}}`, string(out.Message.Data))
	assert.True(t, msg.Timestamp.Equal(out.Message.Timestamp))
}

func TestHandlePayloadRelaysOtherInstances(t *testing.T) {
	target := &mockBroadcastTarget{}
	b := newTestBridge(target)

	remote := newTestBridge(&mockBroadcastTarget{})
	data, err := remote.encode(types.Message{Type: types.TypeStateUpdate, Room: "alpha"})
	require.NoError(t, err)

	b.handlePayload(string(data))
	got := target.messages()
	require.Len(t, got, 1)
	assert.Equal(t, "alpha", got[0].Room)
}

func TestHandlePayloadSkipsSelfAndGarbage(t *testing.T) {
	target := &mockBroadcastTarget{}
	b := newTestBridge(target)

	own, err := b.encode(types.Message{Type: types.TypeStateUpdate, Room: "alpha"})
	require.NoError(t, err)
	b.handlePayload(string(own))
	b.handlePayload("not json")

	remote := newTestBridge(&mockBroadcastTarget{})
	roomless, err := remote.encode(types.Message{Type: types.TypeStateUpdate})
	require.NoError(t, err)
	b.handlePayload(string(roomless))

	assert.Empty(t, target.messages())
}

func TestRedisBridgeAvailableFalseBeforeStart(t *testing.T) {
	rb := newTestBridge(&mockBroadcastTarget{})
	assert.False(t, rb.Available())
	require.NoError(t, rb.Stop())
	assert.False(t, rb.Available())
}

func TestRedisBridgeInstanceIDUnique(t *testing.T) {
	b1 := newTestBridge(&mockBroadcastTarget{})
	b2 := newTestBridge(&mockBroadcastTarget{})
	assert.NotEqual(t, b1.InstanceID(), b2.InstanceID())
}

func TestRedisBridgeChannelUsesPrefix(t *testing.T) {
	b := newTestBridge(&mockBroadcastTarget{})
	assert.Equal(t, "test:broadcast", b.channel)
}

// startBridge runs a bridge against mr and stops it with the test.
func startBridge(t *testing.T, mr *miniredis.Miniredis, target BroadcastTarget) *RedisBridge {
	t.Helper()
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	b := NewRedisBridge(client, "test:", target, zerolog.Nop())
	require.NoError(t, b.Start())
	t.Cleanup(func() { _ = b.Stop() })
	return b
}

func TestRedisBridgeRelaysBetweenInstances(t *testing.T) {
	mr := miniredis.RunT(t)
	targetA, targetB := &mockBroadcastTarget{}, &mockBroadcastTarget{}
	a := startBridge(t, mr, targetA)
	b := startBridge(t, mr, targetB)
	require.True(t, a.Available())

	msg := types.Message{
		Type:     types.TypeStateUpdate,
		Room:     "alpha",
		Data:     json.RawMessage(`{"sheets":{},"revision":4}`),
		Revision: 4,
	}
	require.NoError(t, a.Publish(msg))
	require.Eventually(t, func() bool { return len(targetB.messages()) == 1 }, time.Second, 5*time.Millisecond)

	got := targetB.messages()[0]
	assert.Equal(t, "alpha", got.Room)
	assert.EqualValues(t, 4, got.Revision)
	assert.JSONEq(t, string(msg.Data), string(got.Data))

	require.NoError(t, b.Publish(types.Message{Type: types.TypeStateUpdate, Room: "beta"}))
	require.Eventually(t, func() bool { return len(targetA.messages()) == 1 }, time.Second, 5*time.Millisecond)

	time.Sleep(20 * time.Millisecond)
	assert.Len(t, targetA.messages(), 1, "a bridge never relays its own publish")
	assert.Len(t, targetB.messages(), 1, "a bridge never relays its own publish")
}

func TestRedisBridgeStopEndsRelay(t *testing.T) {
	mr := miniredis.RunT(t)
	target := &mockBroadcastTarget{}
	a := startBridge(t, mr, &mockBroadcastTarget{})
	b := startBridge(t, mr, target)

	require.NoError(t, b.Stop())
	assert.False(t, b.Available())

	require.NoError(t, a.Publish(types.Message{Type: types.TypeStateUpdate, Room: "alpha"}))
	time.Sleep(20 * time.Millisecond)
	assert.Empty(t, target.messages())
}

func TestRedisBridgeStartFailsWithoutServer(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	defer client.Close()
	mr.Close()

	b := NewRedisBridge(client, "test:", &mockBroadcastTarget{}, zerolog.Nop())
	assert.Error(t, b.Start())
	assert.False(t, b.Available())
}
