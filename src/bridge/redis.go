package bridge

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/google/uuid"
	"github.com/mitplan/raidsocket/src/types"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// redisEnvelope wraps a message with the originating instance ID
// so that a node can skip its own published messages.
type redisEnvelope struct {
	InstanceID string        `json:"instance_id"`
	Message    types.Message `json:"message"`
}

// RedisBridge relays room broadcasts between server instances via Redis pub/sub.
type RedisBridge struct {
	client     *redis.Client
	channel    string
	instanceID string
	hub        BroadcastTarget
	logger     zerolog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	mu     sync.RWMutex
	active bool
}

// NewRedisBridge creates a bridge on a shared client. The client is owned by
// the caller and is not closed by Stop.
func NewRedisBridge(client *redis.Client, prefix string, hub BroadcastTarget, logger zerolog.Logger) *RedisBridge {
	ctx, cancel := context.WithCancel(context.Background())

	return &RedisBridge{
		client:     client,
		channel:    prefix + "broadcast",
		instanceID: uuid.New().String(),
		hub:        hub,
		logger:     logger.With().Str("component", "redis-bridge").Logger(),
		ctx:        ctx,
		cancel:     cancel,
	}
}

// InstanceID identifies this server in published envelopes.
func (b *RedisBridge) InstanceID() string { return b.instanceID }

// Start subscribes to the Redis broadcast channel and begins relaying messages.
func (b *RedisBridge) Start() error {
	if err := b.client.Ping(b.ctx).Err(); err != nil {
		return err
	}

	sub := b.client.Subscribe(b.ctx, b.channel)

	// Wait for subscription confirmation.
	if _, err := sub.Receive(b.ctx); err != nil {
		sub.Close()
		return err
	}

	b.mu.Lock()
	b.active = true
	b.mu.Unlock()

	b.wg.Add(1)
	go b.listen(sub)

	b.logger.Info().
		Str("instance_id", b.instanceID).
		Str("channel", b.channel).
		Msg("redis bridge started")
	return nil
}

// Publish sends a message to all other instances via Redis.
func (b *RedisBridge) Publish(msg types.Message) error {
	data, err := b.encode(msg)
	if err != nil {
		return err
	}
	return b.client.Publish(b.ctx, b.channel, data).Err()
}

func (b *RedisBridge) encode(msg types.Message) ([]byte, error) {
	return json.Marshal(redisEnvelope{InstanceID: b.instanceID, Message: msg})
}

// Stop unsubscribes and waits for the listener to exit.
func (b *RedisBridge) Stop() error {
	b.mu.Lock()
	b.active = false
	b.mu.Unlock()

	b.cancel()
	b.wg.Wait()
	return nil
}

// Available reports whether the bridge is connected.
func (b *RedisBridge) Available() bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.active
}

// listen reads messages from the Redis subscription and forwards to the local hub.
func (b *RedisBridge) listen(sub *redis.PubSub) {
	defer b.wg.Done()
	defer sub.Close()

	ch := sub.Channel()
	for {
		select {
		case msg, ok := <-ch:
			if !ok {
				return
			}
			b.handlePayload(msg.Payload)
		case <-b.ctx.Done():
			return
		}
	}
}

// handlePayload decodes an envelope and forwards non-self messages to the hub.
func (b *RedisBridge) handlePayload(payload string) {
	var env redisEnvelope
	if err := json.Unmarshal([]byte(payload), &env); err != nil {
		b.logger.Error().Err(err).Msg("failed to decode redis message")
		return
	}

	// Skip messages that originated from this instance.
	if env.InstanceID == b.instanceID {
		return
	}
	if env.Message.Room == "" {
		b.logger.Warn().Str("from_instance", env.InstanceID).Msg("dropping relayed message without room")
		return
	}

	b.logger.Debug().
		Str("from_instance", env.InstanceID).
		Str("room", env.Message.Room).
		Str("type", env.Message.Type).
		Msg("relaying message from redis")

	b.hub.BroadcastToLocal(env.Message)
}
