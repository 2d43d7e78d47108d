// Package consumer implements the per-connection handler of a raid room.
//
// A RaidConsumer is built for every accepted websocket connection once the
// router has matched the room path and the auth middleware has attached an
// identity. It joins the room group, sends the current room state, applies
// the client's mutations and broadcasts the resulting state to every member
// of the room on every server instance.
package consumer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/mitplan/raidsocket/src/hub"
	"github.com/mitplan/raidsocket/src/room"
	"github.com/mitplan/raidsocket/src/store"
	"github.com/mitplan/raidsocket/src/types"
	"github.com/rs/zerolog"
)

// Saver copies a room's working state to durable storage.
type Saver interface {
	Save(ctx context.Context, id string) error
}

// Options tunes a Factory.
type Options struct {
	// Timeout bounds each store operation.
	Timeout time.Duration
	// PingInterval is the heartbeat period of the write pump.
	PingInterval time.Duration
}

// Factory builds consumers that share a hub, a store and the per-room locks.
type Factory struct {
	hub    *hub.Hub
	store  store.Store
	saver  Saver
	locks  *roomLocks
	opts   Options
	logger zerolog.Logger
}

// NewFactory creates a consumer factory. When st also implements Saver,
// write-through commands are persisted immediately.
func NewFactory(h *hub.Hub, st store.Store, opts Options, logger zerolog.Logger) *Factory {
	if opts.Timeout <= 0 {
		opts.Timeout = 5 * time.Second
	}
	f := &Factory{
		hub:    h,
		store:  st,
		locks:  newRoomLocks(),
		opts:   opts,
		logger: logger.With().Str("component", "consumer").Logger(),
	}
	if s, ok := st.(Saver); ok {
		f.saver = s
	}
	h.OnConnection(f.joined)
	h.OnDisconnection(f.left)
	return f
}

func (f *Factory) joined(c *hub.Client) {
	f.logger.Info().
		Str("room", c.Room).
		Str("client_id", c.ID).
		Str("user_id", c.Identity.UserID).
		Msg("client joined room")
}

func (f *Factory) left(c *hub.Client) {
	f.logger.Info().
		Str("room", c.Room).
		Str("client_id", c.ID).
		Str("user_id", c.Identity.UserID).
		Dur("connected_for", time.Since(c.Info().ConnectedAt)).
		Msg("client left room")
}

// New builds the consumer for one connection.
func (f *Factory) New(client *hub.Client) *RaidConsumer {
	return &RaidConsumer{
		client: client,
		f:      f,
		logger: f.logger.With().
			Str("room", client.Room).
			Str("client_id", client.ID).
			Str("user_id", client.Identity.UserID).
			Logger(),
	}
}

// RaidConsumer handles one connection to one room.
type RaidConsumer struct {
	client *hub.Client
	f      *Factory
	logger zerolog.Logger
}

// Run services the connection until it closes.
func (c *RaidConsumer) Run() {
	c.Connect()
	go c.client.WritePump(c.f.opts.PingInterval)
	c.client.ReadPump(c.Receive, c.Reject)
	c.logger.Debug().Msg("consumer finished")
}

// Connect joins the room group and sends the current state.
func (c *RaidConsumer) Connect() {
	c.f.hub.Register(c.client)
	c.sendState()
}

func (c *RaidConsumer) sendState() {
	ctx, cancel := context.WithTimeout(context.Background(), c.f.opts.Timeout)
	defer cancel()

	s, err := c.f.store.Get(ctx, c.client.Room)
	if err != nil {
		c.sendError(err)
		return
	}
	data, err := s.Encode()
	if err != nil {
		c.sendError(err)
		return
	}
	c.send(types.Message{Type: types.TypeInitialState, Room: c.client.Room, Data: data, Revision: s.Revision})
}

// Receive applies one client frame.
func (c *RaidConsumer) Receive(msg types.Message) {
	if msg.Type == types.TypeJoinRoom {
		c.sendState()
		return
	}

	cmd := room.CommandFromMessage(msg)
	logger := c.logger.With().Str("type", cmd.Type).Str("sheet_id", cmd.SheetID).Logger()

	ctx, cancel := context.WithTimeout(context.Background(), c.f.opts.Timeout)
	defer cancel()

	// Held until the update is queued on the hub: broadcasts of one room
	// leave in commit order.
	unlock := c.f.locks.lock(c.client.Room)
	defer unlock()

	s, err := c.f.store.Update(ctx, c.client.Room, func(s *room.State) error {
		return room.Apply(s, cmd)
	})
	if err != nil {
		logger.Debug().Err(err).Msg("command rejected")
		c.sendError(err)
		return
	}
	if c.f.saver != nil && room.Persistent(cmd.Type) {
		if serr := c.f.saver.Save(ctx, c.client.Room); serr != nil {
			logger.Error().Err(serr).Msg("write-through save failed")
		}
	}

	data, err := json.Marshal(stateUpdate{Sheets: s.Sheets, Revision: s.Revision})
	if err != nil {
		c.sendError(err)
		return
	}
	c.f.hub.Publish(types.Message{
		Type:      types.TypeStateUpdate,
		Room:      c.client.Room,
		Data:      data,
		ClientID:  c.client.ID,
		Revision:  s.Revision,
		Timestamp: time.Now(),
	})
	logger.Debug().Int64("revision", s.Revision).Msg("state updated")
}

// Reject answers a frame that could not be decoded. Only the sender hears
// about it.
func (c *RaidConsumer) Reject(err error) {
	c.logger.Debug().Err(err).Msg("undecodable frame")
	c.sendError(fmt.Errorf("%w: %v", room.ErrBadPayload, err))
}

type stateUpdate struct {
	Sheets   map[string]*room.Sheet `json:"sheets"`
	Revision int64                  `json:"revision"`
}

func (c *RaidConsumer) send(msg types.Message) {
	msg.Timestamp = time.Now()
	if !c.client.Enqueue(msg) {
		c.logger.Warn().Str("type", msg.Type).Msg("send buffer full, dropping")
	}
}

func (c *RaidConsumer) sendError(err error) {
	data, _ := json.Marshal(types.ErrorData{Message: clientMessage(err)})
	c.send(types.Message{Type: types.TypeError, Room: c.client.Room, Data: data})
}

var clientErrors = []error{
	room.ErrSheetNotFound,
	room.ErrSheetExists,
	room.ErrEventNotFound,
	room.ErrDuplicateEvent,
	room.ErrInvalidEvent,
	room.ErrInvalidSheet,
	room.ErrUnknownCommand,
	room.ErrBadPayload,
	store.ErrConflict,
}

// clientMessage hides infrastructure failures from clients.
func clientMessage(err error) string {
	if errors.Is(err, store.ErrRoomNotFound) {
		return "Room not found"
	}
	for _, target := range clientErrors {
		if errors.Is(err, target) {
			return err.Error()
		}
	}
	return "internal error"
}
