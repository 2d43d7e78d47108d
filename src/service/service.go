package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/mitplan/raidsocket/src/hub"
	"github.com/mitplan/raidsocket/src/naming"
	"github.com/mitplan/raidsocket/src/room"
	"github.com/mitplan/raidsocket/src/store"
	"github.com/mitplan/raidsocket/src/types"
	"github.com/rs/zerolog"
)

// ErrRoomNotFound is returned when a room id is unknown.
var ErrRoomNotFound = store.ErrRoomNotFound

// Saver copies a room's working state to durable storage.
type Saver interface {
	Save(ctx context.Context, id string) error
}

// Stats summarises the realtime side of this instance.
type Stats struct {
	Clients int            `json:"clients"`
	Rooms   map[string]int `json:"rooms"`
}

// Service provides the high-level room API used by the HTTP routes.
type Service struct {
	hub    *hub.Hub
	store  store.Store
	logger zerolog.Logger
}

// New creates a room service backed by the given hub and store.
func New(h *hub.Hub, st store.Store, logger zerolog.Logger) *Service {
	return &Service{hub: h, store: st, logger: logger.With().Str("component", "room-service").Logger()}
}

// Hub returns the underlying hub.
func (s *Service) Hub() *hub.Hub { return s.hub }

// CreateRoom allocates an unused room name and stores an empty state.
func (s *Service) CreateRoom(ctx context.Context) (string, error) {
	for {
		id, err := naming.Unique(ctx, s.store.Exists)
		if err != nil {
			return "", err
		}
		err = s.store.Create(ctx, id, room.NewState())
		if errors.Is(err, store.ErrRoomExists) {
			// Lost a race with another instance; pick again.
			continue
		}
		if err != nil {
			return "", fmt.Errorf("create room: %w", err)
		}
		s.logger.Info().Str("room", id).Msg("room created")
		return id, nil
	}
}

// GetRoom returns the current state of a room.
func (s *Service) GetRoom(ctx context.Context, id string) (*room.State, error) {
	return s.store.Get(ctx, id)
}

// SaveRoom persists the working state of a room. Stores without a durable
// layer only verify that the room exists.
func (s *Service) SaveRoom(ctx context.Context, id string) error {
	if saver, ok := s.store.(Saver); ok {
		if err := saver.Save(ctx, id); err != nil {
			return err
		}
	} else if _, err := s.store.Get(ctx, id); err != nil {
		return err
	}
	s.logger.Info().Str("room", id).Msg("room saved")
	return nil
}

// Publish sends a server-originated message to every member of a room.
func (s *Service) Publish(roomID, msgType string, data any) error {
	raw, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("encode %s payload: %w", msgType, err)
	}
	s.hub.Publish(types.Message{
		Type:      msgType,
		Room:      roomID,
		Data:      raw,
		Timestamp: time.Now(),
	})
	return nil
}

// Members returns the identities connected to a room on this instance.
func (s *Service) Members(roomID string) []types.Identity {
	return s.hub.RoomMembers(roomID)
}

// GetConnectedClients returns IDs of all connected clients.
func (s *Service) GetConnectedClients() []string {
	return s.hub.ConnectedClients()
}

// GetClientInfo returns info for a connected client, or error.
func (s *Service) GetClientInfo(clientID string) (*types.ClientInfo, error) {
	info := s.hub.ClientInfo(clientID)
	if info == nil {
		return nil, fmt.Errorf("client %s not found", clientID)
	}
	return info, nil
}

// Stats returns client and room counts.
func (s *Service) Stats() Stats {
	return Stats{Clients: s.hub.ClientCount(), Rooms: s.hub.Rooms()}
}

// Resync pushes the stored state of a room to every member, on every
// instance. Used after the state was changed outside the websocket flow.
func (s *Service) Resync(ctx context.Context, id string) error {
	st, err := s.store.Get(ctx, id)
	if err != nil {
		return err
	}
	raw, err := st.Encode()
	if err != nil {
		return err
	}
	s.hub.Publish(types.Message{
		Type:      types.TypeStateUpdate,
		Room:      id,
		Data:      raw,
		Revision:  st.Revision,
		Timestamp: time.Now(),
	})
	return nil
}
