package types

import (
	"encoding/json"
	"time"
)

// Client to server message types.
const (
	TypeJoinRoom              = "joinRoom"
	TypeCreateEvent           = "createEvent"
	TypeUpdateEvent           = "updateEvent"
	TypeDeleteEvent           = "deleteEvent"
	TypeClearEvents           = "clearEvents"
	TypeUpdateSettings        = "updateSettings"
	TypeCreateSheet           = "createSheet"
	TypeDeleteSheet           = "deleteSheet"
	TypeRenameSheet           = "renameSheet"
	TypeUpdateEncounterEvents = "updateEncounterEvents"
)

// Server to client message types.
const (
	TypeInitialState = "initialState"
	TypeStateUpdate  = "stateUpdate"
	TypeError        = "error"
)

// Message is a WebSocket frame exchanged with a room participant.
type Message struct {
	Type      string          `json:"type"`
	Room      string          `json:"room,omitempty"`
	SheetID   string          `json:"sheetId,omitempty"`
	Data      json.RawMessage `json:"data,omitempty"`
	ClientID  string          `json:"client_id,omitempty"`
	// Revision orders stateUpdate frames of one room. Zero on other frames.
	Revision  int64           `json:"revision,omitempty"`
	Timestamp time.Time       `json:"timestamp"`
}

// ErrorData is the payload of an error frame.
type ErrorData struct {
	Message string `json:"message"`
}

// Identity is the caller resolved by the authentication middleware.
type Identity struct {
	UserID    string `json:"user_id"`
	Name      string `json:"name"`
	Anonymous bool   `json:"anonymous"`
}

// AnonymousIdentity is attached to connections that present no credentials.
var AnonymousIdentity = Identity{Name: "anonymous", Anonymous: true}

// ClientInfo holds metadata about a connected WebSocket client.
type ClientInfo struct {
	ID          string    `json:"id"`
	Room        string    `json:"room"`
	UserID      string    `json:"user_id,omitempty"`
	ConnectedAt time.Time `json:"connected_at"`
}

// Conn abstracts a WebSocket connection for testability.
type Conn interface {
	WriteJSON(v any) error
	// ReadMessage returns the next data frame. An error means the
	// transport is gone.
	ReadMessage() ([]byte, error)
	Ping() error
	Close() error
}
