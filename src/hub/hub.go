package hub

import (
	"sync"

	"github.com/mitplan/raidsocket/src/types"
	"github.com/rs/zerolog"
)

// MessageBridge publishes messages to other server instances.
// Defined here to avoid circular imports with the bridge package.
type MessageBridge interface {
	Publish(msg types.Message) error
	Available() bool
}

// Hub manages all WebSocket clients and the room groups they belong to.
type Hub struct {
	clients map[string]*Client
	rooms   map[string]map[string]bool // room -> set of clientIDs

	// revisions holds the newest stateUpdate revision delivered per room.
	// Only the Run loop touches it.
	revisions map[string]int64

	register   chan *Client
	unregister chan *Client
	broadcast  chan types.Message
	localCast  chan types.Message // messages from bridge, no re-publish

	onConnect []func(*Client)
	onDisconn []func(*Client)

	bridge MessageBridge
	mu     sync.RWMutex
	logger zerolog.Logger
	done   chan struct{}
	stop   sync.Once
}

// New creates a new Hub instance.
func New(logger zerolog.Logger) *Hub {
	return &Hub{
		clients:    make(map[string]*Client),
		rooms:      make(map[string]map[string]bool),
		revisions:  make(map[string]int64),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		broadcast:  make(chan types.Message, 256),
		localCast:  make(chan types.Message, 256),
		logger:     logger.With().Str("component", "hub").Logger(),
		done:       make(chan struct{}),
	}
}

// SetBridge attaches a cross-instance message bridge to the hub.
// When set, published messages are also forwarded to other instances.
func (h *Hub) SetBridge(b MessageBridge) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.bridge = b
}

// BroadcastToLocal delivers a message from the bridge to local room members only.
// It does not re-publish to Redis, preventing infinite loops.
func (h *Hub) BroadcastToLocal(msg types.Message) {
	select {
	case h.localCast <- msg:
	case <-h.done:
	}
}

// Run starts the hub event loop. Call in a goroutine.
func (h *Hub) Run() {
	for {
		select {
		case client := <-h.register:
			h.addClient(client)
		case client := <-h.unregister:
			h.removeClient(client)
		case msg := <-h.broadcast:
			h.publishToBridge(msg)
			h.broadcastToRoom(msg.Room, msg)
		case msg := <-h.localCast:
			h.broadcastToRoom(msg.Room, msg)
		case <-h.done:
			return
		}
	}
}

// Stop halts the hub event loop and closes every client.
func (h *Hub) Stop() {
	h.stop.Do(func() {
		close(h.done)
		h.mu.Lock()
		defer h.mu.Unlock()
		for _, c := range h.clients {
			c.Close()
		}
	})
}

// Register queues a client for registration in its room.
func (h *Hub) Register(c *Client) {
	select {
	case h.register <- c:
	case <-h.done:
		c.Close()
	}
}

// Unregister queues a client for removal.
func (h *Hub) Unregister(c *Client) {
	select {
	case h.unregister <- c:
	case <-h.done:
	}
}

func (h *Hub) addClient(c *Client) {
	h.mu.Lock()
	h.clients[c.ID] = c
	if h.rooms[c.Room] == nil {
		h.rooms[c.Room] = make(map[string]bool)
	}
	h.rooms[c.Room][c.ID] = true
	callbacks := append([]func(*Client){}, h.onConnect...)
	h.mu.Unlock()

	h.logger.Info().Str("client_id", c.ID).Str("room", c.Room).Msg("client registered")

	for _, cb := range callbacks {
		cb(c)
	}
}

func (h *Hub) removeClient(c *Client) {
	h.mu.Lock()
	if cur, ok := h.clients[c.ID]; !ok || cur != c {
		h.mu.Unlock()
		return
	}
	delete(h.clients, c.ID)
	if members, ok := h.rooms[c.Room]; ok {
		delete(members, c.ID)
		if len(members) == 0 {
			delete(h.rooms, c.Room)
			delete(h.revisions, c.Room)
		}
	}
	callbacks := append([]func(*Client){}, h.onDisconn...)
	h.mu.Unlock()

	c.Close()
	h.logger.Info().Str("client_id", c.ID).Str("room", c.Room).Msg("client unregistered")

	for _, cb := range callbacks {
		cb(c)
	}
}
