package hub

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/mitplan/raidsocket/src/types"
)

// Client wraps a WebSocket connection bound to one room.
type Client struct {
	ID          string
	Room        string
	Identity    types.Identity
	conn        types.Conn
	hub         *Hub
	Send        chan types.Message
	connectedAt time.Time
	mu          sync.RWMutex
	done        chan struct{}
	closed      bool
}

// NewClient creates a new WebSocket client wrapper. bufSize bounds the
// outgoing queue; a full queue drops messages for this client only.
func NewClient(id, room string, identity types.Identity, conn types.Conn, h *Hub, bufSize int) *Client {
	if bufSize < 1 {
		bufSize = 256
	}
	return &Client{
		ID:          id,
		Room:        room,
		Identity:    identity,
		conn:        conn,
		hub:         h,
		Send:        make(chan types.Message, bufSize),
		connectedAt: time.Now(),
		done:        make(chan struct{}),
	}
}

// Info returns metadata about this client.
func (c *Client) Info() types.ClientInfo {
	return types.ClientInfo{
		ID:          c.ID,
		Room:        c.Room,
		UserID:      c.Identity.UserID,
		ConnectedAt: c.connectedAt,
	}
}

// Enqueue queues msg for delivery without blocking. It reports false when
// the client is closed or its buffer is full.
func (c *Client) Enqueue(msg types.Message) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return false
	}
	select {
	case c.Send <- msg:
		return true
	default:
		return false
	}
}

// ReadPump reads frames from the WebSocket and hands each decoded one to
// handle. A frame that does not decode as a Message goes to reject and the
// connection stays open. ReadPump returns when the transport fails or the
// connection is closed.
func (c *Client) ReadPump(handle func(types.Message), reject func(error)) {
	defer func() {
		c.hub.Unregister(c)
		c.conn.Close()
	}()

	for {
		data, err := c.conn.ReadMessage()
		if err != nil {
			return
		}
		var msg types.Message
		if err := json.Unmarshal(data, &msg); err != nil {
			if reject != nil {
				reject(err)
			}
			continue
		}
		msg.ClientID = c.ID
		msg.Room = c.Room
		msg.Revision = 0
		msg.Timestamp = time.Now()
		handle(msg)
	}
}

// WritePump writes queued messages to the WebSocket and pings the peer
// every pingInterval. A zero interval disables pings.
func (c *Client) WritePump(pingInterval time.Duration) {
	defer c.conn.Close()

	var tick <-chan time.Time
	if pingInterval > 0 {
		ticker := time.NewTicker(pingInterval)
		defer ticker.Stop()
		tick = ticker.C
	}

	for {
		select {
		case msg, ok := <-c.Send:
			if !ok {
				return
			}
			if err := c.conn.WriteJSON(msg); err != nil {
				return
			}
		case <-tick:
			if err := c.conn.Ping(); err != nil {
				return
			}
		case <-c.done:
			return
		}
	}
}

// Close signals the client to stop its pumps.
func (c *Client) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.done)
		close(c.Send)
	}
}
