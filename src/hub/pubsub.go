package hub

import (
	"github.com/mitplan/raidsocket/src/types"
)

func (h *Hub) broadcastToRoom(room string, msg types.Message) {
	h.mu.RLock()
	members, ok := h.rooms[room]
	if !ok {
		h.mu.RUnlock()
		return
	}
	// Copy members to avoid holding lock during sends.
	targets := make([]*Client, 0, len(members))
	for id := range members {
		if c, exists := h.clients[id]; exists {
			targets = append(targets, c)
		}
	}
	h.mu.RUnlock()

	if h.stale(room, msg) {
		h.logger.Debug().Str("room", room).Int64("revision", msg.Revision).Msg("dropping stale state update")
		return
	}

	for _, c := range targets {
		if !c.Enqueue(msg) {
			h.logger.Warn().Str("client_id", c.ID).Str("room", room).Msg("send buffer full, dropping")
		}
	}
}

// publishToBridge forwards a message to the bridge if one is attached.
func (h *Hub) publishToBridge(msg types.Message) {
	h.mu.RLock()
	b := h.bridge
	h.mu.RUnlock()

	if b == nil || !b.Available() {
		return
	}
	if err := b.Publish(msg); err != nil {
		h.logger.Error().Err(err).Str("room", msg.Room).Msg("bridge publish failed")
	}
}

// Publish sends a message to every member of msg.Room on every instance.
func (h *Hub) Publish(msg types.Message) {
	select {
	case h.broadcast <- msg:
	case <-h.done:
	}
}

// stale reports whether msg is a state update older than one already
// delivered to room. A redelivery of the current revision is not stale.
func (h *Hub) stale(room string, msg types.Message) bool {
	if msg.Type != types.TypeStateUpdate || msg.Revision == 0 {
		return false
	}
	if msg.Revision < h.revisions[room] {
		return true
	}
	h.revisions[room] = msg.Revision
	return false
}
