// Package testutil holds fakes shared by package tests.
package testutil

import (
	"encoding/json"
	"errors"
	"sync"

	"github.com/mitplan/raidsocket/src/types"
)

// ErrClosed is returned by MockConn after Close.
var ErrClosed = errors.New("connection closed")

// MockConn implements types.Conn without a real WebSocket. Frames pushed
// with Push or PushRaw are returned by ReadMessage; written frames are
// recorded.
type MockConn struct {
	mu       sync.Mutex
	written  []types.Message
	pings    int
	readCh   chan []byte
	closed   bool
	closedCh chan struct{}
}

// NewMockConn creates an open mock connection.
func NewMockConn() *MockConn {
	return &MockConn{
		readCh:   make(chan []byte, 16),
		closedCh: make(chan struct{}),
	}
}

// Push queues a frame to be read by the server side.
func (m *MockConn) Push(msg types.Message) {
	data, err := json.Marshal(msg)
	if err != nil {
		panic(err)
	}
	m.readCh <- data
}

// PushRaw queues raw frame bytes, which need not be valid JSON.
func (m *MockConn) PushRaw(data []byte) {
	m.readCh <- data
}

func (m *MockConn) WriteJSON(v any) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}
	switch msg := v.(type) {
	case types.Message:
		m.written = append(m.written, msg)
	case *types.Message:
		m.written = append(m.written, *msg)
	default:
		data, err := json.Marshal(v)
		if err != nil {
			return err
		}
		var out types.Message
		if err := json.Unmarshal(data, &out); err != nil {
			return err
		}
		m.written = append(m.written, out)
	}
	return nil
}

func (m *MockConn) ReadMessage() ([]byte, error) {
	select {
	case data := <-m.readCh:
		return data, nil
	case <-m.closedCh:
		return nil, ErrClosed
	}
}

func (m *MockConn) Ping() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}
	m.pings++
	return nil
}

func (m *MockConn) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.closed {
		m.closed = true
		close(m.closedCh)
	}
	return nil
}

// Written returns a copy of the frames written so far.
func (m *MockConn) Written() []types.Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := make([]types.Message, len(m.written))
	copy(cp, m.written)
	return cp
}

// WrittenOfType returns written frames with the given type.
func (m *MockConn) WrittenOfType(typ string) []types.Message {
	var out []types.Message
	for _, msg := range m.Written() {
		if msg.Type == typ {
			out = append(out, msg)
		}
	}
	return out
}

// Pings returns the number of pings sent.
func (m *MockConn) Pings() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.pings
}

// Closed reports whether Close was called.
func (m *MockConn) Closed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}
