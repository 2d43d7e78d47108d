package providers

import (
	"strings"
	"time"

	"github.com/fasthttp/websocket"
	"github.com/google/uuid"
	"github.com/mitplan/raidsocket/src/hub"
	"github.com/mitplan/raidsocket/src/router"
	"github.com/valyala/fasthttp"
)

// maxFrameSize bounds a single inbound frame. Encounter timelines are the
// largest payloads clients send.
const maxFrameSize = 1 << 20

// serveRaidRoom upgrades a matched ws/raid/<room_name>/ request and runs the
// room consumer until the connection closes.
func (s *Server) serveRaidRoom(ctx *fasthttp.RequestCtx, scope *router.Scope) {
	if limit := s.cfg.Socket.MaxConnections; limit > 0 && s.hub.ClientCount() >= limit {
		ctx.SetStatusCode(fasthttp.StatusServiceUnavailable)
		ctx.SetContentType("application/json")
		ctx.SetBodyString(`{"error":"too_many_connections","message":"connection limit reached"}`)
		return
	}

	roomName := scope.Param(router.RoomNameKey)
	identity := scope.Identity
	clientID := uuid.New().String()
	socketCfg := s.cfg.Socket

	err := s.upgrader.Upgrade(ctx, func(conn *websocket.Conn) {
		wc := newWSConn(conn, socketCfg.WriteTimeout, socketCfg.PingInterval)
		client := hub.NewClient(clientID, roomName, identity, wc, s.hub, socketCfg.SendBuffer)
		s.factory.New(client).Run()
	})
	if err != nil {
		s.logger.Warn().Err(err).Str("room", roomName).Msg("websocket upgrade failed")
	}
}

// wsConn wraps fasthttp/websocket.Conn to satisfy types.Conn.
type wsConn struct {
	conn         *websocket.Conn
	writeTimeout time.Duration
	pongWait     time.Duration
}

func newWSConn(conn *websocket.Conn, writeTimeout, pingInterval time.Duration) *wsConn {
	c := &wsConn{conn: conn, writeTimeout: writeTimeout}
	conn.SetReadLimit(maxFrameSize)
	if pingInterval > 0 {
		c.pongWait = 2 * pingInterval
		_ = conn.SetReadDeadline(time.Now().Add(c.pongWait))
		conn.SetPongHandler(func(string) error {
			return conn.SetReadDeadline(time.Now().Add(c.pongWait))
		})
	}
	return c
}

func (c *wsConn) deadline() time.Time {
	if c.writeTimeout <= 0 {
		return time.Time{}
	}
	return time.Now().Add(c.writeTimeout)
}

func (c *wsConn) WriteJSON(v any) error {
	if err := c.conn.SetWriteDeadline(c.deadline()); err != nil {
		return err
	}
	return c.conn.WriteJSON(v)
}

func (c *wsConn) ReadMessage() ([]byte, error) {
	_, data, err := c.conn.ReadMessage()
	return data, err
}

func (c *wsConn) Ping() error {
	return c.conn.WriteControl(websocket.PingMessage, nil, c.deadline())
}

func (c *wsConn) Close() error { return c.conn.Close() }

// originChecker accepts requests without an Origin header and requests whose
// origin is listed. An empty list accepts every origin.
func originChecker(allowed []string) func(ctx *fasthttp.RequestCtx) bool {
	set := make(map[string]struct{}, len(allowed))
	for _, o := range allowed {
		set[normalizeOrigin(o)] = struct{}{}
	}
	return func(ctx *fasthttp.RequestCtx) bool {
		if len(set) == 0 {
			return true
		}
		origin := string(ctx.Request.Header.Peek("Origin"))
		if origin == "" {
			return true
		}
		_, ok := set[normalizeOrigin(origin)]
		return ok
	}
}

func normalizeOrigin(o string) string {
	return strings.ToLower(strings.TrimRight(strings.TrimSpace(o), "/"))
}
