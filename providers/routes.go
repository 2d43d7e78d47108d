package providers

import (
	"context"
	"errors"
	"time"

	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/cors"
	"github.com/google/uuid"
	"github.com/mitplan/raidsocket/src/auth"
	"github.com/mitplan/raidsocket/src/router"
	"github.com/mitplan/raidsocket/src/store"
)

// newApp builds the HTTP application. The websocket upgrade never reaches
// it; the protocol router hands upgrades to the fasthttp websocket stack.
func (s *Server) newApp() *fiber.App {
	app := fiber.New(fiber.Config{AppName: "raidsocket"})

	app.Use(s.requestLogger())
	app.Use(s.corsMiddleware())

	app.Get("/healthz", s.handleHealth)
	s.RegisterRoutes(app)
	return app
}

// RegisterRoutes registers the room API and the socket admin routes. The
// admin routes expose who is connected and need a signed-in session.
func (s *Server) RegisterRoutes(group fiber.Router) {
	admin := s.requireSession()

	group.Get("/ws/info", s.handleInfo)
	group.Get("/ws/clients", admin, s.handleListClients)
	group.Get("/ws/rooms", admin, s.handleListRooms)

	api := group.Group("/api")
	api.Post("/rooms", s.handleCreateRoom)
	api.Get("/rooms/:roomId", s.handleGetRoom)
	api.Post("/rooms/:roomId/save", s.handleSaveRoom)
	api.Get("/rooms/:roomId/members", admin, s.handleRoomMembers)
	api.Post("/rooms/:roomId/resync", admin, s.handleResync)
}

// requireSession admits requests carrying a valid, non-anonymous session
// token, taken from the same places the websocket handshake reads it.
func (s *Server) requireSession() fiber.Handler {
	return func(c fiber.Ctx) error {
		token, err := auth.ExtractToken(c.Get(fiber.HeaderAuthorization), c.Query("token"), c.Cookies(auth.SessionCookie))
		if err != nil {
			return c.Status(fiber.StatusUnauthorized).JSON(auth.Rejection{Error: "unauthorized", Message: err.Error()})
		}

		ctx, cancel := s.requestContext()
		id, err := s.sessions.Lookup(ctx, token)
		cancel()
		switch {
		case errors.Is(err, auth.ErrInvalidToken):
			return c.Status(fiber.StatusUnauthorized).JSON(auth.Rejection{Error: "unauthorized", Message: err.Error()})
		case err != nil:
			s.logger.Error().Err(err).Str("path", c.Path()).Msg("session lookup failed")
			return c.Status(fiber.StatusServiceUnavailable).JSON(auth.Rejection{Error: "session_lookup_failed", Message: "session store unavailable"})
		case id.Anonymous || id.UserID == "":
			return c.Status(fiber.StatusForbidden).JSON(auth.Rejection{Error: "forbidden", Message: "authentication required"})
		}
		c.Locals("identity", id)
		return c.Next()
	}
}

func (s *Server) corsMiddleware() fiber.Handler {
	origins := s.allowedOrigins()
	if len(origins) == 0 {
		return cors.New()
	}
	return cors.New(cors.Config{
		AllowOrigins:     origins,
		AllowCredentials: true,
	})
}

// requestLogger tags every request with an id and logs its outcome.
func (s *Server) requestLogger() fiber.Handler {
	logger := s.logger.With().Str("component", "http").Logger()
	return func(c fiber.Ctx) error {
		requestID := uuid.New().String()
		c.Locals("requestID", requestID)
		c.Set("X-Request-ID", requestID)

		start := time.Now()
		err := c.Next()

		status := c.Response().StatusCode()
		var fe *fiber.Error
		if errors.As(err, &fe) {
			status = fe.Code
		}

		ev := logger.Info()
		if status >= fiber.StatusInternalServerError {
			ev = logger.Error().Err(err)
		}
		ev.Str("request_id", requestID).
			Str("method", c.Method()).
			Str("path", c.Path()).
			Int("status", status).
			Dur("duration", time.Since(start)).
			Str("ip", c.IP()).
			Msg("request")
		return err
	}
}

// requestContext bounds a store call made on behalf of an HTTP request.
func (s *Server) requestContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), s.cfg.Server.RequestTimeout)
}

func (s *Server) handleHealth(c fiber.Ctx) error {
	ctx, cancel := s.requestContext()
	defer cancel()

	checks := fiber.Map{"redis": "disabled", "database": "disabled"}
	healthy := true
	if s.redis != nil {
		checks["redis"] = "ok"
		if err := s.redis.Ping(ctx).Err(); err != nil {
			checks["redis"] = err.Error()
			healthy = false
		}
	}
	if s.pool != nil {
		checks["database"] = "ok"
		if err := s.pool.Ping(ctx); err != nil {
			checks["database"] = err.Error()
			healthy = false
		}
	}

	status := fiber.StatusOK
	checks["status"] = "ok"
	if !healthy {
		status = fiber.StatusServiceUnavailable
		checks["status"] = "degraded"
	}
	return c.Status(status).JSON(checks)
}

func (s *Server) handleInfo(c fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"websocket": true,
		"endpoint":  "/ws/raid/{room_name}/",
		"pattern":   router.RaidRoomPattern,
		"clients":   s.hub.ClientCount(),
		"rooms":     len(s.hub.Rooms()),
		"bridge":    s.bridge != nil && s.bridge.Available(),
	})
}

func (s *Server) handleListClients(c fiber.Ctx) error {
	clients := s.service.GetConnectedClients()
	infos := make([]any, 0, len(clients))
	for _, id := range clients {
		info, err := s.service.GetClientInfo(id)
		if err == nil {
			infos = append(infos, info)
		}
	}
	return c.JSON(fiber.Map{
		"clients": infos,
		"count":   len(infos),
	})
}

func (s *Server) handleListRooms(c fiber.Ctx) error {
	rooms := s.service.Stats().Rooms
	result := make([]fiber.Map, 0, len(rooms))
	for name, count := range rooms {
		result = append(result, fiber.Map{
			"room":    name,
			"members": count,
		})
	}
	return c.JSON(fiber.Map{"rooms": result, "count": len(result)})
}

func (s *Server) handleCreateRoom(c fiber.Ctx) error {
	ctx, cancel := s.requestContext()
	defer cancel()

	id, err := s.service.CreateRoom(ctx)
	if err != nil {
		return s.roomError(c, err)
	}
	return c.JSON(fiber.Map{"roomId": id})
}

func (s *Server) handleGetRoom(c fiber.Ctx) error {
	ctx, cancel := s.requestContext()
	defer cancel()

	st, err := s.service.GetRoom(ctx, c.Params("roomId"))
	if err != nil {
		return s.roomError(c, err)
	}
	return c.JSON(st)
}

func (s *Server) handleSaveRoom(c fiber.Ctx) error {
	ctx, cancel := s.requestContext()
	defer cancel()

	if err := s.service.SaveRoom(ctx, c.Params("roomId")); err != nil {
		return s.roomError(c, err)
	}
	return c.JSON(fiber.Map{"message": "Room state saved successfully"})
}

func (s *Server) handleRoomMembers(c fiber.Ctx) error {
	members := s.service.Members(c.Params("roomId"))
	return c.JSON(fiber.Map{"members": members, "count": len(members)})
}

func (s *Server) handleResync(c fiber.Ctx) error {
	ctx, cancel := s.requestContext()
	defer cancel()

	roomID := c.Params("roomId")
	if err := s.service.Resync(ctx, roomID); err != nil {
		return s.roomError(c, err)
	}
	return c.JSON(fiber.Map{"published": true, "room": roomID})
}

// roomError maps service errors to HTTP responses.
func (s *Server) roomError(c fiber.Ctx, err error) error {
	if errors.Is(err, store.ErrRoomNotFound) {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"message": "Room not found"})
	}
	s.logger.Error().Err(err).Str("path", c.Path()).Msg("room request failed")
	return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"message": "internal error"})
}
