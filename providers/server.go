package providers

import (
	"context"
	"errors"
	"fmt"
	"net"

	"github.com/fasthttp/websocket"
	"github.com/gofiber/fiber/v3"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/mitplan/raidsocket/config"
	"github.com/mitplan/raidsocket/src/auth"
	"github.com/mitplan/raidsocket/src/bridge"
	"github.com/mitplan/raidsocket/src/consumer"
	"github.com/mitplan/raidsocket/src/hub"
	"github.com/mitplan/raidsocket/src/router"
	"github.com/mitplan/raidsocket/src/service"
	"github.com/mitplan/raidsocket/src/store"
	"github.com/mitplan/raidsocket/src/types"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/valyala/fasthttp"
)

// SessionStore resolves and records session tokens.
type SessionStore interface {
	auth.SessionStore
	Put(ctx context.Context, token string, id types.Identity) error
}

// Server owns every long-lived component of one raid server instance.
type Server struct {
	active bool
	cfg    *config.Config
	logger zerolog.Logger

	redis    *redis.Client
	pool     *pgxpool.Pool
	store    store.Store
	sessions SessionStore
	hub      *hub.Hub
	bridge   bridge.Bridge
	service  *service.Service
	factory  *consumer.Factory

	app      *fiber.App
	upgrader websocket.FastHTTPUpgrader
	http     *fasthttp.Server
}

// NewServer creates an inactive server for cfg.
func NewServer(cfg *config.Config, logger zerolog.Logger) *Server {
	return &Server{cfg: cfg, logger: logger}
}

func (s *Server) IsActive() bool { return s.active }

// Service exposes the room service.
func (s *Server) Service() *service.Service { return s.service }

// Sessions exposes the session store so that a login flow can record tokens.
func (s *Server) Sessions() SessionStore { return s.sessions }

// Activate connects the backing stores, starts the hub event loop and the
// pub/sub bridge, and builds the HTTP and websocket stacks. Redis is optional:
// when it is disabled or unreachable the instance runs standalone, on the
// database when one is configured and on in-memory state otherwise. A
// configured database that cannot be reached is fatal.
func (s *Server) Activate(ctx context.Context) error {
	if s.active {
		return errors.New("server already active")
	}

	s.initRedis(ctx)

	var cache store.Store
	s.sessions = auth.NewMemorySessionStore()
	if s.redis != nil {
		cache = store.NewRedisStore(s.redis, s.cfg.Redis.Prefix)
		s.sessions = auth.NewRedisSessionStore(s.redis, s.cfg.Redis.Prefix, s.cfg.Redis.SessionTTL)
	}

	var durable store.Store
	if s.cfg.Database.Enabled() {
		pool, err := store.Connect(ctx, s.cfg.Database)
		if err != nil {
			s.closeRedis()
			return err
		}
		pg := store.NewPostgresStore(pool)
		if err := pg.EnsureSchema(ctx); err != nil {
			pool.Close()
			s.closeRedis()
			return fmt.Errorf("ensure schema: %w", err)
		}
		s.pool = pool
		durable = pg
		s.logger.Info().Str("db_host", s.cfg.Database.Host).Str("db_name", s.cfg.Database.Name).Msg("database connected")
	}
	if cache == nil && durable == nil {
		cache = store.NewMemoryStore()
	}
	s.store = store.NewLayeredStore(cache, durable, s.logger)

	s.hub = hub.New(s.logger)
	s.service = service.New(s.hub, s.store, s.logger)
	s.factory = consumer.NewFactory(s.hub, s.store, consumer.Options{
		Timeout:      s.cfg.Server.RequestTimeout,
		PingInterval: s.cfg.Socket.PingInterval,
	}, s.logger)

	go s.hub.Run()
	s.initBridge()

	s.upgrader = websocket.FastHTTPUpgrader{
		ReadBufferSize:  s.cfg.Socket.ReadBufferSize,
		WriteBufferSize: s.cfg.Socket.WriteBufferSize,
		CheckOrigin:     originChecker(s.allowedOrigins()),
	}
	s.app = s.newApp()
	s.http = &fasthttp.Server{
		Handler:      s.Handler(),
		Name:         "raidsocket",
		ReadTimeout:  s.cfg.Server.RequestTimeout,
		IdleTimeout:  s.cfg.Socket.PingInterval * 2,
		Logger:       fasthttpLogger{s.logger},
		TCPKeepalive: true,
	}

	s.active = true
	s.logger.Info().
		Bool("redis", s.redis != nil).
		Bool("database", s.pool != nil).
		Msg("raid server activated")
	return nil
}

// initRedis connects the shared client. On failure the instance runs
// standalone.
func (s *Server) initRedis(ctx context.Context) {
	if s.cfg.Redis.Disabled {
		s.logger.Info().Msg("redis disabled, running standalone")
		return
	}
	client := redis.NewClient(&redis.Options{
		Addr:     s.cfg.Redis.Addr,
		Password: s.cfg.Redis.Password,
		DB:       s.cfg.Redis.DB,
	})
	pingCtx, cancel := context.WithTimeout(ctx, s.cfg.Server.RequestTimeout)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		s.logger.Warn().Err(err).Str("redis_addr", s.cfg.Redis.Addr).Msg("redis unavailable, running standalone")
		_ = client.Close()
		return
	}
	s.redis = client
	s.logger.Info().Str("redis_addr", s.cfg.Redis.Addr).Msg("redis connected")
}

// initBridge tries to start the Redis pub/sub bridge.
// If it cannot subscribe, the hub only reaches local clients.
func (s *Server) initBridge() {
	if s.redis == nil {
		return
	}
	rb := bridge.NewRedisBridge(s.redis, s.cfg.Redis.Prefix, s.hub, s.logger)
	if err := rb.Start(); err != nil {
		s.logger.Warn().Err(err).Msg("redis bridge unavailable, running standalone")
		return
	}
	s.bridge = rb
	s.hub.SetBridge(rb)
	s.logger.Info().Str("instance_id", rb.InstanceID()).Msg("redis bridge connected")
}

// Handler returns the protocol router: websocket upgrades pass the auth
// middleware and the URL router, everything else goes to the HTTP app.
func (s *Server) Handler() fasthttp.RequestHandler {
	urls := router.NewURLRouter()
	urls.MustHandle(router.RaidRoomPattern, s.serveRaidRoom)

	ws := router.Chain(urls.Serve, auth.Middleware(s.sessions, s.cfg.Server.RequestTimeout, s.logger))
	pr := &router.ProtocolRouter{HTTP: s.app.Handler(), WebSocket: ws}
	return pr.Handler()
}

// Serve accepts connections on ln until Deactivate is called.
func (s *Server) Serve(ln net.Listener) error {
	if !s.active {
		return errors.New("server not active")
	}
	s.logger.Info().Str("addr", ln.Addr().String()).Msg("listening")
	return s.http.Serve(ln)
}

// ListenAndServe listens on the configured address.
func (s *Server) ListenAndServe() error {
	ln, err := net.Listen("tcp", s.cfg.Server.Addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", s.cfg.Server.Addr, err)
	}
	return s.Serve(ln)
}

// Run serves on the configured address until ctx is done or the listener
// fails, then deactivates the server. A serve failure is returned together
// with any shutdown error.
func (s *Server) Run(ctx context.Context) error {
	serveErr := make(chan error, 1)
	go func() { serveErr <- s.ListenAndServe() }()

	var err error
	select {
	case err = <-serveErr:
		if err != nil {
			s.logger.Error().Err(err).Msg("server stopped")
		}
	case <-ctx.Done():
		s.logger.Info().Msg("received shutdown signal")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.Server.ShutdownTimeout)
	defer cancel()
	return errors.Join(err, s.Deactivate(shutdownCtx))
}

// Deactivate stops accepting connections, closes every client, and releases
// the bridge and the store connections.
func (s *Server) Deactivate(ctx context.Context) error {
	if !s.active {
		return nil
	}
	var errs []error
	if err := s.http.ShutdownWithContext(ctx); err != nil {
		errs = append(errs, fmt.Errorf("http shutdown: %w", err))
	}
	if s.bridge != nil {
		if err := s.bridge.Stop(); err != nil {
			s.logger.Error().Err(err).Msg("bridge stop error")
		}
		s.bridge = nil
	}
	s.hub.Stop()
	if s.pool != nil {
		s.pool.Close()
	}
	if err := s.closeRedis(); err != nil {
		errs = append(errs, fmt.Errorf("redis close: %w", err))
	}
	s.active = false
	s.logger.Info().Msg("raid server deactivated")
	return errors.Join(errs...)
}

func (s *Server) closeRedis() error {
	if s.redis == nil {
		return nil
	}
	err := s.redis.Close()
	s.redis = nil
	return err
}

// allowedOrigins merges the frontend URL into the configured origin list.
func (s *Server) allowedOrigins() []string {
	origins := append([]string(nil), s.cfg.Socket.AllowedOrigins...)
	if s.cfg.Server.FrontendURL != "" {
		origins = append(origins, s.cfg.Server.FrontendURL)
	}
	return origins
}

// fasthttpLogger routes fasthttp's internal messages into zerolog.
type fasthttpLogger struct {
	logger zerolog.Logger
}

func (l fasthttpLogger) Printf(format string, args ...any) {
	l.logger.Debug().Str("component", "fasthttp").Msgf(format, args...)
}
