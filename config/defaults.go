package config

import "time"

// Default values for optional configuration fields.
const (
	DefaultAddr            = ":5000"
	DefaultShutdownTimeout = 15 * time.Second
	DefaultRequestTimeout  = 5 * time.Second
	DefaultRedisAddr       = "localhost:6379"
	DefaultRedisPrefix     = "mitplan:"
	DefaultSessionTTL      = 24 * time.Hour
	DefaultDBPort          = 5432
	DefaultDBSSLMode       = "prefer"
	DefaultMaxConns        = 10
	DefaultMinConns        = 1
	DefaultLogLevel        = "info"
	DefaultLogFormat       = "json"
)

// Default returns a configuration with every default applied.
func Default() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	return cfg
}

func (c *Config) applyDefaults() {
	if c.Server.Addr == "" {
		c.Server.Addr = DefaultAddr
	}
	if c.Server.ShutdownTimeout == 0 {
		c.Server.ShutdownTimeout = DefaultShutdownTimeout
	}
	if c.Server.RequestTimeout == 0 {
		c.Server.RequestTimeout = DefaultRequestTimeout
	}

	def := DefaultConfig()
	if c.Socket.MaxConnections == 0 {
		c.Socket.MaxConnections = def.MaxConnections
	}
	if c.Socket.PingInterval == 0 {
		c.Socket.PingInterval = def.PingInterval
	}
	if c.Socket.WriteTimeout == 0 {
		c.Socket.WriteTimeout = def.WriteTimeout
	}
	if c.Socket.ReadBufferSize == 0 {
		c.Socket.ReadBufferSize = def.ReadBufferSize
	}
	if c.Socket.WriteBufferSize == 0 {
		c.Socket.WriteBufferSize = def.WriteBufferSize
	}
	if c.Socket.SendBuffer == 0 {
		c.Socket.SendBuffer = def.SendBuffer
	}

	if c.Redis.Addr == "" {
		c.Redis.Addr = DefaultRedisAddr
	}
	if c.Redis.Prefix == "" {
		c.Redis.Prefix = DefaultRedisPrefix
	}
	if c.Redis.SessionTTL == 0 {
		c.Redis.SessionTTL = DefaultSessionTTL
	}

	if c.Database.Port == 0 {
		c.Database.Port = DefaultDBPort
	}
	if c.Database.SSLMode == "" {
		c.Database.SSLMode = DefaultDBSSLMode
	}
	if c.Database.MaxConns == 0 {
		c.Database.MaxConns = DefaultMaxConns
	}
	if c.Database.MinConns == 0 {
		c.Database.MinConns = DefaultMinConns
	}

	if c.Log.Level == "" {
		c.Log.Level = DefaultLogLevel
	}
	if c.Log.Format == "" {
		c.Log.Format = DefaultLogFormat
	}
}
