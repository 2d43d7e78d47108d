package config

import "time"

// Config is the root configuration of the raid server.
type Config struct {
	Server   ServerConfig `yaml:"server"`
	Socket   SocketConfig `yaml:"socket"`
	Redis    RedisConfig  `yaml:"redis"`
	Database DBConfig     `yaml:"database"`
	Log      LogConfig    `yaml:"log"`
}

// ServerConfig holds the listener settings.
type ServerConfig struct {
	Addr            string        `yaml:"addr"`
	FrontendURL     string        `yaml:"frontend_url"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	RequestTimeout  time.Duration `yaml:"request_timeout"`
}

// RedisConfig holds connection settings for the room cache, sessions and the
// pub/sub bridge.
type RedisConfig struct {
	Addr       string        `yaml:"addr"`
	Password   string        `yaml:"password"`
	DB         int           `yaml:"db"`
	Prefix     string        `yaml:"prefix"`
	SessionTTL time.Duration `yaml:"session_ttl"`
	Disabled   bool          `yaml:"disabled"`
}

// DBConfig holds the Postgres connection used for durable room state.
// An empty Host disables the database.
type DBConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Name     string `yaml:"name"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	SSLMode  string `yaml:"ssl_mode"`
	MaxConns int    `yaml:"max_conns"`
	MinConns int    `yaml:"min_conns"`
}

// Enabled reports whether a database is configured.
func (db DBConfig) Enabled() bool { return db.Host != "" }

// LogConfig controls the zerolog output.
type LogConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // json or console
}
