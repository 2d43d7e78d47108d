package config

import "time"

// SocketConfig holds WebSocket server configuration.
type SocketConfig struct {
	MaxConnections  int           `yaml:"max_connections"`
	PingInterval    time.Duration `yaml:"ping_interval"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	ReadBufferSize  int           `yaml:"read_buffer_size"`
	WriteBufferSize int           `yaml:"write_buffer_size"`
	SendBuffer      int           `yaml:"send_buffer"`
	AllowedOrigins  []string      `yaml:"allowed_origins"`
}

// DefaultConfig returns the default WebSocket configuration.
func DefaultConfig() *SocketConfig {
	return &SocketConfig{
		MaxConnections:  1000,
		PingInterval:    30 * time.Second,
		WriteTimeout:    10 * time.Second,
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		SendBuffer:      256,
	}
}
