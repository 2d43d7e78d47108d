package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "server.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestDefaultConfig(t *testing.T) {
	cfg := Default()
	assert.Equal(t, DefaultAddr, cfg.Server.Addr)
	assert.Equal(t, 1000, cfg.Socket.MaxConnections)
	assert.Equal(t, 30*time.Second, cfg.Socket.PingInterval)
	assert.Equal(t, "localhost:6379", cfg.Redis.Addr)
	assert.Equal(t, "mitplan:", cfg.Redis.Prefix)
	assert.False(t, cfg.Database.Enabled())
	assert.NoError(t, cfg.Validate())
}

func TestLoadEmptyPath(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, Config{}, *cfg)
}

func TestLoadExpandsEnv(t *testing.T) {
	t.Setenv("TEST_DB_PASSWORD", "hunter2")
	path := writeConfig(t, `
server:
  addr: ":8080"
socket:
  ping_interval: 45s
database:
  host: db.internal
  name: mitplan
  user: mitplan
  password: ${TEST_DB_PASSWORD}
log:
  level: debug
  format: console
`)

	cfg, err := LoadAndValidate(path)
	require.NoError(t, err)
	assert.Equal(t, ":8080", cfg.Server.Addr)
	assert.Equal(t, 45*time.Second, cfg.Socket.PingInterval)
	assert.Equal(t, "hunter2", cfg.Database.Password)
	assert.Equal(t, DefaultDBPort, cfg.Database.Port)
	assert.True(t, cfg.Database.Enabled())
	assert.Equal(t, "console", cfg.Log.Format)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestLoadInvalidYAML(t *testing.T) {
	path := writeConfig(t, "server: [unclosed")
	_, err := Load(path)
	assert.ErrorContains(t, err, "parse config yaml")
}

func TestApplyEnvOverrides(t *testing.T) {
	t.Setenv("PORT", "9000")
	t.Setenv("REDIS_ADDR", "redis.example.com:6380")
	t.Setenv("REDIS_PASSWORD", "secret")
	t.Setenv("REDIS_DB", "3")
	t.Setenv("REDIS_PREFIX", "test:")
	t.Setenv("DB_HOST", "pg")
	t.Setenv("DB_PORT", "6543")
	t.Setenv("LOG_LEVEL", "WARN")

	cfg := &Config{}
	require.NoError(t, cfg.ApplyEnv())
	assert.Equal(t, ":9000", cfg.Server.Addr)
	assert.Equal(t, "redis.example.com:6380", cfg.Redis.Addr)
	assert.Equal(t, "secret", cfg.Redis.Password)
	assert.Equal(t, 3, cfg.Redis.DB)
	assert.Equal(t, "test:", cfg.Redis.Prefix)
	assert.Equal(t, "pg", cfg.Database.Host)
	assert.Equal(t, 6543, cfg.Database.Port)
	assert.Equal(t, "warn", cfg.Log.Level)
}

func TestApplyEnvInvalidRedisDBIgnored(t *testing.T) {
	t.Setenv("REDIS_DB", "not-a-number")
	cfg := &Config{}
	require.NoError(t, cfg.ApplyEnv())
	assert.Equal(t, 0, cfg.Redis.DB)
}

func TestApplyEnvPasswordFile(t *testing.T) {
	secret := filepath.Join(t.TempDir(), "db_password")
	require.NoError(t, os.WriteFile(secret, []byte("from-file\n"), 0o600))
	t.Setenv("DB_PASSWORD_FILE", secret)

	cfg := &Config{}
	require.NoError(t, cfg.ApplyEnv())
	assert.Equal(t, "from-file", cfg.Database.Password)

	t.Setenv("DB_PASSWORD_FILE", filepath.Join(t.TempDir(), "nope"))
	assert.Error(t, cfg.ApplyEnv())
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"bad level", func(c *Config) { c.Log.Level = "loud" }, "log.level"},
		{"bad format", func(c *Config) { c.Log.Format = "xml" }, "log.format"},
		{"db without name", func(c *Config) { c.Database.Host = "pg"; c.Database.User = "u" }, "database.name"},
		{"db min over max", func(c *Config) {
			c.Database = DBConfig{Host: "pg", Name: "n", User: "u", MaxConns: 2, MinConns: 5}
		}, "min_conns"},
		{"zero send buffer", func(c *Config) { c.Socket.SendBuffer = -1 }, "send_buffer"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			assert.ErrorContains(t, cfg.Validate(), tt.want)
		})
	}
}
