package main

import (
	"net"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, addr string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	body := "server:\n  addr: " + addr + "\n  shutdown_timeout: 1s\nredis:\n  disabled: true\nlog:\n  level: error\n"
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestRunFailsWhenAddressInUse(t *testing.T) {
	for _, key := range []string{"PORT", "DB_HOST", "REDIS_ADDR"} {
		t.Setenv(key, "")
	}
	busy, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer busy.Close()

	err = run([]string{
		"--config", writeConfig(t, busy.Addr().String()),
		"--env-file", filepath.Join(t.TempDir(), "missing.env"),
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "listen "+busy.Addr().String())
}

func TestRunRejectsUnknownFlag(t *testing.T) {
	assert.Error(t, run([]string{"--no-such-flag"}))
}
