// Package logging builds the process-wide zerolog logger from configuration.
package logging

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/mitplan/raidsocket/config"
	"github.com/rs/zerolog"
)

// New returns a logger writing to w at the configured level. Format "console"
// selects the human-readable writer; anything else emits JSON lines.
func New(cfg config.LogConfig, w io.Writer) (zerolog.Logger, error) {
	level, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(cfg.Level)))
	if err != nil {
		return zerolog.Nop(), fmt.Errorf("log level %q: %w", cfg.Level, err)
	}
	if level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}

	out := w
	if cfg.Format == "console" {
		out = zerolog.ConsoleWriter{Out: w, TimeFormat: time.RFC3339}
	}
	return zerolog.New(out).Level(level).With().Timestamp().Logger(), nil
}
