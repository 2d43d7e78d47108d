// cooldown-import converts the raid cooldown spreadsheet export (CSV) into
// the YAML catalogue served to the planner frontend.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/mitplan/raidsocket/config"
	"github.com/mitplan/raidsocket/src/cooldown"
	"github.com/mitplan/raidsocket/src/logging"
	"github.com/spf13/pflag"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg := cooldown.DefaultConfig()
	var logLevel string

	flagSet := pflag.NewFlagSet("cooldown-import", pflag.ContinueOnError)
	flagSet.StringVarP(&cfg.InputPath, "input", "i", cfg.InputPath, "CSV file to read")
	flagSet.StringVarP(&cfg.OutputPath, "output", "o", cfg.OutputPath, "YAML file to write")
	flagSet.StringVar(&cfg.Color, "color", cfg.Color, "color assigned to every cooldown")
	flagSet.BoolVar(&cfg.Lenient, "lenient", false, "skip malformed rows instead of failing")
	flagSet.StringVar(&logLevel, "log-level", config.DefaultLogLevel, "debug, info, warn or error")
	if err := flagSet.Parse(os.Args[1:]); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return err
	}
	if args := flagSet.Args(); len(args) > 0 {
		return fmt.Errorf("unexpected argument: %s", args[0])
	}

	logger, err := logging.New(config.LogConfig{Level: logLevel, Format: "console"}, os.Stderr)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	report, err := cooldown.Import(ctx, cfg)
	if err != nil {
		return err
	}
	for _, rowErr := range report.Errors {
		logger.Warn().
			Int("line", rowErr.Line).
			Str("column", rowErr.Column).
			Str("value", rowErr.Value).
			Err(rowErr.Err).
			Msg("row skipped")
	}
	logger.Info().
		Str("input", cfg.InputPath).
		Str("output", cfg.OutputPath).
		Int("rows", report.Rows).
		Int("records", len(report.Records)).
		Int("skipped", len(report.Errors)).
		Msg("cooldowns written")
	return nil
}
