// mitplan-server runs the realtime raid-planning backend: the room HTTP API
// and the ws/raid/<room_name>/ websocket endpoint on one listener.
//
// Configuration comes from an optional YAML file (--config), a .env file in
// the working directory, and environment variables, in increasing priority.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/mitplan/raidsocket/config"
	"github.com/mitplan/raidsocket/providers"
	"github.com/mitplan/raidsocket/src/logging"
	"github.com/spf13/pflag"
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	var configPath, envFile string
	flagSet := pflag.NewFlagSet("mitplan-server", pflag.ContinueOnError)
	flagSet.StringVarP(&configPath, "config", "c", "", "path to YAML config file (optional)")
	flagSet.StringVar(&envFile, "env-file", ".env", "dotenv file loaded before reading the environment")
	if err := flagSet.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return err
	}

	envErr := godotenv.Load(envFile)

	cfg, err := config.LoadAndValidate(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger, err := logging.New(cfg.Log, os.Stdout)
	if err != nil {
		return err
	}
	if envErr != nil {
		logger.Debug().Err(envErr).Str("file", envFile).Msg("no dotenv file, using process environment")
	}
	logger.Info().Str("config", configPath).Str("addr", cfg.Server.Addr).Msg("starting mitplan server")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	srv := providers.NewServer(cfg, logger)
	if err := srv.Activate(ctx); err != nil {
		return fmt.Errorf("activate: %w", err)
	}

	return srv.Run(ctx)
}
