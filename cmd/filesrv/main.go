package main

import (
	"context"
	"errors"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/kfcemployee/filesrv/server"
)

func main() {
	cfg := server.DefaultConfig()
	fs := flag.NewFlagSet("filesrv", flag.ExitOnError)
	cfg.RegisterFlags(fs)

	log := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.TimeOnly}).
		With().Timestamp().Logger()

	if err := server.ApplyEnv(fs, os.LookupEnv); err != nil {
		log.Fatal().Err(err).Msg("bad environment")
	}
	fs.Parse(os.Args[1:])

	level := zerolog.InfoLevel
	if cfg.Debug {
		level = zerolog.DebugLevel
	}
	log = log.Level(level)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	srv, err := server.New(cfg, log)
	if err != nil {
		log.Error().Err(err).Msg("startup failed")
		os.Exit(1)
	}

	if err := srv.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		log.Error().Err(err).Msg("server failed")
		stop()
		os.Exit(1)
	}
}
