package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/vedant-vijay/TaskSync/internal/server"
	"github.com/vedant-vijay/TaskSync/pkg/config"
	"github.com/vedant-vijay/TaskSync/pkg/directory"
	"github.com/vedant-vijay/TaskSync/pkg/logging"
)

func main() {
	logger := logging.New(logging.LevelDebug)
	slog.SetDefault(logger)

	cfg, err := config.Load(logger, "config")
	if err != nil {
		logger.Error("Failed to load configuration", slog.Any("error", err))
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// The production deployment points these at the document store and the
	// auth service; the standalone binary runs against the in-memory store.
	store := directory.NewMemoryStore()
	verifier := directory.NewJWTVerifier(cfg.Server.Auth.JWTSecret)

	app := server.NewApp(logger, ctx, cfg, store, verifier)
	if err := app.Run(); err != nil {
		logger.Error("Gateway run failed", slog.Any("error", err))
		os.Exit(1)
	}
	logger.Info("Gateway shut down successfully.")
}
