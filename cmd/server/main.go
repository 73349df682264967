package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/veilchat/relay/internal/directory"
	"github.com/veilchat/relay/internal/server"
)

func main() {
	// Load local .env (dev only).
	_ = godotenv.Load()

	cfg := server.NewConfigFromEnv()
	logger := server.NewLogger(cfg.Env)

	// Cancel on SIGINT/SIGTERM.
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// Key directory store: Postgres when configured, in-memory otherwise.
	var store directory.Store
	if cfg.DirectoryPGURL != "" {
		pg, err := directory.NewPostgresStore(ctx, cfg.DirectoryPGURL, logger)
		if err != nil {
			logger.Error("postgres connect", "err", err)
			os.Exit(1)
		}
		if err := directory.RunMigrations(ctx, pg, logger); err != nil {
			logger.Error("migrations", "err", err)
			os.Exit(1)
		}
		store = pg
	} else {
		logger.Info("no DIRECTORY_PG_URL set, using in-memory key directory")
		store = directory.NewMemoryStore()
	}
	defer store.Close()

	// Room hub.
	hub := server.NewHub(logger)
	go hub.Run()

	// HTTP + WS routes.
	handler := server.SetupRoutes(cfg, logger, hub, &directory.API{Store: store, Log: logger})
	srv := server.CreateServer(cfg.Port, handler)

	go func() {
		if err := server.StartServer(srv, logger); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server crash", "err", err)
			cancel()
		}
	}()

	// Wait for shutdown signal.
	<-ctx.Done()
	logger.Info("shutdown started")

	_ = server.ShutdownServer(srv, 10*time.Second, logger)
	if err := hub.Shutdown(5 * time.Second); err != nil {
		logger.Warn("hub shutdown", "err", err)
	}

	logger.Info("shutdown complete")
}
