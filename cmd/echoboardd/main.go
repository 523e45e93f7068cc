package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/echoboard/echoboard/internal/config"
	"github.com/echoboard/echoboard/internal/directory"
	"github.com/echoboard/echoboard/internal/dynamo"
	"github.com/echoboard/echoboard/internal/events"
	"github.com/echoboard/echoboard/internal/server"
	"github.com/echoboard/echoboard/internal/token"
)

func main() {
	// Setup signal handling for graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	// Setup logging
	setupLogging(cfg)

	// Connect to the key-value backend
	var store dynamo.Store
	switch cfg.Backend {
	case config.BackendMemory:
		store = dynamo.NewMemory()
		slog.Info("using in-memory backend")
	default:
		db, err := dynamo.Connect(ctx, cfg.DynamoRegion, cfg.DynamoEndpoint)
		if err != nil {
			slog.Error("failed to connect to DynamoDB", "error", err)
			os.Exit(1)
		}
		store = db
		slog.Info("connected to DynamoDB", "region", cfg.DynamoRegion)
	}

	// Connect to NATS (optional)
	var nc *events.Client
	if cfg.NatsURL != "" {
		nc, err = events.Connect(cfg.NatsURL)
		if err != nil {
			slog.Error("failed to connect to NATS", "error", err)
			os.Exit(1)
		}
		defer nc.Close()
		slog.Info("connected to NATS")

		if err := nc.EnsureStream(ctx); err != nil {
			slog.Error("failed to setup JetStream stream", "error", err)
			os.Exit(1)
		}
	}

	caches := directory.NewCaches(directory.CacheOptions{
		SlugSize:    cfg.SlugCacheSize,
		SlugTTL:     cfg.SlugCacheTTL,
		ProjectSize: cfg.ProjectCacheSize,
		ProjectTTL:  cfg.ProjectCacheTTL,
	})
	dir := directory.New(store, caches, directory.Options{
		ProjectTable:         cfg.ProjectTable,
		SlugTable:            cfg.SlugTable,
		SlugByProjectIndex:   cfg.SlugByProjectIndex,
		SlugCacheRead:        cfg.SlugCacheRead,
		ProjectCacheRead:     cfg.ProjectCacheRead,
		MigrationGracePeriod: cfg.MigrationGracePeriod,
	})
	tokens := token.New(store, cfg.TokenTable, cfg.TokenSize, cfg.TokenExpiry)

	// Create and start HTTP server
	srv := server.New(cfg, store, dir, tokens, nc)

	go func() {
		slog.Info("starting server", "port", cfg.Port)
		if err := srv.Start(); err != nil {
			slog.Error("server error", "error", err)
		}
	}()

	// Wait for shutdown signal
	<-ctx.Done()
	slog.Info("shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown error", "error", err)
	}

	slog.Info("shutdown complete")
}

func setupLogging(cfg *config.Config) {
	var handler slog.Handler

	opts := &slog.HandlerOptions{}
	switch cfg.LogLevel {
	case "debug":
		opts.Level = slog.LevelDebug
	case "warn":
		opts.Level = slog.LevelWarn
	case "error":
		opts.Level = slog.LevelError
	default:
		opts.Level = slog.LevelInfo
	}

	if cfg.LogFormat == "text" {
		handler = slog.NewTextHandler(os.Stdout, opts)
	} else {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	}

	slog.SetDefault(slog.New(handler))
}
