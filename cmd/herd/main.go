// Herd coordination server — runs the message bus, the operational stores,
// the agent tool API, and the operator chat bridge for one project.
package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/herd-sh/herd/pkg/api"
	"github.com/herd-sh/herd/pkg/config"
	"github.com/herd-sh/herd/pkg/runtime"
	"github.com/herd-sh/herd/pkg/version"
)

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// setupLogger installs the process-wide slog handler per the log config.
func setupLogger(cfg config.LogConfig) {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	} else {
		handler = slog.NewTextHandler(os.Stderr, opts)
	}
	slog.SetDefault(slog.New(handler))
}

func main() {
	configPath := flag.String("config",
		getEnv("HERD_CONFIG", ""),
		"Path to herd.yaml (defaults to ./herd.yaml when present)")
	flag.Parse()

	// Load .env before the config so HERD_* overrides land.
	if err := godotenv.Load(); err != nil {
		slog.Debug("No .env file, continuing with existing environment", "error", err)
	} else {
		slog.Info("Loaded environment from .env")
	}

	// 1. Configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}
	setupLogger(cfg.Log)

	slog.Info("Starting herd",
		"version", version.Full(),
		"project", cfg.ProjectPath,
		"addr", cfg.Addr())

	ctx := context.Background()

	// 2. Runtime: bus, stores, adapters, tools, sessions, janitor
	rt, err := runtime.New(ctx, cfg)
	if err != nil {
		slog.Error("Failed to start runtime", "error", err)
		os.Exit(1)
	}
	defer func() {
		if err := rt.Close(); err != nil {
			slog.Error("Error closing runtime", "error", err)
		}
	}()

	// 3. HTTP server (non-blocking)
	srv := api.NewServer(api.Deps{
		Config:   cfg,
		Tools:    rt.Tools,
		Adapters: rt.Adapters,
		Memory:   rt.Memory,
		Graph:    rt.Graph,
		Events:   rt.Events,
		Sessions: rt.Sessions,
	})

	errCh := make(chan error, 1)
	go func() {
		if err := srv.Start(); err != nil {
			errCh <- err
		}
	}()

	slog.Info("Herd started", "agents", len(rt.Roster.Known()), "tools", len(rt.Tools.Names()))

	// 4. Wait for shutdown signal or server error
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)

	select {
	case sig := <-sigCh:
		slog.Info("Shutdown signal received", "signal", sig)
	case err := <-errCh:
		slog.Error("Server error triggered shutdown", "error", err)
	}

	// 5. Graceful shutdown: stop accepting requests, then close the runtime
	// (the deferred Close stops the janitor and session manager too).
	shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("HTTP server shutdown error", "error", err)
	}

	slog.Info("Shutdown complete")
}
