package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/vinhtan/academy/internal/activity"
	"github.com/vinhtan/academy/internal/content"
	"github.com/vinhtan/academy/internal/identity"
	"github.com/vinhtan/academy/internal/platform/cache"
	"github.com/vinhtan/academy/internal/platform/config"
	"github.com/vinhtan/academy/internal/platform/database"
	"github.com/vinhtan/academy/internal/progress"
	"github.com/vinhtan/academy/internal/server"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	slog.SetDefault(newLogger(cfg.Log))

	if err := cfg.Validate(); err != nil {
		slog.Error("invalid config", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	loader, err := content.NewLoader(cfg.ContentPath)
	if err != nil {
		slog.Error("failed to load content", "error", err, "path", cfg.ContentPath)
		os.Exit(1)
	}
	slog.Info("content loaded", "courses", len(loader.AllCourses()))

	var checks []server.HealthChecker

	// Stores default to memory; PostgreSQL takes over when configured.
	var (
		progressStore progress.Store    = progress.NewMemoryStore()
		recorder      activity.Recorder = activity.NewMemoryRecorder()
		users         identity.Store    = identity.NewMemoryStore()
	)
	if cfg.Database.Enabled {
		db, err := database.New(ctx, cfg.Database.URL, cfg.Database.MaxConns, cfg.Database.MinConns)
		if err != nil {
			slog.Error("failed to connect to database", "error", err)
			os.Exit(1)
		}
		defer db.Close()
		if err := db.Migrate(ctx); err != nil {
			slog.Error("failed to migrate database", "error", err)
			os.Exit(1)
		}
		checks = append(checks, db)

		if progressStore, err = progress.NewPostgresStore(db.Pool); err != nil {
			slog.Error("failed to create progress store", "error", err)
			os.Exit(1)
		}
		recorder = activity.NewPostgresRecorder(db.Pool)
		if users, err = identity.NewPostgresStore(db.Pool); err != nil {
			slog.Error("failed to create user store", "error", err)
			os.Exit(1)
		}
		slog.Info("database connected")
	}

	var c *cache.Cache
	if cfg.Cache.Enabled {
		c, err = cache.New(ctx, cfg.Cache.URL)
		if err != nil {
			slog.Error("failed to connect to cache", "error", err)
			os.Exit(1)
		}
		defer c.Close()
		checks = append(checks, c)
		slog.Info("cache connected")
	}

	if cfg.Admin.Username != "" {
		id, err := identity.EnsureAdmin(users, cfg.Admin.Username, cfg.Admin.Password)
		if err != nil {
			slog.Error("failed to seed admin account", "error", err)
			os.Exit(1)
		}
		slog.Info("admin account ready", "user_id", id, "username", cfg.Admin.Username)
	}

	svc := server.NewService(
		loader,
		progress.NewManager(progressStore, loader),
		recorder,
		users,
		c,
		cfg.Quiz.PassingScore,
		cfg.Quiz.MinutesPerQuestion,
	)

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      server.New(svc, checks...),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		slog.Info("server starting", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	<-ctx.Done()
	slog.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown error", "error", err)
	}
}

// newLogger builds the process logger from config.
func newLogger(cfg config.LogConfig) *slog.Logger {
	var level slog.Level
	switch strings.ToLower(cfg.Level) {
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
	if strings.EqualFold(cfg.Format, "text") {
		return slog.New(slog.NewTextHandler(os.Stdout, opts))
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, opts))
}
