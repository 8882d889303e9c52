package cmd

import (
	"log/slog"
	"os"
	"time"

	"github.com/ThreeDotsLabs/watermill"

	"github.com/webitel/im-chat-core/config"
	"github.com/webitel/im-chat-core/internal/backpressure"
	"github.com/webitel/im-chat-core/internal/cache"
	"github.com/webitel/im-chat-core/internal/cache/preload"
	"github.com/webitel/im-chat-core/internal/cache/strategy"
	"github.com/webitel/im-chat-core/internal/registry"
	"github.com/webitel/im-chat-core/internal/session"
	"github.com/webitel/im-chat-core/internal/stats"
	"github.com/webitel/im-chat-core/internal/threadpool"
)

// ProvideLogger builds the process-wide structured logger from the
// Logging section. Output goes to the configured file,
// falling back to stdout.
func ProvideLogger(cfg *config.Config) *slog.Logger {
	var level slog.Level
	switch cfg.Logging.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	out := os.Stdout
	if cfg.Logging.File != "" {
		if f, err := os.OpenFile(cfg.Logging.File, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644); err == nil {
			out = f
		}
	}

	logger := slog.New(slog.NewJSONHandler(out, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)
	return logger
}

// ProvideWatermillLogger bridges the broker plumbing onto slog.
func ProvideWatermillLogger(logger *slog.Logger) watermill.LoggerAdapter {
	return watermill.NewSlogLogger(logger)
}

func ProvideThreadManager(cfg *config.Config, logger *slog.Logger) *threadpool.Manager {
	return threadpool.NewManager(logger, nil)
}

func ProvideRegistry() *registry.Registry {
	return registry.New()
}

func ProvideSessions(cfg *config.Config, logger *slog.Logger) *session.Manager {
	ttl := cfg.Security.SessionTimeout
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return session.New(session.WithTTL(ttl), session.WithLogger(logger))
}

func ProvideBackpressure(cfg *config.Config, logger *slog.Logger) *backpressure.Controller {
	return backpressure.New(cfg.Server.MaxConnections, logger)
}

func ProvideStats() (*stats.Collector, *stats.Reporter) {
	collector := stats.NewCollector()
	return collector, stats.NewReporter(collector)
}

func ProvideStrategy() *strategy.Tracker {
	return strategy.New()
}

func ProvidePreloader(c *cache.Cache, pool *threadpool.Manager, logger *slog.Logger) *preload.Preloader {
	return preload.New(preload.Config{}, c, pool, logger)
}
