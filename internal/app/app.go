// Package app holds the wiring shared by the service binaries: configuration,
// logging, connections to PostgreSQL and Redis, and the layered settings store.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/rafaeljc/discountrules/internal/cache"
	"github.com/rafaeljc/discountrules/internal/config"
	"github.com/rafaeljc/discountrules/internal/database"
	"github.com/rafaeljc/discountrules/internal/logger"
	"github.com/rafaeljc/discountrules/internal/observability"
	"github.com/rafaeljc/discountrules/internal/settings"
	"github.com/rafaeljc/discountrules/internal/store"
)

// Infra is the set of long-lived dependencies a binary runs on.
type Infra struct {
	Config *config.Config
	Logger *slog.Logger
	DB     *pgxpool.Pool
	Redis  *redis.Client
}

// Bootstrap loads configuration, builds the logger, connects to PostgreSQL
// and Redis and starts their pool monitors (stopped when ctx is done).
// serviceName overrides the configured app name when the default is in use.
func Bootstrap(ctx context.Context, serviceName string) (*Infra, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	if cfg.App.Name == "discountrules" && serviceName != "" {
		cfg.App.Name = serviceName
	}

	log := logger.New(&cfg.App)
	slog.SetDefault(log)
	cfg.LogConfig(log)

	ctx = logger.WithContext(ctx, log)

	pool, err := database.NewPostgresPool(ctx, &cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to postgres: %w", err)
	}

	client, err := cache.NewRedisClient(ctx, &cfg.Redis)
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	go database.RunPoolMonitor(ctx, pool, cfg.Observability.PoolMonitorInterval)
	go cache.RunPoolMonitor(ctx, client, cfg.Observability.PoolMonitorInterval)

	return &Infra{Config: cfg, Logger: log, DB: pool, Redis: client}, nil
}

// Close releases the connections.
func (i *Infra) Close() {
	if err := i.Redis.Close(); err != nil {
		i.Logger.Warn("failed to close redis client", slog.String("error", err.Error()))
	}
	i.DB.Close()
}

// Checkers returns the readiness checks for the connections.
func (i *Infra) Checkers() []observability.Checker {
	return []observability.Checker{
		database.NewHealthChecker(i.DB),
		cache.NewHealthChecker(i.Redis),
	}
}

// RemoteSettings returns the Redis L2 settings cache.
func (i *Infra) RemoteSettings() *cache.RedisSettings {
	return cache.NewRedisSettings(i.Redis, i.Config.Cache.L2TTL, i.Config.Cache.InvalidationChannel)
}

// Settings builds the read-through settings store: otter L1, Redis L2 and
// PostgreSQL as the source of truth. It also starts the L1 metrics collector
// and the invalidation subscriber, both stopped when ctx is done.
func (i *Infra) Settings(ctx context.Context) (*settings.Cached, error) {
	l1, err := cache.NewMemoryCache(i.Config.Cache.L1Capacity, i.Config.Cache.L1TTL)
	if err != nil {
		return nil, fmt.Errorf("failed to build l1 cache: %w", err)
	}

	source := store.NewPostgresSettings(i.DB)
	cached := settings.NewCached(source, l1, i.RemoteSettings(), i.Logger)

	go l1.RunMetricsCollector(ctx, i.Config.Observability.PoolMonitorInterval)
	go cache.NewSubscriber(i.Redis, i.Config.Cache.InvalidationChannel, cached, i.Logger).Run(ctx)
	go func() {
		<-ctx.Done()
		l1.Close()
	}()

	return cached, nil
}

// SignalContext returns a context cancelled on SIGINT or SIGTERM.
func SignalContext(parent context.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
}
