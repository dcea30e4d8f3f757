// Package database provides the PostgreSQL connection factory and pool telemetry.
package database

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/rafaeljc/discountrules/internal/config"
	"github.com/rafaeljc/discountrules/internal/logger"
	"github.com/rafaeljc/discountrules/internal/observability"
)

// NewPostgresPool creates a pgx pool from cfg and waits until the database
// answers a ping, retrying with exponential backoff. The caller owns the pool.
func NewPostgresPool(ctx context.Context, cfg *config.DatabaseConfig) (*pgxpool.Pool, error) {
	if cfg == nil {
		return nil, fmt.Errorf("database config cannot be nil")
	}

	poolCfg, err := pgxpool.ParseConfig(cfg.ConnectionString())
	if err != nil {
		return nil, fmt.Errorf("failed to parse database config: %w", err)
	}

	poolCfg.MaxConns = cfg.MaxConns
	poolCfg.MinConns = cfg.MinConns
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	if cfg.MaxConnIdleTime > 0 {
		poolCfg.MaxConnIdleTime = cfg.MaxConnIdleTime
	}
	if cfg.ConnectTimeout > 0 {
		poolCfg.ConnConfig.ConnectTimeout = cfg.ConnectTimeout
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	maxRetries := max(cfg.PingMaxRetries, 1)
	backoff := cfg.PingBackoff
	timeout := cfg.ConnectTimeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}

	log := logger.FromContext(ctx)
	var lastErr error

	for attempt := 1; attempt <= maxRetries; attempt++ {
		pingCtx, cancel := context.WithTimeout(ctx, timeout)
		lastErr = pool.Ping(pingCtx)
		cancel()

		if lastErr == nil {
			log.Info("connected to postgres", slog.Int("attempt", attempt))
			return pool, nil
		}

		log.Warn("postgres ping failed", slog.Int("attempt", attempt), slog.Any("error", lastErr))
		if attempt < maxRetries {
			select {
			case <-ctx.Done():
				pool.Close()
				return nil, fmt.Errorf("database connection aborted: %w", ctx.Err())
			case <-time.After(backoff):
			}
			backoff *= 2
		}
	}

	pool.Close()
	return nil, fmt.Errorf("failed to ping database after %d retries: %w", maxRetries, lastErr)
}

// RunPoolMonitor publishes pgxpool statistics every interval until ctx is done.
func RunPoolMonitor(ctx context.Context, pool *pgxpool.Pool, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			recordPoolStats(pool.Stat())
		}
	}
}

func recordPoolStats(s *pgxpool.Stat) {
	observability.DatabasePoolConnections.WithLabelValues("max").Set(float64(s.MaxConns()))
	observability.DatabasePoolConnections.WithLabelValues("total").Set(float64(s.TotalConns()))
	observability.DatabasePoolConnections.WithLabelValues("idle").Set(float64(s.IdleConns()))
	observability.DatabasePoolConnections.WithLabelValues("in_use").Set(float64(s.AcquiredConns()))
	observability.DatabasePoolAcquireCount.Set(float64(s.AcquireCount()))
	observability.DatabasePoolAcquireDuration.Set(s.AcquireDuration().Seconds())
	observability.DatabasePoolWaitCount.Set(float64(s.EmptyAcquireCount()))
}
