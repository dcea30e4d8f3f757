package cache

import (
	"context"
	"crypto/tls"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/rafaeljc/discountrules/internal/config"
	"github.com/rafaeljc/discountrules/internal/logger"
	"github.com/rafaeljc/discountrules/internal/observability"
)

// NewRedisClient initializes a Redis client from cfg and blocks until the
// server answers a PING, retrying with exponential backoff.
func NewRedisClient(ctx context.Context, cfg *config.RedisConfig) (*redis.Client, error) {
	if cfg == nil {
		return nil, fmt.Errorf("redis config cannot be nil")
	}

	opts, err := clientOptions(cfg)
	if err != nil {
		return nil, err
	}

	client := redis.NewClient(opts)

	maxRetries := cfg.PingMaxRetries
	if maxRetries < 1 {
		maxRetries = 1
	}
	backoff := cfg.PingBackoff
	timeout := opts.DialTimeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}

	var lastErr error
	log := logger.FromContext(ctx)

	for attempt := 1; attempt <= maxRetries; attempt++ {
		log.Info("redis ping attempt", slog.Int("attempt", attempt), slog.Int("max_retries", maxRetries))

		pingCtx, cancel := context.WithTimeout(ctx, timeout)
		pingErr := client.Ping(pingCtx).Err()
		cancel()

		if pingErr == nil {
			log.Info("redis ping successful", slog.Int("attempt", attempt))
			return client, nil
		}

		log.Warn("redis ping failed", slog.Int("attempt", attempt), slog.Any("error", pingErr))
		lastErr = pingErr
		if attempt < maxRetries {
			select {
			case <-ctx.Done():
				_ = client.Close()
				return nil, fmt.Errorf("redis connection aborted: %w", ctx.Err())
			case <-time.After(backoff):
			}
			backoff *= 2
		}
	}

	_ = client.Close()
	return nil, fmt.Errorf("failed to connect to redis after %d retries: %w", maxRetries, lastErr)
}

func clientOptions(cfg *config.RedisConfig) (*redis.Options, error) {
	var opts *redis.Options
	if cfg.URL != "" {
		parsed, err := redis.ParseURL(cfg.URL)
		if err != nil {
			return nil, fmt.Errorf("invalid redis URL: %w", err)
		}
		opts = parsed
	} else {
		opts = &redis.Options{
			Addr:     cfg.Address(),
			Password: cfg.Password,
			DB:       cfg.DB,
		}
		if cfg.TLSEnabled {
			opts.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
		}
	}

	opts.DialTimeout = cfg.DialTimeout
	opts.ReadTimeout = cfg.ReadTimeout
	opts.WriteTimeout = cfg.WriteTimeout
	opts.PoolSize = cfg.PoolSize
	opts.MinIdleConns = cfg.MinIdleConns
	opts.PoolTimeout = cfg.PoolTimeout
	opts.MaxRetries = cfg.MaxRetries
	opts.MinRetryBackoff = cfg.MinRetryBackoff
	opts.MaxRetryBackoff = cfg.MaxRetryBackoff

	return opts, nil
}

// RunPoolMonitor publishes go-redis pool statistics every interval until ctx is done.
func RunPoolMonitor(ctx context.Context, client *redis.Client, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			stats := client.PoolStats()
			observability.RedisPoolConnections.WithLabelValues("total").Set(float64(stats.TotalConns))
			observability.RedisPoolConnections.WithLabelValues("idle").Set(float64(stats.IdleConns))
			observability.RedisPoolConnections.WithLabelValues("stale").Set(float64(stats.StaleConns))
			observability.RedisPoolHits.Set(float64(stats.Hits))
			observability.RedisPoolMisses.Set(float64(stats.Misses))
			observability.RedisPoolTimeouts.Set(float64(stats.Timeouts))
		}
	}
}
