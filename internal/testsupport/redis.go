package testsupport

import (
	"context"
	"fmt"
	"strings"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/redis"

	"github.com/rafaeljc/discountrules/internal/cache"
	"github.com/rafaeljc/discountrules/internal/config"
)

// TestInvalidationChannel is the Pub/Sub channel used by test caches.
const TestInvalidationChannel = "discountrules:test:invalidate"

// RedisContainer holds references to the ephemeral Redis instance.
type RedisContainer struct {
	Container testcontainers.Container
	// Client is connected through cache.NewRedisClient.
	Client *goredis.Client
	// Settings is the L2 settings cache on top of Client.
	Settings *cache.RedisSettings
	Endpoint string
}

// Terminate closes the client and removes the container.
func (c *RedisContainer) Terminate(ctx context.Context) error {
	_ = c.Client.Close()
	return c.Container.Terminate(ctx)
}

// StartRedisContainer spins up a Redis 7-alpine container.
func StartRedisContainer(ctx context.Context) (*RedisContainer, error) {
	redisContainer, err := redis.Run(ctx, "redis:7-alpine")
	if err != nil {
		return nil, fmt.Errorf("failed to start redis container: %w", err)
	}

	endpoint, err := redisContainer.PortEndpoint(ctx, "6379/tcp", "")
	if err != nil {
		return nil, fmt.Errorf("failed to get redis endpoint: %w", err)
	}

	// endpoint is "host:port", e.g. "localhost:54321"
	host, port, _ := strings.Cut(endpoint, ":")

	testCfg := &config.RedisConfig{
		Host:           host,
		Port:           port,
		PoolSize:       10,
		DialTimeout:    5 * time.Second,
		ReadTimeout:    3 * time.Second,
		WriteTimeout:   3 * time.Second,
		PoolTimeout:    4 * time.Second,
		PingMaxRetries: 5,
		PingBackoff:    2 * time.Second,
	}
	client, err := cache.NewRedisClient(ctx, testCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create redis client: %w", err)
	}

	return &RedisContainer{
		Container: redisContainer,
		Client:    client,
		Settings:  cache.NewRedisSettings(client, time.Minute, TestInvalidationChannel),
		Endpoint:  endpoint,
	}, nil
}
