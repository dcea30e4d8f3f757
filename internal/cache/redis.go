// Package cache provides the caching layers for settings lookups: the Redis
// L2 shared by every replica, the in-process otter L1, and the Pub/Sub
// listener keeping L1 coherent with writes.
package cache

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/rafaeljc/discountrules/internal/settings"
	"github.com/rafaeljc/discountrules/internal/validation"
)

// KeyPrefix is the namespace used for all settings keys in Redis.
// Example: "settings:DiscountRequirement.Store-5"
const KeyPrefix = "settings"

// FillPrefix namespaces the short-lived claims taken while a replica reads
// a setting from the source.
const FillPrefix = "settings-fill"

// fillTTL bounds a fill claim so a crashed reader does not block caching.
const fillTTL = 5 * time.Second

// Entries are stored as "<flag>|<value>" where flag is 1 for a stored
// setting and 0 for a cached absence.
const (
	foundMarker  = "1|"
	absentMarker = "0|"
)

var _ settings.Remote = (*RedisSettings)(nil)

// RedisSettings is the L2 settings cache.
type RedisSettings struct {
	client  *redis.Client
	ttl     time.Duration
	channel string
}

// NewRedisSettings wraps client. Entries expire after ttl (0 disables expiry)
// and invalidations are published on channel.
func NewRedisSettings(client *redis.Client, ttl time.Duration, channel string) *RedisSettings {
	validation.AssertNotNil(client, "redis client")

	return &RedisSettings{client: client, ttl: ttl, channel: channel}
}

// GetSetting reads a cached lookup. hit is false when nothing is cached.
func (c *RedisSettings) GetSetting(ctx context.Context, key string) (settings.Entry, bool, error) {
	raw, err := c.client.Get(ctx, redisKey(key)).Result()
	if errors.Is(err, redis.Nil) {
		return settings.Entry{}, false, nil
	}
	if err != nil {
		return settings.Entry{}, false, fmt.Errorf("failed to get setting %q from cache: %w", key, err)
	}

	e, ok := decodeEntry(raw)
	if !ok {
		// Unknown format: treat as a miss so the source repopulates it.
		return settings.Entry{}, false, nil
	}
	return e, true, nil
}

// Reserve claims the fill of key for fillTTL. The token is empty when
// another replica already holds the claim.
func (c *RedisSettings) Reserve(ctx context.Context, key string) (string, error) {
	token := uuid.NewString()
	ok, err := c.client.SetNX(ctx, fillKey(key), token, fillTTL).Result()
	if err != nil {
		return "", fmt.Errorf("failed to reserve fill of setting %q: %w", key, err)
	}
	if !ok {
		return "", nil
	}
	return token, nil
}

// commitScript stores the entry and releases the claim only while the claim
// still carries the caller's token.
//
// KEYS[1] entry key, KEYS[2] fill key; ARGV[1] token, ARGV[2] entry, ARGV[3] ttl in ms.
var commitScript = redis.NewScript(`
if redis.call("GET", KEYS[2]) ~= ARGV[1] then
	return 0
end
redis.call("DEL", KEYS[2])
if tonumber(ARGV[3]) > 0 then
	redis.call("SET", KEYS[1], ARGV[2], "PX", ARGV[3])
else
	redis.call("SET", KEYS[1], ARGV[2])
end
return 1
`)

// Commit caches a lookup result if the claim taken by Reserve was not
// dropped by an Invalidate in the meantime.
func (c *RedisSettings) Commit(ctx context.Context, key, token string, e settings.Entry) (bool, error) {
	n, err := commitScript.Run(ctx, c.client,
		[]string{redisKey(key), fillKey(key)},
		token, encodeEntry(e), c.ttl.Milliseconds(),
	).Int()
	if err != nil {
		return false, fmt.Errorf("failed to set setting %q in cache: %w", key, err)
	}
	return n == 1, nil
}

// Invalidate deletes the L2 entry and any fill claim, then publishes key so
// subscribers evict their L1. The commands go out in one transaction.
func (c *RedisSettings) Invalidate(ctx context.Context, key string) error {
	_, err := c.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, redisKey(key), fillKey(key))
		pipe.Publish(ctx, c.channel, key)
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to invalidate setting %q: %w", key, err)
	}
	return nil
}

// Hydrate writes every value as a found entry in one pipeline.
func (c *RedisSettings) Hydrate(ctx context.Context, values map[string]string) error {
	if len(values) == 0 {
		return nil
	}

	_, err := c.client.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		for k, v := range values {
			pipe.Set(ctx, redisKey(k), encodeEntry(settings.Entry{Value: v, Found: true}), c.ttl)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to hydrate %d settings: %w", len(values), err)
	}
	return nil
}

// Channel returns the invalidation channel name.
func (c *RedisSettings) Channel() string {
	return c.channel
}

func redisKey(key string) string {
	return KeyPrefix + ":" + key
}

func fillKey(key string) string {
	return FillPrefix + ":" + key
}

func encodeEntry(e settings.Entry) string {
	if !e.Found {
		return absentMarker
	}
	return foundMarker + e.Value
}

func decodeEntry(raw string) (settings.Entry, bool) {
	switch {
	case strings.HasPrefix(raw, foundMarker):
		return settings.Entry{Value: raw[len(foundMarker):], Found: true}, true
	case raw == absentMarker:
		return settings.Entry{}, true
	default:
		return settings.Entry{}, false
	}
}
