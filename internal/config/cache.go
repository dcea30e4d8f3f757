package config

import "time"

// CacheConfig tunes the two settings cache layers used by the data plane.
type CacheConfig struct {
	// L1 is the in-process otter cache.
	L1Capacity int           `envconfig:"L1_CAPACITY" default:"10000" validate:"min=1"`
	L1TTL      time.Duration `envconfig:"L1_TTL" default:"30s" validate:"min=1s"`

	// L2 is Redis. Entries expire so a missed invalidation heals on its own.
	L2TTL time.Duration `envconfig:"L2_TTL" default:"10m" validate:"min=1s"`

	// InvalidationChannel is the Redis Pub/Sub channel carrying changed setting keys.
	InvalidationChannel string `envconfig:"INVALIDATION_CHANNEL" default:"discountrules:settings:invalidate" validate:"required"`
}
