package config

import "time"

// SyncerConfig contains configuration for the worker that hydrates the Redis
// settings cache from PostgreSQL.
type SyncerConfig struct {
	Enabled  bool          `envconfig:"ENABLED" default:"true"`
	Interval time.Duration `envconfig:"INTERVAL" default:"30s" validate:"min=1s"`
	// Prefix restricts hydration to setting keys owned by requirement rules.
	Prefix string `envconfig:"PREFIX" default:"DiscountRequirement."`
}
