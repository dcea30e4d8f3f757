package cache

import (
	"context"
	"time"

	"github.com/maypok86/otter"

	"github.com/rafaeljc/discountrules/internal/observability"
	"github.com/rafaeljc/discountrules/internal/settings"
)

var _ settings.Layer = (*MemoryCache)(nil)

// MemoryCache is the L1 settings cache, backed by otter (S3-FIFO).
type MemoryCache struct {
	store otter.Cache[string, settings.Entry]
}

// NewMemoryCache builds an L1 cache.
// capacity: Max number of items (hard cap to prevent OOM).
// ttl: Time-To-Live for items (bounds staleness if an invalidation is missed).
func NewMemoryCache(capacity int, ttl time.Duration) (*MemoryCache, error) {
	builder, err := otter.NewBuilder[string, settings.Entry](capacity)
	if err != nil {
		return nil, err
	}

	c, err := builder.WithTTL(ttl).CollectStats().Build()
	if err != nil {
		return nil, err
	}

	return &MemoryCache{store: c}, nil
}

// Get retrieves a cached lookup.
func (c *MemoryCache) Get(key string) (settings.Entry, bool) {
	e, ok := c.store.Get(key)
	if ok {
		observability.SettingsCacheHits.Inc()
	} else {
		observability.SettingsCacheMisses.Inc()
	}
	return e, ok
}

// Set stores a lookup result; the configured TTL applies.
func (c *MemoryCache) Set(key string, e settings.Entry) {
	c.store.Set(key, e)
}

// Del removes key. Used by the invalidation subscriber.
func (c *MemoryCache) Del(key string) {
	c.store.Delete(key)
}

// Clear drops every entry, e.g. after the invalidation stream was interrupted.
func (c *MemoryCache) Clear() {
	c.store.Clear()
}

// Close stops the cache's background goroutines.
func (c *MemoryCache) Close() {
	c.store.Close()
}

// RunMetricsCollector exports otter's internal statistics every interval
// until ctx is done. Otter counters are cumulative, so only deltas are added.
func (c *MemoryCache) RunMetricsCollector(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	var lastEvicted, lastRejected int64

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			stats := c.store.Stats()

			observability.SettingsCacheUsage.Set(float64(c.store.Size()))

			if evicted := stats.EvictedCount(); evicted > lastEvicted {
				observability.SettingsCacheEvictions.Add(float64(evicted - lastEvicted))
				lastEvicted = evicted
			}
			if rejected := stats.RejectedSets(); rejected > lastRejected {
				observability.SettingsCacheDropped.Add(float64(rejected - lastRejected))
				lastRejected = rejected
			}
		}
	}
}
