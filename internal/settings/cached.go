package settings

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/rafaeljc/discountrules/internal/logger"
	"github.com/rafaeljc/discountrules/internal/observability"
	"github.com/rafaeljc/discountrules/internal/validation"
)

// Entry is a cached lookup result. Found=false entries cache absence so that
// unconfigured requirements do not hit the source on every check.
type Entry struct {
	Value string
	Found bool
}

// Layer is the in-process (L1) cache.
type Layer interface {
	Get(key string) (Entry, bool)
	Set(key string, e Entry)
	Del(key string)
	Clear()
}

// Remote is the shared (L2) cache.
//
// Filling L2 from the source is a two-step claim: Reserve before reading the
// source, Commit with the returned token afterwards. Invalidate drops the
// claim, so a fill that started before a write is never stored.
type Remote interface {
	// GetSetting reports hit=false when the key is not cached.
	GetSetting(ctx context.Context, key string) (e Entry, hit bool, err error)
	// Reserve claims the right to fill key. token is empty when another
	// fill is already in flight.
	Reserve(ctx context.Context, key string) (token string, err error)
	// Commit stores e only if the claim identified by token is still held.
	Commit(ctx context.Context, key, token string, e Entry) (stored bool, err error)
	// Invalidate removes key and its fill claim from L2 and notifies every
	// L1 subscriber.
	Invalidate(ctx context.Context, key string) error
}

// Evicter drops L1 entries on behalf of writes made elsewhere.
type Evicter interface {
	Evict(key string)
	EvictAll()
}

var (
	_ ReadWriter = (*Cached)(nil)
	_ Evicter    = (*Cached)(nil)
)

// Cached is a read-through settings store: L1, then L2, then the source.
// Either cache layer may be nil. L2 failures degrade to the source; source
// failures are returned to the caller.
//
// A lookup that overlaps a write or an eviction is returned but not cached.
type Cached struct {
	source ReadWriter
	l1     Layer
	l2     Remote
	log    *slog.Logger

	// mu guards generation together with L1 fills and evictions.
	mu         sync.Mutex
	generation uint64
}

// NewCached wraps source with the given cache layers.
func NewCached(source ReadWriter, l1 Layer, l2 Remote, log *slog.Logger) *Cached {
	validation.AssertNotNilInterface(source, "settings source")
	if log == nil {
		log = logger.Discard()
	}
	return &Cached{source: source, l1: l1, l2: l2, log: log}
}

func (c *Cached) Get(ctx context.Context, key string) (string, bool, error) {
	if c.l1 != nil {
		if e, ok := c.l1.Get(key); ok {
			observability.SettingsLookupsTotal.WithLabelValues("l1").Inc()
			return e.Value, e.Found, nil
		}
	}

	gen := c.currentGeneration()

	l2Up := c.l2 != nil
	if l2Up {
		e, hit, err := c.l2.GetSetting(ctx, key)
		switch {
		case err != nil:
			l2Up = false
			observability.SettingsRemoteErrors.Inc()
			c.log.Warn("l2 settings lookup failed, falling back to source",
				slog.String("key", key),
				slog.String("error", err.Error()),
			)
		case hit:
			observability.SettingsLookupsTotal.WithLabelValues("l2").Inc()
			c.fill(key, e, gen)
			return e.Value, e.Found, nil
		}
	}

	var token string
	if l2Up {
		var err error
		if token, err = c.l2.Reserve(ctx, key); err != nil {
			observability.SettingsRemoteErrors.Inc()
			c.log.Warn("failed to reserve l2 settings fill",
				slog.String("key", key),
				slog.String("error", err.Error()),
			)
		}
	}

	value, found, err := c.source.Get(ctx, key)
	if err != nil {
		return "", false, fmt.Errorf("settings source: %w", err)
	}
	observability.SettingsLookupsTotal.WithLabelValues("source").Inc()

	e := Entry{Value: value, Found: found}

	// With a reachable L2, only a committed claim proves no replica wrote
	// the key while the source was read.
	if l2Up {
		if token == "" || !c.commit(ctx, key, token, e) {
			return value, found, nil
		}
	}
	c.fill(key, e, gen)

	return value, found, nil
}

func (c *Cached) Set(ctx context.Context, key, value string) error {
	if err := c.source.Set(ctx, key, value); err != nil {
		return err
	}
	c.invalidate(ctx, key)
	return nil
}

func (c *Cached) Delete(ctx context.Context, key string) error {
	if err := c.source.Delete(ctx, key); err != nil {
		return err
	}
	c.invalidate(ctx, key)
	return nil
}

// Evict drops key from L1 and discards any lookup of it still in flight.
func (c *Cached) Evict(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.generation++
	if c.l1 != nil {
		c.l1.Del(key)
	}
}

// EvictAll empties L1, e.g. after invalidations may have been missed.
func (c *Cached) EvictAll() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.generation++
	if c.l1 != nil {
		c.l1.Clear()
	}
}

func (c *Cached) currentGeneration() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.generation
}

// fill stores e in L1 unless an eviction happened since gen was taken.
func (c *Cached) fill(key string, e Entry, gen uint64) {
	if c.l1 == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.generation != gen {
		observability.SettingsStaleFillsDropped.Inc()
		return
	}
	c.l1.Set(key, e)
}

func (c *Cached) commit(ctx context.Context, key, token string, e Entry) bool {
	stored, err := c.l2.Commit(ctx, key, token, e)
	if err != nil {
		observability.SettingsRemoteErrors.Inc()
		c.log.Warn("failed to populate l2 settings cache",
			slog.String("key", key),
			slog.String("error", err.Error()),
		)
		return false
	}
	if !stored {
		observability.SettingsStaleFillsDropped.Inc()
		c.log.Debug("settings fill superseded by a write", slog.String("key", key))
	}
	return stored
}

// invalidate runs after the source write succeeded; cache failures only log,
// stale entries expire through their TTL.
func (c *Cached) invalidate(ctx context.Context, key string) {
	c.Evict(key)
	if c.l2 != nil {
		if err := c.l2.Invalidate(ctx, key); err != nil {
			c.log.Warn("failed to invalidate l2 settings cache",
				slog.String("key", key),
				slog.String("error", err.Error()),
			)
		}
	}
}
