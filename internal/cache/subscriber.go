package cache

import (
	"context"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/rafaeljc/discountrules/internal/observability"
	"github.com/rafaeljc/discountrules/internal/settings"
	"github.com/rafaeljc/discountrules/internal/validation"
)

// resubscribeDelay is the pause before reconnecting a dropped subscription.
const resubscribeDelay = time.Second

// Subscriber evicts L1 entries when another replica writes a setting.
type Subscriber struct {
	client  *redis.Client
	channel string
	target  settings.Evicter
	logger  *slog.Logger
}

// NewSubscriber evicts from target, normally the replica's settings.Cached.
func NewSubscriber(client *redis.Client, channel string, target settings.Evicter, logger *slog.Logger) *Subscriber {
	validation.AssertNotNil(client, "redis client")
	validation.AssertNotNilInterface(target, "eviction target")
	if logger == nil {
		logger = slog.Default()
	}

	return &Subscriber{client: client, channel: channel, target: target, logger: logger}
}

// Run blocks until ctx is done, resubscribing whenever the connection drops.
// Each message payload is a settings key. After a reconnect the whole L1 is
// cleared, since invalidations may have been missed.
func (s *Subscriber) Run(ctx context.Context) {
	first := true
	for {
		if !first {
			s.target.EvictAll()
		}
		first = false

		s.listen(ctx)

		select {
		case <-ctx.Done():
			s.logger.Info("invalidation subscriber stopped")
			return
		case <-time.After(resubscribeDelay):
			s.logger.Warn("invalidation subscription lost, resubscribing", slog.String("channel", s.channel))
		}
	}
}

func (s *Subscriber) listen(ctx context.Context) {
	pubsub := s.client.Subscribe(ctx, s.channel)
	defer pubsub.Close()

	if _, err := pubsub.Receive(ctx); err != nil {
		if ctx.Err() == nil {
			s.logger.Error("failed to subscribe to invalidations",
				slog.String("channel", s.channel),
				slog.String("error", err.Error()),
			)
		}
		return
	}
	s.logger.Info("listening for settings invalidations", slog.String("channel", s.channel))

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			s.target.Evict(msg.Payload)
			observability.SettingsInvalidations.Inc()
			s.logger.Debug("settings cache entry invalidated", slog.String("key", msg.Payload))
		}
	}
}
