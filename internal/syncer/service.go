// Package syncer implements the background worker that copies rule settings
// from the source of truth (PostgreSQL) into the shared L2 cache (Redis), so
// data plane replicas start warm and converge after missed invalidations.
package syncer

import (
	"context"
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"time"

	"github.com/rafaeljc/discountrules/internal/config"
	"github.com/rafaeljc/discountrules/internal/observability"
	"github.com/rafaeljc/discountrules/internal/settings"
	"github.com/rafaeljc/discountrules/internal/validation"
)

// defaultBatchSize bounds the number of keys written per pipeline.
const defaultBatchSize = 500

// Hydrator receives settings values in bulk.
type Hydrator interface {
	Hydrate(ctx context.Context, values map[string]string) error
}

// Service runs hydration passes on a fixed interval.
type Service struct {
	logger    *slog.Logger
	config    config.SyncerConfig
	source    settings.Lister
	target    Hydrator
	batchSize int
}

// New creates a syncer. Intervals below one second fall back to 10s.
func New(logger *slog.Logger, cfg config.SyncerConfig, source settings.Lister, target Hydrator) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	validation.AssertNotNilInterface(source, "settings source")
	validation.AssertNotNilInterface(target, "hydration target")

	if cfg.Interval < time.Second {
		cfg.Interval = 10 * time.Second
	}

	return &Service{
		logger:    logger,
		config:    cfg,
		source:    source,
		target:    target,
		batchSize: defaultBatchSize,
	}
}

// Run hydrates once immediately and then on every tick. It blocks until ctx
// is cancelled. A failed pass is logged and retried on the next tick.
func (s *Service) Run(ctx context.Context) error {
	s.logger.Info("starting syncer service",
		slog.String("interval", s.config.Interval.String()),
		slog.String("prefix", s.config.Prefix),
	)

	ticker := time.NewTicker(s.config.Interval)
	defer ticker.Stop()

	if _, err := s.RunOnce(ctx); err != nil {
		s.logger.Error("initial sync failed", slog.String("error", err.Error()))
	}

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("syncer service stopping")
			return nil
		case <-ticker.C:
			if _, err := s.RunOnce(ctx); err != nil {
				s.logger.Error("sync cycle failed", slog.String("error", err.Error()))
			}
		}
	}
}

// Report summarizes one hydration pass.
type Report struct {
	Listed       int
	Hydrated     int
	FailedChunks int
}

// RunOnce performs a single pass. Listing failures abort the pass; a failed
// chunk is logged and counted while the remaining chunks are still written.
func (s *Service) RunOnce(ctx context.Context) (Report, error) {
	start := time.Now()
	defer func() {
		observability.SyncerRunDuration.Observe(time.Since(start).Seconds())
	}()

	values, err := s.source.List(ctx, s.config.Prefix)
	if err != nil {
		observability.SyncerRunsTotal.WithLabelValues("fail").Inc()
		return Report{}, fmt.Errorf("list settings: %w", err)
	}

	report := Report{Listed: len(values)}

	// Sorted so chunk boundaries are stable between runs.
	keys := slices.Sorted(maps.Keys(values))
	for chunk := range slices.Chunk(keys, s.batchSize) {
		batch := make(map[string]string, len(chunk))
		for _, k := range chunk {
			batch[k] = values[k]
		}

		if err := s.target.Hydrate(ctx, batch); err != nil {
			s.logger.Warn("failed to hydrate chunk",
				slog.String("first_key", chunk[0]),
				slog.Int("size", len(chunk)),
				slog.String("error", err.Error()),
			)
			report.FailedChunks++
			continue
		}
		report.Hydrated += len(chunk)
	}

	status := "success"
	switch {
	case report.FailedChunks > 0 && report.Hydrated == 0:
		status = "fail"
	case report.FailedChunks > 0:
		status = "partial"
	}
	observability.SyncerRunsTotal.WithLabelValues(status).Inc()
	observability.SyncerKeysHydrated.Set(float64(report.Hydrated))

	if report.Listed > 0 {
		s.logger.Info("sync cycle completed",
			slog.Int("synced", report.Hydrated),
			slog.Int("failed_chunks", report.FailedChunks),
			slog.String("duration", time.Since(start).String()),
		)
	}
	return report, nil
}
