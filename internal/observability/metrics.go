package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// NOTE: All metrics are registered globally on the default registry, so every
// binary exposes the full set (unused ones stay at zero).

// namespace defines the global prefix for all metrics (e.g., discountrules_...).
const namespace = "discountrules"

// lowLatencyBuckets covers the hot evaluation path, where default buckets
// (starting at 5ms) are too coarse. Range: 0.1ms to 500ms.
var lowLatencyBuckets = []float64{.0001, .0005, .001, .002, .005, .010, .025, .050, .100, .500}

var (
	// -------------------------------------------------------------------------
	// REQUIREMENT RULES
	// -------------------------------------------------------------------------

	// RequirementChecksTotal counts rule evaluations by outcome.
	// Metric: discountrules_requirement_checks_total
	RequirementChecksTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "requirement",
		Name:      "checks_total",
		Help:      "Total requirement checks by rule and outcome",
	}, []string{"rule", "outcome"}) // valid, invalid, error

	// RequirementCheckDuration measures rule evaluation latency, settings lookup included.
	// Metric: discountrules_requirement_check_duration_seconds
	RequirementCheckDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "requirement",
		Name:      "check_duration_seconds",
		Help:      "Time taken to evaluate a requirement rule",
		Buckets:   lowLatencyBuckets,
	}, []string{"rule"})

	// -------------------------------------------------------------------------
	// CONTROL API (HTTP)
	// -------------------------------------------------------------------------

	// ControlAPIReqDuration measures the latency of HTTP requests.
	// Metric: discountrules_control_api_http_handling_seconds
	ControlAPIReqDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "control_api",
		Name:      "http_handling_seconds",
		Help:      "Time taken to handle HTTP requests in the control API",
		Buckets:   prometheus.DefBuckets,
	}, []string{"method", "path"})

	// ControlAPIReqTotal counts the total number of HTTP requests.
	// Metric: discountrules_control_api_http_requests_total
	ControlAPIReqTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "control_api",
		Name:      "http_requests_total",
		Help:      "Total HTTP requests in the control API",
	}, []string{"method", "path", "code"})

	// -------------------------------------------------------------------------
	// DATA API (gRPC)
	// -------------------------------------------------------------------------

	// DataAPIGrpcDuration measures the latency of gRPC requests.
	// Metric: discountrules_data_api_grpc_handling_seconds
	DataAPIGrpcDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "data_api",
		Name:      "grpc_handling_seconds",
		Help:      "Time taken to handle gRPC requests",
		Buckets:   lowLatencyBuckets,
	}, []string{"method", "code"})

	// DataAPIGrpcTotal counts the total number of gRPC requests.
	// Metric: discountrules_data_api_grpc_requests_total
	DataAPIGrpcTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "data_api",
		Name:      "grpc_requests_total",
		Help:      "Total gRPC requests",
	}, []string{"method", "code"})

	// -------------------------------------------------------------------------
	// SETTINGS (read-through layers)
	// -------------------------------------------------------------------------

	// SettingsLookupsTotal counts where a settings read was answered.
	// Metric: discountrules_settings_lookups_total
	SettingsLookupsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "settings",
		Name:      "lookups_total",
		Help:      "Total settings reads by the layer that answered them",
	}, []string{"layer"}) // l1, l2, source

	// SettingsStaleFillsDropped counts lookups not cached because a write
	// overlapped them.
	SettingsStaleFillsDropped = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "settings",
		Name:      "stale_fills_dropped_total",
		Help:      "Total settings lookups left uncached because a write raced them",
	})

	// SettingsRemoteErrors counts L2 failures that fell back to the source.
	SettingsRemoteErrors = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "settings",
		Name:      "l2_errors_total",
		Help:      "Total L2 cache errors that degraded to the settings source",
	})

	// --- Cache L1 Metrics (Otter) ---

	SettingsCacheHits = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "settings",
		Name:      "l1_cache_hits_total",
		Help:      "Total L1 cache hits (in-memory)",
	})

	SettingsCacheMisses = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "settings",
		Name:      "l1_cache_misses_total",
		Help:      "Total L1 cache misses",
	})

	// SettingsCacheEvictions tracks items removed because the capacity was reached.
	SettingsCacheEvictions = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "settings",
		Name:      "l1_cache_evictions_total",
		Help:      "Total items evicted due to capacity",
	})

	// S3-FIFO tracks item count, not byte size.
	SettingsCacheUsage = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "settings",
		Name:      "l1_cache_items_count",
		Help:      "Current number of items in the L1 cache",
	})

	// SettingsCacheDropped tracks writes rejected by the cache.
	SettingsCacheDropped = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "settings",
		Name:      "l1_cache_dropped_total",
		Help:      "Total sets rejected by the L1 cache",
	})

	SettingsInvalidations = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "settings",
		Name:      "l1_invalidations_total",
		Help:      "Total cache invalidation events received via PubSub",
	})

	// -------------------------------------------------------------------------
	// SYNCER
	// -------------------------------------------------------------------------

	// SyncerRunDuration measures one full hydration pass.
	// Metric: discountrules_syncer_run_duration_seconds
	SyncerRunDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "syncer",
		Name:      "run_duration_seconds",
		Help:      "Time taken to copy the settings source into the L2 cache",
		Buckets:   prometheus.DefBuckets,
	})

	SyncerRunsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "syncer",
		Name:      "runs_total",
		Help:      "Total hydration runs",
	}, []string{"status"}) // success, partial, fail

	SyncerKeysHydrated = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "syncer",
		Name:      "keys_hydrated",
		Help:      "Number of settings written to the L2 cache by the last successful run",
	})

	// -------------------------------------------------------------------------
	// CONNECTION POOLS
	// -------------------------------------------------------------------------

	// DatabasePoolConnections reports pgxpool state (idle, in_use, total, max).
	DatabasePoolConnections = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "database_pool",
		Name:      "connections",
		Help:      "Current number of database pool connections by state",
	}, []string{"state"})

	// The pgxpool counters below are cumulative inside the pool, so they are
	// exposed as gauges mirroring the pool's own totals.
	DatabasePoolAcquireCount = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "database_pool",
		Name:      "acquire_count_total",
		Help:      "Cumulative count of successful connection acquisitions",
	})

	DatabasePoolAcquireDuration = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "database_pool",
		Name:      "acquire_duration_seconds_total",
		Help:      "Cumulative time spent acquiring connections",
	})

	DatabasePoolWaitCount = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "database_pool",
		Name:      "wait_count_total",
		Help:      "Cumulative count of acquisitions that had to wait for a connection",
	})

	// RedisPoolConnections reports go-redis pool state (total, idle, stale).
	RedisPoolConnections = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "redis_pool",
		Name:      "connections",
		Help:      "Current number of redis pool connections by state",
	}, []string{"state"})

	RedisPoolHits = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "redis_pool",
		Name:      "hits_total",
		Help:      "Cumulative number of times a free connection was found in the pool",
	})

	RedisPoolMisses = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "redis_pool",
		Name:      "misses_total",
		Help:      "Cumulative number of times a free connection was not found in the pool",
	})

	RedisPoolTimeouts = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "redis_pool",
		Name:      "timeouts_total",
		Help:      "Cumulative number of pool wait timeouts",
	})
)
