package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// NOTE: All metrics are registered globally, so every binary exposes the full
// catalogue; series for components a binary does not run stay at zero.

// namespace is the global prefix for all metrics (e.g., daffodil_...).
const namespace = "daffodil"

// lowLatencyBuckets gives 1ms resolution for the read path. Range: 1ms to 500ms.
var lowLatencyBuckets = []float64{.001, .002, .005, .010, .015, .020, .025, .030, .050, .100, .500}

var (
	// -------------------------------------------------------------------------
	// CONTROL PLANE (HTTP)
	// -------------------------------------------------------------------------

	// ControlPlaneReqDuration measures the latency of HTTP requests.
	// Metric: daffodil_control_plane_http_handling_seconds
	ControlPlaneReqDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "control_plane",
		Name:      "http_handling_seconds",
		Help:      "Time taken to handle HTTP requests in Control Plane",
		Buckets:   prometheus.DefBuckets,
	}, []string{"method", "path"})

	// ControlPlaneReqTotal counts the total number of HTTP requests.
	ControlPlaneReqTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "control_plane",
		Name:      "http_requests_total",
		Help:      "Total HTTP requests in Control Plane",
	}, []string{"method", "path", "code"})

	// -------------------------------------------------------------------------
	// DATA PLANE (gRPC read path)
	// -------------------------------------------------------------------------

	// DataPlaneGrpcDuration measures the latency of gRPC requests.
	// Metric: daffodil_data_plane_grpc_handling_seconds
	DataPlaneGrpcDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "data_plane",
		Name:      "grpc_handling_seconds",
		Help:      "Time taken to handle gRPC requests",
		Buckets:   lowLatencyBuckets,
	}, []string{"method", "code"})

	DataPlaneGrpcTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "data_plane",
		Name:      "grpc_requests_total",
		Help:      "Total gRPC requests",
	}, []string{"method", "code"})

	// AssignmentsServed counts read-path answers by kind and source (cache, db).
	AssignmentsServed = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "data_plane",
		Name:      "assignments_served_total",
		Help:      "Read-path responses by kind and source",
	}, []string{"kind", "source"})

	// -------------------------------------------------------------------------
	// ASSIGNMENT CACHE
	// -------------------------------------------------------------------------

	// CacheRequests counts cache lookups. result: hit, miss, stale, error.
	CacheRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "cache",
		Name:      "requests_total",
		Help:      "Assignment cache lookups by kind and result",
	}, []string{"kind", "result"})

	CacheWrites = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "cache",
		Name:      "writes_total",
		Help:      "Assignment cache writes by kind and status",
	}, []string{"kind", "status"})

	CacheInvalidations = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "cache",
		Name:      "invalidations_total",
		Help:      "Per-user cache invalidations by status",
	}, []string{"status"})

	// MemoryCacheItems tracks the entry count of the in-process backend.
	MemoryCacheItems = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "cache",
		Name:      "memory_items_count",
		Help:      "Current number of items in the in-memory cache backend",
	})

	// -------------------------------------------------------------------------
	// ENGINE (segments, experiments, banners)
	// -------------------------------------------------------------------------

	// SegmentResolveDuration measures one full resolution (stats + evaluation + persist).
	SegmentResolveDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "engine",
		Name:      "segment_resolve_seconds",
		Help:      "Time taken to resolve and persist a user's segments",
		Buckets:   prometheus.DefBuckets,
	})

	// SegmentRuleFailures counts segments skipped because their stored rule is invalid.
	SegmentRuleFailures = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "engine",
		Name:      "segment_rule_failures_total",
		Help:      "Segments whose stored rule failed to compile or evaluate",
	})

	VariantAssignments = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "engine",
		Name:      "variant_assignments_total",
		Help:      "Variant assignments computed on the read path",
	}, []string{"experiment", "variant"})

	// -------------------------------------------------------------------------
	// WRITE PATH AND WORKERS
	// -------------------------------------------------------------------------

	OrdersPlaced = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "orders",
		Name:      "placed_total",
		Help:      "Orders persisted",
	})

	// OrderPropagationFailures counts post-commit steps that failed. step: invalidate, publish, schedule.
	OrderPropagationFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "orders",
		Name:      "propagation_failures_total",
		Help:      "Post-commit propagation failures by step",
	}, []string{"step"})

	// ConsumerMessages counts consumed order events. status: processed, skipped, failed.
	ConsumerMessages = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "consumer",
		Name:      "messages_total",
		Help:      "Order events handled by the consumer",
	}, []string{"status"})

	// ConsumerLag measures the time between publication and processing.
	ConsumerLag = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "consumer",
		Name:      "processing_lag_seconds",
		Help:      "End-to-end latency from publish to processed",
		Buckets:   prometheus.DefBuckets,
	})

	// SchedulerJobs counts deferred jobs. status: success, retry, misfire.
	SchedulerJobs = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "scheduler",
		Name:      "jobs_total",
		Help:      "Deferred jobs processed by status",
	}, []string{"status"})

	SchedulerQueueDepth = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "scheduler",
		Name:      "queue_depth",
		Help:      "Number of pending deferred jobs",
	})

	// DormancyChecks counts dormancy job outcomes. outcome: refreshed, active, failed.
	DormancyChecks = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "dormancy",
		Name:      "checks_total",
		Help:      "Dormancy check outcomes",
	}, []string{"outcome"})

	SweepRuns = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "sweeper",
		Name:      "runs_total",
		Help:      "Periodic dormancy sweeps by status",
	}, []string{"status"})

	SweepUsers = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "sweeper",
		Name:      "users_total",
		Help:      "Users refreshed by the sweeper",
	}, []string{"status"})

	SweepDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "sweeper",
		Name:      "run_duration_seconds",
		Help:      "Time taken by one sweep",
		Buckets:   prometheus.DefBuckets,
	})

	// -------------------------------------------------------------------------
	// INFRASTRUCTURE POOLS
	// -------------------------------------------------------------------------

	// DatabasePoolConnections reports pgxpool state. state: max, total, idle, in_use.
	DatabasePoolConnections = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "database",
		Name:      "pool_connections",
		Help:      "PostgreSQL pool connections by state",
	}, []string{"state"})

	DatabasePoolAcquireCount = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "database",
		Name:      "pool_acquire_count_total",
		Help:      "Cumulative successful connection acquisitions",
	})

	DatabasePoolAcquireDuration = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "database",
		Name:      "pool_acquire_duration_seconds_total",
		Help:      "Cumulative time spent acquiring connections",
	})

	DatabasePoolWaitCount = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "database",
		Name:      "pool_wait_count_total",
		Help:      "Cumulative acquisitions that had to wait for a connection",
	})

	// RedisPoolConnections reports go-redis pool state. state: total, idle, stale.
	RedisPoolConnections = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "redis",
		Name:      "pool_connections",
		Help:      "Redis pool connections by state",
	}, []string{"state"})

	// RedisPoolEvents reports go-redis pool counters. event: hit, miss, timeout.
	RedisPoolEvents = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "redis",
		Name:      "pool_events_total",
		Help:      "Cumulative Redis pool events",
	}, []string{"event"})
)
