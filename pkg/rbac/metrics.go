package rbac

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the engine's Prometheus metrics
type Metrics struct {
	// Materializer metrics
	MaterializerRuns     prometheus.Counter
	MaterializerDuration prometheus.Histogram
	DirtyRoles           prometheus.Histogram
	TuplesAdded          prometheus.Counter
	TuplesDeleted        prometheus.Counter

	// Evaluation metrics
	PermissionChecks prometheus.Counter
	CheckCacheHits   prometheus.Counter
	CheckCacheMisses prometheus.Counter
}

// NewMetrics creates the engine metrics and registers them when a
// registerer is given.
func NewMetrics(registry prometheus.Registerer) *Metrics {
	m := &Metrics{
		MaterializerRuns: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "roleforge_materializer_runs_total",
			Help: "Total number of materializer reconciliations",
		}),
		MaterializerDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "roleforge_materializer_duration_seconds",
			Help:    "Materializer reconciliation duration in seconds",
			Buckets: prometheus.DefBuckets,
		}),
		DirtyRoles: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "roleforge_materializer_dirty_roles",
			Help:    "Number of object roles reconciled per run",
			Buckets: prometheus.ExponentialBuckets(1, 4, 8),
		}),
		TuplesAdded: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "roleforge_evaluation_tuples_added_total",
			Help: "Total evaluation tuples inserted",
		}),
		TuplesDeleted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "roleforge_evaluation_tuples_deleted_total",
			Help: "Total evaluation tuples deleted",
		}),
		PermissionChecks: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "roleforge_permission_checks_total",
			Help: "Total permission checks answered from the database",
		}),
		CheckCacheHits: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "roleforge_check_cache_hits_total",
			Help: "Permission checks answered from the in-process cache",
		}),
		CheckCacheMisses: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "roleforge_check_cache_misses_total",
			Help: "Permission checks missing the in-process cache",
		}),
	}

	if registry != nil {
		registry.MustRegister(
			m.MaterializerRuns,
			m.MaterializerDuration,
			m.DirtyRoles,
			m.TuplesAdded,
			m.TuplesDeleted,
			m.PermissionChecks,
			m.CheckCacheHits,
			m.CheckCacheMisses,
		)
	}
	return m
}

func (m *Metrics) cacheHit() {
	if m != nil {
		m.CheckCacheHits.Inc()
	}
}

func (m *Metrics) cacheMiss() {
	if m != nil {
		m.CheckCacheMisses.Inc()
	}
}
