package checkpoint

import "github.com/prometheus/client_golang/prometheus"

var (
	duration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "cooldb",
		Subsystem: "checkpoint",
		Name:      "duration_seconds",
		Help:      "Wall-clock time to capture a fuzzy checkpoint's snapshot and write END_CHECKPOINT.",
	})
	dirtyPages = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "cooldb",
		Subsystem: "checkpoint",
		Name:      "dirty_pages",
		Help:      "Dirty frames flushed by the most recent checkpoint's dirty-page-table capture.",
	})
	activeTxns = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "cooldb",
		Subsystem: "checkpoint",
		Name:      "active_transactions",
		Help:      "Number of transactions recorded active in the most recent checkpoint's snapshot.",
	})
)

// Register adds the checkpoint writer's metrics to reg. Safe to call once
// per process; callers that build multiple writers in tests should use
// their own registry.
func Register(reg *prometheus.Registry) {
	reg.MustRegister(duration, dirtyPages, activeTxns)
}
