package bufferpool

import "github.com/prometheus/client_golang/prometheus"

var (
	hits = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "cooldb",
		Subsystem: "bufferpool",
		Name:      "hits_total",
		Help:      "Pin requests served by an already-resident frame.",
	})
	misses = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "cooldb",
		Subsystem: "bufferpool",
		Name:      "misses_total",
		Help:      "Pin requests that required a fault from disk.",
	})
	evictions = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "cooldb",
		Subsystem: "bufferpool",
		Name:      "evictions_total",
		Help:      "Frames reclaimed to serve a fault.",
	})
	flushes = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "cooldb",
		Subsystem: "bufferpool",
		Name:      "flushes_total",
		Help:      "Dirty frames written back to the pager.",
	})
)

// Register adds the buffer pool's metrics to reg. Safe to call once per
// process; callers that build multiple pools in tests should use their own
// registry.
func Register(reg *prometheus.Registry) {
	reg.MustRegister(hits, misses, evictions, flushes)
}
