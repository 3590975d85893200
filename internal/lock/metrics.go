package lock

import "github.com/prometheus/client_golang/prometheus"

var (
	grants = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "cooldb",
		Subsystem: "lock",
		Name:      "grants_total",
		Help:      "Lock requests granted, immediately or after waiting.",
	})
	waits = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "cooldb",
		Subsystem: "lock",
		Name:      "waits_total",
		Help:      "Lock requests that had to queue behind an incompatible holder.",
	})
	timeouts = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "cooldb",
		Subsystem: "lock",
		Name:      "timeouts_total",
		Help:      "Lock requests that exceeded Manager.Timeout while waiting.",
	})
	victims = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "cooldb",
		Subsystem: "lock",
		Name:      "deadlock_victims_total",
		Help:      "Transactions aborted by Manager.Abort to break a wait-for cycle.",
	})
)

// Register adds the lock manager's metrics to reg. Safe to call once per
// process; callers that build multiple managers in tests should use their
// own registry.
func Register(reg *prometheus.Registry) {
	reg.MustRegister(grants, waits, timeouts, victims)
}
