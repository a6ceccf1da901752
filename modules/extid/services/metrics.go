package services

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/iota-uz/extid/modules/extid/domain/hierarchy"
)

var (
	extidAllocations = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "extid",
		Subsystem: "allocator",
		Name:      "allocations_total",
		Help:      "Total number of allocation attempts broken down by kind and outcome.",
	}, []string{"kind", "outcome"})

	extidGuardWait = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "extid",
		Subsystem: "guard",
		Name:      "wait_seconds",
		Help:      "Time spent waiting for an allocation scope.",
		Buckets: []float64{
			0.0005, 0.001, 0.005,
			0.01, 0.05,
			0.1, 0.5,
			1, 2, 5,
		},
	}, []string{"kind"})

	extidGuardTimeouts = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "extid",
		Subsystem: "guard",
		Name:      "timeouts_total",
		Help:      "Total number of allocation scopes that could not be acquired in time.",
	}, []string{"kind"})

	extidSiblingMismatches = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "extid",
		Subsystem: "allocator",
		Name:      "sibling_mismatches_total",
		Help:      "Sibling identifiers ignored because their width or prefix differ from the parent's.",
	}, []string{"kind"})
)

func recordAllocation(kind hierarchy.Kind, outcome string) {
	if outcome == "" {
		outcome = "error"
	}
	extidAllocations.WithLabelValues(string(kind), outcome).Inc()
}

func observeGuardWait(kind hierarchy.Kind, d time.Duration) {
	extidGuardWait.WithLabelValues(string(kind)).Observe(d.Seconds())
}

func recordGuardTimeout(kind hierarchy.Kind) {
	extidGuardTimeouts.WithLabelValues(string(kind)).Inc()
}

func recordSiblingMismatches(kind hierarchy.Kind, n int) {
	if n <= 0 {
		return
	}
	extidSiblingMismatches.WithLabelValues(string(kind)).Add(float64(n))
}
