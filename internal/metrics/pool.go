package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// PoolMetrics holds metrics for one or more channel pools. All instruments
// are labeled by pool id.
type PoolMetrics struct {
	// OpenChannels tracks the number of channels currently open in the pool.
	OpenChannels *prometheus.GaugeVec

	// Bindings tracks the number of entries in the affinity binding table.
	Bindings *prometheus.GaugeVec

	// InFlightCalls tracks the number of calls currently reserved on pool
	// channels (incremented before dispatch, decremented on terminal status).
	InFlightCalls *prometheus.GaugeVec

	// CallsTotal counts completed calls by outcome (ok, error).
	CallsTotal *prometheus.CounterVec

	// BindsTotal counts binding table inserts/overwrites.
	BindsTotal *prometheus.CounterVec

	// UnbindsTotal counts binding table removals.
	UnbindsTotal *prometheus.CounterVec

	// KeyResolutionFailures counts affinity key resolution failures by
	// message side (request, response).
	KeyResolutionFailures *prometheus.CounterVec

	// BypassedCalls counts calls dispatched unmodified because their
	// target was not the pool.
	BypassedCalls *prometheus.CounterVec
}

var (
	defaultPoolMetrics *PoolMetrics
	defaultOnce        sync.Once
)

// Default returns the process-wide PoolMetrics registered with the default
// Prometheus registry. Safe to call from multiple pools.
func Default() *PoolMetrics {
	defaultOnce.Do(func() {
		defaultPoolMetrics = NewPoolMetricsWithRegistry(prometheus.DefaultRegisterer)
	})
	return defaultPoolMetrics
}

// NewPoolMetricsWithRegistry creates PoolMetrics registered with the given
// registerer. Used by tests to avoid the default registry.
func NewPoolMetricsWithRegistry(reg prometheus.Registerer) *PoolMetrics {
	factory := promauto.With(reg)
	return &PoolMetrics{
		OpenChannels: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: "chanpool",
				Subsystem: "pool",
				Name:      "open_channels",
				Help:      "Number of transport channels currently open in the pool.",
			},
			[]string{"pool"},
		),
		Bindings: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: "chanpool",
				Subsystem: "pool",
				Name:      "bindings",
				Help:      "Number of affinity key bindings in the binding table.",
			},
			[]string{"pool"},
		),
		InFlightCalls: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: "chanpool",
				Subsystem: "pool",
				Name:      "in_flight_calls",
				Help:      "Number of calls currently reserved on pool channels.",
			},
			[]string{"pool"},
		),
		CallsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "chanpool",
				Subsystem: "calls",
				Name:      "total",
				Help:      "Completed calls by outcome (ok, error).",
			},
			[]string{"pool", "outcome"},
		),
		BindsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "chanpool",
				Subsystem: "affinity",
				Name:      "binds_total",
				Help:      "Affinity binding inserts and overwrites.",
			},
			[]string{"pool"},
		),
		UnbindsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "chanpool",
				Subsystem: "affinity",
				Name:      "unbinds_total",
				Help:      "Affinity binding removals.",
			},
			[]string{"pool"},
		),
		KeyResolutionFailures: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "chanpool",
				Subsystem: "affinity",
				Name:      "key_resolution_failures_total",
				Help:      "Affinity key resolution failures by message side (request, response).",
			},
			[]string{"pool", "side"},
		),
		BypassedCalls: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "chanpool",
				Subsystem: "calls",
				Name:      "bypassed_total",
				Help:      "Calls dispatched unmodified because their target was not the pool.",
			},
			[]string{"pool"},
		),
	}
}
