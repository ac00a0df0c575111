// Package metrics defines the Prometheus counters the core increments.
// cmd/chainrunner serves them over /metrics; the dashboard that scrapes
// them is the excluded external collaborator (spec.md §1).
package metrics

import "github.com/prometheus/client_golang/prometheus"

// Registry bundles the counters the three pipeline stages increment.
type Registry struct {
	OpportunitiesFound  *prometheus.CounterVec
	ActionsEmitted      *prometheus.CounterVec
	ExecutionSuccess    prometheus.Counter
	ExecutionFailure    *prometheus.CounterVec
	CircuitBreakerTrips prometheus.Counter
	CollectorErrors     prometheus.Counter
}

// New registers all counters against a fresh registry and returns both.
func New() (*Registry, *prometheus.Registry) {
	reg := prometheus.NewRegistry()

	r := &Registry{
		OpportunitiesFound: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "chainrunner",
			Name:      "opportunities_found_total",
			Help:      "Opportunities found by scan type.",
		}, []string{"scan"}),
		ActionsEmitted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "chainrunner",
			Name:      "actions_emitted_total",
			Help:      "Actions emitted by the strategy, by kind.",
		}, []string{"kind"}),
		ExecutionSuccess: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "chainrunner",
			Name:      "execution_success_total",
			Help:      "Actions that mined successfully.",
		}),
		ExecutionFailure: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "chainrunner",
			Name:      "execution_failure_total",
			Help:      "Actions that failed to execute, by category.",
		}, []string{"category"}),
		CircuitBreakerTrips: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "chainrunner",
			Name:      "circuit_breaker_trips_total",
			Help:      "Times the circuit breaker has tripped.",
		}),
		CollectorErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "chainrunner",
			Name:      "collector_errors_total",
			Help:      "Non-fatal collector polling errors.",
		}),
	}

	reg.MustRegister(
		r.OpportunitiesFound,
		r.ActionsEmitted,
		r.ExecutionSuccess,
		r.ExecutionFailure,
		r.CircuitBreakerTrips,
		r.CollectorErrors,
	)

	return r, reg
}
