package metrics

import "github.com/prometheus/client_golang/prometheus"

// BreakerMetrics exports circuit breaker state per outbound operation.
type BreakerMetrics struct {
	service     string
	state       *prometheus.GaugeVec
	transitions *prometheus.CounterVec
}

func NewBreakerMetrics(service string, registry *prometheus.Registry) *BreakerMetrics {
	state := prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "resilience",
			Name:      "breaker_state",
			Help:      "Circuit breaker state: 0 closed, 1 half-open, 2 open.",
		},
		[]string{"service", "operation"},
	)
	transitions := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "resilience",
			Name:      "breaker_transitions_total",
			Help:      "Total circuit breaker state transitions by target state.",
		},
		[]string{"service", "operation", "to"},
	)
	registry.MustRegister(state, transitions)
	return &BreakerMetrics{service: service, state: state, transitions: transitions}
}

func (m *BreakerMetrics) StateChanged(operation string, state int, name string) {
	m.state.WithLabelValues(m.service, operation).Set(float64(state))
	m.transitions.WithLabelValues(m.service, operation, name).Inc()
}
