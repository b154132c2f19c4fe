package shell

import "github.com/prometheus/client_golang/prometheus"

// Metrics counts guard state transitions.
type Metrics struct {
	transitions *prometheus.CounterVec
}

// NewMetrics registers the guard collectors. A nil registerer uses the
// Prometheus default registry.
func NewMetrics(registerer prometheus.Registerer) *Metrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}
	transitions := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "crm_shell_guard_transitions_total",
		Help: "Guard state transitions by route pattern and state.",
	}, []string{"route", "state"})
	registerer.MustRegister(transitions)
	return &Metrics{transitions: transitions}
}

func (m *Metrics) observe(route string, s State) {
	if m == nil {
		return
	}
	m.transitions.WithLabelValues(route, s.String()).Inc()
}
