package rbac

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics counts permission fetch activity.
type Metrics struct {
	calls    *prometheus.CounterVec
	stale    prometheus.Counter
	duration prometheus.Histogram
}

// NewMetrics registers the collectors against registerer. A nil registerer
// uses the Prometheus default registry.
func NewMetrics(registerer prometheus.Registerer) *Metrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}
	calls := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "crm_rbac_store_calls_total",
		Help: "Permission store calls issued by resolvers, by call and outcome.",
	}, []string{"call", "outcome"})
	stale := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "crm_rbac_stale_results_total",
		Help: "Fetch results dropped because a newer fetch or identity superseded them.",
	})
	duration := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "crm_rbac_fetch_duration_seconds",
		Help:    "Time to resolve role and page permissions for an identity.",
		Buckets: prometheus.DefBuckets,
	})
	registerer.MustRegister(calls, stale, duration)
	return &Metrics{calls: calls, stale: stale, duration: duration}
}

func (m *Metrics) recordCall(call string, err error) {
	if m == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	m.calls.WithLabelValues(call, outcome).Inc()
}

func (m *Metrics) recordStale() {
	if m == nil {
		return
	}
	m.stale.Inc()
}

func (m *Metrics) observeFetch(d time.Duration) {
	if m == nil {
		return
	}
	m.duration.Observe(d.Seconds())
}
