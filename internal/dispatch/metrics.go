package dispatch

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics is optional; a nil *Metrics records nothing.
type Metrics struct {
	attempts *prometheus.CounterVec
	fetches  *prometheus.CounterVec
	latency  prometheus.Histogram
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		attempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "railwatch_dispatch_attempts_total",
			Help: "Upstream attempts by outcome.",
		}, []string{"outcome"}),
		fetches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "railwatch_dispatch_fetches_total",
			Help: "Logical fetches by final result.",
		}, []string{"result"}),
		latency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "railwatch_dispatch_upstream_seconds",
			Help:    "Latency of successful upstream attempts.",
			Buckets: []float64{0.25, 0.5, 1, 2, 4, 8, 10},
		}),
	}
	if reg != nil {
		reg.MustRegister(m.attempts, m.fetches, m.latency)
	}
	return m
}

func (m *Metrics) observeAttempt(outcome string, latency time.Duration) {
	if m == nil {
		return
	}
	m.attempts.WithLabelValues(outcome).Inc()
	if latency > 0 {
		m.latency.Observe(latency.Seconds())
	}
}

func (m *Metrics) observeFetch(result string) {
	if m == nil {
		return
	}
	m.fetches.WithLabelValues(result).Inc()
}
