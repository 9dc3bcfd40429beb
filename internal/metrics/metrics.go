// Package metrics exposes operator-facing counters. Persistence failures in
// particular are visible only here: a request whose result could not be
// saved still succeeds from the caller's point of view.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the gateway's Prometheus collectors.
type Metrics struct {
	registry *prometheus.Registry

	SubmissionsTotal    *prometheus.CounterVec
	UpstreamFailures    *prometheus.CounterVec
	PersistenceFailures prometheus.Counter
	StuckReleased       prometheus.Counter
}

// New creates and registers all gateway collectors on a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector())
	reg.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	m := &Metrics{
		registry: reg,
		SubmissionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "verto_submissions_total",
			Help: "Request submissions by type and outcome.",
		}, []string{"type", "outcome"}),
		UpstreamFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "verto_upstream_failures_total",
			Help: "External workflow call failures by class.",
		}, []string{"class"}),
		PersistenceFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "verto_persistence_failures_total",
			Help: "Results that completed but could not be written to storage.",
		}),
		StuckReleased: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "verto_stuck_requests_released_total",
			Help: "Requests forced out of processing by the staleness sweep.",
		}),
	}
	reg.MustRegister(m.SubmissionsTotal, m.UpstreamFailures, m.PersistenceFailures, m.StuckReleased)
	return m
}

// Handler returns the HTTP handler serving this registry.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
