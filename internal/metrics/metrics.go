// Package metrics exposes Prometheus metrics for the wizard service.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the service.
type Metrics struct {
	RunsStartedTotal   *prometheus.CounterVec
	RunsCompletedTotal *prometheus.CounterVec
	RunsFailedTotal    *prometheus.CounterVec
	DispatchFailedTotal prometheus.Counter

	SessionsActive prometheus.GaugeFunc

	HTTPRequestsTotal          *prometheus.CounterVec
	HTTPRequestDurationSeconds *prometheus.HistogramVec

	registry *prometheus.Registry
}

// New creates a Metrics instance with all metrics registered on an
// isolated registry. sessionCount reports the number of in-flight
// wizard sessions.
func New(sessionCount func() int) *Metrics {
	reg := prometheus.NewRegistry()

	m := &Metrics{
		RunsStartedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "receiptor_runs_started_total",
				Help: "Total number of wizard runs started",
			},
			[]string{"template"},
		),
		RunsCompletedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "receiptor_runs_completed_total",
				Help: "Total number of wizard runs completed with a dispatched receipt",
			},
			[]string{"template"},
		),
		RunsFailedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "receiptor_runs_failed_total",
				Help: "Total number of wizard submissions rejected",
			},
			[]string{"reason"},
		),
		DispatchFailedTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "receiptor_dispatch_failed_total",
				Help: "Total number of receipt delivery failures",
			},
		),
		SessionsActive: prometheus.NewGaugeFunc(
			prometheus.GaugeOpts{
				Name: "receiptor_sessions_active",
				Help: "Number of wizard sessions in flight",
			},
			func() float64 { return float64(sessionCount()) },
		),
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "receiptor_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		HTTPRequestDurationSeconds: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "receiptor_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
			},
			[]string{"method", "path"},
		),

		registry: reg,
	}

	reg.MustRegister(
		m.RunsStartedTotal,
		m.RunsCompletedTotal,
		m.RunsFailedTotal,
		m.DispatchFailedTotal,
		m.SessionsActive,
		m.HTTPRequestsTotal,
		m.HTTPRequestDurationSeconds,
	)

	return m
}

// Registry returns the Prometheus registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler returns the scrape endpoint handler.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
