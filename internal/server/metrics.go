package server

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics collects chat pipeline metrics. Each Metrics value carries its
// own registry so servers constructed side by side (tests included) never
// fight over metric registration.
type Metrics struct {
	registry *prometheus.Registry

	// RequestCounter counts chat requests by outcome.
	// Outcomes: success, noop, auth_failed, bad_request, staging_error,
	// history_error, loop_error, client_gone.
	RequestCounter *prometheus.CounterVec

	// RequestDuration measures whole-request latency in seconds.
	RequestDuration prometheus.Histogram

	// StagingDuration measures media staging latency in seconds.
	StagingDuration prometheus.Histogram
}

// NewMetrics creates and registers all chat metrics.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()
	factory := promauto.With(registry)
	return &Metrics{
		registry: registry,

		RequestCounter: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "quailsgpt_chat_requests_total",
				Help: "Total number of chat requests by outcome",
			},
			[]string{"outcome"},
		),

		RequestDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "quailsgpt_chat_request_duration_seconds",
				Help:    "Duration of chat requests in seconds",
				Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60},
			},
		),

		StagingDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "quailsgpt_staging_duration_seconds",
				Help:    "Duration of media staging in seconds",
				Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30},
			},
		),
	}
}

// RecordRequest records one finished chat request.
func (m *Metrics) RecordRequest(outcome string, duration time.Duration) {
	m.RequestCounter.WithLabelValues(outcome).Inc()
	m.RequestDuration.Observe(duration.Seconds())
}

// ObserveStaging records the latency of one staging batch.
func (m *Metrics) ObserveStaging(duration time.Duration) {
	m.StagingDuration.Observe(duration.Seconds())
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
