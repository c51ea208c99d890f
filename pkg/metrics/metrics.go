// Package metrics defines the Prometheus metric collectors used by the sync
// service and exposes an HTTP handler for scraping.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus collectors for the service.
type Metrics struct {
	HTTPRequestsTotal      *prometheus.CounterVec
	HTTPRequestDuration    *prometheus.HistogramVec
	HTTPRequestsInFlight   prometheus.Gauge
	FullSyncRunsTotal      *prometheus.CounterVec
	FullSyncDuration       prometheus.Histogram
	NotificationsTotal     *prometheus.CounterVec
	RecordsUpsertedTotal   prometheus.Counter
	RecordsDeletedTotal    prometheus.Counter
	FetchFailuresTotal     *prometheus.CounterVec
	IndexSearchErrorsTotal prometheus.Counter
	CircuitBreakerState    *prometheus.GaugeVec
}

// New creates all collectors and registers them with reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests by method, path, and status.",
			},
			[]string{"method", "path", "status"},
		),
		HTTPRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "HTTP request latency in seconds.",
				Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
			},
			[]string{"method", "path"},
		),
		HTTPRequestsInFlight: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "http_requests_in_flight",
				Help: "Number of HTTP requests currently being processed.",
			},
		),
		FullSyncRunsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "fullsync_runs_total",
				Help: "Full sync runs by outcome (succeeded, failed).",
			},
			[]string{"status"},
		),
		FullSyncDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "fullsync_duration_seconds",
				Help:    "Duration of full sync runs in seconds.",
				Buckets: []float64{0.5, 1, 2.5, 5, 10, 30, 60, 120, 300},
			},
		),
		NotificationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "webhook_notifications_total",
				Help: "Webhook notifications by resolution outcome (reindex, remove, mixed, noop, ignored).",
			},
			[]string{"outcome"},
		),
		RecordsUpsertedTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "records_upserted_total",
				Help: "Total search records upserted.",
			},
		),
		RecordsDeletedTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "records_deleted_total",
				Help: "Total search records deleted.",
			},
		),
		FetchFailuresTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "content_fetch_failures_total",
				Help: "Content platform fetch failures by operation.",
			},
			[]string{"operation"},
		),
		IndexSearchErrorsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "index_search_errors_total",
				Help: "Facet searches against the index that failed and were treated as empty.",
			},
		),
		CircuitBreakerState: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "circuit_breaker_state",
				Help: "Circuit breaker state (0=closed, 1=open, 2=half-open).",
			},
			[]string{"name"},
		),
	}

	reg.MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.HTTPRequestsInFlight,
		m.FullSyncRunsTotal,
		m.FullSyncDuration,
		m.NotificationsTotal,
		m.RecordsUpsertedTotal,
		m.RecordsDeletedTotal,
		m.FetchFailuresTotal,
		m.IndexSearchErrorsTotal,
		m.CircuitBreakerState,
	)

	return m
}

// NewUnregistered returns collectors attached to a private registry. Useful
// for tests and for components constructed without a metrics server.
func NewUnregistered() *Metrics {
	return New(prometheus.NewRegistry())
}

// Handler returns the Prometheus scrape HTTP handler for the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}
