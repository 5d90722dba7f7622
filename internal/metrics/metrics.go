// Package metrics defines the Prometheus collectors for the service and the
// HTTP middleware that feeds them.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "bunrui"

// Metrics holds all collectors. A nil *Metrics is valid and records nothing.
type Metrics struct {
	HTTPRequestsTotal    *prometheus.CounterVec
	HTTPRequestDuration  *prometheus.HistogramVec
	HTTPRequestsInFlight prometheus.Gauge
	DocumentsIngested    prometheus.Counter
	IngestFailures       *prometheus.CounterVec
	ClusterRuns          *prometheus.CounterVec
	ClusterDuration      prometheus.Histogram
	SearchLatency        prometheus.Histogram
	SearchResults        prometheus.Histogram
	CorpusDocuments      prometheus.Gauge

	gatherer prometheus.Gatherer
}

// New creates the collectors and registers them on reg.
// A nil reg uses a fresh private registry.
func New(reg *prometheus.Registry) *Metrics {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	m := &Metrics{
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "http_requests_total",
				Help:      "Total number of HTTP requests by method, route, and status.",
			},
			[]string{"method", "route", "status"},
		),
		HTTPRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "http_request_duration_seconds",
				Help:      "HTTP request latency in seconds.",
				Buckets:   []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
			},
			[]string{"method", "route"},
		),
		HTTPRequestsInFlight: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "http_requests_in_flight",
				Help:      "Number of HTTP requests currently being processed.",
			},
		),
		DocumentsIngested: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "documents_ingested_total",
				Help:      "Total documents stored by ingest.",
			},
		),
		IngestFailures: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "ingest_failures_total",
				Help:      "Files rejected during ingest by reason.",
			},
			[]string{"reason"},
		),
		ClusterRuns: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "cluster_runs_total",
				Help:      "Clustering passes by outcome.",
			},
			[]string{"outcome"},
		),
		ClusterDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "cluster_duration_seconds",
				Help:      "Duration of successful clustering passes.",
				Buckets:   prometheus.ExponentialBuckets(0.01, 2, 12),
			},
		),
		SearchLatency: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "search_latency_seconds",
				Help:      "Semantic search latency in seconds, including index refresh.",
				Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 5},
			},
		),
		SearchResults: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "search_results_count",
				Help:      "Number of results returned per search.",
				Buckets:   []float64{0, 1, 5, 10, 25, 50, 100},
			},
		),
		CorpusDocuments: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "corpus_documents",
				Help:      "Documents currently in the store.",
			},
		),
		gatherer: reg,
	}
	reg.MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.HTTPRequestsInFlight,
		m.DocumentsIngested,
		m.IngestFailures,
		m.ClusterRuns,
		m.ClusterDuration,
		m.SearchLatency,
		m.SearchResults,
		m.CorpusDocuments,
	)
	return m
}

// Handler returns the scrape handler for the registry the metrics live on.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}

// Ingested records stored documents.
func (m *Metrics) Ingested(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.DocumentsIngested.Add(float64(n))
}

// IngestFailed records a rejected file.
func (m *Metrics) IngestFailed(reason string) {
	if m == nil {
		return
	}
	m.IngestFailures.WithLabelValues(reason).Inc()
}

// ClusterRun records a clustering pass; the duration is only observed on success.
func (m *Metrics) ClusterRun(d time.Duration, err error) {
	if m == nil {
		return
	}
	if err != nil {
		m.ClusterRuns.WithLabelValues("error").Inc()
		return
	}
	m.ClusterRuns.WithLabelValues("ok").Inc()
	m.ClusterDuration.Observe(d.Seconds())
}

// Searched records a completed search.
func (m *Metrics) Searched(d time.Duration, results int) {
	if m == nil {
		return
	}
	m.SearchLatency.Observe(d.Seconds())
	m.SearchResults.Observe(float64(results))
}

// SetCorpusSize sets the corpus gauge.
func (m *Metrics) SetCorpusSize(n int) {
	if m == nil {
		return
	}
	m.CorpusDocuments.Set(float64(n))
}
