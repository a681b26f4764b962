// Package metrics defines the Prometheus metric collectors used across the
// pipeline and exposes an HTTP handler for scraping.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus collectors for the pipeline.
type Metrics struct {
	HTTPRequestsTotal    *prometheus.CounterVec
	HTTPRequestDuration  *prometheus.HistogramVec
	HTTPRequestsInFlight prometheus.Gauge

	ClaimsValidatedTotal prometheus.Counter
	ClaimsRejectedTotal  *prometheus.CounterVec
	ClaimsProcessedTotal prometheus.Counter
	DuplicateClaimsTotal prometheus.Counter
	RateLimitedTotal     *prometheus.CounterVec
	SubmissionDuration   prometheus.Histogram

	WindowDuration prometheus.Histogram
	WindowSize     prometheus.Histogram
	AnomaliesTotal *prometheus.CounterVec
	AlertsTotal    *prometheus.CounterVec
	LookupFailures *prometheus.CounterVec
	LookupRetries  prometheus.Counter
	QualityScore   *prometheus.HistogramVec
	PartitionDepth *prometheus.GaugeVec
	ReconcileRuns  *prometheus.CounterVec
	ReconcileDrift prometheus.Gauge
	CircuitBreaker *prometheus.GaugeVec
}

// New creates all collectors and registers them with the default registry.
func New() *Metrics {
	return NewWithRegisterer(prometheus.DefaultRegisterer)
}

// NewWithRegisterer creates all collectors and registers them with reg.
// Tests pass a private registry to avoid duplicate-registration panics.
func NewWithRegisterer(reg prometheus.Registerer) *Metrics {
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
				Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
			},
			[]string{"method", "path"},
		),
		HTTPRequestsInFlight: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "http_requests_in_flight",
				Help: "Number of HTTP requests currently being processed.",
			},
		),
		ClaimsValidatedTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "claims_validated_total",
				Help: "Total claims accepted as validated by the gateway.",
			},
		),
		ClaimsRejectedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "claims_rejected_total",
				Help: "Total claims rejected by the gateway, by leading error code.",
			},
			[]string{"code"},
		),
		ClaimsProcessedTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "claims_processed_total",
				Help: "Total claims emitted by the streaming processor.",
			},
		),
		DuplicateClaimsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "claims_duplicate_total",
				Help: "Total duplicate submissions deduplicated by claim id.",
			},
		),
		RateLimitedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "claims_rate_limited_total",
				Help: "Total submissions backpressured per source system.",
			},
			[]string{"source"},
		),
		SubmissionDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "claim_submission_duration_seconds",
				Help:    "Gateway submit latency in seconds.",
				Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
			},
		),
		WindowDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "processing_window_duration_seconds",
				Help:    "Time spent processing one streaming window.",
				Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
			},
		),
		WindowSize: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "processing_window_claims",
				Help:    "Number of claims processed per streaming window.",
				Buckets: []float64{0, 1, 5, 10, 25, 50, 100, 250, 500},
			},
		),
		AnomaliesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "claim_anomalies_total",
				Help: "Total fraud-heuristic anomalies detected, by code.",
			},
			[]string{"code"},
		),
		AlertsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "claim_alerts_total",
				Help: "Total alert events emitted, by severity.",
			},
			[]string{"severity"},
		),
		LookupFailures: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "refdata_lookup_failures_total",
				Help: "Reference-data lookup failures by kind (provider, payer).",
			},
			[]string{"kind"},
		),
		LookupRetries: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "refdata_lookup_retries_total",
				Help: "Claims pushed to the next window for an enrichment retry.",
			},
		),
		QualityScore: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "claim_quality_score",
				Help:    "Distribution of overall quality scores by pass kind.",
				Buckets: []float64{0, 10, 20, 30, 40, 50, 60, 70, 80, 90, 100},
			},
			[]string{"pass"},
		),
		PartitionDepth: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "processor_partition_depth",
				Help: "Claims buffered in each partition worker's current window.",
			},
			[]string{"partition"},
		),
		ReconcileRuns: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "reconcile_runs_total",
				Help: "Batch reconciliation runs by outcome (complete, incomplete, error).",
			},
			[]string{"outcome"},
		),
		ReconcileDrift: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "reconcile_streaming_drift",
				Help: "Validated-minus-processed claim gap found by the last reconciliation run.",
			},
		),
		CircuitBreaker: prometheus.NewGaugeVec(
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
		m.ClaimsValidatedTotal,
		m.ClaimsRejectedTotal,
		m.ClaimsProcessedTotal,
		m.DuplicateClaimsTotal,
		m.RateLimitedTotal,
		m.SubmissionDuration,
		m.WindowDuration,
		m.WindowSize,
		m.AnomaliesTotal,
		m.AlertsTotal,
		m.LookupFailures,
		m.LookupRetries,
		m.QualityScore,
		m.PartitionDepth,
		m.ReconcileRuns,
		m.ReconcileDrift,
		m.CircuitBreaker,
	)

	return m
}

// Handler returns the Prometheus scrape HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}
