// Package metrics exposes Prometheus collectors for the harvester service.
package metrics

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	rateLimitDelaySeconds      *prometheus.HistogramVec
	artifactsWrittenTotal      *prometheus.CounterVec
	artifactsSkippedTotal      *prometheus.CounterVec
	artifactIndexFailuresTotal prometheus.Counter
	extractionsTotal           *prometheus.CounterVec
	httpRequestsTotal          *prometheus.CounterVec
	httpRequestDurationSeconds *prometheus.HistogramVec

	once sync.Once
)

// Init registers the collectors with the default registry.
// It is safe to call multiple times; every Observe function calls it.
func Init() {
	once.Do(func() {
		rateLimitDelaySeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "harvester_rate_limit_delay_seconds",
				Help:    "Time callers spent waiting on per-destination pacing.",
				Buckets: []float64{0.1, 0.25, 0.5, 1, 2, 3, 5, 10},
			},
			[]string{"destination"},
		)

		artifactsWrittenTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "harvester_artifacts_written_total",
				Help: "Artifacts committed to storage, labeled by category and format.",
			},
			[]string{"category", "format"},
		)

		artifactsSkippedTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "harvester_artifacts_skipped_total",
				Help: "Malformed artifacts skipped while loading, labeled by category.",
			},
			[]string{"category"},
		)

		artifactIndexFailuresTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "harvester_artifact_index_failures_total",
				Help: "Committed artifacts that could not be recorded in the index.",
			},
		)

		extractionsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "harvester_extractions_total",
				Help: "Extraction outcomes, labeled by mode (matched, fallback, empty).",
			},
			[]string{"mode"},
		)

		httpRequestsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests, labeled by method and code.",
			},
			[]string{"method", "code"},
		)

		httpRequestDurationSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "Histogram of HTTP request latencies, labeled by method and route.",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 15, 60},
			},
			[]string{"method", "route"},
		)
	})
}

// Handler returns an http.Handler exposing the default registry.
func Handler() http.Handler {
	Init()
	return promhttp.Handler()
}

// ObserveRateLimitDelay records a realized pacing wait.
func ObserveRateLimitDelay(destination string, waited time.Duration) {
	Init()
	rateLimitDelaySeconds.WithLabelValues(destination).Observe(waited.Seconds())
}

// ObserveArtifactWrite counts a committed artifact.
func ObserveArtifactWrite(category, format string) {
	Init()
	artifactsWrittenTotal.WithLabelValues(category, format).Inc()
}

// ObserveArtifactSkipped counts a malformed artifact skipped during load.
func ObserveArtifactSkipped(category string) {
	Init()
	artifactsSkippedTotal.WithLabelValues(category).Inc()
}

// ObserveIndexFailure counts an artifact that was committed but not indexed.
func ObserveIndexFailure() {
	Init()
	artifactIndexFailuresTotal.Inc()
}

// ObserveExtraction counts one extraction outcome.
func ObserveExtraction(mode string) {
	Init()
	extractionsTotal.WithLabelValues(mode).Inc()
}

// ObserveHTTPRequest records one API request.
func ObserveHTTPRequest(method, route string, code int, duration time.Duration) {
	Init()
	httpRequestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route).Observe(duration.Seconds())
}
