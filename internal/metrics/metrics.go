// Package metrics exposes Prometheus collectors for the profiler service.
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
	siteChecksTotal        *prometheus.CounterVec
	renderDurationSeconds  prometheus.Histogram
	jobsTotal              *prometheus.CounterVec
	activeChecks           prometheus.Gauge
	archivesBuiltTotal     prometheus.Counter
	archiveBundleSizeBytes prometheus.Histogram
	httpRequestsTotal      *prometheus.CounterVec
	httpRequestDuration    *prometheus.HistogramVec

	once sync.Once
)

// Init initializes the Prometheus metrics collectors.
// It is safe to call this function multiple times.
func Init() {
	once.Do(func() {
		siteChecksTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "profiler_site_checks_total",
				Help: "Total number of site checks, labeled by status.",
			},
			[]string{"status"},
		)

		renderDurationSeconds = promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "profiler_render_duration_seconds",
				Help:    "Histogram of page render latencies.",
				Buckets: []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
			},
		)

		jobsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "profiler_jobs_total",
				Help: "Total number of search jobs, labeled by outcome.",
			},
			[]string{"outcome"},
		)

		activeChecks = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "profiler_active_checks",
				Help: "Number of site checks currently in flight.",
			},
		)

		archivesBuiltTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "profiler_archives_built_total",
				Help: "Total number of archives built.",
			},
		)

		archiveBundleSizeBytes = promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "profiler_archive_bundle_size_bytes",
				Help:    "Histogram of archive bundle sizes.",
				Buckets: prometheus.ExponentialBuckets(1024, 4, 8),
			},
		)

		httpRequestsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests, labeled by method and code.",
			},
			[]string{"method", "code"},
		)

		httpRequestDuration = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "Histogram of HTTP request latencies, labeled by method and route.",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5},
			},
			[]string{"method", "route"},
		)
	})
}

// Handler returns an http.Handler for exposing Prometheus metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveSiteCheck records one completed site check.
func ObserveSiteCheck(status string, duration time.Duration) {
	siteChecksTotal.WithLabelValues(status).Inc()
	renderDurationSeconds.Observe(duration.Seconds())
}

// ObserveJob increments the job counter for the given outcome.
func ObserveJob(outcome string) {
	jobsTotal.WithLabelValues(outcome).Inc()
}

// IncActiveChecks increments the in-flight checks gauge.
func IncActiveChecks() {
	activeChecks.Inc()
}

// DecActiveChecks decrements the in-flight checks gauge.
func DecActiveChecks() {
	activeChecks.Dec()
}

// ObserveArchive records one built archive bundle.
func ObserveArchive(bundleBytes int) {
	archivesBuiltTotal.Inc()
	archiveBundleSizeBytes.Observe(float64(bundleBytes))
}

// ObserveHTTPRequest increments the HTTP request metrics.
func ObserveHTTPRequest(method, route string, code int, duration time.Duration) {
	httpRequestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
	httpRequestDuration.WithLabelValues(method, route).Observe(duration.Seconds())
}
