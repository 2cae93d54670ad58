// Package metrics provides Prometheus metrics for the PDF mirror.
package metrics

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const (
	namespace = "pdf_mirror"
)

var (
	// globalMetrics holds the singleton metrics instance
	globalMetrics *Metrics
	once          sync.Once
)

// Metrics holds all Prometheus metrics for the application
type Metrics struct {
	gatherer prometheus.Gatherer

	// HTTP metrics
	HTTPRequestsTotal    *prometheus.CounterVec
	HTTPRequestDuration  *prometheus.HistogramVec
	HTTPRequestsInFlight prometheus.Gauge

	// Download metrics
	DownloadsTotal   *prometheus.CounterVec
	DownloadDuration *prometheus.HistogramVec
	DownloadBytes    prometheus.Counter
	DownloadRetries  prometheus.Counter

	// Validation metrics
	ValidationsTotal   *prometheus.CounterVec
	ValidationDuration prometheus.Histogram

	// Archive metrics
	ArchiveUploads *prometheus.CounterVec

	// Cache metrics
	CacheHits        prometheus.Counter
	CacheMisses      prometheus.Counter
	CacheEvictions   prometheus.Counter
	CacheExpirations prometheus.Counter
	CacheSize        prometheus.Gauge
	CacheEntries     prometheus.Gauge

	// Authentication metrics
	AuthAttempts *prometheus.CounterVec
}

// New creates and registers all Prometheus metrics (singleton)
// Returns the same instance on subsequent calls
func New() *Metrics {
	once.Do(func() {
		globalMetrics = newMetrics(prometheus.DefaultRegisterer, prometheus.DefaultGatherer)
	})
	return globalMetrics
}

// NewWithRegistry creates metrics with a custom registry (for testing)
func NewWithRegistry(reg *prometheus.Registry) *Metrics {
	return newMetrics(reg, reg)
}

// newMetrics creates and registers all Prometheus metrics
func newMetrics(reg prometheus.Registerer, gatherer prometheus.Gatherer) *Metrics {
	m := &Metrics{gatherer: gatherer}

	// HTTP metrics
	m.HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	m.HTTPRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	m.HTTPRequestsInFlight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "http_requests_in_flight",
			Help:      "Number of HTTP requests currently being processed",
		},
	)

	// Download metrics
	m.DownloadsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "downloads_total",
			Help:      "Total number of PDF download requests by outcome",
		},
		[]string{"outcome"},
	)

	m.DownloadDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "download_duration_seconds",
			Help:      "PDF download duration in seconds, including retries and validation",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
		},
		[]string{"outcome"},
	)

	m.DownloadBytes = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "download_bytes_total",
			Help:      "Total bytes of validated PDFs fetched from the network",
		},
	)

	m.DownloadRetries = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "download_retries_total",
			Help:      "Total number of download retry attempts",
		},
	)

	// Validation metrics
	m.ValidationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "validations_total",
			Help:      "Total number of PDF validations by failure class",
		},
		[]string{"result"},
	)

	m.ValidationDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "validation_duration_seconds",
			Help:      "PDF validation duration in seconds",
			Buckets:   []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5},
		},
	)

	// Archive metrics
	m.ArchiveUploads = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "archive_uploads_total",
			Help:      "Total number of archive uploads",
		},
		[]string{"status"},
	)

	// Cache metrics
	m.CacheHits = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_hits_total",
			Help:      "Total number of cache hits",
		},
	)

	m.CacheMisses = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_misses_total",
			Help:      "Total number of cache misses",
		},
	)

	m.CacheEvictions = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_evictions_total",
			Help:      "Total number of cache evictions",
		},
	)

	m.CacheExpirations = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_expired_entries_cleared_total",
			Help:      "Total number of expired cache entries removed",
		},
	)

	m.CacheSize = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "cache_size_bytes",
			Help:      "Current size of cache in bytes",
		},
	)

	m.CacheEntries = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "cache_entries",
			Help:      "Current number of cache entries",
		},
	)

	// Authentication metrics
	m.AuthAttempts = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "auth_attempts_total",
			Help:      "Total number of admin authentication attempts",
		},
		[]string{"result"},
	)

	// Register all metrics
	reg.MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.HTTPRequestsInFlight,
		m.DownloadsTotal,
		m.DownloadDuration,
		m.DownloadBytes,
		m.DownloadRetries,
		m.ValidationsTotal,
		m.ValidationDuration,
		m.ArchiveUploads,
		m.CacheHits,
		m.CacheMisses,
		m.CacheEvictions,
		m.CacheExpirations,
		m.CacheSize,
		m.CacheEntries,
		m.AuthAttempts,
	)

	return m
}

// Handler serves the registry these metrics were registered with
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}

// RecordHTTPRequest records metrics for an HTTP request
func (m *Metrics) RecordHTTPRequest(method, path, status string, duration float64) {
	m.HTTPRequestsTotal.WithLabelValues(method, path, status).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, path).Observe(duration)
}

// RecordDownload records a finished download. Only fresh network fetches
// add to the byte counter.
func (m *Metrics) RecordDownload(outcome string, duration time.Duration, sizeBytes int64) {
	m.DownloadsTotal.WithLabelValues(outcome).Inc()
	m.DownloadDuration.WithLabelValues(outcome).Observe(duration.Seconds())
	if outcome == "success" {
		m.DownloadBytes.Add(float64(sizeBytes))
	}
}

// RecordDownloadRetry records one retry attempt
func (m *Metrics) RecordDownloadRetry() {
	m.DownloadRetries.Inc()
}

// RecordValidation records a validation; an empty failure means the document passed
func (m *Metrics) RecordValidation(failure string, duration time.Duration) {
	result := failure
	if result == "" {
		result = "valid"
	}
	m.ValidationsTotal.WithLabelValues(result).Inc()
	m.ValidationDuration.Observe(duration.Seconds())
}

// RecordArchive records an archive upload
func (m *Metrics) RecordArchive(status string) {
	m.ArchiveUploads.WithLabelValues(status).Inc()
}

// RecordAuthAttempt records an authentication attempt
func (m *Metrics) RecordAuthAttempt(result string) {
	m.AuthAttempts.WithLabelValues(result).Inc()
}

// UpdateCacheStats updates cache gauge metrics
func (m *Metrics) UpdateCacheStats(sizeBytes int64, entries int) {
	m.CacheSize.Set(float64(sizeBytes))
	m.CacheEntries.Set(float64(entries))
}

// RecordCacheHit records a cache hit
func (m *Metrics) RecordCacheHit() {
	m.CacheHits.Inc()
}

// RecordCacheMiss records a cache miss
func (m *Metrics) RecordCacheMiss() {
	m.CacheMisses.Inc()
}

// RecordCacheEviction records a cache eviction
func (m *Metrics) RecordCacheEviction() {
	m.CacheEvictions.Inc()
}

// RecordCacheExpiration records expired entries removed in one sweep
func (m *Metrics) RecordCacheExpiration(count int) {
	m.CacheExpirations.Add(float64(count))
}
