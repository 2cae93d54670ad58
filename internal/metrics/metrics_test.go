package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

// newTestMetrics creates metrics with a fresh registry for testing
func newTestMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	return NewWithRegistry(reg)
}

func TestNewWithRegistry(t *testing.T) {
	m := newTestMetrics()

	if m == nil {
		t.Fatal("NewWithRegistry() returned nil")
	}

	// Verify all metrics are initialized
	if m.HTTPRequestsTotal == nil {
		t.Error("HTTPRequestsTotal is nil")
	}
	if m.DownloadsTotal == nil {
		t.Error("DownloadsTotal is nil")
	}
	if m.ValidationsTotal == nil {
		t.Error("ValidationsTotal is nil")
	}
	if m.ArchiveUploads == nil {
		t.Error("ArchiveUploads is nil")
	}
	if m.CacheHits == nil {
		t.Error("CacheHits is nil")
	}
	if m.AuthAttempts == nil {
		t.Error("AuthAttempts is nil")
	}
}

func TestNewWithRegistry_Isolated(t *testing.T) {
	a := newTestMetrics()
	b := newTestMetrics()

	a.RecordCacheHit()

	if got := testutil.ToFloat64(a.CacheHits); got != 1 {
		t.Errorf("a.CacheHits = %v, want 1", got)
	}
	if got := testutil.ToFloat64(b.CacheHits); got != 0 {
		t.Errorf("b.CacheHits = %v, want 0", got)
	}
}

func TestRecordHTTPRequest(t *testing.T) {
	m := newTestMetrics()

	m.RecordHTTPRequest("GET", "/api/cache/stats", "200", 0.1)
	m.RecordHTTPRequest("GET", "/api/cache/stats", "200", 0.2)
	m.RecordHTTPRequest("POST", "/api/downloads", "502", 1.5)

	if got := testutil.ToFloat64(m.HTTPRequestsTotal.WithLabelValues("GET", "/api/cache/stats", "200")); got != 2 {
		t.Errorf("GET requests = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.HTTPRequestsTotal.WithLabelValues("POST", "/api/downloads", "502")); got != 1 {
		t.Errorf("POST requests = %v, want 1", got)
	}
	if got := testutil.CollectAndCount(m.HTTPRequestDuration); got != 2 {
		t.Errorf("duration series = %d, want 2", got)
	}
}

func TestRecordDownload(t *testing.T) {
	m := newTestMetrics()

	m.RecordDownload("success", 2*time.Second, 4096)
	m.RecordDownload("cache_hit", time.Millisecond, 4096)
	m.RecordDownload("validation", time.Second, 100)

	if got := testutil.ToFloat64(m.DownloadsTotal.WithLabelValues("success")); got != 1 {
		t.Errorf("success downloads = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.DownloadsTotal.WithLabelValues("cache_hit")); got != 1 {
		t.Errorf("cache_hit downloads = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.DownloadBytes); got != 4096 {
		t.Errorf("DownloadBytes = %v, want 4096 (cache hits and failures excluded)", got)
	}
	if got := testutil.CollectAndCount(m.DownloadDuration); got != 3 {
		t.Errorf("duration series = %d, want 3", got)
	}
}

func TestRecordDownloadRetry(t *testing.T) {
	m := newTestMetrics()

	m.RecordDownloadRetry()
	m.RecordDownloadRetry()

	if got := testutil.ToFloat64(m.DownloadRetries); got != 2 {
		t.Errorf("DownloadRetries = %v, want 2", got)
	}
}

func TestRecordValidation(t *testing.T) {
	m := newTestMetrics()

	m.RecordValidation("", time.Millisecond)
	m.RecordValidation("header", time.Millisecond)
	m.RecordValidation("", time.Millisecond)

	if got := testutil.ToFloat64(m.ValidationsTotal.WithLabelValues("valid")); got != 2 {
		t.Errorf("valid = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.ValidationsTotal.WithLabelValues("header")); got != 1 {
		t.Errorf("header = %v, want 1", got)
	}
}

func TestRecordArchive(t *testing.T) {
	m := newTestMetrics()

	m.RecordArchive("success")
	m.RecordArchive("failure")
	m.RecordArchive("success")

	if got := testutil.ToFloat64(m.ArchiveUploads.WithLabelValues("success")); got != 2 {
		t.Errorf("archive success = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.ArchiveUploads.WithLabelValues("failure")); got != 1 {
		t.Errorf("archive failure = %v, want 1", got)
	}
}

func TestRecordAuthAttempt(t *testing.T) {
	m := newTestMetrics()

	m.RecordAuthAttempt("success")
	m.RecordAuthAttempt("invalid_credentials")
	m.RecordAuthAttempt("invalid_credentials")

	if got := testutil.ToFloat64(m.AuthAttempts.WithLabelValues("invalid_credentials")); got != 2 {
		t.Errorf("invalid_credentials = %v, want 2", got)
	}
}

func TestCacheObserver(t *testing.T) {
	m := newTestMetrics()

	m.RecordCacheHit()
	m.RecordCacheMiss()
	m.RecordCacheMiss()
	m.RecordCacheEviction()
	m.RecordCacheExpiration(3)
	m.UpdateCacheStats(1<<20, 7)

	if got := testutil.ToFloat64(m.CacheHits); got != 1 {
		t.Errorf("CacheHits = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.CacheMisses); got != 2 {
		t.Errorf("CacheMisses = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.CacheEvictions); got != 1 {
		t.Errorf("CacheEvictions = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.CacheExpirations); got != 3 {
		t.Errorf("CacheExpirations = %v, want 3", got)
	}
	if got := testutil.ToFloat64(m.CacheSize); got != 1<<20 {
		t.Errorf("CacheSize = %v, want %d", got, 1<<20)
	}
	if got := testutil.ToFloat64(m.CacheEntries); got != 7 {
		t.Errorf("CacheEntries = %v, want 7", got)
	}
}

func TestHandler(t *testing.T) {
	m := newTestMetrics()
	m.RecordCacheHit()

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "pdf_mirror_cache_hits_total 1") {
		t.Errorf("metrics output missing cache hits:\n%s", rec.Body.String())
	}
}
