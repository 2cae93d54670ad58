package downloader

import (
	"time"

	"github.com/ned1313/pdf-mirror/internal/pdf"
)

// BackoffExponential is the only backoff strategy the downloader uses
const BackoffExponential = "exponential"

// Progress statuses passed to a ProgressFunc
const (
	StatusCacheHit         = "cache hit"
	StatusDownloadStarted  = "download started"
	StatusAuthenticated    = "authenticated"
	StatusDownloadComplete = "download complete"
	StatusArchiveRestored  = "restored from archive"
)

// ProgressFunc receives short status strings while a download runs.
// Its behaviour never affects the download; panics are recovered.
type ProgressFunc func(status string)

// Result describes one download
type Result struct {
	URL       string `json:"url"`
	CacheKey  string `json:"cache_key"`
	RequestID string `json:"request_id"`

	Success bool   `json:"success"`
	Content []byte `json:"-"`

	Authenticated bool `json:"authenticated"`
	FromCache     bool `json:"from_cache"`
	FreshDownload bool `json:"fresh_download"`
	FromArchive   bool `json:"from_archive"`

	Elapsed          time.Duration   `json:"elapsed"`
	RetriesAttempted int             `json:"retries_attempted"`
	BackoffStrategy  string          `json:"backoff_strategy"`
	BackoffDelays    []time.Duration `json:"backoff_delays,omitempty"`

	Validation *pdf.ValidationResult `json:"validation,omitempty"`

	Archived   bool   `json:"archived"`
	ArchiveKey string `json:"archive_key,omitempty"`

	// Independent marks results produced by DownloadConcurrent
	Independent bool `json:"independent"`

	Err          error  `json:"-"`
	ErrorKind    string `json:"error_kind,omitempty"`
	ErrorMessage string `json:"error,omitempty"`
}

// SizeBytes returns the length of the downloaded content
func (r *Result) SizeBytes() int64 {
	return int64(len(r.Content))
}

func (r *Result) setError(err error) {
	r.Err = err
	r.Success = err == nil
	if err != nil {
		r.ErrorKind = Kind(err)
		r.ErrorMessage = err.Error()
		r.Content = nil
	}
}
