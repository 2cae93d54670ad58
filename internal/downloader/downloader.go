// Package downloader fetches PDF documents over HTTP, validates them and
// stores them in the cache. Transient failures are retried with capped
// exponential backoff; credential rejections and invalid content are
// reported immediately as typed errors and never touch the cache.
package downloader

import (
	"bytes"
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/ned1313/pdf-mirror/internal/cache"
	"github.com/ned1313/pdf-mirror/internal/database"
	"github.com/ned1313/pdf-mirror/internal/pdf"
	"github.com/ned1313/pdf-mirror/internal/storage"
	"github.com/ned1313/pdf-mirror/internal/version"
	"golang.org/x/sync/singleflight"
	"golang.org/x/time/rate"
)

const (
	// DefaultRequestTimeout bounds a single HTTP attempt
	DefaultRequestTimeout = 30 * time.Second

	// DefaultMaxRetries is the number of retries after the first attempt
	DefaultMaxRetries = 3

	// DefaultBackoffBase is the delay before the first retry
	DefaultBackoffBase = 1 * time.Second

	// DefaultBackoffMax caps the delay between retries
	DefaultBackoffMax = 60 * time.Second

	// DefaultMaxDownloadSizeMB is the hard cap on response bodies
	DefaultMaxDownloadSizeMB = 50

	// DefaultTTL is how long downloaded documents stay fresh in the cache
	DefaultTTL = 24 * time.Hour

	// DefaultMaxWorkers bounds DownloadConcurrent when no limit is given
	DefaultMaxWorkers = 3

	acceptHeader = "application/pdf, */*"
	bytesPerMB   = 1024 * 1024
)

// MetricsRecorder receives download events
type MetricsRecorder interface {
	RecordDownload(outcome string, duration time.Duration, sizeBytes int64)
	RecordDownloadRetry()
	RecordValidation(failure string, duration time.Duration)
	RecordArchive(status string)
}

// HistoryRecorder persists one record per download
type HistoryRecorder interface {
	Record(ctx context.Context, rec *database.DownloadRecord) error
}

// Archiver uploads freshly validated documents to long-term storage and
// hands them back when the local cache no longer holds them.
// storage.Storage satisfies it.
type Archiver interface {
	Upload(ctx context.Context, key string, reader io.Reader, contentType string, metadata map[string]string) error
	Download(ctx context.Context, key string) (io.ReadCloser, error)
	Exists(ctx context.Context, key string) (bool, error)
	GetMetadata(ctx context.Context, key string) (map[string]string, error)
}

// Options configures a Downloader. Zero values fall back to the defaults above.
type Options struct {
	UserAgent   string
	APIKey      string
	BearerToken string

	RequestTimeout time.Duration
	MaxRetries     int
	BackoffBase    time.Duration
	BackoffMax     time.Duration

	MaxDownloadSizeMB float64
	DefaultTTL        time.Duration
	MaxWorkers        int

	// RateLimitPerMinute throttles outgoing requests; zero disables throttling
	RateLimitPerMinute int

	// CoalesceInFlight shares one fetch between concurrent downloads of the
	// same URL. Off by default: concurrent writers then race and the last
	// write to the cache wins.
	//
	// Only the first caller's progress callback sees the shared fetch, and
	// only its context can cancel it. Later callers wait on that fetch
	// without progress updates and receive its result even if their own
	// context is cancelled first.
	CoalesceInFlight bool

	HTTPClient *http.Client
	Logger     *slog.Logger
	Metrics    MetricsRecorder
	History    HistoryRecorder

	// Archive and ArchivePrefix enable uploads of new documents. A cache
	// miss is served from the archive before the network when possible.
	Archive       Archiver
	ArchivePrefix string
}

// NoRetries can be assigned to Options.MaxRetries to disable retrying;
// a zero MaxRetries selects the default
const NoRetries = -1

func (o *Options) applyDefaults() {
	if o.UserAgent == "" {
		o.UserAgent = version.UserAgent()
	}
	if o.RequestTimeout <= 0 {
		o.RequestTimeout = DefaultRequestTimeout
	}
	switch {
	case o.MaxRetries == 0:
		o.MaxRetries = DefaultMaxRetries
	case o.MaxRetries < 0:
		o.MaxRetries = 0
	}
	if o.BackoffBase <= 0 {
		o.BackoffBase = DefaultBackoffBase
	}
	if o.BackoffMax <= 0 {
		o.BackoffMax = DefaultBackoffMax
	}
	if o.BackoffMax < o.BackoffBase {
		o.BackoffMax = o.BackoffBase
	}
	if o.MaxDownloadSizeMB <= 0 {
		o.MaxDownloadSizeMB = DefaultMaxDownloadSizeMB
	}
	if o.DefaultTTL == 0 {
		o.DefaultTTL = DefaultTTL
	}
	if o.MaxWorkers <= 0 {
		o.MaxWorkers = DefaultMaxWorkers
	}
	if o.HTTPClient == nil {
		o.HTTPClient = &http.Client{Timeout: o.RequestTimeout}
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
}

// Downloader retrieves, validates and caches PDF documents
type Downloader struct {
	cache     *cache.Manager
	validator *pdf.Validator
	opts      Options
	maxBytes  int64
	logger    *slog.Logger

	limiter *rate.Limiter
	group   singleflight.Group
}

// New creates a downloader storing into c and validating with v
func New(c *cache.Manager, v *pdf.Validator, opts Options) *Downloader {
	opts.applyDefaults()

	d := &Downloader{
		cache:     c,
		validator: v,
		opts:      opts,
		maxBytes:  int64(opts.MaxDownloadSizeMB * bytesPerMB),
		logger:    opts.Logger.With("component", "downloader"),
	}

	if opts.RateLimitPerMinute > 0 {
		perSecond := float64(opts.RateLimitPerMinute) / 60.0
		d.limiter = rate.NewLimiter(rate.Limit(perSecond), opts.MaxWorkers)
	}

	return d
}

// Options returns the effective options after defaults were applied
func (d *Downloader) Options() Options {
	return d.opts
}

// Download returns the document at rawURL, from the cache when a fresh copy
// exists, then from the archive, otherwise from the network. The returned Result is never nil; on
// error it carries the retry metadata and the error details.
func (d *Downloader) Download(ctx context.Context, rawURL string, progress ProgressFunc) (*Result, error) {
	if !d.opts.CoalesceInFlight {
		res := d.run(ctx, rawURL, progress)
		return res, res.Err
	}

	v, _, shared := d.group.Do(cache.Key(rawURL), func() (interface{}, error) {
		return d.run(ctx, rawURL, progress), nil
	})
	res := v.(*Result)
	if shared {
		cp := *res
		cp.RequestID = uuid.NewString()
		res = &cp
	}
	return res, res.Err
}

func (d *Downloader) run(ctx context.Context, rawURL string, progress ProgressFunc) *Result {
	start := time.Now()
	res := &Result{
		URL:             rawURL,
		RequestID:       uuid.NewString(),
		BackoffStrategy: BackoffExponential,
	}

	err := d.download(ctx, rawURL, progress, res)
	res.Elapsed = time.Since(start)
	res.setError(err)

	d.observe(ctx, res)
	return res
}

func (d *Downloader) download(ctx context.Context, rawURL string, progress ProgressFunc, res *Result) error {
	if err := validateURL(rawURL); err != nil {
		return err
	}

	key := cache.Key(rawURL)
	res.CacheKey = key
	logger := d.logger.With("url", rawURL, "request_id", res.RequestID)

	if content, ok := d.cache.Get(key); ok {
		res.Content = content
		res.FromCache = true
		notify(progress, StatusCacheHit)
		logger.Debug("served from cache", "key", key)
		return nil
	}
	if d.cache.IsCached(key) && d.cache.IsExpired(key) {
		logger.Debug("clearing expired cache entry", "key", key)
		if err := d.cache.Remove(key); err != nil {
			logger.Warn("failed to clear expired entry", "key", key, "error", err)
		}
	}

	if d.restore(ctx, rawURL, key, res, logger) {
		notify(progress, StatusArchiveRestored)
		return nil
	}

	notify(progress, StatusDownloadStarted)

	resp, err := d.fetch(ctx, rawURL, res, progress, logger)
	if err != nil {
		return err
	}
	body := resp.body

	if int64(len(body)) > d.maxBytes {
		return &ContentValidationError{
			URL: rawURL,
			Reason: fmt.Sprintf("content exceeds size limit: more than %.2f MB",
				d.opts.MaxDownloadSizeMB),
		}
	}

	if !pdf.HasPDFMagic(body) {
		return &ContentValidationError{
			URL:    rawURL,
			Reason: fmt.Sprintf("invalid content type: body does not start with %%PDF- (Content-Type %q)", resp.contentType),
		}
	}

	validation := d.validator.Validate(body)
	res.Validation = validation
	if d.opts.Metrics != nil {
		d.opts.Metrics.RecordValidation(string(validation.Failure), validation.Elapsed)
	}
	if !validation.IsValid {
		return &ContentValidationError{URL: rawURL, Reason: validation.Error, Validation: validation}
	}

	metadata := map[string]string{
		"url":          rawURL,
		"request_id":   res.RequestID,
		"content_type": resp.contentType,
		"pdf_version":  validation.PDFVersion,
		"page_count":   strconv.Itoa(validation.PageCount),
	}
	if err := d.cache.Store(key, body, d.opts.DefaultTTL, metadata); err != nil {
		return fmt.Errorf("failed to cache %s: %w", rawURL, err)
	}

	res.Content = body
	res.Authenticated = true
	res.FreshDownload = true

	d.archive(ctx, rawURL, key, body, metadata, res, logger)

	notify(progress, StatusDownloadComplete)
	logger.Info("downloaded document",
		"key", key,
		"size", len(body),
		"pdf_version", validation.PDFVersion,
		"pages", validation.PageCount,
		"retries", res.RetriesAttempted)
	return nil
}

type response struct {
	body        []byte
	contentType string
}

// fetch runs the retry loop. Only terminal errors leave it.
func (d *Downloader) fetch(ctx context.Context, rawURL string, res *Result, progress ProgressFunc, logger *slog.Logger) (*response, error) {
	var last *transientError

	for attempt := 0; attempt <= d.opts.MaxRetries; attempt++ {
		if attempt > 0 {
			delay := d.backoff(attempt)
			res.BackoffDelays = append(res.BackoffDelays, delay)
			notify(progress, fmt.Sprintf("retry %d/%d after %s", attempt, d.opts.MaxRetries, delay))
			if d.opts.Metrics != nil {
				d.opts.Metrics.RecordDownloadRetry()
			}
			logger.Warn("retrying download", "attempt", attempt, "delay", delay, "error", last)

			timer := time.NewTimer(delay)
			select {
			case <-timer.C:
			case <-ctx.Done():
				timer.Stop()
				return nil, &NetworkError{URL: rawURL, Retries: attempt - 1, Err: ctx.Err()}
			}
			res.RetriesAttempted = attempt
		}

		if d.limiter != nil {
			if err := d.limiter.Wait(ctx); err != nil {
				return nil, &NetworkError{URL: rawURL, Retries: res.RetriesAttempted, Err: fmt.Errorf("rate limited: %w", err)}
			}
		}

		resp, err := d.fetchOnce(ctx, rawURL)
		if err == nil {
			notify(progress, StatusAuthenticated)
			return resp, nil
		}

		if !errors.As(err, &last) {
			if netErr, ok := err.(*NetworkError); ok {
				netErr.Retries = res.RetriesAttempted
			}
			return nil, err
		}
	}

	return nil, &NetworkError{URL: rawURL, Retries: d.opts.MaxRetries, StatusCode: last.status, Err: last}
}

// fetchOnce performs a single GET and classifies the outcome
func (d *Downloader) fetchOnce(ctx context.Context, rawURL string) (*response, error) {
	reqCtx, cancel := context.WithTimeout(ctx, d.opts.RequestTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidURL, err)
	}
	req.Header.Set("User-Agent", d.opts.UserAgent)
	req.Header.Set("Accept", acceptHeader)
	if d.opts.APIKey != "" {
		req.Header.Set("X-API-Key", d.opts.APIKey)
	}
	if d.opts.BearerToken != "" {
		req.Header.Set("Authorization", "Bearer "+d.opts.BearerToken)
	}

	resp, err := d.opts.HTTPClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, &NetworkError{URL: rawURL, Err: ctx.Err()}
		}
		return nil, &transientError{err: err}
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return nil, &AuthenticationError{URL: rawURL, StatusCode: resp.StatusCode}
	case retryableStatus(resp.StatusCode):
		io.Copy(io.Discard, io.LimitReader(resp.Body, 64*1024))
		return nil, &transientError{status: resp.StatusCode}
	case resp.StatusCode != http.StatusOK:
		return nil, &NetworkError{URL: rawURL, StatusCode: resp.StatusCode}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, d.maxBytes+1))
	if err != nil {
		if ctx.Err() != nil {
			return nil, &NetworkError{URL: rawURL, Err: ctx.Err()}
		}
		return nil, &transientError{err: fmt.Errorf("failed to read body: %w", err)}
	}

	return &response{body: body, contentType: resp.Header.Get("Content-Type")}, nil
}

// backoff returns the delay before retry n (1-based): base*2^(n-1), capped
func (d *Downloader) backoff(n int) time.Duration {
	delay := d.opts.BackoffBase
	for i := 1; i < n; i++ {
		delay *= 2
		if delay >= d.opts.BackoffMax {
			return d.opts.BackoffMax
		}
	}
	if delay > d.opts.BackoffMax {
		return d.opts.BackoffMax
	}
	return delay
}

// archive uploads a new document when an archiver is configured.
// Failures are logged and do not fail the download.
func (d *Downloader) archive(ctx context.Context, rawURL, key string, body []byte, metadata map[string]string, res *Result, logger *slog.Logger) {
	if d.opts.Archive == nil {
		return
	}

	archiveKey := d.archiveKey(rawURL, key)

	status := "success"
	if err := d.opts.Archive.Upload(ctx, archiveKey, bytes.NewReader(body), "application/pdf", metadata); err != nil {
		status = "error"
		logger.Warn("failed to archive document", "key", archiveKey, "error", err)
	} else {
		res.Archived = true
		res.ArchiveKey = archiveKey
	}

	if d.opts.Metrics != nil {
		d.opts.Metrics.RecordArchive(status)
	}
}

// archiveKey returns the archive location of the document cached under key
func (d *Downloader) archiveKey(rawURL, key string) string {
	host := "unknown"
	if u, err := url.Parse(rawURL); err == nil && u.Hostname() != "" {
		host = u.Hostname()
	}
	return storage.BuildGuideKey(d.opts.ArchivePrefix, host, key)
}

// restore copies an archived document back into the cache. The copy is
// validated like a fresh download; any failure falls back to the network.
func (d *Downloader) restore(ctx context.Context, rawURL, key string, res *Result, logger *slog.Logger) bool {
	if d.opts.Archive == nil {
		return false
	}

	archiveKey := d.archiveKey(rawURL, key)
	exists, err := d.opts.Archive.Exists(ctx, archiveKey)
	if err != nil {
		logger.Warn("failed to look up archived copy", "key", archiveKey, "error", err)
		return false
	}
	if !exists {
		return false
	}

	rc, err := d.opts.Archive.Download(ctx, archiveKey)
	if err != nil {
		logger.Warn("failed to download archived copy", "key", archiveKey, "error", err)
		return false
	}
	body, err := io.ReadAll(io.LimitReader(rc, d.maxBytes+1))
	rc.Close()
	if err != nil {
		logger.Warn("failed to read archived copy", "key", archiveKey, "error", err)
		return false
	}
	if int64(len(body)) > d.maxBytes || !pdf.HasPDFMagic(body) {
		logger.Warn("archived copy is not an acceptable PDF", "key", archiveKey, "size", len(body))
		return false
	}

	validation := d.validator.Validate(body)
	if d.opts.Metrics != nil {
		d.opts.Metrics.RecordValidation(string(validation.Failure), validation.Elapsed)
	}
	if !validation.IsValid {
		logger.Warn("archived copy failed validation", "key", archiveKey, "reason", validation.Error)
		return false
	}

	metadata := map[string]string{}
	if stored, err := d.opts.Archive.GetMetadata(ctx, archiveKey); err == nil {
		for k, v := range stored {
			metadata[k] = v
		}
	} else {
		logger.Debug("archived copy has no readable metadata", "key", archiveKey, "error", err)
	}
	metadata["url"] = rawURL
	metadata["request_id"] = res.RequestID
	metadata["pdf_version"] = validation.PDFVersion
	metadata["page_count"] = strconv.Itoa(validation.PageCount)
	metadata["restored_from"] = archiveKey

	if err := d.cache.Store(key, body, d.opts.DefaultTTL, metadata); err != nil {
		logger.Warn("failed to cache archived copy", "key", key, "error", err)
		return false
	}

	res.Content = body
	res.Validation = validation
	res.FromArchive = true
	res.Archived = true
	res.ArchiveKey = archiveKey
	logger.Info("restored document from archive", "key", key, "archive_key", archiveKey, "size", len(body))
	return true
}

// observe reports a finished download to metrics and history
func (d *Downloader) observe(ctx context.Context, res *Result) {
	if d.opts.Metrics != nil {
		outcome := "success"
		switch {
		case res.Err != nil:
			outcome = res.ErrorKind
		case res.FromCache:
			outcome = "cache_hit"
		case res.FromArchive:
			outcome = "archive_restore"
		}
		d.opts.Metrics.RecordDownload(outcome, res.Elapsed, res.SizeBytes())
	}

	if d.opts.History == nil {
		return
	}

	rec := &database.DownloadRecord{
		RequestID:        res.RequestID,
		URL:              res.URL,
		CacheKey:         res.CacheKey,
		Success:          res.Success,
		FromCache:        res.FromCache,
		Authenticated:    res.Authenticated,
		RetriesAttempted: res.RetriesAttempted,
		SizeBytes:        res.SizeBytes(),
		DurationMS:       res.Elapsed.Milliseconds(),
	}
	if res.Validation != nil && res.Validation.PDFVersion != "" {
		rec.PDFVersion = sql.NullString{String: res.Validation.PDFVersion, Valid: true}
		rec.PageCount = sql.NullInt64{Int64: int64(res.Validation.PageCount), Valid: true}
	}
	if res.Err != nil {
		rec.ErrorKind = sql.NullString{String: res.ErrorKind, Valid: true}
		rec.ErrorMessage = sql.NullString{String: res.ErrorMessage, Valid: true}
	}
	if res.ArchiveKey != "" {
		rec.ArchiveKey = sql.NullString{String: res.ArchiveKey, Valid: true}
	}

	if err := d.opts.History.Record(context.WithoutCancel(ctx), rec); err != nil {
		d.logger.Warn("failed to record download history", "url", res.URL, "error", err)
	}
}

// validateURL accepts absolute http and https URLs with a host
func validateURL(rawURL string) error {
	if rawURL == "" {
		return fmt.Errorf("%w: empty URL", ErrInvalidURL)
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidURL, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("%w: unsupported scheme %q in %s", ErrInvalidURL, u.Scheme, rawURL)
	}
	if u.Hostname() == "" {
		return fmt.Errorf("%w: missing host in %s", ErrInvalidURL, rawURL)
	}
	return nil
}

// notify delivers a progress status, ignoring any panic in the callback
func notify(progress ProgressFunc, status string) {
	if progress == nil {
		return
	}
	defer func() { _ = recover() }()
	progress(status)
}
