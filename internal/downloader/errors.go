package downloader

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/ned1313/pdf-mirror/internal/cache"
	"github.com/ned1313/pdf-mirror/internal/pdf"
)

// ErrInvalidURL is returned for URLs without an http(s) scheme or a host
var ErrInvalidURL = errors.New("invalid URL")

// Error kinds reported by Kind
const (
	KindAuthentication    = "authentication"
	KindNetwork           = "network"
	KindContentValidation = "content_validation"
	KindPermission        = "permission"
	KindInvalidURL        = "invalid_url"
	KindInternal          = "internal"
)

// AuthenticationError is returned when the source rejects our credentials.
// It is never retried.
type AuthenticationError struct {
	URL        string
	StatusCode int
}

func (e *AuthenticationError) Error() string {
	return fmt.Sprintf("authentication failed: %s returned %d %s",
		e.URL, e.StatusCode, http.StatusText(e.StatusCode))
}

// NetworkError is returned when retries are exhausted on transient failures,
// when the source answers with a non-retryable status, or when the caller
// cancels the download
type NetworkError struct {
	URL        string
	Retries    int
	StatusCode int
	Err        error
}

func (e *NetworkError) Error() string {
	msg := fmt.Sprintf("network error after %d retries", e.Retries)
	if e.StatusCode != 0 {
		msg += fmt.Sprintf(": %s returned %d %s", e.URL, e.StatusCode, http.StatusText(e.StatusCode))
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *NetworkError) Unwrap() error {
	return e.Err
}

// ContentValidationError is returned for fetched content that is oversized,
// not a PDF, or structurally invalid. Such content is never cached.
type ContentValidationError struct {
	URL        string
	Reason     string
	Validation *pdf.ValidationResult
}

func (e *ContentValidationError) Error() string {
	return e.Reason
}

// transientError marks a single failed attempt that may succeed on retry.
// It never leaves the retry loop.
type transientError struct {
	status int
	err    error
}

func (e *transientError) Error() string {
	if e.status != 0 {
		return fmt.Sprintf("status %d %s", e.status, http.StatusText(e.status))
	}
	return e.err.Error()
}

func (e *transientError) Unwrap() error {
	return e.err
}

// retryableStatus reports whether a response status is worth retrying
func retryableStatus(code int) bool {
	switch code {
	case http.StatusRequestTimeout, http.StatusTooManyRequests:
		return true
	}
	return code >= 500 && code <= 599
}

// Kind maps an error returned by the downloader to a stable name used in
// history records and metrics labels
func Kind(err error) string {
	if err == nil {
		return ""
	}

	var authErr *AuthenticationError
	var netErr *NetworkError
	var contentErr *ContentValidationError
	var permErr *cache.PermissionError

	switch {
	case errors.As(err, &authErr):
		return KindAuthentication
	case errors.As(err, &netErr):
		return KindNetwork
	case errors.As(err, &contentErr):
		return KindContentValidation
	case errors.Is(err, ErrInvalidURL):
		return KindInvalidURL
	case errors.As(err, &permErr):
		return KindPermission
	default:
		return KindInternal
	}
}
