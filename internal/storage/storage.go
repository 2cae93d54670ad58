// Package storage archives validated PDF documents to object storage.
// The archive is optional and outlives the local cache: documents evicted
// from the cache can be restored from it without another network fetch.
package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
)

// ErrNotFound is returned when an archived object does not exist
var ErrNotFound = errors.New("object not found")

// Storage defines the interface for archive backends
type Storage interface {
	// Upload stores the content of reader under key
	Upload(ctx context.Context, key string, reader io.Reader, contentType string, metadata map[string]string) error

	// Download returns the object stored under key; the caller closes it
	Download(ctx context.Context, key string) (io.ReadCloser, error)

	// Delete removes an object. Deleting a missing object is not an error.
	Delete(ctx context.Context, key string) error

	// Exists reports whether an object is stored under key
	Exists(ctx context.Context, key string) (bool, error)

	// GetMetadata returns the metadata stored with an object
	GetMetadata(ctx context.Context, key string) (map[string]string, error)

	// ListObjects lists keys starting with prefix
	ListObjects(ctx context.Context, prefix string) ([]string, error)

	Close() error
}

// BuildGuideKey returns the archive key for a cached document
// Format: {prefix}/{host}/{cacheKey}.pdf
func BuildGuideKey(prefix, host, cacheKey string) string {
	prefix = strings.Trim(prefix, "/")
	host = strings.ToLower(strings.ReplaceAll(host, "/", "_"))
	if prefix == "" {
		return fmt.Sprintf("%s/%s.pdf", host, cacheKey)
	}
	return fmt.Sprintf("%s/%s/%s.pdf", prefix, host, cacheKey)
}

func checkKey(key string) error {
	if key == "" {
		return fmt.Errorf("key cannot be empty")
	}
	return nil
}
