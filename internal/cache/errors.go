package cache

import (
	"errors"
	"fmt"
	"io/fs"
)

var (
	// ErrNotCached is returned when a key has no cache entry
	ErrNotCached = errors.New("not cached")

	// ErrClosed is returned by mutating calls after Shutdown
	ErrClosed = errors.New("cache is shut down")
)

// IntegrityError reports content whose checksum no longer matches the index
type IntegrityError struct {
	Key      string
	Expected string
	Actual   string
}

func (e *IntegrityError) Error() string {
	return fmt.Sprintf("integrity check failed for %s: expected %s, got %s", e.Key, e.Expected, e.Actual)
}

// PermissionError reports a cache directory or file that cannot be written
type PermissionError struct {
	Path string
	Err  error
}

func (e *PermissionError) Error() string {
	return fmt.Sprintf("cache storage not writable: %s: %v", e.Path, e.Err)
}

func (e *PermissionError) Unwrap() error {
	return e.Err
}

// Is makes errors.Is(err, fs.ErrPermission) hold for every PermissionError
func (e *PermissionError) Is(target error) bool {
	return target == fs.ErrPermission
}

// wrapFSError converts permission failures into *PermissionError and wraps the rest
func wrapFSError(op, path string, err error) error {
	if errors.Is(err, fs.ErrPermission) {
		return &PermissionError{Path: path, Err: err}
	}
	return fmt.Errorf("failed to %s %s: %w", op, path, err)
}
