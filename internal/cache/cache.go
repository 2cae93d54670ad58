// Package cache provides a durable, size- and time-bounded store for
// validated PDF documents. Content lives in one file per key and a single
// JSON index records per-entry metadata. The index is rewritten in full
// after every mutation.
//
// Checksums stored in the index detect accidental corruption of content
// files. They are not a defense against deliberate tampering.
package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"time"
)

// Key returns the cache key for a URL: the lowercase hex SHA-256 of the
// full URL string, query included
func Key(url string) string {
	sum := sha256.Sum256([]byte(url))
	return hex.EncodeToString(sum[:])
}

// Entry holds the metadata recorded for a cached document
type Entry struct {
	Key        string            `json:"cache_key"`
	CacheTime  time.Time         `json:"cache_time"`
	AccessTime time.Time         `json:"access_time"`
	ExpiryTime time.Time         `json:"expiry_time"`
	Checksum   string            `json:"checksum"`
	Size       int64             `json:"size"`
	Metadata   map[string]string `json:"metadata,omitempty"`
}

// Expired reports whether the entry is past its expiry time
func (e *Entry) Expired(now time.Time) bool {
	return now.After(e.ExpiryTime)
}

func (e *Entry) clone() *Entry {
	c := *e
	if e.Metadata != nil {
		c.Metadata = make(map[string]string, len(e.Metadata))
		for k, v := range e.Metadata {
			c.Metadata[k] = v
		}
	}
	return &c
}

// Stats contains statistics about cache usage
type Stats struct {
	Hits                     int64   `json:"hits"`
	Misses                   int64   `json:"misses"`
	TotalEntries             int     `json:"total_entries"`
	CurrentSizeMB            float64 `json:"current_size_mb"`
	MaxSizeMB                float64 `json:"max_size_mb"`
	EvictionsPerformed       int64   `json:"evictions_performed"`
	ExpiredEntriesCleared    int64   `json:"expired_entries_cleared"`
	ConcurrentWriteConflicts int64   `json:"concurrent_write_conflicts"`
}

// HitRate returns hits/(hits+misses), or 0 before any lookup
func (s Stats) HitRate() float64 {
	total := s.Hits + s.Misses
	if total == 0 {
		return 0
	}
	return float64(s.Hits) / float64(total)
}

// Observer receives cache events, typically for metrics
type Observer interface {
	RecordCacheHit()
	RecordCacheMiss()
	RecordCacheEviction()
	RecordCacheExpiration(count int)
	UpdateCacheStats(sizeBytes int64, entries int)
}

type noopObserver struct{}

func (noopObserver) RecordCacheHit()             {}
func (noopObserver) RecordCacheMiss()            {}
func (noopObserver) RecordCacheEviction()        {}
func (noopObserver) RecordCacheExpiration(int)   {}
func (noopObserver) UpdateCacheStats(int64, int) {}
