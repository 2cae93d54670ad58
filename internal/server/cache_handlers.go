package server

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/go-chi/chi/v5"
	"github.com/ned1313/pdf-mirror/internal/cache"
)

const bytesPerMB = 1024 * 1024

// CacheStatsResponse represents cache statistics
type CacheStatsResponse struct {
	cache.Stats
	HitRate      float64         `json:"hit_rate"`
	HitRateStr   string          `json:"hit_rate_str"`
	SizeHuman    string          `json:"size_human"`
	MaxSizeHuman string          `json:"max_size_human"`
	UsagePercent float64         `json:"usage_percent"`
	Config       CacheConfigInfo `json:"config"`
}

// CacheConfigInfo contains cache configuration information
type CacheConfigInfo struct {
	Dir                  string `json:"dir"`
	TTLSeconds           int    `json:"ttl_seconds"`
	SweepIntervalSeconds int    `json:"sweep_interval_seconds"`
}

// CacheEntryResponse describes one cached document
type CacheEntryResponse struct {
	*cache.Entry
	Expired   bool   `json:"expired"`
	SizeHuman string `json:"size_human"`
	ExpiresIn string `json:"expires_in"`
}

// handleCacheStats returns cache statistics
// GET /api/cache/stats
func (s *Server) handleCacheStats(w http.ResponseWriter, r *http.Request) {
	stats := s.cache.Stats()

	hitRate := stats.HitRate() * 100
	response := CacheStatsResponse{
		Stats:        stats,
		HitRate:      hitRate,
		HitRateStr:   formatPercent(hitRate),
		SizeHuman:    humanize.IBytes(uint64(stats.CurrentSizeMB * bytesPerMB)),
		MaxSizeHuman: humanize.IBytes(uint64(stats.MaxSizeMB * bytesPerMB)),
		Config: CacheConfigInfo{
			Dir:                  s.cache.Dir(),
			TTLSeconds:           s.config.Cache.TTLSeconds,
			SweepIntervalSeconds: s.config.Cache.SweepIntervalSeconds,
		},
	}
	if stats.MaxSizeMB > 0 {
		response.UsagePercent = stats.CurrentSizeMB / stats.MaxSizeMB * 100
	}

	respondJSON(w, http.StatusOK, response)
}

// formatPercent formats a percentage value as a string
func formatPercent(percent float64) string {
	return fmt.Sprintf("%.2f%%", percent)
}

// SweepResponse represents the response from clearing expired entries
type SweepResponse struct {
	Message      string `json:"message"`
	ItemsCleared int    `json:"items_cleared"`
}

// handleCacheSweep removes every expired entry from the cache
// POST /api/cache/sweep
func (s *Server) handleCacheSweep(w http.ResponseWriter, r *http.Request) {
	cleared, err := s.cache.ClearExpired()
	if err != nil {
		s.logAuditEvent(r, "", "sweep_cache", "cache", "", false, err.Error(), nil)
		respondError(w, http.StatusInternalServerError, "cache_error", "Failed to clear expired entries: "+err.Error())
		return
	}

	s.logAuditEvent(r, "", "sweep_cache", "cache", "", true, "", map[string]interface{}{
		"items_cleared": cleared,
	})

	respondJSON(w, http.StatusOK, SweepResponse{
		Message:      "Expired entries cleared",
		ItemsCleared: cleared,
	})
}

// handleListCacheEntries lists every indexed entry, expired ones included
// GET /api/cache/entries
func (s *Server) handleListCacheEntries(w http.ResponseWriter, r *http.Request) {
	now := time.Now()
	keys := s.cache.Keys()
	entries := make([]CacheEntryResponse, 0, len(keys))
	for _, key := range keys {
		if entry, ok := s.cache.Entry(key); ok {
			entries = append(entries, entryToResponse(entry, now))
		}
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"entries": entries,
		"total":   len(entries),
	})
}

// handleGetCacheEntry returns the metadata of one entry
// GET /api/cache/{key}
func (s *Server) handleGetCacheEntry(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "key")
	entry, ok := s.cache.Entry(key)
	if !ok {
		respondError(w, http.StatusNotFound, "not_found", "No cache entry for key "+key)
		return
	}

	respondJSON(w, http.StatusOK, entryToResponse(entry, time.Now()))
}

// handleGetCacheContent serves the cached document itself
// GET /api/cache/{key}/content
func (s *Server) handleGetCacheContent(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "key")
	data, ok := s.cache.Get(key)
	if !ok {
		respondError(w, http.StatusNotFound, "not_found", "No fresh cache entry for key "+key)
		return
	}

	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", key+".pdf"))
	w.WriteHeader(http.StatusOK)
	w.Write(data)
}

// IntegrityResponse reports the result of a checksum verification
type IntegrityResponse struct {
	Key      string `json:"cache_key"`
	Valid    bool   `json:"valid"`
	Expected string `json:"expected,omitempty"`
	Actual   string `json:"actual,omitempty"`
}

// handleCacheIntegrity recomputes the checksum of a cached document
// GET /api/cache/{key}/integrity
func (s *Server) handleCacheIntegrity(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "key")

	err := s.cache.VerifyIntegrity(key)
	var integrityErr *cache.IntegrityError
	switch {
	case err == nil:
		respondJSON(w, http.StatusOK, IntegrityResponse{Key: key, Valid: true})
	case errors.Is(err, cache.ErrNotCached):
		respondError(w, http.StatusNotFound, "not_found", "No cache entry for key "+key)
	case errors.As(err, &integrityErr):
		respondJSON(w, http.StatusOK, IntegrityResponse{
			Key:      key,
			Valid:    false,
			Expected: integrityErr.Expected,
			Actual:   integrityErr.Actual,
		})
	default:
		respondError(w, http.StatusInternalServerError, "cache_error", err.Error())
	}
}

// handleDeleteCacheEntry removes one entry from the cache
// DELETE /api/cache/{key}
func (s *Server) handleDeleteCacheEntry(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "key")
	if _, ok := s.cache.Entry(key); !ok {
		respondError(w, http.StatusNotFound, "not_found", "No cache entry for key "+key)
		return
	}

	if err := s.cache.Remove(key); err != nil {
		s.logAuditEvent(r, "", "delete_cache_entry", "cache_entry", key, false, err.Error(), nil)
		respondError(w, http.StatusInternalServerError, "cache_error", "Failed to remove entry: "+err.Error())
		return
	}

	s.logAuditEvent(r, "", "delete_cache_entry", "cache_entry", key, true, "", nil)
	w.WriteHeader(http.StatusNoContent)
}

func entryToResponse(entry *cache.Entry, now time.Time) CacheEntryResponse {
	return CacheEntryResponse{
		Entry:     entry,
		Expired:   entry.Expired(now),
		SizeHuman: humanize.IBytes(uint64(entry.Size)),
		ExpiresIn: humanize.RelTime(entry.ExpiryTime, now, "ago", "from now"),
	}
}
