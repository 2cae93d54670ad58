package server

import (
	"context"
	"net/http"
	"time"

	"github.com/ned1313/pdf-mirror/internal/version"
)

// HealthResponse is returned by the health check
type HealthResponse struct {
	Status   string `json:"status"`
	Version  string `json:"version"`
	Database string `json:"database"`
	Entries  int    `json:"cache_entries"`
}

// handleHealth returns the health status of the server
// GET /health
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	response := HealthResponse{
		Status:   "healthy",
		Version:  version.Version,
		Database: "disabled",
	}
	status := http.StatusOK

	stats := s.cache.Stats()
	response.Entries = stats.TotalEntries

	if s.db != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		response.Database = "ok"
		if err := s.db.Ping(ctx); err != nil {
			s.logger.Warn("health check: database ping failed", "error", err)
			response.Database = "unavailable"
			response.Status = "degraded"
			status = http.StatusServiceUnavailable
		}
	}

	respondJSON(w, status, response)
}
