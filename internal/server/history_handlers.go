package server

import (
	"errors"
	"fmt"
	"net/http"
	"path/filepath"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/go-chi/chi/v5"
	"github.com/ned1313/pdf-mirror/internal/database"
)

const (
	defaultPageSize = 50
	maxPageSize     = 500
)

// HistoryResponse is the JSON form of a download record
type HistoryResponse struct {
	ID               int64     `json:"id"`
	RequestID        string    `json:"request_id"`
	URL              string    `json:"url"`
	CacheKey         string    `json:"cache_key"`
	Success          bool      `json:"success"`
	FromCache        bool      `json:"from_cache"`
	Authenticated    bool      `json:"authenticated"`
	RetriesAttempted int       `json:"retries_attempted"`
	SizeBytes        int64     `json:"size_bytes"`
	DurationMS       int64     `json:"duration_ms"`
	PDFVersion       string    `json:"pdf_version,omitempty"`
	PageCount        *int64    `json:"page_count,omitempty"`
	ErrorKind        string    `json:"error_kind,omitempty"`
	ErrorMessage     string    `json:"error_message,omitempty"`
	ArchiveKey       string    `json:"archive_key,omitempty"`
	CreatedAt        time.Time `json:"created_at"`
}

// requireDatabase rejects requests to database-backed routes when history is disabled
func (s *Server) requireDatabase(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.db == nil {
			respondError(w, http.StatusServiceUnavailable, "database_disabled", "Download history is disabled")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// handleListHistory lists recent downloads, optionally filtered by URL
// GET /api/history?limit=&offset=&url=
func (s *Server) handleListHistory(w http.ResponseWriter, r *http.Request) {
	limit, err := queryInt(r, "limit", defaultPageSize, maxPageSize)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	offset, err := queryInt(r, "offset", 0, 0)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}

	var records []*database.DownloadRecord
	if url := r.URL.Query().Get("url"); url != "" {
		records, err = s.historyRepo.ListByURL(r.Context(), url, limit)
	} else {
		records, err = s.historyRepo.ListRecent(r.Context(), limit, offset)
	}
	if err != nil {
		s.logger.Error("failed to list download history", "error", err)
		respondError(w, http.StatusInternalServerError, "database_error", "Failed to list download history")
		return
	}

	items := make([]HistoryResponse, 0, len(records))
	for _, rec := range records {
		items = append(items, recordToResponse(rec))
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"records": items,
		"limit":   limit,
		"offset":  offset,
	})
}

// handleGetHistory returns the record of one download
// GET /api/history/{requestID}
func (s *Server) handleGetHistory(w http.ResponseWriter, r *http.Request) {
	requestID := chi.URLParam(r, "requestID")
	rec, err := s.historyRepo.GetByRequestID(r.Context(), requestID)
	if errors.Is(err, database.ErrNotFound) {
		respondError(w, http.StatusNotFound, "not_found", "No download with request ID "+requestID)
		return
	}
	if err != nil {
		s.logger.Error("failed to get download record", "request_id", requestID, "error", err)
		respondError(w, http.StatusInternalServerError, "database_error", "Failed to get download record")
		return
	}

	respondJSON(w, http.StatusOK, recordToResponse(rec))
}

// SummaryResponse aggregates download history
type SummaryResponse struct {
	Since                *time.Time       `json:"since,omitempty"`
	Total                int64            `json:"total"`
	Succeeded            int64            `json:"succeeded"`
	Failed               int64            `json:"failed"`
	CacheHits            int64            `json:"cache_hits"`
	BytesDownloaded      int64            `json:"bytes_downloaded"`
	BytesDownloadedHuman string           `json:"bytes_downloaded_human"`
	ByErrorKind          map[string]int64 `json:"by_error_kind"`
}

// handleHistorySummary aggregates history over a window such as ?window=24h
// GET /api/history/summary
func (s *Server) handleHistorySummary(w http.ResponseWriter, r *http.Request) {
	var since time.Time
	var sincePtr *time.Time
	if raw := r.URL.Query().Get("window"); raw != "" {
		window, err := time.ParseDuration(raw)
		if err != nil || window <= 0 {
			respondError(w, http.StatusBadRequest, "invalid_request", "window must be a positive duration such as 24h")
			return
		}
		since = time.Now().Add(-window)
		sincePtr = &since
	}

	summary, err := s.historyRepo.Summary(r.Context(), since)
	if err != nil {
		s.logger.Error("failed to summarize download history", "error", err)
		respondError(w, http.StatusInternalServerError, "database_error", "Failed to summarize download history")
		return
	}

	respondJSON(w, http.StatusOK, SummaryResponse{
		Since:                sincePtr,
		Total:                summary.Total,
		Succeeded:            summary.Succeeded,
		Failed:               summary.Failed,
		CacheHits:            summary.CacheHits,
		BytesDownloaded:      summary.BytesDownloaded,
		BytesDownloadedHuman: humanize.IBytes(uint64(summary.BytesDownloaded)),
		ByErrorKind:          summary.ByErrorKind,
	})
}

// AuditResponse is the JSON form of an audit log entry
type AuditResponse struct {
	ID           int64     `json:"id"`
	Actor        string    `json:"actor,omitempty"`
	Action       string    `json:"action"`
	ResourceType string    `json:"resource_type"`
	ResourceID   string    `json:"resource_id,omitempty"`
	IPAddress    string    `json:"ip_address,omitempty"`
	Success      bool      `json:"success"`
	ErrorMessage string    `json:"error_message,omitempty"`
	Metadata     string    `json:"metadata,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}

// handleAuditLogs returns audit logs, optionally for one actor or one resource
// GET /api/audit?limit=&offset=&actor=&resource_type=&resource_id=
func (s *Server) handleAuditLogs(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	actor := q.Get("actor")
	resourceType := q.Get("resource_type")
	resourceID := q.Get("resource_id")
	if (resourceType == "") != (resourceID == "") {
		respondError(w, http.StatusBadRequest, "invalid_request", "resource_type and resource_id must be given together")
		return
	}
	if actor != "" && resourceType != "" {
		respondError(w, http.StatusBadRequest, "invalid_request", "filter by actor or by resource, not both")
		return
	}

	limit, err := queryInt(r, "limit", defaultPageSize, maxPageSize)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	offset, err := queryInt(r, "offset", 0, 0)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}

	var actions []*database.AdminAction
	switch {
	case actor != "":
		actions, err = s.auditRepo.ListByActor(r.Context(), actor, limit, offset)
	case resourceType != "":
		actions, err = s.auditRepo.ListByResource(r.Context(), resourceType, resourceID, limit, offset)
	default:
		actions, err = s.auditRepo.List(r.Context(), limit, offset)
	}
	if err != nil {
		s.logger.Error("failed to list audit logs", "error", err)
		respondError(w, http.StatusInternalServerError, "database_error", "Failed to list audit logs")
		return
	}

	items := make([]AuditResponse, 0, len(actions))
	for _, a := range actions {
		items = append(items, AuditResponse{
			ID:           a.ID,
			Actor:        a.Actor.String,
			Action:       a.Action,
			ResourceType: a.ResourceType,
			ResourceID:   a.ResourceID.String,
			IPAddress:    a.IPAddress.String,
			Success:      a.Success,
			ErrorMessage: a.ErrorMessage.String,
			Metadata:     a.Metadata.String,
			CreatedAt:    a.CreatedAt,
		})
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"logs":   items,
		"limit":  limit,
		"offset": offset,
	})
}

// BackupResponse reports where a database backup was written
type BackupResponse struct {
	Path      string `json:"path"`
	SizeHuman string `json:"size_human"`
}

// handleTriggerBackup writes a consistent copy of the history database next to it
// POST /api/backup
func (s *Server) handleTriggerBackup(w http.ResponseWriter, r *http.Request) {
	dest := backupPath(s.db.Path(), time.Now())

	if err := s.db.Backup(r.Context(), dest); err != nil {
		s.logAuditEvent(r, "", "backup", "database", dest, false, err.Error(), nil)
		s.logger.Error("database backup failed", "path", dest, "error", err)
		respondError(w, http.StatusInternalServerError, "backup_error", "Failed to back up database")
		return
	}

	s.logAuditEvent(r, "", "backup", "database", dest, true, "", nil)

	response := BackupResponse{Path: dest}
	if size, err := fileSize(dest); err == nil {
		response.SizeHuman = humanize.IBytes(uint64(size))
	}
	respondJSON(w, http.StatusCreated, response)
}

// backupPath names a timestamped backup file in the database's directory
func backupPath(dbPath string, now time.Time) string {
	ext := filepath.Ext(dbPath)
	base := dbPath[:len(dbPath)-len(ext)]
	return fmt.Sprintf("%s-backup-%s%s", base, now.UTC().Format("20060102T150405Z"), ext)
}

func recordToResponse(rec *database.DownloadRecord) HistoryResponse {
	resp := HistoryResponse{
		ID:               rec.ID,
		RequestID:        rec.RequestID,
		URL:              rec.URL,
		CacheKey:         rec.CacheKey,
		Success:          rec.Success,
		FromCache:        rec.FromCache,
		Authenticated:    rec.Authenticated,
		RetriesAttempted: rec.RetriesAttempted,
		SizeBytes:        rec.SizeBytes,
		DurationMS:       rec.DurationMS,
		PDFVersion:       rec.PDFVersion.String,
		ErrorKind:        rec.ErrorKind.String,
		ErrorMessage:     rec.ErrorMessage.String,
		ArchiveKey:       rec.ArchiveKey.String,
		CreatedAt:        rec.CreatedAt,
	}
	if rec.PageCount.Valid {
		pages := rec.PageCount.Int64
		resp.PageCount = &pages
	}
	return resp
}
