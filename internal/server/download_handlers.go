package server

import (
	"errors"
	"io"
	"net/http"

	"github.com/ned1313/pdf-mirror/internal/downloader"
)

// maxBatchURLs bounds the number of URLs accepted by one download request
const maxBatchURLs = 100

// maxUnboundedUpload caps /api/validate bodies when the policy sets no size limit
const maxUnboundedUpload = 512 * bytesPerMB

// DownloadRequest is the body of POST /api/downloads
type DownloadRequest struct {
	URLs       []string `json:"urls"`
	MaxWorkers int      `json:"max_workers,omitempty"`
}

// DownloadResponse summarizes a batch of downloads
type DownloadResponse struct {
	Results   []*downloader.Result `json:"results"`
	Succeeded int                  `json:"succeeded"`
	Failed    int                  `json:"failed"`
	FromCache int                  `json:"from_cache"`
}

// handleDownloads fetches, validates and caches the requested URLs.
// Per-URL failures are reported in the results, not as an HTTP error.
// POST /api/downloads
func (s *Server) handleDownloads(w http.ResponseWriter, r *http.Request) {
	var req DownloadRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}

	if len(req.URLs) == 0 {
		respondError(w, http.StatusBadRequest, "missing_urls", "At least one URL is required")
		return
	}
	if len(req.URLs) > maxBatchURLs {
		respondError(w, http.StatusBadRequest, "too_many_urls", "A request may contain at most 100 URLs")
		return
	}

	var results []*downloader.Result
	if len(req.URLs) == 1 {
		res, _ := s.downloader.Download(r.Context(), req.URLs[0], nil)
		results = []*downloader.Result{res}
	} else {
		results = s.downloader.DownloadConcurrent(r.Context(), req.URLs, req.MaxWorkers)
	}

	response := DownloadResponse{Results: results}
	for _, res := range results {
		switch {
		case !res.Success:
			response.Failed++
		case res.FromCache:
			response.FromCache++
			response.Succeeded++
		default:
			response.Succeeded++
		}
	}

	s.logAuditEvent(r, "", "download", "url_batch", "", response.Failed == 0, "", map[string]interface{}{
		"urls":      req.URLs,
		"succeeded": response.Succeeded,
		"failed":    response.Failed,
	})

	respondJSON(w, http.StatusOK, response)
}

// handleValidate validates a PDF sent as the raw request body without
// caching it. ?repair=true runs registered repairers on failure.
// POST /api/validate
func (s *Server) handleValidate(w http.ResponseWriter, r *http.Request) {
	// One byte over the policy limit lets the validator report the size failure itself
	limit := int64(s.validator.Policy().MaxSizeMB*bytesPerMB) + 1
	if limit <= 1 {
		limit = maxUnboundedUpload
	}
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, limit))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if !errors.As(err, &tooLarge) {
			respondError(w, http.StatusBadRequest, "invalid_request", "Failed to read request body")
			return
		}
	}

	validate := s.validator.Validate
	if r.URL.Query().Get("repair") == "true" {
		validate = s.validator.ValidateWithRepair
	}
	result := validate(body)

	status := http.StatusOK
	if !result.IsValid {
		status = http.StatusUnprocessableEntity
	}
	respondJSON(w, status, result)
}
