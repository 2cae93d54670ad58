package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// ErrNotFound is returned when a requested row does not exist
var ErrNotFound = errors.New("record not found")

// HistoryRepository provides database access for download history
type HistoryRepository struct {
	db *DB
}

// NewHistoryRepository creates a new history repository
func NewHistoryRepository(db *DB) *HistoryRepository {
	return &HistoryRepository{db: db}
}

const historyColumns = `id, request_id, url, cache_key, success, from_cache, authenticated,
	       retries_attempted, size_bytes, duration_ms, pdf_version, page_count,
	       error_kind, error_message, archive_key, created_at`

// Record inserts a download record and fills in its ID and CreatedAt
func (r *HistoryRepository) Record(ctx context.Context, rec *DownloadRecord) error {
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}

	query := `
		INSERT INTO download_history (request_id, url, cache_key, success, from_cache, authenticated,
		                              retries_attempted, size_bytes, duration_ms, pdf_version, page_count,
		                              error_kind, error_message, archive_key, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	result, err := r.db.conn.ExecContext(ctx, query,
		rec.RequestID,
		rec.URL,
		rec.CacheKey,
		rec.Success,
		rec.FromCache,
		rec.Authenticated,
		rec.RetriesAttempted,
		rec.SizeBytes,
		rec.DurationMS,
		rec.PDFVersion,
		rec.PageCount,
		rec.ErrorKind,
		rec.ErrorMessage,
		rec.ArchiveKey,
		rec.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to record download: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get record ID: %w", err)
	}

	rec.ID = id
	return nil
}

// GetByRequestID retrieves the record of a single download
func (r *HistoryRepository) GetByRequestID(ctx context.Context, requestID string) (*DownloadRecord, error) {
	query := `SELECT ` + historyColumns + ` FROM download_history WHERE request_id = ?`

	rec, err := scanRecord(r.db.conn.QueryRowContext(ctx, query, requestID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: request %s", ErrNotFound, requestID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get download record: %w", err)
	}
	return rec, nil
}

// ListRecent returns the newest records first
func (r *HistoryRepository) ListRecent(ctx context.Context, limit, offset int) ([]*DownloadRecord, error) {
	query := `
		SELECT ` + historyColumns + `
		FROM download_history
		ORDER BY created_at DESC, id DESC
		LIMIT ? OFFSET ?
	`
	return r.list(ctx, query, limit, offset)
}

// ListByURL returns the history of one URL, newest first
func (r *HistoryRepository) ListByURL(ctx context.Context, url string, limit int) ([]*DownloadRecord, error) {
	query := `
		SELECT ` + historyColumns + `
		FROM download_history
		WHERE url = ?
		ORDER BY created_at DESC, id DESC
		LIMIT ?
	`
	return r.list(ctx, query, url, limit)
}

func (r *HistoryRepository) list(ctx context.Context, query string, args ...any) ([]*DownloadRecord, error) {
	rows, err := r.db.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list download history: %w", err)
	}
	defer rows.Close()

	var records []*DownloadRecord
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan download record: %w", err)
		}
		records = append(records, rec)
	}

	return records, rows.Err()
}

// Summary aggregates records created at or after since. A zero since
// covers the whole history.
func (r *HistoryRepository) Summary(ctx context.Context, since time.Time) (*HistorySummary, error) {
	summary := &HistorySummary{ByErrorKind: make(map[string]int64)}

	query := `
		SELECT COUNT(*),
		       COALESCE(SUM(CASE WHEN success THEN 1 ELSE 0 END), 0),
		       COALESCE(SUM(CASE WHEN from_cache THEN 1 ELSE 0 END), 0),
		       COALESCE(SUM(CASE WHEN success AND NOT from_cache THEN size_bytes ELSE 0 END), 0)
		FROM download_history
		WHERE created_at >= ?
	`
	err := r.db.conn.QueryRowContext(ctx, query, since.UTC()).Scan(
		&summary.Total,
		&summary.Succeeded,
		&summary.CacheHits,
		&summary.BytesDownloaded,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to summarize download history: %w", err)
	}
	summary.Failed = summary.Total - summary.Succeeded

	rows, err := r.db.conn.QueryContext(ctx, `
		SELECT error_kind, COUNT(*)
		FROM download_history
		WHERE error_kind IS NOT NULL AND created_at >= ?
		GROUP BY error_kind
	`, since.UTC())
	if err != nil {
		return nil, fmt.Errorf("failed to summarize download failures: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var kind string
		var count int64
		if err := rows.Scan(&kind, &count); err != nil {
			return nil, fmt.Errorf("failed to scan failure count: %w", err)
		}
		summary.ByErrorKind[kind] = count
	}

	return summary, rows.Err()
}

// DeleteOlderThan prunes records created before the given time
func (r *HistoryRepository) DeleteOlderThan(ctx context.Context, before time.Time) (int64, error) {
	result, err := r.db.conn.ExecContext(ctx, `DELETE FROM download_history WHERE created_at < ?`, before.UTC())
	if err != nil {
		return 0, fmt.Errorf("failed to delete old history: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}

	return rows, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (*DownloadRecord, error) {
	var rec DownloadRecord
	err := row.Scan(
		&rec.ID,
		&rec.RequestID,
		&rec.URL,
		&rec.CacheKey,
		&rec.Success,
		&rec.FromCache,
		&rec.Authenticated,
		&rec.RetriesAttempted,
		&rec.SizeBytes,
		&rec.DurationMS,
		&rec.PDFVersion,
		&rec.PageCount,
		&rec.ErrorKind,
		&rec.ErrorMessage,
		&rec.ArchiveKey,
		&rec.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &rec, nil
}
