package database

import (
	"database/sql"
	"time"
)

// DownloadRecord is one row of download history
type DownloadRecord struct {
	ID        int64
	RequestID string
	URL       string
	CacheKey  string

	// Outcome
	Success          bool
	FromCache        bool
	Authenticated    bool
	RetriesAttempted int
	SizeBytes        int64
	DurationMS       int64

	// Document details
	PDFVersion sql.NullString
	PageCount  sql.NullInt64

	// Failure details
	ErrorKind    sql.NullString
	ErrorMessage sql.NullString

	ArchiveKey sql.NullString

	CreatedAt time.Time
}

// HistorySummary aggregates download history over a time window
type HistorySummary struct {
	Total           int64
	Succeeded       int64
	Failed          int64
	CacheHits       int64
	BytesDownloaded int64
	ByErrorKind     map[string]int64
}

// AdminAction represents an audit log entry
type AdminAction struct {
	ID    int64
	Actor sql.NullString

	// Action details
	Action       string
	ResourceType string
	ResourceID   sql.NullString

	// Request context
	IPAddress sql.NullString
	UserAgent sql.NullString

	// Action result
	Success      bool
	ErrorMessage sql.NullString

	// Additional data (JSON)
	Metadata sql.NullString

	CreatedAt time.Time
}
