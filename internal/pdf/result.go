// Package pdf provides structural and policy validation for PDF documents.
// It inspects the framing elements of a PDF (header, xref table, trailer,
// object delimiters and EOF marker) without rendering or parsing content.
package pdf

import (
	"time"
)

// FailureClass identifies which check rejected a document
type FailureClass string

const (
	FailureNone     FailureClass = ""
	FailureEmpty    FailureClass = "empty"
	FailureSize     FailureClass = "size"
	FailureHeader   FailureClass = "header"
	FailureXRef     FailureClass = "xref"
	FailureTrailer  FailureClass = "trailer"
	FailureObjects  FailureClass = "objects"
	FailureEOF      FailureClass = "eof"
	FailurePolicy   FailureClass = "policy"
	FailureInternal FailureClass = "internal"
)

// Checks records the outcome of every individual check.
// A check that was never reached because an earlier one failed stays false.
type Checks struct {
	NotEmpty        bool `json:"not_empty"`
	SizeWithinLimit bool `json:"size_within_limit"`
	Header          bool `json:"header"`
	XRef            bool `json:"xref"`
	Trailer         bool `json:"trailer"`
	ObjectsBalanced bool `json:"objects_balanced"`
	EOFMarker       bool `json:"eof_marker"`
	PageCount       bool `json:"page_count"`
	Encryption      bool `json:"encryption"`
	Version         bool `json:"version"`
}

// ValidationResult describes the outcome of validating a document
type ValidationResult struct {
	IsValid bool `json:"is_valid"`

	// Error is the human-readable reason the document was rejected
	Error string `json:"error,omitempty"`

	// Failure is the class of the check that rejected the document
	Failure FailureClass `json:"failure,omitempty"`

	PDFVersion  string  `json:"pdf_version,omitempty"`
	PageCount   int     `json:"page_count"`
	IsEncrypted bool    `json:"is_encrypted"`
	FileSizeMB  float64 `json:"file_size_mb"`

	Checks Checks `json:"checks"`

	// Elapsed is how long validation took
	Elapsed time.Duration `json:"elapsed"`

	RepairAttempted  bool `json:"repair_attempted"`
	RepairSuccessful bool `json:"repair_successful"`

	// RepairedContent holds the repaired bytes when a repair succeeded
	RepairedContent []byte `json:"-"`
}

// fail marks the result invalid with the given class and message
func (r *ValidationResult) fail(class FailureClass, msg string) *ValidationResult {
	r.IsValid = false
	r.Failure = class
	r.Error = msg
	return r
}
