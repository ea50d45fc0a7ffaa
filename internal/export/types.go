// Package export renders review summary exports for localization plans.
package export

import "errors"

// Format represents the export output format
type Format string

const (
	FormatPDF Format = "pdf"
)

// Request contains parameters for an export operation
type Request struct {
	PlanID string
	// Pass selects one review pass; 0 exports the latest pass.
	Pass             int
	Format           Format
	IncludeDecisions bool
}

// Result contains the export output
type Result struct {
	Data     []byte
	Filename string
	MimeType string
}

var (
	// ErrContentUnavailable indicates plan content could not be loaded for export.
	ErrContentUnavailable = errors.New("export content unavailable")
	// ErrPDFDependencyMissing indicates PDF export runtime dependencies are unavailable.
	ErrPDFDependencyMissing = errors.New("export pdf dependency missing")
)
