package backend

import (
	"context"

	"schememap/internal/sources"
)

// SchemeSource is a scheme reader with a stable display name.
type SchemeSource interface {
	sources.SchemeReader
	Name() string
}

// CleanupFunc represents a cleanup function for resources
type CleanupFunc func() error

// BackendResult contains the scheme source and optional cleanup function
type BackendResult struct {
	Source  SchemeSource
	Cleanup CleanupFunc
}

// Factory creates scheme sources based on configuration
type Factory interface {
	CreateBackend(ctx context.Context, config Config) (*BackendResult, error)
}

// Config holds configuration for backend creation
type Config struct {
	Type BackendType

	// File specific
	SchemesFile  string
	SchemesSheet string

	// SQLite specific
	SQLiteDBPath string

	// Google Sheets specific
	GoogleSpreadsheetID string
	GoogleSchemesSheet  string
}

// BackendType represents the type of backend
type BackendType string

const (
	FileBackend   BackendType = "file"
	SQLiteBackend BackendType = "sqlite"
	SheetsBackend BackendType = "sheets"
)

// String implements fmt.Stringer
func (bt BackendType) String() string {
	return string(bt)
}

// IsValid returns true if the backend type is valid
func (bt BackendType) IsValid() bool {
	switch bt {
	case FileBackend, SQLiteBackend, SheetsBackend:
		return true
	default:
		return false
	}
}
