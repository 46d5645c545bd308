package ops

import (
	"log/slog"

	"github.com/hpungsan/ctxbridge/internal/config"
)

// Pagination limits
const (
	DefaultListLimit = 20
	MaxListLimit     = 100
)

// maxCASRetries bounds read-modify-write retries against a versioned store.
const maxCASRetries = 5

// Pagination contains pagination metadata for list operations.
type Pagination struct {
	Limit   int  `json:"limit"`
	Offset  int  `json:"offset"`
	HasMore bool `json:"has_more"`
	Total   int  `json:"total"`
}

// Options configures a Repository.
type Options struct {
	Config *config.Config

	// BaseDir is the data directory (~/.ctxbridge). Exports default to BaseDir/exports.
	BaseDir string

	Logger *slog.Logger
}
