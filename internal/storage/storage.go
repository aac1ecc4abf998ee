// Package storage persists the document metadata file and the sqlite run ledger.
package storage

import (
	"context"

	"github.com/hyperjump/kioku/internal/models"
)

// RunLedger records finished indexing runs.
type RunLedger interface {
	// RecordRun stores stats; runErr is the error that ended the run, or nil.
	RecordRun(ctx context.Context, stats *models.IndexStats, runErr error) error
	// ListRuns returns up to limit runs, newest first.
	ListRuns(ctx context.Context, limit int) ([]*models.RunRecord, error)
	Close() error
}
