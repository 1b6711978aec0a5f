// Package repository persists analyzed call-tree runs.
package repository

import (
	"context"
)

// RunRepository defines the database operations on analyzed runs.
type RunRepository interface {
	// SaveRun stores a run and its rows in one transaction.
	SaveRun(ctx context.Context, run *ProfileRun, rows []ProfileRow) error

	// GetRun retrieves a run by its UUID.
	GetRun(ctx context.Context, runUUID string) (*ProfileRun, error)

	// ListRuns returns runs, newest first.
	ListRuns(ctx context.Context, limit, offset int) ([]*ProfileRun, error)

	// GetRows returns the rows of a run in table order, optionally limited
	// to a depth range.
	GetRows(ctx context.Context, runUUID string, minDepth, maxDepth *int) ([]ProfileRow, error)

	// DeleteRun removes a run and its rows.
	DeleteRun(ctx context.Context, runUUID string) error
}
