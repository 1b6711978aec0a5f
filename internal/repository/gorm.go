package repository

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	apperrors "github.com/hpc-analysis/pkg/errors"
)

const rowBatchSize = 500

// GormRunRepository implements RunRepository using GORM.
type GormRunRepository struct {
	db *gorm.DB
}

// NewGormRunRepository creates a new GormRunRepository.
func NewGormRunRepository(db *gorm.DB) *GormRunRepository {
	return &GormRunRepository{db: db}
}

// SaveRun stores a run and its rows. A run with the same UUID is replaced.
func (r *GormRunRepository) SaveRun(ctx context.Context, run *ProfileRun, rows []ProfileRow) error {
	if run == nil || run.RunUUID == "" {
		return apperrors.Wrap(apperrors.CodeInvalidInput, "run uuid is required", apperrors.ErrInvalidInput)
	}

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if _, err := deleteRun(tx, run.RunUUID); err != nil {
			return err
		}
		if err := tx.Create(run).Error; err != nil {
			return err
		}
		if len(rows) == 0 {
			return nil
		}
		for i := range rows {
			rows[i].RunUUID = run.RunUUID
		}
		return tx.CreateInBatches(&rows, rowBatchSize).Error
	})
	if err != nil {
		return apperrors.Wrap(apperrors.CodeDatabaseError, fmt.Sprintf("failed to save run %s", run.RunUUID), err)
	}
	return nil
}

// GetRun retrieves a run by its UUID.
func (r *GormRunRepository) GetRun(ctx context.Context, runUUID string) (*ProfileRun, error) {
	var run ProfileRun

	err := r.db.WithContext(ctx).Where("run_uuid = ?", runUUID).First(&run).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, runNotFound(runUUID)
		}
		return nil, apperrors.Wrap(apperrors.CodeDatabaseError, "failed to get run", err)
	}
	return &run, nil
}

// ListRuns returns runs, newest first. A non-positive limit returns all.
func (r *GormRunRepository) ListRuns(ctx context.Context, limit, offset int) ([]*ProfileRun, error) {
	var runs []*ProfileRun

	q := r.db.WithContext(ctx).Order("id DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if offset > 0 {
		q = q.Offset(offset)
	}
	if err := q.Find(&runs).Error; err != nil {
		return nil, apperrors.Wrap(apperrors.CodeDatabaseError, "failed to list runs", err)
	}
	return runs, nil
}

// GetRows returns the rows of a run in table order.
func (r *GormRunRepository) GetRows(ctx context.Context, runUUID string, minDepth, maxDepth *int) ([]ProfileRow, error) {
	if _, err := r.GetRun(ctx, runUUID); err != nil {
		return nil, err
	}

	q := r.db.WithContext(ctx).Where("run_uuid = ?", runUUID)
	if minDepth != nil {
		q = q.Where("depth >= ?", *minDepth)
	}
	if maxDepth != nil {
		q = q.Where("depth <= ?", *maxDepth)
	}

	var rows []ProfileRow
	err := q.Order(clause.OrderByColumn{Column: clause.Column{Name: "position"}}).Find(&rows).Error
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CodeDatabaseError, "failed to get rows", err)
	}
	return rows, nil
}

// DeleteRun removes a run and its rows.
func (r *GormRunRepository) DeleteRun(ctx context.Context, runUUID string) error {
	var deleted int64
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		deleted, err = deleteRun(tx, runUUID)
		return err
	})
	if err != nil {
		return apperrors.Wrap(apperrors.CodeDatabaseError, "failed to delete run", err)
	}
	if deleted == 0 {
		return runNotFound(runUUID)
	}
	return nil
}

// deleteRun removes the rows and the run record, returning the number of
// run records removed.
func deleteRun(tx *gorm.DB, runUUID string) (int64, error) {
	if err := tx.Where("run_uuid = ?", runUUID).Delete(&ProfileRow{}).Error; err != nil {
		return 0, err
	}
	result := tx.Where("run_uuid = ?", runUUID).Delete(&ProfileRun{})
	return result.RowsAffected, result.Error
}

func runNotFound(runUUID string) error {
	return apperrors.Wrap(apperrors.CodeNotFound, fmt.Sprintf("run not found: %s", runUUID), apperrors.ErrNotFound)
}
