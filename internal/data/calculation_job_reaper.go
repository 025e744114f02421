package data

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/target/renewal-risk-api/internal/core"
	"github.com/target/renewal-risk-api/internal/data/pgxutil"
	"github.com/target/renewal-risk-api/internal/domain/model"
)

// Two-key advisory locks keep concurrent reaper instances from working the same rows.
const (
	advisoryLockReaperMajor       = 4100
	advisoryLockReaperFailStale   = 1
	advisoryLockReaperDeleteJobs  = 2
	staleCalculationJobErrMessage = "Calculation abandoned: job exceeded its processing window"
)

var _ core.CalculationJobReaperRepository = (*CalculationJobRepo)(nil)

// FailStaleProcessing fails up to batchSize jobs that have been processing longer than maxAge.
// Such jobs were orphaned by a process that stopped before finishing them.
func (r *CalculationJobRepo) FailStaleProcessing(ctx context.Context, maxAge time.Duration, batchSize int) (int64, error) {
	if batchSize <= 0 {
		return 0, errors.New("batch size must be greater than zero")
	}
	now := r.timeProvider.Now().UTC()
	return r.execUnderReaperLock(ctx, advisoryLockReaperFailStale, `
		UPDATE calculation_jobs
		SET status = $1, error = $2, completed_at = $3, updated_at = $3
		WHERE id IN (
			SELECT id FROM calculation_jobs
			WHERE status = $4
			  AND started_at < $5
			ORDER BY started_at
			LIMIT $6
		)
	`, model.CalculationJobStatusFailed, staleCalculationJobErrMessage, now,
		model.CalculationJobStatusProcessing, now.Add(-maxAge), batchSize)
}

// DeleteOldJobs deletes up to BatchSize terminal jobs of the given status older than MaxAge.
// Score snapshots are kept; they do not reference the job.
func (r *CalculationJobRepo) DeleteOldJobs(ctx context.Context, params core.DeleteOldCalculationJobsParams) (int64, error) {
	if !params.Status.Terminal() {
		return 0, fmt.Errorf("refusing to delete %q calculation jobs", params.Status)
	}
	if params.BatchSize <= 0 {
		return 0, errors.New("batch size must be greater than zero")
	}
	cutoff := r.timeProvider.Now().UTC().Add(-params.MaxAge)
	return r.execUnderReaperLock(ctx, advisoryLockReaperDeleteJobs, `
		DELETE FROM calculation_jobs
		WHERE id IN (
			SELECT id FROM calculation_jobs
			WHERE status = $1
			  AND COALESCE(completed_at, updated_at) < $2
			ORDER BY COALESCE(completed_at, updated_at)
			LIMIT $3
		)
	`, params.Status, cutoff, params.BatchSize)
}

// execUnderReaperLock runs query in a transaction holding the given advisory lock.
// It reports zero rows when another instance holds the lock.
func (r *CalculationJobRepo) execUnderReaperLock(ctx context.Context, minor int, query string, args ...any) (int64, error) {
	var rowsAffected int64
	err := pgxutil.WithSQLTx(ctx, r.DB, pgxutil.SQLTxConfig{
		Fn: func(tx *sql.Tx) error {
			var locked bool
			if err := tx.QueryRowContext(ctx,
				"SELECT pg_try_advisory_xact_lock($1, $2)", advisoryLockReaperMajor, minor,
			).Scan(&locked); err != nil {
				return fmt.Errorf("acquire advisory lock: %w", err)
			}
			if !locked {
				return nil
			}

			res, err := tx.ExecContext(ctx, query, args...)
			if err != nil {
				return fmt.Errorf("reap calculation jobs: %w", err)
			}
			n, err := res.RowsAffected()
			if err != nil {
				return fmt.Errorf("rows affected: %w", err)
			}
			rowsAffected = n
			return nil
		},
	})
	if err != nil {
		return 0, err
	}
	return rowsAffected, nil
}
