package data

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/target/renewal-risk-api/internal/domain/model"
)

const calculationJobColumns = `id, property_id, as_of_date, status, error, started_at, completed_at, updated_at`

// CalculationJobRepo persists calculation jobs.
type CalculationJobRepo struct {
	DB           *sql.DB
	timeProvider TimeProvider
}

// CalculationJobRepoOptions configures NewCalculationJobRepo.
type CalculationJobRepoOptions struct {
	TimeProvider TimeProvider
}

// NewCalculationJobRepo creates a new CalculationJobRepo.
func NewCalculationJobRepo(db *sql.DB, opts CalculationJobRepoOptions) *CalculationJobRepo {
	tp := opts.TimeProvider
	if tp == nil {
		tp = &RealTimeProvider{}
	}
	return &CalculationJobRepo{DB: db, timeProvider: tp}
}

func scanCalculationJob(row rowScanner) (*model.CalculationJob, error) {
	var j model.CalculationJob
	if err := row.Scan(
		&j.ID, &j.PropertyID, &j.AsOfDate, &j.Status, &j.Error, &j.StartedAt, &j.CompletedAt, &j.UpdatedAt,
	); err != nil {
		return nil, err
	}
	return &j, nil
}

// Create inserts a job in processing state.
func (r *CalculationJobRepo) Create(
	ctx context.Context,
	req model.CreateCalculationJobRequest,
) (*model.CalculationJob, error) {
	if req.PropertyID == "" {
		return nil, ErrPropertyIDRequired
	}
	now := r.timeProvider.Now().UTC()
	row := r.DB.QueryRowContext(ctx, `
		INSERT INTO calculation_jobs (id, property_id, as_of_date, status, started_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $5)
		RETURNING `+calculationJobColumns,
		uuid.NewString(), req.PropertyID, req.AsOfDate, model.CalculationJobStatusProcessing, now,
	)
	job, err := scanCalculationJob(row)
	if err != nil {
		return nil, fmt.Errorf("create calculation job: %w", err)
	}
	return job, nil
}

// GetByID returns a job or ErrCalculationJobNotFound.
func (r *CalculationJobRepo) GetByID(ctx context.Context, id string) (*model.CalculationJob, error) {
	if !validUUID(id) {
		return nil, ErrCalculationJobNotFound
	}
	row := r.DB.QueryRowContext(ctx, `SELECT `+calculationJobColumns+` FROM calculation_jobs WHERE id = $1`, id)
	job, err := scanCalculationJob(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrCalculationJobNotFound
		}
		return nil, fmt.Errorf("get calculation job: %w", err)
	}
	return job, nil
}

// Complete marks a processing job completed. Returns false if the job was already terminal.
func (r *CalculationJobRepo) Complete(ctx context.Context, id string) (bool, error) {
	return r.finish(ctx, id, model.CalculationJobStatusCompleted, nil)
}

// Fail marks a processing job failed with errMsg. Returns false if the job was already terminal.
func (r *CalculationJobRepo) Fail(ctx context.Context, id, errMsg string) (bool, error) {
	return r.finish(ctx, id, model.CalculationJobStatusFailed, &errMsg)
}

func (r *CalculationJobRepo) finish(
	ctx context.Context,
	id string,
	status model.CalculationJobStatus,
	errMsg *string,
) (bool, error) {
	now := r.timeProvider.Now().UTC()
	res, err := r.DB.ExecContext(ctx, `
		UPDATE calculation_jobs
		SET status = $2, error = $3, completed_at = $4, updated_at = $4
		WHERE id = $1 AND status = $5
	`, id, status, errMsg, now, model.CalculationJobStatusProcessing)
	if err != nil {
		return false, fmt.Errorf("mark calculation job %s: %w", status, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return n > 0, nil
}
