package repository

import (
	"context"
	"database/sql"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/invoiceworks/invoice-converter/constants"
	"github.com/invoiceworks/invoice-converter/internal/common"
	"github.com/invoiceworks/invoice-converter/internal/entity"
)

type JobRepository interface {
	Create(ctx context.Context, job *entity.Job) error
	GetByID(ctx context.Context, id uuid.UUID) (*entity.Job, error)
	SetStatus(ctx context.Context, id uuid.UUID, status constants.JobStatus) error
	SetProcessed(ctx context.Context, id uuid.UUID, processed int) error
}

type jobRepo struct {
	db     *sql.DB
	logger *slog.Logger
}

func NewJobRepository(db *sql.DB, logger *slog.Logger) JobRepository {
	if logger == nil {
		logger = slog.Default()
	}
	return &jobRepo{db: db, logger: logger}
}

func (r *jobRepo) Create(ctx context.Context, job *entity.Job) error {
	now := time.Now().UTC()
	job.CreatedAt = now
	job.UpdatedAt = now
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO jobs (job_id, status, processed, total, target_currency, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		job.ID.String(), string(job.Status), job.Processed, job.Total, job.TargetCurrency, now, now)
	if err != nil {
		r.logger.Error("failed to create job", "job_id", job.ID, "error", err)
		return common.WrapError(err, "create job")
	}
	return nil
}

func (r *jobRepo) GetByID(ctx context.Context, id uuid.UUID) (*entity.Job, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT job_id, status, processed, total, target_currency, created_at, updated_at
		 FROM jobs WHERE job_id = $1`, id.String())

	var (
		job      entity.Job
		jobID    string
		status   string
		currency sql.NullString
	)
	err := row.Scan(&jobID, &status, &job.Processed, &job.Total, &currency, &job.CreatedAt, &job.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, common.ErrNotFound
	}
	if err != nil {
		r.logger.Error("failed to get job", "job_id", id, "error", err)
		return nil, common.WrapError(err, "get job")
	}
	job.ID, err = uuid.Parse(jobID)
	if err != nil {
		return nil, common.WrapError(err, "parse job id")
	}
	job.Status = constants.JobStatus(status)
	job.TargetCurrency = currency.String
	return &job, nil
}

func (r *jobRepo) SetStatus(ctx context.Context, id uuid.UUID, status constants.JobStatus) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE jobs SET status = $1, updated_at = $2 WHERE job_id = $3`,
		string(status), time.Now().UTC(), id.String())
	if err != nil {
		r.logger.Error("failed to set job status", "job_id", id, "status", status, "error", err)
		return common.WrapError(err, "set job status")
	}
	return nil
}

func (r *jobRepo) SetProcessed(ctx context.Context, id uuid.UUID, processed int) error {
	// processed only increases; never let a stale writer move it backwards.
	_, err := r.db.ExecContext(ctx,
		`UPDATE jobs SET processed = $1, updated_at = $2 WHERE job_id = $3 AND processed <= $1`,
		processed, time.Now().UTC(), id.String())
	if err != nil {
		r.logger.Error("failed to set job processed", "job_id", id, "processed", processed, "error", err)
		return common.WrapError(err, "set job processed")
	}
	return nil
}
