package repository

import (
	"context"
	"database/sql"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/invoiceworks/invoice-converter/constants"
	"github.com/invoiceworks/invoice-converter/internal/common"
	"github.com/invoiceworks/invoice-converter/internal/entity"
)

type FileRepository interface {
	Create(ctx context.Context, f *entity.InvoiceFile) error
	ListByJob(ctx context.Context, jobID uuid.UUID) ([]*entity.InvoiceFile, error)
	SetStatus(ctx context.Context, id uuid.UUID, status constants.FileStatus) error
	MarkFailed(ctx context.Context, id uuid.UUID, message string) error
	SetCurrencies(ctx context.Context, id uuid.UUID, original, target string) error
	SetConversion(ctx context.Context, id uuid.UUID, rate, convertedTotal decimal.Decimal) error
}

type fileRepo struct {
	db     *sql.DB
	logger *slog.Logger
}

func NewFileRepository(db *sql.DB, logger *slog.Logger) FileRepository {
	if logger == nil {
		logger = slog.Default()
	}
	return &fileRepo{db: db, logger: logger}
}

func (r *fileRepo) Create(ctx context.Context, f *entity.InvoiceFile) error {
	if f.UploadedAt.IsZero() {
		f.UploadedAt = time.Now().UTC()
	}
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO files (id, job_id, filename, source_path, status, uploaded_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		f.ID.String(), f.JobID.String(), f.Filename, f.SourcePath, string(f.Status), f.UploadedAt)
	if err != nil {
		r.logger.Error("failed to create file row", "job_id", f.JobID, "filename", f.Filename, "error", err)
		return common.WrapError(err, "create file")
	}
	return nil
}

func (r *fileRepo) ListByJob(ctx context.Context, jobID uuid.UUID) ([]*entity.InvoiceFile, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, job_id, filename, source_path, status, original_currency, target_currency,
		        error_message, converted_total, exchange_rate, uploaded_at
		 FROM files WHERE job_id = $1 ORDER BY uploaded_at, id`, jobID.String())
	if err != nil {
		r.logger.Error("failed to list files", "job_id", jobID, "error", err)
		return nil, common.WrapError(err, "list files")
	}
	defer rows.Close()

	var out []*entity.InvoiceFile
	for rows.Next() {
		f, err := scanFile(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, f)
	}
	return out, rows.Err()
}

func scanFile(rows *sql.Rows) (*entity.InvoiceFile, error) {
	var (
		f                        entity.InvoiceFile
		id, jobID, status        string
		origCur, targetCur       sql.NullString
		errMsg, convTotal, xRate sql.NullString
	)
	if err := rows.Scan(&id, &jobID, &f.Filename, &f.SourcePath, &status,
		&origCur, &targetCur, &errMsg, &convTotal, &xRate, &f.UploadedAt); err != nil {
		return nil, common.WrapError(err, "scan file")
	}
	var err error
	if f.ID, err = uuid.Parse(id); err != nil {
		return nil, common.WrapError(err, "parse file id")
	}
	if f.JobID, err = uuid.Parse(jobID); err != nil {
		return nil, common.WrapError(err, "parse file job id")
	}
	f.Status = constants.FileStatus(status)
	if origCur.Valid {
		f.OriginalCurrency = &origCur.String
	}
	if targetCur.Valid {
		f.TargetCurrency = &targetCur.String
	}
	if errMsg.Valid {
		f.ErrorMessage = &errMsg.String
	}
	if convTotal.Valid {
		d, err := decimal.NewFromString(convTotal.String)
		if err != nil {
			return nil, common.WrapError(err, "parse converted total")
		}
		f.ConvertedTotal = &d
	}
	if xRate.Valid {
		d, err := decimal.NewFromString(xRate.String)
		if err != nil {
			return nil, common.WrapError(err, "parse exchange rate")
		}
		f.ExchangeRate = &d
	}
	return &f, nil
}

func (r *fileRepo) SetStatus(ctx context.Context, id uuid.UUID, status constants.FileStatus) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE files SET status = $1 WHERE id = $2`, string(status), id.String())
	if err != nil {
		r.logger.Error("failed to set file status", "file_id", id, "status", status, "error", err)
		return common.WrapError(err, "set file status")
	}
	return nil
}

func (r *fileRepo) MarkFailed(ctx context.Context, id uuid.UUID, message string) error {
	// Keep the first recorded error for the run; a failed item never goes
	// back to a success status in the same run.
	_, err := r.db.ExecContext(ctx,
		`UPDATE files SET status = $1, error_message = COALESCE(error_message, $2) WHERE id = $3`,
		string(constants.FileStatusFailed), message, id.String())
	if err != nil {
		r.logger.Error("failed to mark file failed", "file_id", id, "error", err)
		return common.WrapError(err, "mark file failed")
	}
	return nil
}

func (r *fileRepo) SetCurrencies(ctx context.Context, id uuid.UUID, original, target string) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE files SET original_currency = $1, target_currency = $2 WHERE id = $3`,
		original, target, id.String())
	if err != nil {
		r.logger.Error("failed to set file currencies", "file_id", id, "error", err)
		return common.WrapError(err, "set file currencies")
	}
	return nil
}

func (r *fileRepo) SetConversion(ctx context.Context, id uuid.UUID, rate, convertedTotal decimal.Decimal) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE files SET exchange_rate = $1, converted_total = $2, status = $3 WHERE id = $4`,
		rate.String(), convertedTotal.String(), string(constants.FileStatusConverted), id.String())
	if err != nil {
		r.logger.Error("failed to set file conversion", "file_id", id, "error", err)
		return common.WrapError(err, "set file conversion")
	}
	return nil
}
