package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/invoiceworks/invoice-converter/constants"
	"github.com/invoiceworks/invoice-converter/internal/entity"
	"github.com/invoiceworks/invoice-converter/internal/progress"
	"github.com/invoiceworks/invoice-converter/internal/repository"
)

// Result is the pipeline deliverable for one job.
type Result struct {
	XLSX     []byte
	RowCount int
}

// Runner drives one job through extract, validate, convert and report in
// strict order. Item failures are absorbed by the stages; only stage-level
// errors (context expiry, report rendering) abort the job.
type Runner struct {
	Jobs     repository.JobRepository
	Extract  *ExtractStage
	Validate *ValidateStage
	Convert  *ConvertStage
	Report   *ReportStage
	Notifier progress.Notifier
	Timeout  time.Duration
	Logger   *slog.Logger
}

func (r *Runner) logger() *slog.Logger {
	if r.Logger == nil {
		return slog.Default()
	}
	return r.Logger
}

func (r *Runner) notify(ev progress.Event) {
	if r.Notifier != nil {
		r.Notifier.Publish(ev)
	}
}

// Run processes the batch and returns the rendered workbook. The job row is
// always left in a terminal status, even when the run fails or times out.
func (r *Runner) Run(ctx context.Context, job *entity.Job, b *Batch) (*Result, error) {
	log := r.logger()
	start := time.Now()

	if r.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.Timeout)
		defer cancel()
	}

	if err := r.Jobs.SetStatus(ctx, job.ID, constants.JobStatusProcessing); err != nil {
		log.Warn("pipeline.job.persist_failed", "job_id", job.ID, "error", err)
	}
	r.notify(progress.Event{
		JobID:       job.ID.String(),
		Status:      constants.JobStatusProcessing,
		CurrentStep: constants.StepUploading,
		Processed:   0,
		Total:       len(b.Items),
		Percentage:  10,
		Message:     fmt.Sprintf("Processing %d file(s)", len(b.Items)),
	})

	if err := r.Extract.Run(ctx, b); err != nil {
		return nil, r.fail(ctx, job, b, err)
	}
	r.notify(progress.Event{
		JobID:       job.ID.String(),
		Status:      constants.JobStatusProcessing,
		CurrentStep: constants.StepExtracting,
		Processed:   b.Settled(),
		Total:       len(b.Items),
		Percentage:  50,
		Message:     "Extraction complete",
	})

	if err := r.Validate.Run(ctx, b); err != nil {
		return nil, r.fail(ctx, job, b, err)
	}

	if err := r.Convert.Run(ctx, b); err != nil {
		return nil, r.fail(ctx, job, b, err)
	}
	r.notify(progress.Event{
		JobID:       job.ID.String(),
		Status:      constants.JobStatusProcessing,
		CurrentStep: constants.StepConversion,
		Processed:   b.Settled(),
		Total:       len(b.Items),
		Percentage:  80,
		Message:     "Currency conversion complete",
	})

	xlsx, n, err := r.Report.Run(ctx, b)
	if err != nil {
		return nil, r.fail(ctx, job, b, err)
	}

	if err := r.Jobs.SetProcessed(ctx, job.ID, b.Settled()); err != nil {
		log.Warn("pipeline.job.persist_failed", "job_id", job.ID, "error", err)
	}
	if err := r.Jobs.SetStatus(ctx, job.ID, constants.JobStatusCompleted); err != nil {
		log.Warn("pipeline.job.persist_failed", "job_id", job.ID, "error", err)
	}
	r.notify(progress.Event{
		JobID:       job.ID.String(),
		Status:      constants.JobStatusCompleted,
		CurrentStep: constants.StepCompleted,
		Processed:   b.Settled(),
		Total:       len(b.Items),
		Percentage:  100,
		Message:     "Report ready",
	})
	log.Info("pipeline.job.completed",
		"job_id", job.ID,
		"files", len(b.Items),
		"settled", b.Settled(),
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return &Result{XLSX: xlsx, RowCount: n}, nil
}

// fail records a job-fatal error. Persistence runs on a fresh context so a
// deadline that killed the run cannot also block the status write.
func (r *Runner) fail(ctx context.Context, job *entity.Job, b *Batch, cause error) error {
	log := r.logger()

	prefix := "Processing failed"
	if errors.Is(cause, context.DeadlineExceeded) {
		prefix = "Processing timed out"
	}
	// Progress consumers only see events, so the terminal one carries the
	// cause, not just a generic label.
	msg := fmt.Sprintf("%s: %v", prefix, cause)

	persistCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := r.Jobs.SetProcessed(persistCtx, job.ID, b.Settled()); err != nil {
		log.Warn("pipeline.job.persist_failed", "job_id", job.ID, "error", err)
	}
	if err := r.Jobs.SetStatus(persistCtx, job.ID, constants.JobStatusError); err != nil {
		log.Warn("pipeline.job.persist_failed", "job_id", job.ID, "error", err)
	}

	r.notify(progress.Event{
		JobID:       job.ID.String(),
		Status:      constants.JobStatusError,
		CurrentStep: constants.StepCompleted,
		Processed:   b.Settled(),
		Total:       len(b.Items),
		Percentage:  100,
		Message:     msg,
	})
	log.Error("pipeline.job.failed", "job_id", job.ID, "error", cause)
	return fmt.Errorf("%s: %w", prefix, cause)
}
