package pipeline

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/invoiceworks/invoice-converter/constants"
	"github.com/invoiceworks/invoice-converter/internal/entity"
	"github.com/invoiceworks/invoice-converter/internal/extract"
	"github.com/invoiceworks/invoice-converter/internal/progress"
	"github.com/invoiceworks/invoice-converter/internal/repository"
)

type stubExtractor struct {
	fields map[string]*extract.InvoiceFields
	errs   map[string]error
	delay  time.Duration
}

func (s *stubExtractor) Extract(ctx context.Context, path, _ string) (*extract.InvoiceFields, error) {
	if s.delay > 0 {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(s.delay):
		}
	}
	if err, ok := s.errs[path]; ok {
		return nil, err
	}
	return s.fields[path], nil
}

type captureNotifier struct {
	mu     sync.Mutex
	events []progress.Event
}

func (c *captureNotifier) Publish(ev progress.Event) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, ev)
}

func (c *captureNotifier) all() []progress.Event {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]progress.Event(nil), c.events...)
}

func newTestRunner(store *repository.MemoryStore, ex extract.InvoiceExtractor, rates RateSource, notifier progress.Notifier, timeout time.Duration) *Runner {
	return &Runner{
		Jobs:     store.Jobs(),
		Extract:  NewExtractStage(ex, store.Files(), nil),
		Validate: NewValidateStage(store.Files(), "", nil),
		Convert:  NewConvertStage(rates, store.Files(), "", nil),
		Report:   NewReportStage(nil),
		Notifier: notifier,
		Timeout:  timeout,
	}
}

func seedJob(t *testing.T, store *repository.MemoryStore, filenames []string, target string) (*entity.Job, *Batch) {
	t.Helper()
	ctx := context.Background()
	now := time.Now().UTC()
	job := &entity.Job{
		ID:             uuid.New(),
		Status:         constants.JobStatusProcessing,
		Total:          len(filenames),
		TargetCurrency: target,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	require.NoError(t, store.Jobs().Create(ctx, job))

	b := &Batch{JobID: job.ID, TargetCurrency: target}
	for _, name := range filenames {
		rec := &entity.InvoiceFile{
			ID:         uuid.New(),
			JobID:      job.ID,
			Filename:   name,
			SourcePath: "/uploads/" + name,
			Status:     constants.FileStatusUploaded,
			UploadedAt: time.Now().UTC(),
		}
		require.NoError(t, store.Files().Create(ctx, rec))
		b.Items = append(b.Items, &Item{
			FileID:      rec.ID,
			Filename:    name,
			SourcePath:  rec.SourcePath,
			ContentType: "image/png",
			Status:      constants.FileStatusUploaded,
		})
	}
	return job, b
}

func TestRunnerIsolatesItemFailures(t *testing.T) {
	store := repository.NewMemoryStore()
	job, b := seedJob(t, store, []string{"good.png", "broken.png", "nocurrency.png"}, "ILS")

	noCurrency := fullFields()
	noCurrency.InvoiceTotal = nil
	ex := &stubExtractor{
		fields: map[string]*extract.InvoiceFields{
			"/uploads/good.png":       fullFields(),
			"/uploads/nocurrency.png": noCurrency,
		},
		errs: map[string]error{
			"/uploads/broken.png": errors.New("unreadable scan"),
		},
	}
	notifier := &captureNotifier{}
	runner := newTestRunner(store, ex, &stubRates{rate: decimal.RequireFromString("3.65")}, notifier, 0)

	result, err := runner.Run(context.Background(), job, b)
	require.NoError(t, err)
	require.NotNil(t, result)
	assert.Equal(t, 3, result.RowCount, "failed items still appear in the report")
	assert.NotEmpty(t, result.XLSX)

	// Item outcomes, in insertion order.
	assert.True(t, b.Items[0].Converted)
	assert.Equal(t, "450.59", b.Items[0].ConvertedTotal.StringFixed(2)) // 123.45 * 3.65
	assert.True(t, b.Items[1].Failed())
	assert.Contains(t, b.Items[1].ErrorMessage, "Extraction failed")
	assert.True(t, b.Items[2].Failed())
	assert.Contains(t, b.Items[2].ErrorMessage, "Missing required fields")

	stored, err := store.Jobs().GetByID(context.Background(), job.ID)
	require.NoError(t, err)
	assert.Equal(t, constants.JobStatusCompleted, stored.Status)
	assert.Equal(t, 3, stored.Processed)

	files, err := store.Files().ListByJob(context.Background(), job.ID)
	require.NoError(t, err)
	require.Len(t, files, 3)
	assert.Equal(t, "good.png", files[0].Filename)
	assert.Equal(t, constants.FileStatusConverted, files[0].Status)
	assert.Equal(t, constants.FileStatusFailed, files[1].Status)
	assert.Equal(t, constants.FileStatusFailed, files[2].Status)
}

func TestRunnerProgressSequence(t *testing.T) {
	store := repository.NewMemoryStore()
	job, b := seedJob(t, store, []string{"one.png"}, "ILS")

	ex := &stubExtractor{fields: map[string]*extract.InvoiceFields{"/uploads/one.png": fullFields()}}
	notifier := &captureNotifier{}
	runner := newTestRunner(store, ex, &stubRates{rate: decimal.New(1, 0)}, notifier, 0)

	_, err := runner.Run(context.Background(), job, b)
	require.NoError(t, err)

	events := notifier.all()
	require.Len(t, events, 4)

	steps := []constants.PipelineStep{
		constants.StepUploading,
		constants.StepExtracting,
		constants.StepConversion,
		constants.StepCompleted,
	}
	percentages := []int{10, 50, 80, 100}
	for i, ev := range events {
		assert.Equal(t, job.ID.String(), ev.JobID)
		assert.Equal(t, steps[i], ev.CurrentStep, "event %d", i)
		assert.Equal(t, percentages[i], ev.Percentage, "event %d", i)
	}
	assert.Equal(t, constants.JobStatusCompleted, events[3].Status)
	assert.True(t, events[3].Terminal())
}

func TestRunnerTimeoutMarksJobError(t *testing.T) {
	store := repository.NewMemoryStore()
	job, b := seedJob(t, store, []string{"slow.png"}, "ILS")

	ex := &stubExtractor{
		fields: map[string]*extract.InvoiceFields{"/uploads/slow.png": fullFields()},
		delay:  500 * time.Millisecond,
	}
	notifier := &captureNotifier{}
	runner := newTestRunner(store, ex, &stubRates{rate: decimal.New(1, 0)}, notifier, 20*time.Millisecond)

	_, err := runner.Run(context.Background(), job, b)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "timed out")

	stored, gerr := store.Jobs().GetByID(context.Background(), job.ID)
	require.NoError(t, gerr)
	assert.Equal(t, constants.JobStatusError, stored.Status)

	events := notifier.all()
	last := events[len(events)-1]
	assert.Equal(t, constants.JobStatusError, last.Status)
	assert.True(t, last.Terminal())
	assert.Contains(t, last.Message, "Processing timed out")
	assert.Contains(t, last.Message, context.DeadlineExceeded.Error(),
		"terminal event must carry the underlying cause")
}

func TestRunnerTerminalErrorEventCarriesCause(t *testing.T) {
	store := repository.NewMemoryStore()
	job, b := seedJob(t, store, []string{"doomed.png"}, "ILS")

	ex := &stubExtractor{fields: map[string]*extract.InvoiceFields{"/uploads/doomed.png": fullFields()}}
	notifier := &captureNotifier{}
	runner := newTestRunner(store, ex, &stubRates{rate: decimal.New(1, 0)}, notifier, 0)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := runner.Run(ctx, job, b)
	require.Error(t, err)

	events := notifier.all()
	require.NotEmpty(t, events)
	last := events[len(events)-1]
	require.Equal(t, constants.JobStatusError, last.Status)
	assert.Contains(t, last.Message, "Processing failed")
	assert.Contains(t, last.Message, context.Canceled.Error())
}

func TestRunnerSameCurrencyJobNeedsNoRates(t *testing.T) {
	store := repository.NewMemoryStore()
	job, b := seedJob(t, store, []string{"local.png"}, "USD")

	ex := &stubExtractor{fields: map[string]*extract.InvoiceFields{"/uploads/local.png": fullFields()}}
	rates := &stubRates{err: errors.New("rate service is down")}
	runner := newTestRunner(store, ex, rates, progress.NopNotifier{}, 0)

	result, err := runner.Run(context.Background(), job, b)
	require.NoError(t, err)
	assert.Equal(t, 0, rates.calls)
	assert.True(t, b.Items[0].Converted)
	assert.Equal(t, "123.45", b.Items[0].ConvertedTotal.StringFixed(2))
	assert.Equal(t, 1, result.RowCount)
}
