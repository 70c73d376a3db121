package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/invoiceworks/invoice-converter/constants"
	"github.com/invoiceworks/invoice-converter/internal/common"
	"github.com/invoiceworks/invoice-converter/internal/currency"
	"github.com/invoiceworks/invoice-converter/internal/entity"
	"github.com/invoiceworks/invoice-converter/internal/extract"
	"github.com/invoiceworks/invoice-converter/internal/pipeline"
	"github.com/invoiceworks/invoice-converter/internal/progress"
	"github.com/invoiceworks/invoice-converter/internal/repository"
)

// printError prints an error message to stderr, falling back to stdout if stderr fails
func printError(format string, args ...interface{}) {
	if _, err := fmt.Fprintf(os.Stderr, format, args...); err != nil {
		fmt.Printf(format, args...)
	}
}

func main() {
	var (
		dir      = flag.String("dir", "", "directory of invoice files to process (required)")
		out      = flag.String("out", "", "output XLSX file path (defaults to <dir>/../invoices.xlsx)")
		currCode = flag.String("currency", "", "target currency code (defaults to configuration)")
	)
	flag.Parse()

	if *dir == "" {
		printError("Error: --dir is required\n")
		os.Exit(1)
	}
	if *out == "" {
		*out = filepath.Join(filepath.Dir(*dir), "invoices.xlsx")
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	cfg := common.LoadConfig()
	if cfg.DocIntel.Endpoint == "" || cfg.DocIntel.APIKey == "" {
		printError("Error: DOCINTEL_ENDPOINT and DOCINTEL_API_KEY must be set\n")
		os.Exit(1)
	}

	ctx := context.Background()

	entries, err := os.ReadDir(*dir)
	if err != nil {
		printError("Error: reading --dir: %v\n", err)
		os.Exit(1)
	}

	store := repository.NewMemoryStore()
	jobs := store.Jobs()
	files := store.Files()

	now := time.Now().UTC()
	job := &entity.Job{
		ID:             uuid.New(),
		Status:         constants.JobStatusProcessing,
		TargetCurrency: *currCode,
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	batch := &pipeline.Batch{JobID: job.ID, TargetCurrency: *currCode}
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		ext := constants.NormalizeExt(filepath.Ext(entry.Name()))
		if _, ok := constants.AllowedExtensions[ext]; !ok {
			logger.Warn("batch.skip.unsupported", "filename", entry.Name())
			continue
		}
		path := filepath.Join(*dir, entry.Name())
		rec := &entity.InvoiceFile{
			ID:         uuid.New(),
			JobID:      job.ID,
			Filename:   entry.Name(),
			SourcePath: path,
			Status:     constants.FileStatusUploaded,
			UploadedAt: time.Now().UTC(),
		}
		if err := files.Create(ctx, rec); err != nil {
			printError("Error: registering %s: %v\n", entry.Name(), err)
			os.Exit(1)
		}
		batch.Items = append(batch.Items, &pipeline.Item{
			FileID:      rec.ID,
			Filename:    rec.Filename,
			SourcePath:  path,
			ContentType: constants.ContentTypeForExt(ext),
			Status:      constants.FileStatusUploaded,
		})
	}
	if len(batch.Items) == 0 {
		printError("Error: no supported invoice files in %s\n", *dir)
		os.Exit(1)
	}
	job.Total = len(batch.Items)
	if err := jobs.Create(ctx, job); err != nil {
		printError("Error: creating job: %v\n", err)
		os.Exit(1)
	}

	breaker := currency.NewBreaker(cfg.Rates.MaxFailures)
	rates := currency.NewClient(cfg.Rates.BaseURL, cfg.Rates.Timeout, breaker, logger)
	extractor := extract.NewDocIntelClient(
		cfg.DocIntel.Endpoint,
		cfg.DocIntel.APIKey,
		cfg.DocIntel.Timeout,
		cfg.DocIntel.PollInterval,
		cfg.DocIntel.MinConfidence,
		logger,
	)

	runner := &pipeline.Runner{
		Jobs:     jobs,
		Extract:  pipeline.NewExtractStage(extractor, files, logger),
		Validate: pipeline.NewValidateStage(files, cfg.Pipeline.DefaultInvoiceDate, logger),
		Convert:  pipeline.NewConvertStage(rates, files, cfg.Pipeline.DefaultTargetCurrency, logger),
		Report:   pipeline.NewReportStage(logger),
		Notifier: progress.NopNotifier{},
		Timeout:  cfg.Pipeline.Timeout,
		Logger:   logger,
	}

	result, err := runner.Run(ctx, job, batch)
	if err != nil {
		printError("Error: pipeline failed: %v\n", err)
		os.Exit(1)
	}

	if err := os.WriteFile(*out, result.XLSX, 0o644); err != nil {
		printError("Error: writing %s: %v\n", *out, err)
		os.Exit(1)
	}

	fmt.Printf("Wrote %d row(s) to %s\n", result.RowCount, *out)
}
