package pipeline

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/invoiceworks/invoice-converter/constants"
	"github.com/invoiceworks/invoice-converter/internal/extract"
	"github.com/invoiceworks/invoice-converter/internal/repository"
)

// ExtractStage runs the document-understanding capability for every item.
// A failed extraction marks that item only; the batch always continues.
type ExtractStage struct {
	Extractor extract.InvoiceExtractor
	Files     repository.FileRepository
	Logger    *slog.Logger
}

func NewExtractStage(ex extract.InvoiceExtractor, files repository.FileRepository, logger *slog.Logger) *ExtractStage {
	if logger == nil {
		logger = slog.Default()
	}
	return &ExtractStage{Extractor: ex, Files: files, Logger: logger}
}

func (s *ExtractStage) Run(ctx context.Context, b *Batch) error {
	for _, it := range b.Items {
		if ctx.Err() != nil {
			return fmt.Errorf("extraction stage: %w", ctx.Err())
		}
		if it.Failed() {
			continue
		}

		if err := extract.PreflightPDF(it.SourcePath); err != nil {
			s.failItem(ctx, b, it, fmt.Sprintf("Extraction failed: %v", err))
			continue
		}

		fields, err := s.Extractor.Extract(ctx, it.SourcePath, it.ContentType)
		if err != nil {
			if ctx.Err() != nil {
				return fmt.Errorf("extraction stage: %w", ctx.Err())
			}
			s.failItem(ctx, b, it, fmt.Sprintf("Extraction failed: %v", err))
			continue
		}

		it.Fields = fields
		it.advance(constants.FileStatusExtracted)
		if err := s.Files.SetStatus(ctx, it.FileID, constants.FileStatusExtracted); err != nil {
			s.Logger.Warn("pipeline.extract.persist_failed", "job_id", b.JobID, "file_id", it.FileID, "error", err)
		}
		s.Logger.Debug("pipeline.extract.ok", "job_id", b.JobID, "file_id", it.FileID, "filename", it.Filename)
	}
	return nil
}

func (s *ExtractStage) failItem(ctx context.Context, b *Batch, it *Item, msg string) {
	it.Fail(msg)
	if err := s.Files.MarkFailed(ctx, it.FileID, msg); err != nil {
		s.Logger.Warn("pipeline.extract.persist_failed", "job_id", b.JobID, "file_id", it.FileID, "error", err)
	}
	s.Logger.Warn("pipeline.extract.failed", "job_id", b.JobID, "file_id", it.FileID, "filename", it.Filename, "error", msg)
}
