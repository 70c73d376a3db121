package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/invoiceworks/invoice-converter/constants"
	"github.com/invoiceworks/invoice-converter/internal/repository"
)

// RateSource supplies an exchange rate for a historical date. Implemented by
// the currency client; tests inject stubs.
type RateSource interface {
	GetRate(ctx context.Context, date, from, to string) (decimal.Decimal, error)
}

// ConvertStage converts each item's extracted total into the batch target
// currency. Same-currency items skip the rate lookup entirely.
type ConvertStage struct {
	Rates         RateSource
	Files         repository.FileRepository
	Logger        *slog.Logger
	DefaultTarget string
}

func NewConvertStage(rates RateSource, files repository.FileRepository, defaultTarget string, logger *slog.Logger) *ConvertStage {
	if logger == nil {
		logger = slog.Default()
	}
	return &ConvertStage{Rates: rates, Files: files, DefaultTarget: defaultTarget, Logger: logger}
}

func (s *ConvertStage) Run(ctx context.Context, b *Batch) error {
	target := s.resolveTarget(b)
	b.TargetCurrency = target
	for _, it := range b.Items {
		if ctx.Err() != nil {
			return fmt.Errorf("conversion stage: %w", ctx.Err())
		}
		if it.Failed() {
			continue
		}

		if err := s.Files.SetCurrencies(ctx, it.FileID, it.SourceCurrency, target); err != nil {
			s.Logger.Warn("pipeline.convert.persist_failed", "job_id", b.JobID, "file_id", it.FileID, "error", err)
		}

		if strings.EqualFold(it.SourceCurrency, target) {
			s.complete(ctx, b, it, decimal.NewFromInt(1), it.SourceAmount)
			continue
		}

		rate, err := s.Rates.GetRate(ctx, it.InvoiceDate, it.SourceCurrency, target)
		if err != nil {
			if ctx.Err() != nil {
				return fmt.Errorf("conversion stage: %w", ctx.Err())
			}
			msg := fmt.Sprintf("Currency conversion failed: %v", err)
			it.Fail(msg)
			if perr := s.Files.MarkFailed(ctx, it.FileID, msg); perr != nil {
				s.Logger.Warn("pipeline.convert.persist_failed", "job_id", b.JobID, "file_id", it.FileID, "error", perr)
			}
			s.Logger.Warn("pipeline.convert.failed",
				"job_id", b.JobID, "file_id", it.FileID,
				"from", it.SourceCurrency, "to", target, "date", it.InvoiceDate, "error", err)
			continue
		}

		s.complete(ctx, b, it, rate, it.SourceAmount.Mul(rate).Round(2))
	}
	return nil
}

func (s *ConvertStage) complete(ctx context.Context, b *Batch, it *Item, rate, converted decimal.Decimal) {
	it.ExchangeRate = rate
	it.ConvertedTotal = converted
	it.Converted = true
	it.advance(constants.FileStatusConverted)
	if err := s.Files.SetConversion(ctx, it.FileID, rate, converted); err != nil {
		s.Logger.Warn("pipeline.convert.persist_failed", "job_id", b.JobID, "file_id", it.FileID, "error", err)
	}
	s.Logger.Debug("pipeline.convert.ok",
		"job_id", b.JobID, "file_id", it.FileID,
		"rate", rate.String(), "converted_total", converted.String())
}

func (s *ConvertStage) resolveTarget(b *Batch) string {
	if b.TargetCurrency != "" {
		return strings.ToUpper(b.TargetCurrency)
	}
	if s.DefaultTarget != "" {
		return strings.ToUpper(s.DefaultTarget)
	}
	return constants.DefaultTargetCurrency
}
