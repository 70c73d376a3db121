package pipeline

import (
	"context"
	"log/slog"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/invoiceworks/invoice-converter/constants"
	"github.com/invoiceworks/invoice-converter/internal/extract"
	"github.com/invoiceworks/invoice-converter/internal/repository"
)

// ValidateStage derives the fields the conversion stage needs: source
// currency, source amount and invoice date. Items lacking required data are
// marked failed here so conversion can skip them.
type ValidateStage struct {
	Files  repository.FileRepository
	Logger *slog.Logger
	// DefaultInvoiceDate (YYYY-MM-DD) substitutes for a missing extracted
	// date. Empty means strict: a missing date fails the item.
	DefaultInvoiceDate string
}

func NewValidateStage(files repository.FileRepository, defaultInvoiceDate string, logger *slog.Logger) *ValidateStage {
	if logger == nil {
		logger = slog.Default()
	}
	return &ValidateStage{Files: files, DefaultInvoiceDate: defaultInvoiceDate, Logger: logger}
}

func (s *ValidateStage) Run(ctx context.Context, b *Batch) error {
	for _, it := range b.Items {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if it.Failed() {
			continue
		}

		var missing []string

		if it.Fields != nil && it.Fields.InvoiceDate != nil {
			it.InvoiceDate = it.Fields.InvoiceDate.Value.Format("2006-01-02")
		} else if s.DefaultInvoiceDate != "" {
			it.InvoiceDate = s.DefaultInvoiceDate
		} else {
			missing = append(missing, "invoice_date")
		}

		var total *extract.MoneyValue
		if it.Fields != nil && it.Fields.InvoiceTotal != nil {
			total = it.Fields.InvoiceTotal.Value
		}
		if total != nil && usable(total.CurrencyCode) {
			it.SourceCurrency = strings.ToUpper(total.CurrencyCode)
		} else {
			missing = append(missing, "src_currency")
		}
		if total != nil {
			it.SourceAmount = decimal.NewFromFloat(total.Amount)
			it.HasAmount = true
		} else {
			missing = append(missing, "invoice_total")
		}

		if it.Fields != nil {
			it.VendorName = it.Fields.Vendor()
			if it.Fields.InvoiceID != nil {
				it.InvoiceID = it.Fields.InvoiceID.Content
			}
		}

		if len(missing) > 0 {
			msg := "Missing required fields: " + strings.Join(missing, ", ")
			it.Fail(msg)
			if err := s.Files.MarkFailed(ctx, it.FileID, msg); err != nil {
				s.Logger.Warn("pipeline.validate.persist_failed", "job_id", b.JobID, "file_id", it.FileID, "error", err)
			}
			s.Logger.Warn("pipeline.validate.failed", "job_id", b.JobID, "file_id", it.FileID, "missing", missing)
			continue
		}

		it.advance(constants.FileStatusReady)
		if err := s.Files.SetStatus(ctx, it.FileID, constants.FileStatusReady); err != nil {
			s.Logger.Warn("pipeline.validate.persist_failed", "job_id", b.JobID, "file_id", it.FileID, "error", err)
		}
	}
	return nil
}

// usable rejects empty codes and the low-confidence placeholder.
func usable(currencyCode string) bool {
	return currencyCode != "" && currencyCode != constants.LowConfidencePlaceholder
}
