package pipeline

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/invoiceworks/invoice-converter/internal/report"
)

// ReportStage renders the batch into XLSX bytes. Unlike the per-item stages,
// a report failure is fatal for the job: without the workbook there is no
// deliverable.
type ReportStage struct {
	Logger *slog.Logger
}

func NewReportStage(logger *slog.Logger) *ReportStage {
	if logger == nil {
		logger = slog.Default()
	}
	return &ReportStage{Logger: logger}
}

func (s *ReportStage) Run(ctx context.Context, b *Batch) ([]byte, int, error) {
	if ctx.Err() != nil {
		return nil, 0, fmt.Errorf("report stage: %w", ctx.Err())
	}

	rows := make([]report.Row, 0, len(b.Items))
	for _, it := range b.Items {
		row := report.Row{
			Filename:         it.Filename,
			Status:           it.Status,
			Vendor:           it.VendorName,
			InvoiceID:        it.InvoiceID,
			InvoiceDate:      it.InvoiceDate,
			OriginalCurrency: it.SourceCurrency,
			ErrorMessage:     it.ErrorMessage,
		}
		if it.HasAmount {
			total := it.SourceAmount
			row.OriginalTotal = &total
		}
		if it.Converted {
			rate := it.ExchangeRate
			converted := it.ConvertedTotal
			row.TargetCurrency = b.TargetCurrency
			row.ExchangeRate = &rate
			row.ConvertedTotal = &converted
		}
		rows = append(rows, row)
	}

	xlsx, n, err := report.BuildXLSX(rows, s.Logger)
	if err != nil {
		return nil, 0, fmt.Errorf("report stage: %w", err)
	}
	return xlsx, n, nil
}
