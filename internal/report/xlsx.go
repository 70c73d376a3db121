package report

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"

	"github.com/invoiceworks/invoice-converter/constants"
)

// Row is one invoice line in the output workbook. Nil decimals render as the
// placeholder so failed rows never leave blank cells.
type Row struct {
	Filename         string
	Status           constants.FileStatus
	Vendor           string
	InvoiceID        string
	InvoiceDate      string
	OriginalCurrency string
	OriginalTotal    *decimal.Decimal
	TargetCurrency   string
	ExchangeRate     *decimal.Decimal
	ConvertedTotal   *decimal.Decimal
	ErrorMessage     string
}

// BuildXLSX renders the report workbook and returns its bytes along with the
// number of data rows written. Every row appears regardless of status.
func BuildXLSX(rows []Row, logger *slog.Logger) ([]byte, int, error) {
	if logger == nil {
		logger = slog.Default()
	}
	start := time.Now()

	f := excelize.NewFile()
	const sheet = "Invoices"
	if index, _ := f.GetSheetIndex(sheet); index == -1 {
		if _, err := f.NewSheet(sheet); err != nil {
			return nil, 0, err
		}
	}
	activeIndex, _ := f.GetSheetIndex(sheet)
	f.SetActiveSheet(activeIndex)
	if index, _ := f.GetSheetIndex("Sheet1"); index != -1 {
		_ = f.DeleteSheet("Sheet1")
	}

	headers := []string{
		"Filename",
		"Status",
		"Vendor",
		"Invoice ID",
		"Invoice Date",
		"Original Currency",
		"Original Total",
		"Target Currency",
		"Exchange Rate",
		"Converted Total",
		"Error",
	}
	for i, h := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		_ = f.SetCellValue(sheet, cell, h)
	}

	rowNum := 2
	for _, r := range rows {
		write := func(col int, v any) {
			cell, _ := excelize.CoordinatesToCellName(col, rowNum)
			_ = f.SetCellValue(sheet, cell, v)
		}

		write(1, r.Filename)
		write(2, string(r.Status))
		write(3, orPlaceholder(r.Vendor))
		write(4, orPlaceholder(r.InvoiceID))
		write(5, orPlaceholder(r.InvoiceDate))
		write(6, orPlaceholder(r.OriginalCurrency))
		write(7, decimalOrPlaceholder(r.OriginalTotal))
		write(8, orPlaceholder(r.TargetCurrency))
		write(9, decimalOrPlaceholder(r.ExchangeRate))
		write(10, decimalOrPlaceholder(r.ConvertedTotal))
		write(11, r.ErrorMessage)

		rowNum++
	}

	_ = f.SetColWidth(sheet, "A", "A", 32) // filename
	_ = f.SetColWidth(sheet, "B", "B", 12)
	_ = f.SetColWidth(sheet, "C", "C", 28) // vendor
	_ = f.SetColWidth(sheet, "D", "E", 16)
	_ = f.SetColWidth(sheet, "F", "J", 14)
	_ = f.SetColWidth(sheet, "K", "K", 60) // error

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, 0, fmt.Errorf("xlsx write: %w", err)
	}

	logger.Info("report.xlsx.ok",
		"rows", len(rows),
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return buf.Bytes(), len(rows), nil
}

func orPlaceholder(s string) string {
	if s == "" {
		return constants.ReportPlaceholder
	}
	return s
}

func decimalOrPlaceholder(d *decimal.Decimal) string {
	if d == nil {
		return constants.ReportPlaceholder
	}
	return d.String()
}
