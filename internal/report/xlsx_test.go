package report

import (
	"bytes"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/invoiceworks/invoice-converter/constants"
)

func dec(s string) *decimal.Decimal {
	d := decimal.RequireFromString(s)
	return &d
}

func TestBuildXLSXWritesAllRows(t *testing.T) {
	rows := []Row{
		{
			Filename:         "a.pdf",
			Status:           constants.FileStatusConverted,
			Vendor:           "Acme Ltd",
			InvoiceID:        "INV-1",
			InvoiceDate:      "2025-07-01",
			OriginalCurrency: "USD",
			OriginalTotal:    dec("123.45"),
			TargetCurrency:   "ILS",
			ExchangeRate:     dec("3.65"),
			ConvertedTotal:   dec("450.59"),
		},
		{
			Filename:     "b.pdf",
			Status:       constants.FileStatusFailed,
			ErrorMessage: "Extraction failed: unreadable scan",
		},
	}

	xlsx, n, err := BuildXLSX(rows, nil)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	require.NotEmpty(t, xlsx)

	f, err := excelize.OpenReader(bytes.NewReader(xlsx))
	require.NoError(t, err)
	defer f.Close()

	got, err := f.GetRows("Invoices")
	require.NoError(t, err)
	require.Len(t, got, 3, "header plus two data rows")

	assert.Equal(t, "Filename", got[0][0])

	converted := got[1]
	assert.Equal(t, "a.pdf", converted[0])
	assert.Equal(t, "converted", converted[1])
	assert.Equal(t, "3.65", converted[8])
	assert.Equal(t, "450.59", converted[9])
}

func TestBuildXLSXFailedRowsUsePlaceholders(t *testing.T) {
	rows := []Row{{
		Filename:     "broken.pdf",
		Status:       constants.FileStatusFailed,
		ErrorMessage: "Missing required fields: src_currency",
	}}

	xlsx, _, err := BuildXLSX(rows, nil)
	require.NoError(t, err)

	f, err := excelize.OpenReader(bytes.NewReader(xlsx))
	require.NoError(t, err)
	defer f.Close()

	got, err := f.GetRows("Invoices")
	require.NoError(t, err)
	require.Len(t, got, 2)

	row := got[1]
	// Vendor, invoice id, date, currencies, totals all fall back to the marker.
	for _, col := range []int{2, 3, 4, 5, 6, 7, 8, 9} {
		assert.Equal(t, constants.ReportPlaceholder, row[col], "column %d", col)
	}
	assert.Equal(t, "Missing required fields: src_currency", row[10])
}

func TestBuildXLSXEmptyBatch(t *testing.T) {
	xlsx, n, err := BuildXLSX(nil, nil)
	require.NoError(t, err)
	assert.Equal(t, 0, n)
	assert.NotEmpty(t, xlsx, "an empty batch still yields a workbook with headers")
}
