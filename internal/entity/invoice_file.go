package entity

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/invoiceworks/invoice-converter/constants"
)

// InvoiceFile represents one uploaded file's processing record through the
// pipeline. Conversion fields stay nil until the conversion stage succeeds.
type InvoiceFile struct {
	ID               uuid.UUID            `json:"id"`
	JobID            uuid.UUID            `json:"job_id"`
	Filename         string               `json:"filename"`
	SourcePath       string               `json:"-"`
	Status           constants.FileStatus `json:"status"`
	OriginalCurrency *string              `json:"original_currency,omitempty"`
	TargetCurrency   *string              `json:"target_currency,omitempty"`
	ErrorMessage     *string              `json:"error_message,omitempty"`
	ConvertedTotal   *decimal.Decimal     `json:"converted_total,omitempty"`
	ExchangeRate     *decimal.Decimal     `json:"exchange_rate,omitempty"`
	UploadedAt       time.Time            `json:"uploaded_at"`
}
