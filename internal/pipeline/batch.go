package pipeline

import (
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/invoiceworks/invoice-converter/constants"
	"github.com/invoiceworks/invoice-converter/internal/extract"
)

// Item is one uploaded file's processing record as it moves through the
// stages. Items keep their batch position: stage output is insertion-order
// stable regardless of how work completes.
type Item struct {
	FileID      uuid.UUID
	Filename    string
	SourcePath  string
	ContentType string

	Status       constants.FileStatus
	ErrorMessage string

	// Populated by the extraction stage.
	Fields *extract.InvoiceFields

	// Derived by the validation stage.
	InvoiceDate    string // YYYY-MM-DD
	SourceCurrency string
	SourceAmount   decimal.Decimal
	HasAmount      bool
	VendorName     string
	InvoiceID      string

	// Populated by the conversion stage.
	ExchangeRate   decimal.Decimal
	ConvertedTotal decimal.Decimal
	Converted      bool
}

// Fail marks the item failed. The first failure wins: a failed item never
// returns to a success status and keeps its original error message for the
// rest of the run.
func (it *Item) Fail(message string) {
	if it.Status == constants.FileStatusFailed {
		return
	}
	it.Status = constants.FileStatusFailed
	it.ErrorMessage = message
}

// Failed reports whether the item is terminally failed for this run.
func (it *Item) Failed() bool {
	return it.Status == constants.FileStatusFailed
}

// advance moves a non-failed item to the next lifecycle status.
func (it *Item) advance(status constants.FileStatus) {
	if it.Status == constants.FileStatusFailed {
		return
	}
	it.Status = status
}

// Batch is the full set of items for one job. Stages receive the whole batch
// and must tolerate any subset of items having already failed.
type Batch struct {
	JobID          uuid.UUID
	TargetCurrency string
	Items          []*Item
}

// Settled counts items that reached a terminal per-item state.
func (b *Batch) Settled() int {
	n := 0
	for _, it := range b.Items {
		if it.Failed() || it.Converted {
			n++
		}
	}
	return n
}
