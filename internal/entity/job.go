package entity

import (
	"time"

	"github.com/google/uuid"

	"github.com/invoiceworks/invoice-converter/constants"
)

// Job represents a batch invoice conversion job for data transfer between layers.
// Total is fixed at creation; Processed only increases.
type Job struct {
	ID             uuid.UUID           `json:"job_id"`
	Status         constants.JobStatus `json:"status"`
	Processed      int                 `json:"processed"`
	Total          int                 `json:"total"`
	TargetCurrency string              `json:"target_currency,omitempty"`
	CreatedAt      time.Time           `json:"created_at"`
	UpdatedAt      time.Time           `json:"updated_at"`
}
