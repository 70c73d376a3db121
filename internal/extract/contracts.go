package extract

import (
	"context"
	"time"
)

// InvoiceExtractor turns one uploaded file into structured invoice fields.
type InvoiceExtractor interface {
	Extract(ctx context.Context, path string, contentType string) (*InvoiceFields, error)
}

// TextField is extracted text content with its confidence.
type TextField struct {
	Content    string
	Confidence float64
}

// DateField is an extracted date with its confidence.
type DateField struct {
	Value      time.Time
	Confidence float64
}

// MoneyValue is a monetary amount with its currency code.
type MoneyValue struct {
	Amount       float64
	CurrencyCode string
}

// MoneyField is an extracted total: the structured value when the service
// produced one, plus the raw text content.
type MoneyField struct {
	Value      *MoneyValue
	Content    string
	Confidence float64
}

// InvoiceFields is the boundary type for a single analyzed invoice. Every
// field is optional: the service may extract nothing at all, and the rest of
// the core never sees the service's own response shapes.
type InvoiceFields struct {
	InvoiceDate            *DateField
	InvoiceID              *TextField
	InvoiceTotal           *MoneyField
	VendorName             *TextField
	VendorAddressRecipient *TextField
}

// Vendor returns the best available vendor label: VendorName, falling back to
// VendorAddressRecipient.
func (f *InvoiceFields) Vendor() string {
	if f == nil {
		return ""
	}
	if f.VendorName != nil && f.VendorName.Content != "" {
		return f.VendorName.Content
	}
	if f.VendorAddressRecipient != nil {
		return f.VendorAddressRecipient.Content
	}
	return ""
}
