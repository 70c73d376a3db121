package extract

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/invoiceworks/invoice-converter/constants"
)

func writeTempInvoice(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "invoice.png")
	require.NoError(t, os.WriteFile(path, []byte("fake image bytes"), 0o644))
	return path
}

const succeededEnvelope = `{
	"status": "succeeded",
	"analyzeResult": {
		"documents": [{
			"fields": {
				"InvoiceDate":  {"type": "date", "valueDate": "2025-07-01", "confidence": 0.95},
				"InvoiceId":    {"type": "string", "content": "INV-42", "confidence": 0.9},
				"InvoiceTotal": {"type": "currency", "content": "$123.45", "confidence": 0.92,
					"valueCurrency": {"amount": 123.45, "currencyCode": "USD"}},
				"VendorName":   {"type": "string", "content": "Acme Ltd", "confidence": 0.88}
			}
		}]
	}
}`

func newDocIntelServer(t *testing.T, pollBodies []string) (*httptest.Server, *atomic.Int64) {
	t.Helper()
	var polls atomic.Int64
	mux := http.NewServeMux()
	var srv *httptest.Server
	mux.HandleFunc("POST /documentintelligence/documentModels/prebuilt-invoice:analyze", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "test-key", r.Header.Get("Ocp-Apim-Subscription-Key"))
		assert.Equal(t, "image/png", r.Header.Get("Content-Type"))
		w.Header().Set("Operation-Location", srv.URL+"/op/123")
		w.WriteHeader(http.StatusAccepted)
	})
	mux.HandleFunc("GET /op/123", func(w http.ResponseWriter, r *http.Request) {
		n := polls.Add(1)
		idx := int(n) - 1
		if idx >= len(pollBodies) {
			idx = len(pollBodies) - 1
		}
		fmt.Fprint(w, pollBodies[idx])
	})
	srv = httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv, &polls
}

func TestExtractSubmitAndPoll(t *testing.T) {
	srv, polls := newDocIntelServer(t, []string{`{"status":"running"}`, succeededEnvelope})
	c := NewDocIntelClient(srv.URL, "test-key", 5*time.Second, 10*time.Millisecond, 0.4, nil)

	fields, err := c.Extract(context.Background(), writeTempInvoice(t), "image/png")
	require.NoError(t, err)
	require.EqualValues(t, 2, polls.Load(), "should poll until the operation succeeds")

	require.NotNil(t, fields.InvoiceDate)
	assert.Equal(t, "2025-07-01", fields.InvoiceDate.Value.Format("2006-01-02"))
	require.NotNil(t, fields.InvoiceID)
	assert.Equal(t, "INV-42", fields.InvoiceID.Content)
	require.NotNil(t, fields.InvoiceTotal)
	require.NotNil(t, fields.InvoiceTotal.Value)
	assert.Equal(t, 123.45, fields.InvoiceTotal.Value.Amount)
	assert.Equal(t, "USD", fields.InvoiceTotal.Value.CurrencyCode)
	require.NotNil(t, fields.VendorName)
	assert.Equal(t, "Acme Ltd", fields.VendorName.Content)
	assert.Nil(t, fields.VendorAddressRecipient, "address recipient is only a fallback")
}

func TestExtractOperationFailed(t *testing.T) {
	srv, _ := newDocIntelServer(t, []string{`{"status":"failed","error":{"message":"corrupt document"}}`})
	c := NewDocIntelClient(srv.URL, "test-key", 5*time.Second, 10*time.Millisecond, 0.4, nil)

	_, err := c.Extract(context.Background(), writeTempInvoice(t), "image/png")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "corrupt document")
}

func TestExtractNoDocumentRecognized(t *testing.T) {
	srv, _ := newDocIntelServer(t, []string{`{"status":"succeeded","analyzeResult":{"documents":[]}}`})
	c := NewDocIntelClient(srv.URL, "test-key", 5*time.Second, 10*time.Millisecond, 0.4, nil)

	_, err := c.Extract(context.Background(), writeTempInvoice(t), "image/png")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no document recognized")
}

func TestConvertFieldsLowConfidenceTotal(t *testing.T) {
	c := NewDocIntelClient("http://unused", "k", time.Second, time.Second, 0.4, nil)
	out := c.convertFields(map[string]docField{
		"InvoiceTotal": {
			Content:    "$99.99",
			Confidence: 0.2,
			ValueCurrency: &struct {
				Amount       float64 `json:"amount"`
				CurrencyCode string  `json:"currencyCode"`
			}{Amount: 99.99, CurrencyCode: "USD"},
		},
	})

	require.NotNil(t, out.InvoiceTotal)
	require.NotNil(t, out.InvoiceTotal.Value)
	assert.Equal(t, constants.LowConfidencePlaceholder, out.InvoiceTotal.Value.CurrencyCode)
	assert.Equal(t, constants.LowConfidencePlaceholder, out.InvoiceTotal.Content)
}

func TestConvertFieldsVendorAddressFallback(t *testing.T) {
	c := NewDocIntelClient("http://unused", "k", time.Second, time.Second, 0.4, nil)
	out := c.convertFields(map[string]docField{
		"VendorAddressRecipient": {Content: "Acme Billing Dept", Confidence: 0.7},
	})

	assert.Nil(t, out.VendorName)
	require.NotNil(t, out.VendorAddressRecipient)
	assert.Equal(t, "Acme Billing Dept", out.VendorAddressRecipient.Content)
	assert.Equal(t, "Acme Billing Dept", out.Vendor())
}

func TestConvertFieldsAbsentFields(t *testing.T) {
	c := NewDocIntelClient("http://unused", "k", time.Second, time.Second, 0.4, nil)
	out := c.convertFields(map[string]docField{})

	assert.Nil(t, out.InvoiceDate)
	assert.Nil(t, out.InvoiceID)
	assert.Nil(t, out.InvoiceTotal)
	assert.Empty(t, out.Vendor())
}
