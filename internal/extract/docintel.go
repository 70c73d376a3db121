package extract

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/invoiceworks/invoice-converter/constants"
)

const analyzePath = "/documentintelligence/documentModels/prebuilt-invoice:analyze?api-version=2024-11-30"

// docField is the service's per-field shape. Decoded defensively: any member
// may be absent.
type docField struct {
	Type          string  `json:"type"`
	Content       string  `json:"content"`
	Confidence    float64 `json:"confidence"`
	ValueDate     string  `json:"valueDate"`
	ValueString   string  `json:"valueString"`
	ValueCurrency *struct {
		Amount       float64 `json:"amount"`
		CurrencyCode string  `json:"currencyCode"`
	} `json:"valueCurrency"`
}

type analyzeEnvelope struct {
	Status        string `json:"status"`
	AnalyzeResult *struct {
		Documents []struct {
			Fields map[string]docField `json:"fields"`
		} `json:"documents"`
	} `json:"analyzeResult"`
}

// DocIntelClient calls a Document Intelligence-style REST capability: submit
// bytes against the prebuilt invoice model, then poll the returned operation
// until it settles.
type DocIntelClient struct {
	endpoint      string
	apiKey        string
	http          *http.Client
	timeout       time.Duration
	pollInterval  time.Duration
	minConfidence float64
	logger        *slog.Logger
}

// NewDocIntelClient builds an extraction client. timeout bounds the whole
// submit+poll cycle; minConfidence gates field content acceptance.
func NewDocIntelClient(endpoint, apiKey string, timeout, pollInterval time.Duration, minConfidence float64, logger *slog.Logger) *DocIntelClient {
	if logger == nil {
		logger = slog.Default()
	}
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	if pollInterval <= 0 {
		pollInterval = time.Second
	}
	return &DocIntelClient{
		endpoint:      strings.TrimRight(endpoint, "/"),
		apiKey:        apiKey,
		http:          &http.Client{},
		timeout:       timeout,
		pollInterval:  pollInterval,
		minConfidence: minConfidence,
		logger:        logger,
	}
}

// Extract analyzes one file and converts the response to boundary types.
func (c *DocIntelClient) Extract(ctx context.Context, path string, contentType string) (*InvoiceFields, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read file: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	reqID := uuid.New().String()
	start := time.Now()

	opLocation, err := c.submit(ctx, reqID, data, contentType)
	if err != nil {
		return nil, err
	}

	raw, err := c.poll(ctx, reqID, opLocation)
	if err != nil {
		return nil, err
	}

	if err := validateJSONAgainstSchema(buildAnalyzeResultSchema(), raw); err != nil {
		return nil, fmt.Errorf("analyze result: %w", err)
	}
	var env analyzeEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("decode analyze result: %w", err)
	}
	if env.AnalyzeResult == nil || len(env.AnalyzeResult.Documents) == 0 {
		return nil, fmt.Errorf("no document recognized in %s", path)
	}

	fields := c.convertFields(env.AnalyzeResult.Documents[0].Fields)
	c.logger.Info("docintel.extract.ok",
		"req_id", reqID,
		"path", path,
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return fields, nil
}

func (c *DocIntelClient) submit(ctx context.Context, reqID string, data []byte, contentType string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint+analyzePath, bytes.NewReader(data))
	if err != nil {
		return "", fmt.Errorf("build analyze request: %w", err)
	}
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Ocp-Apim-Subscription-Key", c.apiKey)

	c.logger.Debug("docintel.http.submit", "req_id", reqID, "bytes", len(data), "content_type", contentType)

	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("submit document: %w", err)
	}
	defer c.closeBody(resp.Body, reqID)

	if resp.StatusCode != http.StatusAccepted {
		raw, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("analyze submit returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(raw)))
	}
	opLocation := resp.Header.Get("Operation-Location")
	if opLocation == "" {
		return "", fmt.Errorf("analyze submit returned no Operation-Location header")
	}
	return opLocation, nil
}

func (c *DocIntelClient) poll(ctx context.Context, reqID, opLocation string) ([]byte, error) {
	for {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, opLocation, nil)
		if err != nil {
			return nil, fmt.Errorf("build poll request: %w", err)
		}
		req.Header.Set("Ocp-Apim-Subscription-Key", c.apiKey)

		resp, err := c.http.Do(req)
		if err != nil {
			return nil, fmt.Errorf("poll analyze operation: %w", err)
		}
		raw, readErr := io.ReadAll(resp.Body)
		c.closeBody(resp.Body, reqID)
		if readErr != nil {
			return nil, fmt.Errorf("read poll response: %w", readErr)
		}
		if resp.StatusCode != http.StatusOK {
			return nil, fmt.Errorf("poll returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(raw)))
		}

		var probe struct {
			Status string `json:"status"`
			Error  *struct {
				Message string `json:"message"`
			} `json:"error"`
		}
		if err := json.Unmarshal(raw, &probe); err != nil {
			return nil, fmt.Errorf("decode poll response: %w", err)
		}
		switch probe.Status {
		case "succeeded":
			return raw, nil
		case "failed":
			msg := "analysis failed"
			if probe.Error != nil && probe.Error.Message != "" {
				msg = probe.Error.Message
			}
			return nil, fmt.Errorf("analyze operation failed: %s", msg)
		}

		c.logger.Debug("docintel.poll.pending", "req_id", reqID, "status", probe.Status)
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("analyze operation: %w", ctx.Err())
		case <-time.After(c.pollInterval):
		}
	}
}

// convertFields maps the service fields into boundary types, replacing
// low-confidence content with the placeholder marker. The invoice date is
// kept regardless of confidence; validation decides what to do with it.
func (c *DocIntelClient) convertFields(fields map[string]docField) *InvoiceFields {
	out := &InvoiceFields{}

	if f, ok := fields["InvoiceDate"]; ok && f.ValueDate != "" {
		if t, err := time.Parse("2006-01-02", f.ValueDate); err == nil {
			out.InvoiceDate = &DateField{Value: t, Confidence: f.Confidence}
		}
	}

	if f, ok := fields["InvoiceId"]; ok && f.Content != "" {
		out.InvoiceID = c.textField(f)
	}

	if f, ok := fields["InvoiceTotal"]; ok && (f.Content != "" || f.ValueCurrency != nil) {
		if f.Confidence > c.minConfidence {
			total := &MoneyField{Content: f.Content, Confidence: f.Confidence}
			if f.ValueCurrency != nil && (f.ValueCurrency.Amount != 0 || f.ValueCurrency.CurrencyCode != "") {
				total.Value = &MoneyValue{
					Amount:       f.ValueCurrency.Amount,
					CurrencyCode: f.ValueCurrency.CurrencyCode,
				}
			}
			out.InvoiceTotal = total
		} else {
			out.InvoiceTotal = &MoneyField{
				Value:      &MoneyValue{CurrencyCode: constants.LowConfidencePlaceholder},
				Content:    constants.LowConfidencePlaceholder,
				Confidence: f.Confidence,
			}
		}
	}

	if f, ok := fields["VendorName"]; ok && f.Content != "" {
		out.VendorName = c.textField(f)
	}
	// Address recipient is only a fallback when the vendor name is absent.
	if out.VendorName == nil {
		if f, ok := fields["VendorAddressRecipient"]; ok && f.Content != "" {
			out.VendorAddressRecipient = c.textField(f)
		}
	}

	return out
}

func (c *DocIntelClient) textField(f docField) *TextField {
	content := f.Content
	if f.Confidence <= c.minConfidence {
		content = constants.LowConfidencePlaceholder
	}
	return &TextField{Content: content, Confidence: f.Confidence}
}

func (c *DocIntelClient) closeBody(body io.ReadCloser, reqID string) {
	if err := body.Close(); err != nil {
		c.logger.Warn("docintel.http.body_close_error", "req_id", reqID, "error", err)
	}
}
