package currency

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// rateResponse mirrors the exchange-rate API payload:
// {"amount":1.0,"base":"USD","date":"2025-07-01","rates":{"ILS":3.65}}
type rateResponse struct {
	Amount float64                `json:"amount"`
	Base   string                 `json:"base"`
	Date   string                 `json:"date"`
	Rates  map[string]json.Number `json:"rates"`
}

// Client looks up historical exchange rates over HTTP, guarded by a shared
// Breaker. Same-currency short-circuiting is the caller's job: GetRate always
// attempts a real lookup.
type Client struct {
	baseURL string
	http    *http.Client
	breaker *Breaker
	timeout time.Duration
	logger  *slog.Logger
}

// NewClient builds a rate client. timeout bounds each lookup request
// independently of any job-level deadline; zero selects 2.5s.
func NewClient(baseURL string, timeout time.Duration, breaker *Breaker, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	if timeout <= 0 {
		timeout = 2500 * time.Millisecond
	}
	if breaker == nil {
		breaker = NewBreaker(0)
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{},
		breaker: breaker,
		timeout: timeout,
		logger:  logger,
	}
}

// Breaker exposes the shared breaker for operator reset surfaces.
func (c *Client) Breaker() *Breaker {
	return c.breaker
}

// GetRate returns the date's exchange rate from one currency to another,
// rounded to 2 decimal places half-up.
//
// Error taxonomy: *UnavailableError when the breaker is open (no request
// made), *InvalidDateError for unparsable dates (breaker untouched),
// *UpstreamError for network/status/decode failures (breaker incremented).
// A caller-side cancellation (ctx cancelled or its deadline expired) returns
// the wrapped context error without touching the breaker: the breaker is
// shared across jobs and only real upstream failures may trip it.
func (c *Client) GetRate(ctx context.Context, date, from, to string) (decimal.Decimal, error) {
	if c.breaker.IsOpen() {
		n := c.breaker.FailureCount()
		c.logger.Warn("rates.breaker.open", "failures", n, "from", from, "to", to)
		return decimal.Zero, &UnavailableError{Failures: n}
	}

	normDate, err := NormalizeDate(date)
	if err != nil {
		return decimal.Zero, err
	}
	fromCode := strings.ToUpper(strings.TrimSpace(from))
	toCode := strings.ToUpper(strings.TrimSpace(to))

	reqURL := fmt.Sprintf("%s/%s?from=%s&to=%s",
		c.baseURL, normDate, url.QueryEscape(fromCode), url.QueryEscape(toCode))

	reqCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	start := time.Now()
	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, reqURL, nil)
	if err != nil {
		return decimal.Zero, c.fail(&UpstreamError{Reason: "build rate request", Cause: err})
	}
	resp, err := c.http.Do(req)
	if err != nil {
		// Caller went away: not an upstream failure, so the shared breaker
		// stays untouched. Only the per-call timeout counts against it.
		if ctx.Err() != nil || errors.Is(err, context.Canceled) {
			return decimal.Zero, fmt.Errorf("rate lookup interrupted for %s (%s to %s): %w",
				normDate, fromCode, toCode, err)
		}
		reason := fmt.Sprintf("rate request failed for %s (%s to %s)", normDate, fromCode, toCode)
		if errors.Is(err, context.DeadlineExceeded) {
			reason = fmt.Sprintf("rate request timeout for %s (%s to %s)", normDate, fromCode, toCode)
		}
		return decimal.Zero, c.fail(&UpstreamError{Reason: reason, Cause: err})
	}
	defer func() {
		if cerr := resp.Body.Close(); cerr != nil {
			c.logger.Warn("rates.http.body_close_error", "error", cerr)
		}
	}()

	raw, _ := io.ReadAll(resp.Body)
	c.logger.Debug("rates.http.response",
		"status", resp.StatusCode,
		"date", normDate,
		"from", fromCode,
		"to", toCode,
		"elapsed_ms", time.Since(start).Milliseconds(),
	)

	if resp.StatusCode != http.StatusOK {
		return decimal.Zero, c.fail(&UpstreamError{
			Reason: fmt.Sprintf("rate lookup for %s (%s to %s) returned status %d: %s",
				normDate, fromCode, toCode, resp.StatusCode, strings.TrimSpace(string(raw))),
		})
	}

	var body rateResponse
	if err := json.Unmarshal(raw, &body); err != nil {
		return decimal.Zero, c.fail(&UpstreamError{
			Reason: fmt.Sprintf("invalid rate response for %s", normDate), Cause: err,
		})
	}
	num, ok := body.Rates[toCode]
	if !ok {
		return decimal.Zero, c.fail(&UpstreamError{
			Reason: fmt.Sprintf("currency %s not found in rate response for %s", toCode, normDate),
		})
	}
	rate, err := decimal.NewFromString(num.String())
	if err != nil {
		return decimal.Zero, c.fail(&UpstreamError{
			Reason: fmt.Sprintf("unparsable rate %q for %s", num.String(), toCode), Cause: err,
		})
	}

	c.breaker.RecordSuccess()
	// Round half-up (away from zero on the tie) to 2 decimal places.
	return rate.Round(2), nil
}

func (c *Client) fail(err *UpstreamError) error {
	c.breaker.RecordFailure()
	c.logger.Warn("rates.lookup.failed", "reason", err.Reason, "failures", c.breaker.FailureCount())
	return err
}
