package currency

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) (*Client, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewClient(srv.URL, time.Second, NewBreaker(2), nil), srv
}

func TestGetRateRoundsToTwoPlaces(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/2025-07-01", r.URL.Path)
		assert.Equal(t, "USD", r.URL.Query().Get("from"))
		assert.Equal(t, "ILS", r.URL.Query().Get("to"))
		fmt.Fprint(w, `{"amount":1.0,"base":"USD","date":"2025-07-01","rates":{"ILS":3.333}}`)
	})

	rate, err := c.GetRate(context.Background(), "2025-07-01", "usd", "ils")
	require.NoError(t, err)
	assert.Equal(t, "3.33", rate.StringFixed(2))
	assert.Equal(t, 0, c.Breaker().FailureCount())
}

func TestGetRateRoundsHalfUp(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"amount":1.0,"base":"USD","date":"2025-07-01","rates":{"EUR":3.335}}`)
	})

	rate, err := c.GetRate(context.Background(), "2025-07-01", "USD", "EUR")
	require.NoError(t, err)
	assert.Equal(t, "3.34", rate.StringFixed(2))
}

func TestGetRateOpenBreakerMakesNoRequest(t *testing.T) {
	var calls atomic.Int64
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	})

	// Two upstream failures trip the breaker.
	for i := 0; i < 2; i++ {
		_, err := c.GetRate(context.Background(), "2025-07-01", "USD", "ILS")
		var upErr *UpstreamError
		require.ErrorAs(t, err, &upErr)
	}
	require.EqualValues(t, 2, calls.Load())

	// Third call is rejected without touching the network.
	_, err := c.GetRate(context.Background(), "2025-07-01", "USD", "ILS")
	var unavailable *UnavailableError
	require.ErrorAs(t, err, &unavailable)
	assert.Equal(t, 2, unavailable.Failures)
	assert.EqualValues(t, 2, calls.Load(), "open breaker must not issue requests")
}

func TestGetRateInvalidDateSkipsBreaker(t *testing.T) {
	var calls atomic.Int64
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
	})

	_, err := c.GetRate(context.Background(), "not-a-date", "USD", "ILS")
	var dateErr *InvalidDateError
	require.ErrorAs(t, err, &dateErr)
	assert.EqualValues(t, 0, calls.Load())
	assert.Equal(t, 0, c.Breaker().FailureCount(), "input validation must not count as an upstream failure")
}

func TestGetRateMissingCurrencyCountsAsFailure(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"amount":1.0,"base":"USD","date":"2025-07-01","rates":{"EUR":0.91}}`)
	})

	_, err := c.GetRate(context.Background(), "2025-07-01", "USD", "XXX")
	var upErr *UpstreamError
	require.ErrorAs(t, err, &upErr)
	assert.Contains(t, upErr.Reason, "XXX")
	assert.Equal(t, 1, c.Breaker().FailureCount())
}

func TestGetRateRecoversAfterSuccess(t *testing.T) {
	var failing atomic.Bool
	failing.Store(true)
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if failing.Load() {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		fmt.Fprint(w, `{"amount":1.0,"base":"USD","date":"2025-07-01","rates":{"ILS":3.65}}`)
	})

	_, err := c.GetRate(context.Background(), "2025-07-01", "USD", "ILS")
	require.Error(t, err)
	require.Equal(t, 1, c.Breaker().FailureCount())

	failing.Store(false)
	rate, err := c.GetRate(context.Background(), "2025-07-01", "USD", "ILS")
	require.NoError(t, err)
	assert.Equal(t, "3.65", rate.StringFixed(2))
	assert.Equal(t, 0, c.Breaker().FailureCount(), "success must clear the failure streak")
}

func TestGetRateCallerCancellationSkipsBreaker(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(500 * time.Millisecond)
	}))
	t.Cleanup(srv.Close)
	c := NewClient(srv.URL, time.Second, NewBreaker(2), nil)

	// Two lookups cancelled locally mid-flight, as a job timeout would do.
	for i := 0; i < 2; i++ {
		ctx, cancel := context.WithCancel(context.Background())
		timer := time.AfterFunc(20*time.Millisecond, cancel)
		_, err := c.GetRate(ctx, "2025-07-01", "USD", "ILS")
		timer.Stop()
		cancel()

		require.Error(t, err)
		assert.ErrorIs(t, err, context.Canceled)
		var upErr *UpstreamError
		assert.False(t, errors.As(err, &upErr), "cancellation is not an upstream failure")
	}

	assert.Equal(t, 0, c.Breaker().FailureCount(), "local cancellations must not pollute the shared breaker")
	assert.False(t, c.Breaker().IsOpen())
}

func TestGetRateCallerDeadlineSkipsBreaker(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(500 * time.Millisecond)
	}))
	t.Cleanup(srv.Close)
	c := NewClient(srv.URL, time.Second, NewBreaker(2), nil)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := c.GetRate(ctx, "2025-07-01", "USD", "ILS")
	require.Error(t, err)
	assert.Equal(t, 0, c.Breaker().FailureCount(), "the caller's deadline is not the lookup timeout")
}

func TestGetRateTimeoutCountsAsFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
	}))
	t.Cleanup(srv.Close)
	c := NewClient(srv.URL, 20*time.Millisecond, NewBreaker(2), nil)

	_, err := c.GetRate(context.Background(), "2025-07-01", "USD", "ILS")
	var upErr *UpstreamError
	require.ErrorAs(t, err, &upErr)
	assert.Equal(t, 1, c.Breaker().FailureCount())
}
