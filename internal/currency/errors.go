package currency

import "fmt"

// UnavailableError is returned when the breaker is open. No network request
// was made; Failures carries the counter at the time of the call.
type UnavailableError struct {
	Failures int
}

func (e *UnavailableError) Error() string {
	return fmt.Sprintf("exchange rate service is down after %d consecutive failures", e.Failures)
}

// InvalidDateError is returned for a date that cannot be normalized. Input
// validation failures never touch the breaker.
type InvalidDateError struct {
	Input string
}

func (e *InvalidDateError) Error() string {
	return fmt.Sprintf("invalid date format: %q", e.Input)
}

// UpstreamError is returned for network errors, timeouts, non-200 statuses
// and malformed responses. Each one increments the breaker.
type UpstreamError struct {
	Reason string
	Cause  error
}

func (e *UpstreamError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Reason, e.Cause)
	}
	return e.Reason
}

func (e *UpstreamError) Unwrap() error {
	return e.Cause
}
