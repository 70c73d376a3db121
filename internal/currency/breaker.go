package currency

import "sync"

// DefaultMaxFailures opens the breaker on the 3rd attempt, after 2
// consecutive failures.
const DefaultMaxFailures = 2

// Breaker counts consecutive failures of the exchange-rate lookup and blocks
// further calls once the threshold is reached. There is no half-open probe
// state: once open, every call is rejected until RecordSuccess or Reset.
//
// A single Breaker is shared across all concurrent jobs; every operation
// takes the mutex so callers always observe a consistent counter.
type Breaker struct {
	mu          sync.Mutex
	failures    int
	maxFailures int
}

// NewBreaker returns a closed breaker. maxFailures <= 0 selects
// DefaultMaxFailures.
func NewBreaker(maxFailures int) *Breaker {
	if maxFailures <= 0 {
		maxFailures = DefaultMaxFailures
	}
	return &Breaker{maxFailures: maxFailures}
}

// IsOpen reports whether the breaker is rejecting calls.
func (b *Breaker) IsOpen() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.failures >= b.maxFailures
}

// RecordSuccess closes the breaker. Idempotent at zero.
func (b *Breaker) RecordSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failures = 0
}

// RecordFailure increments the consecutive-failure counter.
func (b *Breaker) RecordFailure() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failures++
}

// FailureCount returns the current consecutive-failure count.
func (b *Breaker) FailureCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.failures
}

// Reset clears the counter. Operator/test escape hatch; recovery otherwise
// happens only through RecordSuccess.
func (b *Breaker) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failures = 0
}
