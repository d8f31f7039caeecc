package shipper

import (
	"sync"
	"time"
)

// CircuitState tracks sink health.
type CircuitState int

// Circuit states.
const (
	CircuitClosed CircuitState = iota
	CircuitOpen
	CircuitHalfOpen
)

// String returns the lowercase state name.
func (s CircuitState) String() string {
	switch s {
	case CircuitOpen:
		return "open"
	case CircuitHalfOpen:
		return "half_open"
	default:
		return "closed"
	}
}

// Breaker is a circuit breaker protecting the application from a dead
// sink. It opens after a run of consecutive transient batch failures,
// rejects all batches during the cooldown, then admits a single probe
// batch whose outcome closes or re-opens the circuit. Safe for
// concurrent use, though the delivery worker is its only caller.
type Breaker struct {
	mu        sync.Mutex
	state     CircuitState
	failures  int
	threshold int
	cooldown  time.Duration
	openedAt  time.Time
	now       func() time.Time
}

// NewBreaker creates a breaker opening after threshold consecutive
// failures and cooling down for the given duration. A non-positive
// threshold disables the breaker entirely.
func NewBreaker(threshold int, cooldown time.Duration) *Breaker {
	return &Breaker{
		threshold: threshold,
		cooldown:  cooldown,
		now:       time.Now,
	}
}

// Allow reports whether a batch may be sent to the sink. When the
// cooldown of an open circuit has elapsed, the first Allow call admits
// a probe and moves the circuit to half-open; further calls reject
// until the probe's outcome is recorded.
func (b *Breaker) Allow() bool {
	if b.threshold <= 0 {
		return true
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case CircuitClosed:
		return true
	case CircuitOpen:
		if b.now().Sub(b.openedAt) >= b.cooldown {
			b.state = CircuitHalfOpen
			return true
		}
		return false
	default: // CircuitHalfOpen: probe in flight
		return false
	}
}

// RecordSuccess resets the failure count and closes the circuit.
func (b *Breaker) RecordSuccess() {
	if b.threshold <= 0 {
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	b.state = CircuitClosed
	b.failures = 0
}

// RecordFailure registers a transient batch failure. A failed probe
// re-opens the circuit and restarts the cooldown; in the closed state
// the circuit opens once the consecutive-failure count reaches the
// threshold.
func (b *Breaker) RecordFailure() {
	if b.threshold <= 0 {
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.state == CircuitHalfOpen {
		b.state = CircuitOpen
		b.openedAt = b.now()
		return
	}

	b.failures++
	if b.failures >= b.threshold {
		b.state = CircuitOpen
		b.openedAt = b.now()
	}
}

// State returns the current circuit state.
func (b *Breaker) State() CircuitState {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}
