// Package sink defines the delivery boundary between the shipping
// pipeline and concrete transports, plus the sink implementations
// bundled with logship.
package sink

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/luckyPipewrench/logship/batch"
)

// DefaultDeliverTimeout bounds a single delivery attempt when a sink is
// constructed without an explicit timeout.
const DefaultDeliverTimeout = 5 * time.Second

// Sink delivers batches to an external system.
// Implementations must be safe for concurrent use, enforce their own
// per-call timeout, and report every failure as a *Error — no raw
// transport failure may escape.
type Sink interface {
	// Deliver sends one batch. A nil return acknowledges the batch.
	Deliver(ctx context.Context, b *batch.Batch) error

	// Close releases transport resources.
	Close() error
}

// Class partitions sink failures by how the delivery worker must react.
type Class int

// Failure classes.
const (
	ClassTransient   Class = iota // retryable: timeouts, broken pipes, 5xx
	ClassPermanent                // not retryable: malformed input, bad auth
	ClassRateLimited              // sink backpressure: retry after hint
)

// String returns the lowercase class name.
func (c Class) String() string {
	switch c {
	case ClassPermanent:
		return "permanent"
	case ClassRateLimited:
		return "rate_limited"
	default:
		return "transient"
	}
}

// Error is the classified delivery failure returned by sinks.
type Error struct {
	Class      Class
	RetryAfter time.Duration // backoff hint for ClassRateLimited, zero if absent
	Err        error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("sink: %s failure", e.Class)
	}
	return fmt.Sprintf("sink: %s failure: %v", e.Class, e.Err)
}

// Unwrap exposes the underlying cause for errors.Is/As.
func (e *Error) Unwrap() error {
	return e.Err
}

// Transient wraps err as a retryable failure.
func Transient(err error) *Error {
	return &Error{Class: ClassTransient, Err: err}
}

// Permanent wraps err as a non-retryable failure.
func Permanent(err error) *Error {
	return &Error{Class: ClassPermanent, Err: err}
}

// RateLimited wraps err as sink backpressure with an optional
// retry-after hint (zero when the sink gave none).
func RateLimited(err error, retryAfter time.Duration) *Error {
	return &Error{Class: ClassRateLimited, RetryAfter: retryAfter, Err: err}
}

// ClassOf extracts the failure class from err. Unclassified errors are
// treated as transient so an unexpected failure path never disables
// retry.
func ClassOf(err error) Class {
	var se *Error
	if errors.As(err, &se) {
		return se.Class
	}
	return ClassTransient
}

// RetryAfterHint returns the sink-provided backoff hint, or zero.
func RetryAfterHint(err error) time.Duration {
	var se *Error
	if errors.As(err, &se) {
		return se.RetryAfter
	}
	return 0
}
