// Package logship ships application log records to an external
// notification sink without blocking or crashing the application:
// records are queued in a bounded buffer with drop-oldest overflow,
// sealed into batches by count or age, and delivered by a background
// worker with rate limiting, retry with exponential backoff, and a
// circuit breaker for dead sinks.
package logship

import (
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/luckyPipewrench/logship/metrics"
	"github.com/luckyPipewrench/logship/record"
	"github.com/luckyPipewrench/logship/sink"
)

// Defaults applied by New when the corresponding Config field is zero.
const (
	DefaultMaxQueueSize            = 1000
	DefaultMaxBatchSize            = 16
	DefaultMaxBatchAge             = 2 * time.Second
	DefaultMaxRetries              = 5
	DefaultRateLimitCapacity       = 10
	DefaultRateLimitRefill         = 5.0
	DefaultCircuitFailureThreshold = 5
	DefaultCircuitCooldown         = 30 * time.Second
	DefaultEnqueueTimeout          = 100 * time.Millisecond
)

// Config configures a Handler. The zero value plus a Sink is usable;
// every other field has a default.
type Config struct {
	// Sink receives sealed batches. Required.
	Sink sink.Sink

	// MinLevel filters records before they enter the queue.
	MinLevel record.Level

	// Formatter renders each accepted record to the text shipped by
	// text-oriented sinks. Defaults to record.DefaultFormatter.
	Formatter record.Formatter

	// MaxQueueSize bounds the record queue. Overflow evicts the oldest
	// queued record.
	MaxQueueSize int

	// MaxBatchSize and MaxBatchAge seal a batch when either is reached.
	MaxBatchSize int
	MaxBatchAge  time.Duration

	// MaxRetries bounds retries after the first delivery attempt.
	// Zero selects the default; use NoRetries for a single attempt.
	MaxRetries int

	// BaseBackoff and MaxBackoff shape the exponential retry delay.
	BaseBackoff time.Duration
	MaxBackoff  time.Duration

	// RateLimitCapacity and RateLimitRefill configure the token bucket
	// gating delivery attempts (capacity tokens, refill per second).
	RateLimitCapacity int
	RateLimitRefill   float64

	// CircuitFailureThreshold consecutive transient batch failures open
	// the circuit for CircuitCooldown. Zero threshold keeps the default;
	// a negative threshold disables the breaker.
	CircuitFailureThreshold int
	CircuitCooldown         time.Duration

	// EnqueueTimeout is the contractual upper bound on how long Handle
	// may block the caller. The drop-oldest queue never blocks, so this
	// bound holds trivially; it is validated and kept so callers can
	// rely on it if the overflow policy ever grows a blocking variant.
	EnqueueTimeout time.Duration

	// ShutdownGrace bounds the final delivery attempt made on Close.
	ShutdownGrace time.Duration

	// Logger receives fallback diagnostics for dropped batches. Defaults
	// to a stderr logger; use zerolog.Nop() to silence.
	Logger *zerolog.Logger

	// Metrics receives the pipeline counters. Defaults to a fresh
	// registry via metrics.New().
	Metrics *metrics.Metrics
}

// NoRetries configures MaxRetries for a single delivery attempt.
const NoRetries = -1

func (c Config) withDefaults() Config {
	if c.Formatter == nil {
		c.Formatter = record.DefaultFormatter
	}
	if c.MaxQueueSize == 0 {
		c.MaxQueueSize = DefaultMaxQueueSize
	}
	if c.MaxBatchSize == 0 {
		c.MaxBatchSize = DefaultMaxBatchSize
	}
	if c.MaxBatchAge == 0 {
		c.MaxBatchAge = DefaultMaxBatchAge
	}
	if c.MaxRetries == 0 {
		c.MaxRetries = DefaultMaxRetries
	}
	if c.MaxRetries < 0 {
		c.MaxRetries = 0
	}
	if c.RateLimitCapacity == 0 {
		c.RateLimitCapacity = DefaultRateLimitCapacity
	}
	if c.RateLimitRefill == 0 {
		c.RateLimitRefill = DefaultRateLimitRefill
	}
	if c.CircuitFailureThreshold == 0 {
		c.CircuitFailureThreshold = DefaultCircuitFailureThreshold
	}
	if c.CircuitCooldown == 0 {
		c.CircuitCooldown = DefaultCircuitCooldown
	}
	if c.EnqueueTimeout == 0 {
		c.EnqueueTimeout = DefaultEnqueueTimeout
	}
	if c.Metrics == nil {
		c.Metrics = metrics.New()
	}
	return c
}

// Validate reports the first configuration problem, before defaulting.
func (c Config) Validate() error {
	if c.Sink == nil {
		return errors.New("logship: config requires a sink")
	}
	if c.MaxQueueSize < 0 {
		return fmt.Errorf("logship: max queue size %d is negative", c.MaxQueueSize)
	}
	if c.MaxBatchSize < 0 {
		return fmt.Errorf("logship: max batch size %d is negative", c.MaxBatchSize)
	}
	if c.MaxQueueSize > 0 && c.MaxBatchSize > c.MaxQueueSize {
		return fmt.Errorf("logship: max batch size %d exceeds queue size %d",
			c.MaxBatchSize, c.MaxQueueSize)
	}
	if c.MaxBatchAge < 0 || c.BaseBackoff < 0 || c.MaxBackoff < 0 ||
		c.CircuitCooldown < 0 || c.EnqueueTimeout < 0 || c.ShutdownGrace < 0 {
		return errors.New("logship: durations must not be negative")
	}
	if c.RateLimitRefill < 0 {
		return fmt.Errorf("logship: rate limit refill %v is negative", c.RateLimitRefill)
	}
	return nil
}
