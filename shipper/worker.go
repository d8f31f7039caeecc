// Package shipper runs the background delivery loop: it drains the
// record queue, seals batches, and pushes them to the sink with rate
// limiting, retry with backoff, and circuit breaking.
package shipper

import (
	"context"
	"math/rand"
	"time"

	"github.com/rs/zerolog"

	"github.com/luckyPipewrench/logship/batch"
	"github.com/luckyPipewrench/logship/metrics"
	"github.com/luckyPipewrench/logship/queue"
	"github.com/luckyPipewrench/logship/ratelimit"
	"github.com/luckyPipewrench/logship/sink"
)

// Defaults applied when a Config field is zero.
const (
	DefaultMaxRetries    = 5
	DefaultBaseBackoff   = time.Second
	DefaultMaxBackoff    = 30 * time.Second
	DefaultShutdownGrace = 3 * time.Second
)

// Config holds the worker's retry and shutdown tuning.
type Config struct {
	MaxRetries    int           // retries after the first attempt before a batch is dropped
	BaseBackoff   time.Duration // first retry delay
	MaxBackoff    time.Duration // backoff ceiling
	ShutdownGrace time.Duration // bound on the final flush delivery
}

func (c Config) withDefaults() Config {
	if c.MaxRetries < 0 {
		c.MaxRetries = 0
	}
	if c.BaseBackoff <= 0 {
		c.BaseBackoff = DefaultBaseBackoff
	}
	if c.MaxBackoff <= 0 {
		c.MaxBackoff = DefaultMaxBackoff
	}
	if c.MaxBackoff < c.BaseBackoff {
		c.MaxBackoff = c.BaseBackoff
	}
	if c.ShutdownGrace <= 0 {
		c.ShutdownGrace = DefaultShutdownGrace
	}
	return c
}

// Worker is the single consumer of the record queue. Run drives the
// delivery loop until its context is cancelled; every wait in the loop
// (batch age, rate limit, retry backoff) is cancellable so shutdown is
// prompt.
type Worker struct {
	queue   *queue.Queue
	batcher *batch.Batcher
	limiter *ratelimit.Limiter
	breaker *Breaker
	snk     sink.Sink
	metrics *metrics.Metrics
	log     zerolog.Logger
	cfg     Config
	jitter  func() float64 // uniform [0,1) source for retry jitter
	done    chan struct{}
}

// NewWorker wires the delivery worker. The metrics receiver may be nil.
func NewWorker(q *queue.Queue, b *batch.Batcher, lim *ratelimit.Limiter,
	brk *Breaker, snk sink.Sink, m *metrics.Metrics, log zerolog.Logger,
	cfg Config) *Worker {
	return &Worker{
		queue:   q,
		batcher: b,
		limiter: lim,
		breaker: brk,
		snk:     snk,
		metrics: m,
		log:     log,
		cfg:     cfg.withDefaults(),
		jitter:  rand.Float64,
		done:    make(chan struct{}),
	}
}

// Done is closed when Run has finished its shutdown flush.
func (w *Worker) Done() <-chan struct{} {
	return w.done
}

// Run drives the delivery loop until ctx is cancelled, then performs
// one final best-effort delivery bounded by the shutdown grace period
// and discards whatever remains.
func (w *Worker) Run(ctx context.Context) {
	defer close(w.done)
	defer func() {
		if r := recover(); r != nil {
			w.log.Error().Interface("panic", r).Msg("delivery worker panic")
		}
	}()

	for {
		w.pump()
		if b := w.batcher.TakeReady(); b != nil {
			w.deliver(ctx, b)
			continue
		}

		// Nothing ready: sleep until records arrive, the pending
		// batch ages out, or shutdown.
		var ageC <-chan time.Time
		var timer *time.Timer
		if deadline, ok := w.batcher.NextDeadline(); ok {
			d := time.Until(deadline)
			if d < 0 {
				d = 0
			}
			timer = time.NewTimer(d)
			ageC = timer.C
		}

		select {
		case <-ctx.Done():
			if timer != nil {
				timer.Stop()
			}
			w.shutdown()
			return
		case <-w.queue.Wakeups():
		case <-ageC:
		}
		if timer != nil {
			timer.Stop()
		}
	}
}

// pump moves queued records into the batcher, but never more than one
// batch worth: backlog stays in the bounded queue where drop-oldest
// applies.
func (w *Worker) pump() {
	for {
		room := w.batcher.Room()
		if room == 0 {
			break
		}
		recs := w.queue.Drain(room)
		if len(recs) == 0 {
			break
		}
		for _, r := range recs {
			w.batcher.Add(r)
		}
	}
	w.metrics.SetQueueLength(w.queue.Len())
}

// deliver pushes one batch through the circuit breaker, rate limiter,
// and retry loop until the batch reaches a terminal state.
func (w *Worker) deliver(ctx context.Context, b *batch.Batch) {
	if !w.breaker.Allow() {
		w.metrics.RecordDropped(metrics.DropCircuitOpen, b.Len())
		w.log.Warn().
			Str("batch_id", b.ID).
			Int("records", b.Len()).
			Msg("circuit open, batch dropped")
		return
	}

	for attempt := 0; ; attempt++ {
		if wait := w.limiter.Acquire(1); wait > 0 {
			if !w.sleep(ctx, wait) {
				w.metrics.RecordDropped(metrics.DropShutdown, b.Len())
				return
			}
		}

		start := time.Now()
		err := w.snk.Deliver(ctx, b)
		if err == nil {
			w.metrics.RecordDelivered(b.Len(), time.Since(start))
			w.breaker.RecordSuccess()
			return
		}

		if ctx.Err() != nil {
			w.metrics.RecordDropped(metrics.DropShutdown, b.Len())
			return
		}

		class := sink.ClassOf(err)
		if class == sink.ClassPermanent {
			w.metrics.RecordDropped(metrics.DropPermanent, b.Len())
			w.log.Error().
				Err(err).
				Str("batch_id", b.ID).
				Int("records", b.Len()).
				Msg("permanent sink failure, batch dropped")
			return
		}

		if attempt >= w.cfg.MaxRetries {
			w.metrics.RecordDropped(metrics.DropRetriesExhausted, b.Len())
			if class == sink.ClassTransient {
				w.breaker.RecordFailure()
			}
			w.log.Error().
				Err(err).
				Str("batch_id", b.ID).
				Int("records", b.Len()).
				Int("attempts", attempt+1).
				Msg("retries exhausted, batch dropped")
			return
		}

		w.metrics.RecordRetried()
		delay := w.backoff(attempt)
		if class == sink.ClassRateLimited {
			if hint := sink.RetryAfterHint(err); hint > 0 {
				delay = hint
			}
		}
		w.log.Debug().
			Err(err).
			Str("batch_id", b.ID).
			Int("attempt", attempt+1).
			Dur("backoff", delay).
			Msg("delivery failed, retrying")
		if !w.sleep(ctx, delay) {
			w.metrics.RecordDropped(metrics.DropShutdown, b.Len())
			return
		}
	}
}

// backoff returns the delay before retrying after the given attempt
// index: base * 2^attempt capped at the maximum, plus uniform jitter in
// [0, delay/4) to avoid synchronized retry storms.
func (w *Worker) backoff(attempt int) time.Duration {
	d := w.cfg.MaxBackoff
	if attempt < 32 {
		if shifted := w.cfg.BaseBackoff << uint(attempt); shifted > 0 && shifted < d {
			d = shifted
		}
	}
	return d + time.Duration(w.jitter()*float64(d)/4)
}

// sleep waits for d unless ctx is cancelled first. Returns false on
// cancellation.
func (w *Worker) sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return true
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	}
}

// shutdown seals one batch from whatever is pending and makes a single
// delivery attempt bounded by the grace period, then discards the rest
// of the queue.
func (w *Worker) shutdown() {
	w.pump()
	if b := w.batcher.TakeAll(); b != nil {
		if w.breaker.Allow() {
			ctx, cancel := context.WithTimeout(context.Background(), w.cfg.ShutdownGrace)
			start := time.Now()
			if err := w.snk.Deliver(ctx, b); err == nil {
				w.metrics.RecordDelivered(b.Len(), time.Since(start))
				w.breaker.RecordSuccess()
			} else {
				w.metrics.RecordDropped(metrics.DropShutdown, b.Len())
				w.log.Warn().
					Err(err).
					Str("batch_id", b.ID).
					Int("records", b.Len()).
					Msg("final flush failed, batch dropped")
			}
			cancel()
		} else {
			w.metrics.RecordDropped(metrics.DropCircuitOpen, b.Len())
		}
	}

	for {
		recs := w.queue.Drain(256)
		if len(recs) == 0 {
			break
		}
		w.metrics.RecordDropped(metrics.DropShutdown, len(recs))
	}
	w.metrics.SetQueueLength(0)
}
