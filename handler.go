package logship

import (
	"context"
	"os"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/luckyPipewrench/logship/batch"
	"github.com/luckyPipewrench/logship/metrics"
	"github.com/luckyPipewrench/logship/queue"
	"github.com/luckyPipewrench/logship/ratelimit"
	"github.com/luckyPipewrench/logship/record"
	"github.com/luckyPipewrench/logship/shipper"
)

// Handler is the object applications hand their log records to. Handle
// is safe to call from any goroutine, never blocks beyond the
// configured enqueue bound, and never lets a failure escape to the
// caller; delivery happens on a single background worker.
type Handler struct {
	cfg       Config
	q         *queue.Queue
	m         *metrics.Metrics
	worker    *shipper.Worker
	cancel    context.CancelFunc
	closeOnce sync.Once
	closeErr  error
}

// New validates cfg, applies defaults, and starts the delivery worker.
// The caller owns the sink until New returns successfully; afterwards
// Close tears it down.
func New(cfg Config) (*Handler, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	cfg = cfg.withDefaults()

	var log zerolog.Logger
	if cfg.Logger != nil {
		log = *cfg.Logger
	} else {
		log = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}).
			With().Timestamp().Str("component", "logship").Logger()
	}

	threshold := cfg.CircuitFailureThreshold
	if threshold < 0 {
		threshold = 0 // breaker disabled
	}

	q := queue.New(cfg.MaxQueueSize)
	w := shipper.NewWorker(
		q,
		batch.NewBatcher(cfg.MaxBatchSize, cfg.MaxBatchAge),
		ratelimit.New(cfg.RateLimitCapacity, cfg.RateLimitRefill),
		shipper.NewBreaker(threshold, cfg.CircuitCooldown),
		cfg.Sink,
		cfg.Metrics,
		log,
		shipper.Config{
			MaxRetries:    cfg.MaxRetries,
			BaseBackoff:   cfg.BaseBackoff,
			MaxBackoff:    cfg.MaxBackoff,
			ShutdownGrace: cfg.ShutdownGrace,
		},
	)

	ctx, cancel := context.WithCancel(context.Background())
	go w.Run(ctx)

	return &Handler{
		cfg:    cfg,
		q:      q,
		m:      cfg.Metrics,
		worker: w,
		cancel: cancel,
	}, nil
}

// Handle accepts one record: records below the minimum level are
// filtered out, the rest are rendered and enqueued. A queue at capacity
// evicts its oldest record to admit the new one. Handle never blocks
// beyond the enqueue bound and never panics into the caller.
func (h *Handler) Handle(r record.Record) {
	defer func() {
		// Logging must never crash the application.
		_ = recover()
	}()

	if r.Level < h.cfg.MinLevel {
		h.m.RecordDropped(metrics.DropLevel, 1)
		return
	}
	if r.Timestamp.IsZero() {
		r.Timestamp = time.Now()
	}
	r.Rendered = h.cfg.Formatter(r)

	if evicted := h.q.Enqueue(r); evicted {
		h.m.RecordDropped(metrics.DropCapacity, 1)
	}
	h.m.RecordEnqueued()
	h.m.SetQueueLength(h.q.Len())
}

// Log is a convenience wrapper building a record stamped now.
func (h *Handler) Log(level record.Level, logger, message string) {
	h.Handle(record.New(level, logger, message))
}

// Stats returns a snapshot of the pipeline counters.
func (h *Handler) Stats() metrics.Snapshot {
	return h.m.Snapshot()
}

// Metrics exposes the underlying metrics receiver, e.g. to mount its
// Prometheus handler.
func (h *Handler) Metrics() *metrics.Metrics {
	return h.m
}

// QueueLen returns the number of records currently queued.
func (h *Handler) QueueLen() int {
	return h.q.Len()
}

// Close stops the worker, letting it make one final delivery attempt
// bounded by the shutdown grace period, then closes the sink. The
// provided context bounds how long Close waits for the worker.
func (h *Handler) Close(ctx context.Context) error {
	h.closeOnce.Do(func() {
		h.cancel()
		select {
		case <-h.worker.Done():
			h.closeErr = h.cfg.Sink.Close()
		case <-ctx.Done():
			h.closeErr = ctx.Err()
		}
	})
	return h.closeErr
}
