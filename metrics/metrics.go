// Package metrics provides Prometheus instrumentation and a JSON stats
// endpoint for the log shipping pipeline.
package metrics

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Drop reasons used as the label on the dropped-records counter.
const (
	DropCapacity         = "capacity"
	DropLevel            = "level"
	DropPermanent        = "permanent"
	DropCircuitOpen      = "circuit_open"
	DropRetriesExhausted = "retries_exhausted"
	DropShutdown         = "shutdown"
)

// Metrics collects counters for the shipping pipeline. A nil *Metrics
// is valid and records nothing, so components can run uninstrumented.
type Metrics struct {
	registry *prometheus.Registry

	enqueuedTotal    prometheus.Counter
	deliveredRecords prometheus.Counter
	deliveredBatches prometheus.Counter
	retriedTotal     prometheus.Counter
	droppedTotal     *prometheus.CounterVec
	queueLength      prometheus.Gauge
	deliveryLatency  prometheus.Histogram

	mu        sync.Mutex
	startTime time.Time
	snapshot  Snapshot
}

// Snapshot is a point-in-time copy of the pipeline counters, suitable
// for polling and assertions.
type Snapshot struct {
	Enqueued         int64 `json:"enqueued"`
	DeliveredRecords int64 `json:"delivered_records"`
	DeliveredBatches int64 `json:"delivered_batches"`
	Retried          int64 `json:"retried"`
	DroppedCapacity  int64 `json:"dropped_capacity"`
	DroppedLevel     int64 `json:"dropped_level"`
	DroppedPermanent int64 `json:"dropped_permanent"`
	DroppedCircuit   int64 `json:"dropped_circuit_open"`
	DroppedRetries   int64 `json:"dropped_retries_exhausted"`
	DroppedShutdown  int64 `json:"dropped_shutdown"`
}

// Dropped returns the total records dropped for any reason.
func (s Snapshot) Dropped() int64 {
	return s.DroppedCapacity + s.DroppedLevel + s.DroppedPermanent +
		s.DroppedCircuit + s.DroppedRetries + s.DroppedShutdown
}

// New creates a Metrics instance with its own Prometheus registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()

	enqueuedTotal := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "logship",
		Name:      "enqueued_total",
		Help:      "Total records accepted into the queue.",
	})

	deliveredRecords := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "logship",
		Name:      "delivered_records_total",
		Help:      "Total records acknowledged by the sink.",
	})

	deliveredBatches := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "logship",
		Name:      "delivered_batches_total",
		Help:      "Total batches acknowledged by the sink.",
	})

	retriedTotal := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "logship",
		Name:      "retried_total",
		Help:      "Total delivery attempts beyond the first per batch.",
	})

	droppedTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "logship",
		Name:      "dropped_total",
		Help:      "Total records dropped by reason.",
	}, []string{"reason"})

	queueLength := prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "logship",
		Name:      "queue_length",
		Help:      "Current number of queued records.",
	})

	deliveryLatency := prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "logship",
		Name:      "delivery_duration_seconds",
		Help:      "Sink delivery attempt latency in seconds.",
		Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
	})

	reg.MustRegister(enqueuedTotal, deliveredRecords, deliveredBatches,
		retriedTotal, droppedTotal, queueLength, deliveryLatency)

	return &Metrics{
		registry:         reg,
		enqueuedTotal:    enqueuedTotal,
		deliveredRecords: deliveredRecords,
		deliveredBatches: deliveredBatches,
		retriedTotal:     retriedTotal,
		droppedTotal:     droppedTotal,
		queueLength:      queueLength,
		deliveryLatency:  deliveryLatency,
		startTime:        time.Now(),
	}
}

// RecordEnqueued counts a record accepted into the queue.
func (m *Metrics) RecordEnqueued() {
	if m == nil {
		return
	}
	m.enqueuedTotal.Inc()
	m.mu.Lock()
	m.snapshot.Enqueued++
	m.mu.Unlock()
}

// RecordDelivered counts an acknowledged batch of n records and its
// delivery latency.
func (m *Metrics) RecordDelivered(n int, duration time.Duration) {
	if m == nil {
		return
	}
	m.deliveredBatches.Inc()
	m.deliveredRecords.Add(float64(n))
	m.deliveryLatency.Observe(duration.Seconds())
	m.mu.Lock()
	m.snapshot.DeliveredBatches++
	m.snapshot.DeliveredRecords += int64(n)
	m.mu.Unlock()
}

// RecordRetried counts a retry attempt.
func (m *Metrics) RecordRetried() {
	if m == nil {
		return
	}
	m.retriedTotal.Inc()
	m.mu.Lock()
	m.snapshot.Retried++
	m.mu.Unlock()
}

// RecordDropped counts n records dropped for the given reason.
func (m *Metrics) RecordDropped(reason string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.droppedTotal.WithLabelValues(reason).Add(float64(n))
	m.mu.Lock()
	switch reason {
	case DropCapacity:
		m.snapshot.DroppedCapacity += int64(n)
	case DropLevel:
		m.snapshot.DroppedLevel += int64(n)
	case DropPermanent:
		m.snapshot.DroppedPermanent += int64(n)
	case DropCircuitOpen:
		m.snapshot.DroppedCircuit += int64(n)
	case DropRetriesExhausted:
		m.snapshot.DroppedRetries += int64(n)
	case DropShutdown:
		m.snapshot.DroppedShutdown += int64(n)
	}
	m.mu.Unlock()
}

// SetQueueLength updates the queue length gauge.
func (m *Metrics) SetQueueLength(n int) {
	if m == nil {
		return
	}
	m.queueLength.Set(float64(n))
}

// Snapshot returns a copy of the current counters.
func (m *Metrics) Snapshot() Snapshot {
	if m == nil {
		return Snapshot{}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.snapshot
}

// PrometheusHandler serves the registry in Prometheus text format.
func (m *Metrics) PrometheusHandler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// StatsHandler serves a JSON summary of the counters.
func (m *Metrics) StatsHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		m.mu.Lock()
		stats := struct {
			UptimeSeconds float64  `json:"uptime_seconds"`
			Counters      Snapshot `json:"counters"`
		}{
			UptimeSeconds: time.Since(m.startTime).Seconds(),
			Counters:      m.snapshot,
		}
		m.mu.Unlock()

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(stats)
	}
}
