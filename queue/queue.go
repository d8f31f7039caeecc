// Package queue provides the bounded record buffer that decouples log
// call sites from the delivery worker.
package queue

import (
	"sync"

	"github.com/luckyPipewrench/logship/record"
)

// DefaultCapacity bounds the queue when no capacity is configured.
const DefaultCapacity = 1000

// Queue is a bounded FIFO buffer of records with a drop-oldest overflow
// policy. Producers call Enqueue from arbitrary goroutines; a single
// consumer drains it. All methods are safe for concurrent use and none
// of them block.
type Queue struct {
	mu      sync.Mutex
	buf     []record.Record
	head    int // index of the oldest record
	size    int
	wakeups chan struct{}
}

// New creates a queue holding at most capacity records. Non-positive
// capacities fall back to DefaultCapacity.
func New(capacity int) *Queue {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Queue{
		buf:     make([]record.Record, capacity),
		wakeups: make(chan struct{}, 1),
	}
}

// Enqueue adds a record. When the queue is at capacity the oldest
// queued record is discarded to admit the new one; the return value
// reports whether that eviction happened so the caller can count the
// drop. Enqueue never blocks and never fails.
func (q *Queue) Enqueue(r record.Record) (evicted bool) {
	q.mu.Lock()
	if q.size == len(q.buf) {
		// Overwrite the oldest slot and advance head.
		q.buf[q.head] = r
		q.head = (q.head + 1) % len(q.buf)
		evicted = true
	} else {
		q.buf[(q.head+q.size)%len(q.buf)] = r
		q.size++
	}
	q.mu.Unlock()

	// Coalescing wakeup: a full signal channel already means "work
	// pending", so dropping the send is fine.
	select {
	case q.wakeups <- struct{}{}:
	default:
	}
	return evicted
}

// Drain removes and returns up to max records in FIFO order. It never
// blocks; an empty queue yields nil.
func (q *Queue) Drain(max int) []record.Record {
	if max <= 0 {
		return nil
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	n := q.size
	if n > max {
		n = max
	}
	if n == 0 {
		return nil
	}

	out := make([]record.Record, n)
	for i := 0; i < n; i++ {
		idx := (q.head + i) % len(q.buf)
		out[i] = q.buf[idx]
		q.buf[idx] = record.Record{} // release references
	}
	q.head = (q.head + n) % len(q.buf)
	q.size -= n
	return out
}

// Len returns the number of queued records.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.size
}

// Cap returns the configured capacity.
func (q *Queue) Cap() int {
	return len(q.buf)
}

// Wakeups returns a channel that receives a signal when records arrive.
// Signals coalesce: one receive may cover many enqueues, so consumers
// must drain until empty after each wakeup.
func (q *Queue) Wakeups() <-chan struct{} {
	return q.wakeups
}
