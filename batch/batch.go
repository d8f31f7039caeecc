// Package batch groups queued records into delivery-sized batches.
package batch

import (
	"time"

	"github.com/google/uuid"

	"github.com/luckyPipewrench/logship/record"
)

// Default bounds applied when the batcher is configured with zero values.
const (
	DefaultMaxSize = 16
	DefaultMaxAge  = 2 * time.Second
)

// Batch is an ordered group of records delivered in one sink call.
// The delivery worker owns a batch exclusively from the moment it is
// taken until terminal success or failure.
type Batch struct {
	ID      string
	Records []record.Record
}

// Len returns the number of records in the batch.
func (b *Batch) Len() int {
	if b == nil {
		return 0
	}
	return len(b.Records)
}

// Batcher accumulates records and seals them into batches when either
// the size bound or the age bound is reached. It is not safe for
// concurrent use; the delivery worker is its only caller.
type Batcher struct {
	maxSize int
	maxAge  time.Duration
	pending []record.Record
	oldest  time.Time // arrival time of pending[0]
	now     func() time.Time
}

// NewBatcher creates a batcher sealing batches at maxSize records or
// when the oldest pending record reaches maxAge. Zero values select the
// package defaults.
func NewBatcher(maxSize int, maxAge time.Duration) *Batcher {
	if maxSize <= 0 {
		maxSize = DefaultMaxSize
	}
	if maxAge <= 0 {
		maxAge = DefaultMaxAge
	}
	return &Batcher{maxSize: maxSize, maxAge: maxAge, now: time.Now}
}

// Add appends a record to the pending batch, preserving insertion order.
func (b *Batcher) Add(r record.Record) {
	if len(b.pending) == 0 {
		b.oldest = b.now()
	}
	b.pending = append(b.pending, r)
}

// Pending returns the number of records not yet sealed into a batch.
func (b *Batcher) Pending() int {
	return len(b.pending)
}

// Room returns how many more records fit before the size bound seals a
// batch. The worker uses it to keep backlogged records in the bounded
// queue instead of accumulating them here.
func (b *Batcher) Room() int {
	if r := b.maxSize - len(b.pending); r > 0 {
		return r
	}
	return 0
}

// TakeReady seals and returns the pending records as a batch if either
// bound is met, or nil if no batch is ready. The size bound is checked
// before the age bound. A record is never included in more than one
// batch.
func (b *Batcher) TakeReady() *Batch {
	if len(b.pending) >= b.maxSize {
		return b.seal(b.maxSize)
	}
	if len(b.pending) > 0 && b.now().Sub(b.oldest) >= b.maxAge {
		return b.seal(len(b.pending))
	}
	return nil
}

// TakeAll seals whatever is pending regardless of the bounds. Used for
// the final flush on shutdown. Returns nil when nothing is pending.
func (b *Batcher) TakeAll() *Batch {
	if len(b.pending) == 0 {
		return nil
	}
	return b.seal(len(b.pending))
}

// NextDeadline reports when the age bound will seal the pending records,
// and false when nothing is pending.
func (b *Batcher) NextDeadline() (time.Time, bool) {
	if len(b.pending) == 0 {
		return time.Time{}, false
	}
	return b.oldest.Add(b.maxAge), true
}

func (b *Batcher) seal(n int) *Batch {
	records := make([]record.Record, n)
	copy(records, b.pending[:n])

	rest := copy(b.pending, b.pending[n:])
	for i := rest; i < len(b.pending); i++ {
		b.pending[i] = record.Record{}
	}
	b.pending = b.pending[:rest]
	if rest > 0 {
		// Remaining records inherit the seal time as their age origin;
		// their true arrival times are close enough for the age bound.
		b.oldest = b.now()
	}

	return &Batch{ID: uuid.NewString(), Records: records}
}
