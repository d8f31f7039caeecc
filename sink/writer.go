package sink

import (
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/luckyPipewrench/logship/batch"
)

// WriterSink writes rendered records line by line to an io.Writer.
// Useful for local echo and as a last-resort destination; write
// failures are transient.
type WriterSink struct {
	mu sync.Mutex
	w  io.Writer
}

// NewWriterSink creates a sink writing to w.
func NewWriterSink(w io.Writer) *WriterSink {
	return &WriterSink{w: w}
}

// Deliver writes each record as one line.
func (s *WriterSink) Deliver(_ context.Context, b *batch.Batch) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range b.Records {
		if _, err := fmt.Fprintln(s.w, renderLine(r)); err != nil {
			return Transient(fmt.Errorf("writing batch %s: %w", b.ID, err))
		}
	}
	return nil
}

// Close is a no-op; the sink does not own the writer.
func (s *WriterSink) Close() error {
	return nil
}
