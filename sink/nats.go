package sink

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/luckyPipewrench/logship/batch"
)

// NATSSink publishes batches as JSON messages on a NATS subject.
type NATSSink struct {
	nc      *nats.Conn
	subject string
	timeout time.Duration
}

// NATSOption configures a NATSSink.
type NATSOption func(*NATSSink)

// WithNATSTimeout bounds a single publish-and-flush round trip.
func WithNATSTimeout(d time.Duration) NATSOption {
	return func(s *NATSSink) {
		if d > 0 {
			s.timeout = d
		}
	}
}

// NewNATSSink connects to the NATS server at url and publishes batches
// to subject. The connection reconnects automatically; publishes made
// while disconnected fail transient and are retried by the worker.
func NewNATSSink(url, subject string, opts ...NATSOption) (*NATSSink, error) {
	nc, err := nats.Connect(url,
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("connecting to NATS at %s: %w", url, err)
	}

	s := &NATSSink{
		nc:      nc,
		subject: subject,
		timeout: DefaultDeliverTimeout,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Deliver publishes the batch and flushes to confirm the server took
// it. Payload problems are permanent; connectivity problems are
// transient.
func (s *NATSSink) Deliver(ctx context.Context, b *batch.Batch) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	payload := webhookPayload{
		BatchID: b.ID,
		Records: make([]webhookRecord, 0, len(b.Records)),
	}
	for _, r := range b.Records {
		payload.Records = append(payload.Records, webhookRecord{
			Timestamp: r.Timestamp.UTC().Format(time.RFC3339Nano),
			Level:     r.Level.String(),
			Logger:    r.Logger,
			Message:   renderLine(r),
			Tags:      r.Tags,
			Context:   r.Context,
		})
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return Permanent(fmt.Errorf("marshaling batch %s: %w", b.ID, err))
	}

	if err := s.nc.Publish(s.subject, data); err != nil {
		if errors.Is(err, nats.ErrMaxPayload) {
			return Permanent(fmt.Errorf("batch %s exceeds server payload limit: %w", b.ID, err))
		}
		return Transient(fmt.Errorf("publishing batch %s: %w", b.ID, err))
	}
	if err := s.nc.FlushWithContext(ctx); err != nil {
		return Transient(fmt.Errorf("flushing batch %s: %w", b.ID, err))
	}
	return nil
}

// Close closes the NATS connection.
func (s *NATSSink) Close() error {
	if s.nc != nil {
		s.nc.Close()
	}
	return nil
}
