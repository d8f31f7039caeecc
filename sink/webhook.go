package sink

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/luckyPipewrench/logship/batch"
)

// webhookPayload is the JSON body POSTed for each batch.
type webhookPayload struct {
	BatchID string          `json:"batch_id"`
	Records []webhookRecord `json:"records"`
}

type webhookRecord struct {
	Timestamp string   `json:"timestamp"`
	Level     string   `json:"level"`
	Logger    string   `json:"logger"`
	Message   string   `json:"message"`
	Tags      []string `json:"tags,omitempty"`
	Context   string   `json:"context,omitempty"`
}

// WebhookSink POSTs batches as JSON to an HTTP endpoint.
type WebhookSink struct {
	url     string
	token   string // optional bearer token
	client  *http.Client
	timeout time.Duration
}

// WebhookOption configures a WebhookSink.
type WebhookOption func(*WebhookSink)

// WithWebhookTimeout bounds a single POST.
func WithWebhookTimeout(d time.Duration) WebhookOption {
	return func(s *WebhookSink) {
		if d > 0 {
			s.timeout = d
		}
	}
}

// WithBearerToken sets the Authorization: Bearer header value.
func WithBearerToken(tok string) WebhookOption {
	return func(s *WebhookSink) {
		s.token = tok
	}
}

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(c *http.Client) WebhookOption {
	return func(s *WebhookSink) {
		if c != nil {
			s.client = c
		}
	}
}

// NewWebhookSink creates a sink POSTing JSON batches to url.
func NewWebhookSink(url string, opts ...WebhookOption) *WebhookSink {
	s := &WebhookSink{
		url:     url,
		client:  &http.Client{},
		timeout: DefaultDeliverTimeout,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Deliver POSTs the batch. Status mapping: 2xx acknowledges, 429 is
// rate-limited (honoring Retry-After), 408 and 5xx are transient, any
// other 4xx is permanent. Network and timeout failures are transient.
func (s *WebhookSink) Deliver(ctx context.Context, b *batch.Batch) error {
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

	body, err := json.Marshal(payload)
	if err != nil {
		return Permanent(fmt.Errorf("marshaling batch %s: %w", b.ID, err))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(body))
	if err != nil {
		return Permanent(fmt.Errorf("building request: %w", err))
	}
	req.Header.Set("Content-Type", "application/json")
	if s.token != "" {
		req.Header.Set("Authorization", "Bearer "+s.token)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return Transient(fmt.Errorf("posting batch %s: %w", b.ID, err))
	}
	defer func() {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		_ = resp.Body.Close()
	}()

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return nil
	case resp.StatusCode == http.StatusTooManyRequests:
		return RateLimited(fmt.Errorf("webhook returned HTTP 429"), parseRetryAfter(resp))
	case resp.StatusCode == http.StatusRequestTimeout || resp.StatusCode >= 500:
		return Transient(fmt.Errorf("webhook returned HTTP %d", resp.StatusCode))
	default:
		return Permanent(fmt.Errorf("webhook returned HTTP %d", resp.StatusCode))
	}
}

// Close is a no-op; the HTTP client holds no per-sink resources worth
// tearing down.
func (s *WebhookSink) Close() error {
	return nil
}

// parseRetryAfter reads the Retry-After header as delay seconds.
// HTTP-date values and absent headers yield zero (no hint).
func parseRetryAfter(resp *http.Response) time.Duration {
	v := resp.Header.Get("Retry-After")
	if v == "" {
		return 0
	}
	secs, err := strconv.Atoi(v)
	if err != nil || secs < 0 {
		return 0
	}
	return time.Duration(secs) * time.Second
}
