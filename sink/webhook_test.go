package sink

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/luckyPipewrench/logship/batch"
	"github.com/luckyPipewrench/logship/record"
)

func testBatch(msgs ...string) *batch.Batch {
	b := &batch.Batch{ID: "batch-1"}
	for _, m := range msgs {
		b.Records = append(b.Records, record.Record{
			Timestamp: time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC),
			Level:     record.LevelWarning,
			Logger:    "app",
			Message:   m,
			Rendered:  "WARNING - app - " + m,
		})
	}
	return b
}

func TestWebhookDeliverAck(t *testing.T) {
	var gotBody []byte
	var gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotBody, _ = io.ReadAll(r.Body)
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	s := NewWebhookSink(srv.URL, WithBearerToken("sekrit"))
	if err := s.Deliver(context.Background(), testBatch("m0", "m1")); err != nil {
		t.Fatalf("Deliver returned %v, want ack", err)
	}

	if gotAuth != "Bearer sekrit" {
		t.Errorf("Authorization = %q, want bearer token", gotAuth)
	}

	var payload webhookPayload
	if err := json.Unmarshal(gotBody, &payload); err != nil {
		t.Fatalf("unmarshaling payload: %v", err)
	}
	if payload.BatchID != "batch-1" {
		t.Errorf("batch_id = %q, want batch-1", payload.BatchID)
	}
	if len(payload.Records) != 2 {
		t.Fatalf("payload has %d records, want 2", len(payload.Records))
	}
	if payload.Records[0].Message != "WARNING - app - m0" {
		t.Errorf("record message = %q, want rendered text", payload.Records[0].Message)
	}
	if payload.Records[0].Level != "WARNING" {
		t.Errorf("record level = %q, want WARNING", payload.Records[0].Level)
	}
}

func TestWebhookStatusClassification(t *testing.T) {
	tests := []struct {
		name   string
		status int
		want   Class
	}{
		{name: "server error is transient", status: 500, want: ClassTransient},
		{name: "bad gateway is transient", status: 502, want: ClassTransient},
		{name: "request timeout is transient", status: 408, want: ClassTransient},
		{name: "bad request is permanent", status: 400, want: ClassPermanent},
		{name: "unauthorized is permanent", status: 401, want: ClassPermanent},
		{name: "too many requests is rate limited", status: 429, want: ClassRateLimited},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(tt.status)
			}))
			defer srv.Close()

			err := NewWebhookSink(srv.URL).Deliver(context.Background(), testBatch("m"))
			if err == nil {
				t.Fatal("Deliver should fail")
			}
			if got := ClassOf(err); got != tt.want {
				t.Errorf("class = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestWebhookRetryAfterHint(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Retry-After", "3")
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	err := NewWebhookSink(srv.URL).Deliver(context.Background(), testBatch("m"))
	if got := RetryAfterHint(err); got != 3*time.Second {
		t.Errorf("retry-after hint = %v, want 3s", got)
	}
}

func TestWebhookNetworkFailureIsTransient(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	srv.Close() // connection refused from here on

	err := NewWebhookSink(srv.URL).Deliver(context.Background(), testBatch("m"))
	if err == nil {
		t.Fatal("Deliver to closed server should fail")
	}
	if got := ClassOf(err); got != ClassTransient {
		t.Errorf("class = %v, want transient", got)
	}
}

func TestWebhookTimeoutIsTransient(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		<-release
	}))
	defer func() {
		close(release)
		srv.Close()
	}()

	s := NewWebhookSink(srv.URL, WithWebhookTimeout(50*time.Millisecond))
	err := s.Deliver(context.Background(), testBatch("m"))
	if err == nil {
		t.Fatal("Deliver should time out")
	}
	if got := ClassOf(err); got != ClassTransient {
		t.Errorf("class = %v, want transient", got)
	}
}
