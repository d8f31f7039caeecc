//go:build unix

package sink

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestExecDeliverAck(t *testing.T) {
	dir := t.TempDir()
	out := filepath.Join(dir, "out.txt")

	s := NewExecSink("sh", WithExecArgs("-c", "cat > "+out))
	if err := s.Deliver(context.Background(), testBatch("m0", "m1")); err != nil {
		t.Fatalf("Deliver returned %v, want ack", err)
	}

	data, err := os.ReadFile(out)
	if err != nil {
		t.Fatalf("reading captured stdin: %v", err)
	}
	want := "WARNING - app - m0\nWARNING - app - m1\n"
	if string(data) != want {
		t.Errorf("command stdin = %q, want %q", data, want)
	}
}

func TestExecExitCodeClassification(t *testing.T) {
	tests := []struct {
		name   string
		script string
		want   Class
	}{
		{name: "generic failure is transient", script: "exit 1", want: ClassTransient},
		{name: "usage error is permanent", script: "exit 64", want: ClassPermanent},
		{name: "bad config is permanent", script: "exit 78", want: ClassPermanent},
		{name: "tempfail is transient", script: "exit 75", want: ClassTransient},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := NewExecSink("sh", WithExecArgs("-c", tt.script))
			err := s.Deliver(context.Background(), testBatch("m"))
			if err == nil {
				t.Fatal("Deliver should fail")
			}
			if got := ClassOf(err); got != tt.want {
				t.Errorf("class = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestExecMissingCommandIsPermanent(t *testing.T) {
	s := NewExecSink("definitely-not-a-real-binary-su3k")
	err := s.Deliver(context.Background(), testBatch("m"))
	if err == nil {
		t.Fatal("Deliver should fail for a missing binary")
	}
	if got := ClassOf(err); got != ClassPermanent {
		t.Errorf("class = %v, want permanent", got)
	}
}

func TestExecTimeoutIsTransient(t *testing.T) {
	s := NewExecSink("sh",
		WithExecArgs("-c", "sleep 5"),
		WithExecTimeout(50*time.Millisecond))
	err := s.Deliver(context.Background(), testBatch("m"))
	if err == nil {
		t.Fatal("Deliver should time out")
	}
	if got := ClassOf(err); got != ClassTransient {
		t.Errorf("class = %v, want transient", got)
	}
}
