package sink

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/luckyPipewrench/logship/batch"
	"github.com/luckyPipewrench/logship/record"
)

// ExecSink delivers a batch by running an external notifier command
// once per batch and writing the rendered records to its stdin, one
// per line. This replaces per-record subprocess spawning with one
// process per batch.
type ExecSink struct {
	command string
	args    []string
	timeout time.Duration
}

// ExecOption configures an ExecSink.
type ExecOption func(*ExecSink)

// WithExecTimeout bounds a single command invocation.
func WithExecTimeout(d time.Duration) ExecOption {
	return func(s *ExecSink) {
		if d > 0 {
			s.timeout = d
		}
	}
}

// WithExecArgs sets extra arguments passed to every invocation.
func WithExecArgs(args ...string) ExecOption {
	return func(s *ExecSink) {
		s.args = append([]string(nil), args...)
	}
}

// NewExecSink creates a sink that pipes batches to command's stdin.
func NewExecSink(command string, opts ...ExecOption) *ExecSink {
	s := &ExecSink{
		command: command,
		timeout: DefaultDeliverTimeout,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Deliver runs the command with the batch on stdin. Failures are
// classified: a missing binary is permanent, usage-style exit codes
// (sysexits 64-78, except 75 EX_TEMPFAIL) are permanent, everything
// else including timeouts is transient.
func (s *ExecSink) Deliver(ctx context.Context, b *batch.Batch) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	var in bytes.Buffer
	for _, r := range b.Records {
		in.WriteString(renderLine(r))
		in.WriteByte('\n')
	}

	cmd := exec.CommandContext(ctx, s.command, s.args...) //nolint:gosec // G204: command comes from operator config
	cmd.Stdin = &in

	out, err := cmd.CombinedOutput()
	if err == nil {
		return nil
	}

	if ctx.Err() != nil {
		return Transient(fmt.Errorf("%s timed out: %w", s.command, ctx.Err()))
	}
	if errors.Is(err, exec.ErrNotFound) {
		return Permanent(fmt.Errorf("%s not found: %w", s.command, err))
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		code := exitErr.ExitCode()
		detail := strings.TrimSpace(string(out))
		wrapped := fmt.Errorf("%s exited %d: %s", s.command, code, detail)
		if code >= 64 && code <= 78 && code != 75 {
			return Permanent(wrapped)
		}
		return Transient(wrapped)
	}

	return Transient(fmt.Errorf("running %s: %w", s.command, err))
}

// Close is a no-op; the sink spawns a fresh process per batch.
func (s *ExecSink) Close() error {
	return nil
}

func renderLine(r record.Record) string {
	if r.Rendered != "" {
		return r.Rendered
	}
	return record.DefaultFormatter(r)
}
