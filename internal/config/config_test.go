package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/luckyPipewrench/logship/record"
	"github.com/luckyPipewrench/logship/sink"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "logship.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadFullConfig(t *testing.T) {
	path := writeConfig(t, `
min_level: warning
timestamps: true
queue:
  max_size: 500
batch:
  max_size: 8
  max_age_ms: 1000
retry:
  max_retries: 3
  base_backoff_ms: 200
  max_backoff_ms: 5000
rate_limit:
  capacity: 4
  refill_per_sec: 2
circuit:
  failure_threshold: 3
  cooldown_ms: 10000
sink:
  type: webhook
  url: https://hooks.example.com/logs
  token: sekrit
  timeout_ms: 2000
metrics:
  listen: 127.0.0.1:9090
enqueue_timeout_ms: 50
shutdown_grace_ms: 2000
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.MinLevel != "warning" {
		t.Errorf("min_level = %q, want warning", cfg.MinLevel)
	}
	if cfg.Sink.Type != SinkWebhook || cfg.Sink.URL != "https://hooks.example.com/logs" {
		t.Errorf("sink = %+v, want webhook config", cfg.Sink)
	}
	if cfg.Metrics.Listen != "127.0.0.1:9090" {
		t.Errorf("metrics listen = %q", cfg.Metrics.Listen)
	}

	hcfg := cfg.HandlerConfig()
	if hcfg.MinLevel != record.LevelWarning {
		t.Errorf("handler min level = %v, want warning", hcfg.MinLevel)
	}
	if hcfg.MaxQueueSize != 500 || hcfg.MaxBatchSize != 8 {
		t.Errorf("queue/batch = %d/%d, want 500/8", hcfg.MaxQueueSize, hcfg.MaxBatchSize)
	}
	if hcfg.MaxBatchAge != time.Second {
		t.Errorf("batch age = %v, want 1s", hcfg.MaxBatchAge)
	}
	if hcfg.BaseBackoff != 200*time.Millisecond || hcfg.MaxBackoff != 5*time.Second {
		t.Errorf("backoff = %v/%v", hcfg.BaseBackoff, hcfg.MaxBackoff)
	}
	if hcfg.RateLimitCapacity != 4 || hcfg.RateLimitRefill != 2 {
		t.Errorf("rate limit = %d cap / %v refill", hcfg.RateLimitCapacity, hcfg.RateLimitRefill)
	}
	if hcfg.CircuitFailureThreshold != 3 || hcfg.CircuitCooldown != 10*time.Second {
		t.Errorf("circuit = %d/%v", hcfg.CircuitFailureThreshold, hcfg.CircuitCooldown)
	}
	if hcfg.EnqueueTimeout != 50*time.Millisecond || hcfg.ShutdownGrace != 2*time.Second {
		t.Errorf("timeouts = %v/%v", hcfg.EnqueueTimeout, hcfg.ShutdownGrace)
	}
}

func TestLoadAppliesDefaults(t *testing.T) {
	path := writeConfig(t, "{}\n")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.MinLevel != "info" {
		t.Errorf("min_level default = %q, want info", cfg.MinLevel)
	}
	if cfg.Sink.Type != SinkStdout {
		t.Errorf("sink type default = %q, want stdout", cfg.Sink.Type)
	}
	if cfg.Sink.TimeoutMS != 5000 {
		t.Errorf("sink timeout default = %d, want 5000", cfg.Sink.TimeoutMS)
	}
	if cfg.Sink.Subject != "logship.batches" {
		t.Errorf("subject default = %q", cfg.Sink.Subject)
	}
}

func TestValidateRejections(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{name: "unknown sink type", yaml: "sink:\n  type: carrier-pigeon\n"},
		{name: "exec without command", yaml: "sink:\n  type: exec\n"},
		{name: "webhook without url", yaml: "sink:\n  type: webhook\n"},
		{name: "nats without url", yaml: "sink:\n  type: nats\n"},
		{name: "negative queue", yaml: "queue:\n  max_size: -1\n"},
		{name: "batch exceeds queue", yaml: "queue:\n  max_size: 4\nbatch:\n  max_size: 8\n"},
		{name: "negative backoff", yaml: "retry:\n  base_backoff_ms: -5\n"},
		{name: "negative refill", yaml: "rate_limit:\n  refill_per_sec: -1\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Load(writeConfig(t, tt.yaml)); err == nil {
				t.Error("invalid config accepted")
			}
		})
	}
}

func TestLoadRejectsBadYAML(t *testing.T) {
	if _, err := Load(writeConfig(t, "sink: [unclosed\n")); err == nil {
		t.Error("malformed yaml accepted")
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Error("missing file accepted")
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv(EnvWebhookToken, "env-token")
	t.Setenv(EnvNATSURL, "nats://override:4222")

	path := writeConfig(t, `
sink:
  type: webhook
  url: https://hooks.example.com/logs
  token: file-token
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Sink.Token != "env-token" {
		t.Errorf("token = %q, want env override", cfg.Sink.Token)
	}
	if cfg.Sink.NATSURL != "nats://override:4222" {
		t.Errorf("nats url = %q, want env override", cfg.Sink.NATSURL)
	}
}

func TestBuildSinkTypes(t *testing.T) {
	tests := []struct {
		name string
		cfg  SinkConfig
		want any
	}{
		{name: "exec", cfg: SinkConfig{Type: SinkExec, Command: "notify", TimeoutMS: 1000}, want: &sink.ExecSink{}},
		{name: "webhook", cfg: SinkConfig{Type: SinkWebhook, URL: "https://x", TimeoutMS: 1000}, want: &sink.WebhookSink{}},
		{name: "stdout", cfg: SinkConfig{Type: SinkStdout, TimeoutMS: 1000}, want: &sink.WriterSink{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := &Config{Sink: tt.cfg}
			c.ApplyDefaults()
			got, err := c.BuildSink()
			if err != nil {
				t.Fatalf("BuildSink: %v", err)
			}
			defer got.Close()
			if wantType, gotType := typeName(tt.want), typeName(got); wantType != gotType {
				t.Errorf("sink type = %s, want %s", gotType, wantType)
			}
		})
	}
}

func typeName(v any) string {
	switch v.(type) {
	case *sink.ExecSink:
		return "exec"
	case *sink.WebhookSink:
		return "webhook"
	case *sink.WriterSink:
		return "writer"
	default:
		return "unknown"
	}
}
