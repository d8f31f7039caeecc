// Package config handles loading, validating, and defaulting the
// logship agent configuration.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/luckyPipewrench/logship"
	"github.com/luckyPipewrench/logship/record"
	"github.com/luckyPipewrench/logship/sink"
)

// Sink type constants.
const (
	SinkExec    = "exec"
	SinkWebhook = "webhook"
	SinkNATS    = "nats"
	SinkStdout  = "stdout"
)

// Environment overrides, applied after the file is parsed so secrets
// stay out of config files.
const (
	EnvWebhookToken = "LOGSHIP_WEBHOOK_TOKEN"
	EnvNATSURL      = "LOGSHIP_NATS_URL"
)

// Config is the top-level agent configuration.
type Config struct {
	MinLevel         string      `yaml:"min_level"`
	Timestamps       bool        `yaml:"timestamps"` // prefix shipped lines with RFC 3339 timestamps
	Queue            QueueConfig `yaml:"queue"`
	Batch            BatchConfig `yaml:"batch"`
	Retry            RetryConfig `yaml:"retry"`
	RateLimit        RateConfig  `yaml:"rate_limit"`
	Circuit          Circuit     `yaml:"circuit"`
	Sink             SinkConfig  `yaml:"sink"`
	Metrics          Metrics     `yaml:"metrics"`
	EnqueueTimeoutMS int         `yaml:"enqueue_timeout_ms"`
	ShutdownGraceMS  int         `yaml:"shutdown_grace_ms"`
}

// QueueConfig bounds the in-memory record queue.
type QueueConfig struct {
	MaxSize int `yaml:"max_size"`
}

// BatchConfig controls batch sealing.
type BatchConfig struct {
	MaxSize  int `yaml:"max_size"`
	MaxAgeMS int `yaml:"max_age_ms"`
}

// RetryConfig shapes the delivery retry loop.
type RetryConfig struct {
	MaxRetries    int `yaml:"max_retries"`
	BaseBackoffMS int `yaml:"base_backoff_ms"`
	MaxBackoffMS  int `yaml:"max_backoff_ms"`
}

// RateConfig configures the outbound token bucket.
type RateConfig struct {
	Capacity     int     `yaml:"capacity"`
	RefillPerSec float64 `yaml:"refill_per_sec"`
}

// Circuit configures the sink circuit breaker.
type Circuit struct {
	FailureThreshold int `yaml:"failure_threshold"`
	CooldownMS       int `yaml:"cooldown_ms"`
}

// SinkConfig selects and configures the delivery transport.
type SinkConfig struct {
	Type      string   `yaml:"type"`       // exec, webhook, nats, stdout
	Command   string   `yaml:"command"`    // exec: binary to run per batch
	Args      []string `yaml:"args"`       // exec: extra arguments
	URL       string   `yaml:"url"`        // webhook: endpoint
	Token     string   `yaml:"token"`      // webhook: bearer token
	NATSURL   string   `yaml:"nats_url"`   // nats: server URL
	Subject   string   `yaml:"subject"`    // nats: publish subject
	TimeoutMS int      `yaml:"timeout_ms"` // per-delivery bound
}

// Metrics configures the optional observability listener.
type Metrics struct {
	Listen string `yaml:"listen"` // e.g. 127.0.0.1:9090; empty disables
}

// Load reads, defaults, and validates a config file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path) //nolint:gosec // G304: path from caller
	if err != nil {
		return nil, fmt.Errorf("reading config %s: %w", path, err)
	}

	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}

	cfg.ApplyDefaults()
	cfg.applyEnvOverrides()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

// Defaults returns a ready-to-use config shipping to stdout.
func Defaults() *Config {
	cfg := &Config{}
	cfg.ApplyDefaults()
	return cfg
}

// ApplyDefaults fills in zero-value fields with sensible defaults.
func (c *Config) ApplyDefaults() {
	if c.MinLevel == "" {
		c.MinLevel = "info"
	}
	if c.Sink.Type == "" {
		c.Sink.Type = SinkStdout
	}
	if c.Sink.TimeoutMS <= 0 {
		c.Sink.TimeoutMS = int(sink.DefaultDeliverTimeout / time.Millisecond)
	}
	if c.Sink.Subject == "" {
		c.Sink.Subject = "logship.batches"
	}
}

func (c *Config) applyEnvOverrides() {
	if tok := os.Getenv(EnvWebhookToken); tok != "" {
		c.Sink.Token = tok
	}
	if url := os.Getenv(EnvNATSURL); url != "" {
		c.Sink.NATSURL = url
	}
}

// Validate checks the configuration for problems the library would
// otherwise only surface at runtime.
func (c *Config) Validate() error {
	switch c.Sink.Type {
	case SinkExec:
		if c.Sink.Command == "" {
			return fmt.Errorf("sink.command is required for the exec sink")
		}
	case SinkWebhook:
		if c.Sink.URL == "" {
			return fmt.Errorf("sink.url is required for the webhook sink")
		}
	case SinkNATS:
		if c.Sink.NATSURL == "" {
			return fmt.Errorf("sink.nats_url is required for the nats sink")
		}
	case SinkStdout:
		// valid, no extra fields
	default:
		return fmt.Errorf("invalid sink type %q: must be exec, webhook, nats, or stdout", c.Sink.Type)
	}

	if c.Queue.MaxSize < 0 {
		return fmt.Errorf("queue.max_size must not be negative")
	}
	if c.Batch.MaxSize < 0 || c.Batch.MaxAgeMS < 0 {
		return fmt.Errorf("batch bounds must not be negative")
	}
	if c.Queue.MaxSize > 0 && c.Batch.MaxSize > c.Queue.MaxSize {
		return fmt.Errorf("batch.max_size %d exceeds queue.max_size %d",
			c.Batch.MaxSize, c.Queue.MaxSize)
	}
	if c.RateLimit.RefillPerSec < 0 {
		return fmt.Errorf("rate_limit.refill_per_sec must not be negative")
	}
	if c.Retry.BaseBackoffMS < 0 || c.Retry.MaxBackoffMS < 0 ||
		c.Circuit.CooldownMS < 0 || c.EnqueueTimeoutMS < 0 || c.ShutdownGraceMS < 0 {
		return fmt.Errorf("durations must not be negative")
	}

	return nil
}

// BuildSink constructs the configured sink.
func (c *Config) BuildSink() (sink.Sink, error) {
	timeout := time.Duration(c.Sink.TimeoutMS) * time.Millisecond

	switch c.Sink.Type {
	case SinkExec:
		return sink.NewExecSink(c.Sink.Command,
			sink.WithExecArgs(c.Sink.Args...),
			sink.WithExecTimeout(timeout)), nil
	case SinkWebhook:
		opts := []sink.WebhookOption{sink.WithWebhookTimeout(timeout)}
		if c.Sink.Token != "" {
			opts = append(opts, sink.WithBearerToken(c.Sink.Token))
		}
		return sink.NewWebhookSink(c.Sink.URL, opts...), nil
	case SinkNATS:
		return sink.NewNATSSink(c.Sink.NATSURL, c.Sink.Subject,
			sink.WithNATSTimeout(timeout))
	case SinkStdout:
		return sink.NewWriterSink(os.Stdout), nil
	default:
		return nil, fmt.Errorf("invalid sink type %q", c.Sink.Type)
	}
}

// HandlerConfig converts the file config into the library config,
// leaving the sink, logger, and metrics for the caller to inject.
func (c *Config) HandlerConfig() logship.Config {
	formatter := record.DefaultFormatter
	if c.Timestamps {
		formatter = record.TimestampedFormatter
	}
	return logship.Config{
		MinLevel:                record.ParseLevel(c.MinLevel),
		Formatter:               formatter,
		MaxQueueSize:            c.Queue.MaxSize,
		MaxBatchSize:            c.Batch.MaxSize,
		MaxBatchAge:             time.Duration(c.Batch.MaxAgeMS) * time.Millisecond,
		MaxRetries:              c.Retry.MaxRetries,
		BaseBackoff:             time.Duration(c.Retry.BaseBackoffMS) * time.Millisecond,
		MaxBackoff:              time.Duration(c.Retry.MaxBackoffMS) * time.Millisecond,
		RateLimitCapacity:       c.RateLimit.Capacity,
		RateLimitRefill:         c.RateLimit.RefillPerSec,
		CircuitFailureThreshold: c.Circuit.FailureThreshold,
		CircuitCooldown:         time.Duration(c.Circuit.CooldownMS) * time.Millisecond,
		EnqueueTimeout:          time.Duration(c.EnqueueTimeoutMS) * time.Millisecond,
		ShutdownGrace:           time.Duration(c.ShutdownGraceMS) * time.Millisecond,
	}
}
