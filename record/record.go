// Package record defines the log record and level types shared by the
// shipping pipeline.
package record

import (
	"fmt"
	"strings"
	"time"
)

// Level is an ordered log severity. Higher values are more severe.
type Level int

// Severity levels in ascending order.
const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarning
	LevelError
	LevelCritical
)

// String returns the uppercase name of the level.
func (l Level) String() string {
	switch l {
	case LevelDebug:
		return "DEBUG"
	case LevelWarning:
		return "WARNING"
	case LevelError:
		return "ERROR"
	case LevelCritical:
		return "CRITICAL"
	default:
		return "INFO"
	}
}

// ParseLevel converts a string to a Level. The comparison is
// case-insensitive. Unrecognized values map to LevelInfo.
func ParseLevel(s string) Level {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "DEBUG":
		return LevelDebug
	case "WARNING", "WARN":
		return LevelWarning
	case "ERROR":
		return LevelError
	case "CRITICAL", "FATAL":
		return LevelCritical
	default:
		return LevelInfo
	}
}

// Record is a single log entry flowing through the pipeline.
// Records are immutable once created; the queue owns a record until it
// is handed to a batch.
type Record struct {
	Timestamp time.Time
	Level     Level
	Logger    string // emitting logger name
	Message   string // rendered message text
	Tags      []string
	Context   string // optional thread or goroutine label

	// Rendered is the formatter output set by the handler before the
	// record enters the queue. Text sinks ship this verbatim.
	Rendered string
}

// New creates a record stamped with the current time.
func New(level Level, logger, message string) Record {
	return Record{
		Timestamp: time.Now(),
		Level:     level,
		Logger:    logger,
		Message:   message,
	}
}

// WithTags returns a copy of the record with the given tags appended.
func (r Record) WithTags(tags ...string) Record {
	r.Tags = append(append([]string(nil), r.Tags...), tags...)
	return r
}

// Formatter renders a record to the text handed to the sink.
// Implementations must be deterministic.
type Formatter func(Record) string

// DefaultFormatter renders "LEVEL - logger - message".
func DefaultFormatter(r Record) string {
	return fmt.Sprintf("%s - %s - %s", r.Level, r.Logger, r.Message)
}

// TimestampedFormatter renders the record with an RFC 3339 timestamp
// prefix, matching the console format most applications already use.
func TimestampedFormatter(r Record) string {
	return fmt.Sprintf("%s - %s - %s - %s",
		r.Timestamp.UTC().Format(time.RFC3339), r.Level, r.Logger, r.Message)
}
