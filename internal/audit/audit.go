// Package audit records failures of task operations. Sinks are
// fire-and-forget: LogError never blocks the caller for long and never
// reports its own failures back.
package audit

import (
	"context"
	"log/slog"
	"time"
)

// Severity grades an audit entry.
type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityWarning  Severity = "warning"
	SeverityError    Severity = "error"
	SeverityCritical Severity = "critical"
)

// Entry is one audited failure.
type Entry struct {
	Message       string
	ComponentPath string
	Severity      Severity
	TenantID      string
	Err           error
	Time          time.Time
}

// Sink receives audit entries.
type Sink interface {
	LogError(ctx context.Context, e Entry)
}

// record is the wire form of an Entry.
type record struct {
	Message       string    `json:"message"`
	ComponentPath string    `json:"component_path"`
	Severity      Severity  `json:"severity"`
	TenantID      string    `json:"tenant_id,omitempty"`
	Error         string    `json:"error,omitempty"`
	Time          time.Time `json:"time"`
}

func toRecord(e Entry) record {
	r := record{
		Message:       e.Message,
		ComponentPath: e.ComponentPath,
		Severity:      e.Severity,
		TenantID:      e.TenantID,
		Time:          e.Time,
	}
	if r.Severity == "" {
		r.Severity = SeverityError
	}
	if r.Time.IsZero() {
		r.Time = time.Now().UTC()
	}
	if e.Err != nil {
		r.Error = e.Err.Error()
	}
	return r
}

// SlogSink writes entries as structured log lines.
type SlogSink struct {
	logger *slog.Logger
}

func NewSlogSink(logger *slog.Logger) *SlogSink {
	return &SlogSink{logger: logger}
}

func (s *SlogSink) LogError(ctx context.Context, e Entry) {
	r := toRecord(e)
	attrs := []slog.Attr{
		slog.String("component", r.ComponentPath),
		slog.String("severity", string(r.Severity)),
	}
	if r.TenantID != "" {
		attrs = append(attrs, slog.String("tenant_id", r.TenantID))
	}
	if r.Error != "" {
		attrs = append(attrs, slog.String("error", r.Error))
	}
	level := slog.LevelError
	switch r.Severity {
	case SeverityInfo:
		level = slog.LevelInfo
	case SeverityWarning:
		level = slog.LevelWarn
	}
	s.logger.LogAttrs(ctx, level, r.Message, attrs...)
}

// Multi fans an entry out to every sink.
type Multi []Sink

func (m Multi) LogError(ctx context.Context, e Entry) {
	for _, s := range m {
		s.LogError(ctx, e)
	}
}

// Nop discards entries.
type Nop struct{}

func (Nop) LogError(context.Context, Entry) {}
