// Package logging provides the structured logger used by every fleet service.
package logging

import (
	"context"
	"io"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// LoggingConfig selects level, encoding and destination.
type LoggingConfig struct {
	Level  string // debug, info, warn, error
	Format string // json or text
	Output string // stdout or stderr
}

// Logger wraps logrus with the service name attached to every entry.
type Logger struct {
	*logrus.Logger
	service string
}

// New builds a logger for the named service.
func New(service string, cfg LoggingConfig) *Logger {
	base := logrus.New()

	level, err := logrus.ParseLevel(strings.TrimSpace(cfg.Level))
	if err != nil {
		level = logrus.InfoLevel
	}
	base.SetLevel(level)

	switch strings.ToLower(cfg.Format) {
	case "text":
		base.SetFormatter(&logrus.TextFormatter{FullTimestamp: true, TimestampFormat: time.RFC3339})
	default:
		base.SetFormatter(&logrus.JSONFormatter{TimestampFormat: time.RFC3339Nano})
	}

	base.SetOutput(outputFor(cfg.Output))

	return &Logger{Logger: base, service: service}
}

// NewDefault returns an info-level JSON logger writing to stdout.
func NewDefault(service string) *Logger {
	return New(service, LoggingConfig{Level: "info", Format: "json", Output: "stdout"})
}

// Service returns the name attached to entries.
func (l *Logger) Service() string {
	return l.service
}

// Entry returns an entry carrying the service name.
func (l *Logger) Entry() *logrus.Entry {
	return l.Logger.WithField("service", l.service)
}

// ForContext returns an entry carrying the service name and the trace ID
// stored in ctx, if any.
func (l *Logger) ForContext(ctx context.Context) *logrus.Entry {
	entry := l.Entry()
	if traceID := TraceID(ctx); traceID != "" {
		entry = entry.WithField("trace_id", traceID)
	}
	return entry
}

// LogRequest records a completed HTTP request.
func (l *Logger) LogRequest(ctx context.Context, method, path string, status int, duration time.Duration) {
	entry := l.ForContext(ctx).WithFields(logrus.Fields{
		"method":      method,
		"path":        path,
		"status":      status,
		"duration_ms": duration.Milliseconds(),
	})
	switch {
	case status >= 500:
		entry.Error("request failed")
	case status >= 400:
		entry.Warn("request rejected")
	default:
		entry.Info("request completed")
	}
}

// LogSecurityEvent records a rejected or suspicious request.
func (l *Logger) LogSecurityEvent(ctx context.Context, event string, fields map[string]interface{}) {
	l.ForContext(ctx).WithField("event", event).WithFields(logrus.Fields(fields)).Warn("security event")
}

func outputFor(name string) io.Writer {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "stderr":
		return os.Stderr
	default:
		return os.Stdout
	}
}

type traceIDKey struct{}

// NewTraceID generates a request trace identifier.
func NewTraceID() string {
	return uuid.NewString()
}

// WithTraceID stores a trace ID in ctx.
func WithTraceID(ctx context.Context, traceID string) context.Context {
	return context.WithValue(ctx, traceIDKey{}, traceID)
}

// TraceID returns the trace ID stored in ctx, or "".
func TraceID(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if v, ok := ctx.Value(traceIDKey{}).(string); ok {
		return v
	}
	return ""
}
