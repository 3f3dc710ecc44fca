// Package logging provides structured logging with request context propagation.
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

type contextKey string

const (
	// TraceIDKey carries the request trace id.
	TraceIDKey contextKey = "trace_id"
	// UserIDKey carries the authenticated user id.
	UserIDKey contextKey = "user_id"
	// RoleKey carries the authenticated user's marketplace role.
	RoleKey contextKey = "role"
)

// Logger wraps a logrus logger bound to a service name.
type Logger struct {
	*logrus.Logger
	service string
}

// New creates a logger for the named service. Unknown levels fall back to info;
// format is "json" or "text".
func New(service, level, format string) *Logger {
	base := logrus.New()
	base.SetOutput(os.Stdout)

	lvl, err := logrus.ParseLevel(strings.ToLower(strings.TrimSpace(level)))
	if err != nil {
		lvl = logrus.InfoLevel
	}
	base.SetLevel(lvl)

	if strings.EqualFold(format, "text") {
		base.SetFormatter(&logrus.TextFormatter{FullTimestamp: true, TimestampFormat: time.RFC3339})
	} else {
		base.SetFormatter(&logrus.JSONFormatter{TimestampFormat: time.RFC3339Nano})
	}

	return &Logger{Logger: base, service: service}
}

// Default returns an info-level JSON logger.
func Default(service string) *Logger {
	return New(service, "info", "json")
}

// NewDiscard returns a logger that drops all output. Used by tests.
func NewDiscard(service string) *Logger {
	l := New(service, "panic", "json")
	l.SetOutput(io.Discard)
	return l
}

// Service returns the service name the logger is bound to.
func (l *Logger) Service() string {
	return l.service
}

func (l *Logger) entry() *logrus.Entry {
	return l.Logger.WithField("service", l.service)
}

// WithContext returns an entry carrying trace, user and role ids found in ctx.
func (l *Logger) WithContext(ctx context.Context) *logrus.Entry {
	e := l.entry()
	if ctx == nil {
		return e
	}
	if traceID := GetTraceID(ctx); traceID != "" {
		e = e.WithField("trace_id", traceID)
	}
	if userID := GetUserID(ctx); userID != "" {
		e = e.WithField("user_id", userID)
	}
	if role := GetRole(ctx); role != "" {
		e = e.WithField("role", role)
	}
	return e
}

// WithError returns an entry with the error attached.
func (l *Logger) WithError(err error) *logrus.Entry {
	return l.entry().WithError(err)
}

// WithFields returns an entry with the given fields.
func (l *Logger) WithFields(fields map[string]interface{}) *logrus.Entry {
	return l.entry().WithFields(logrus.Fields(fields))
}

// LogRequest records one completed HTTP request.
func (l *Logger) LogRequest(ctx context.Context, method, path string, status int, duration time.Duration) {
	e := l.WithContext(ctx).WithFields(logrus.Fields{
		"method":      method,
		"path":        path,
		"status":      status,
		"duration_ms": duration.Milliseconds(),
	})
	switch {
	case status >= 500:
		e.Error("request failed")
	case status >= 400:
		e.Warn("request rejected")
	default:
		e.Info("request completed")
	}
}

// LogSecurityEvent records an auth or abuse related event at warn level.
func (l *Logger) LogSecurityEvent(ctx context.Context, event string, fields map[string]interface{}) {
	l.WithContext(ctx).WithFields(logrus.Fields(fields)).WithField("security_event", event).Warn("security event")
}

// NewTraceID returns a fresh trace id.
func NewTraceID() string {
	return uuid.NewString()
}

// WithTraceID stores a trace id in ctx.
func WithTraceID(ctx context.Context, traceID string) context.Context {
	if traceID == "" {
		return ctx
	}
	return context.WithValue(ctx, TraceIDKey, traceID)
}

// GetTraceID returns the trace id stored in ctx, if any.
func GetTraceID(ctx context.Context) string {
	return stringValue(ctx, TraceIDKey)
}

// WithUserID stores the authenticated user id in ctx.
func WithUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, UserIDKey, userID)
}

// GetUserID returns the user id stored in ctx, if any.
func GetUserID(ctx context.Context) string {
	return stringValue(ctx, UserIDKey)
}

// WithRole stores the user's role in ctx.
func WithRole(ctx context.Context, role string) context.Context {
	return context.WithValue(ctx, RoleKey, role)
}

// GetRole returns the role stored in ctx, if any.
func GetRole(ctx context.Context) string {
	return stringValue(ctx, RoleKey)
}

func stringValue(ctx context.Context, key contextKey) string {
	if ctx == nil {
		return ""
	}
	if v, ok := ctx.Value(key).(string); ok {
		return v
	}
	return ""
}
