// Package logger provides the structured logging port used across the User Key Store service.
// Implementations live in internal/infrastructure/monitoring; this package only holds the
// interface, field helpers and a no-op logger for tests.
package logger

import (
	"context"
	"strings"

	"github.com/turtacn/keystore/pkg/constants"
)

// ================================================================================
// Logger Interface
// ================================================================================

// Fields is a set of key-value pairs attached to a log entry
type Fields map[string]interface{}

// Logger defines the interface for structured logging
type Logger interface {
	// Debug logs a debug message
	Debug(ctx context.Context, msg string, fields ...Fields)

	// Info logs an informational message
	Info(ctx context.Context, msg string, fields ...Fields)

	// Warn logs a warning message
	Warn(ctx context.Context, msg string, fields ...Fields)

	// Error logs an error message
	Error(ctx context.Context, msg string, err error, fields ...Fields)

	// Fatal logs a fatal message and exits the application
	Fatal(ctx context.Context, msg string, err error, fields ...Fields)

	// WithFields creates a new logger with additional fields
	WithFields(fields Fields) Logger

	// WithComponent creates a new logger tagged with a component name
	WithComponent(component string) Logger

	// ForContext returns the request scoped logger stored in ctx, if any
	ForContext(ctx context.Context) Logger
}

// ================================================================================
// Context helpers
// ================================================================================

// NewContext stores l in ctx for ForContext lookups
func NewContext(ctx context.Context, l Logger) context.Context {
	return context.WithValue(ctx, constants.ContextKeyLogger, l)
}

// FromContext returns the logger stored in ctx or fallback
func FromContext(ctx context.Context, fallback Logger) Logger {
	if ctx != nil {
		if l, ok := ctx.Value(constants.ContextKeyLogger).(Logger); ok {
			return l
		}
	}
	return fallback
}

// ================================================================================
// Redaction
// ================================================================================

var sensitiveKeys = []string{
	"password",
	"secret",
	"token",
	"authorization",
	"private_key",
	"privatekey",
	"sealed",
}

// Sanitize masks values whose key names sensitive material. Key material
// never reaches a log sink through a field.
func Sanitize(key string, value interface{}) interface{} {
	keyLower := strings.ToLower(key)
	for _, s := range sensitiveKeys {
		if strings.Contains(keyLower, s) {
			return "***REDACTED***"
		}
	}
	return value
}

// Merge flattens fields into one map, later entries winning
func Merge(fields ...Fields) Fields {
	out := make(Fields)
	for _, f := range fields {
		for k, v := range f {
			out[k] = v
		}
	}
	return out
}

//Personal.AI order the ending
