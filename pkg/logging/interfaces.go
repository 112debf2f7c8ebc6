// Package logging provides structured logging functionality.
package logging

import (
	"context"
	"time"
)

// Logger provides structured logging
type Logger interface {
	// Debug logs a debug message
	Debug(msg string, fields ...Field)

	// Info logs an info message
	Info(msg string, fields ...Field)

	// Warn logs a warning message
	Warn(msg string, fields ...Field)

	// Error logs an error message
	Error(msg string, fields ...Field)

	// WithFields returns a new logger with the given fields
	WithFields(fields ...Field) Logger

	// WithContext returns a new logger carrying the request ID stored in ctx, if any
	WithContext(ctx context.Context) Logger

	// LogFlowExecution records flow execution events
	LogFlowExecution(flowID string, executionID string, event string, data map[string]interface{})

	// LogStepExecution records step execution events
	LogStepExecution(flowID string, executionID string, step string, event string, data map[string]interface{})

	// Sync flushes buffered entries
	Sync() error
}

// Field represents a key-value pair in a log entry
type Field struct {
	// Key is the field name
	Key string

	// Value is the field value
	Value interface{}
}

// F is shorthand for building a Field
func F(key string, value interface{}) Field {
	return Field{Key: key, Value: value}
}

// Err builds the conventional "error" field
func Err(err error) Field {
	return Field{Key: "error", Value: err}
}

// Duration builds a field holding an elapsed time
func Duration(key string, d time.Duration) Field {
	return Field{Key: key, Value: d}
}

// LogConfig contains configuration for the logger
type LogConfig struct {
	// Level is the minimum log level to output: debug, info, warn or error
	Level string `json:"level" yaml:"level"`

	// Format is "console" or "json"
	Format string `json:"format" yaml:"format"`

	// Output is "stdout", "stderr" or "file"
	Output string `json:"output" yaml:"output"`

	// FilePath is the path to the log file (if Output is "file")
	FilePath string `json:"file_path,omitempty" yaml:"file_path,omitempty"`
}

type contextKey string

// RequestIDKey is the context key under which the HTTP layer stores the request ID
const RequestIDKey contextKey = "request_id"

// ContextWithRequestID returns a copy of ctx carrying id
func ContextWithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, RequestIDKey, id)
}

// RequestIDFromContext returns the request ID stored in ctx
func RequestIDFromContext(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(RequestIDKey).(string)
	return id, ok
}
