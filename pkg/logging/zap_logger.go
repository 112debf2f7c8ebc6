package logging

import (
	"context"
	"fmt"
	"os"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// zapLogger implements Logger on top of zap
type zapLogger struct {
	internal *zap.Logger
}

// NewLogger builds a Logger from cfg. Empty values fall back to info level,
// console format and stdout.
func NewLogger(cfg LogConfig) (Logger, error) {
	level, err := parseLevel(cfg.Level)
	if err != nil {
		return nil, err
	}

	encoderConfig := zapcore.EncoderConfig{
		TimeKey:        "timestamp",
		LevelKey:       "level",
		NameKey:        "logger",
		CallerKey:      "caller",
		MessageKey:     "msg",
		StacktraceKey:  "stacktrace",
		LineEnding:     zapcore.DefaultLineEnding,
		EncodeLevel:    zapcore.CapitalLevelEncoder,
		EncodeTime:     zapcore.ISO8601TimeEncoder,
		EncodeDuration: zapcore.StringDurationEncoder,
		EncodeCaller:   zapcore.ShortCallerEncoder,
	}

	var encoder zapcore.Encoder
	switch strings.ToLower(cfg.Format) {
	case "", "console", "text":
		encoder = zapcore.NewConsoleEncoder(encoderConfig)
	case "json":
		encoder = zapcore.NewJSONEncoder(encoderConfig)
	default:
		return nil, fmt.Errorf("unsupported log format: %s", cfg.Format)
	}

	var sink zapcore.WriteSyncer
	switch strings.ToLower(cfg.Output) {
	case "", "stdout":
		sink = zapcore.Lock(os.Stdout)
	case "stderr":
		sink = zapcore.Lock(os.Stderr)
	case "file":
		if cfg.FilePath == "" {
			return nil, fmt.Errorf("log output is file but no file_path is set")
		}
		file, err := os.OpenFile(cfg.FilePath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			return nil, fmt.Errorf("failed to open log file: %w", err)
		}
		sink = zapcore.Lock(file)
	default:
		return nil, fmt.Errorf("unsupported log output: %s", cfg.Output)
	}

	core := zapcore.NewCore(encoder, sink, level)
	return NewZapLogger(zap.New(core, zap.AddCaller(), zap.AddCallerSkip(1))), nil
}

// NewZapLogger wraps an existing zap logger
func NewZapLogger(l *zap.Logger) Logger {
	return &zapLogger{internal: l}
}

// NewNopLogger returns a Logger that discards everything
func NewNopLogger() Logger {
	return &zapLogger{internal: zap.NewNop()}
}

func (l *zapLogger) Debug(msg string, fields ...Field) {
	l.internal.Debug(msg, convertFields(fields)...)
}

func (l *zapLogger) Info(msg string, fields ...Field) {
	l.internal.Info(msg, convertFields(fields)...)
}

func (l *zapLogger) Warn(msg string, fields ...Field) {
	l.internal.Warn(msg, convertFields(fields)...)
}

func (l *zapLogger) Error(msg string, fields ...Field) {
	l.internal.Error(msg, convertFields(fields)...)
}

func (l *zapLogger) WithFields(fields ...Field) Logger {
	return &zapLogger{internal: l.internal.With(convertFields(fields)...)}
}

func (l *zapLogger) WithContext(ctx context.Context) Logger {
	if id, ok := RequestIDFromContext(ctx); ok {
		return l.WithFields(F("request_id", id))
	}
	return l
}

func (l *zapLogger) LogFlowExecution(flowID string, executionID string, event string, data map[string]interface{}) {
	fields := []Field{F("flow_id", flowID), F("execution_id", executionID), F("event", event)}
	l.Info("flow execution", append(fields, mapFields(data)...)...)
}

func (l *zapLogger) LogStepExecution(flowID string, executionID string, step string, event string, data map[string]interface{}) {
	fields := []Field{F("flow_id", flowID), F("execution_id", executionID), F("step", step), F("event", event)}
	l.Debug("step execution", append(fields, mapFields(data)...)...)
}

func (l *zapLogger) Sync() error {
	return l.internal.Sync()
}

func parseLevel(level string) (zapcore.Level, error) {
	if level == "" {
		return zapcore.InfoLevel, nil
	}
	var lvl zapcore.Level
	if err := lvl.UnmarshalText([]byte(strings.ToLower(level))); err != nil {
		return zapcore.InfoLevel, fmt.Errorf("invalid log level %q: %w", level, err)
	}
	return lvl, nil
}

// convertFields converts Fields to zap fields
func convertFields(fields []Field) []zap.Field {
	out := make([]zap.Field, len(fields))
	for i, field := range fields {
		if err, ok := field.Value.(error); ok {
			out[i] = zap.NamedError(field.Key, err)
			continue
		}
		out[i] = zap.Any(field.Key, field.Value)
	}
	return out
}

func mapFields(data map[string]interface{}) []Field {
	fields := make([]Field, 0, len(data))
	for k, v := range data {
		fields = append(fields, F(k, v))
	}
	return fields
}
