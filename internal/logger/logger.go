// Package logger provides structured logging with context propagation for the
// forecast dashboard. It implements context-aware logging using the standard
// library's slog package, with support for request tracing, component-specific
// loggers, and configurable output formats.
package logger

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/hepviz/go-forecast-dashboard/internal/config"
)

// ContextKey represents keys for context values
type ContextKey string

const (
	// TraceIDKey is the context key for trace ID
	TraceIDKey ContextKey = "trace_id"
	// ComponentKey is the context key for component name
	ComponentKey ContextKey = "component"
	// OperationKey is the context key for operation name
	OperationKey ContextKey = "operation"
	// RequestIDKey is the context key for request ID
	RequestIDKey ContextKey = "request_id"
	// SourceKey is the context key for the active data source identifier
	SourceKey ContextKey = "source"
	// ColumnKey is the context key for the column currently being processed
	ColumnKey ContextKey = "column"
)

// Manager manages structured logging for the application
type Manager struct {
	baseLogger     *slog.Logger
	config         config.LoggingConfig
	writer         io.WriteCloser
	componentCache map[string]*slog.Logger
}

// ComponentLogger represents a logger for a specific component
type ComponentLogger struct {
	*slog.Logger
	component string
}

// NewManager creates a new logger manager with the specified configuration
func NewManager(cfg config.LoggingConfig) (*Manager, error) {
	writer, err := createWriter(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create log writer: %w", err)
	}

	opts := &slog.HandlerOptions{
		Level:     parseLogLevel(cfg.Level),
		AddSource: cfg.Level == "debug",
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			switch a.Key {
			case slog.TimeKey:
				// Use ISO 8601 format for timestamps
				if t, ok := a.Value.Any().(time.Time); ok {
					a.Value = slog.StringValue(t.Format(time.RFC3339Nano))
				}
			case slog.LevelKey:
				// Use uppercase level names
				if level, ok := a.Value.Any().(slog.Level); ok {
					a.Value = slog.StringValue(strings.ToUpper(level.String()))
				}
			}
			return a
		},
	}

	var handler slog.Handler
	switch cfg.Format {
	case "json":
		handler = slog.NewJSONHandler(writer, opts)
	case "text":
		handler = slog.NewTextHandler(writer, opts)
	default:
		handler = slog.NewJSONHandler(writer, opts)
	}

	baseAttrs := make([]slog.Attr, 0, len(cfg.ContextFields))
	for key, value := range cfg.ContextFields {
		baseAttrs = append(baseAttrs, slog.String(key, value))
	}

	var baseLogger *slog.Logger
	if len(baseAttrs) > 0 {
		baseLogger = slog.New(handler.WithAttrs(baseAttrs))
	} else {
		baseLogger = slog.New(handler)
	}

	return &Manager{
		baseLogger:     baseLogger,
		config:         cfg,
		writer:         writer,
		componentCache: make(map[string]*slog.Logger),
	}, nil
}

// createWriter creates the appropriate writer based on configuration
func createWriter(cfg config.LoggingConfig) (io.WriteCloser, error) {
	switch cfg.Output {
	case "stdout":
		return nopWriteCloser{os.Stdout}, nil
	case "stderr":
		return nopWriteCloser{os.Stderr}, nil
	case "file":
		if cfg.FilePath == "" {
			return nil, fmt.Errorf("file path is required when output is 'file'")
		}

		dir := filepath.Dir(cfg.FilePath)
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create log directory: %w", err)
		}

		lj := &lumberjack.Logger{
			Filename:   cfg.FilePath,
			MaxSize:    cfg.MaxSize, // MB
			MaxBackups: cfg.MaxBackups,
			MaxAge:     cfg.MaxAge, // days
			Compress:   cfg.Compress,
		}
		return lj, nil
	default:
		return nopWriteCloser{os.Stdout}, nil
	}
}

// nopWriteCloser wraps an io.Writer to provide a Close method
type nopWriteCloser struct {
	io.Writer
}

func (nopWriteCloser) Close() error { return nil }

// parseLogLevel converts string log level to slog.Level
func parseLogLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// GetLogger returns the base logger instance
func (m *Manager) GetLogger() *slog.Logger {
	return m.baseLogger
}

// GetComponentLogger returns a logger for the specified component
func (m *Manager) GetComponentLogger(component string) *ComponentLogger {
	if cached, exists := m.componentCache[component]; exists {
		return &ComponentLogger{Logger: cached, component: component}
	}

	componentLogger := m.baseLogger.With(slog.String("component", component))
	m.componentCache[component] = componentLogger

	return &ComponentLogger{Logger: componentLogger, component: component}
}

// WithContext creates a logger that includes context values
func (m *Manager) WithContext(ctx context.Context) *slog.Logger {
	attrs := extractContextAttributes(ctx)
	if len(attrs) == 0 {
		return m.baseLogger
	}
	return m.baseLogger.With(attrs...)
}

// WithComponentContext creates a component logger that includes context values
func (m *Manager) WithComponentContext(ctx context.Context, component string) *ComponentLogger {
	attrs := extractContextAttributes(ctx)
	attrs = append(attrs, slog.String("component", component))

	logger := m.baseLogger.With(attrs...)
	return &ComponentLogger{Logger: logger, component: component}
}

// extractContextAttributes extracts logging attributes from context
func extractContextAttributes(ctx context.Context) []interface{} {
	var attrs []interface{}

	if traceID, ok := ctx.Value(TraceIDKey).(string); ok && traceID != "" {
		attrs = append(attrs, slog.String("trace_id", traceID))
	}

	if requestID, ok := ctx.Value(RequestIDKey).(string); ok && requestID != "" {
		attrs = append(attrs, slog.String("request_id", requestID))
	}

	if operation, ok := ctx.Value(OperationKey).(string); ok && operation != "" {
		attrs = append(attrs, slog.String("operation", operation))
	}

	if source, ok := ctx.Value(SourceKey).(string); ok && source != "" {
		attrs = append(attrs, slog.String("source", source))
	}

	if column, ok := ctx.Value(ColumnKey).(string); ok && column != "" {
		attrs = append(attrs, slog.String("column", column))
	}

	return attrs
}

// Close closes the logger and any associated resources
func (m *Manager) Close() error {
	if m.writer != nil {
		return m.writer.Close()
	}
	return nil
}

// WithTraceID adds a trace ID to the context
func WithTraceID(ctx context.Context, traceID string) context.Context {
	return context.WithValue(ctx, TraceIDKey, traceID)
}

// WithComponent adds a component name to the context
func WithComponent(ctx context.Context, component string) context.Context {
	return context.WithValue(ctx, ComponentKey, component)
}

// WithOperation adds an operation name to the context
func WithOperation(ctx context.Context, operation string) context.Context {
	return context.WithValue(ctx, OperationKey, operation)
}

// WithRequestID adds a request ID to the context
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, RequestIDKey, requestID)
}

// WithSource adds a data source identifier to the context
func WithSource(ctx context.Context, source string) context.Context {
	return context.WithValue(ctx, SourceKey, source)
}

// WithColumn adds a column name to the context
func WithColumn(ctx context.Context, column string) context.Context {
	return context.WithValue(ctx, ColumnKey, column)
}

// GetTraceID extracts the trace ID from context
func GetTraceID(ctx context.Context) string {
	if traceID, ok := ctx.Value(TraceIDKey).(string); ok {
		return traceID
	}
	return ""
}

// GetRequestID extracts the request ID from context
func GetRequestID(ctx context.Context) string {
	if requestID, ok := ctx.Value(RequestIDKey).(string); ok {
		return requestID
	}
	return ""
}

// GetOperation extracts the operation name from context
func GetOperation(ctx context.Context) string {
	if operation, ok := ctx.Value(OperationKey).(string); ok {
		return operation
	}
	return ""
}

// GetSource extracts the data source identifier from context
func GetSource(ctx context.Context) string {
	if source, ok := ctx.Value(SourceKey).(string); ok {
		return source
	}
	return ""
}

// WithOperation returns a logger with an operation context
func (cl *ComponentLogger) WithOperation(operation string) *slog.Logger {
	return cl.With(slog.String("operation", operation))
}

// WithSource returns a logger with a data source context
func (cl *ComponentLogger) WithSource(source string) *slog.Logger {
	return cl.With(slog.String("source", source))
}

// ErrorWithContext logs an error with full context information
func (cl *ComponentLogger) ErrorWithContext(ctx context.Context, msg string, err error, args ...interface{}) {
	attrs := extractContextAttributes(ctx)
	attrs = append(attrs, slog.Any("error", err))
	attrs = append(attrs, args...)
	cl.Error(msg, attrs...)
}

// WarnWithContext logs a warning with full context information
func (cl *ComponentLogger) WarnWithContext(ctx context.Context, msg string, args ...interface{}) {
	attrs := extractContextAttributes(ctx)
	attrs = append(attrs, args...)
	cl.Warn(msg, attrs...)
}

// InfoWithContext logs info with full context information
func (cl *ComponentLogger) InfoWithContext(ctx context.Context, msg string, args ...interface{}) {
	attrs := extractContextAttributes(ctx)
	attrs = append(attrs, args...)
	cl.Info(msg, attrs...)
}

// DebugWithContext logs debug information with full context
func (cl *ComponentLogger) DebugWithContext(ctx context.Context, msg string, args ...interface{}) {
	attrs := extractContextAttributes(ctx)
	attrs = append(attrs, args...)
	cl.Debug(msg, attrs...)
}

// LogOperation logs the start and end of an operation with timing
func (cl *ComponentLogger) LogOperation(ctx context.Context, operation string, fn func() error) error {
	start := time.Now()
	cl.InfoWithContext(ctx, "operation started", slog.String("operation", operation))

	err := fn()
	duration := time.Since(start)

	if err != nil {
		cl.ErrorWithContext(ctx, "operation failed", err,
			slog.String("operation", operation),
			slog.Duration("duration", duration))
		return err
	}

	cl.InfoWithContext(ctx, "operation completed",
		slog.String("operation", operation),
		slog.Duration("duration", duration))

	return nil
}
