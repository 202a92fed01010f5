package component

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"
)

// LogLevel represents the severity level of a log entry
type LogLevel string

const (
	// LogLevelDebug represents debug-level logs
	LogLevelDebug LogLevel = "DEBUG"
	// LogLevelInfo represents informational logs
	LogLevelInfo LogLevel = "INFO"
	// LogLevelWarn represents warning logs
	LogLevelWarn LogLevel = "WARN"
	// LogLevelError represents error logs
	LogLevelError LogLevel = "ERROR"
)

// LogEntry is the structured log record published to NATS so operators
// can stream component logs live.
type LogEntry struct {
	Timestamp  string   `json:"timestamp"` // RFC3339 format
	Level      LogLevel `json:"level"`
	Component  string   `json:"component"`
	PipelineID string   `json:"pipeline_id"`
	Message    string   `json:"message"`
	Detail     string   `json:"detail,omitempty"` // error details
}

// Logger provides structured logging for components. It wraps a standard
// slog.Logger for local logging and optionally publishes entries to NATS
// for remote consumption. A nil NATS connection disables publishing.
type Logger struct {
	componentName string
	pipelineID    string
	nc            *nats.Conn
	logger        *slog.Logger
	enabled       bool
}

// NewLogger creates a component logger. nc may be nil.
func NewLogger(componentName, pipelineID string, nc *nats.Conn, logger *slog.Logger) *Logger {
	if logger == nil {
		logger = slog.Default()
	}
	return &Logger{
		componentName: componentName,
		pipelineID:    pipelineID,
		nc:            nc,
		logger:        logger,
		enabled:       nc != nil,
	}
}

// Debug logs a debug-level message
func (cl *Logger) Debug(msg string) {
	cl.publish(context.Background(), LogLevelDebug, msg, "")
	cl.logger.Debug(msg, "component", cl.componentName)
}

// Info logs an info-level message
func (cl *Logger) Info(msg string) {
	cl.publish(context.Background(), LogLevelInfo, msg, "")
	cl.logger.Info(msg, "component", cl.componentName)
}

// Warn logs a warning-level message
func (cl *Logger) Warn(msg string) {
	cl.publish(context.Background(), LogLevelWarn, msg, "")
	cl.logger.Warn(msg, "component", cl.componentName)
}

// Error logs an error-level message with optional error details
func (cl *Logger) Error(msg string, err error) {
	detail := ""
	if err != nil {
		detail = fmt.Sprintf("%+v", err)
	}
	cl.publish(context.Background(), LogLevelError, msg, detail)
	cl.logger.Error(msg, "component", cl.componentName, "error", err)
}

// publish sends a log entry to NATS when publishing is enabled
func (cl *Logger) publish(ctx context.Context, level LogLevel, message, detail string) {
	if !cl.enabled {
		return
	}

	select {
	case <-ctx.Done():
		return
	default:
	}

	entry := LogEntry{
		Timestamp:  time.Now().UTC().Format(time.RFC3339Nano),
		Level:      level,
		Component:  cl.componentName,
		PipelineID: cl.pipelineID,
		Message:    message,
		Detail:     detail,
	}

	data, err := json.Marshal(entry)
	if err != nil {
		cl.logger.Error("failed to marshal log entry", "error", err)
		return
	}

	nc := cl.nc
	if nc == nil {
		return
	}

	// Subject: logs.{pipeline_id}.{component}
	subject := fmt.Sprintf("logs.%s.%s", cl.pipelineID, cl.componentName)
	if err := nc.Publish(subject, data); err != nil {
		cl.logger.Error("failed to publish log to NATS", "error", err, "subject", subject)
	}
}
