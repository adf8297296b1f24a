// Package logging provides structured logging for the translation engine.
// Loggers are injected into components; a run ID ties all entries of one
// translation session together.
package logging

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"runtime"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Logger interface for structured logging with run correlation
type Logger interface {
	Debug(msg string, fields ...interface{})
	Info(msg string, fields ...interface{})
	Warn(msg string, fields ...interface{})
	Error(msg string, fields ...interface{})

	// Context-aware logging picks the run ID out of ctx
	DebugContext(ctx context.Context, msg string, fields ...interface{})
	InfoContext(ctx context.Context, msg string, fields ...interface{})
	WarnContext(ctx context.Context, msg string, fields ...interface{})
	ErrorContext(ctx context.Context, msg string, fields ...interface{})

	WithRunID(runID string) Logger
	WithComponent(component string) Logger
}

// Entry represents a structured log entry
type Entry struct {
	Timestamp string                 `json:"timestamp"`
	Level     string                 `json:"level"`
	Message   string                 `json:"message"`
	RunID     string                 `json:"run_id,omitempty"`
	Component string                 `json:"component,omitempty"`
	File      string                 `json:"file,omitempty"`
	Line      int                    `json:"line,omitempty"`
	Fields    map[string]interface{} `json:"fields,omitempty"`
}

// ContextKey represents keys used in context for run IDs
type ContextKey string

const (
	RunIDKey ContextKey = "run_id"
)

// Level represents logging levels
type Level int

const (
	DebugLevel Level = iota
	InfoLevel
	WarnLevel
	ErrorLevel
)

// StructuredLogger implements Logger with JSON or plain text output
type StructuredLogger struct {
	level     Level
	runID     string
	component string
	useJSON   bool
	out       io.Writer
}

// NewLogger creates a new structured logger writing to stderr
func NewLogger(level Level) Logger {
	return &StructuredLogger{
		level:   level,
		useJSON: getEnvBool("RLM_LOG_JSON", false),
		out:     os.Stderr,
	}
}

// NewLoggerTo creates a structured logger writing to the given writer
func NewLoggerTo(level Level, out io.Writer) Logger {
	return &StructuredLogger{
		level:   level,
		useJSON: getEnvBool("RLM_LOG_JSON", false),
		out:     out,
	}
}

// NewLoggerWith creates a structured logger with an explicit output format,
// bypassing the RLM_LOG_JSON environment toggle.
func NewLoggerWith(level Level, out io.Writer, jsonOutput bool) Logger {
	return &StructuredLogger{
		level:   level,
		useJSON: jsonOutput,
		out:     out,
	}
}

func getEnvBool(key string, defaultValue bool) bool {
	val := os.Getenv(key)
	if val == "" {
		return defaultValue
	}
	return val == "true" || val == "1"
}

// WithRunID creates a new logger bound to a run ID
func (l *StructuredLogger) WithRunID(runID string) Logger {
	return &StructuredLogger{
		level:     l.level,
		runID:     runID,
		component: l.component,
		useJSON:   l.useJSON,
		out:       l.out,
	}
}

// WithComponent creates a new logger bound to a component name
func (l *StructuredLogger) WithComponent(component string) Logger {
	return &StructuredLogger{
		level:     l.level,
		runID:     l.runID,
		component: component,
		useJSON:   l.useJSON,
		out:       l.out,
	}
}

// Debug logs a debug message
func (l *StructuredLogger) Debug(msg string, fields ...interface{}) {
	if l.level <= DebugLevel {
		l.write("DEBUG", msg, "", fields...)
	}
}

// Info logs an info message
func (l *StructuredLogger) Info(msg string, fields ...interface{}) {
	if l.level <= InfoLevel {
		l.write("INFO", msg, "", fields...)
	}
}

// Warn logs a warning message
func (l *StructuredLogger) Warn(msg string, fields ...interface{}) {
	if l.level <= WarnLevel {
		l.write("WARN", msg, "", fields...)
	}
}

// Error logs an error message
func (l *StructuredLogger) Error(msg string, fields ...interface{}) {
	if l.level <= ErrorLevel {
		l.write("ERROR", msg, "", fields...)
	}
}

// DebugContext logs a debug message with the run ID from ctx
func (l *StructuredLogger) DebugContext(ctx context.Context, msg string, fields ...interface{}) {
	if l.level <= DebugLevel {
		l.write("DEBUG", msg, RunIDFromContext(ctx), fields...)
	}
}

// InfoContext logs an info message with the run ID from ctx
func (l *StructuredLogger) InfoContext(ctx context.Context, msg string, fields ...interface{}) {
	if l.level <= InfoLevel {
		l.write("INFO", msg, RunIDFromContext(ctx), fields...)
	}
}

// WarnContext logs a warning message with the run ID from ctx
func (l *StructuredLogger) WarnContext(ctx context.Context, msg string, fields ...interface{}) {
	if l.level <= WarnLevel {
		l.write("WARN", msg, RunIDFromContext(ctx), fields...)
	}
}

// ErrorContext logs an error message with the run ID from ctx
func (l *StructuredLogger) ErrorContext(ctx context.Context, msg string, fields ...interface{}) {
	if l.level <= ErrorLevel {
		l.write("ERROR", msg, RunIDFromContext(ctx), fields...)
	}
}

// write creates and outputs a structured entry
func (l *StructuredLogger) write(level, msg, contextRunID string, fields ...interface{}) {
	runID := l.runID
	if contextRunID != "" {
		runID = contextRunID
	}

	_, file, line, ok := runtime.Caller(2)
	if !ok {
		file = "unknown"
		line = 0
	} else {
		parts := strings.Split(file, "/")
		file = parts[len(parts)-1]
	}

	fieldMap := make(map[string]interface{})
	for i := 0; i < len(fields); i += 2 {
		if i+1 < len(fields) {
			key := fmt.Sprintf("%v", fields[i])
			fieldMap[key] = fields[i+1]
		} else {
			fieldMap[fmt.Sprintf("field_%d", i)] = fields[i]
		}
	}

	entry := Entry{
		Timestamp: time.Now().UTC().Format(time.RFC3339Nano),
		Level:     level,
		Message:   msg,
		RunID:     runID,
		Component: l.component,
		File:      file,
		Line:      line,
		Fields:    fieldMap,
	}

	if l.useJSON {
		l.outputJSON(entry)
	} else {
		l.outputText(entry)
	}
}

func (l *StructuredLogger) outputJSON(entry Entry) {
	data, err := json.Marshal(entry)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to marshal log entry: %v\n", err)
		return
	}
	fmt.Fprintln(l.out, string(data))
}

func (l *StructuredLogger) outputText(entry Entry) {
	var parts []string

	parts = append(parts, entry.Timestamp)
	parts = append(parts, fmt.Sprintf("[%s]", entry.Level))

	if entry.RunID != "" && len(entry.RunID) >= 8 {
		parts = append(parts, fmt.Sprintf("run:%s", entry.RunID[:8]))
	}

	if entry.Component != "" {
		parts = append(parts, fmt.Sprintf("component:%s", entry.Component))
	}

	parts = append(parts, entry.Message)

	for k, v := range entry.Fields {
		parts = append(parts, fmt.Sprintf("%s=%v", k, v))
	}

	if entry.File != "" && entry.Line > 0 {
		parts = append(parts, fmt.Sprintf("(%s:%d)", entry.File, entry.Line))
	}

	fmt.Fprintln(l.out, strings.Join(parts, " "))
}

// NewRunID mints a fresh run identifier
func NewRunID() string {
	return uuid.New().String()
}

// WithRun attaches a run ID to ctx, minting one when empty
func WithRun(ctx context.Context, runID string) context.Context {
	if runID == "" {
		runID = NewRunID()
	}
	return context.WithValue(ctx, RunIDKey, runID)
}

// RunIDFromContext extracts the run ID from ctx, empty when absent
func RunIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if runID, ok := ctx.Value(RunIDKey).(string); ok {
		return runID
	}
	return ""
}

// ParseLevel maps a level name to a Level, defaulting to info
func ParseLevel(level string) Level {
	switch strings.ToLower(level) {
	case "debug":
		return DebugLevel
	case "info":
		return InfoLevel
	case "warn", "warning":
		return WarnLevel
	case "error":
		return ErrorLevel
	default:
		return InfoLevel
	}
}
