package logging

import "context"

// NopLogger discards all entries (useful for tests)
type NopLogger struct{}

// NewNop creates a logger that discards everything
func NewNop() Logger {
	return &NopLogger{}
}

func (n *NopLogger) Debug(msg string, fields ...interface{}) {}
func (n *NopLogger) Info(msg string, fields ...interface{})  {}
func (n *NopLogger) Warn(msg string, fields ...interface{})  {}
func (n *NopLogger) Error(msg string, fields ...interface{}) {}

func (n *NopLogger) DebugContext(ctx context.Context, msg string, fields ...interface{}) {}
func (n *NopLogger) InfoContext(ctx context.Context, msg string, fields ...interface{})  {}
func (n *NopLogger) WarnContext(ctx context.Context, msg string, fields ...interface{})  {}
func (n *NopLogger) ErrorContext(ctx context.Context, msg string, fields ...interface{}) {}

// WithRunID returns the logger unchanged
func (n *NopLogger) WithRunID(runID string) Logger { return n }

// WithComponent returns the logger unchanged
func (n *NopLogger) WithComponent(component string) Logger { return n }
