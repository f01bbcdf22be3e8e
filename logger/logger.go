// Package logger defines the logging interface used across paychan and a
// zap-backed implementation. Library packages take a Logger and default to
// Noop, so embedding applications stay in control of output.
package logger

// Fields carries structured context attached to a log line.
type Fields map[string]any

type Logger interface {
	Debug(msg string, fields Fields)
	Info(msg string, fields Fields)
	Warn(msg string, fields Fields)
	Error(msg string, fields Fields)
}

type NoopLogger struct{}

func (NoopLogger) Debug(string, Fields) {}
func (NoopLogger) Info(string, Fields)  {}
func (NoopLogger) Warn(string, Fields)  {}
func (NoopLogger) Error(string, Fields) {}
