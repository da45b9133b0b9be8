package logging

// Logger is the logging interface used throughout the core.
// Implementations can wrap any logging library.
type Logger interface {
	Info(msg string, keysAndValues ...interface{})
	Warn(msg string, keysAndValues ...interface{})
	Error(msg string, keysAndValues ...interface{})
	Debug(msg string, keysAndValues ...interface{})
}

// noopLogger is a no-op logger implementation.
type noopLogger struct{}

// NewNoopLogger returns a no-op logger.
func NewNoopLogger() Logger {
	return noopLogger{}
}

func (noopLogger) Info(msg string, keysAndValues ...interface{})  {}
func (noopLogger) Warn(msg string, keysAndValues ...interface{})  {}
func (noopLogger) Error(msg string, keysAndValues ...interface{}) {}
func (noopLogger) Debug(msg string, keysAndValues ...interface{}) {}
