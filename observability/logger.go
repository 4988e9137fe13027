package observability

// Field is a structured logging key-value pair.
type Field struct {
	Key   string
	Value any
}

// Logger is the structured logging boundary of the library. Any logging
// backend can be bridged by implementing these five methods; see
// NewSlogLogger for the standard-library bridge.
type Logger interface {
	// Debug logs detailed diagnostic information.
	Debug(msg string, fields ...Field)

	// Info logs general informational messages.
	Info(msg string, fields ...Field)

	// Warn logs potentially problematic situations.
	Warn(msg string, fields ...Field)

	// Error logs failures.
	Error(msg string, fields ...Field)

	// With returns a logger that includes the given fields on every
	// subsequent log call.
	With(fields ...Field) Logger
}

type noopLogger struct{}

// NoopLogger returns a logger that discards everything. It is the default
// when no logger is configured.
//
//nolint:ireturn // Factory returns the interface so callers can swap backends
func NoopLogger() Logger {
	return &noopLogger{}
}

func (l *noopLogger) Debug(string, ...Field) {}
func (l *noopLogger) Info(string, ...Field)  {}
func (l *noopLogger) Warn(string, ...Field)  {}
func (l *noopLogger) Error(string, ...Field) {}

//nolint:ireturn // Interface method
func (l *noopLogger) With(...Field) Logger { return l }
