package logger

import (
	"os"
	"sync"
	"sync/atomic"
)

// Logger provides a leveled logging interface shared by every component of
// the resilience layer. All implementations must be safe for concurrent use
// across multiple goroutines.
type Logger interface {
	// Type returns the type of the logger
	Type() LoggerType
	// Debugf logs a formatted message at debug level
	Debugf(format string, args ...any)
	// Infof logs a formatted message at info level
	Infof(format string, args ...any)
	// Warnf logs a formatted message at warn level
	Warnf(format string, args ...any)
	// Errorf logs a formatted message at error level
	Errorf(format string, args ...any)
	// Printf logs a formatted message regardless of level
	Printf(format string, args ...any)
	// Println logs a message with a newline regardless of level
	Println(message string)
	// SetLevel sets the minimum level the logger emits
	SetLevel(level Level)
	// Close closes the logger
	Close() error
}

type LoggerType string

const (
	LoggerTypeStdout LoggerType = "stdout"
	LoggerTypeFile   LoggerType = "file"
	LoggerTypeNoop   LoggerType = "noop"
	LoggerTypeWriter LoggerType = "writer"
	LoggerTypeMulti  LoggerType = "multi"
)

// Level is the severity of a log message. Messages below a logger's
// minimum level are discarded.
type Level int32

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
)

func (l Level) String() string {
	switch l {
	case LevelDebug:
		return "DEBUG"
	case LevelInfo:
		return "INFO"
	case LevelWarn:
		return "WARN"
	case LevelError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// levelGate holds a logger's minimum level. Safe for concurrent use.
type levelGate struct {
	min atomic.Int32
}

func (g *levelGate) SetLevel(level Level) {
	g.min.Store(int32(level))
}

func (g *levelGate) enabled(level Level) bool {
	return level >= Level(g.min.Load())
}

var (
	defaultLogger *StdoutLogger
	defaultOnce   sync.Once
)

// Default returns the process-wide stdout logger, created on first use.
// ENV=dev enables debug output.
func Default() Logger {
	defaultOnce.Do(func() {
		defaultLogger = NewStdoutLogger()
		if os.Getenv("ENV") == "dev" {
			defaultLogger.SetLevel(LevelDebug)
		}
	})
	return defaultLogger
}

// MultiLogger writes to multiple loggers simultaneously.
// Safe for concurrent use if all underlying loggers are safe.
type MultiLogger struct {
	loggers []Logger
}

var _ Logger = (*MultiLogger)(nil)

// NewMultiLogger creates a logger that writes to multiple destinations
func NewMultiLogger(loggers ...Logger) *MultiLogger {
	return &MultiLogger{
		loggers: loggers,
	}
}

func (m *MultiLogger) Type() LoggerType {
	return LoggerTypeMulti
}

func (m *MultiLogger) Debugf(format string, args ...any) {
	for _, logger := range m.loggers {
		logger.Debugf(format, args...)
	}
}

func (m *MultiLogger) Infof(format string, args ...any) {
	for _, logger := range m.loggers {
		logger.Infof(format, args...)
	}
}

func (m *MultiLogger) Warnf(format string, args ...any) {
	for _, logger := range m.loggers {
		logger.Warnf(format, args...)
	}
}

func (m *MultiLogger) Errorf(format string, args ...any) {
	for _, logger := range m.loggers {
		logger.Errorf(format, args...)
	}
}

func (m *MultiLogger) Printf(format string, args ...any) {
	for _, logger := range m.loggers {
		logger.Printf(format, args...)
	}
}

func (m *MultiLogger) Println(message string) {
	for _, logger := range m.loggers {
		logger.Println(message)
	}
}

func (m *MultiLogger) SetLevel(level Level) {
	for _, logger := range m.loggers {
		logger.SetLevel(level)
	}
}

func (m *MultiLogger) Close() error {
	for _, logger := range m.loggers {
		logger.Close()
	}
	return nil
}
