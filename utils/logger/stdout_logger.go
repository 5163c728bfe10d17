package logger

import (
	"log"
	"os"
)

// StdoutLogger writes logs to stdout using the standard log package.
// Safe for concurrent use across goroutines.
type StdoutLogger struct {
	levelGate
	logger *log.Logger
}

var _ Logger = (*StdoutLogger)(nil)

// NewStdoutLogger creates a new logger that writes to stdout at info level
func NewStdoutLogger() *StdoutLogger {
	s := &StdoutLogger{
		logger: log.New(os.Stdout, "", log.LstdFlags),
	}
	s.SetLevel(LevelInfo)
	return s
}

func (s *StdoutLogger) Type() LoggerType {
	return LoggerTypeStdout
}

func (s *StdoutLogger) Debugf(format string, args ...any) {
	s.logf(LevelDebug, format, args...)
}

func (s *StdoutLogger) Infof(format string, args ...any) {
	s.logf(LevelInfo, format, args...)
}

func (s *StdoutLogger) Warnf(format string, args ...any) {
	s.logf(LevelWarn, format, args...)
}

func (s *StdoutLogger) Errorf(format string, args ...any) {
	s.logf(LevelError, format, args...)
}

func (s *StdoutLogger) Printf(format string, args ...any) {
	s.logger.Printf(format, args...)
}

func (s *StdoutLogger) Println(message string) {
	s.logger.Println(message)
}

func (s *StdoutLogger) Close() error {
	return nil
}

func (s *StdoutLogger) logf(level Level, format string, args ...any) {
	if !s.enabled(level) {
		return
	}
	s.logger.Printf("["+level.String()+"] "+format, args...)
}
