package logger

import (
	"io"
	"log"
)

// WriterLogger adapts any io.Writer to the Logger interface.
// Thread safety depends on the underlying writer.
type WriterLogger struct {
	levelGate
	logger *log.Logger
}

var _ Logger = (*WriterLogger)(nil)

// NewWriterLogger creates a logger from any io.Writer
func NewWriterLogger(w io.Writer) *WriterLogger {
	l := &WriterLogger{
		logger: log.New(w, "", log.LstdFlags),
	}
	l.SetLevel(LevelInfo)
	return l
}

func (w *WriterLogger) Type() LoggerType {
	return LoggerTypeWriter
}

func (w *WriterLogger) Debugf(format string, args ...any) {
	w.logf(LevelDebug, format, args...)
}

func (w *WriterLogger) Infof(format string, args ...any) {
	w.logf(LevelInfo, format, args...)
}

func (w *WriterLogger) Warnf(format string, args ...any) {
	w.logf(LevelWarn, format, args...)
}

func (w *WriterLogger) Errorf(format string, args ...any) {
	w.logf(LevelError, format, args...)
}

func (w *WriterLogger) Printf(format string, args ...any) {
	w.logger.Printf(format, args...)
}

func (w *WriterLogger) Println(message string) {
	w.logger.Println(message)
}

func (w *WriterLogger) Close() error {
	return nil
}

func (w *WriterLogger) logf(level Level, format string, args ...any) {
	if !w.enabled(level) {
		return
	}
	w.logger.Printf("["+level.String()+"] "+format, args...)
}
