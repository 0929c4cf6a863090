package log

import (
	"fmt"
	"io"
	"log"
	"os"
)

// LogLevel orders logging severities. Messages below the configured level
// are dropped.
type LogLevel int

const (
	LogLevelDebug LogLevel = iota
	LogLevelInfo
	LogLevelWarn
	LogLevelError
	// LogLevelNone disables all output.
	LogLevelNone
)

var levelTags = map[LogLevel]string{
	LogLevelDebug: "DEBUG",
	LogLevelInfo:  "INFO",
	LogLevelWarn:  "WARN",
	LogLevelError: "ERROR",
	LogLevelNone:  "NONE",
}

// String returns the tag for the level
func (l LogLevel) String() string {
	if tag, ok := levelTags[l]; ok {
		return tag
	}
	return fmt.Sprintf("UNKNOWN(%d)", l)
}

// Logger is the logging interface used by every engine component
type Logger interface {
	Debug(format string, v ...any)
	Info(format string, v ...any)
	Warn(format string, v ...any)
	Error(format string, v ...any)
}

// DefaultLogger writes leveled, printf-style messages through the standard
// library logger.
type DefaultLogger struct {
	out   *log.Logger
	level LogLevel
}

// NewDefaultLogger creates a logger writing to stderr
func NewDefaultLogger(level LogLevel) *DefaultLogger {
	return NewCustomLogger(os.Stderr, level)
}

// NewCustomLogger creates a logger with a custom output writer
func NewCustomLogger(out io.Writer, level LogLevel) *DefaultLogger {
	return &DefaultLogger{
		out:   log.New(out, "[sona] ", log.LstdFlags),
		level: level,
	}
}

func (l *DefaultLogger) logf(level LogLevel, format string, v ...any) {
	if level < l.level {
		return
	}
	l.out.Printf("["+levelTags[level]+"] "+format, v...)
}

// Debug logs debug messages
func (l *DefaultLogger) Debug(format string, v ...any) { l.logf(LogLevelDebug, format, v...) }

// Info logs informational messages
func (l *DefaultLogger) Info(format string, v ...any) { l.logf(LogLevelInfo, format, v...) }

// Warn logs warning messages
func (l *DefaultLogger) Warn(format string, v ...any) { l.logf(LogLevelWarn, format, v...) }

// Error logs error messages
func (l *DefaultLogger) Error(format string, v ...any) { l.logf(LogLevelError, format, v...) }

// NoOpLogger discards everything
type NoOpLogger struct{}

func (NoOpLogger) Debug(format string, v ...any) {}
func (NoOpLogger) Info(format string, v ...any)  {}
func (NoOpLogger) Warn(format string, v ...any)  {}
func (NoOpLogger) Error(format string, v ...any) {}

// WithPrefix returns a logger that prepends a component tag to every
// message, keeping output attributable when components share one logger.
func WithPrefix(logger Logger, prefix string) Logger {
	if logger == nil {
		logger = defaultLogger
	}
	return &prefixLogger{logger: logger, prefix: "[" + prefix + "] "}
}

type prefixLogger struct {
	logger Logger
	prefix string
}

func (l *prefixLogger) Debug(format string, v ...any) { l.logger.Debug(l.prefix+format, v...) }
func (l *prefixLogger) Info(format string, v ...any)  { l.logger.Info(l.prefix+format, v...) }
func (l *prefixLogger) Warn(format string, v ...any)  { l.logger.Warn(l.prefix+format, v...) }
func (l *prefixLogger) Error(format string, v ...any) { l.logger.Error(l.prefix+format, v...) }

// Package-level default. Components fall back to it when their config
// carries no logger.
var defaultLogger Logger = NewDefaultLogger(LogLevelInfo)

// SetDefaultLogger replaces the package-level logger
func SetDefaultLogger(logger Logger) {
	defaultLogger = logger
}

// GetDefaultLogger returns the package-level logger
func GetDefaultLogger() Logger {
	return defaultLogger
}

// SetLogLevel installs a default logger at the given level
func SetLogLevel(level LogLevel) {
	defaultLogger = NewDefaultLogger(level)
}

// Debug logs through the package-level logger
func Debug(format string, v ...any) { defaultLogger.Debug(format, v...) }

// Info logs through the package-level logger
func Info(format string, v ...any) { defaultLogger.Info(format, v...) }

// Warn logs through the package-level logger
func Warn(format string, v ...any) { defaultLogger.Warn(format, v...) }

// Error logs through the package-level logger
func Error(format string, v ...any) { defaultLogger.Error(format, v...) }
