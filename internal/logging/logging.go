// SPDX-License-Identifier: AGPL-3.0-only
package logging

import (
	"fmt"
	"io"
	"log"
	"os"
	"sync"
)

// LogLevel controls which messages a Logger emits
type LogLevel int

// Log levels, lowest to highest severity
const (
	Debug LogLevel = iota
	Info
	Warn
	Error
	Fatal
)

// String returns the level name used in log lines
func (l LogLevel) String() string {
	switch l {
	case Debug:
		return "DEBUG"
	case Info:
		return "INFO"
	case Warn:
		return "WARN"
	case Error:
		return "ERROR"
	case Fatal:
		return "FATAL"
	default:
		return "UNKNOWN"
	}
}

// Options configures a Logger
type Options struct {
	// Level is the minimum level to emit
	Level LogLevel
	// Output is where log lines are written; defaults to stderr
	Output io.Writer
}

// Logger is a leveled logger
type Logger struct {
	mu     sync.Mutex
	level  LogLevel
	out    *log.Logger
	closer io.Closer
}

// New creates a logger with the given options
func New(opts Options) *Logger {
	out := opts.Output
	if out == nil {
		out = os.Stderr
	}
	return &Logger{
		level: opts.Level,
		out:   log.New(out, "", log.LstdFlags|log.Lmicroseconds),
	}
}

// FileLogger creates a logger appending to the file at path
func FileLogger(path string, level LogLevel) (*Logger, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open log file: %w", err)
	}
	l := New(Options{Level: level, Output: f})
	l.closer = f
	return l, nil
}

// SetLevel changes the minimum level to emit
func (l *Logger) SetLevel(level LogLevel) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.level = level
}

// Close releases the underlying file, if any
func (l *Logger) Close() error {
	if l.closer != nil {
		return l.closer.Close()
	}
	return nil
}

func (l *Logger) logf(level LogLevel, format string, args ...interface{}) {
	l.mu.Lock()
	min := l.level
	l.mu.Unlock()
	if level < min {
		return
	}
	l.out.Printf("[%s] %s", level, fmt.Sprintf(format, args...))
}

// Debugf logs at debug level
func (l *Logger) Debugf(format string, args ...interface{}) { l.logf(Debug, format, args...) }

// Infof logs at info level
func (l *Logger) Infof(format string, args ...interface{}) { l.logf(Info, format, args...) }

// Warnf logs at warn level
func (l *Logger) Warnf(format string, args ...interface{}) { l.logf(Warn, format, args...) }

// Errorf logs at error level
func (l *Logger) Errorf(format string, args ...interface{}) { l.logf(Error, format, args...) }

// Fatalf logs at fatal level and exits
func (l *Logger) Fatalf(format string, args ...interface{}) {
	l.logf(Fatal, format, args...)
	os.Exit(1)
}

var (
	defaultMu     sync.RWMutex
	defaultLogger = New(Options{Level: Info})
)

// GetDefaultLogger returns the process-wide default logger
func GetDefaultLogger() *Logger {
	defaultMu.RLock()
	defer defaultMu.RUnlock()
	return defaultLogger
}

// SetDefaultLogger replaces the process-wide default logger
func SetDefaultLogger(l *Logger) {
	defaultMu.Lock()
	defer defaultMu.Unlock()
	defaultLogger = l
}

// ParseLevel maps a level name to a LogLevel, defaulting to Info
func ParseLevel(level string) LogLevel {
	switch level {
	case "debug":
		return Debug
	case "info":
		return Info
	case "warn":
		return Warn
	case "error":
		return Error
	case "fatal":
		return Fatal
	default:
		return Info
	}
}
