// Package logging provides the pipeline's structured logger. Every log line
// can carry a request correlation id and an ordered set of fields, so one
// pipeline run is greppable end to end and identical runs produce identical
// log shapes.
package logging

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"
)

// LogLevel represents the severity level of a log message
type LogLevel int

const (
	DebugLevel LogLevel = iota
	InfoLevel
	WarnLevel
	ErrorLevel
)

const (
	logDirPerm  = 0755
	logFilePerm = 0644
)

// String returns the string representation of the log level
func (l LogLevel) String() string {
	switch l {
	case DebugLevel:
		return "DEBUG"
	case InfoLevel:
		return "INFO"
	case WarnLevel:
		return "WARN"
	case ErrorLevel:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// Config controls logger construction. Level is one of debug/info/warn/error,
// Format is text or json, Output is stdout/stderr/file.
type Config struct {
	Level  string
	Format string
	Output string
	File   string
}

// Field is one key/value annotation. Fields keep their attachment order so
// log output is deterministic.
type Field struct {
	Key   string
	Value any
}

// entry is the JSON wire shape of one log line. The request id sits at the
// top level, not inside fields: it is the correlation key, not an annotation.
type entry struct {
	Timestamp string         `json:"timestamp"`
	Level     string         `json:"level"`
	RequestID string         `json:"request_id,omitempty"`
	Message   string         `json:"message"`
	Fields    map[string]any `json:"fields,omitempty"`
}

// Logger emits structured log lines. The zero value is not usable; build one
// with NewLogger. Child loggers from WithRequestID/WithField share the output
// and its mutex, so lines from concurrent requests never interleave.
type Logger struct {
	level     LogLevel
	jsonMode  bool
	mu        *sync.Mutex
	out       io.Writer
	file      *os.File
	requestID string
	fields    []Field
}

// Global logger instance
var globalLogger *Logger
var loggerOnce sync.Once

// InitializeLogger initializes the global logger with the given configuration
func InitializeLogger(cfg Config) error {
	var err error

	loggerOnce.Do(func() {
		globalLogger, err = NewLogger(cfg)
	})

	return err
}

// NewLogger creates a new logger with the given configuration
func NewLogger(cfg Config) (*Logger, error) {
	logger := &Logger{
		level:    parseLogLevel(cfg.Level),
		jsonMode: strings.EqualFold(cfg.Format, "json"),
		mu:       &sync.Mutex{},
	}

	switch strings.ToLower(cfg.Output) {
	case "", "stderr":
		logger.out = os.Stderr
	case "stdout":
		logger.out = os.Stdout
	case "file":
		if cfg.File == "" {
			return nil, errors.New("log file path is required when output is 'file'")
		}

		if err := os.MkdirAll(filepath.Dir(cfg.File), logDirPerm); err != nil {
			return nil, fmt.Errorf("failed to create log directory: %w", err)
		}

		file, err := os.OpenFile(cfg.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, logFilePerm)
		if err != nil {
			return nil, fmt.Errorf("failed to open log file: %w", err)
		}

		logger.file = file
		logger.out = file
	default:
		return nil, fmt.Errorf("invalid log output: %s", cfg.Output)
	}

	return logger, nil
}

// parseLogLevel parses a string log level into LogLevel
func parseLogLevel(level string) LogLevel {
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

// child clones the logger, sharing output and mutex.
func (l *Logger) child() *Logger {
	clone := *l
	clone.fields = make([]Field, len(l.fields), len(l.fields)+1)
	copy(clone.fields, l.fields)

	return &clone
}

// WithRequestID scopes the logger to one pipeline request. Every line emitted
// through the returned logger carries the correlation id.
func (l *Logger) WithRequestID(id string) *Logger {
	clone := l.child()
	clone.requestID = id

	return clone
}

// WithField adds one annotation to the logger context.
func (l *Logger) WithField(key string, value any) *Logger {
	clone := l.child()
	clone.fields = append(clone.fields, Field{Key: key, Value: value})

	return clone
}

// WithFields adds several annotations, in sorted key order so output stays
// deterministic regardless of map iteration.
func (l *Logger) WithFields(fields map[string]any) *Logger {
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}

	sort.Strings(keys)

	clone := l.child()
	for _, k := range keys {
		clone.fields = append(clone.fields, Field{Key: k, Value: fields[k]})
	}

	return clone
}

// WithError annotates the logger with an error field.
func (l *Logger) WithError(err error) *Logger {
	if err == nil {
		return l
	}

	return l.WithField("error", err.Error())
}

// log emits one line at the given level.
func (l *Logger) log(level LogLevel, message string) {
	if level < l.level {
		return
	}

	e := entry{
		Timestamp: time.Now().Format(time.RFC3339),
		Level:     level.String(),
		RequestID: l.requestID,
		Message:   message,
	}

	var line string

	if l.jsonMode {
		if len(l.fields) > 0 {
			e.Fields = make(map[string]any, len(l.fields))
			for _, f := range l.fields {
				e.Fields[f.Key] = f.Value
			}
		}

		data, _ := json.Marshal(e)
		line = string(data)
	} else {
		line = l.formatText(e)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	_, _ = fmt.Fprintln(l.out, line)
}

// formatText renders one line as text: timestamp, level, correlation id,
// message, then fields in attachment order.
func (l *Logger) formatText(e entry) string {
	var sb strings.Builder

	sb.WriteString(fmt.Sprintf("[%s] %s", e.Timestamp, e.Level))

	if e.RequestID != "" {
		sb.WriteString(" req=" + e.RequestID)
	}

	sb.WriteString(" " + e.Message)

	for _, f := range l.fields {
		sb.WriteString(fmt.Sprintf(" %s=%v", f.Key, f.Value))
	}

	return sb.String()
}

// Debug logs a debug message
func (l *Logger) Debug(message string) {
	l.log(DebugLevel, message)
}

// Debugf logs a formatted debug message
func (l *Logger) Debugf(format string, args ...any) {
	l.log(DebugLevel, fmt.Sprintf(format, args...))
}

// Info logs an info message
func (l *Logger) Info(message string) {
	l.log(InfoLevel, message)
}

// Infof logs a formatted info message
func (l *Logger) Infof(format string, args ...any) {
	l.log(InfoLevel, fmt.Sprintf(format, args...))
}

// Warn logs a warning message
func (l *Logger) Warn(message string) {
	l.log(WarnLevel, message)
}

// Warnf logs a formatted warning message
func (l *Logger) Warnf(format string, args ...any) {
	l.log(WarnLevel, fmt.Sprintf(format, args...))
}

// Error logs an error message
func (l *Logger) Error(message string) {
	l.log(ErrorLevel, message)
}

// Errorf logs a formatted error message
func (l *Logger) Errorf(format string, args ...any) {
	l.log(ErrorLevel, fmt.Sprintf(format, args...))
}

// Close closes the logger and any associated resources
func (l *Logger) Close() error {
	if l.file != nil {
		return l.file.Close()
	}

	return nil
}

// Global logging functions that use the global logger

// Debugf logs a formatted debug message using the global logger
func Debugf(format string, args ...any) {
	if globalLogger != nil {
		globalLogger.Debugf(format, args...)
	}
}

// Infof logs a formatted info message using the global logger
func Infof(format string, args ...any) {
	if globalLogger != nil {
		globalLogger.Infof(format, args...)
	}
}

// Warnf logs a formatted warning message using the global logger
func Warnf(format string, args ...any) {
	if globalLogger != nil {
		globalLogger.Warnf(format, args...)
	}
}

// Errorf logs a formatted error message using the global logger
func Errorf(format string, args ...any) {
	if globalLogger != nil {
		globalLogger.Errorf(format, args...)
	}
}

// GetLogger returns the global logger instance
func GetLogger() *Logger {
	return globalLogger
}

// SetupFallbackLogger sets up a basic logger for cases where configuration fails
func SetupFallbackLogger() {
	globalLogger = &Logger{
		level: InfoLevel,
		mu:    &sync.Mutex{},
		out:   os.Stderr,
	}
}
