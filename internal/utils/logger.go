// internal/utils/logger.go
package utils

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strings"
	"sync"
	"time"
)

// LogLevel represents the logging level
type LogLevel int

const (
	DEBUG LogLevel = iota
	INFO
	WARNING
	ERROR
	FATAL
)

var levelNames = map[LogLevel]string{
	DEBUG:   "DEBUG",
	INFO:    "INFO",
	WARNING: "WARNING",
	ERROR:   "ERROR",
	FATAL:   "FATAL",
}

func (l LogLevel) String() string {
	if name, ok := levelNames[l]; ok {
		return name
	}
	return "UNKNOWN"
}

// ParseLogLevel parses LOG_LEVEL style names, defaulting to INFO
func ParseLogLevel(name string) LogLevel {
	switch strings.ToUpper(strings.TrimSpace(name)) {
	case "DEBUG":
		return DEBUG
	case "WARN", "WARNING":
		return WARNING
	case "ERROR":
		return ERROR
	case "FATAL":
		return FATAL
	default:
		return INFO
	}
}

// Logger is a leveled logger writing to stdout and an optional log file
type Logger struct {
	mu      sync.Mutex
	out     io.Writer
	file    *os.File
	level   LogLevel
	enabled bool
	fields  map[string]interface{}
	parent  *Logger
}

var (
	globalLogger *Logger
	loggerOnce   sync.Once
)

// GetLogger returns the global logger instance
func GetLogger() *Logger {
	loggerOnce.Do(func() {
		globalLogger = &Logger{
			out:     os.Stdout,
			level:   INFO,
			enabled: true,
		}
	})
	return globalLogger
}

// InitLogger opens (or switches to) the log file
func InitLogger(logFile string) error {
	if err := os.MkdirAll(filepath.Dir(logFile), 0755); err != nil {
		return fmt.Errorf("failed to create log directory: %w", err)
	}
	file, err := os.OpenFile(logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return fmt.Errorf("failed to open log file: %w", err)
	}

	logger := GetLogger()
	logger.mu.Lock()
	defer logger.mu.Unlock()
	if logger.file != nil {
		logger.file.Close()
	}
	logger.file = file
	return nil
}

// SetOutput replaces the console writer; used by tests and the CLI
func (l *Logger) SetOutput(w io.Writer) {
	root := l.root()
	root.mu.Lock()
	defer root.mu.Unlock()
	root.out = w
}

// SetLogLevel sets the minimum level for logging
func (l *Logger) SetLogLevel(level LogLevel) {
	root := l.root()
	root.mu.Lock()
	defer root.mu.Unlock()
	root.level = level
}

// Enable enables or disables logging
func (l *Logger) Enable(enabled bool) {
	root := l.root()
	root.mu.Lock()
	defer root.mu.Unlock()
	root.enabled = enabled
}

// With returns a child logger that adds fields to every entry
func (l *Logger) With(fields map[string]interface{}) *Logger {
	merged := make(map[string]interface{}, len(l.fields)+len(fields))
	for k, v := range l.fields {
		merged[k] = v
	}
	for k, v := range fields {
		merged[k] = v
	}
	return &Logger{fields: merged, parent: l.root()}
}

func (l *Logger) root() *Logger {
	if l.parent != nil {
		return l.parent
	}
	return l
}

func (l *Logger) log(level LogLevel, message string, fields map[string]interface{}) {
	root := l.root()
	root.mu.Lock()
	defer root.mu.Unlock()
	if !root.enabled || level < root.level {
		return
	}

	caller := "?"
	if pc, file, line, ok := runtime.Caller(2); ok {
		name := ""
		if fn := runtime.FuncForPC(pc); fn != nil {
			name = fn.Name()[strings.LastIndex(fn.Name(), "/")+1:]
		}
		caller = fmt.Sprintf("%s:%d:%s", filepath.Base(file), line, name)
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "[%s] %s %s - %s", level, time.Now().Format("2006-01-02 15:04:05.000"), caller, message)
	writeFields(&sb, l.fields, fields)
	sb.WriteByte('\n')
	entry := sb.String()

	if root.file != nil {
		root.file.WriteString(entry)
	}
	if root.out != nil {
		io.WriteString(root.out, entry)
	}
	if level == FATAL {
		os.Exit(1)
	}
}

// writeFields appends key=value pairs in key order so lines are stable
func writeFields(sb *strings.Builder, sets ...map[string]interface{}) {
	merged := make(map[string]interface{})
	for _, set := range sets {
		for k, v := range set {
			merged[k] = v
		}
	}
	if len(merged) == 0 {
		return
	}
	keys := make([]string, 0, len(merged))
	for k := range merged {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	sb.WriteString(" |")
	for _, k := range keys {
		fmt.Fprintf(sb, " %s=%v", k, merged[k])
	}
}

// Debug logs a debug message
func (l *Logger) Debug(message string, fields map[string]interface{}) {
	l.log(DEBUG, message, fields)
}

// Info logs an info message
func (l *Logger) Info(message string, fields map[string]interface{}) {
	l.log(INFO, message, fields)
}

// Warn logs a warning message
func (l *Logger) Warn(message string, fields map[string]interface{}) {
	l.log(WARNING, message, fields)
}

// Error logs an error message
func (l *Logger) Error(message string, fields map[string]interface{}) {
	l.log(ERROR, message, fields)
}

// Fatal logs a fatal message and exits
func (l *Logger) Fatal(message string, fields map[string]interface{}) {
	l.log(FATAL, message, fields)
}

// Infof logs a formatted info message
func (l *Logger) Infof(format string, args ...interface{}) {
	l.log(INFO, fmt.Sprintf(format, args...), nil)
}

// Warnf logs a formatted warning message
func (l *Logger) Warnf(format string, args ...interface{}) {
	l.log(WARNING, fmt.Sprintf(format, args...), nil)
}

// Errorf logs a formatted error message
func (l *Logger) Errorf(format string, args ...interface{}) {
	l.log(ERROR, fmt.Sprintf(format, args...), nil)
}
