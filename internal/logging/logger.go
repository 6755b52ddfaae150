package logging

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

type LogLevel int

const (
	DEBUG LogLevel = iota
	INFO
	WARNING
	ERROR
)

var levelNames = [...]string{"DEBUG", "INFO", "WARNING", "ERROR"}

func (l LogLevel) String() string {
	if l < DEBUG || l > ERROR {
		return fmt.Sprintf("LogLevel(%d)", int(l))
	}
	return levelNames[l]
}

// ParseLevel accepts the level names case-insensitively ("warn" is an alias).
func ParseLevel(s string) (LogLevel, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "DEBUG":
		return DEBUG, nil
	case "", "INFO":
		return INFO, nil
	case "WARN", "WARNING":
		return WARNING, nil
	case "ERROR":
		return ERROR, nil
	}
	return INFO, fmt.Errorf("unknown log level %q", s)
}

const (
	maxLogSize      = 10 * 1024 * 1024 // 10MB
	logBufferSize   = 32 * 1024        // 32KB
	maxLogRotations = 5
)

// Logger writes leveled lines to a buffered sink. The zero value discards.
type Logger struct {
	mu     sync.Mutex
	writer *bufio.Writer
	closer io.Closer
	level  LogLevel
}

var (
	globalMu     sync.RWMutex
	globalLogger = &Logger{level: INFO}
)

// DefaultLogPath is where Init writes when no path is configured.
func DefaultLogPath() string {
	return filepath.Join(os.TempDir(), "dupfind-logs", "dupfind.log")
}

// Init opens path for appending (rotating it first when oversized) and makes
// it the package logger. "-" logs to stderr, "" uses DefaultLogPath.
func Init(path string, level LogLevel) error {
	if path == "-" {
		SetOutput(os.Stderr, level)
		return nil
	}
	if path == "" {
		path = DefaultLogPath()
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create log directory: %w", err)
	}
	rotateLogFile(path)

	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return fmt.Errorf("failed to open log file: %w", err)
	}

	l := &Logger{
		writer: bufio.NewWriterSize(file, logBufferSize),
		closer: file,
		level:  level,
	}
	fmt.Fprintf(l.writer, "\n=== Log started at %s ===\n", time.Now().Format("2006-01-02 15:04:05"))
	swap(l)
	return nil
}

// SetOutput replaces the package logger with one writing to w. The caller
// keeps ownership of w.
func SetOutput(w io.Writer, level LogLevel) {
	swap(&Logger{
		writer: bufio.NewWriterSize(w, logBufferSize),
		level:  level,
	})
}

func swap(l *Logger) {
	globalMu.Lock()
	old := globalLogger
	globalLogger = l
	globalMu.Unlock()
	if err := old.Close(); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to close logger: %v\n", err)
	}
}

func current() *Logger {
	globalMu.RLock()
	defer globalMu.RUnlock()
	return globalLogger
}

// rotateLogFile shifts path -> path.1 -> ... -> path.N once path exceeds maxLogSize.
func rotateLogFile(logPath string) {
	fi, err := os.Stat(logPath)
	if err != nil || fi.Size() <= maxLogSize {
		return
	}
	for i := maxLogRotations - 1; i > 0; i-- {
		oldPath := fmt.Sprintf("%s.%d", logPath, i)
		newPath := fmt.Sprintf("%s.%d", logPath, i+1)
		os.Rename(oldPath, newPath)
	}
	os.Rename(logPath, logPath+".1")
}

func (l *Logger) logf(level LogLevel, format string, args ...interface{}) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.writer == nil || level < l.level {
		return
	}
	timestamp := time.Now().Format("2006-01-02 15:04:05.000")
	fmt.Fprintf(l.writer, "%s [%s] "+format+"\n", append([]interface{}{timestamp, level}, args...)...)
	// errors are flushed immediately so a crash never loses them
	if level >= ERROR {
		l.writer.Flush()
	}
}

// Flush writes out any buffered lines.
func (l *Logger) Flush() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.writer == nil {
		return nil
	}
	return l.writer.Flush()
}

// Close flushes and releases the underlying file, if the logger owns one.
func (l *Logger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.writer != nil {
		if err := l.writer.Flush(); err != nil {
			return fmt.Errorf("failed to flush log buffer: %w", err)
		}
		l.writer = nil
	}
	if l.closer != nil {
		err := l.closer.Close()
		l.closer = nil
		if err != nil {
			return fmt.Errorf("failed to close log file: %w", err)
		}
	}
	return nil
}

func Flush() error {
	return current().Flush()
}

// Close flushes and closes the package logger; later calls are discarded.
func Close() {
	swap(&Logger{level: INFO})
}

func Debug(format string, args ...interface{}) {
	current().logf(DEBUG, format, args...)
}

func Info(format string, args ...interface{}) {
	current().logf(INFO, format, args...)
}

func Warning(format string, args ...interface{}) {
	current().logf(WARNING, format, args...)
}

func Error(format string, args ...interface{}) {
	current().logf(ERROR, format, args...)
}
