// Package errorlog records failures as single timestamped lines in an
// append-only text file.
package errorlog

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
	"syscall"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

const (
	// DefaultPath is relative to the working directory.
	DefaultPath = "error_log.txt"

	// TimeLayout is the timestamp written at the start of every line.
	TimeLayout = "2006-01-02 15:04:05.000000"
)

// Severity of a recorded message.
type Severity int8

const (
	SeverityInfo Severity = iota
	SeverityWarning
	SeverityError
)

func (s Severity) String() string {
	switch s {
	case SeverityInfo:
		return "info"
	case SeverityWarning:
		return "warning"
	case SeverityError:
		return "error"
	default:
		return fmt.Sprintf("severity(%d)", int8(s))
	}
}

func (s Severity) level() zapcore.Level {
	switch s {
	case SeverityInfo:
		return zapcore.InfoLevel
	case SeverityWarning:
		return zapcore.WarnLevel
	default:
		return zapcore.ErrorLevel
	}
}

// Recorder receives failure messages.
type Recorder interface {
	Record(severity Severity, message string) error
}

// File appends "<timestamp>: <message>" lines to a file. The file is opened
// on the first Record, so a run that never fails never touches it.
type File struct {
	path string

	mu     sync.Mutex
	f      *os.File
	logger *zap.Logger
}

// NewFile returns a recorder appending to path.
func NewFile(path string) *File {
	if path == "" {
		path = DefaultPath
	}
	return &File{path: path}
}

// Path returns the log file path.
func (l *File) Path() string {
	return l.path
}

// Record appends one line. Line breaks inside message are flattened so that
// every record stays on a single line.
func (l *File) Record(severity Severity, message string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.logger == nil {
		if err := l.open(); err != nil {
			return err
		}
	}

	l.logger.Log(severity.level(), flatten(message))
	if err := syncErr(l.logger.Sync()); err != nil {
		return fmt.Errorf("failed to write error log %q: %w", l.path, err)
	}

	return nil
}

func (l *File) open() error {
	f, err := os.OpenFile(l.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("failed to open error log %q: %w", l.path, err)
	}

	encoder := zapcore.NewConsoleEncoder(zapcore.EncoderConfig{
		TimeKey:          "ts",
		MessageKey:       "msg",
		LineEnding:       zapcore.DefaultLineEnding,
		EncodeTime:       zapcore.TimeEncoderOfLayout(TimeLayout),
		EncodeDuration:   zapcore.StringDurationEncoder,
		ConsoleSeparator: ": ",
	})
	core := zapcore.NewCore(encoder, zapcore.AddSync(f), zapcore.DebugLevel)

	l.f = f
	l.logger = zap.New(core)
	return nil
}

// Close releases the file if it was opened.
func (l *File) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.f == nil {
		return nil
	}

	l.logger.Sync()
	err := l.f.Close()
	l.f = nil
	l.logger = nil
	return err
}

// syncErr drops the errors returned when syncing a file that cannot be
// synced, such as /dev/stderr or a pipe. The line is already written then.
func syncErr(err error) error {
	if errors.Is(err, syscall.EINVAL) || errors.Is(err, syscall.ENOTSUP) {
		return nil
	}
	return err
}

func flatten(message string) string {
	message = strings.ReplaceAll(message, "\r\n", " ")
	return strings.Map(func(r rune) rune {
		if r == '\n' || r == '\r' {
			return ' '
		}
		return r
	}, message)
}

// Entry is one message kept by Memory.
type Entry struct {
	Severity Severity
	Message  string
}

// Memory keeps recorded messages in memory.
type Memory struct {
	mu      sync.Mutex
	entries []Entry
}

func (m *Memory) Record(severity Severity, message string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.entries = append(m.entries, Entry{Severity: severity, Message: message})
	return nil
}

// Entries returns a copy of the recorded messages.
func (m *Memory) Entries() []Entry {
	m.mu.Lock()
	defer m.mu.Unlock()

	return append([]Entry(nil), m.entries...)
}
