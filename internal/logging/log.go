// Package logging provides the shared logger for the proxy. It is built on
// log/slog with a compact bracketed text handler and exposes a small
// printf-style API so call sites stay terse.
package logging

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"runtime"
	"sync"
	"time"
)

var (
	defaultLogger *slog.Logger
	logLevel      = new(slog.LevelVar)
	outputMu      sync.Mutex
	initOnce      sync.Once
	nowFunc       = time.Now
)

// Fields is a map of structured attributes attached to a log entry.
type Fields map[string]any

func init() {
	initOnce.Do(func() {
		logLevel.Set(slog.LevelInfo)
		defaultLogger = slog.New(NewTextHandler(os.Stdout, logLevel))
	})
}

// SetOutput redirects all subsequent log output to w.
func SetOutput(w io.Writer) {
	outputMu.Lock()
	defer outputMu.Unlock()
	defaultLogger = slog.New(NewTextHandler(w, logLevel))
}

// SetLevel sets the minimum level that will be emitted.
func SetLevel(level slog.Level) {
	logLevel.Set(level)
}

// GetLevel returns the current minimum level.
func GetLevel() slog.Level {
	return logLevel.Level()
}

func Debug(msg string)                  { logAt(slog.LevelDebug, msg, nil) }
func Debugf(format string, args ...any) { logAt(slog.LevelDebug, fmt.Sprintf(format, args...), nil) }
func Info(msg string)                   { logAt(slog.LevelInfo, msg, nil) }
func Infof(format string, args ...any)  { logAt(slog.LevelInfo, fmt.Sprintf(format, args...), nil) }
func Warn(msg string)                   { logAt(slog.LevelWarn, msg, nil) }
func Warnf(format string, args ...any)  { logAt(slog.LevelWarn, fmt.Sprintf(format, args...), nil) }
func Error(msg string)                  { logAt(slog.LevelError, msg, nil) }
func Errorf(format string, args ...any) { logAt(slog.LevelError, fmt.Sprintf(format, args...), nil) }

// Fatal logs at error level and exits the process.
func Fatal(msg string) {
	logAt(slog.LevelError, msg, nil)
	os.Exit(1)
}

// Fatalf logs a formatted message at error level and exits the process.
func Fatalf(format string, args ...any) {
	logAt(slog.LevelError, fmt.Sprintf(format, args...), nil)
	os.Exit(1)
}

func logAt(level slog.Level, msg string, attrs []slog.Attr) {
	if !defaultLogger.Enabled(context.Background(), level) {
		return
	}

	var pcs [1]uintptr
	runtime.Callers(3, pcs[:])

	r := slog.NewRecord(nowFunc(), level, msg, pcs[0])
	if len(attrs) > 0 {
		r.AddAttrs(attrs...)
	}
	_ = defaultLogger.Handler().Handle(context.Background(), r)
}

// Entry accumulates structured attributes before emitting a record.
type Entry struct {
	attrs []slog.Attr
}

// WithError starts an entry carrying err under the "error" key.
func WithError(err error) *Entry {
	return &Entry{attrs: []slog.Attr{slog.Any("error", err)}}
}

// WithField starts an entry carrying a single attribute.
func WithField(key string, value any) *Entry {
	return &Entry{attrs: []slog.Attr{slog.Any(key, value)}}
}

// WithFields starts an entry carrying every attribute in fields.
func WithFields(fields Fields) *Entry {
	attrs := make([]slog.Attr, 0, len(fields))
	for k, v := range fields {
		attrs = append(attrs, slog.Any(k, v))
	}
	return &Entry{attrs: attrs}
}

// WithField returns a new entry so scoped entries can be shared safely.
func (e *Entry) WithField(key string, value any) *Entry {
	return e.extend(slog.Any(key, value))
}

func (e *Entry) WithError(err error) *Entry {
	return e.extend(slog.Any("error", err))
}

func (e *Entry) WithFields(fields Fields) *Entry {
	attrs := make([]slog.Attr, len(e.attrs), len(e.attrs)+len(fields))
	copy(attrs, e.attrs)
	for k, v := range fields {
		attrs = append(attrs, slog.Any(k, v))
	}
	return &Entry{attrs: attrs}
}

func (e *Entry) extend(attr slog.Attr) *Entry {
	attrs := make([]slog.Attr, len(e.attrs), len(e.attrs)+1)
	copy(attrs, e.attrs)
	return &Entry{attrs: append(attrs, attr)}
}

func (e *Entry) Debug(msg string)                  { e.logAt(slog.LevelDebug, msg) }
func (e *Entry) Debugf(format string, args ...any) { e.logAt(slog.LevelDebug, fmt.Sprintf(format, args...)) }
func (e *Entry) Info(msg string)                   { e.logAt(slog.LevelInfo, msg) }
func (e *Entry) Infof(format string, args ...any)  { e.logAt(slog.LevelInfo, fmt.Sprintf(format, args...)) }
func (e *Entry) Warn(msg string)                   { e.logAt(slog.LevelWarn, msg) }
func (e *Entry) Warnf(format string, args ...any)  { e.logAt(slog.LevelWarn, fmt.Sprintf(format, args...)) }
func (e *Entry) Error(msg string)                  { e.logAt(slog.LevelError, msg) }
func (e *Entry) Errorf(format string, args ...any) { e.logAt(slog.LevelError, fmt.Sprintf(format, args...)) }

func (e *Entry) logAt(level slog.Level, msg string) {
	if !defaultLogger.Enabled(context.Background(), level) {
		return
	}

	var pcs [1]uintptr
	runtime.Callers(3, pcs[:])

	r := slog.NewRecord(nowFunc(), level, msg, pcs[0])
	r.AddAttrs(e.attrs...)
	_ = defaultLogger.Handler().Handle(context.Background(), r)
}
