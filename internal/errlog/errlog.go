// Package errlog appends one JSON line per upstream error response to a
// rotating local file. It exists for postmortem debugging of a single-user
// proxy; failures to write are logged and otherwise ignored.
package errlog

import (
	"sync"
	"time"

	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/sumeet/opencode-openai-codex-auth/internal/json"
	"github.com/sumeet/opencode-openai-codex-auth/internal/logging"
)

// maxBodyBytes caps the captured upstream body per entry.
const maxBodyBytes = 8000

// Entry is one recorded upstream failure.
type Entry struct {
	Time         time.Time `json:"time"`
	TraceID      string    `json:"traceId"`
	URL          string    `json:"url"`
	Status       int       `json:"status"`
	StatusText   string    `json:"statusText,omitempty"`
	Model        string    `json:"model,omitempty"`
	HasTools     bool      `json:"hasTools"`
	BodyLength   int       `json:"bodyLength"`
	ResponseBody string    `json:"responseBody,omitempty"`
}

// Logger writes entries to a size-rotated file.
type Logger struct {
	mu  sync.Mutex
	out *lumberjack.Logger
	now func() time.Time
}

// New returns a Logger writing to path. The file is created lazily on the
// first entry.
func New(path string) *Logger {
	return &Logger{
		out: &lumberjack.Logger{
			Filename:   path,
			MaxSize:    10, // megabytes
			MaxBackups: 3,
			MaxAge:     30, // days
			Compress:   true,
		},
		now: time.Now,
	}
}

// Record appends e as one JSON line. The upstream body is truncated to keep
// entries bounded.
func (l *Logger) Record(e Entry) {
	if l == nil {
		return
	}
	if e.Time.IsZero() {
		e.Time = l.now()
	}
	if len(e.ResponseBody) > maxBodyBytes {
		e.ResponseBody = e.ResponseBody[:maxBodyBytes]
	}

	line, err := json.Marshal(e)
	if err != nil {
		logging.WithError(err).Warn("failed to encode error log entry")
		return
	}
	line = append(line, '\n')

	l.mu.Lock()
	defer l.mu.Unlock()
	if _, err := l.out.Write(line); err != nil {
		logging.WithError(err).Warn("failed to write error log entry")
	}
}

// Close releases the underlying file.
func (l *Logger) Close() error {
	if l == nil {
		return nil
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.out.Close()
}
