package errlog

import (
	"bufio"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/sumeet/opencode-openai-codex-auth/internal/json"
)

func TestRecordAppendsJSONLines(t *testing.T) {
	path := filepath.Join(t.TempDir(), "error.log")
	l := New(path)
	defer l.Close()

	l.Record(Entry{TraceID: "t1", URL: "/responses", Status: 429, StatusText: "Too Many Requests", Model: "gpt-5", ResponseBody: `{"error":"rate"}`})
	l.Record(Entry{TraceID: "t2", URL: "/responses", Status: 500, HasTools: true})

	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("open log: %v", err)
	}
	defer f.Close()

	var entries []Entry
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		var e Entry
		if err := json.Unmarshal(scanner.Bytes(), &e); err != nil {
			t.Fatalf("bad line %q: %v", scanner.Text(), err)
		}
		entries = append(entries, e)
	}
	if len(entries) != 2 {
		t.Fatalf("got %d entries, want 2", len(entries))
	}
	if entries[0].Status != 429 || entries[0].TraceID != "t1" {
		t.Errorf("first entry = %+v", entries[0])
	}
	if entries[0].Time.IsZero() {
		t.Error("first entry missing timestamp")
	}
	if !entries[1].HasTools {
		t.Error("second entry lost hasTools")
	}
}

func TestRecordTruncatesLargeBodies(t *testing.T) {
	path := filepath.Join(t.TempDir(), "error.log")
	l := New(path)
	defer l.Close()

	l.Record(Entry{TraceID: "big", Status: 502, ResponseBody: strings.Repeat("x", maxBodyBytes*2)})

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log: %v", err)
	}
	var e Entry
	if err := json.Unmarshal(data[:len(data)-1], &e); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(e.ResponseBody) != maxBodyBytes {
		t.Errorf("body length = %d, want %d", len(e.ResponseBody), maxBodyBytes)
	}
}

func TestNilLoggerIsSafe(t *testing.T) {
	var l *Logger
	l.Record(Entry{Status: 500})
	if err := l.Close(); err != nil {
		t.Errorf("Close on nil: %v", err)
	}
}
