package stream

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"testing"
)

const sampleStream = `event: response.created
data: {"type":"response.created","response":{"id":"r1"}}

event: response.output_text.delta
data: {"type":"response.output_text.delta","delta":"hel"}

event: response.output_text.delta
data: {"type":"response.output_text.delta","delta":"lo"}

event: response.completed
data: {"type":"response.completed","response":{"id":"r1","output":[{"type":"message","content":[{"type":"output_text","text":"hello"}]}]}}

data: [DONE]
`

func TestConsolidateExtractsTerminalResponse(t *testing.T) {
	doc, raw, err := Consolidate(context.Background(), strings.NewReader(sampleStream))
	if err != nil {
		t.Fatalf("Consolidate: %v", err)
	}
	want := `{"id":"r1","output":[{"type":"message","content":[{"type":"output_text","text":"hello"}]}]}`
	if string(doc) != want {
		t.Errorf("doc = %s, want %s", doc, want)
	}
	if string(raw) != sampleStream {
		t.Error("raw bytes do not match the original stream")
	}
}

func TestConsolidateNoTerminalEvent(t *testing.T) {
	in := "data: {\"type\":\"response.output_text.delta\",\"delta\":\"x\"}\n\ndata: [DONE]\n"
	doc, raw, err := Consolidate(context.Background(), strings.NewReader(in))
	if !errors.Is(err, ErrNoTerminalEvent) {
		t.Fatalf("err = %v, want ErrNoTerminalEvent", err)
	}
	if doc != nil {
		t.Errorf("doc = %s, want nil", doc)
	}
	if string(raw) != in {
		t.Error("raw fallback bytes do not match input")
	}
}

func TestConsolidateIgnoresCommentsAndEvents(t *testing.T) {
	in := ": keepalive\nevent: ping\n\ndata: {\"type\":\"response.completed\",\"response\":{\"id\":\"r2\"}}\n"
	doc, _, err := Consolidate(context.Background(), strings.NewReader(in))
	if err != nil {
		t.Fatalf("Consolidate: %v", err)
	}
	if string(doc) != `{"id":"r2"}` {
		t.Errorf("doc = %s", doc)
	}
}

type flushRecorder struct {
	bytes.Buffer
	flushes int
}

func (f *flushRecorder) Flush() { f.flushes++ }

func TestRelayCopiesAndFlushes(t *testing.T) {
	var out flushRecorder
	n, err := Relay(context.Background(), strings.NewReader(sampleStream), &out)
	if err != nil {
		t.Fatalf("Relay: %v", err)
	}
	if n != int64(len(sampleStream)) {
		t.Errorf("wrote %d bytes, want %d", n, len(sampleStream))
	}
	if out.String() != sampleStream {
		t.Error("relayed bytes differ from input")
	}
	if out.flushes == 0 {
		t.Error("no flushes recorded")
	}
}

func TestRelayStopsOnWriteError(t *testing.T) {
	src := strings.NewReader(sampleStream)
	_, err := Relay(context.Background(), src, failWriter{})
	if err == nil {
		t.Fatal("want write error")
	}
}

type failWriter struct{}

func (failWriter) Write([]byte) (int, error) { return 0, io.ErrClosedPipe }
