// Package stream converts upstream SSE responses into what the caller asked
// for: a byte-faithful relay when the caller wanted a stream, or a single
// consolidated JSON document when it wanted a plain response.
package stream

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"

	"github.com/tidwall/gjson"

	"github.com/sumeet/opencode-openai-codex-auth/internal/logging"
)

// maxScanBuffer bounds a single SSE line. Large tool-call outputs arrive as
// one line, so this is generous.
const maxScanBuffer = 20 * 1024 * 1024

// initialScanBuffer is the starting scanner allocation.
const initialScanBuffer = 64 * 1024

// terminalEvent carries the complete response document in its "response"
// field. Everything before it is incremental.
const terminalEvent = "response.completed"

// ErrNoTerminalEvent reports a stream that ended without a terminal event.
// The raw bytes returned alongside it are still usable as a fallback body.
var ErrNoTerminalEvent = errors.New("stream ended without a completed response event")

// Relay copies the upstream stream to w byte-for-byte, flushing after every
// read so events reach the client as they arrive. It returns the number of
// bytes written; a write error means the client is gone.
func Relay(ctx context.Context, r io.Reader, w io.Writer) (int64, error) {
	flusher, _ := w.(http.Flusher)
	buf := make([]byte, 32*1024)
	var written int64

	for {
		if err := ctx.Err(); err != nil {
			return written, err
		}
		n, readErr := r.Read(buf)
		if n > 0 {
			wn, writeErr := w.Write(buf[:n])
			written += int64(wn)
			if writeErr != nil {
				return written, writeErr
			}
			if flusher != nil {
				flusher.Flush()
			}
		}
		if readErr != nil {
			if readErr == io.EOF {
				return written, nil
			}
			return written, readErr
		}
	}
}

// Consolidate reads the whole SSE stream and returns the response document
// from the terminal event. On failure it returns the accumulated raw bytes
// with a non-nil error so the caller can fall back to relaying them.
func Consolidate(ctx context.Context, r io.Reader) (doc []byte, raw []byte, err error) {
	var rawBuf bytes.Buffer

	scanner := bufio.NewScanner(io.TeeReader(r, &rawBuf))
	scanner.Buffer(make([]byte, initialScanBuffer), maxScanBuffer)

	for scanner.Scan() {
		select {
		case <-ctx.Done():
			return nil, rawBuf.Bytes(), ctx.Err()
		default:
		}

		payload := ssePayload(scanner.Bytes())
		if payload == nil {
			continue
		}
		parsed := gjson.ParseBytes(payload)
		if parsed.Get("type").String() != terminalEvent {
			continue
		}
		response := parsed.Get("response")
		if !response.Exists() || !gjson.Valid(response.Raw) {
			logging.Warn("terminal event carries no usable response document")
			continue
		}
		doc = []byte(response.Raw)
	}

	if scanErr := scanner.Err(); scanErr != nil {
		return nil, rawBuf.Bytes(), scanErr
	}
	if doc == nil {
		return nil, rawBuf.Bytes(), ErrNoTerminalEvent
	}
	return doc, rawBuf.Bytes(), nil
}

// ssePayload extracts the JSON payload from an SSE line. Comments, event
// names, and blank lines yield nil.
func ssePayload(line []byte) []byte {
	trimmed := bytes.TrimSpace(line)
	if len(trimmed) == 0 || trimmed[0] == ':' {
		return nil
	}
	if !bytes.HasPrefix(trimmed, []byte("data:")) {
		return nil
	}
	payload := bytes.TrimSpace(trimmed[len("data:"):])
	if len(payload) == 0 || bytes.Equal(payload, []byte("[DONE]")) {
		return nil
	}
	return payload
}
