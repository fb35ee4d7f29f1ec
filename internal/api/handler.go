package api

import (
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/sumeet/opencode-openai-codex-auth/internal/auth"
	"github.com/sumeet/opencode-openai-codex-auth/internal/errlog"
	"github.com/sumeet/opencode-openai-codex-auth/internal/json"
	"github.com/sumeet/opencode-openai-codex-auth/internal/logging"
	"github.com/sumeet/opencode-openai-codex-auth/internal/stream"
	"github.com/sumeet/opencode-openai-codex-auth/internal/transform"
	"github.com/sumeet/opencode-openai-codex-auth/internal/upstream"
)

// hopHeaders are not forwarded between upstream and caller.
var hopHeaders = []string{"Connection", "Keep-Alive", "Transfer-Encoding", "Te", "Trailer", "Upgrade", "Proxy-Authorization", "Proxy-Connection"}

// backendRoute resolves an inbound path to the upstream route. Bare and
// /v1-prefixed Responses paths map to /responses; paths already inside the
// backend's own namespace are used as-is. Anything else is unroutable.
func backendRoute(p string) (string, bool) {
	p = upstream.NormalizePath(p)
	if p == "/" {
		p = "/responses"
	}
	switch {
	case p == "/responses", strings.HasPrefix(p, "/responses/"):
		return p, true
	case upstream.InBackendNamespace(p):
		return p, true
	}
	return "", false
}

// handleProxy runs the full pipeline for one call: route check, body
// validation, credentials, transform, upstream call, response forwarding.
func (s *Server) handleProxy(c *gin.Context) {
	path, ok := backendRoute(c.Param("path"))
	if !ok {
		writeStatusError(c, errNotFound)
		return
	}

	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		s.log.WithError(err).Error("failed to read request body")
		writeStatusError(c, errInternal)
		return
	}
	if len(body) == 0 {
		writeStatusError(c, errEmptyBody)
		return
	}
	var probe any
	if err := json.Unmarshal(body, &probe); err != nil {
		writeStatusError(c, badRequest(err.Error()))
		return
	}

	ctx := c.Request.Context()
	creds, err := s.creds.EnsureFresh(ctx)
	if err != nil {
		if errors.Is(err, auth.ErrLoginRequired) {
			s.log.Warn("no credentials available, run the proxy with --login first")
		} else {
			s.log.WithError(err).Warn("credential acquisition failed")
		}
		writeStatusError(c, errAuthRequired)
		return
	}

	base := ""
	if !s.cfg.DisableInstructions && s.instructions != nil {
		base = s.instructions.Get(ctx)
	}
	out, state := transform.Transform(body, s.cfg, base)

	traceID := uuid.NewString()
	if s.cfg.Verbose {
		s.log.WithFields(map[string]any{
			"trace": traceID,
			"model": state.Model,
			"body":  preview(out, s.cfg.PreviewHead, s.cfg.PreviewTail, s.cfg.LogSeparator),
		}).Debug("forwarding request")
	}

	resp, err := s.caller.Do(ctx, path, out, creds, upstream.Hints{Model: state.Model, CacheKey: state.CacheKey})
	if err != nil {
		s.log.WithError(err).WithField("trace", traceID).Error("upstream call failed")
		writeStatusError(c, errInternal)
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		s.forwardUpstreamError(c, resp, traceID, state, len(out))
		return
	}

	if state.WantStream && !s.cfg.ForceJSON {
		s.relayStream(c, resp)
		return
	}
	s.consolidate(c, resp, traceID)
}

// forwardUpstreamError passes a non-2xx upstream response to the caller
// unchanged and records it locally.
func (s *Server) forwardUpstreamError(c *gin.Context, resp *http.Response, traceID string, state transform.RequestState, bodyLen int) {
	upstreamBody, readErr := io.ReadAll(resp.Body)
	if readErr != nil {
		logging.WithError(readErr).Warn("failed to read upstream error body")
	}

	s.errors.Record(errlog.Entry{
		TraceID:      traceID,
		URL:          c.Request.URL.Path,
		Status:       resp.StatusCode,
		StatusText:   http.StatusText(resp.StatusCode),
		Model:        state.Model,
		HasTools:     state.HasTools,
		BodyLength:   bodyLen,
		ResponseBody: string(upstreamBody),
	})
	s.log.WithFields(map[string]any{
		"trace":  traceID,
		"status": resp.StatusCode,
		"model":  state.Model,
	}).Warn("upstream returned an error")

	copyHeaders(c.Writer.Header(), resp.Header)
	c.Status(resp.StatusCode)
	if len(upstreamBody) > 0 {
		_, _ = c.Writer.Write(upstreamBody)
	}
}

// relayStream forwards the upstream SSE stream byte-for-byte.
func (s *Server) relayStream(c *gin.Context, resp *http.Response) {
	copyHeaders(c.Writer.Header(), resp.Header)
	c.Status(resp.StatusCode)
	if _, err := stream.Relay(c.Request.Context(), resp.Body, c.Writer); err != nil {
		// Headers are out; all we can do is stop writing.
		s.log.WithError(err).Debug("stream relay ended early")
		c.Abort()
	}
}

// consolidate converts the upstream stream into one JSON document, falling
// back to relaying the raw bytes if no terminal event arrives.
func (s *Server) consolidate(c *gin.Context, resp *http.Response, traceID string) {
	ctx := c.Request.Context()
	doc, raw, err := stream.Consolidate(ctx, resp.Body)
	if err != nil {
		s.log.WithError(err).WithField("trace", traceID).Warn("consolidation failed, relaying raw stream")
		contentType := resp.Header.Get("Content-Type")
		if contentType == "" {
			contentType = "application/octet-stream"
		}
		c.Header("Content-Type", contentType)
		c.Status(resp.StatusCode)
		if len(raw) > 0 {
			if _, writeErr := c.Writer.Write(raw); writeErr != nil {
				c.Abort()
				return
			}
		}
		// A scan error leaves bytes the consolidation never consumed; they
		// belong to the client too.
		if _, relayErr := stream.Relay(ctx, resp.Body, c.Writer); relayErr != nil {
			s.log.WithError(relayErr).Debug("raw relay ended early")
			c.Abort()
		}
		return
	}
	c.Data(resp.StatusCode, "application/json", doc)
}

func copyHeaders(dst, src http.Header) {
	for name, values := range src {
		if isHopHeader(name) {
			continue
		}
		for _, v := range values {
			dst.Add(name, v)
		}
	}
}

func isHopHeader(name string) bool {
	for _, h := range hopHeaders {
		if http.CanonicalHeaderKey(name) == h {
			return true
		}
	}
	return false
}
