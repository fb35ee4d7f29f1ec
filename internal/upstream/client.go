// Package upstream issues requests to the ChatGPT Codex Responses backend.
package upstream

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/sumeet/opencode-openai-codex-auth/internal/auth"
	"github.com/sumeet/opencode-openai-codex-auth/internal/config"
	"github.com/sumeet/opencode-openai-codex-auth/internal/logging"
)

const (
	backendPrefix = "/backend-api/codex"
	responsesPath = "/responses"

	userAgent     = "codex_cli_rs/1.104.1 (Mac OS 26.0.1; arm64) Apple_Terminal/464"
	clientVersion = "0.21.0"
)

// Client calls the Codex backend with fresh credentials supplied per call.
type Client struct {
	baseURL    string
	httpClient *http.Client
	log        *logging.Entry
}

// NewClient builds a Client from cfg. The HTTP client carries no overall
// timeout by default so long streams are not cut off; CODEX_UPSTREAM_TIMEOUT
// opts into one.
func NewClient(cfg *config.Config) *Client {
	return &Client{
		baseURL:    strings.TrimRight(cfg.UpstreamBaseURL, "/"),
		httpClient: &http.Client{Timeout: cfg.UpstreamTimeout},
		log:        logging.WithField("component", "upstream"),
	}
}

// NormalizePath strips the OpenAI version prefix from an inbound path
// (/v1/x → /x, bare /v1 → /) and maps an empty or root path to /responses.
// Anything else passes through unchanged; the route check decides whether
// the result is servable.
func NormalizePath(p string) string {
	switch {
	case p == "/v1" || p == "/v1/":
		return "/"
	case strings.HasPrefix(p, "/v1/"):
		return strings.TrimPrefix(p, "/v1")
	case p == "" || p == "/":
		return responsesPath
	default:
		return p
	}
}

// InBackendNamespace reports whether p already addresses the backend's own
// namespace and must be used as-is rather than rewritten under it.
func InBackendNamespace(p string) bool {
	return p == backendPrefix || strings.HasPrefix(p, backendPrefix+"/")
}

// Hints are best-effort correlation headers attached to the upstream call.
type Hints struct {
	Model    string
	CacheKey string
}

// Do posts body to the backend path for p and returns the raw response. The
// caller owns the response body.
func (c *Client) Do(ctx context.Context, p string, body []byte, creds *auth.Credentials, hints Hints) (*http.Response, error) {
	p = NormalizePath(p)
	if !InBackendNamespace(p) {
		p = backendPrefix + p
	}
	url := c.baseURL + p

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to build upstream request: %w", err)
	}
	c.applyHeaders(req, creds)
	if hints.Model != "" {
		req.Header.Set("X-Model", hints.Model)
	}
	if hints.CacheKey != "" {
		req.Header.Set("X-Prompt-Cache-Key", hints.CacheKey)
	}

	c.log.WithField("url", url).Debug("calling upstream")
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("upstream request failed: %w", err)
	}
	return resp, nil
}

func (c *Client) applyHeaders(r *http.Request, creds *auth.Credentials) {
	r.Header.Set("Content-Type", "application/json")
	r.Header.Set("Authorization", "Bearer "+creds.AccessToken)
	if creds.AccountID != "" {
		r.Header.Set("Chatgpt-Account-Id", creds.AccountID)
	}
	r.Header.Set("Openai-Beta", "responses=experimental")
	r.Header.Set("Originator", "codex_cli_rs")
	r.Header.Set("Version", clientVersion)
	r.Header.Set("User-Agent", userAgent)
	r.Header.Set("Session_id", uuid.NewString())
	r.Header.Set("Accept", "text/event-stream")
	r.Header.Set("Connection", "Keep-Alive")
}
