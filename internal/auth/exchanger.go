package auth

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/sumeet/opencode-openai-codex-auth/internal/json"
)

const (
	oauthTokenURL = "https://auth.openai.com/oauth/token"
	oauthClientID = "app_EMoamEEZ73f0CkXaXp7hrann"

	// exchangeTimeout bounds a single token-endpoint call; the endpoint is
	// small and fast, a hung call should not wedge every waiting request.
	exchangeTimeout = 30 * time.Second
)

// OpenAIExchanger talks to the OpenAI OAuth token endpoint. It implements
// TokenExchanger for refresh grants and additionally handles the PKCE
// authorization-code exchange used by the login flow.
type OpenAIExchanger struct {
	httpClient *http.Client
	tokenURL   string
	clientID   string
}

// NewOpenAIExchanger returns an exchanger with production endpoints.
func NewOpenAIExchanger() *OpenAIExchanger {
	return &OpenAIExchanger{
		httpClient: &http.Client{Timeout: exchangeTimeout},
		tokenURL:   oauthTokenURL,
		clientID:   oauthClientID,
	}
}

type tokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	IDToken      string `json:"id_token"`
	ExpiresIn    int64  `json:"expires_in"`
}

// Refresh exchanges a refresh token for a new token set.
func (e *OpenAIExchanger) Refresh(ctx context.Context, refreshToken string) (*TokenSet, error) {
	payload := map[string]string{
		"client_id":     e.clientID,
		"grant_type":    "refresh_token",
		"refresh_token": refreshToken,
		"scope":         "openid profile email",
	}
	tr, err := e.post(ctx, payload)
	if err != nil {
		return nil, err
	}
	return &TokenSet{
		AccessToken:  tr.AccessToken,
		RefreshToken: tr.RefreshToken,
		ExpiresIn:    tr.ExpiresIn,
	}, nil
}

// ExchangeCode trades an authorization code plus PKCE verifier for tokens.
func (e *OpenAIExchanger) ExchangeCode(ctx context.Context, code, redirectURI, verifier string) (*TokenSet, error) {
	payload := map[string]string{
		"client_id":     e.clientID,
		"grant_type":    "authorization_code",
		"code":          code,
		"redirect_uri":  redirectURI,
		"code_verifier": verifier,
	}
	tr, err := e.post(ctx, payload)
	if err != nil {
		return nil, err
	}
	return &TokenSet{
		AccessToken:  tr.AccessToken,
		RefreshToken: tr.RefreshToken,
		ExpiresIn:    tr.ExpiresIn,
	}, nil
}

func (e *OpenAIExchanger) post(ctx context.Context, payload map[string]string) (*tokenResponse, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to encode token request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.tokenURL, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to build token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("token endpoint request failed: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("failed to read token response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("token endpoint returned status %d: %s", resp.StatusCode, data)
	}

	var tr tokenResponse
	if err := json.Unmarshal(data, &tr); err != nil {
		return nil, fmt.Errorf("failed to parse token response: %w", err)
	}
	if tr.AccessToken == "" {
		return nil, fmt.Errorf("token endpoint returned no access token")
	}
	return &tr, nil
}

// AuthorizeURL builds the browser authorization URL for the login flow.
func (e *OpenAIExchanger) AuthorizeURL(redirectURI, state, challenge string) string {
	q := url.Values{}
	q.Set("response_type", "code")
	q.Set("client_id", e.clientID)
	q.Set("redirect_uri", redirectURI)
	q.Set("scope", "openid profile email offline_access")
	q.Set("state", state)
	q.Set("code_challenge", challenge)
	q.Set("code_challenge_method", "S256")
	q.Set("id_token_add_organizations", "true")
	q.Set("codex_cli_simplified_flow", "true")
	return "https://auth.openai.com/oauth/authorize?" + q.Encode()
}
