// Package auth owns the ChatGPT OAuth credential lifecycle: the persisted
// credential record, the bootstrap/refresh state machine, and the
// single-flight refresh that all concurrent requests converge on.
package auth

import (
	"encoding/base64"
	"errors"
	"strings"
	"time"

	"github.com/sumeet/opencode-openai-codex-auth/internal/json"
)

// expiryBufferMs is subtracted from the recorded expiry so tokens are
// refreshed before the upstream actually rejects them.
const expiryBufferMs = 60_000

var (
	// ErrRefreshFailed reports that the token-exchange endpoint rejected a
	// refresh attempt.
	ErrRefreshFailed = errors.New("token refresh failed")

	// ErrClaimMissing reports that a fresh access token carried no account
	// identifier claim.
	ErrClaimMissing = errors.New("access token missing account id claim")

	// ErrLoginRequired reports that no usable credentials could be obtained
	// without interactive login.
	ErrLoginRequired = errors.New("authentication required")
)

// Credentials is the persisted credential record. It is replaced wholesale
// on every refresh and never partially mutated.
type Credentials struct {
	AccessToken  string `json:"access"`
	RefreshToken string `json:"refresh"`
	// Expire is the access token expiry as epoch milliseconds.
	Expire int64 `json:"expires"`
	// AccountID is the ChatGPT account the token belongs to, decoded from
	// the access token's claims.
	AccountID string `json:"accountId"`
}

// Valid reports whether the access token is still usable at now, keeping a
// safety buffer before the recorded expiry.
func (c *Credentials) Valid(now time.Time) bool {
	if c == nil || c.AccessToken == "" {
		return false
	}
	return c.Expire-now.UnixMilli() > expiryBufferMs
}

// accountClaims is the JWT payload slice we care about. The ChatGPT account
// id lives under a URL-shaped claim key.
type accountClaims struct {
	Auth struct {
		ChatGPTAccountID string `json:"chatgpt_account_id"`
	} `json:"https://api.openai.com/auth"`
}

// AccountIDFromToken decodes the payload segment of a JWT access token and
// extracts the ChatGPT account id claim. It never validates the signature;
// the token was just handed to us by the issuer.
func AccountIDFromToken(token string) (string, error) {
	parts := strings.Split(token, ".")
	if len(parts) != 3 {
		return "", ErrClaimMissing
	}
	payload, err := base64.RawURLEncoding.DecodeString(parts[1])
	if err != nil {
		return "", ErrClaimMissing
	}
	var claims accountClaims
	if err := json.Unmarshal(payload, &claims); err != nil {
		return "", ErrClaimMissing
	}
	if claims.Auth.ChatGPTAccountID == "" {
		return "", ErrClaimMissing
	}
	return claims.Auth.ChatGPTAccountID, nil
}
