package auth

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/skratchdot/open-golang/open"

	log "github.com/sumeet/opencode-openai-codex-auth/internal/logging"
)

const (
	// callbackPort is registered with the OAuth provider and cannot change.
	callbackPort = 1455
	callbackPath = "/auth/callback"

	loginTimeout = 5 * time.Minute
)

// BrowserLogin implements LoginFlow with the standard PKCE consent flow: a
// localhost redirect listener plus the system browser.
type BrowserLogin struct {
	exchange  *OpenAIExchanger
	NoBrowser bool
	now       func() time.Time
}

// NewBrowserLogin builds the interactive login flow around the given
// exchanger.
func NewBrowserLogin(exchange *OpenAIExchanger) *BrowserLogin {
	return &BrowserLogin{exchange: exchange, now: time.Now}
}

type callbackResult struct {
	code  string
	state string
	err   string
}

// Login runs the consent flow and returns a complete credential record.
func (b *BrowserLogin) Login(ctx context.Context) (*Credentials, error) {
	verifier, challenge, err := generatePKCE()
	if err != nil {
		return nil, fmt.Errorf("pkce generation failed: %w", err)
	}
	state, err := randomState()
	if err != nil {
		return nil, fmt.Errorf("state generation failed: %w", err)
	}

	redirectURI := fmt.Sprintf("http://localhost:%d%s", callbackPort, callbackPath)
	results := make(chan callbackResult, 1)

	listener, err := net.Listen("tcp", fmt.Sprintf("127.0.0.1:%d", callbackPort))
	if err != nil {
		return nil, fmt.Errorf("failed to listen on callback port %d: %w", callbackPort, err)
	}
	mux := http.NewServeMux()
	mux.HandleFunc(callbackPath, func(w http.ResponseWriter, r *http.Request) {
		res := callbackResult{
			code:  r.URL.Query().Get("code"),
			state: r.URL.Query().Get("state"),
			err:   r.URL.Query().Get("error"),
		}
		select {
		case results <- res:
		default:
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		if res.err != "" {
			fmt.Fprintf(w, "<html><body><h2>Authentication failed</h2><p>%s</p></body></html>", res.err)
			return
		}
		fmt.Fprint(w, "<html><body><h2>Authentication successful</h2><p>You can close this window.</p></body></html>")
	})
	server := &http.Server{Handler: mux}
	go func() {
		if errServe := server.Serve(listener); errServe != nil && errServe != http.ErrServerClosed {
			log.Warnf("oauth callback server error: %v", errServe)
		}
	}()
	defer func() {
		stopCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = server.Shutdown(stopCtx)
	}()

	authURL := b.exchange.AuthorizeURL(redirectURI, state, challenge)
	if b.NoBrowser {
		fmt.Printf("Visit the following URL to continue authentication:\n%s\n", authURL)
	} else if err := open.Run(authURL); err != nil {
		log.Warnf("failed to open browser automatically: %v", err)
		fmt.Printf("Visit the following URL to continue authentication:\n%s\n", authURL)
	} else {
		fmt.Println("Opening browser for ChatGPT authentication")
	}
	fmt.Println("Waiting for authentication callback...")

	var res callbackResult
	select {
	case res = <-results:
	case <-time.After(loginTimeout):
		return nil, fmt.Errorf("login timed out after %v", loginTimeout)
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	if res.err != "" {
		return nil, fmt.Errorf("authorization failed: %s", res.err)
	}
	if res.state != state {
		return nil, fmt.Errorf("state mismatch in authorization callback")
	}
	log.Debug("authorization code received, exchanging for tokens")

	ts, err := b.exchange.ExchangeCode(ctx, res.code, redirectURI, verifier)
	if err != nil {
		return nil, fmt.Errorf("code exchange failed: %w", err)
	}
	accountID, err := AccountIDFromToken(ts.AccessToken)
	if err != nil {
		return nil, err
	}

	return &Credentials{
		AccessToken:  ts.AccessToken,
		RefreshToken: ts.RefreshToken,
		Expire:       b.now().UnixMilli() + ts.ExpiresIn*1000,
		AccountID:    accountID,
	}, nil
}

func generatePKCE() (verifier, challenge string, err error) {
	raw := make([]byte, 64)
	if _, err = rand.Read(raw); err != nil {
		return "", "", err
	}
	verifier = base64.RawURLEncoding.EncodeToString(raw)
	sum := sha256.Sum256([]byte(verifier))
	challenge = base64.RawURLEncoding.EncodeToString(sum[:])
	return verifier, challenge, nil
}

func randomState() (string, error) {
	raw := make([]byte, 32)
	if _, err := rand.Read(raw); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(raw), nil
}
