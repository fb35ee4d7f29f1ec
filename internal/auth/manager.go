package auth

import (
	"context"
	"fmt"
	"sync"
	"time"

	log "github.com/sumeet/opencode-openai-codex-auth/internal/logging"
)

// TokenSet is the raw triple returned by the token-exchange collaborator.
type TokenSet struct {
	AccessToken  string
	RefreshToken string
	// ExpiresIn is the access token lifetime in seconds.
	ExpiresIn int64
}

// TokenExchanger performs the provider-specific token-exchange HTTP calls.
type TokenExchanger interface {
	// Refresh exchanges a refresh token for a new token set.
	Refresh(ctx context.Context, refreshToken string) (*TokenSet, error)
}

// LoginFlow runs the interactive browser-based consent flow and returns a
// complete credential record.
type LoginFlow interface {
	Login(ctx context.Context) (*Credentials, error)
}

// refreshCall is the shared handle for one in-flight credential acquisition.
// Waiters block on done and then read creds/err; the owner clears the
// manager's in-flight slot before closing done.
type refreshCall struct {
	done  chan struct{}
	creds *Credentials
	err   error
}

// Manager owns the in-memory credentials for one server instance and is the
// only component allowed to mutate them. Concurrent requests that find the
// credentials expired converge on a single refresh.
type Manager struct {
	store    *FileStore
	exchange TokenExchanger
	login    LoginFlow
	now      func() time.Time

	mu       sync.Mutex
	creds    *Credentials
	inFlight *refreshCall
}

// NewManager constructs a Manager. login may be nil, in which case requests
// that would need interactive login fail with ErrLoginRequired.
func NewManager(store *FileStore, exchange TokenExchanger, login LoginFlow) *Manager {
	return &Manager{
		store:    store,
		exchange: exchange,
		login:    login,
		now:      time.Now,
	}
}

// EnsureFresh returns valid credentials, refreshing or bootstrapping as
// needed. With valid in-memory credentials it performs zero I/O. When a
// refresh or bootstrap is already in flight, the caller joins it and
// observes its single outcome.
func (m *Manager) EnsureFresh(ctx context.Context) (*Credentials, error) {
	m.mu.Lock()
	if m.creds.Valid(m.now()) {
		creds := m.creds
		m.mu.Unlock()
		return creds, nil
	}

	if call := m.inFlight; call != nil {
		m.mu.Unlock()
		select {
		case <-call.done:
			return call.creds, call.err
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	call := &refreshCall{done: make(chan struct{})}
	m.inFlight = call
	var current *Credentials
	if m.creds != nil {
		copied := *m.creds
		current = &copied
	}
	m.mu.Unlock()

	creds, err := m.acquire(ctx, current)

	m.mu.Lock()
	if err == nil {
		m.creds = creds
	} else {
		m.creds = nil
	}
	call.creds, call.err = creds, err
	// Clear the handle before releasing waiters so the next expiry starts a
	// fresh refresh instead of joining a settled one.
	m.inFlight = nil
	m.mu.Unlock()
	close(call.done)

	return creds, err
}

// Login runs the interactive flow unconditionally, replacing whatever
// credentials exist. Used by the --login entrypoint.
func (m *Manager) Login(ctx context.Context) (*Credentials, error) {
	if m.login == nil {
		return nil, ErrLoginRequired
	}
	creds, err := m.login.Login(ctx)
	if err != nil {
		return nil, err
	}
	if err := m.store.Save(creds); err != nil {
		log.WithError(err).Warn("failed to persist credentials after login")
	}
	m.mu.Lock()
	m.creds = creds
	m.mu.Unlock()
	return creds, nil
}

// acquire obtains fresh credentials given the current in-memory record:
// refresh when one exists, bootstrapping on refresh failure or when the
// record is absent.
func (m *Manager) acquire(ctx context.Context, current *Credentials) (*Credentials, error) {
	if current != nil {
		creds, err := m.refresh(ctx, current)
		if err == nil {
			return creds, nil
		}
		log.WithError(err).Warn("token refresh failed, falling back to bootstrap")
	}
	return m.bootstrap(ctx)
}

// bootstrap tries, in order: a valid stored record, a refresh of a stored
// but expired record, and finally the interactive login flow.
func (m *Manager) bootstrap(ctx context.Context) (*Credentials, error) {
	if stored := m.store.Load(); stored != nil {
		if stored.Valid(m.now()) {
			log.Debug("adopted valid credentials from disk")
			return stored, nil
		}
		creds, err := m.refresh(ctx, stored)
		if err == nil {
			return creds, nil
		}
		log.WithError(err).Warn("stored credentials expired and refresh failed, interactive login required")
	}

	if m.login == nil {
		return nil, ErrLoginRequired
	}
	creds, err := m.login.Login(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrLoginRequired, err)
	}
	if err := m.store.Save(creds); err != nil {
		log.WithError(err).Warn("failed to persist credentials after login")
	}
	return creds, nil
}

// refresh exchanges the refresh token for a new access/refresh pair,
// derives the account id from the fresh access token, and persists the
// replacement record.
func (m *Manager) refresh(ctx context.Context, current *Credentials) (*Credentials, error) {
	ts, err := m.exchange.Refresh(ctx, current.RefreshToken)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRefreshFailed, err)
	}

	accountID, err := AccountIDFromToken(ts.AccessToken)
	if err != nil {
		return nil, err
	}

	refreshToken := ts.RefreshToken
	if refreshToken == "" {
		refreshToken = current.RefreshToken
	}
	creds := &Credentials{
		AccessToken:  ts.AccessToken,
		RefreshToken: refreshToken,
		Expire:       m.now().UnixMilli() + ts.ExpiresIn*1000,
		AccountID:    accountID,
	}
	if err := m.store.Save(creds); err != nil {
		log.WithError(err).Warn("failed to persist refreshed credentials")
	}
	log.Debugf("credentials refreshed, valid until %s", time.UnixMilli(creds.Expire).Format(time.RFC3339))
	return creds, nil
}
