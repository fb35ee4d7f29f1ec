package auth

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

// testToken builds an unsigned JWT carrying the ChatGPT account id claim.
func testToken(accountID string) string {
	header := base64.RawURLEncoding.EncodeToString([]byte(`{"alg":"none"}`))
	payload := base64.RawURLEncoding.EncodeToString([]byte(
		fmt.Sprintf(`{"https://api.openai.com/auth":{"chatgpt_account_id":"%s"}}`, accountID)))
	return header + "." + payload + ".sig"
}

type fakeExchanger struct {
	mu       sync.Mutex
	calls    int32
	fail     bool
	response *TokenSet
}

func (f *fakeExchanger) Refresh(ctx context.Context, refreshToken string) (*TokenSet, error) {
	atomic.AddInt32(&f.calls, 1)
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail {
		return nil, errors.New("exchange rejected")
	}
	return f.response, nil
}

type fakeLogin struct {
	calls int32
	creds *Credentials
	err   error
}

func (f *fakeLogin) Login(ctx context.Context) (*Credentials, error) {
	atomic.AddInt32(&f.calls, 1)
	return f.creds, f.err
}

func newTestManager(t *testing.T, exchange TokenExchanger, login LoginFlow) *Manager {
	t.Helper()
	store := NewFileStore(filepath.Join(t.TempDir(), "auth.json"))
	return NewManager(store, exchange, login)
}

func TestCredentialsValid(t *testing.T) {
	now := time.Now()
	tests := []struct {
		name  string
		creds *Credentials
		want  bool
	}{
		{"nil", nil, false},
		{"empty token", &Credentials{Expire: now.UnixMilli() + 3_600_000}, false},
		{"well inside expiry", &Credentials{AccessToken: "t", Expire: now.UnixMilli() + 3_600_000}, true},
		{"inside buffer", &Credentials{AccessToken: "t", Expire: now.UnixMilli() + 30_000}, false},
		{"exactly at buffer", &Credentials{AccessToken: "t", Expire: now.UnixMilli() + 60_000}, false},
		{"expired", &Credentials{AccessToken: "t", Expire: now.UnixMilli() - 1}, false},
	}
	for _, tt := range tests {
		if got := tt.creds.Valid(now); got != tt.want {
			t.Errorf("%s: Valid() = %v, want %v", tt.name, got, tt.want)
		}
	}
}

func TestAccountIDFromToken(t *testing.T) {
	id, err := AccountIDFromToken(testToken("acct-9"))
	if err != nil {
		t.Fatalf("AccountIDFromToken failed: %v", err)
	}
	if id != "acct-9" {
		t.Errorf("account id = %q, want %q", id, "acct-9")
	}

	for _, bad := range []string{"", "not-a-jwt", "a.b", "a.!!!.c", testToken("")} {
		if _, err := AccountIDFromToken(bad); !errors.Is(err, ErrClaimMissing) {
			t.Errorf("AccountIDFromToken(%q) error = %v, want ErrClaimMissing", bad, err)
		}
	}
}

func TestEnsureFreshValidCacheSkipsNetwork(t *testing.T) {
	exchange := &fakeExchanger{}
	m := newTestManager(t, exchange, nil)
	m.creds = &Credentials{
		AccessToken: "cached",
		Expire:      time.Now().UnixMilli() + 3_600_000,
		AccountID:   "acct",
	}

	for i := 0; i < 2; i++ {
		creds, err := m.EnsureFresh(context.Background())
		if err != nil {
			t.Fatalf("EnsureFresh failed: %v", err)
		}
		if creds.AccessToken != "cached" {
			t.Errorf("got token %q, want cached", creds.AccessToken)
		}
	}
	if n := atomic.LoadInt32(&exchange.calls); n != 0 {
		t.Errorf("exchange calls = %d, want 0", n)
	}
}

func TestEnsureFreshSingleFlight(t *testing.T) {
	exchange := &fakeExchanger{
		response: &TokenSet{
			AccessToken:  testToken("acct-1"),
			RefreshToken: "new-refresh",
			ExpiresIn:    3600,
		},
	}
	m := newTestManager(t, exchange, nil)
	m.creds = &Credentials{
		AccessToken:  "stale",
		RefreshToken: "old-refresh",
		Expire:       time.Now().UnixMilli() - 1000,
		AccountID:    "acct-1",
	}

	const n = 16
	var wg sync.WaitGroup
	results := make([]*Credentials, n)
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = m.EnsureFresh(context.Background())
		}(i)
	}
	wg.Wait()

	if calls := atomic.LoadInt32(&exchange.calls); calls != 1 {
		t.Fatalf("exchange calls = %d, want exactly 1", calls)
	}
	for i := 0; i < n; i++ {
		if errs[i] != nil {
			t.Fatalf("waiter %d failed: %v", i, errs[i])
		}
		if results[i] != results[0] {
			t.Errorf("waiter %d observed different credentials", i)
		}
	}
	if results[0].AccountID != "acct-1" {
		t.Errorf("account id = %q, want acct-1", results[0].AccountID)
	}
	if results[0].RefreshToken != "new-refresh" {
		t.Errorf("refresh token = %q, want new-refresh", results[0].RefreshToken)
	}
}

func TestEnsureFreshRefreshFailureFallsBackToLogin(t *testing.T) {
	exchange := &fakeExchanger{fail: true}
	login := &fakeLogin{creds: &Credentials{
		AccessToken:  "from-login",
		RefreshToken: "r",
		Expire:       time.Now().UnixMilli() + 3_600_000,
		AccountID:    "acct",
	}}
	m := newTestManager(t, exchange, login)
	m.creds = &Credentials{
		AccessToken:  "stale",
		RefreshToken: "dead",
		Expire:       time.Now().UnixMilli() - 1000,
	}

	creds, err := m.EnsureFresh(context.Background())
	if err != nil {
		t.Fatalf("EnsureFresh failed: %v", err)
	}
	if creds.AccessToken != "from-login" {
		t.Errorf("got token %q, want from-login", creds.AccessToken)
	}
	if n := atomic.LoadInt32(&login.calls); n != 1 {
		t.Errorf("login calls = %d, want 1", n)
	}
}

func TestEnsureFreshNoCredentialsNoLogin(t *testing.T) {
	m := newTestManager(t, &fakeExchanger{fail: true}, nil)

	_, err := m.EnsureFresh(context.Background())
	if !errors.Is(err, ErrLoginRequired) {
		t.Fatalf("error = %v, want ErrLoginRequired", err)
	}

	// FAILED is not terminal: a later call retries the whole chain.
	login := &fakeLogin{creds: &Credentials{
		AccessToken: "late",
		Expire:      time.Now().UnixMilli() + 3_600_000,
		AccountID:   "acct",
	}}
	m.login = login
	creds, err := m.EnsureFresh(context.Background())
	if err != nil {
		t.Fatalf("retry after failure: %v", err)
	}
	if creds.AccessToken != "late" {
		t.Errorf("got token %q, want late", creds.AccessToken)
	}
}

func TestEnsureFreshAdoptsValidStoredRecord(t *testing.T) {
	store := NewFileStore(filepath.Join(t.TempDir(), "auth.json"))
	stored := &Credentials{
		AccessToken: "stored",
		Expire:      time.Now().UnixMilli() + 3_600_000,
		AccountID:   "acct",
	}
	if err := store.Save(stored); err != nil {
		t.Fatalf("seed store: %v", err)
	}

	exchange := &fakeExchanger{fail: true}
	m := NewManager(store, exchange, nil)

	creds, err := m.EnsureFresh(context.Background())
	if err != nil {
		t.Fatalf("EnsureFresh failed: %v", err)
	}
	if creds.AccessToken != "stored" {
		t.Errorf("got token %q, want stored", creds.AccessToken)
	}
	if n := atomic.LoadInt32(&exchange.calls); n != 0 {
		t.Errorf("exchange calls = %d, want 0", n)
	}
}

func TestEnsureFreshRefreshesExpiredStoredRecord(t *testing.T) {
	store := NewFileStore(filepath.Join(t.TempDir(), "auth.json"))
	stored := &Credentials{
		AccessToken:  "stale",
		RefreshToken: "r0",
		Expire:       time.Now().UnixMilli() - 1000,
		AccountID:    "acct",
	}
	if err := store.Save(stored); err != nil {
		t.Fatalf("seed store: %v", err)
	}

	exchange := &fakeExchanger{
		response: &TokenSet{AccessToken: testToken("acct"), ExpiresIn: 3600},
	}
	m := NewManager(store, exchange, nil)

	creds, err := m.EnsureFresh(context.Background())
	if err != nil {
		t.Fatalf("EnsureFresh failed: %v", err)
	}
	if !creds.Valid(time.Now()) {
		t.Error("refreshed credentials should be valid")
	}
	// Exchange returned no refresh token; the old one must be kept.
	if creds.RefreshToken != "r0" {
		t.Errorf("refresh token = %q, want r0", creds.RefreshToken)
	}
}
