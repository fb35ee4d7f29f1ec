package auth

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestFileStoreRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "dir", "auth.json")
	store := NewFileStore(path)

	creds := &Credentials{
		AccessToken:  "a",
		RefreshToken: "r",
		Expire:       1234567890,
		AccountID:    "acct",
	}
	if err := store.Save(creds); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	loaded := store.Load()
	if loaded == nil {
		t.Fatal("Load returned nil after Save")
	}
	if *loaded != *creds {
		t.Errorf("loaded %+v, want %+v", loaded, creds)
	}

	// No temp files left behind.
	entries, err := os.ReadDir(filepath.Dir(path))
	if err != nil {
		t.Fatalf("read dir: %v", err)
	}
	for _, e := range entries {
		if strings.HasPrefix(e.Name(), ".auth-") {
			t.Errorf("leftover temp file %s", e.Name())
		}
	}
}

func TestFileStoreLoadMissing(t *testing.T) {
	store := NewFileStore(filepath.Join(t.TempDir(), "missing.json"))
	if creds := store.Load(); creds != nil {
		t.Errorf("Load of missing file = %+v, want nil", creds)
	}
}

func TestFileStoreLoadCorrupt(t *testing.T) {
	path := filepath.Join(t.TempDir(), "auth.json")
	if err := os.WriteFile(path, []byte("{not json"), 0o600); err != nil {
		t.Fatal(err)
	}
	store := NewFileStore(path)
	if creds := store.Load(); creds != nil {
		t.Errorf("Load of corrupt file = %+v, want nil", creds)
	}
}

func TestFileStoreFieldNames(t *testing.T) {
	path := filepath.Join(t.TempDir(), "auth.json")
	store := NewFileStore(path)
	if err := store.Save(&Credentials{AccessToken: "a", RefreshToken: "r", Expire: 5, AccountID: "x"}); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	for _, field := range []string{`"access"`, `"refresh"`, `"expires"`, `"accountId"`} {
		if !strings.Contains(string(data), field) {
			t.Errorf("persisted record missing field %s: %s", field, data)
		}
	}
}
