package auth

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/sumeet/opencode-openai-codex-auth/internal/json"
	log "github.com/sumeet/opencode-openai-codex-auth/internal/logging"
)

// FileStore persists the credential record as a JSON file. A missing or
// unreadable file is treated as "no cached credentials", never as an error.
type FileStore struct {
	path string
}

// NewFileStore creates a store backed by the given file path.
func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

// Path returns the backing file path.
func (s *FileStore) Path() string { return s.path }

// Load reads the credential record. It returns nil when the file is missing
// or does not parse; both cases are warn-logged and swallowed.
func (s *FileStore) Load() *Credentials {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if !os.IsNotExist(err) {
			log.Warnf("failed to read credential file %s: %v", s.path, err)
		}
		return nil
	}
	var creds Credentials
	if err := json.Unmarshal(data, &creds); err != nil {
		log.Warnf("failed to parse credential file %s: %v", s.path, err)
		return nil
	}
	return &creds
}

// Save writes the full credential record, replacing any prior content. The
// write goes to a temporary file first and is renamed into place so a crash
// mid-write cannot leave a truncated record.
func (s *FileStore) Save(creds *Credentials) error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0o700); err != nil {
		return fmt.Errorf("failed to create credential directory: %w", err)
	}

	data, err := json.MarshalIndent(creds, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode credentials: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(s.path), ".auth-*.json")
	if err != nil {
		return fmt.Errorf("failed to create credential temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer func() {
		_ = os.Remove(tmpName)
	}()

	if err := tmp.Chmod(0o600); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("failed to set credential file mode: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("failed to write credential temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close credential temp file: %w", err)
	}

	if err := os.Rename(tmpName, s.path); err != nil {
		return fmt.Errorf("failed to replace credential file: %w", err)
	}
	return nil
}
