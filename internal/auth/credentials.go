package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"golang.org/x/oauth2"
)

// TokenStore persists the single OAuth token record used by the service.
// Load returns ErrNoToken when nothing usable is stored.
type TokenStore interface {
	Load(ctx context.Context) (*oauth2.Token, error)
	Save(ctx context.Context, token *oauth2.Token) error
}

// decodeToken parses a stored token. Corrupt data is logged and treated as
// an empty store so the consent flow can overwrite it.
func decodeToken(data []byte, source string) (*oauth2.Token, error) {
	var token oauth2.Token
	if err := json.Unmarshal(data, &token); err != nil {
		slog.Warn("stored token is unreadable — treating as not authorized",
			"source", source,
			"error", err,
		)
		return nil, ErrNoToken
	}
	return &token, nil
}

// FileTokenStore stores the token as a JSON file.
// Directory permissions: 0700. File permissions: 0600.
type FileTokenStore struct {
	path string
}

// NewFileTokenStore creates a store writing to path. The parent directory is
// created with 0700 permissions if it doesn't exist.
func NewFileTokenStore(path string) (*FileTokenStore, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("creating token directory %s: %w", dir, err)
	}
	return &FileTokenStore{path: path}, nil
}

// Path returns the token file location.
func (s *FileTokenStore) Path() string {
	return s.path
}

// Load reads the token file.
func (s *FileTokenStore) Load(_ context.Context) (*oauth2.Token, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNoToken
		}
		return nil, fmt.Errorf("reading token from %s: %w", s.path, err)
	}
	return decodeToken(data, s.path)
}

// Save writes the token to a temporary file in the same directory and renames
// it over the previous one, so readers never observe a partial write.
func (s *FileTokenStore) Save(_ context.Context, token *oauth2.Token) error {
	data, err := json.MarshalIndent(token, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling token: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(s.path), ".token-*.json")
	if err != nil {
		return fmt.Errorf("creating temp token file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName) // no-op after a successful rename

	if err := tmp.Chmod(0o600); err != nil {
		tmp.Close()
		return fmt.Errorf("setting token file permissions: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("writing token to %s: %w", tmpName, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("closing token file %s: %w", tmpName, err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		return fmt.Errorf("replacing token file %s: %w", s.path, err)
	}
	return nil
}

// EnvTokenStore reads the token from an environment variable holding its
// JSON. Saves update the process environment only.
type EnvTokenStore struct {
	name string
	once sync.Once
}

// NewEnvTokenStore creates a store backed by the named environment variable.
func NewEnvTokenStore(name string) *EnvTokenStore {
	return &EnvTokenStore{name: name}
}

// Load parses the variable's JSON.
func (s *EnvTokenStore) Load(_ context.Context) (*oauth2.Token, error) {
	raw := os.Getenv(s.name)
	if raw == "" {
		return nil, ErrNoToken
	}
	return decodeToken([]byte(raw), "$"+s.name)
}

// Save sets the variable for the running process.
func (s *EnvTokenStore) Save(_ context.Context, token *oauth2.Token) error {
	data, err := json.Marshal(token)
	if err != nil {
		return fmt.Errorf("marshaling token: %w", err)
	}
	if err := os.Setenv(s.name, string(data)); err != nil {
		return fmt.Errorf("setting %s: %w", s.name, err)
	}
	s.once.Do(func() {
		slog.Warn("token kept in process environment only — it will not survive a restart; use the `token` command to export it",
			"variable", s.name,
		)
	})
	return nil
}

// InMemoryTokenStore keeps the token in memory. Safe for concurrent use.
type InMemoryTokenStore struct {
	mu    sync.RWMutex
	token *oauth2.Token
}

// NewInMemoryTokenStore creates an empty in-memory store.
func NewInMemoryTokenStore() *InMemoryTokenStore {
	return &InMemoryTokenStore{}
}

// Load returns a copy of the stored token.
func (s *InMemoryTokenStore) Load(_ context.Context) (*oauth2.Token, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.token == nil {
		return nil, ErrNoToken
	}
	t := *s.token
	return &t, nil
}

// Save replaces the stored token with a copy of token.
func (s *InMemoryTokenStore) Save(_ context.Context, token *oauth2.Token) error {
	if token == nil {
		return errors.New("nil token")
	}
	t := *token
	s.mu.Lock()
	s.token = &t
	s.mu.Unlock()
	return nil
}
