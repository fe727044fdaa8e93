// Package settings provides the small key/value storage capability the
// orchestration layer uses for user-scoped state. The core depends only on
// the Store port, never on a particular persistence medium.
package settings

import (
	"errors"
	"fmt"
	"path/filepath"
	"sync"

	jsoniter "github.com/json-iterator/go"
	"github.com/spf13/afero"
)

var jsonAPI = jsoniter.ConfigCompatibleWithStandardLibrary

// ErrNotFound reports a key with no stored value.
var ErrNotFound = errors.New("settings: key not found")

// Store is the injected storage capability.
type Store interface {
	Get(key string) (string, error)
	Set(key, value string) error
}

// FileStore persists settings as a single JSON object on an afero
// filesystem. Backing it with afero.NewMemMapFs gives an in-memory fake for
// tests; the production constructor uses the OS filesystem.
type FileStore struct {
	fs   afero.Fs
	path string
	mu   sync.Mutex
}

var _ Store = (*FileStore)(nil)

// NewFileStore builds a store over fs at path. The file and its directory
// are created lazily on the first Set.
func NewFileStore(fs afero.Fs, path string) *FileStore {
	return &FileStore{fs: fs, path: path}
}

// NewOSStore builds a store persisted at path on the real filesystem.
func NewOSStore(path string) *FileStore {
	return NewFileStore(afero.NewOsFs(), path)
}

// NewMemStore builds a throwaway in-memory store.
func NewMemStore() *FileStore {
	return NewFileStore(afero.NewMemMapFs(), "settings.json")
}

// Get returns the value stored under key, or ErrNotFound.
func (s *FileStore) Get(key string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	values, err := s.load()
	if err != nil {
		return "", err
	}
	value, ok := values[key]
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrNotFound, key)
	}
	return value, nil
}

// Set stores value under key, creating the backing file if needed.
func (s *FileStore) Set(key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	values, err := s.load()
	if err != nil {
		return err
	}
	values[key] = value

	raw, err := jsonAPI.MarshalIndent(values, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding settings: %w", err)
	}
	if dir := filepath.Dir(s.path); dir != "." {
		if err := s.fs.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("creating settings dir: %w", err)
		}
	}
	if err := afero.WriteFile(s.fs, s.path, raw, 0o600); err != nil {
		return fmt.Errorf("writing settings: %w", err)
	}
	return nil
}

func (s *FileStore) load() (map[string]string, error) {
	exists, err := afero.Exists(s.fs, s.path)
	if err != nil {
		return nil, fmt.Errorf("probing settings file: %w", err)
	}
	if !exists {
		return map[string]string{}, nil
	}
	raw, err := afero.ReadFile(s.fs, s.path)
	if err != nil {
		return nil, fmt.Errorf("reading settings: %w", err)
	}
	values := map[string]string{}
	if len(raw) == 0 {
		return values, nil
	}
	if err := jsonAPI.Unmarshal(raw, &values); err != nil {
		return nil, fmt.Errorf("decoding settings: %w", err)
	}
	return values, nil
}
