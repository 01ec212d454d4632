package storage

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// URIStore persists the identifiers of files registered with the
// Gemini backend so later requests can re-resolve them instead of
// re-uploading. The list is replaced wholesale on every new upload.
// Backend-side expiry is untracked; stale identifiers surface as
// not-found errors at resolve time.
type URIStore struct {
	mu   sync.Mutex
	path string
}

// NewURIStore stores the identifier list at dir/file_uris.json.
func NewURIStore(dir string) (*URIStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}
	return &URIStore{path: filepath.Join(dir, "file_uris.json")}, nil
}

// Save overwrites the stored identifier list.
func (s *URIStore) Save(ids []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	data, err := json.Marshal(ids)
	if err != nil {
		return err
	}
	if err := os.WriteFile(s.path, data, 0o644); err != nil {
		return fmt.Errorf("write file uris: %w", err)
	}
	return nil
}

// Load returns the stored identifiers; nil with no error when nothing
// has been uploaded yet.
func (s *URIStore) Load() ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	data, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read file uris: %w", err)
	}
	var ids []string
	if err := json.Unmarshal(data, &ids); err != nil {
		return nil, fmt.Errorf("parse file uris: %w", err)
	}
	return ids, nil
}

// Clear removes the stored list so the next load sees no materials.
func (s *URIStore) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	err := os.Remove(s.path)
	if err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}
