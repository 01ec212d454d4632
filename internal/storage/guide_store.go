package storage

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"studylm/pkg/domain"
)

// ErrGuideNotFound is returned when no study guide has been generated.
var ErrGuideNotFound = errors.New("study guide not found")

// GuideStore is the single-slot home of the most recent study guide.
// Each successful generation run replaces the previous guide wholesale;
// there is no partial write and no versioning.
type GuideStore struct {
	mu   sync.Mutex
	path string
}

// NewGuideStore stores the guide at dir/output.json.
func NewGuideStore(dir string) (*GuideStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}
	return &GuideStore{path: filepath.Join(dir, "output.json")}, nil
}

// Save replaces the stored guide.
func (s *GuideStore) Save(guide domain.StudyGuide) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	data, err := json.MarshalIndent(guide, "", "  ")
	if err != nil {
		return err
	}
	if err := os.WriteFile(s.path, data, 0o644); err != nil {
		return fmt.Errorf("write study guide: %w", err)
	}
	return nil
}

// Load returns the stored guide or ErrGuideNotFound.
func (s *GuideStore) Load() (domain.StudyGuide, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	data, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		return nil, ErrGuideNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("read study guide: %w", err)
	}
	var guide domain.StudyGuide
	if err := json.Unmarshal(data, &guide); err != nil {
		return nil, fmt.Errorf("parse study guide: %w", err)
	}
	return guide, nil
}
