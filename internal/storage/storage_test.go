package storage

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"studylm/pkg/domain"
)

func TestFileStoreSave(t *testing.T) {
	dir := t.TempDir()
	fs, err := NewFileStore(dir)
	if err != nil {
		t.Fatalf("NewFileStore: %v", err)
	}

	path, err := fs.Save("notes.txt", strings.NewReader("hello"))
	if err != nil {
		t.Fatalf("Save: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read saved file: %v", err)
	}
	if string(data) != "hello" {
		t.Fatalf("content = %q", data)
	}

	// Path traversal in the client-supplied name must not escape the dir.
	path, err = fs.Save("../../etc/passwd", strings.NewReader("x"))
	if err != nil {
		t.Fatalf("Save: %v", err)
	}
	rel, err := filepath.Rel(dir, path)
	if err != nil || strings.HasPrefix(rel, "..") {
		t.Fatalf("saved outside base dir: %s", path)
	}
}

func TestURIStoreRoundTrip(t *testing.T) {
	s, err := NewURIStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewURIStore: %v", err)
	}

	ids, err := s.Load()
	if err != nil {
		t.Fatalf("Load empty: %v", err)
	}
	if ids != nil {
		t.Fatalf("expected nil before first save, got %v", ids)
	}

	if err := s.Save([]string{"a", "b"}); err != nil {
		t.Fatalf("Save: %v", err)
	}
	// A second save replaces the list wholesale.
	if err := s.Save([]string{"c"}); err != nil {
		t.Fatalf("Save: %v", err)
	}
	ids, err = s.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(ids) != 1 || ids[0] != "c" {
		t.Fatalf("ids = %v, want [c]", ids)
	}

	if err := s.Clear(); err != nil {
		t.Fatalf("Clear: %v", err)
	}
	ids, err = s.Load()
	if err != nil || ids != nil {
		t.Fatalf("after Clear: ids=%v err=%v", ids, err)
	}
	// Clearing twice is fine.
	if err := s.Clear(); err != nil {
		t.Fatalf("second Clear: %v", err)
	}
}

func TestGuideStoreRoundTrip(t *testing.T) {
	s, err := NewGuideStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewGuideStore: %v", err)
	}

	if _, err := s.Load(); !errors.Is(err, ErrGuideNotFound) {
		t.Fatalf("Load before save: %v, want ErrGuideNotFound", err)
	}

	guide := domain.StudyGuide{
		{
			Unit:     "Unit 1",
			Overview: "overview",
			Sections: []domain.Section{
				{SectionTitle: "S1", Narrative: "n", KeyPoints: []string{"k"}},
			},
		},
	}
	if err := s.Save(guide); err != nil {
		t.Fatalf("Save: %v", err)
	}
	loaded, err := s.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(loaded) != 1 || loaded[0].Unit != "Unit 1" {
		t.Fatalf("loaded = %+v", loaded)
	}

	// Saving again overwrites the previous guide.
	if err := s.Save(domain.StudyGuide{}); err != nil {
		t.Fatalf("Save empty: %v", err)
	}
	loaded, err = s.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(loaded) != 0 {
		t.Fatalf("expected empty guide after overwrite, got %+v", loaded)
	}
}
