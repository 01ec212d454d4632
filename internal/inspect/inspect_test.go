package inspect

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestCheckTextFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "notes.txt")
	if err := os.WriteFile(path, []byte("plain utf-8 notes"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	info, err := Check(path)
	if err != nil {
		t.Fatalf("Check: %v", err)
	}
	if info.Kind != "text" {
		t.Fatalf("kind = %q", info.Kind)
	}
	if info.Bytes == 0 {
		t.Fatalf("bytes = 0")
	}
}

func TestCheckRejectsBinaryText(t *testing.T) {
	path := filepath.Join(t.TempDir(), "junk.md")
	if err := os.WriteFile(path, []byte{0xff, 0xfe, 0x00, 0x80}, 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := Check(path); !errors.Is(err, ErrUnreadable) {
		t.Fatalf("err = %v, want ErrUnreadable", err)
	}
}

func TestCheckRejectsCorruptPDF(t *testing.T) {
	path := filepath.Join(t.TempDir(), "broken.pdf")
	if err := os.WriteFile(path, []byte("not a pdf"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := Check(path); !errors.Is(err, ErrUnreadable) {
		t.Fatalf("err = %v, want ErrUnreadable", err)
	}
}

func TestCheckMissingFile(t *testing.T) {
	if _, err := Check(filepath.Join(t.TempDir(), "absent.txt")); !errors.Is(err, ErrUnreadable) {
		t.Fatalf("err = %v, want ErrUnreadable", err)
	}
}

func TestCheckUnknownExtensionPasses(t *testing.T) {
	path := filepath.Join(t.TempDir(), "data.csv")
	if err := os.WriteFile(path, []byte("a,b\n1,2\n"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	info, err := Check(path)
	if err != nil {
		t.Fatalf("Check: %v", err)
	}
	if info.Kind != "csv" {
		t.Fatalf("kind = %q", info.Kind)
	}
}
