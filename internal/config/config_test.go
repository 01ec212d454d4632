package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	t.Setenv("GEMINI_API_KEY", "test-key")
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Port != Default().Port {
		t.Fatalf("port = %q, want default", cfg.Port)
	}
	if cfg.GeminiAPIKey != "test-key" {
		t.Fatalf("api key not taken from env")
	}
	if cfg.SSEIdleTimeout() != 60*time.Second {
		t.Fatalf("sse idle timeout = %v", cfg.SSEIdleTimeout())
	}
}

func TestLoadFileAndEnvOverride(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	yaml := `
port: "9090"
geminiApiKey: from-file
uploadDir: /tmp/uploads
dataDir: /tmp/data
quizConcurrency: 4
`
	if err := os.WriteFile(path, []byte(yaml), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv("PORT", "7070")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Port != "7070" {
		t.Fatalf("env should win over file, port = %q", cfg.Port)
	}
	if cfg.GeminiAPIKey != "from-file" {
		t.Fatalf("api key = %q", cfg.GeminiAPIKey)
	}
	if cfg.QuizConcurrency != 4 {
		t.Fatalf("quizConcurrency = %d", cfg.QuizConcurrency)
	}
}

func TestLoadRequiresAPIKey(t *testing.T) {
	t.Setenv("GEMINI_API_KEY", "")
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	if err == nil || !strings.Contains(err.Error(), "geminiApiKey") {
		t.Fatalf("err = %v, want missing api key error", err)
	}
}

func TestChatModelsHaveDefault(t *testing.T) {
	if _, ok := ChatModels[DefaultChatModel]; !ok {
		t.Fatalf("default chat model %q missing from ChatModels", DefaultChatModel)
	}
}
