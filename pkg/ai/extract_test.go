package ai

import (
	"encoding/json"
	"errors"
	"testing"
)

func TestExtractJSONBare(t *testing.T) {
	raw, err := ExtractJSON(`{"key": "value"}`)
	if err != nil {
		t.Fatalf("ExtractJSON: %v", err)
	}
	var m map[string]string
	if err := json.Unmarshal(raw, &m); err != nil || m["key"] != "value" {
		t.Fatalf("decoded %v, err %v", m, err)
	}
}

func TestExtractJSONFenced(t *testing.T) {
	text := "Here is the result:\n```json\n[1, 2, 3]\n```\nEnjoy!"
	raw, err := ExtractJSON(text)
	if err != nil {
		t.Fatalf("ExtractJSON: %v", err)
	}
	var nums []int
	if err := json.Unmarshal(raw, &nums); err != nil || len(nums) != 3 {
		t.Fatalf("decoded %v, err %v", nums, err)
	}
}

func TestExtractJSONEmbeddedInProse(t *testing.T) {
	text := "The model says ```{\"a\": 1}``` and nothing else."
	raw, err := ExtractJSON(text)
	if err != nil {
		t.Fatalf("ExtractJSON: %v", err)
	}
	var m map[string]int
	if err := json.Unmarshal(raw, &m); err != nil || m["a"] != 1 {
		t.Fatalf("decoded %v, err %v", m, err)
	}
}

func TestExtractJSONArraySpan(t *testing.T) {
	raw, err := ExtractJSON(`[{"question": "q"}]`)
	if err != nil {
		t.Fatalf("ExtractJSON: %v", err)
	}
	if len(raw) == 0 {
		t.Fatalf("empty raw message")
	}
}

func TestExtractJSONNoJSON(t *testing.T) {
	_, err := ExtractJSON("just plain prose, nothing structured")
	if !errors.Is(err, ErrNoJSON) {
		t.Fatalf("err = %v, want ErrNoJSON", err)
	}
}

func TestWithFilesOrdering(t *testing.T) {
	refs := []FileRef{
		{Name: "files/a", DisplayName: "a.pdf"},
		{Name: "files/b", DisplayName: "b.txt"},
	}
	parts := WithFiles(refs, "the prompt")

	// name, file, separator, name, file, prompt
	if len(parts) != 6 {
		t.Fatalf("got %d parts, want 6", len(parts))
	}
	if parts[0].Text != "File: a.pdf\n" {
		t.Fatalf("parts[0] = %q", parts[0].Text)
	}
	if parts[1].File == nil || parts[1].File.Name != "files/a" {
		t.Fatalf("parts[1] = %+v", parts[1])
	}
	if parts[2].Text != "\n\n" {
		t.Fatalf("parts[2] = %q", parts[2].Text)
	}
	last := parts[len(parts)-1]
	if last.Text != "the prompt" || last.File != nil {
		t.Fatalf("prompt must come last, got %+v", last)
	}
}

func TestWithFilesNoPrompt(t *testing.T) {
	refs := []FileRef{{Name: "files/a", DisplayName: "a.pdf"}}
	parts := WithFiles(refs, "")
	if len(parts) != 2 {
		t.Fatalf("got %d parts, want 2", len(parts))
	}
}
