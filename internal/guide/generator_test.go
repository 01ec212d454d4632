package guide

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"studylm/internal/quiz"
	"studylm/pkg/ai"
)

const skeletonResponse = `[
	{
		"unit": "Unit One",
		"overview": "First unit overview",
		"sections": [
			{"section_title": "Section A", "narrative": "About A", "key_points": ["p1", "p2"]},
			{"section_title": "Section B", "narrative": "About B", "key_points": ["p3"]}
		]
	}
]`

const quizResponse = `[
	{"question": "Q1?", "choices": ["a", "b", "c", "d"], "correct_answer": "a"},
	{"question": "Q2?", "choices": ["a", "b", "c", "d"], "correct_answer": "b"},
	{"question": "Q3?", "choices": ["a", "b", "c", "d"], "correct_answer": "c"}
]`

// fakeBackend answers skeleton requests (those carrying a response
// schema) with the canned structure and everything else with a quiz.
type fakeBackend struct {
	skeleton string
	quiz     string
	quizErr  error
	calls    int
}

func (f *fakeBackend) GenerateContent(ctx context.Context, model string, req ai.GenerateRequest) (string, error) {
	f.calls++
	if req.ResponseSchema != nil {
		return f.skeleton, nil
	}
	if f.quizErr != nil {
		return "", f.quizErr
	}
	return f.quiz, nil
}

var guideFiles = []ai.FileRef{{Name: "files/xyz", URI: "https://example.com/files/xyz", DisplayName: "slides.pdf"}}

func newTestGenerator(backend *fakeBackend) *Generator {
	qg := quiz.NewGenerator(backend, "quiz-model", nil)
	return NewGenerator(backend, nil, qg, "guide-model", nil)
}

func TestGenerateFullGuide(t *testing.T) {
	backend := &fakeBackend{skeleton: skeletonResponse, quiz: quizResponse}
	g := newTestGenerator(backend)

	var lastPct int
	pcts := []int{}
	guide, err := g.Generate(context.Background(), guideFiles, "", func(msg string, pct int) {
		if pct >= 0 {
			if pct < lastPct {
				t.Fatalf("progress went backwards: %d after %d", pct, lastPct)
			}
			lastPct = pct
			pcts = append(pcts, pct)
		}
	})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if len(guide) != 1 {
		t.Fatalf("got %d units, want 1", len(guide))
	}
	unit := guide[0]
	if len(unit.Sections) != 2 {
		t.Fatalf("got %d sections, want 2", len(unit.Sections))
	}
	for _, s := range unit.Sections {
		if len(s.Quizzes) != 3 {
			t.Fatalf("section %q got %d quizzes, want 3", s.SectionTitle, len(s.Quizzes))
		}
	}
	// The fake hands back 3 questions even for the 10-question unit
	// assessment, so the unit quiz is short but valid.
	if len(unit.UnitQuiz) != 3 {
		t.Fatalf("unit quiz has %d questions, want 3", len(unit.UnitQuiz))
	}
	if lastPct != 100 {
		t.Fatalf("final progress = %d, want 100", lastPct)
	}
	// skeleton + 2 section quizzes + 1 unit quiz
	if backend.calls != 4 {
		t.Fatalf("backend calls = %d, want 4", backend.calls)
	}
}

func TestGenerateZeroUnits(t *testing.T) {
	backend := &fakeBackend{skeleton: `[]`}
	g := newTestGenerator(backend)

	var lastPct int
	guide, err := g.Generate(context.Background(), guideFiles, "", func(msg string, pct int) {
		if pct >= 0 {
			lastPct = pct
		}
	})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if len(guide) != 0 {
		t.Fatalf("got %d units, want 0", len(guide))
	}
	if lastPct != 100 {
		t.Fatalf("final progress = %d, want 100 for empty guide", lastPct)
	}
	if backend.calls != 1 {
		t.Fatalf("backend calls = %d, want only the skeleton call", backend.calls)
	}
}

func TestGenerateNoFiles(t *testing.T) {
	g := newTestGenerator(&fakeBackend{})
	_, err := g.Generate(context.Background(), nil, "", nil)
	if !errors.Is(err, ErrGeneration) {
		t.Fatalf("err = %v, want ErrGeneration", err)
	}
}

func TestGenerateQuizFailureAborts(t *testing.T) {
	backend := &fakeBackend{skeleton: skeletonResponse, quizErr: errors.New("quota exceeded")}
	g := newTestGenerator(backend)
	_, err := g.Generate(context.Background(), guideFiles, "", nil)
	if !errors.Is(err, ErrGeneration) {
		t.Fatalf("err = %v, want ErrGeneration", err)
	}
}

func TestGenerateCancelled(t *testing.T) {
	backend := &fakeBackend{skeleton: skeletonResponse, quiz: quizResponse}
	g := newTestGenerator(backend)

	ctx, cancel := context.WithCancel(context.Background())
	cancelled := false
	_, err := g.Generate(ctx, guideFiles, "", func(msg string, pct int) {
		if !cancelled && strings.Contains(msg, "Added") {
			cancel()
			cancelled = true
		}
	})
	if !errors.Is(err, ErrGeneration) {
		t.Fatalf("err = %v, want ErrGeneration after cancel", err)
	}
}

func TestSkeletonSchemaShape(t *testing.T) {
	raw, err := skeletonSchema()
	if err != nil {
		t.Fatalf("skeletonSchema: %v", err)
	}
	var schema map[string]any
	if err := json.Unmarshal(raw, &schema); err != nil {
		t.Fatalf("unmarshal schema: %v", err)
	}
	if schema["type"] != "array" {
		t.Fatalf("top-level type = %v, want array", schema["type"])
	}
	items, ok := schema["items"].(map[string]any)
	if !ok {
		t.Fatalf("items missing")
	}
	if _, found := items["$schema"]; found {
		t.Fatalf("$schema keyword must be stripped")
	}
	if _, found := items["additionalProperties"]; found {
		t.Fatalf("additionalProperties keyword must be stripped")
	}
	props, ok := items["properties"].(map[string]any)
	if !ok {
		t.Fatalf("unit properties missing")
	}
	for _, key := range []string{"unit", "overview", "sections"} {
		if _, found := props[key]; !found {
			t.Fatalf("unit schema missing %q", key)
		}
	}
}
