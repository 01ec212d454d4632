package quiz

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"studylm/pkg/ai"
	"studylm/pkg/domain"
)

// ErrGeneration marks a quiz run that failed at the backend, as opposed
// to one that produced zero usable questions.
var ErrGeneration = errors.New("quiz generation failed")

const promptTemplate = `Create a comprehensive exam preparation quiz with %d multiple-choice questions based on the provided study materials%s

Each question should:
1. Test important concepts that might appear on an exam
2. Have exactly 4 answer choices
3. Have only one correct answer

Format your entire response as a valid JSON array of objects. Each object should have the following structure:
[
    {
        "question": "Question text here",
        "choices": ["Choice A", "Choice B", "Choice C", "Choice D"],
        "correct_answer": "The exact text of the correct choice"
    }
]

Ensure all questions are directly related to the content in the provided materials.
Ensure each question has EXACTLY 4 choices.
Ensure the correct_answer value exactly matches one of the choices.`

// Generator produces multiple-choice quizzes from uploaded study
// materials through a JSON-mode generative model.
type Generator struct {
	gen    ai.ContentGenerator
	model  string
	logger *slog.Logger
}

func NewGenerator(gen ai.ContentGenerator, model string, logger *slog.Logger) *Generator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Generator{gen: gen, model: model, logger: logger}
}

// Request describes one quiz run.
type Request struct {
	Files []ai.FileRef
	// NumQuestions is the requested count; the result may hold fewer
	// when the model returns malformed entries.
	NumQuestions int
	// ContextPrompt narrows the quiz to part of the materials, for
	// example one section of a study guide.
	ContextPrompt string
	// Model overrides the generator's default model when non-empty.
	Model string
	// Report, when set, receives human-readable progress lines.
	Report func(msg string)
}

// Generate runs one quiz generation round trip. Questions that fail
// structural validation are dropped with a warning rather than failing
// the run; an empty result with a nil error means the model produced
// nothing usable. A non-nil error always wraps ErrGeneration.
func (g *Generator) Generate(ctx context.Context, req Request) ([]domain.Question, error) {
	report := req.Report
	if report == nil {
		report = func(string) {}
	}
	if len(req.Files) == 0 {
		g.logger.Warn("no file references provided for quiz generation")
		report("No file references provided for quiz generation")
		return nil, nil
	}

	model := req.Model
	if model == "" {
		model = g.model
	}

	contextStr := "."
	if req.ContextPrompt != "" {
		contextStr = ":\n" + req.ContextPrompt
	}
	prompt := fmt.Sprintf(promptTemplate, req.NumQuestions, contextStr)

	text, err := g.gen.GenerateContent(ctx, model, ai.GenerateRequest{
		Parts:            ai.WithFiles(req.Files, prompt),
		ResponseMIMEType: "application/json",
	})
	if err != nil {
		report(fmt.Sprintf("Error generating quiz questions: %v", err))
		return nil, fmt.Errorf("%w: %v", ErrGeneration, err)
	}

	raw, err := ai.ExtractJSON(text)
	if err != nil {
		report(fmt.Sprintf("Error generating quiz questions: %v", err))
		return nil, fmt.Errorf("%w: %v", ErrGeneration, err)
	}

	questions, err := decodeQuestions(raw)
	if err != nil {
		report(fmt.Sprintf("Error generating quiz questions: %v", err))
		return nil, fmt.Errorf("%w: %v", ErrGeneration, err)
	}

	valid := questions[:0]
	for _, q := range questions {
		if !q.Valid() {
			g.logger.Warn("skipping invalid question structure", "question", q.Question)
			report(fmt.Sprintf("Skipping invalid question structure: %s", q.Question))
			continue
		}
		valid = append(valid, q)
	}
	return valid, nil
}

// decodeQuestions accepts either a bare JSON array or an object wrapping
// the array under a "questions" key, which some models emit despite the
// prompt asking for an array.
func decodeQuestions(raw json.RawMessage) ([]domain.Question, error) {
	trimmed := strings.TrimSpace(string(raw))
	if strings.HasPrefix(trimmed, "{") {
		var envelope struct {
			Questions []domain.Question `json:"questions"`
		}
		if err := json.Unmarshal(raw, &envelope); err != nil {
			return nil, fmt.Errorf("decode quiz response: %v", err)
		}
		return envelope.Questions, nil
	}
	var questions []domain.Question
	if err := json.Unmarshal(raw, &questions); err != nil {
		return nil, fmt.Errorf("decode quiz response: %v", err)
	}
	return questions, nil
}
