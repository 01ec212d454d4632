package guide

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strings"

	"studylm/internal/quiz"
	"studylm/pkg/ai"
	"studylm/pkg/domain"
)

// ErrGeneration marks a study guide run that failed before a complete
// guide could be assembled.
var ErrGeneration = errors.New("study guide generation failed")

const (
	questionsPerSection = 3
	questionsPerUnit    = 10
)

const systemInstruction = "Always respond in English and format responses as valid JSON."

const skeletonPrompt = `Organize all concepts extracted from the files into a structured study guide. ` +
	`The output should be a JSON array of units. Each unit must contain a 'unit' (the title of the unit) ` +
	`and an 'overview' that summarizes the key ideas of that unit. Each unit should also have a 'sections' array. ` +
	`Every section within the unit must include a 'section_title', a 'narrative' explanation that details the ` +
	`concepts in that section, and a 'key_points' array that lists the essential takeaways. ` +
	`Ensure that the units progressively build on each other to form a cohesive understanding of the course material. ` +
	`Use information primarily from the course materials, and supplement with additional details as needed.`

const sectionQuizTemplate = `Focus exclusively on the section '%s' from the unit '%s'.

Section overview:
%s

Key points:
%s

Generate questions that test understanding of this specific section.`

const unitQuizTemplate = `Create a unit assessment covering the entire unit '%s'.

Unit overview:
%s

The unit covers the following sections:
%s

Generate questions that span the whole unit and connect concepts across its sections.`

// ProgressFunc receives progress updates during a run. A negative pct
// means the message carries no progress change.
type ProgressFunc func(msg string, pct int)

// Generator builds complete study guides in two phases: a
// schema-constrained skeleton of units and sections, then quizzes
// generated per section and per unit.
type Generator struct {
	gen     ai.ContentGenerator
	counter ai.TokenCounter
	quizzes *quiz.Generator
	model   string
	logger  *slog.Logger
}

// NewGenerator wires a study guide generator. counter may be nil, in
// which case the token count log line is skipped.
func NewGenerator(gen ai.ContentGenerator, counter ai.TokenCounter, quizzes *quiz.Generator, model string, logger *slog.Logger) *Generator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Generator{gen: gen, counter: counter, quizzes: quizzes, model: model, logger: logger}
}

// Generate runs the full two-phase pipeline. Progress is distributed
// evenly across units and advanced per quiz question actually received,
// so a unit with missing questions simply ends short of its share.
// Cancellation is honored between quiz calls; a cancelled ctx aborts the
// run with ctx.Err() wrapped in ErrGeneration.
func (g *Generator) Generate(ctx context.Context, files []ai.FileRef, model string, report ProgressFunc) (domain.StudyGuide, error) {
	if report == nil {
		report = func(string, int) {}
	}
	if len(files) == 0 {
		g.logger.Warn("no file references provided for study guide generation")
		return nil, fmt.Errorf("%w: no study materials", ErrGeneration)
	}
	if model == "" {
		model = g.model
	}

	guide, err := g.generateSkeleton(ctx, files, model, report)
	if err != nil {
		return nil, err
	}

	totalUnits := len(guide)
	report(fmt.Sprintf("Generated base structure with %d units", totalUnits), 0)
	if totalUnits == 0 {
		report("No units were generated in the study guide", 100)
		return guide, nil
	}

	pointsPerUnit := 100.0 / float64(totalUnits)
	cumulative := 0.0

	for unitIndex := range guide {
		unit := &guide[unitIndex]
		unitNumber := unitIndex + 1
		report(fmt.Sprintf("Processing unit %d/%d: %s...", unitNumber, totalUnits, unit.Unit), -1)

		totalQuestions := len(unit.Sections)*questionsPerSection + questionsPerUnit
		perQuestion := 0.0
		if totalQuestions > 0 {
			perQuestion = pointsPerUnit / float64(totalQuestions)
		}

		totalSections := len(unit.Sections)
		for sectionIndex := range unit.Sections {
			if err := ctx.Err(); err != nil {
				return nil, fmt.Errorf("%w: %v", ErrGeneration, err)
			}
			section := &unit.Sections[sectionIndex]
			report(fmt.Sprintf("Processing section %d/%d for unit %d: %s...",
				sectionIndex+1, totalSections, unitNumber, section.SectionTitle), -1)

			report(fmt.Sprintf("Generating %d quiz questions for section '%s'...",
				questionsPerSection, section.SectionTitle), -1)
			questions, err := g.quizzes.Generate(ctx, quiz.Request{
				Files:         files,
				NumQuestions:  questionsPerSection,
				ContextPrompt: sectionContext(unit, section),
				Report:        func(msg string) { report(msg, -1) },
			})
			if err != nil {
				return nil, fmt.Errorf("%w: section %q: %v", ErrGeneration, section.SectionTitle, err)
			}
			section.Quizzes = questions

			cumulative += float64(len(questions)) * perQuestion
			report(fmt.Sprintf("Added %d questions to section '%s'", len(questions), section.SectionTitle),
				clampPct(cumulative))
		}

		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrGeneration, err)
		}
		report(fmt.Sprintf("Generating unit assessment quiz for '%s'...", unit.Unit), -1)
		unitQuestions, err := g.quizzes.Generate(ctx, quiz.Request{
			Files:         files,
			NumQuestions:  questionsPerUnit,
			ContextPrompt: unitContext(unit),
			Report:        func(msg string) { report(msg, -1) },
		})
		if err != nil {
			return nil, fmt.Errorf("%w: unit %q: %v", ErrGeneration, unit.Unit, err)
		}
		unit.UnitQuiz = unitQuestions

		cumulative += float64(len(unitQuestions)) * perQuestion
		report(fmt.Sprintf("Added %d questions to unit assessment for '%s'", len(unitQuestions), unit.Unit),
			clampPct(cumulative))
	}

	report(fmt.Sprintf("Study guide generated successfully with %d units", totalUnits), 100)
	return guide, nil
}

func (g *Generator) generateSkeleton(ctx context.Context, files []ai.FileRef, model string, report ProgressFunc) (domain.StudyGuide, error) {
	schema, err := skeletonSchema()
	if err != nil {
		return nil, fmt.Errorf("%w: build schema: %v", ErrGeneration, err)
	}

	req := ai.GenerateRequest{
		Parts:             ai.WithFiles(files, skeletonPrompt),
		SystemInstruction: systemInstruction,
		ResponseMIMEType:  "application/json",
		ResponseSchema:    schema,
	}

	if g.counter != nil {
		tokens, err := g.counter.CountTokens(ctx, model, req)
		if err != nil {
			g.logger.Warn("token count failed", "error", err)
		} else {
			report(fmt.Sprintf("Token count: %d", tokens), 0)
		}
	}

	report("Generating initial study guide structure...", 0)
	text, err := g.gen.GenerateContent(ctx, model, req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrGeneration, err)
	}
	raw, err := ai.ExtractJSON(text)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrGeneration, err)
	}
	var guide domain.StudyGuide
	if err := json.Unmarshal(raw, &guide); err != nil {
		return nil, fmt.Errorf("%w: decode structure: %v", ErrGeneration, err)
	}
	return guide, nil
}

func sectionContext(unit *domain.Unit, section *domain.Section) string {
	points := make([]string, len(section.KeyPoints))
	for i, p := range section.KeyPoints {
		points[i] = "- " + p
	}
	return fmt.Sprintf(sectionQuizTemplate,
		section.SectionTitle, unit.Unit, section.Narrative, strings.Join(points, "\n"))
}

func unitContext(unit *domain.Unit) string {
	var sections strings.Builder
	for i, section := range unit.Sections {
		overview := section.Narrative
		if len(overview) > 300 {
			overview = overview[:300] + "..."
		}
		points := make([]string, len(section.KeyPoints))
		for j, p := range section.KeyPoints {
			points[j] = "- " + p
		}
		fmt.Fprintf(&sections, "Section %d: %s\nOverview: %s\nKey Points:\n%s\n\n",
			i+1, section.SectionTitle, overview, strings.Join(points, "\n"))
	}
	return fmt.Sprintf(unitQuizTemplate, unit.Unit, unit.Overview, sections.String())
}

func clampPct(cumulative float64) int {
	pct := int(math.Round(cumulative))
	if pct > 100 {
		pct = 100
	}
	return pct
}
