package ai

import (
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// ErrNoJSON marks a model response from which no JSON value could be
// recovered.
var ErrNoJSON = errors.New("no valid JSON in model response")

// jsonSpanRE greedily captures the first top-level {...} or [...] span.
// Best effort: it assumes the response carries at most one JSON value.
var jsonSpanRE = regexp.MustCompile(`(\{[\s\S]*\}|\[[\s\S]*\])`)

// ExtractJSON pulls a JSON value out of free-form model output. Fenced
// ```json blocks win; otherwise the text is scanned for a brace or
// bracket delimited span. This is a degrade path — callers should
// request schema-constrained output wherever the backend supports it.
func ExtractJSON(text string) (json.RawMessage, error) {
	candidate := text
	if idx := strings.Index(candidate, "```json"); idx >= 0 {
		candidate = candidate[idx+len("```json"):]
		if end := strings.Index(candidate, "```"); end >= 0 {
			candidate = candidate[:end]
		}
		candidate = strings.TrimSpace(candidate)
	}
	if strings.TrimSpace(candidate) == "" ||
		(!strings.Contains(candidate, "{") && !strings.Contains(candidate, "[")) ||
		strings.Contains(candidate, "```") {
		if match := jsonSpanRE.FindString(candidate); match != "" {
			candidate = match
		}
	}

	var value json.RawMessage
	if err := json.Unmarshal([]byte(candidate), &value); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNoJSON, err)
	}
	return value, nil
}
