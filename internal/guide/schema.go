package guide

import (
	"encoding/json"
	"fmt"

	"github.com/invopop/jsonschema"
)

// sectionSkeleton and unitSkeleton describe the first-phase response,
// before any quizzes exist. Quizzes are filled in afterwards section by
// section.
type sectionSkeleton struct {
	SectionTitle string   `json:"section_title"`
	Narrative    string   `json:"narrative"`
	KeyPoints    []string `json:"key_points"`
}

type unitSkeleton struct {
	Unit     string            `json:"unit"`
	Overview string            `json:"overview"`
	Sections []sectionSkeleton `json:"sections"`
}

// skeletonSchema reflects the skeleton types into a JSON schema and
// strips the draft keywords the generative backend rejects. The backend
// accepts only the OpenAPI subset: type, properties, required, items.
func skeletonSchema() (json.RawMessage, error) {
	r := &jsonschema.Reflector{
		Anonymous:      true,
		DoNotReference: true,
		ExpandedStruct: true,
	}
	reflected := r.Reflect(&unitSkeleton{})
	data, err := json.Marshal(reflected)
	if err != nil {
		return nil, fmt.Errorf("marshal reflected schema: %v", err)
	}
	var unitSchema map[string]any
	if err := json.Unmarshal(data, &unitSchema); err != nil {
		return nil, fmt.Errorf("decode reflected schema: %v", err)
	}
	scrub(unitSchema)

	return json.Marshal(map[string]any{
		"type":  "array",
		"items": unitSchema,
	})
}

func scrub(node any) {
	switch v := node.(type) {
	case map[string]any:
		delete(v, "$schema")
		delete(v, "$id")
		delete(v, "$defs")
		delete(v, "additionalProperties")
		for _, child := range v {
			scrub(child)
		}
	case []any:
		for _, child := range v {
			scrub(child)
		}
	}
}
