package domain

// Question is a single multiple-choice quiz item. CorrectAnswer must be
// the verbatim text of one of the four choices.
type Question struct {
	Question      string   `json:"question"`
	Choices       []string `json:"choices"`
	CorrectAnswer string   `json:"correct_answer"`
}

// Valid reports whether the question satisfies the shape contract:
// non-empty question text, exactly four choices, and a correct answer
// that matches one of the choices exactly.
func (q Question) Valid() bool {
	if q.Question == "" || len(q.Choices) != 4 {
		return false
	}
	for _, choice := range q.Choices {
		if q.CorrectAnswer == choice {
			return true
		}
	}
	return false
}

// Section is one teaching unit subdivision with its per-section quiz.
type Section struct {
	SectionTitle string     `json:"section_title"`
	Narrative    string     `json:"narrative"`
	KeyPoints    []string   `json:"key_points"`
	Quizzes      []Question `json:"quizzes"`
}

// Unit groups sections under a shared overview plus a unit assessment.
type Unit struct {
	Unit     string     `json:"unit"`
	Overview string     `json:"overview"`
	Sections []Section  `json:"sections"`
	UnitQuiz []Question `json:"unit_quiz"`
}

// StudyGuide is the complete generated guide, in unit order. It is
// regenerated wholesale on each run, never patched.
type StudyGuide []Unit
