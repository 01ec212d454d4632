package ai

// WithFiles builds a generation input with the uploaded documents first
// and the prompt text last. The ordering matters: the backend only
// associates trailing instructions with the attached files. Each file
// is introduced by its display name, with a blank line between files.
func WithFiles(refs []FileRef, text string) []Part {
	parts := make([]Part, 0, 2*len(refs)+1)
	for i := range refs {
		parts = append(parts, Part{Text: "File: " + refs[i].DisplayName + "\n"})
		parts = append(parts, Part{File: &refs[i]})
		if i < len(refs)-1 {
			parts = append(parts, Part{Text: "\n\n"})
		}
	}
	if text != "" {
		parts = append(parts, Part{Text: text})
	}
	return parts
}
