package inspect

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/ledongthuc/pdf"
)

// ErrUnreadable marks an uploaded file that cannot be handed to the
// generative backend (corrupt PDF, binary junk posing as text).
var ErrUnreadable = errors.New("file is not readable")

// Info summarizes an uploaded file after preflight.
type Info struct {
	Kind  string
	Pages int
	Bytes int64
}

// Check preflights an uploaded file before it is sent to the backend.
// PDFs must open and report at least one page; text-like files must be
// valid UTF-8. Other extensions pass through untouched — the backend is
// the authority on what it accepts.
func Check(path string) (Info, error) {
	st, err := os.Stat(path)
	if err != nil {
		return Info{}, fmt.Errorf("%w: %v", ErrUnreadable, err)
	}
	info := Info{Bytes: st.Size()}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".pdf":
		info.Kind = "pdf"
		f, r, err := pdf.Open(path)
		if err != nil {
			return info, fmt.Errorf("%w: open pdf: %v", ErrUnreadable, err)
		}
		defer f.Close()
		info.Pages = r.NumPage()
		if info.Pages < 1 {
			return info, fmt.Errorf("%w: pdf has no pages", ErrUnreadable)
		}
	case ".txt", ".md":
		info.Kind = "text"
		data, err := os.ReadFile(path)
		if err != nil {
			return info, fmt.Errorf("%w: %v", ErrUnreadable, err)
		}
		if !utf8.Valid(data) {
			return info, fmt.Errorf("%w: not valid UTF-8 text", ErrUnreadable)
		}
	default:
		info.Kind = strings.TrimPrefix(strings.ToLower(filepath.Ext(path)), ".")
	}
	return info, nil
}
