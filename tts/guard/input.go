package guard

import (
	"strings"
	"unicode/utf8"
)

// ShortInputLimit is the length below which focused input text counts as
// something the user is still typing.
const ShortInputLimit = 300

// InputContext describes the active input of the host at request time.
type InputContext struct {
	Focused bool
	Text    string
}

// FocusedInput reports whether starting a read would hijack typing: the
// active input is focused and holds short, non-blank text.
func FocusedInput(in InputContext) bool {
	if !in.Focused {
		return false
	}
	text := strings.TrimSpace(in.Text)
	return text != "" && utf8.RuneCountInString(text) < ShortInputLimit
}
