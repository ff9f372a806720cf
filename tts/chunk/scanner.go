package chunk

import (
	"unicode"
	"unicode/utf8"
)

// Scanner yields word spans one at a time: a run of non-space runes plus
// the whitespace that follows it. Whitespace before the first word is
// attached to the first span.
type Scanner struct {
	text string
	pos  int
	span string
}

// NewScanner returns a Scanner over text.
func NewScanner(text string) *Scanner {
	return &Scanner{text: text}
}

// Scan advances to the next span. It returns false at the end of the text.
func (s *Scanner) Scan() bool {
	if s.pos >= len(s.text) {
		s.span = ""
		return false
	}

	start := s.pos
	i := s.pos
	if start == 0 {
		i = s.skip(i, true)
	}
	i = s.skip(i, false)
	i = s.skip(i, true)

	s.span = s.text[start:i]
	s.pos = i
	return true
}

// Text returns the span produced by the last call to Scan.
func (s *Scanner) Text() string {
	return s.span
}

// Offset returns the byte offset just past the current span.
func (s *Scanner) Offset() int {
	return s.pos
}

// skip advances over runes that are (space=true) or are not whitespace.
func (s *Scanner) skip(i int, space bool) int {
	for i < len(s.text) {
		r, size := utf8.DecodeRuneInString(s.text[i:])
		if unicode.IsSpace(r) != space {
			break
		}
		i += size
	}
	return i
}
