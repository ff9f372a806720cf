package ui

import (
	"strings"
	"unicode"

	"github.com/muesli/reflow/wordwrap"

	"github.com/clarityread/readaloud/tts/highlight"
)

// span is a half-open rune range of the document text.
type span struct {
	from, to int
}

func (s span) empty() bool {
	return s.to <= s.from
}

// unitSpan returns the range of unit pos without its trailing whitespace.
func unitSpan(units []highlight.Unit, index *highlight.Index, pos int) span {
	if pos < 0 || pos >= len(units) || index == nil || index.Len() != len(units) {
		return span{}
	}
	content := strings.TrimRightFunc(units[pos].Content, unicode.IsSpace)
	from := index.Start(pos)
	if pos == 0 {
		lead := len([]rune(content)) - len([]rune(strings.TrimLeftFunc(content, unicode.IsSpace)))
		from += lead
		content = strings.TrimLeftFunc(content, unicode.IsSpace)
	}
	return span{from: from, to: from + len([]rune(content))}
}

// render wraps text to width and paints s with style. It also returns the
// wrapped line on which s begins.
func render(text string, s span, width int, style func(...string) string) (string, int) {
	runes := []rune(text)
	s.from = clamp(s.from, 0, len(runes))
	s.to = clamp(s.to, s.from, len(runes))

	before := string(runes[:s.from])
	body := before
	if !s.empty() {
		body += style(string(runes[s.from:s.to]))
	}
	body += string(runes[s.to:])

	// Words are never split, so the span starts on the line where its
	// first word ends.
	lead := before
	if !s.empty() {
		lead += firstWord(string(runes[s.from:s.to]))
	}
	if width <= 0 {
		return body, strings.Count(lead, "\n")
	}
	return wordwrap.String(body, width), strings.Count(wordwrap.String(lead, width), "\n")
}

func firstWord(s string) string {
	if i := strings.IndexFunc(s, unicode.IsSpace); i >= 0 {
		return s[:i]
	}
	return s
}

func clamp(v, lo, hi int) int {
	return max(lo, min(v, hi))
}
