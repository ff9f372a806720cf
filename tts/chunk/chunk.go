// Package chunk splits text into synthesizer-sized pieces.
//
// Lengths are counted in runes. Every function here tiles its input: the
// concatenation of the returned pieces is exactly the original text.
package chunk

import (
	"errors"
	"strings"
)

// DefaultMaxChars is the largest chunk submitted to an engine by default.
const DefaultMaxChars = 1800

// ErrInvalidChunkSize is returned for a non-positive chunk size.
var ErrInvalidChunkSize = errors.New("chunk size must be positive")

// Split cuts text into consecutive pieces of at most maxChars runes. All
// pieces but the last are exactly maxChars long.
func Split(text string, maxChars int) ([]string, error) {
	if maxChars <= 0 {
		return nil, ErrInvalidChunkSize
	}
	if text == "" {
		return []string{}, nil
	}

	var chunks []string
	start, count := 0, 0
	for i := range text {
		if count == maxChars {
			chunks = append(chunks, text[start:i])
			start, count = i, 0
		}
		count++
	}
	chunks = append(chunks, text[start:])
	return chunks, nil
}

// Words groups word spans into pieces of at most wordsPerChunk words.
func Words(text string, wordsPerChunk int) ([]string, error) {
	if wordsPerChunk <= 0 {
		return nil, ErrInvalidChunkSize
	}

	var (
		chunks []string
		b      strings.Builder
		n      int
	)
	s := NewScanner(text)
	for s.Scan() {
		b.WriteString(s.Text())
		n++
		if n == wordsPerChunk {
			chunks = append(chunks, b.String())
			b.Reset()
			n = 0
		}
	}
	if n > 0 {
		chunks = append(chunks, b.String())
	}
	if chunks == nil {
		chunks = []string{}
	}
	return chunks, nil
}

// Runes returns the length of s in runes.
func Runes(s string) int {
	n := 0
	for range s {
		n++
	}
	return n
}
