package tts

import (
	"github.com/clarityread/readaloud/tts/chunk"
	"github.com/clarityread/readaloud/tts/guard"
)

// Mode is how a session chunks its text.
type Mode int

const (
	// ModeRead chunks by characters and may highlight.
	ModeRead Mode = iota
	// ModeSpeedRead chunks by words and never highlights.
	ModeSpeedRead
)

func (m Mode) String() string {
	if m == ModeSpeedRead {
		return "speed-read"
	}
	return "read"
}

// ReadRequest asks the controller to read text aloud. A zero Rate or
// Pitch means 1.0; other values are clamped to the supported range.
type ReadRequest struct {
	Text      string
	Voice     string
	Rate      float64
	Pitch     float64
	Highlight bool

	// Input describes the host's focused input, if any.
	Input guard.InputContext
}

// SpeedReadRequest asks for a word-chunked reading without highlighting.
type SpeedReadRequest struct {
	Text          string
	Voice         string
	WordsPerChunk int
	Rate          float64

	Input guard.InputContext
}

// Session is one playback attempt. Chunks are fixed once it starts.
type Session struct {
	ID                uint64
	Mode              Mode
	Text              string
	Chunks            []string
	ChunkIndex        int
	CharsSpokenBefore int
	Voice             string
	Rate              float64
	Pitch             float64
	Highlight         bool

	retried   bool
	utterance *utterance
}

// Done reports whether every chunk has been spoken.
func (s *Session) Done() bool {
	return s.ChunkIndex >= len(s.Chunks)
}

// Current returns the chunk being spoken.
func (s *Session) Current() string {
	if s.Done() {
		return ""
	}
	return s.Chunks[s.ChunkIndex]
}

// advance moves past the current chunk.
func (s *Session) advance() {
	s.CharsSpokenBefore += chunk.Runes(s.Current())
	s.ChunkIndex++
	s.utterance = nil
}

// utterance tracks the one in-flight submission of a session.
type utterance struct {
	seq     uint64
	text    string
	rate    float64
	retry   bool
	started bool
	settled bool
}

// ChunkInfo describes a submission to the engine.
type ChunkInfo struct {
	Session uint64
	Index   int
	Total   int
	// Offset is the rune offset of the chunk within the session text.
	Offset int
	Text   string
	Rate   float64
	Retry  bool
}

func normalize(v, def float64, clampFn func(float64) float64) float64 {
	if v == 0 {
		v = def
	}
	return clampFn(v)
}
