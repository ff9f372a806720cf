package tts

import "fmt"

// Engine is a speech synthesizer that speaks one utterance at a time.
//
// Speak is fire-and-forget: progress is reported through the utterance's
// callbacks, which may run on any goroutine, possibly before Speak returns.
// Cancel is best-effort; callbacks for a canceled utterance may still
// arrive afterwards.
type Engine interface {
	// Speak queues u for synthesis.
	Speak(u *Utterance) error

	// Cancel drops the current and queued utterances.
	Cancel()

	// Pause suspends speech in progress.
	Pause()

	// Resume continues paused speech.
	Resume()

	// Speaking reports whether an utterance is queued or being spoken.
	Speaking() bool

	// Paused reports whether speech is paused.
	Paused() bool

	// Available reports whether the engine can be used at all.
	Available() bool

	// Voices returns the voices the engine offers.
	Voices() []Voice
}

// Voice describes a synthesizer voice.
type Voice struct {
	ID       string
	Name     string
	Language string // BCP 47 tag, e.g. "en-US"
	Default  bool
}

// String returns a human readable description of the voice.
func (v Voice) String() string {
	if v.Language == "" {
		return v.Name
	}
	return fmt.Sprintf("%s (%s)", v.Name, v.Language)
}

// ErrorInfo is the engine's description of a failed utterance.
type ErrorInfo struct {
	Code    string
	Message string
}

func (e ErrorInfo) String() string {
	switch {
	case e.Code == "":
		return e.Message
	case e.Message == "":
		return e.Code
	default:
		return e.Code + ": " + e.Message
	}
}

// UtteranceEvents are the lifecycle hooks of one utterance. Any of them
// may be nil.
type UtteranceEvents struct {
	OnStart func()
	// OnBoundary receives the rune offset within the utterance text of the
	// word about to be spoken.
	OnBoundary func(offset int)
	OnPause    func()
	OnResume   func()
	OnEnd      func()
	OnError    func(ErrorInfo)
}

// Utterance is one chunk of text submitted to an Engine.
type Utterance struct {
	Text   string
	Voice  string
	Rate   float64
	Pitch  float64
	Events UtteranceEvents
}

// Start invokes OnStart if set.
func (u *Utterance) Start() {
	if u.Events.OnStart != nil {
		u.Events.OnStart()
	}
}

// Boundary invokes OnBoundary if set.
func (u *Utterance) Boundary(offset int) {
	if u.Events.OnBoundary != nil {
		u.Events.OnBoundary(offset)
	}
}

// Pause invokes OnPause if set.
func (u *Utterance) Pause() {
	if u.Events.OnPause != nil {
		u.Events.OnPause()
	}
}

// Resume invokes OnResume if set.
func (u *Utterance) Resume() {
	if u.Events.OnResume != nil {
		u.Events.OnResume()
	}
}

// End invokes OnEnd if set.
func (u *Utterance) End() {
	if u.Events.OnEnd != nil {
		u.Events.OnEnd()
	}
}

// Fail invokes OnError if set.
func (u *Utterance) Fail(info ErrorInfo) {
	if u.Events.OnError != nil {
		u.Events.OnError(info)
	}
}
