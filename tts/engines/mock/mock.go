// Package mock provides a mock speech engine for testing and demos.
//
// In scripted mode nothing happens until the test drives an utterance
// through its Handle. In auto mode each utterance is "spoken" by a
// goroutine that emits word boundaries at a fixed words-per-minute.
package mock

import (
	"math/rand"
	"sync"
	"time"

	"github.com/clarityread/readaloud/tts"
	"github.com/clarityread/readaloud/tts/chunk"
)

// Options configures the mock engine.
type Options struct {
	// Auto speaks utterances on its own instead of waiting for the test.
	Auto bool
	// WordsPerMinute is the auto-mode speaking speed at rate 1.0.
	WordsPerMinute int
	// Boundaries controls whether auto mode emits boundary events.
	Boundaries bool
	// FailureRate is the probability an auto-mode utterance fails.
	FailureRate float64
	// ErrorOnCancel makes Cancel report an "interrupted" error for the
	// utterance in flight, as browser engines do.
	ErrorOnCancel bool
	// Unavailable makes Available report false.
	Unavailable bool
	// SpeakErr is returned by Speak when set.
	SpeakErr error
}

// Engine is a mock tts.Engine.
type Engine struct {
	opts Options

	mu       sync.Mutex
	handles  []*Handle
	active   *Handle
	paused   bool
	cancels  int
	pauses   int
	resumes  int
	rng      *rand.Rand
	pausedCh chan struct{}
}

// New creates a mock engine.
func New(opts Options) *Engine {
	if opts.WordsPerMinute <= 0 {
		opts.WordsPerMinute = 180
	}
	return &Engine{
		opts: opts,
		rng:  rand.New(rand.NewSource(time.Now().UnixNano())), //nolint:gosec
	}
}

// Handle is one utterance submitted to the mock engine.
type Handle struct {
	engine    *Engine
	Utterance *tts.Utterance

	mu       sync.Mutex
	started  bool
	finished bool
	stop     chan struct{}
}

// Speak implements tts.Engine.
func (e *Engine) Speak(u *tts.Utterance) error {
	if e.opts.SpeakErr != nil {
		return e.opts.SpeakErr
	}

	h := &Handle{engine: e, Utterance: u, stop: make(chan struct{})}
	e.mu.Lock()
	e.handles = append(e.handles, h)
	e.active = h
	e.mu.Unlock()

	if e.opts.Auto {
		go e.speak(h)
	}
	return nil
}

// Cancel implements tts.Engine.
func (e *Engine) Cancel() {
	e.mu.Lock()
	e.cancels++
	h := e.active
	e.active = nil
	e.paused = false
	if e.pausedCh != nil {
		close(e.pausedCh)
		e.pausedCh = nil
	}
	e.mu.Unlock()

	if h == nil || !h.finish() {
		return
	}
	close(h.stop)
	if e.opts.ErrorOnCancel {
		h.Utterance.Fail(tts.ErrorInfo{Code: "interrupted", Message: "utterance interrupted"})
	}
}

// Pause implements tts.Engine.
func (e *Engine) Pause() {
	e.mu.Lock()
	e.pauses++
	if e.paused {
		e.mu.Unlock()
		return
	}
	e.paused = true
	e.pausedCh = make(chan struct{})
	h := e.active
	e.mu.Unlock()

	if h != nil && h.isStarted() {
		h.Utterance.Pause()
	}
}

// Resume implements tts.Engine.
func (e *Engine) Resume() {
	e.mu.Lock()
	e.resumes++
	if !e.paused {
		e.mu.Unlock()
		return
	}
	e.paused = false
	if e.pausedCh != nil {
		close(e.pausedCh)
		e.pausedCh = nil
	}
	h := e.active
	e.mu.Unlock()

	if h != nil && h.isStarted() {
		h.Utterance.Resume()
	}
}

// Speaking implements tts.Engine.
func (e *Engine) Speaking() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.active != nil
}

// Paused implements tts.Engine.
func (e *Engine) Paused() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.paused
}

// Available implements tts.Engine.
func (e *Engine) Available() bool {
	return !e.opts.Unavailable
}

// Voices implements tts.Engine.
func (e *Engine) Voices() []tts.Voice {
	return []tts.Voice{
		{ID: "mock-en-us", Name: "Mock US", Language: "en-US", Default: true},
		{ID: "mock-en-gb", Name: "Mock GB", Language: "en-GB"},
		{ID: "mock-de-de", Name: "Mock DE", Language: "de-DE"},
	}
}

// Handles returns every utterance submitted so far.
func (e *Engine) Handles() []*Handle {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]*Handle(nil), e.handles...)
}

// Last returns the most recent utterance, or nil.
func (e *Engine) Last() *Handle {
	e.mu.Lock()
	defer e.mu.Unlock()
	if len(e.handles) == 0 {
		return nil
	}
	return e.handles[len(e.handles)-1]
}

// Cancels returns how many times Cancel was called.
func (e *Engine) Cancels() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.cancels
}

// Start fires the utterance's start event.
func (h *Handle) Start() {
	h.mu.Lock()
	h.started = true
	h.mu.Unlock()
	h.Utterance.Start()
}

// Boundary fires a boundary event at a rune offset in the utterance.
func (h *Handle) Boundary(offset int) {
	h.Utterance.Boundary(offset)
}

// End fires the end event and releases the engine.
func (h *Handle) End() {
	h.release()
	h.Utterance.End()
}

// Fail fires an error event and releases the engine.
func (h *Handle) Fail(code, message string) {
	h.release()
	h.Utterance.Fail(tts.ErrorInfo{Code: code, Message: message})
}

func (h *Handle) release() {
	h.finish()
	e := h.engine
	e.mu.Lock()
	if e.active == h {
		e.active = nil
	}
	e.mu.Unlock()
}

func (h *Handle) finish() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.finished {
		return false
	}
	h.finished = true
	return true
}

func (h *Handle) isStarted() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.started
}

// speak simulates speech for h in auto mode.
func (e *Engine) speak(h *Handle) {
	rate := h.Utterance.Rate
	if rate <= 0 {
		rate = 1
	}
	perWord := time.Duration(float64(time.Minute) / (float64(e.opts.WordsPerMinute) * rate))

	e.mu.Lock()
	fail := e.opts.FailureRate > 0 && e.rng.Float64() < e.opts.FailureRate
	e.mu.Unlock()

	h.Start()

	offset := 0
	s := chunk.NewScanner(h.Utterance.Text)
	for s.Scan() {
		if !e.waitUnpaused(h) {
			return
		}
		if e.opts.Boundaries {
			h.Boundary(offset)
		}
		offset += chunk.Runes(s.Text())

		select {
		case <-h.stop:
			return
		case <-time.After(perWord):
		}
		if fail {
			h.Fail("synthesis-failed", "mock synthesis failure")
			return
		}
	}
	if !e.waitUnpaused(h) {
		return
	}
	h.End()
}

// waitUnpaused blocks while the engine is paused. It reports false if the
// utterance was canceled.
func (e *Engine) waitUnpaused(h *Handle) bool {
	for {
		e.mu.Lock()
		ch := e.pausedCh
		e.mu.Unlock()
		if ch == nil {
			break
		}
		select {
		case <-ch:
		case <-h.stop:
			return false
		}
	}
	select {
	case <-h.stop:
		return false
	default:
		return true
	}
}
