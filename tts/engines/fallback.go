package engines

import (
	"regexp"
	"sync"

	"github.com/charmbracelet/log"

	"github.com/clarityread/readaloud/tts"
)

// FallbackEngine speaks through a primary engine and switches to a
// secondary one when the primary is unavailable or keeps failing.
type FallbackEngine struct {
	primary     tts.Engine
	fallback    tts.Engine
	maxFailures int
	benign      *regexp.Regexp
	logger      *log.Logger

	mu            sync.Mutex
	failures      int
	usingFallback bool
}

// NewFallbackEngine creates an engine with automatic fallback. Primary
// errors matching benign are not counted as failures; nil selects
// tts.DefaultBenignErrorPattern.
func NewFallbackEngine(primary, fallback tts.Engine, maxFailures int, benign *regexp.Regexp, logger *log.Logger) *FallbackEngine {
	if maxFailures <= 0 {
		maxFailures = 3
	}
	if benign == nil {
		benign = regexp.MustCompile(tts.DefaultBenignErrorPattern)
	}
	if logger == nil {
		logger = log.Default().WithPrefix("fallback")
	}
	return &FallbackEngine{
		primary:     primary,
		fallback:    fallback,
		maxFailures: maxFailures,
		benign:      benign,
		logger:      logger,
	}
}

// active returns the engine currently in use.
func (f *FallbackEngine) active() tts.Engine {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.usingFallback || !f.primary.Available() {
		return f.fallback
	}
	return f.primary
}

// UsingFallback reports whether the secondary engine is in use.
func (f *FallbackEngine) UsingFallback() bool {
	return f.active() == f.fallback
}

// Speak implements tts.Engine. Failures of the primary are counted; the
// controller still sees every error and applies its own retry policy.
// Voices are engine specific, so an utterance routed to the secondary
// gets its closest voice, or the secondary's default.
func (f *FallbackEngine) Speak(u *tts.Utterance) error {
	eng := f.active()
	if eng == f.fallback {
		if u.Voice == "" {
			return eng.Speak(u)
		}
		remapped := *u
		remapped.Voice = ""
		if v, ok := MatchVoice(eng.Voices(), u.Voice); ok {
			remapped.Voice = v.ID
		}
		return eng.Speak(&remapped)
	}

	wrapped := *u
	onEnd, onError := u.Events.OnEnd, u.Events.OnError
	wrapped.Events.OnEnd = func() {
		f.recordSuccess()
		if onEnd != nil {
			onEnd()
		}
	}
	wrapped.Events.OnError = func(info tts.ErrorInfo) {
		if !f.benign.MatchString(info.Code) && !f.benign.MatchString(info.Message) {
			f.recordFailure(info)
		}
		if onError != nil {
			onError(info)
		}
	}

	if err := eng.Speak(&wrapped); err != nil {
		f.recordFailure(tts.ErrorInfo{Code: "submit-failed", Message: err.Error()})
		return err
	}
	return nil
}

func (f *FallbackEngine) recordSuccess() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failures > 0 && !f.usingFallback {
		f.logger.Info("primary engine recovered", "failures", f.failures)
		f.failures = 0
	}
}

func (f *FallbackEngine) recordFailure(info tts.ErrorInfo) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.usingFallback {
		return
	}
	f.failures++
	f.logger.Warn("primary engine failed", "attempt", f.failures, "max", f.maxFailures, "error", info)
	if f.failures >= f.maxFailures {
		f.logger.Warn("switching to fallback engine")
		f.usingFallback = true
	}
}

// Cancel implements tts.Engine. Both engines are canceled since an
// utterance may still be in flight on the one just abandoned.
func (f *FallbackEngine) Cancel() {
	f.primary.Cancel()
	f.fallback.Cancel()
}

// Pause implements tts.Engine.
func (f *FallbackEngine) Pause() { f.active().Pause() }

// Resume implements tts.Engine.
func (f *FallbackEngine) Resume() { f.active().Resume() }

// Speaking implements tts.Engine.
func (f *FallbackEngine) Speaking() bool { return f.active().Speaking() }

// Paused implements tts.Engine.
func (f *FallbackEngine) Paused() bool { return f.active().Paused() }

// Available implements tts.Engine.
func (f *FallbackEngine) Available() bool {
	return f.primary.Available() || f.fallback.Available()
}

// Voices implements tts.Engine.
func (f *FallbackEngine) Voices() []tts.Voice {
	return f.active().Voices()
}
