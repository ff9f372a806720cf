package tts

import (
	"math"

	"github.com/clarityread/readaloud/tts/chunk"
)

// submit sends the current chunk of session id to the engine.
func (c *Controller) submit(id uint64) {
	s := c.live(id)
	if s == nil {
		return
	}
	if s.Done() {
		c.finish(EventFinish)
		return
	}
	c.speak(s, s.Rate, false)
}

// speak submits s.Current() at rate. Every callback captures the session
// id and utterance sequence and is re-posted onto the loop.
func (c *Controller) speak(s *Session, rate float64, retry bool) {
	c.uttSeq++
	u := &utterance{seq: c.uttSeq, text: s.Current(), rate: rate, retry: retry}
	s.utterance = u

	id, seq := s.ID, u.seq
	post := func(fn func()) func() {
		return func() { c.sched.Post(fn) }
	}

	utt := &Utterance{
		Text:  u.text,
		Voice: s.Voice,
		Rate:  rate,
		Pitch: s.Pitch,
		Events: UtteranceEvents{
			OnStart:  post(func() { c.handleStart(id, seq) }),
			OnPause:  post(func() { c.handlePause(id, seq) }),
			OnResume: post(func() { c.handleResume(id, seq) }),
			OnEnd:    post(func() { c.handleEnd(id, seq) }),
			OnBoundary: func(offset int) {
				c.sched.Post(func() { c.handleBoundary(id, seq, offset) })
			},
			OnError: func(info ErrorInfo) {
				c.sched.Post(func() { c.handleError(id, seq, info) })
			},
		},
	}

	c.logger.Debug("submitting chunk", "session", id, "chunk", s.ChunkIndex,
		"offset", s.CharsSpokenBefore, "runes", chunk.Runes(u.text), "rate", rate, "retry", retry)
	c.emitChunk(ChunkInfo{
		Session: id,
		Index:   s.ChunkIndex,
		Total:   len(s.Chunks),
		Offset:  s.CharsSpokenBefore,
		Text:    u.text,
		Rate:    rate,
		Retry:   retry,
	})

	if err := c.engine.Speak(utt); err != nil {
		info := ErrorInfo{Code: "submit-failed", Message: err.Error()}
		c.sched.Post(func() { c.handleError(id, seq, info) })
	}
}

// live returns the current session if id is still current.
func (c *Controller) live(id uint64) *Session {
	if c.session == nil || c.session.ID != id || id != c.sessionID {
		return nil
	}
	return c.session
}

// current returns the session and utterance if both are still current and
// the utterance has not settled.
func (c *Controller) current(id, seq uint64) (*Session, *utterance) {
	s := c.live(id)
	if s == nil || s.utterance == nil || s.utterance.seq != seq || s.utterance.settled {
		return nil, nil
	}
	return s, s.utterance
}

func (c *Controller) handleStart(id, seq uint64) {
	s, u := c.current(id, seq)
	if s == nil {
		return
	}
	u.started = true
	c.sync.CancelFallback()
	c.machine.Fire(EventEngineStart)
	// A start delivered while paused leaves the clock and ticker stopped
	// until Resume.
	if c.State() != StateSpeaking {
		return
	}
	c.stats.Start()
	c.armFallback(s)
}

func (c *Controller) handleBoundary(id, seq uint64, offset int) {
	s, _ := c.current(id, seq)
	if s == nil || !s.Highlight {
		return
	}
	c.sync.Boundary(offset + s.CharsSpokenBefore)
}

func (c *Controller) handlePause(id, seq uint64) {
	if s, _ := c.current(id, seq); s == nil {
		return
	}
	c.sync.CancelFallback()
	c.stats.Pause()
	c.machine.Fire(EventPause)
}

func (c *Controller) handleResume(id, seq uint64) {
	s, u := c.current(id, seq)
	if s == nil {
		return
	}
	c.machine.Fire(EventResume)
	if u.started {
		c.stats.Resume()
		c.armFallback(s)
	}
}

func (c *Controller) handleEnd(id, seq uint64) {
	_, u := c.current(id, seq)
	if u == nil {
		return
	}
	u.settled = true
	c.sync.CancelFallback()
	c.scheduleAdvance(id)
}

func (c *Controller) handleError(id, seq uint64, info ErrorInfo) {
	s, u := c.current(id, seq)
	if s == nil {
		return
	}
	u.settled = true
	c.sync.CancelFallback()

	if c.isBenign(info) {
		c.logger.Debug("benign engine error, skipping chunk", "session", id, "chunk", s.ChunkIndex, "error", info)
		c.scheduleAdvance(id)
		return
	}

	if !s.retried {
		s.retried = true
		rate := math.Max(u.rate-c.config.RetryRateStep, c.config.RetryRateFloor)
		c.logger.Warn("engine error, retrying chunk", "session", id, "chunk", s.ChunkIndex, "rate", rate, "error", info)
		c.speak(s, rate, true)
		return
	}

	err := NewReadError(ErrCodeEngineTerminal, &EngineError{Info: info, Chunk: s.ChunkIndex}).
		WithContext("session", id).
		WithContext("retry", u.retry)
	c.logger.Error("engine failed again, ending session", "session", id, "chunk", s.ChunkIndex, "error", info)
	c.finish(EventFail)
	c.emitError(err)
}

func (c *Controller) isBenign(info ErrorInfo) bool {
	return c.benign.MatchString(info.Code) || c.benign.MatchString(info.Message)
}

// scheduleAdvance moves to the next chunk after the advance delay, which
// keeps the next Speak out of the engine's own callback. While paused the
// submit is held until Resume.
func (c *Controller) scheduleAdvance(id uint64) {
	if c.pending != nil {
		c.pending.Stop()
	}
	c.pending = c.sched.AfterFunc(c.config.AdvanceDelay, func() {
		c.pending = nil
		s := c.live(id)
		if s == nil {
			return
		}
		s.advance()
		if c.State() == StatePaused {
			c.held = true
			return
		}
		c.submit(id)
	})
}

// armFallback starts degraded-mode highlighting for the current utterance.
func (c *Controller) armFallback(s *Session) {
	if !s.Highlight || s.utterance == nil || !s.utterance.started {
		return
	}
	start := s.CharsSpokenBefore
	end := start + chunk.Runes(s.utterance.text)
	c.sync.ArmFallback(start, end, c.sync.EstimateInterval(s.utterance.text, s.utterance.rate))
}
