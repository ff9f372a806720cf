// Package tts reads text aloud through a pluggable speech engine.
//
// The Controller owns the session state machine. It runs on a single
// loop goroutine; every engine callback is re-posted onto that loop and
// checked against the live session id before it may touch any state.
package tts

import (
	"regexp"
	"strings"
	"time"

	"github.com/charmbracelet/log"

	"github.com/clarityread/readaloud/tts/chunk"
	"github.com/clarityread/readaloud/tts/guard"
	"github.com/clarityread/readaloud/tts/highlight"
	"github.com/clarityread/readaloud/tts/loop"
	"github.com/clarityread/readaloud/tts/stats"
	ttssync "github.com/clarityread/readaloud/tts/sync"
)

// Controller orchestrates chunking, engine submission, highlighting and
// time accounting. All methods must be called on the scheduler's loop.
type Controller struct {
	sched  loop.Scheduler
	engine Engine
	config ControllerConfig
	benign *regexp.Regexp
	logger *log.Logger

	machine   *StateMachine
	sessionID uint64
	session   *Session
	uttSeq    uint64

	duplicate *guard.Duplicate
	stats     *stats.Accumulator
	sync      *ttssync.Manager

	settleUntil time.Time
	pending     loop.Timer // deferred submit or advance
	held        bool       // next chunk waits for Resume

	// Callbacks
	onStatus    []func(Status)
	onHighlight []func(ttssync.Event)
	onChunk     []func(ChunkInfo)
	onError     []func(error)
}

// NewController creates a controller. sink may be nil.
func NewController(sched loop.Scheduler, engine Engine, sink stats.Sink, config ControllerConfig, logger *log.Logger) *Controller {
	if logger == nil {
		logger = log.Default().WithPrefix("tts")
	}
	benign, err := regexp.Compile(config.BenignErrorPattern)
	if err != nil || config.BenignErrorPattern == "" {
		if err != nil {
			logger.Warn("bad benign error pattern, using default", "pattern", config.BenignErrorPattern, "err", err)
		}
		benign = regexp.MustCompile(DefaultBenignErrorPattern)
	}
	if config.MaxChunkChars <= 0 {
		config.MaxChunkChars = chunk.DefaultMaxChars
	}

	c := &Controller{
		sched:     sched,
		engine:    engine,
		config:    config,
		benign:    benign,
		logger:    logger,
		machine:   NewStateMachine(),
		duplicate: guard.NewDuplicate(config.DuplicateWindow),
		stats: stats.NewAccumulator(sched, sink, stats.Options{
			Tick:       config.StatsTick,
			FlushEvery: config.StatsFlushEvery,
			Logger:     logger.WithPrefix("stats"),
		}),
		sync: ttssync.NewManager(sched, ttssync.Config{
			FallbackGrace: config.FallbackGrace,
		}, logger.WithPrefix("sync")),
	}

	c.machine.OnChange(func(from, to State) {
		if from.Status() == to.Status() {
			return
		}
		c.logger.Debug("status", "from", from.Status(), "to", to.Status(), "session", c.sessionID)
		for _, fn := range c.onStatus {
			fn(to.Status())
		}
	})
	c.sync.OnChange(func(ev ttssync.Event) {
		for _, fn := range c.onHighlight {
			fn(ev)
		}
	})

	return c
}

// OnStatus registers a callback for status notifications. It is called
// once per real status change.
func (c *Controller) OnStatus(fn func(Status)) {
	c.onStatus = append(c.onStatus, fn)
}

// OnHighlight registers a callback for highlight events.
func (c *Controller) OnHighlight(fn func(ttssync.Event)) {
	c.onHighlight = append(c.onHighlight, fn)
}

// OnChunk registers a callback invoked for every submission to the engine.
func (c *Controller) OnChunk(fn func(ChunkInfo)) {
	c.onChunk = append(c.onChunk, fn)
}

// OnError registers a callback for terminal session errors.
func (c *Controller) OnError(fn func(error)) {
	c.onError = append(c.onError, fn)
}

// State returns the current playback state.
func (c *Controller) State() State {
	return c.machine.Current()
}

// SessionID returns the live session id.
func (c *Controller) SessionID() uint64 {
	return c.sessionID
}

// Session returns the active session, or nil when idle.
func (c *Controller) Session() *Session {
	return c.session
}

// Highlight returns the highlighted unit and the overlay units.
func (c *Controller) Highlight() (int, []highlight.Unit) {
	return c.sync.Position(), c.sync.Units()
}

// Elapsed returns the active speaking time of the current session.
func (c *Controller) Elapsed() time.Duration {
	return c.stats.Elapsed()
}

// Start supersedes any current session and begins reading req.Text.
func (c *Controller) Start(req ReadRequest) error {
	if err := c.precheck(req.Text, req.Input); err != nil {
		return err
	}
	if c.duplicate.Check(req.Text, c.sched.Now()) {
		c.logger.Debug("duplicate read suppressed")
		return NewReadError(ErrCodeDuplicateRead, nil)
	}

	chunks, err := chunk.Split(req.Text, c.config.MaxChunkChars)
	if err != nil {
		return err
	}

	c.begin(&Session{
		Mode:      ModeRead,
		Text:      req.Text,
		Chunks:    chunks,
		Voice:     req.Voice,
		Rate:      normalize(req.Rate, 1, ClampRate),
		Pitch:     normalize(req.Pitch, 1, ClampPitch),
		Highlight: req.Highlight,
	})
	return nil
}

// SpeedRead supersedes any current session and reads req.Text in word
// chunks. Repeated requests always restart.
func (c *Controller) SpeedRead(req SpeedReadRequest) error {
	if err := c.precheck(req.Text, req.Input); err != nil {
		return err
	}

	words := req.WordsPerChunk
	if words <= 0 {
		words = c.config.SpeedReadWords
	}
	chunks, err := chunk.Words(req.Text, words)
	if err != nil {
		return err
	}

	c.begin(&Session{
		Mode:   ModeSpeedRead,
		Text:   req.Text,
		Chunks: chunks,
		Voice:  req.Voice,
		Rate:   normalize(req.Rate, 1, ClampRate),
		Pitch:  1,
	})
	return nil
}

func (c *Controller) precheck(text string, input guard.InputContext) error {
	if strings.TrimSpace(text) == "" {
		return NewReadError(ErrCodeNoText, nil)
	}
	if c.engine == nil || !c.engine.Available() {
		return NewReadError(ErrCodeNoTTS, nil)
	}
	if guard.FocusedInput(input) {
		return NewReadError(ErrCodeFocusedInput, nil)
	}
	return nil
}

func (c *Controller) begin(s *Session) {
	prev := c.session
	c.sessionID++
	s.ID = c.sessionID

	if prev != nil {
		c.logger.Debug("superseding session", "old", prev.ID, "new", s.ID)
		c.engine.Cancel()
		c.cleanup()
	}

	c.session = s
	c.stats.Reset()
	c.machine.Fire(EventStart)
	c.logger.Info("reading", "session", s.ID, "mode", s.Mode, "chunks", len(s.Chunks), "rate", s.Rate)

	if s.Highlight {
		c.sync.Attach(highlight.NewOverlay(c.sched, s.Text, c.config.Overlay))
	}

	if wait := c.settleUntil.Sub(c.sched.Now()); wait > 0 {
		id := s.ID
		c.pending = c.sched.AfterFunc(wait, func() {
			c.pending = nil
			c.submit(id)
		})
		return
	}
	c.submit(s.ID)
}

// Pause pauses active, non-paused speech.
func (c *Controller) Pause() error {
	if c.session == nil || c.State() != StateSpeaking ||
		!c.engine.Speaking() || c.engine.Paused() {
		return NewReadError(ErrCodeNothingToPause, nil)
	}

	c.engine.Pause()
	c.sync.CancelFallback()
	c.stats.Pause()
	c.machine.Fire(EventPause)
	return nil
}

// Resume continues paused speech, or submits the next chunk when the
// previous one ended during the pause.
func (c *Controller) Resume() error {
	s := c.session
	if s == nil || c.State() != StatePaused || !(c.engine.Paused() || c.held) {
		return NewReadError(ErrCodeNothingToResume, nil)
	}

	c.engine.Resume()
	c.machine.Fire(EventResume)
	if c.held {
		c.held = false
		c.submit(s.ID)
		return nil
	}
	if u := s.utterance; u != nil && u.started && !u.settled {
		c.stats.Resume()
		c.armFallback(s)
	}
	return nil
}

// Stop ends any session, cancels the engine and flushes stats. A Start
// during the following settle window waits for it before speaking.
func (c *Controller) Stop() {
	c.sessionID++
	if c.engine != nil {
		c.engine.Cancel()
	}
	c.finish(EventStop)
	c.settleUntil = c.sched.Now().Add(c.config.StopSettle)
}

// finish ends the current session with ev and cleans up.
func (c *Controller) finish(ev Event) {
	if c.session != nil {
		c.logger.Info("session ended", "session", c.session.ID, "reason", ev,
			"chunk", c.session.ChunkIndex, "of", len(c.session.Chunks))
	}
	c.cleanup()
	c.session = nil
	c.machine.Fire(ev)
}

// cleanup cancels every timer and flushes stats for the current session.
func (c *Controller) cleanup() {
	if c.pending != nil {
		c.pending.Stop()
		c.pending = nil
	}
	c.held = false
	c.sync.Detach()
	if n := c.stats.Finalize(); n > 0 {
		c.logger.Debug("flushed reading time", "seconds", n)
	}
}

func (c *Controller) emitChunk(info ChunkInfo) {
	for _, fn := range c.onChunk {
		fn(info)
	}
}

func (c *Controller) emitError(err error) {
	for _, fn := range c.onError {
		fn(err)
	}
}
