package tts

import (
	"context"
	"fmt"
	"time"

	"github.com/charmbracelet/log"

	"github.com/clarityread/readaloud/tts/loop"
	"github.com/clarityread/readaloud/tts/stats"
	ttssync "github.com/clarityread/readaloud/tts/sync"
)

const messageBuffer = 1024

// Service runs a Controller on its own loop goroutine and exposes it
// safely to other goroutines.
type Service struct {
	loop   *loop.Loop
	ctrl   *Controller
	logger *log.Logger

	msgs   chan any
	ctx    context.Context
	cancel context.CancelFunc
}

// Snapshot is a consistent view of the controller.
type Snapshot struct {
	State     State
	Session   uint64
	Chunk     int
	Chunks    int
	Highlight int
	Elapsed   time.Duration
}

// NewService starts a loop and a controller for engine.
func NewService(engine Engine, sink stats.Sink, config ControllerConfig, logger *log.Logger) *Service {
	if logger == nil {
		logger = log.Default().WithPrefix("tts")
	}
	ctx, cancel := context.WithCancel(context.Background())
	l := loop.New()
	s := &Service{
		loop:   l,
		ctrl:   NewController(l, engine, sink, config, logger),
		logger: logger,
		msgs:   make(chan any, messageBuffer),
		ctx:    ctx,
		cancel: cancel,
	}

	s.ctrl.OnStatus(func(st Status) {
		s.push(StatusMsg{Session: s.ctrl.SessionID(), Status: st})
	})
	s.ctrl.OnHighlight(func(ev ttssync.Event) {
		s.push(HighlightMsg{Session: s.ctrl.SessionID(), Kind: ev.Kind, Position: ev.Position, Units: ev.Units})
	})
	s.ctrl.OnChunk(func(info ChunkInfo) {
		s.push(ChunkMsg{info})
	})
	s.ctrl.OnError(func(err error) {
		s.push(ErrorMsg{Err: err})
	})

	go func() {
		if err := l.Run(ctx); err != nil && ctx.Err() == nil {
			logger.Error("event loop stopped", "err", err)
		}
	}()
	return s
}

// push never blocks the loop. Messages are dropped when nobody reads them.
func (s *Service) push(msg any) {
	select {
	case s.msgs <- msg:
	default:
		s.logger.Debug("message dropped, buffer full", "type", fmt.Sprintf("%T", msg))
	}
}

// Messages returns the stream of StatusMsg, HighlightMsg, ChunkMsg and
// ErrorMsg values.
func (s *Service) Messages() <-chan any {
	return s.msgs
}

func (s *Service) do(ctx context.Context, fn func() error) error {
	var err error
	if cerr := s.loop.Call(ctx, func() { err = fn() }); cerr != nil {
		return cerr
	}
	return err
}

// Start begins reading req, superseding any current session.
func (s *Service) Start(ctx context.Context, req ReadRequest) error {
	return s.do(ctx, func() error { return s.ctrl.Start(req) })
}

// SpeedRead begins speed-reading req, superseding any current session.
func (s *Service) SpeedRead(ctx context.Context, req SpeedReadRequest) error {
	return s.do(ctx, func() error { return s.ctrl.SpeedRead(req) })
}

// Pause pauses playback.
func (s *Service) Pause(ctx context.Context) error {
	return s.do(ctx, s.ctrl.Pause)
}

// Resume resumes playback.
func (s *Service) Resume(ctx context.Context) error {
	return s.do(ctx, s.ctrl.Resume)
}

// Toggle pauses speech in progress and resumes paused speech.
func (s *Service) Toggle(ctx context.Context) error {
	return s.do(ctx, s.toggle)
}

func (s *Service) toggle() error {
	if s.ctrl.State() == StatePaused {
		return s.ctrl.Resume()
	}
	return s.ctrl.Pause()
}

// Stop stops playback.
func (s *Service) Stop(ctx context.Context) error {
	return s.do(ctx, func() error {
		s.ctrl.Stop()
		return nil
	})
}

// Snapshot returns the controller's current state.
func (s *Service) Snapshot(ctx context.Context) (Snapshot, error) {
	var snap Snapshot
	err := s.do(ctx, func() error {
		pos, _ := s.ctrl.Highlight()
		snap = Snapshot{
			State:     s.ctrl.State(),
			Session:   s.ctrl.SessionID(),
			Highlight: pos,
			Elapsed:   s.ctrl.Elapsed(),
		}
		if sess := s.ctrl.Session(); sess != nil {
			snap.Chunk = sess.ChunkIndex
			snap.Chunks = len(sess.Chunks)
		}
		return nil
	})
	return snap, err
}

// Close stops playback, flushing stats, and shuts the loop down.
func (s *Service) Close(ctx context.Context) error {
	err := s.Stop(ctx)
	s.cancel()
	select {
	case <-s.loop.Done():
	case <-ctx.Done():
		return ctx.Err()
	}
	if err == loop.ErrClosed {
		return nil
	}
	return err
}
