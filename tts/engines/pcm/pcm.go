// Package pcm turns a synthesizer that renders whole clips of raw audio
// into a tts.Engine. Clips are cached on disk and played one at a time.
//
// Synthesized speech carries no word timing, so utterances never report
// boundaries; the controller's fallback ticker moves the highlight.
package pcm

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/charmbracelet/log"

	"github.com/clarityread/readaloud/tts"
	"github.com/clarityread/readaloud/tts/audio"
	"github.com/clarityread/readaloud/tts/cache"
)

// Request is one clip to synthesize.
type Request struct {
	Text  string
	Voice string
	Rate  float64
	Pitch float64
}

// Synthesizer renders text to signed 16-bit little endian PCM.
type Synthesizer interface {
	Name() string
	Synthesize(ctx context.Context, req Request) ([]byte, error)
	Format() audio.Format
	Voices() []tts.Voice
	Available() bool
}

// Player plays clips. Play blocks until the clip finishes or ctx is done.
type Player interface {
	Play(ctx context.Context, pcm []byte) error
	Pause()
	Resume()
}

// Cache stores synthesized clips.
type Cache interface {
	Get(key string) ([]byte, error)
	Put(key string, data []byte) error
}

// Options configures an Engine.
type Options struct {
	// Player plays clips. When nil the audio device is opened on first use.
	Player Player
	// Cache is optional.
	Cache Cache
	// Timeout bounds one synthesis call.
	Timeout time.Duration
	Logger  *log.Logger
}

type job struct {
	u       *tts.Utterance
	ctx     context.Context
	cancel  context.CancelFunc
	started bool
}

// Engine speaks utterances through a Synthesizer.
type Engine struct {
	synth   Synthesizer
	cache   Cache
	timeout time.Duration
	logger  *log.Logger

	playerOnce sync.Once
	player     Player
	playerErr  error

	mu       sync.Mutex
	queue    []*job
	current  *job
	paused   bool
	pausedCh chan struct{}

	wake chan struct{}
	done chan struct{}
	stop sync.Once
}

// New starts an engine. Call Close to stop its worker.
func New(synth Synthesizer, opts Options) *Engine {
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}
	if opts.Logger == nil {
		opts.Logger = log.Default().WithPrefix(synth.Name())
	}
	e := &Engine{
		synth:   synth,
		cache:   opts.Cache,
		timeout: opts.Timeout,
		logger:  opts.Logger,
		player:  opts.Player,
		wake:    make(chan struct{}, 1),
		done:    make(chan struct{}),
	}
	if e.player != nil {
		e.playerOnce.Do(func() {})
	}
	go e.run()
	return e
}

// Speak implements tts.Engine.
func (e *Engine) Speak(u *tts.Utterance) error {
	select {
	case <-e.done:
		return errors.New("engine closed")
	default:
	}

	ctx, cancel := context.WithCancel(context.Background())
	e.mu.Lock()
	e.queue = append(e.queue, &job{u: u, ctx: ctx, cancel: cancel})
	e.mu.Unlock()

	select {
	case e.wake <- struct{}{}:
	default:
	}
	return nil
}

// Cancel implements tts.Engine.
func (e *Engine) Cancel() {
	e.mu.Lock()
	defer e.mu.Unlock()

	for _, j := range e.queue {
		j.cancel()
	}
	e.queue = nil
	if e.current != nil {
		e.current.cancel()
		e.current = nil
	}
	e.unpause()
}

// Pause implements tts.Engine.
func (e *Engine) Pause() {
	e.mu.Lock()
	if e.paused {
		e.mu.Unlock()
		return
	}
	e.paused = true
	e.pausedCh = make(chan struct{})
	j, player := e.current, e.player
	started := j != nil && j.started
	e.mu.Unlock()

	if j == nil {
		return
	}
	if player != nil {
		player.Pause()
	}
	if started {
		j.u.Pause()
	}
}

// Resume implements tts.Engine.
func (e *Engine) Resume() {
	e.mu.Lock()
	if !e.paused {
		e.mu.Unlock()
		return
	}
	e.unpause()
	j, player := e.current, e.player
	started := j != nil && j.started
	e.mu.Unlock()

	if j == nil {
		return
	}
	if player != nil {
		player.Resume()
	}
	if started {
		j.u.Resume()
	}
}

// unpause must be called with e.mu held.
func (e *Engine) unpause() {
	e.paused = false
	if e.pausedCh != nil {
		close(e.pausedCh)
		e.pausedCh = nil
	}
}

// Speaking implements tts.Engine.
func (e *Engine) Speaking() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.current != nil || len(e.queue) > 0
}

// Paused implements tts.Engine.
func (e *Engine) Paused() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.paused
}

// Available implements tts.Engine.
func (e *Engine) Available() bool { return e.synth.Available() }

// Voices implements tts.Engine.
func (e *Engine) Voices() []tts.Voice { return e.synth.Voices() }

// Close cancels everything and stops the worker. The synthesizer and
// cache are closed when they hold resources.
func (e *Engine) Close() error {
	var err error
	e.stop.Do(func() {
		e.Cancel()
		close(e.done)
		if c, ok := e.synth.(io.Closer); ok {
			err = c.Close()
		}
		if c, ok := e.cache.(io.Closer); ok {
			err = errors.Join(err, c.Close())
		}
	})
	return err
}

func (e *Engine) run() {
	for {
		select {
		case <-e.done:
			return
		case <-e.wake:
		}
		for j := e.next(); j != nil; j = e.next() {
			e.speak(j)
		}
	}
}

func (e *Engine) next() *job {
	e.mu.Lock()
	defer e.mu.Unlock()
	if len(e.queue) == 0 {
		return nil
	}
	j := e.queue[0]
	e.queue = e.queue[1:]
	e.current = j
	return j
}

// release clears j as the current job. It reports false if j was
// canceled, in which case no further events are delivered for it.
func (e *Engine) release(j *job) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if j.ctx.Err() != nil {
		return false
	}
	if e.current == j {
		e.current = nil
	}
	j.cancel()
	return true
}

func (e *Engine) speak(j *job) {
	pcm, err := e.clip(j)
	if j.ctx.Err() != nil {
		return
	}
	if err != nil {
		e.logger.Error("synthesis failed", "err", err)
		if e.release(j) {
			j.u.Fail(tts.ErrorInfo{Code: "synthesis-failed", Message: err.Error()})
		}
		return
	}

	player, err := e.openPlayer()
	if err != nil {
		if e.release(j) {
			j.u.Fail(tts.ErrorInfo{Code: "audio-unavailable", Message: err.Error()})
		}
		return
	}

	if !e.waitUnpaused(j) {
		return
	}
	e.mu.Lock()
	j.started = true
	e.mu.Unlock()
	j.u.Start()

	err = player.Play(j.ctx, pcm)
	if !e.release(j) {
		return
	}
	if err != nil {
		j.u.Fail(tts.ErrorInfo{Code: "audio-failed", Message: err.Error()})
		return
	}
	j.u.End()
}

// clip returns the audio for j, from the cache when possible.
func (e *Engine) clip(j *job) ([]byte, error) {
	req := Request{Text: j.u.Text, Voice: j.u.Voice, Rate: j.u.Rate, Pitch: j.u.Pitch}
	key := cache.Key(e.synth.Name(), req.Voice, fmt.Sprintf("%.2f", req.Rate), fmt.Sprintf("%.2f", req.Pitch), req.Text)

	if e.cache != nil {
		if data, err := e.cache.Get(key); err == nil {
			e.logger.Debug("cache hit", "key", key[:12])
			return data, nil
		}
	}

	ctx, cancel := context.WithTimeout(j.ctx, e.timeout)
	defer cancel()

	start := time.Now()
	data, err := e.synth.Synthesize(ctx, req)
	if err != nil {
		return nil, err
	}
	if len(data) == 0 {
		return nil, errors.New("no audio generated")
	}
	e.logger.Debug("synthesized", "bytes", len(data), "took", time.Since(start))

	if e.cache != nil {
		if err := e.cache.Put(key, data); err != nil {
			e.logger.Warn("failed to cache audio", "err", err)
		}
	}
	return data, nil
}

func (e *Engine) openPlayer() (Player, error) {
	e.playerOnce.Do(func() {
		p, err := audio.NewPlayer(e.synth.Format())
		e.mu.Lock()
		defer e.mu.Unlock()
		if err != nil {
			e.playerErr = err
			return
		}
		e.player = p
	})
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.player, e.playerErr
}

// waitUnpaused holds a clip back while the engine is paused. It reports
// false if the job was canceled meanwhile.
func (e *Engine) waitUnpaused(j *job) bool {
	for {
		e.mu.Lock()
		ch := e.pausedCh
		e.mu.Unlock()
		if ch == nil {
			return j.ctx.Err() == nil
		}
		select {
		case <-ch:
		case <-j.ctx.Done():
			return false
		}
	}
}
