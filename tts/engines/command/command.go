// Package command speaks through a system speech command such as
// espeak-ng or macOS say, one process per utterance.
//
// The commands report no word timing. Pause and resume stop and continue
// the process where the platform supports it.
package command

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"golang.org/x/time/rate"

	"github.com/clarityread/readaloud/tts"
)

// Candidates are the commands tried, in order, when none is configured.
var Candidates = []string{"espeak-ng", "espeak", "say"}

// baseWPM is the commands' speaking speed at rate 1.0.
const baseWPM = 175

// Options configures the command engine.
type Options struct {
	// Binary is the speech command; the first of Candidates found on PATH
	// when empty.
	Binary string
	// MaxSpawnsPerSecond limits how fast processes are started.
	MaxSpawnsPerSecond float64
	Logger             *log.Logger
}

type job struct {
	u       *tts.Utterance
	ctx     context.Context
	cancel  context.CancelFunc
	cmd     *exec.Cmd
	started bool
}

// Engine is a tts.Engine backed by a speech command.
type Engine struct {
	binary  string
	say     bool
	limiter *rate.Limiter
	logger  *log.Logger

	mu       sync.Mutex
	queue    []*job
	current  *job
	paused   bool
	pausedCh chan struct{}

	voicesOnce sync.Once
	voices     []tts.Voice

	wake chan struct{}
	done chan struct{}
	stop sync.Once
}

// New starts a command engine. Call Close to stop its worker.
func New(opts Options) *Engine {
	if opts.Logger == nil {
		opts.Logger = log.Default().WithPrefix("command")
	}
	limit := rate.Inf
	if opts.MaxSpawnsPerSecond > 0 {
		limit = rate.Limit(opts.MaxSpawnsPerSecond)
	}

	e := &Engine{
		binary:  Find(opts.Binary),
		limiter: rate.NewLimiter(limit, 1),
		logger:  opts.Logger,
		wake:    make(chan struct{}, 1),
		done:    make(chan struct{}),
	}
	e.say = strings.HasPrefix(filepath.Base(e.binary), "say")
	go e.run()
	return e
}

// Find resolves the speech command to use, or "" if none is installed.
func Find(binary string) string {
	candidates := Candidates
	if binary != "" {
		candidates = []string{binary}
	}
	for _, c := range candidates {
		if path, err := exec.LookPath(c); err == nil {
			return path
		}
	}
	return ""
}

// Binary returns the resolved command path.
func (e *Engine) Binary() string { return e.binary }

// Args returns the command arguments for u. The text itself goes to stdin.
func (e *Engine) Args(u *tts.Utterance) []string {
	r := u.Rate
	if r <= 0 {
		r = 1
	}
	wpm := strconv.Itoa(int(baseWPM * r))

	if e.say {
		args := []string{"-r", wpm}
		if u.Voice != "" {
			args = append(args, "-v", u.Voice)
		}
		return append(args, "-f", "-")
	}

	p := u.Pitch
	if p <= 0 {
		p = 1
	}
	pitch := min(max(int(50*p), 0), 99)
	args := []string{"-s", wpm, "-p", strconv.Itoa(pitch)}
	if u.Voice != "" {
		args = append(args, "-v", u.Voice)
	}
	return append(args, "--stdin")
}

// Speak implements tts.Engine.
func (e *Engine) Speak(u *tts.Utterance) error {
	select {
	case <-e.done:
		return errors.New("engine closed")
	default:
	}
	if e.binary == "" {
		return errors.New("no speech command found")
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
	j := e.current
	var cmd *exec.Cmd
	if j != nil && j.started {
		cmd = j.cmd
	}
	e.mu.Unlock()

	if cmd == nil {
		return
	}
	if err := suspend(cmd.Process); err != nil {
		e.logger.Warn("failed to pause speech", "err", err)
		return
	}
	j.u.Pause()
}

// Resume implements tts.Engine.
func (e *Engine) Resume() {
	e.mu.Lock()
	if !e.paused {
		e.mu.Unlock()
		return
	}
	e.unpause()
	j := e.current
	var cmd *exec.Cmd
	if j != nil && j.started {
		cmd = j.cmd
	}
	e.mu.Unlock()

	if cmd == nil {
		return
	}
	if err := resume(cmd.Process); err != nil {
		e.logger.Warn("failed to resume speech", "err", err)
		return
	}
	j.u.Resume()
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
func (e *Engine) Available() bool { return e.binary != "" }

// Voices implements tts.Engine. The command is asked once.
func (e *Engine) Voices() []tts.Voice {
	e.voicesOnce.Do(func() {
		if e.binary == "" {
			return
		}
		args := []string{"--voices"}
		if e.say {
			args = []string{"-v", "?"}
		}
		out, err := exec.Command(e.binary, args...).Output()
		if err != nil {
			e.logger.Warn("failed to list voices", "err", err)
			return
		}
		if e.say {
			e.voices = ParseSayVoices(string(out))
		} else {
			e.voices = ParseEspeakVoices(string(out))
		}
	})
	return e.voices
}

// Close cancels everything and stops the worker.
func (e *Engine) Close() error {
	e.stop.Do(func() {
		e.Cancel()
		close(e.done)
	})
	return nil
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
	if err := e.limiter.Wait(j.ctx); err != nil {
		return
	}
	if !e.waitUnpaused(j) {
		return
	}

	cmd := exec.CommandContext(j.ctx, e.binary, e.Args(j.u)...)
	cmd.Stdin = strings.NewReader(j.u.Text)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	cmd.WaitDelay = time.Second

	if err := cmd.Start(); err != nil {
		if e.release(j) {
			j.u.Fail(tts.ErrorInfo{Code: "spawn-failed", Message: err.Error()})
		}
		return
	}

	e.mu.Lock()
	j.cmd = cmd
	j.started = true
	e.mu.Unlock()
	e.logger.Debug("speaking", "pid", cmd.Process.Pid, "chars", len(j.u.Text))
	j.u.Start()

	err := cmd.Wait()
	if !e.release(j) {
		return
	}
	if err != nil {
		msg := strings.TrimSpace(stderr.String())
		if msg == "" {
			msg = err.Error()
		}
		j.u.Fail(tts.ErrorInfo{Code: "synthesis-failed", Message: msg})
		return
	}
	j.u.End()
}

// waitUnpaused holds an utterance back while the engine is paused. It
// reports false if the job was canceled meanwhile.
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

// ParseEspeakVoices parses the output of "espeak-ng --voices".
func ParseEspeakVoices(out string) []tts.Voice {
	var voices []tts.Voice
	for _, line := range strings.Split(out, "\n") {
		f := strings.Fields(line)
		if len(f) < 4 || f[0] == "Pty" {
			continue
		}
		voices = append(voices, tts.Voice{
			ID:       f[1],
			Name:     strings.ReplaceAll(f[3], "_", " "),
			Language: f[1],
			Default:  f[1] == "en-us",
		})
	}
	return voices
}

// ParseSayVoices parses the output of "say -v ?".
func ParseSayVoices(out string) []tts.Voice {
	var voices []tts.Voice
	for _, line := range strings.Split(out, "\n") {
		left, _, _ := strings.Cut(line, "#")
		left = strings.TrimSpace(left)
		i := strings.LastIndexAny(left, " \t")
		if i < 0 {
			continue
		}
		name := strings.TrimSpace(left[:i])
		locale := left[i+1:]
		voices = append(voices, tts.Voice{
			ID:       name,
			Name:     name,
			Language: strings.ReplaceAll(locale, "_", "-"),
		})
	}
	return voices
}

func (e *Engine) String() string {
	return fmt.Sprintf("command(%s)", filepath.Base(e.binary))
}
