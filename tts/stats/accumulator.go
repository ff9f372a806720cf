// Package stats accounts for the time spent reading aloud.
package stats

import (
	"context"
	"math"
	"time"

	"github.com/charmbracelet/log"

	"github.com/clarityread/readaloud/tts/loop"
)

// Accumulator defaults.
const (
	DefaultTick       = time.Second
	DefaultFlushEvery = 10 * time.Second
)

// Options configures an Accumulator.
type Options struct {
	// Tick is how often elapsed speaking time is sampled.
	Tick time.Duration
	// FlushEvery is both the pending-time threshold and the maximum time
	// between periodic flushes.
	FlushEvery time.Duration
	Logger     *log.Logger
}

// Accumulator tracks active speaking time for one session at a time and
// sends whole seconds to a Sink. It must only be used on the loop.
type Accumulator struct {
	sched  loop.Scheduler
	sink   Sink
	tick   time.Duration
	every  time.Duration
	logger *log.Logger

	accumulated float64
	pending     float64
	sent        int
	lastFlush   time.Time
	since       time.Time
	running     bool
	ticker      loop.Timer
}

// NewAccumulator returns an accumulator that flushes to sink.
func NewAccumulator(sched loop.Scheduler, sink Sink, opts Options) *Accumulator {
	if opts.Tick <= 0 {
		opts.Tick = DefaultTick
	}
	if opts.FlushEvery <= 0 {
		opts.FlushEvery = DefaultFlushEvery
	}
	if opts.Logger == nil {
		opts.Logger = log.Default().WithPrefix("stats")
	}
	return &Accumulator{
		sched:     sched,
		sink:      sink,
		tick:      opts.Tick,
		every:     opts.FlushEvery,
		logger:    opts.Logger,
		lastFlush: sched.Now(),
	}
}

// Reset discards all counters without flushing and stops the clock.
func (a *Accumulator) Reset() {
	a.stopTicker()
	a.running = false
	a.accumulated = 0
	a.pending = 0
	a.sent = 0
	a.lastFlush = a.sched.Now()
}

// Start begins counting elapsed time.
func (a *Accumulator) Start() {
	if a.running {
		return
	}
	a.running = true
	a.since = a.sched.Now()
	a.schedule()
}

// Resume restarts the clock after Pause.
func (a *Accumulator) Resume() {
	a.Start()
}

// Pause freezes the clock, keeping the partial second since the last tick.
func (a *Accumulator) Pause() {
	if !a.running {
		return
	}
	a.sample()
	a.stopTicker()
	a.running = false
}

// Finalize stops the clock and sends whatever whole seconds have not yet
// been sent, then resets. It returns the number of seconds sent.
func (a *Accumulator) Finalize() int {
	a.Pause()
	n := int(math.Floor(a.accumulated)) - a.sent
	if n > 0 {
		a.send(n)
	}
	a.Reset()
	return n
}

// Running reports whether the clock is running.
func (a *Accumulator) Running() bool {
	return a.running
}

// Elapsed returns the active time accumulated this session, including the
// running partial second.
func (a *Accumulator) Elapsed() time.Duration {
	seconds := a.accumulated
	if a.running {
		seconds += a.sched.Now().Sub(a.since).Seconds()
	}
	return time.Duration(seconds * float64(time.Second))
}

// Sent returns the whole seconds already sent this session.
func (a *Accumulator) Sent() int {
	return a.sent
}

func (a *Accumulator) schedule() {
	a.ticker = a.sched.AfterFunc(a.tick, func() {
		a.ticker = nil
		if !a.running {
			return
		}
		a.sample()
		a.maybeFlush()
		a.schedule()
	})
}

func (a *Accumulator) sample() {
	now := a.sched.Now()
	delta := now.Sub(a.since).Seconds()
	if delta > 0 {
		a.accumulated += delta
		a.pending += delta
	}
	a.since = now
}

func (a *Accumulator) maybeFlush() {
	now := a.sched.Now()
	if a.pending < a.every.Seconds() && now.Sub(a.lastFlush) < a.every {
		return
	}
	a.lastFlush = now
	n := int(math.Floor(a.pending))
	a.pending = 0
	if n > 0 {
		a.send(n)
	}
}

func (a *Accumulator) send(n int) {
	a.sent += n
	if a.sink == nil {
		return
	}
	if err := a.sink.AddSeconds(context.Background(), n); err != nil {
		a.logger.Warn("failed to record reading time", "seconds", n, "err", err)
	}
}

func (a *Accumulator) stopTicker() {
	if a.ticker != nil {
		a.ticker.Stop()
		a.ticker = nil
	}
}
