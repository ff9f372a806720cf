// Package sync keeps the visual highlight in step with speech progress.
package sync

import (
	"time"

	"github.com/charmbracelet/log"

	"github.com/clarityread/readaloud/tts/chunk"
	"github.com/clarityread/readaloud/tts/highlight"
	"github.com/clarityread/readaloud/tts/loop"
)

// Kind identifies a highlight event.
type Kind int

const (
	// Ready is emitted once the overlay has been built.
	Ready Kind = iota
	// Moved is emitted when the highlighted unit changes.
	Moved
	// Torn is emitted when the overlay is removed.
	Torn
)

// String returns the event kind name.
func (k Kind) String() string {
	switch k {
	case Ready:
		return "ready"
	case Moved:
		return "moved"
	case Torn:
		return "torn"
	default:
		return "unknown"
	}
}

// Event describes a change of the highlight.
type Event struct {
	Kind     Kind
	Position int
	Units    []highlight.Unit
}

// Config holds timing for the degraded-mode ticker.
type Config struct {
	// FallbackGrace is how long to wait for a boundary event after an
	// utterance starts before ticking on an estimate.
	FallbackGrace time.Duration
	// MinInterval bounds how fast the ticker may advance.
	MinInterval time.Duration
	// CharsPerSecond is the assumed speaking speed at rate 1.0.
	CharsPerSecond float64
}

// DefaultConfig returns the standard timing.
func DefaultConfig() Config {
	return Config{
		FallbackGrace:  800 * time.Millisecond,
		MinInterval:    120 * time.Millisecond,
		CharsPerSecond: 15,
	}
}

// Manager owns the current overlay and maps progress onto it. It is
// confined to the loop goroutine.
type Manager struct {
	sched  loop.Scheduler
	cfg    Config
	logger *log.Logger

	overlay  *highlight.Overlay
	index    *highlight.Index
	units    []highlight.Unit
	position int

	// last boundary offset received before the index was ready
	pending      int
	hasPending   bool
	boundarySeen bool

	grace    loop.Timer
	ticker   loop.Timer
	tickLast int

	onChangeCallbacks []func(Event)
}

// NewManager creates a sync manager. Zero config values use defaults.
func NewManager(sched loop.Scheduler, cfg Config, logger *log.Logger) *Manager {
	d := DefaultConfig()
	if cfg.FallbackGrace <= 0 {
		cfg.FallbackGrace = d.FallbackGrace
	}
	if cfg.MinInterval <= 0 {
		cfg.MinInterval = d.MinInterval
	}
	if cfg.CharsPerSecond <= 0 {
		cfg.CharsPerSecond = d.CharsPerSecond
	}
	if logger == nil {
		logger = log.Default().WithPrefix("sync")
	}
	return &Manager{
		sched:    sched,
		cfg:      cfg,
		logger:   logger,
		position: -1,
	}
}

// OnChange registers a callback for highlight events.
func (m *Manager) OnChange(callback func(Event)) {
	m.onChangeCallbacks = append(m.onChangeCallbacks, callback)
}

// Attach replaces the current overlay with o and starts building it.
func (m *Manager) Attach(o *highlight.Overlay) {
	m.Detach()

	m.overlay = o
	m.boundarySeen = false
	o.OnReady(func(idx *highlight.Index, units []highlight.Unit) {
		if m.overlay != o {
			return
		}
		m.index = idx
		m.units = units
		m.logger.Debug("overlay ready", "units", idx.Len(), "chars", idx.Total())
		m.notify(Event{Kind: Ready, Position: m.position, Units: units})
		if m.hasPending {
			m.hasPending = false
			m.moveTo(idx.Map(m.pending))
		}
	})
	o.OnTeardown(func() {
		if m.overlay != o {
			return
		}
		m.overlay = nil
		m.index = nil
		m.units = nil
		m.position = -1
		m.hasPending = false
		m.notify(Event{Kind: Torn, Position: -1})
	})
	o.Start()
}

// Detach tears down the current overlay, if any, and stops the ticker.
func (m *Manager) Detach() {
	m.CancelFallback()
	if m.overlay != nil {
		m.overlay.Teardown()
	}
	m.overlay = nil
	m.index = nil
	m.units = nil
	m.position = -1
	m.hasPending = false
}

// Active reports whether an overlay is attached.
func (m *Manager) Active() bool {
	return m.overlay != nil
}

// Position returns the highlighted unit, or -1 when nothing is highlighted.
func (m *Manager) Position() int {
	return m.position
}

// Units returns the built units of the current overlay.
func (m *Manager) Units() []highlight.Unit {
	return m.units
}

// Boundary handles a real progress event at a session-absolute offset. It
// silences the fallback ticker for the rest of the session.
func (m *Manager) Boundary(offset int) {
	m.boundarySeen = true
	m.CancelFallback()

	if m.overlay == nil {
		return
	}
	if m.index == nil {
		m.pending, m.hasPending = offset, true
		return
	}
	m.moveTo(m.index.Map(offset))
}

// ArmFallback schedules approximate progress for the utterance covering
// runes [start, end) of the session text. If no boundary event has been
// seen by the end of the grace period, the highlight advances one unit per
// interval until it reaches the end of the utterance.
func (m *Manager) ArmFallback(start, end int, interval time.Duration) {
	m.CancelFallback()
	if m.boundarySeen || m.overlay == nil {
		return
	}
	if interval < m.cfg.MinInterval {
		interval = m.cfg.MinInterval
	}

	m.grace = m.sched.AfterFunc(m.cfg.FallbackGrace, func() {
		m.grace = nil
		if m.boundarySeen || m.index == nil {
			return
		}

		first := m.index.Map(start)
		last := m.index.Map(end - 1)
		if m.position < first {
			m.moveTo(first)
		}
		m.tickLast = last
		m.logger.Debug("no boundary events, ticking", "from", m.position, "to", last, "interval", interval)
		m.tick(interval)
	})
}

func (m *Manager) tick(interval time.Duration) {
	m.ticker = m.sched.AfterFunc(interval, func() {
		m.ticker = nil
		if m.index == nil || m.position >= m.tickLast {
			return
		}
		m.moveTo(m.position + 1)
		m.tick(interval)
	})
}

// CancelFallback stops the grace timer and the ticker.
func (m *Manager) CancelFallback() {
	if m.grace != nil {
		m.grace.Stop()
		m.grace = nil
	}
	if m.ticker != nil {
		m.ticker.Stop()
		m.ticker = nil
	}
}

// FallbackArmed reports whether the grace timer or ticker is pending.
func (m *Manager) FallbackArmed() bool {
	return m.grace != nil || m.ticker != nil
}

// EstimateInterval estimates the time spent on each word of text at rate.
func (m *Manager) EstimateInterval(text string, rate float64) time.Duration {
	return EstimateInterval(text, rate, m.cfg)
}

// EstimateInterval estimates the time spent on each word of text at rate
// using cfg's speaking speed and floor.
func EstimateInterval(text string, rate float64, cfg Config) time.Duration {
	if rate <= 0 {
		rate = 1
	}
	words := 0
	s := chunk.NewScanner(text)
	for s.Scan() {
		words++
	}
	if words == 0 {
		return cfg.MinInterval
	}

	seconds := float64(chunk.Runes(text)) / (cfg.CharsPerSecond * rate)
	interval := time.Duration(seconds / float64(words) * float64(time.Second))
	if interval < cfg.MinInterval {
		return cfg.MinInterval
	}
	return interval
}

func (m *Manager) moveTo(pos int) {
	if pos < 0 || pos == m.position {
		return
	}
	m.position = pos
	m.notify(Event{Kind: Moved, Position: pos})
}

func (m *Manager) notify(ev Event) {
	for _, callback := range m.onChangeCallbacks {
		if callback != nil {
			callback(ev)
		}
	}
}
