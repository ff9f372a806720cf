package loop

import (
	"sort"
	"time"
)

// Manual is a deterministic Scheduler driven by virtual time. Nothing runs
// until Drain or Advance is called, which makes interleavings of engine
// callbacks, timers and commands reproducible in tests.
type Manual struct {
	now    time.Time
	queue  []func()
	timers []*manualTimer
	seq    int
}

// NewManual returns a manual scheduler whose clock starts at start.
func NewManual(start time.Time) *Manual {
	return &Manual{now: start}
}

// Post implements Scheduler.
func (m *Manual) Post(fn func()) {
	m.queue = append(m.queue, fn)
}

// Now implements Scheduler.
func (m *Manual) Now() time.Time {
	return m.now
}

// AfterFunc implements Scheduler.
func (m *Manual) AfterFunc(d time.Duration, fn func()) Timer {
	if d < 0 {
		d = 0
	}
	m.seq++
	t := &manualTimer{when: m.now.Add(d), seq: m.seq, fn: fn}
	m.timers = append(m.timers, t)
	return t
}

// Call runs fn immediately and then drains whatever it posted.
func (m *Manual) Call(fn func()) {
	fn()
	m.Drain()
}

// Drain runs queued tasks, including tasks posted while draining, until
// the queue is empty. Timers are not fired.
func (m *Manual) Drain() {
	for len(m.queue) > 0 {
		fn := m.queue[0]
		m.queue[0] = nil
		m.queue = m.queue[1:]
		fn()
	}
}

// Pending reports the number of queued tasks and live timers.
func (m *Manual) Pending() (tasks, timers int) {
	for _, t := range m.timers {
		if !t.stopped {
			timers++
		}
	}
	return len(m.queue), timers
}

// Advance moves the clock forward by d. Due timers fire in order of their
// deadline with the clock set to that deadline, and the queue is drained
// after each one.
func (m *Manual) Advance(d time.Duration) {
	target := m.now.Add(d)
	m.Drain()
	for {
		t := m.nextDue(target)
		if t == nil {
			break
		}
		m.now = t.when
		t.fired = true
		t.fn()
		m.Drain()
	}
	m.now = target
}

func (m *Manual) nextDue(target time.Time) *manualTimer {
	live := m.timers[:0]
	for _, t := range m.timers {
		if !t.stopped && !t.fired {
			live = append(live, t)
		}
	}
	m.timers = live
	if len(live) == 0 {
		return nil
	}

	sort.SliceStable(live, func(i, j int) bool {
		if live[i].when.Equal(live[j].when) {
			return live[i].seq < live[j].seq
		}
		return live[i].when.Before(live[j].when)
	})
	if live[0].when.After(target) {
		return nil
	}
	return live[0]
}

type manualTimer struct {
	when    time.Time
	seq     int
	fn      func()
	stopped bool
	fired   bool
}

func (t *manualTimer) Stop() bool {
	if t.stopped || t.fired {
		return false
	}
	t.stopped = true
	return true
}
