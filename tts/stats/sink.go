package stats

import (
	"context"
	"errors"
	"sync"

	"github.com/charmbracelet/log"
)

// Sink receives whole-second increments of reading time. Increments are
// commutative; order does not matter.
type Sink interface {
	AddSeconds(ctx context.Context, n int) error
}

// Memory is an in-memory Sink.
type Memory struct {
	mu         sync.Mutex
	increments []int
}

// AddSeconds implements Sink.
func (m *Memory) AddSeconds(_ context.Context, n int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.increments = append(m.increments, n)
	return nil
}

// Total returns the sum of all increments.
func (m *Memory) Total() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	total := 0
	for _, n := range m.increments {
		total += n
	}
	return total
}

// Increments returns a copy of every increment received.
func (m *Memory) Increments() []int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]int(nil), m.increments...)
}

// ErrSinkClosed is returned by Async after Close.
var ErrSinkClosed = errors.New("stats sink is closed")

// Async forwards increments to another Sink from a worker goroutine.
// Increments that arrive while a write is in flight are coalesced, so
// AddSeconds never blocks.
type Async struct {
	next   Sink
	logger *log.Logger

	mu     sync.Mutex
	queued int
	closed bool
	wake   chan struct{}
	done   chan struct{}
}

// NewAsync starts a worker writing to next.
func NewAsync(next Sink, logger *log.Logger) *Async {
	if logger == nil {
		logger = log.Default().WithPrefix("stats")
	}
	a := &Async{
		next:   next,
		logger: logger,
		wake:   make(chan struct{}, 1),
		done:   make(chan struct{}),
	}
	go a.run()
	return a
}

// AddSeconds implements Sink.
func (a *Async) AddSeconds(_ context.Context, n int) error {
	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		return ErrSinkClosed
	}
	defer a.mu.Unlock()
	a.queued += n
	select {
	case a.wake <- struct{}{}:
	default:
	}
	return nil
}

func (a *Async) run() {
	defer close(a.done)
	for range a.wake {
		a.mu.Lock()
		n := a.queued
		a.queued = 0
		a.mu.Unlock()

		if n == 0 {
			continue
		}
		if err := a.next.AddSeconds(context.Background(), n); err != nil {
			a.logger.Warn("failed to store reading time", "seconds", n, "err", err)
		}
	}
}

// Close flushes queued increments and stops the worker.
func (a *Async) Close(ctx context.Context) error {
	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		return nil
	}
	a.closed = true
	// a pending wake token guarantees the worker sees the last increment
	select {
	case a.wake <- struct{}{}:
	default:
	}
	close(a.wake)
	a.mu.Unlock()

	select {
	case <-a.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
