package stats_test

import (
	"testing"
	"time"

	"github.com/clarityread/readaloud/tts/loop"
	"github.com/clarityread/readaloud/tts/stats"
)

func newAccumulator() (*stats.Accumulator, *loop.Manual, *stats.Memory) {
	sched := loop.NewManual(time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC))
	sink := &stats.Memory{}
	return stats.NewAccumulator(sched, sink, stats.Options{}), sched, sink
}

func TestAccumulatorPauseIsNotCounted(t *testing.T) {
	acc, sched, sink := newAccumulator()

	acc.Reset()
	acc.Start()
	sched.Advance(2 * time.Second)
	acc.Pause()
	sched.Advance(time.Second)
	acc.Resume()
	sched.Advance(1500 * time.Millisecond)

	if got := acc.Elapsed(); got != 3500*time.Millisecond {
		t.Errorf("Elapsed() = %v, want 3.5s", got)
	}

	acc.Finalize()
	if total := sink.Total(); total < 3 || total > 4 {
		t.Errorf("flushed %ds, want about 3.5s", total)
	}
	if acc.Running() {
		t.Error("accumulator still running after Finalize")
	}
}

func TestAccumulatorPeriodicFlush(t *testing.T) {
	acc, sched, sink := newAccumulator()

	acc.Start()
	sched.Advance(9 * time.Second)
	if len(sink.Increments()) != 0 {
		t.Fatalf("flushed before 10s: %v", sink.Increments())
	}

	sched.Advance(time.Second)
	if got := sink.Increments(); len(got) != 1 || got[0] != 10 {
		t.Fatalf("increments after 10s = %v, want [10]", got)
	}

	sched.Advance(4 * time.Second)
	acc.Finalize()
	if got := sink.Increments(); len(got) != 2 || got[1] != 4 {
		t.Errorf("increments = %v, want [10 4]", got)
	}
}

func TestAccumulatorFlushAfterIdleWallClock(t *testing.T) {
	acc, sched, sink := newAccumulator()

	acc.Start()
	sched.Advance(3 * time.Second)
	acc.Pause()
	sched.Advance(8 * time.Second)
	acc.Resume()
	sched.Advance(time.Second)

	// more than 10s since the last flush even though only 4s were spoken
	if got := sink.Increments(); len(got) != 1 || got[0] != 4 {
		t.Fatalf("increments = %v, want [4]", got)
	}
	acc.Finalize()
	if sink.Total() != 4 {
		t.Errorf("total = %d, want 4", sink.Total())
	}
}

func TestAccumulatorConservesFractions(t *testing.T) {
	acc, sched, sink := newAccumulator()

	// pausing mid-tick keeps the partial second
	acc.Start()
	for i := 0; i < 5; i++ {
		sched.Advance(2500 * time.Millisecond)
		acc.Pause()
		acc.Resume()
	}
	sched.Advance(8 * time.Second)
	acc.Finalize()

	if sink.Total() != 20 {
		t.Errorf("total = %d (%v), want 20", sink.Total(), sink.Increments())
	}
}

func TestAccumulatorResetDiscards(t *testing.T) {
	acc, sched, sink := newAccumulator()

	acc.Start()
	sched.Advance(5 * time.Second)
	acc.Reset()
	sched.Advance(20 * time.Second)
	acc.Finalize()

	if sink.Total() != 0 {
		t.Errorf("total = %d after reset, want 0", sink.Total())
	}
}
