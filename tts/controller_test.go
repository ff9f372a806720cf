package tts_test

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/clarityread/readaloud/tts"
	"github.com/clarityread/readaloud/tts/engines/mock"
	"github.com/clarityread/readaloud/tts/guard"
	"github.com/clarityread/readaloud/tts/loop"
	"github.com/clarityread/readaloud/tts/stats"
	ttssync "github.com/clarityread/readaloud/tts/sync"
)

const sample = "Hello world. This is ClarityRead."

// harness drives a controller on a manual scheduler with a scripted engine.
type harness struct {
	t        *testing.T
	sched    *loop.Manual
	engine   *mock.Engine
	sink     *stats.Memory
	ctrl     *tts.Controller
	statuses []tts.Status
	chunks   []tts.ChunkInfo
	errs     []error
	moves    []int
}

func newHarness(t *testing.T, opts mock.Options, configure ...func(*tts.ControllerConfig)) *harness {
	t.Helper()
	cfg := tts.DefaultControllerConfig()
	for _, fn := range configure {
		fn(&cfg)
	}

	h := &harness{
		t:      t,
		sched:  loop.NewManual(time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)),
		engine: mock.New(opts),
		sink:   &stats.Memory{},
	}
	h.ctrl = tts.NewController(h.sched, h.engine, h.sink, cfg, nil)
	h.ctrl.OnStatus(func(s tts.Status) { h.statuses = append(h.statuses, s) })
	h.ctrl.OnChunk(func(info tts.ChunkInfo) { h.chunks = append(h.chunks, info) })
	h.ctrl.OnError(func(err error) { h.errs = append(h.errs, err) })
	h.ctrl.OnHighlight(func(ev ttssync.Event) {
		if ev.Kind == ttssync.Moved {
			h.moves = append(h.moves, ev.Position)
		}
	})
	return h
}

func (h *harness) start(req tts.ReadRequest) {
	h.t.Helper()
	if err := h.ctrl.Start(req); err != nil {
		h.t.Fatalf("Start() error = %v", err)
	}
	h.sched.Drain()
}

// speakCurrent starts and ends the last utterance, then waits out the
// advance delay.
func (h *harness) speakCurrent() {
	h.t.Helper()
	u := h.engine.Last()
	u.Start()
	h.sched.Drain()
	u.End()
	h.sched.Advance(50 * time.Millisecond)
}

func (h *harness) wantStatuses(want ...tts.Status) {
	h.t.Helper()
	if len(h.statuses) != len(want) {
		h.t.Fatalf("statuses = %v, want %v", h.statuses, want)
	}
	for i := range want {
		if h.statuses[i] != want[i] {
			h.t.Fatalf("statuses = %v, want %v", h.statuses, want)
		}
	}
}

func TestReadSingleChunkWithHighlight(t *testing.T) {
	h := newHarness(t, mock.Options{})
	h.start(tts.ReadRequest{Text: sample, Highlight: true})

	h.wantStatuses(tts.StatusReading)
	if len(h.chunks) != 1 || h.chunks[0].Text != sample {
		t.Fatalf("chunks = %+v, want the whole sample", h.chunks)
	}

	u := h.engine.Last()
	u.Start()
	u.Boundary(6)
	h.sched.Drain()

	pos, units := h.ctrl.Highlight()
	if pos != 1 || units[pos].Content != "world. " {
		t.Errorf("highlight = %d, want 1 (\"world. \")", pos)
	}
	h.wantStatuses(tts.StatusReading)

	u.End()
	h.sched.Advance(50 * time.Millisecond)

	h.wantStatuses(tts.StatusReading, tts.StatusNotReading)
	if h.ctrl.State() != tts.StateIdle {
		t.Errorf("state = %v, want idle", h.ctrl.State())
	}
	if pos, _ := h.ctrl.Highlight(); pos != -1 {
		t.Errorf("overlay not torn down, highlight = %d", pos)
	}
}

func TestChunkOffsets(t *testing.T) {
	h := newHarness(t, mock.Options{})
	text := strings.Repeat("abcd ", 1000)
	h.start(tts.ReadRequest{Text: text})

	for i := 0; i < 3; i++ {
		h.speakCurrent()
	}

	if len(h.chunks) != 3 {
		t.Fatalf("submitted %d chunks, want 3", len(h.chunks))
	}
	wantOffsets := []int{0, 1800, 3600}
	wantLens := []int{1800, 1800, 1400}
	for i, c := range h.chunks {
		if c.Offset != wantOffsets[i] {
			t.Errorf("chunk %d offset = %d, want %d", i, c.Offset, wantOffsets[i])
		}
		if len(c.Text) != wantLens[i] {
			t.Errorf("chunk %d length = %d, want %d", i, len(c.Text), wantLens[i])
		}
		if c.Index != i || c.Total != 3 {
			t.Errorf("chunk %d info = %+v", i, c)
		}
	}
	h.wantStatuses(tts.StatusReading, tts.StatusNotReading)
}

func TestSessionIsolation(t *testing.T) {
	h := newHarness(t, mock.Options{ErrorOnCancel: true})
	h.start(tts.ReadRequest{Text: sample, Highlight: true})
	old := h.engine.Last()
	old.Start()
	h.sched.Drain()

	firstID := h.ctrl.SessionID()
	h.start(tts.ReadRequest{Text: "A completely different text to read.", Highlight: true})
	if h.ctrl.SessionID() == firstID {
		t.Fatal("new session did not get a new id")
	}

	// late callbacks from the superseded utterance
	old.Boundary(20)
	old.Start()
	old.End()
	old.Fail("synthesis-failed", "late failure")
	h.sched.Advance(2 * time.Second)

	sess := h.ctrl.Session()
	if sess == nil || sess.ID != h.ctrl.SessionID() {
		t.Fatal("current session lost")
	}
	if sess.ChunkIndex != 0 {
		t.Errorf("stale end advanced the new session to chunk %d", sess.ChunkIndex)
	}
	if len(h.chunks) != 2 {
		t.Errorf("submitted %d chunks, want 2 (no retry, no advance)", len(h.chunks))
	}
	if pos, _ := h.ctrl.Highlight(); pos != -1 {
		t.Errorf("stale boundary moved the new highlight to %d", pos)
	}
	if len(h.errs) != 0 {
		t.Errorf("stale failure surfaced: %v", h.errs)
	}
	h.wantStatuses(tts.StatusReading)
	if h.engine.Cancels() != 1 {
		t.Errorf("Cancels() = %d, want 1", h.engine.Cancels())
	}
}

func TestRetryThenTerminate(t *testing.T) {
	h := newHarness(t, mock.Options{})
	h.start(tts.ReadRequest{Text: sample})

	first := h.engine.Last()
	first.Start()
	first.Fail("synthesis-failed", "voice crashed")
	h.sched.Drain()

	if len(h.chunks) != 2 || !h.chunks[1].Retry {
		t.Fatalf("chunks = %+v, want one retry", h.chunks)
	}
	if got := h.chunks[1].Rate; got < 0.79 || got > 0.81 {
		t.Errorf("retry rate = %v, want 0.8", got)
	}
	if h.chunks[1].Text != sample || h.chunks[1].Index != 0 {
		t.Errorf("retry did not resubmit the same chunk")
	}

	retry := h.engine.Last()
	retry.Start()
	retry.Fail("synthesis-failed", "voice crashed again")
	h.sched.Advance(time.Second)

	if len(h.chunks) != 2 {
		t.Errorf("submitted %d utterances, want exactly one retry", len(h.chunks))
	}
	h.wantStatuses(tts.StatusReading, tts.StatusNotReading)
	if h.ctrl.State() != tts.StateIdle {
		t.Errorf("state = %v, want idle", h.ctrl.State())
	}
	if len(h.errs) != 1 {
		t.Fatalf("errors = %v, want one terminal error", h.errs)
	}
	if !errors.Is(h.errs[0], tts.ErrEngineTerminal) {
		t.Errorf("error = %v, want ErrEngineTerminal", h.errs[0])
	}
	var engErr *tts.EngineError
	if !errors.As(h.errs[0], &engErr) || engErr.Info.Message != "voice crashed again" {
		t.Errorf("error does not carry the engine failure: %v", h.errs[0])
	}
}

func TestRetryRateFloor(t *testing.T) {
	tests := []struct {
		rate float64
		want float64
	}{
		{1.0, 0.8},
		{0.7, 0.6},
		{0.5, 0.6},
		{1.6, 1.4},
	}

	for _, tt := range tests {
		h := newHarness(t, mock.Options{})
		h.start(tts.ReadRequest{Text: sample, Rate: tt.rate})
		h.engine.Last().Fail("synthesis-failed", "")
		h.sched.Drain()

		got := h.chunks[len(h.chunks)-1].Rate
		if got < tt.want-0.001 || got > tt.want+0.001 {
			t.Errorf("rate %v: retry rate = %v, want %v", tt.rate, got, tt.want)
		}
	}
}

func TestBenignErrorSkipsToNextChunk(t *testing.T) {
	h := newHarness(t, mock.Options{}, func(c *tts.ControllerConfig) {
		c.MaxChunkChars = 12
	})
	h.start(tts.ReadRequest{Text: sample})

	u := h.engine.Last()
	u.Start()
	u.Fail("interrupted", "speech was interrupted")
	// an end after the error must not advance a second time
	u.End()
	h.sched.Advance(50 * time.Millisecond)

	if len(h.chunks) != 2 {
		t.Fatalf("chunks = %+v, want the second chunk submitted", h.chunks)
	}
	if h.chunks[1].Retry || h.chunks[1].Index != 1 || h.chunks[1].Offset != 12 {
		t.Errorf("second submission = %+v", h.chunks[1])
	}

	// the session can still use its single retry
	h.engine.Last().Fail("synthesis-failed", "")
	h.sched.Drain()
	if !h.chunks[2].Retry {
		t.Error("retry not attempted after a benign error")
	}
}

func TestPauseResume(t *testing.T) {
	h := newHarness(t, mock.Options{})

	if err := h.ctrl.Pause(); !errors.Is(err, tts.ErrNothingToPause) {
		t.Errorf("Pause() while idle = %v, want ErrNothingToPause", err)
	}
	if err := h.ctrl.Resume(); !errors.Is(err, tts.ErrNothingToResume) {
		t.Errorf("Resume() while idle = %v, want ErrNothingToResume", err)
	}

	h.start(tts.ReadRequest{Text: sample})
	h.engine.Last().Start()
	h.sched.Drain()

	if err := h.ctrl.Resume(); !errors.Is(err, tts.ErrNothingToResume) {
		t.Errorf("Resume() while speaking = %v, want ErrNothingToResume", err)
	}
	if err := h.ctrl.Pause(); err != nil {
		t.Fatalf("Pause() error = %v", err)
	}
	h.sched.Drain()
	if err := h.ctrl.Pause(); tts.ErrorCodeOf(err) != tts.ErrCodeNothingToPause {
		t.Errorf("second Pause() = %v, want nothing-to-pause", err)
	}
	if h.ctrl.State() != tts.StatePaused {
		t.Errorf("state = %v, want paused", h.ctrl.State())
	}

	if err := h.ctrl.Resume(); err != nil {
		t.Fatalf("Resume() error = %v", err)
	}
	h.sched.Drain()

	h.wantStatuses(tts.StatusReading, tts.StatusPaused, tts.StatusReading)
}

func TestPauseBeforeEngineStart(t *testing.T) {
	h := newHarness(t, mock.Options{})
	h.start(tts.ReadRequest{Text: sample})

	if err := h.ctrl.Pause(); err != nil {
		t.Fatalf("Pause() before the engine started = %v", err)
	}
	h.engine.Last().Start()
	h.sched.Drain()

	if h.ctrl.State() != tts.StatePaused {
		t.Fatalf("state after a late engine start = %v, want paused", h.ctrl.State())
	}
	h.sched.Advance(5 * time.Second)
	if got := h.ctrl.Elapsed(); got != 0 {
		t.Errorf("Elapsed() while paused = %v, want 0", got)
	}
	h.wantStatuses(tts.StatusReading, tts.StatusPaused)

	if err := h.ctrl.Resume(); err != nil {
		t.Fatalf("Resume() error = %v", err)
	}
	h.sched.Drain()
	h.sched.Advance(2 * time.Second)
	if got := h.ctrl.Elapsed(); got != 2*time.Second {
		t.Errorf("Elapsed() after resume = %v, want 2s", got)
	}
	if h.ctrl.State() != tts.StateSpeaking {
		t.Errorf("state = %v, want speaking", h.ctrl.State())
	}
	h.wantStatuses(tts.StatusReading, tts.StatusPaused, tts.StatusReading)
}

func TestChunkEndingWhilePausedWaitsForResume(t *testing.T) {
	h := newHarness(t, mock.Options{}, func(c *tts.ControllerConfig) { c.MaxChunkChars = 10 })
	h.start(tts.ReadRequest{Text: "abcd abcd abcd"})

	first := h.engine.Last()
	first.Start()
	h.sched.Drain()
	if err := h.ctrl.Pause(); err != nil {
		t.Fatalf("Pause() error = %v", err)
	}
	first.End()
	h.sched.Advance(5 * time.Second)

	if got := len(h.engine.Handles()); got != 1 {
		t.Fatalf("submitted %d utterances while paused, want 1", got)
	}
	if h.ctrl.State() != tts.StatePaused {
		t.Fatalf("state = %v, want paused", h.ctrl.State())
	}
	if err := h.ctrl.Pause(); tts.ErrorCodeOf(err) != tts.ErrCodeNothingToPause {
		t.Errorf("Pause() while paused = %v, want nothing-to-pause", err)
	}

	if err := h.ctrl.Resume(); err != nil {
		t.Fatalf("Resume() after the chunk ended = %v", err)
	}
	h.sched.Drain()
	if got := len(h.engine.Handles()); got != 2 {
		t.Fatalf("utterances after resume = %d, want 2", got)
	}
	if h.ctrl.State() != tts.StateSpeaking || h.engine.Paused() {
		t.Errorf("state = %v engine paused = %v, want speaking", h.ctrl.State(), h.engine.Paused())
	}

	h.speakCurrent()
	h.wantStatuses(tts.StatusReading, tts.StatusPaused, tts.StatusReading, tts.StatusNotReading)
	if got := len(h.chunks); got != 2 || h.chunks[1].Offset != 10 {
		t.Errorf("chunks = %+v, want the second chunk at offset 10", h.chunks)
	}
}

func TestStatsConservation(t *testing.T) {
	h := newHarness(t, mock.Options{})
	h.start(tts.ReadRequest{Text: sample})
	h.engine.Last().Start()
	h.sched.Drain()

	h.sched.Advance(2 * time.Second)
	if err := h.ctrl.Pause(); err != nil {
		t.Fatalf("Pause() error = %v", err)
	}
	h.sched.Advance(time.Second)
	if err := h.ctrl.Resume(); err != nil {
		t.Fatalf("Resume() error = %v", err)
	}
	h.sched.Advance(1500 * time.Millisecond)
	h.ctrl.Stop()

	total := h.sink.Total()
	if total < 3 || total > 4 {
		t.Errorf("flushed %ds, want about 3.5s", total)
	}
	h.wantStatuses(tts.StatusReading, tts.StatusPaused, tts.StatusReading, tts.StatusNotReading)
}

func TestDuplicateWindow(t *testing.T) {
	h := newHarness(t, mock.Options{})
	h.start(tts.ReadRequest{Text: sample})

	h.sched.Advance(500 * time.Millisecond)
	err := h.ctrl.Start(tts.ReadRequest{Text: sample})
	if !errors.Is(err, tts.ErrDuplicateRead) {
		t.Fatalf("Start() 500ms later = %v, want ErrDuplicateRead", err)
	}
	if len(h.chunks) != 1 {
		t.Errorf("duplicate submitted a chunk")
	}

	h.sched.Advance(3500 * time.Millisecond)
	if err := h.ctrl.Start(tts.ReadRequest{Text: sample}); err != nil {
		t.Fatalf("Start() 4000ms later = %v", err)
	}
	if len(h.chunks) != 2 {
		t.Errorf("second read was not submitted")
	}
}

func TestPreconditions(t *testing.T) {
	tests := []struct {
		name string
		opts mock.Options
		req  tts.ReadRequest
		want error
		code tts.ErrorCode
	}{
		{
			name: "empty text",
			req:  tts.ReadRequest{Text: ""},
			want: tts.ErrNoText,
			code: tts.ErrCodeNoText,
		},
		{
			name: "blank text",
			req:  tts.ReadRequest{Text: " \n\t"},
			want: tts.ErrNoText,
			code: tts.ErrCodeNoText,
		},
		{
			name: "engine unavailable",
			opts: mock.Options{Unavailable: true},
			req:  tts.ReadRequest{Text: sample},
			want: tts.ErrNoTTS,
			code: tts.ErrCodeNoTTS,
		},
		{
			name: "focused input",
			req: tts.ReadRequest{
				Text:  sample,
				Input: guard.InputContext{Focused: true, Text: "half a reply"},
			},
			want: tts.ErrFocusedInput,
			code: tts.ErrCodeFocusedInput,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, tt.opts)
			err := h.ctrl.Start(tt.req)
			if !errors.Is(err, tt.want) {
				t.Fatalf("Start() error = %v, want %v", err, tt.want)
			}
			if tts.ErrorCodeOf(err) != tt.code {
				t.Errorf("code = %q, want %q", tts.ErrorCodeOf(err), tt.code)
			}
			if h.ctrl.SessionID() != 0 || h.ctrl.State() != tts.StateIdle {
				t.Error("a failed precondition created a session")
			}
			if len(h.statuses) != 0 || len(h.engine.Handles()) != 0 {
				t.Error("a failed precondition reached the engine")
			}
		})
	}
}

func TestStopSettleDefersNextRead(t *testing.T) {
	h := newHarness(t, mock.Options{})
	h.start(tts.ReadRequest{Text: sample})
	h.ctrl.Stop()
	h.wantStatuses(tts.StatusReading, tts.StatusNotReading)

	h.start(tts.ReadRequest{Text: "Another text."})
	if got := len(h.engine.Handles()); got != 1 {
		t.Fatalf("engine got %d utterances during the settle window, want 1", got)
	}
	h.wantStatuses(tts.StatusReading, tts.StatusNotReading, tts.StatusReading)

	h.sched.Advance(250 * time.Millisecond)
	if got := len(h.engine.Handles()); got != 2 {
		t.Errorf("engine got %d utterances after settling, want 2", got)
	}
}

func TestStopDuringSettleDropsDeferredRead(t *testing.T) {
	h := newHarness(t, mock.Options{})
	h.ctrl.Stop()
	h.start(tts.ReadRequest{Text: sample})
	h.ctrl.Stop()
	h.sched.Advance(time.Second)

	if got := len(h.engine.Handles()); got != 0 {
		t.Errorf("engine got %d utterances, want none", got)
	}
	h.wantStatuses(tts.StatusReading, tts.StatusNotReading)
}

func TestFallbackHighlightWithoutBoundaries(t *testing.T) {
	h := newHarness(t, mock.Options{})
	h.start(tts.ReadRequest{Text: sample, Highlight: true})
	h.engine.Last().Start()
	h.sched.Drain()

	h.sched.Advance(799 * time.Millisecond)
	if len(h.moves) != 0 {
		t.Fatalf("highlight moved during the grace period: %v", h.moves)
	}
	h.sched.Advance(10 * time.Second)

	if len(h.moves) != 5 {
		t.Fatalf("moves = %v, want every unit once", h.moves)
	}
	for i, pos := range h.moves {
		if pos != i {
			t.Errorf("moves = %v, want 0..4", h.moves)
			break
		}
	}
}

func TestPauseStopsFallback(t *testing.T) {
	h := newHarness(t, mock.Options{})
	h.start(tts.ReadRequest{Text: strings.Repeat("word ", 40), Highlight: true})
	h.engine.Last().Start()
	h.sched.Drain()

	h.sched.Advance(1500 * time.Millisecond)
	if err := h.ctrl.Pause(); err != nil {
		t.Fatalf("Pause() error = %v", err)
	}
	moved := len(h.moves)
	h.sched.Advance(10 * time.Second)
	if len(h.moves) != moved {
		t.Errorf("highlight advanced while paused")
	}

	if err := h.ctrl.Resume(); err != nil {
		t.Fatalf("Resume() error = %v", err)
	}
	h.sched.Advance(2 * time.Second)
	if len(h.moves) <= moved {
		t.Errorf("highlight did not continue after resume")
	}
	last := -1
	for _, pos := range h.moves {
		if pos <= last {
			t.Fatalf("moves not increasing: %v", h.moves)
		}
		last = pos
	}
}

func TestSpeedRead(t *testing.T) {
	h := newHarness(t, mock.Options{})
	req := tts.SpeedReadRequest{Text: "one two three four five", WordsPerChunk: 2, Rate: 1.4}
	if err := h.ctrl.SpeedRead(req); err != nil {
		t.Fatalf("SpeedRead() error = %v", err)
	}
	h.sched.Drain()

	// repeat requests restart instead of being suppressed
	if err := h.ctrl.SpeedRead(req); err != nil {
		t.Fatalf("repeated SpeedRead() error = %v", err)
	}
	h.sched.Drain()
	if h.ctrl.SessionID() != 2 {
		t.Errorf("SessionID() = %d, want 2", h.ctrl.SessionID())
	}

	for i := 0; i < 3; i++ {
		h.speakCurrent()
	}

	want := []string{"one two ", "one two ", "three four ", "five"}
	if len(h.chunks) != len(want) {
		t.Fatalf("chunks = %+v", h.chunks)
	}
	for i, c := range h.chunks {
		if c.Text != want[i] {
			t.Errorf("chunk %d = %q, want %q", i, c.Text, want[i])
		}
		if c.Rate != 1.4 {
			t.Errorf("chunk %d rate = %v, want 1.4", i, c.Rate)
		}
	}
	if pos, units := h.ctrl.Highlight(); pos != -1 || units != nil {
		t.Error("speed read built an overlay")
	}
	h.wantStatuses(tts.StatusReading, tts.StatusNotReading)
}

func TestSpeakErrorIsRetried(t *testing.T) {
	h := newHarness(t, mock.Options{SpeakErr: errors.New("device busy")})
	h.start(tts.ReadRequest{Text: sample})

	if len(h.chunks) != 2 {
		t.Fatalf("chunks = %d, want submit plus one retry", len(h.chunks))
	}
	if len(h.errs) != 1 || !tts.IsTerminal(h.errs[0]) {
		t.Errorf("errors = %v, want one terminal error", h.errs)
	}
	h.wantStatuses(tts.StatusReading, tts.StatusNotReading)
}

func TestParameterClamping(t *testing.T) {
	h := newHarness(t, mock.Options{})
	h.start(tts.ReadRequest{Text: sample, Rate: 3, Pitch: 0.1, Voice: "mock-en-gb"})

	u := h.engine.Last().Utterance
	if u.Rate != tts.MaxRate || u.Pitch != tts.MinPitch || u.Voice != "mock-en-gb" {
		t.Errorf("utterance = rate %v pitch %v voice %q", u.Rate, u.Pitch, u.Voice)
	}
}
