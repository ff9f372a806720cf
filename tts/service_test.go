package tts_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/clarityread/readaloud/tts"
	"github.com/clarityread/readaloud/tts/engines/mock"
	"github.com/clarityread/readaloud/tts/stats"
)

func TestServiceReadsToCompletion(t *testing.T) {
	engine := mock.New(mock.Options{Auto: true, WordsPerMinute: 30000, Boundaries: true})
	sink := &stats.Memory{}
	svc := tts.NewService(engine, sink, tts.DefaultControllerConfig(), nil)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	defer svc.Close(ctx) //nolint:errcheck

	if err := svc.Pause(ctx); !errors.Is(err, tts.ErrNothingToPause) {
		t.Errorf("Pause() while idle = %v, want ErrNothingToPause", err)
	}

	if err := svc.Start(ctx, tts.ReadRequest{Text: sample, Highlight: true}); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	var (
		statuses []tts.Status
		chunks   int
		moved    bool
	)
	for done := false; !done; {
		select {
		case msg := <-svc.Messages():
			switch msg := msg.(type) {
			case tts.StatusMsg:
				statuses = append(statuses, msg.Status)
				done = msg.Status == tts.StatusNotReading
			case tts.ChunkMsg:
				chunks++
			case tts.HighlightMsg:
				moved = moved || msg.Position >= 0
			case tts.ErrorMsg:
				t.Fatalf("unexpected error: %v", msg.Err)
			}
		case <-ctx.Done():
			t.Fatal("reading never finished")
		}
	}

	if len(statuses) != 2 || statuses[0] != tts.StatusReading {
		t.Errorf("statuses = %v, want [Reading, Not Reading]", statuses)
	}
	if chunks != 1 {
		t.Errorf("chunks = %d, want 1", chunks)
	}
	if !moved {
		t.Error("no highlight movement reported")
	}

	snap, err := svc.Snapshot(ctx)
	if err != nil {
		t.Fatalf("Snapshot() error = %v", err)
	}
	if snap.State != tts.StateIdle || snap.Session != 1 {
		t.Errorf("snapshot = %+v", snap)
	}
}

func TestServiceClose(t *testing.T) {
	svc := tts.NewService(mock.New(mock.Options{}), nil, tts.DefaultControllerConfig(), nil)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := svc.Start(ctx, tts.ReadRequest{Text: sample}); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if err := svc.Close(ctx); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if err := svc.Start(ctx, tts.ReadRequest{Text: "after close"}); err == nil {
		t.Error("Start() after Close should fail")
	}
}

func TestServiceCommands(t *testing.T) {
	svc := tts.NewService(mock.New(mock.Options{}), nil, tts.DefaultControllerConfig(), nil)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	defer svc.Close(ctx) //nolint:errcheck

	msg := svc.StartCmd(tts.ReadRequest{Text: "   "})()
	cerr, ok := msg.(tts.CommandErrorMsg)
	if !ok || !errors.Is(cerr.Err, tts.ErrNoText) {
		t.Fatalf("StartCmd(blank) = %#v, want CommandErrorMsg wrapping ErrNoText", msg)
	}

	if msg := svc.StartCmd(tts.ReadRequest{Text: sample})(); msg != nil {
		t.Fatalf("StartCmd() = %#v, want nil", msg)
	}
	if msg := svc.ToggleCmd()(); msg != nil {
		t.Errorf("ToggleCmd() while speaking = %#v, want nil", msg)
	}
	snap, err := svc.Snapshot(ctx)
	if err != nil {
		t.Fatalf("Snapshot() error = %v", err)
	}
	if snap.State != tts.StatePaused {
		t.Errorf("state after toggle = %v, want paused", snap.State)
	}
	if msg := svc.ToggleCmd()(); msg != nil {
		t.Errorf("ToggleCmd() while paused = %#v, want nil", msg)
	}
	if msg := svc.StopCmd()(); msg != nil {
		t.Errorf("StopCmd() = %#v, want nil", msg)
	}
}
