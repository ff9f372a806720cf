package stats_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/clarityread/readaloud/tts/stats"
)

func TestAsyncForwardsEverything(t *testing.T) {
	mem := &stats.Memory{}
	async := stats.NewAsync(mem, nil)

	ctx := context.Background()
	for i := 1; i <= 50; i++ {
		if err := async.AddSeconds(ctx, i); err != nil {
			t.Fatalf("AddSeconds() error = %v", err)
		}
	}

	closeCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := async.Close(closeCtx); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	if got := mem.Total(); got != 1275 {
		t.Errorf("forwarded total = %d, want 1275", got)
	}
	if err := async.AddSeconds(ctx, 1); !errors.Is(err, stats.ErrSinkClosed) {
		t.Errorf("AddSeconds after Close = %v, want ErrSinkClosed", err)
	}
	if err := async.Close(closeCtx); err != nil {
		t.Errorf("second Close() = %v", err)
	}
}
