package component

import (
	"context"
	"testing"
	"time"
)

func TestWorkerStopJoinsPromptly(t *testing.T) {
	t.Parallel()

	w := NewWorker(context.Background())
	started := make(chan struct{})
	w.Run(func(ctx context.Context) {
		close(started)
		for {
			select {
			case <-ctx.Done():
				return
			default:
				Sleep(ctx, 5*time.Millisecond)
			}
		}
	})
	<-started

	done := make(chan struct{})
	go func() {
		w.Stop()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatalf("Stop did not return within bound")
	}
}

func TestSleepWakesOnCancel(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(5 * time.Millisecond)
		cancel()
	}()

	start := time.Now()
	Sleep(ctx, time.Hour)
	if time.Since(start) > time.Second {
		t.Fatalf("Sleep did not wake promptly on cancellation")
	}
}
