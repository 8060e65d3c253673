package processor

import (
	"testing"

	"github.com/davdef/airlift-node/internal/pcmframe"
	"github.com/davdef/airlift-node/internal/ring"
)

func TestPassThroughCopiesAllAvailableFrames(t *testing.T) {
	t.Parallel()

	in := ring.New[pcmframe.Frame](8, nil)
	out := ring.New[pcmframe.Frame](8, nil)
	in.SeatReader(readerID) // seat before pushing; a fresh reader starts from live
	in.Push(pcmframe.Frame{Samples: []int16{1, 2}}, 1)
	in.Push(pcmframe.Frame{Samples: []int16{3, 4}}, 2)

	p := NewPassThrough()
	if err := p.Process(in, out); err != nil {
		t.Fatalf("Process: %v", err)
	}
	if got := out.Len(); got != 2 {
		t.Fatalf("expected 2 frames copied, got %d", got)
	}
	if got := p.Status().FramesProcessed; got != 2 {
		t.Fatalf("expected 2 frames processed, got %d", got)
	}
}

func TestPassThroughReturnsPromptlyWhenEmpty(t *testing.T) {
	t.Parallel()

	in := ring.New[pcmframe.Frame](8, nil)
	out := ring.New[pcmframe.Frame](8, nil)
	p := NewPassThrough()
	if err := p.Process(in, out); err != nil {
		t.Fatalf("Process: %v", err)
	}
	if got := out.Len(); got != 0 {
		t.Fatalf("expected no frames, got %d", got)
	}
}

func TestGainScalesAndClamps(t *testing.T) {
	t.Parallel()

	in := ring.New[pcmframe.Frame](8, nil)
	out := ring.New[pcmframe.Frame](8, nil)
	in.SeatReader(readerID) // seat before pushing; a fresh reader starts from live
	in.Push(pcmframe.Frame{Samples: []int16{100, -100, 30000}}, 1)

	g := NewGain(2.0)
	if err := g.Process(in, out); err != nil {
		t.Fatalf("Process: %v", err)
	}

	snap := out.Snapshot()
	if len(snap) != 1 {
		t.Fatalf("expected 1 frame, got %d", len(snap))
	}
	got := snap[0].Samples
	want := []int16{200, -200, 32767}
	for i, w := range want {
		if got[i] != w {
			t.Fatalf("sample %d: got %d want %d", i, got[i], w)
		}
	}
}

func TestGainZeroSilences(t *testing.T) {
	t.Parallel()

	in := ring.New[pcmframe.Frame](8, nil)
	out := ring.New[pcmframe.Frame](8, nil)
	in.SeatReader(readerID) // seat before pushing; a fresh reader starts from live
	in.Push(pcmframe.Frame{Samples: []int16{100, -100}}, 1)

	g := NewGain(0)
	if err := g.Process(in, out); err != nil {
		t.Fatalf("Process: %v", err)
	}
	snap := out.Snapshot()
	for _, s := range snap[0].Samples {
		if s != 0 {
			t.Fatalf("expected silence, got %d", s)
		}
	}
}
