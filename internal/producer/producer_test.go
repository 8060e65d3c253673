package producer

import (
	"testing"
	"time"

	"github.com/davdef/airlift-node/internal/pcmframe"
	"github.com/davdef/airlift-node/internal/ring"
)

func TestGeneratorPushesFrames(t *testing.T) {
	t.Parallel()

	g := NewGenerator("tone", 440, 1000, nil)
	r := ring.New[pcmframe.Frame](8, nil)
	g.AttachRingBuffer(r)

	if err := g.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer g.Stop()

	deadline := time.Now().Add(2 * time.Second)
	for r.Len() == 0 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if r.Len() == 0 {
		t.Fatalf("expected generator to push at least one frame")
	}
	if !g.Status().Running {
		t.Fatalf("expected generator to report running")
	}
}

func TestPushedProducerForwardsFrames(t *testing.T) {
	t.Parallel()

	p := NewPushed("ext")
	r := ring.New[pcmframe.Frame](8, nil)
	p.AttachRingBuffer(r)
	if err := p.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}

	p.Push(pcmframe.Frame{UTCNanos: 1, Samples: []int16{1, 2}, Channels: 2})

	if got := r.Len(); got != 1 {
		t.Fatalf("expected 1 frame in ring, got %d", got)
	}
	if got := p.Status().SamplesProcessed; got != 2 {
		t.Fatalf("expected 2 samples processed, got %d", got)
	}
}

func TestPushedProducerRejectsPushBeforeStart(t *testing.T) {
	t.Parallel()

	p := NewPushed("ext")
	r := ring.New[pcmframe.Frame](8, nil)
	p.AttachRingBuffer(r)
	// Not started.
	p.Push(pcmframe.Frame{UTCNanos: 1, Samples: []int16{1, 2}, Channels: 2})

	if got := r.Len(); got != 0 {
		t.Fatalf("expected push before start to be dropped, ring len=%d", got)
	}
	if got := p.Status().Errors; got != 1 {
		t.Fatalf("expected 1 error counted, got %d", got)
	}
}

func TestDecodeAllRFMA(t *testing.T) {
	t.Parallel()

	f1, _ := pcmframe.EncodeRFMA(1, pcmframe.Frame{UTCNanos: 100, Samples: []int16{1, 2}})
	f2, _ := pcmframe.EncodeRFMA(2, pcmframe.Frame{UTCNanos: 200, Samples: []int16{3, 4}})
	data := append(f1, f2...)

	frames := decodeAllRFMA(data)
	if len(frames) != 2 {
		t.Fatalf("expected 2 frames, got %d", len(frames))
	}
	if frames[0].UTCNanos != 100 || frames[1].UTCNanos != 200 {
		t.Fatalf("unexpected frame timestamps: %+v", frames)
	}
}
