package codec

import "testing"

func TestPCMPassthroughEncoderRoundTrip(t *testing.T) {
	t.Parallel()

	enc := NewPCMPassthroughEncoder(48000, 2)
	frames, err := enc.Encode([]int16{1, -1, 1000})
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	if len(frames) != 1 {
		t.Fatalf("expected 1 encoded frame, got %d", len(frames))
	}
	if frames[0].Info.Kind != KindPCM {
		t.Fatalf("expected kind pcm, got %v", frames[0].Info.Kind)
	}
	if len(frames[0].Payload) != 6 {
		t.Fatalf("expected 6 byte payload, got %d", len(frames[0].Payload))
	}
}

func TestPCMPassthroughEncoderEmptyInput(t *testing.T) {
	t.Parallel()

	enc := NewPCMPassthroughEncoder(48000, 2)
	frames, err := enc.Encode(nil)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	if frames != nil {
		t.Fatalf("expected no frames for empty input, got %v", frames)
	}
}

func TestPollReportsFrameThenEmpty(t *testing.T) {
	t.Parallel()

	r := NewRing(4, nil)
	r.PopForReader("consumer:1") // seat at live before any push

	r.Push(EncodedFrame{Payload: []byte{1, 2}, Info: Info{Kind: KindPCM}}, 10)

	res := Poll(r, "consumer:1")
	if res.Kind != PollFrame {
		t.Fatalf("expected PollFrame, got %v", res.Kind)
	}
	if res.UTCNanos != 10 {
		t.Fatalf("expected utc_ns 10, got %d", res.UTCNanos)
	}

	res = Poll(r, "consumer:1")
	if res.Kind != PollEmpty {
		t.Fatalf("expected PollEmpty after draining, got %v", res.Kind)
	}
}

func TestPollReportsGapOnceWithMissedCountThenResumes(t *testing.T) {
	t.Parallel()

	r := NewRing(4, nil)
	r.PopForReader("consumer:1") // seat at live before any push

	for i := 1; i <= 10; i++ {
		r.Push(EncodedFrame{Payload: []byte{byte(i)}}, uint64(i))
	}

	res := Poll(r, "consumer:1")
	if res.Kind != PollGap {
		t.Fatalf("expected PollGap, got %v", res.Kind)
	}
	if res.Missed != 6 {
		t.Fatalf("expected missed == 6, got %d", res.Missed)
	}

	res = Poll(r, "consumer:1")
	if res.Kind != PollFrame {
		t.Fatalf("expected PollFrame immediately after the gap, got %v", res.Kind)
	}

	// A caught-up reader on a ring that has dropped frames elsewhere in its
	// history must not keep reporting a gap.
	res = Poll(r, "consumer:1")
	for res.Kind == PollFrame {
		res = Poll(r, "consumer:1")
	}
	if res.Kind != PollEmpty {
		t.Fatalf("expected PollEmpty once caught up, got %v", res.Kind)
	}
}

func TestSupportedCodecsIncludesPCM(t *testing.T) {
	t.Parallel()

	codecs := SupportedCodecs(48000, 2)
	found := false
	for _, c := range codecs {
		if c.Kind == KindPCM && c.Container == ContainerRaw {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected PCM/raw codec in supported list")
	}
}
