package pcmframe

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestEncodeDecodeRFMARoundTrip(t *testing.T) {
	t.Parallel()

	frame := Frame{
		UTCNanos:   123456789,
		Samples:    []int16{1, 2, 3, 4, -5, -6},
		SampleRate: DefaultSampleRate,
		Channels:   DefaultChannels,
	}

	buf, err := EncodeRFMA(42, frame)
	if err != nil {
		t.Fatalf("EncodeRFMA: %v", err)
	}
	if string(buf[0:4]) != "RFMA" {
		t.Fatalf("expected magic RFMA, got %q", buf[0:4])
	}

	seq, got, err := DecodeRFMA(buf)
	if err != nil {
		t.Fatalf("DecodeRFMA: %v", err)
	}
	if seq != 42 {
		t.Fatalf("expected seq 42, got %d", seq)
	}
	if got.UTCNanos != frame.UTCNanos {
		t.Fatalf("utc_ns mismatch: %d != %d", got.UTCNanos, frame.UTCNanos)
	}
	if diff := cmp.Diff(frame.Samples, got.Samples); diff != "" {
		t.Fatalf("samples mismatch (-want +got):\n%s", diff)
	}
}

func TestDecodeRFMARejectsBadMagic(t *testing.T) {
	t.Parallel()
	buf := make([]byte, 24)
	copy(buf, "XXXX")
	if _, _, err := DecodeRFMA(buf); err == nil {
		t.Fatalf("expected error for bad magic")
	}
}

func TestDecodeRFMARejectsTruncatedRecord(t *testing.T) {
	t.Parallel()
	frame := Frame{UTCNanos: 1, Samples: []int16{1, 2, 3, 4}, Channels: 2}
	buf, err := EncodeRFMA(1, frame)
	if err != nil {
		t.Fatalf("EncodeRFMA: %v", err)
	}
	if _, _, err := DecodeRFMA(buf[:len(buf)-2]); err == nil {
		t.Fatalf("expected error for truncated record")
	}
}

func TestEncodeRFMAIntoMatchesEncodeRFMA(t *testing.T) {
	t.Parallel()

	frame := Frame{UTCNanos: 7, Samples: []int16{1, -2, 3}, Channels: 1}
	want, err := EncodeRFMA(9, frame)
	if err != nil {
		t.Fatalf("EncodeRFMA: %v", err)
	}

	buf := make([]byte, RFMALen(frame))
	n, err := EncodeRFMAInto(buf, 9, frame)
	if err != nil {
		t.Fatalf("EncodeRFMAInto: %v", err)
	}
	if diff := cmp.Diff(want, buf[:n]); diff != "" {
		t.Fatalf("EncodeRFMAInto mismatch (-want +got):\n%s", diff)
	}
}

func TestEncodeRFMAIntoRejectsUndersizedBuffer(t *testing.T) {
	t.Parallel()

	frame := Frame{Samples: []int16{1, 2}, Channels: 1}
	buf := make([]byte, RFMALen(frame)-1)
	if _, err := EncodeRFMAInto(buf, 1, frame); err == nil {
		t.Fatalf("expected error for undersized destination buffer")
	}
}

func TestFrameValidate(t *testing.T) {
	t.Parallel()

	ok := Frame{Channels: 2, Samples: make([]int16, DefaultInterleavedSamples)}
	if err := ok.Validate(DefaultSamplesPerChannel); err != nil {
		t.Fatalf("expected valid frame, got %v", err)
	}

	bad := Frame{Channels: 2, Samples: make([]int16, 3)}
	if err := bad.Validate(0); err == nil {
		t.Fatalf("expected error for odd sample count with 2 channels")
	}
}
