// Package pcmframe defines the PCM frame type moved between producers,
// processors, and consumers, along with the RFMA wire encoding used when a
// frame crosses a process boundary.
package pcmframe

import (
	"encoding/binary"
	"fmt"
)

// Default format constants for the node's PCM data plane (original_source
// codecs/mod.rs: PCM_SAMPLE_RATE, PCM_CHANNELS, PCM_FRAME_MS).
const (
	DefaultSampleRate  = 48000
	DefaultChannels    = 2
	DefaultFrameMillis = 100
	// DefaultSamplesPerChannel is frames_per_chunk for the default format.
	DefaultSamplesPerChannel = DefaultSampleRate * DefaultFrameMillis / 1000
	// DefaultInterleavedSamples is the expected len(Frame.Samples) for the
	// default format (interleaved, so channels * samples-per-channel).
	DefaultInterleavedSamples = DefaultSamplesPerChannel * DefaultChannels
)

// Frame is the unit of transport on the PCM data plane: a timestamped,
// interleaved block of signed 16-bit samples at a fixed rate/channel count.
type Frame struct {
	UTCNanos   uint64
	Samples    []int16
	SampleRate uint32
	Channels   uint8
}

// Validate checks that Samples has the length implied by frames-per-chunk *
// Channels. framesPerChunk is the caller's expected samples-per-channel;
// pass 0 to skip that part of the check (only divisibility by Channels is
// verified).
func (f Frame) Validate(framesPerChunk int) error {
	if f.Channels == 0 {
		return fmt.Errorf("pcmframe: channels must be > 0")
	}
	if len(f.Samples)%int(f.Channels) != 0 {
		return fmt.Errorf("pcmframe: samples length %d not a multiple of channels %d", len(f.Samples), f.Channels)
	}
	if framesPerChunk > 0 && len(f.Samples) != framesPerChunk*int(f.Channels) {
		return fmt.Errorf("pcmframe: expected %d samples, got %d", framesPerChunk*int(f.Channels), len(f.Samples))
	}
	return nil
}

// rfmaMagic is the 4-byte ASCII marker at the start of every RFMA record.
var rfmaMagic = [4]byte{'R', 'F', 'M', 'A'}

// RFMALen returns the exact encoded length of frame's RFMA record, for
// sizing a reusable buffer before a call to EncodeRFMAInto.
func RFMALen(frame Frame) int {
	return 4 + 8 + 8 + 4 + len(frame.Samples)*2
}

// EncodeRFMA serializes a frame together with its ring sequence number into
// the RFMA wire format consulted by external SRT/UDP/Icecast modules:
// magic(4) | seq u64 BE | utc_ns u64 BE | pcm_len u32 BE | pcm_len bytes of
// little-endian i16 samples.
func EncodeRFMA(seq uint64, frame Frame) ([]byte, error) {
	buf := make([]byte, RFMALen(frame))
	n, err := EncodeRFMAInto(buf, seq, frame)
	if err != nil {
		return nil, err
	}
	return buf[:n], nil
}

// EncodeRFMAInto encodes frame's RFMA record into dst, which must have
// length >= RFMALen(frame), and returns the number of bytes written. It
// lets a caller reuse a pooled buffer across many frames instead of
// allocating one per call.
func EncodeRFMAInto(dst []byte, seq uint64, frame Frame) (int, error) {
	pcmLen := len(frame.Samples) * 2
	if pcmLen%2 != 0 {
		return 0, fmt.Errorf("pcmframe: pcm_len %d must be even", pcmLen)
	}
	need := 4 + 8 + 8 + 4 + pcmLen
	if len(dst) < need {
		return 0, fmt.Errorf("pcmframe: dst too small: have %d, need %d", len(dst), need)
	}
	copy(dst[0:4], rfmaMagic[:])
	binary.BigEndian.PutUint64(dst[4:12], seq)
	binary.BigEndian.PutUint64(dst[12:20], frame.UTCNanos)
	binary.BigEndian.PutUint32(dst[20:24], uint32(pcmLen))
	for i, s := range frame.Samples {
		binary.LittleEndian.PutUint16(dst[24+i*2:24+i*2+2], uint16(s))
	}
	return need, nil
}

// DecodeRFMA parses an RFMA record, returning the embedded sequence number
// and frame. SampleRate/Channels are not carried on the wire and must be
// filled in by the caller from the link's negotiated format.
func DecodeRFMA(buf []byte) (seq uint64, frame Frame, err error) {
	if len(buf) < 24 {
		return 0, Frame{}, fmt.Errorf("pcmframe: record too short: %d bytes", len(buf))
	}
	if string(buf[0:4]) != string(rfmaMagic[:]) {
		return 0, Frame{}, fmt.Errorf("pcmframe: bad magic %q", buf[0:4])
	}
	seq = binary.BigEndian.Uint64(buf[4:12])
	utcNanos := binary.BigEndian.Uint64(buf[12:20])
	pcmLen := binary.BigEndian.Uint32(buf[20:24])
	if pcmLen%2 != 0 {
		return 0, Frame{}, fmt.Errorf("pcmframe: pcm_len %d must be even", pcmLen)
	}
	if len(buf) < 24+int(pcmLen) {
		return 0, Frame{}, fmt.Errorf("pcmframe: truncated record: want %d more bytes, have %d", pcmLen, len(buf)-24)
	}
	samples := make([]int16, pcmLen/2)
	for i := range samples {
		samples[i] = int16(binary.LittleEndian.Uint16(buf[24+i*2 : 24+i*2+2]))
	}
	return seq, Frame{UTCNanos: utcNanos, Samples: samples}, nil
}
