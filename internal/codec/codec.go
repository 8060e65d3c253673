// Package codec describes encoders consumed by encoded consumers (spec
// §4.2, §6 "Codec interface") and the Ring[EncodedFrame] variant of the
// ring buffer that carries their output, plus a reference passthrough
// encoder.
package codec

import (
	"log/slog"

	"github.com/davdef/airlift-node/internal/ring"
)

// Kind identifies the compression scheme of an EncodedFrame's payload.
type Kind string

const (
	KindPCM        Kind = "pcm"
	KindOpusOgg    Kind = "opus_ogg"
	KindOpusWebRTC Kind = "opus_webrtc"
	KindMP3        Kind = "mp3"
	KindVorbis     Kind = "vorbis"
	KindAACLC      Kind = "aac_lc"
	KindFLAC       Kind = "flac"
)

// Container identifies the framing the encoded payload is wrapped in.
type Container string

const (
	ContainerRaw Container = "raw"
	ContainerOgg Container = "ogg"
	ContainerMpeg Container = "mpeg"
	ContainerRTP  Container = "rtp"
)

// Info describes the format of frames an Encoder produces.
type Info struct {
	Kind       Kind
	SampleRate uint32
	Channels   uint8
	Container  Container
}

// EncodedFrame is the payload type carried by an encoded ring: an opaque
// byte payload plus the codec descriptor it was produced with.
type EncodedFrame struct {
	Payload []byte
	Info    Info
}

// Encoder converts PCM chunks into zero or more EncodedFrames.
// Implementations must accept PCM chunks whose length is a multiple of
// their expected frame size.
type Encoder interface {
	Info() Info
	Encode(pcm []int16) ([]EncodedFrame, error)
}

// Ring is the encoded-frame specialization of ring.Ring, carrying a utc_ns
// timestamp alongside each EncodedFrame (spec §4.2).
type Ring = ring.Ring[EncodedFrame]

// NewRing preallocates an encoded ring of the given capacity.
func NewRing(capacity int, log *slog.Logger) *Ring {
	return ring.New[EncodedFrame](capacity, log)
}

// PollResultKind tags the outcome of a Poll call.
type PollResultKind int

const (
	PollEmpty PollResultKind = iota
	PollFrame
	PollGap
)

// PollResult is the tagged union returned by Poll: exactly one of Frame or
// Missed is meaningful, selected by Kind (spec §4.2: "Frame{frame, utc_ns}
// | Gap{missed} | Empty").
type PollResult struct {
	Kind     PollResultKind
	Frame    EncodedFrame
	UTCNanos uint64
	Missed   uint64
}

// Poll drains the next encoded frame for readerID, reporting a Gap exactly
// once when the reader has fallen more than capacity behind head, then
// resuming normal delivery from the new oldest retained frame.
func Poll(r *Ring, readerID string) PollResult {
	frame, utcNanos, ok, missed := r.PopOrGap(readerID)
	switch {
	case ok:
		return PollResult{Kind: PollFrame, Frame: frame, UTCNanos: utcNanos}
	case missed > 0:
		return PollResult{Kind: PollGap, Missed: missed}
	default:
		return PollResult{Kind: PollEmpty}
	}
}

// PCMPassthroughEncoder is the reference Encoder implementation: it wraps
// raw PCM samples as a single EncodedFrame per call with no compression,
// useful for exercising the encoded-consumer path without a real codec
// dependency.
type PCMPassthroughEncoder struct {
	info Info
}

// NewPCMPassthroughEncoder builds a passthrough encoder advertising the
// given sample rate and channel count.
func NewPCMPassthroughEncoder(sampleRate uint32, channels uint8) *PCMPassthroughEncoder {
	return &PCMPassthroughEncoder{info: Info{
		Kind:       KindPCM,
		SampleRate: sampleRate,
		Channels:   channels,
		Container:  ContainerRaw,
	}}
}

func (e *PCMPassthroughEncoder) Info() Info { return e.info }

func (e *PCMPassthroughEncoder) Encode(pcm []int16) ([]EncodedFrame, error) {
	if len(pcm) == 0 {
		return nil, nil
	}
	payload := make([]byte, len(pcm)*2)
	for i, s := range pcm {
		payload[i*2] = byte(uint16(s))
		payload[i*2+1] = byte(uint16(s) >> 8)
	}
	return []EncodedFrame{{Payload: payload, Info: e.info}}, nil
}

// SupportedCodecs lists the codec descriptors the node knows about by name,
// for status reporting; it does not imply every kind has a bundled Encoder
// (spec's original_source lists several kinds gated behind build features
// this module does not carry — only PCM passthrough ships here).
func SupportedCodecs(sampleRate uint32, channels uint8) []Info {
	return []Info{
		{Kind: KindPCM, SampleRate: sampleRate, Channels: channels, Container: ContainerRaw},
		{Kind: KindOpusOgg, SampleRate: sampleRate, Channels: channels, Container: ContainerOgg},
		{Kind: KindOpusWebRTC, SampleRate: sampleRate, Channels: channels, Container: ContainerRTP},
		{Kind: KindVorbis, SampleRate: sampleRate, Channels: channels, Container: ContainerOgg},
		{Kind: KindAACLC, SampleRate: sampleRate, Channels: channels, Container: ContainerRaw},
		{Kind: KindFLAC, SampleRate: sampleRate, Channels: channels, Container: ContainerRaw},
		{Kind: KindMP3, SampleRate: sampleRate, Channels: channels, Container: ContainerMpeg},
	}
}
