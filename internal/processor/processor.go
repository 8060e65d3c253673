// Package processor implements the node's built-in Processor capabilities:
// PassThrough and Gain. Both are stateless single-purpose transforms,
// grounded in the teacher's small stateless media helpers (audio.go's
// ParseAudioMessage-style shape: one function, one job, no held state).
package processor

import (
	"math"

	"github.com/davdef/airlift-node/internal/component"
	"github.com/davdef/airlift-node/internal/pcmframe"
	"github.com/davdef/airlift-node/internal/ring"
)

// readerID is the constant reader identity processors use when draining
// their input ring directly (non-mixer use; flow wiring ordinarily selects
// the (input, output) pair per its buffering mode and calls Process once
// per worker iteration).
const readerID = "processor"

// PassThrough copies every available frame from input to output unchanged.
// It is the reference "do nothing" processor used to test flow wiring
// without a real transform in the chain.
type PassThrough struct {
	framesProcessed uint64
	errors          uint64
}

// NewPassThrough builds a stateless pass-through processor.
func NewPassThrough() *PassThrough { return &PassThrough{} }

// Process drains every frame currently available on input and pushes it to
// output unchanged. It never blocks: if input has nothing ready it returns
// immediately.
func (p *PassThrough) Process(input, output *ring.Ring[pcmframe.Frame]) error {
	if input == nil || output == nil {
		return nil
	}
	for {
		frame, utcNanos, ok := input.PopForReader(readerID)
		if !ok {
			return nil
		}
		output.Push(frame, utcNanos)
		p.framesProcessed++
	}
}

func (p *PassThrough) Status() component.ProcessorStatus {
	return component.ProcessorStatus{FramesProcessed: p.framesProcessed, Errors: p.errors}
}

// Gain scales every sample of every available frame by a fixed factor,
// clamping to the i16 range on overflow.
type Gain struct {
	factor float64

	framesProcessed uint64
	errors          uint64
}

// NewGain builds a gain processor. A factor of 1.0 is equivalent to
// PassThrough; 0.0 silences the stream.
func NewGain(factor float64) *Gain { return &Gain{factor: factor} }

func (g *Gain) Process(input, output *ring.Ring[pcmframe.Frame]) error {
	if input == nil || output == nil {
		return nil
	}
	for {
		frame, utcNanos, ok := input.PopForReader(readerID)
		if !ok {
			return nil
		}
		scaled := make([]int16, len(frame.Samples))
		for i, s := range frame.Samples {
			scaled[i] = clampI16(float64(s) * g.factor)
		}
		frame.Samples = scaled
		output.Push(frame, utcNanos)
		g.framesProcessed++
	}
}

func (g *Gain) Status() component.ProcessorStatus {
	return component.ProcessorStatus{FramesProcessed: g.framesProcessed, Errors: g.errors}
}

// clampI16 clamps a float64 sum to the inclusive i16 range, matching the
// mixer's per-sample clamping discipline.
func clampI16(v float64) int16 {
	if v > math.MaxInt16 {
		return math.MaxInt16
	}
	if v < math.MinInt16 {
		return math.MinInt16
	}
	return int16(v)
}
