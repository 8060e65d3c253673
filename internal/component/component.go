// Package component defines the three capability contracts the node drives
// — Producer, Consumer, Processor (spec §4.4–§4.6) — and a shared
// context-cancellable worker lifecycle grounded in the teacher's
// Connection type (context + cancel + bounded WaitGroup join).
package component

import (
	"context"
	"sync"
	"time"

	"github.com/davdef/airlift-node/internal/pcmframe"
	"github.com/davdef/airlift-node/internal/ring"
)

// ProducerStatus is the stable status snapshot returned by a Producer
// (spec §4.4).
type ProducerStatus struct {
	Running          bool
	Connected        bool
	SamplesProcessed uint64
	Errors           uint64
}

// Producer owns a source and pushes frames into one attached ring.
// AttachRingBuffer must be called before Start.
type Producer interface {
	Name() string
	Start() error
	Stop() error
	Status() ProducerStatus
}

// ConsumerStatus is the stable status snapshot returned by a Consumer
// (spec §4.5).
type ConsumerStatus struct {
	Running          bool
	SamplesProcessed uint64
	Errors           uint64
}

// Consumer drains an attached ring via a reader id derived from its name
// and writes/forwards the frames it receives.
type Consumer interface {
	Name() string
	Start() error
	Stop() error
	Status() ConsumerStatus
}

// ProcessorStatus is the stable status snapshot returned by a Processor.
type ProcessorStatus struct {
	FramesProcessed uint64
	Errors          uint64
}

// Processor consumes currently-available frames from input and produces
// into output. Process must not block: if no input is currently
// deliverable it returns promptly. Implementations following the Mixer
// pattern ignore their input argument and resolve sources through the
// registry instead (spec §4.6–§4.7).
type Processor interface {
	Process(input, output *ring.Ring[pcmframe.Frame]) error
	Status() ProcessorStatus
}

// Worker runs fn once in its own goroutine; fn owns its loop and must
// return when ctx is cancelled. Stop cancels ctx and joins the goroutine,
// so the join is bounded by how promptly fn observes the cancellation.
type Worker struct {
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewWorker constructs a Worker bound to a fresh cancellable context
// derived from parent.
func NewWorker(parent context.Context) *Worker {
	ctx, cancel := context.WithCancel(parent)
	return &Worker{ctx: ctx, cancel: cancel}
}

// Context returns the worker's cancellable context, for the run function to
// select on.
func (w *Worker) Context() context.Context { return w.ctx }

// Run launches fn in a goroutine. fn must select on w.Context().Done() and
// return promptly when it fires.
func (w *Worker) Run(fn func(ctx context.Context)) {
	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		fn(w.ctx)
	}()
}

// Stop cancels the worker's context and waits for Run's goroutine to
// return. It is safe to call Stop more than once.
func (w *Worker) Stop() {
	w.cancel()
	w.wg.Wait()
}

// Sleep blocks for d or until ctx is cancelled, whichever comes first. It
// is the cancellable idle sleep every worker loop in the node uses instead
// of a bare time.Sleep, so stop() always wakes a sleeping worker promptly
// (spec §4.4: "a condition-variable-style primitive so idle sleeps can be
// interrupted").
func Sleep(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
