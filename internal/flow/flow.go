// Package flow implements the scheduler that drains multiple input rings
// into a merge buffer, threads frames through a processor chain, and
// publishes the result to a fan-out output ring consumers subscribe to
// (spec §4.8). The worker loop is grounded in the teacher's
// conn.startReadLoop: a context-cancellable goroutine selecting on
// ctx.Done() every iteration, generalized from "read one message" to
// "drain N rings, run the processor chain, sleep".
package flow

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/davdef/airlift-node/internal/apperrors"
	"github.com/davdef/airlift-node/internal/component"
	"github.com/davdef/airlift-node/internal/pcmframe"
	"github.com/davdef/airlift-node/internal/registry"
	"github.com/davdef/airlift-node/internal/ring"
)

// State is the flow's lifecycle state (spec §4.8).
type State int

const (
	StateIdle State = iota
	StateRunning
	StateStopping
)

func (s State) String() string {
	switch s {
	case StateRunning:
		return "running"
	case StateStopping:
		return "stopping"
	default:
		return "idle"
	}
}

// Mode selects how processor stages are wired together.
type Mode int

const (
	// Buffered is the legacy mode: every processor gets a dedicated
	// capacity-1000 intermediate ring regardless of the buffered flag it
	// was added with.
	Buffered Mode = iota
	// Simplified alternates two scratch rings for unbuffered stages and
	// allocates real intermediates only for stages explicitly marked
	// buffered.
	Simplified
)

const (
	mergeCapacity        = 1000
	intermediateCapacity = 1000
	scratchCapacity      = 1000
	idleIterationSleep   = 100 * time.Millisecond
	activeIterationSleep = 10 * time.Millisecond
	statusLogEvery       = 100
)

// namedInput pairs a resolved ring with the registry name it was resolved
// from, so RemoveInputFromRegistry can find the first matching reference.
type namedInput struct {
	name string
	ring *ring.Ring[pcmframe.Frame]
}

// stage is one entry in the processor chain.
type stage struct {
	proc         component.Processor
	buffered     bool
	intermediate *ring.Ring[pcmframe.Frame]
}

// Status is the stable snapshot returned by Status.
type Status struct {
	State          State
	Inputs         int
	Processors     int
	Consumers      int
	Iterations     uint64
}

// Flow is the graph node that merges input buffers, runs a processor
// chain, and fans out to consumers (spec §4.8 "Flow state").
type Flow struct {
	name string
	log  *slog.Logger

	mu     sync.Mutex
	state  State
	mode   Mode
	inputs []namedInput
	stages []*stage

	merge        *ring.Ring[pcmframe.Frame]
	output       *ring.Ring[pcmframe.Frame]
	scratch      [2]*ring.Ring[pcmframe.Frame]
	scratchIndex int

	consumers []component.Consumer
	worker    *component.Worker

	iterations atomic.Uint64
}

// New constructs an idle flow with empty input/processor/consumer lists.
func New(name string, log *slog.Logger) *Flow {
	return &Flow{
		name:   name,
		log:    log,
		merge:  ring.New[pcmframe.Frame](mergeCapacity, log),
		output: ring.New[pcmframe.Frame](intermediateCapacity, log),
		scratch: [2]*ring.Ring[pcmframe.Frame]{
			ring.New[pcmframe.Frame](scratchCapacity, log),
			ring.New[pcmframe.Frame](scratchCapacity, log),
		},
	}
}

// Name returns the flow's logical name, used to derive its reader id.
func (f *Flow) Name() string { return f.name }

// Output returns the flow's fan-out output ring, for a consumer registry
// entry or for wiring the flow's output into another flow's input.
func (f *Flow) Output() *ring.Ring[pcmframe.Frame] { return f.output }

// SetMode selects the pipeline wiring strategy. Must be called before any
// AddProcessor call to take effect for that processor.
func (f *Flow) SetMode(m Mode) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.mode = m
}

// readerID is this flow's stable reader identity over its input buffers
// (spec §4.8: `"flow:<name>:input"`).
func (f *Flow) readerID() string { return "flow:" + f.name + ":input" }

// AddInputFromRegistry resolves name in reg and appends it as an input
// (spec §4.8: "duplicate adds are accepted").
func (f *Flow) AddInputFromRegistry(reg *registry.Registry[*ring.Ring[pcmframe.Frame]], name string) error {
	r, err := reg.Get(name)
	if err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.inputs = append(f.inputs, namedInput{name: name, ring: r})
	return nil
}

// RemoveInputFromRegistry removes the first input reference registered
// under name, failing with BufferNotFoundError if none is attached.
func (f *Flow) RemoveInputFromRegistry(name string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i, in := range f.inputs {
		if in.name == name {
			f.inputs = append(f.inputs[:i], f.inputs[i+1:]...)
			return nil
		}
	}
	return apperrors.NewBufferNotFound(name)
}

// AddProcessor appends a processor to the chain. In Buffered mode every
// processor is given a dedicated intermediate ring regardless of buffered;
// in Simplified mode buffered selects whether this stage gets its own
// intermediate or shares the alternating scratch pair (spec §4.8).
func (f *Flow) AddProcessor(proc component.Processor, buffered bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	st := &stage{proc: proc, buffered: buffered || f.mode == Buffered}
	if st.buffered {
		st.intermediate = ring.New[pcmframe.Frame](intermediateCapacity, f.log)
	}
	f.stages = append(f.stages, st)
}

// AddConsumer attaches c to the flow's output ring and registers it to be
// started/stopped with the flow.
func (f *Flow) AddConsumer(c component.Consumer) {
	type attacher interface {
		AttachInputBuffer(*ring.Ring[pcmframe.Frame])
	}
	if a, ok := c.(attacher); ok {
		a.AttachInputBuffer(f.output)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.consumers = append(f.consumers, c)
}

// Start transitions Idle → Running, spawns the worker, and starts every
// consumer (errors logged, not fatal; spec §4.8).
func (f *Flow) Start() error {
	f.mu.Lock()
	if f.state != StateIdle {
		f.mu.Unlock()
		return nil
	}
	f.state = StateRunning
	consumers := append([]component.Consumer(nil), f.consumers...)
	f.mu.Unlock()

	for _, c := range consumers {
		if err := c.Start(); err != nil && f.log != nil {
			f.log.Error("flow: consumer start failed", "flow", f.name, "consumer", c.Name(), "error", err)
		}
	}

	w := component.NewWorker(context.Background())
	f.mu.Lock()
	f.worker = w
	f.mu.Unlock()
	w.Run(f.runLoop)
	return nil
}

// Stop transitions Running → Stopping, stops every consumer, and joins the
// worker before returning to Idle.
func (f *Flow) Stop() error {
	f.mu.Lock()
	if f.state != StateRunning {
		f.mu.Unlock()
		return nil
	}
	f.state = StateStopping
	consumers := append([]component.Consumer(nil), f.consumers...)
	w := f.worker
	f.mu.Unlock()

	for _, c := range consumers {
		if err := c.Stop(); err != nil && f.log != nil {
			f.log.Error("flow: consumer stop failed", "flow", f.name, "consumer", c.Name(), "error", err)
		}
	}
	if w != nil {
		w.Stop()
	}

	f.mu.Lock()
	f.state = StateIdle
	f.mu.Unlock()
	return nil
}

// runLoop is the worker body: one iteration drains inputs, runs the
// processor chain, and sleeps. A panic anywhere in an iteration is fatal
// only to this flow: it is recovered, logged, and the flow falls back to
// Idle (spec §4.8 "Failure semantics").
func (f *Flow) runLoop(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			f.mu.Lock()
			f.state = StateIdle
			f.mu.Unlock()
			if f.log != nil {
				f.log.Error("flow: worker panicked, flow stopped", "flow", f.name, "panic", r)
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		collected, available := f.drainInputs()
		f.runProcessorChain()

		n := f.iterations.Add(1)
		if n%statusLogEvery == 0 && f.log != nil {
			f.log.Debug("flow: iteration status", "flow", f.name, "collected", collected, "available", available, "iterations", n)
		}

		if collected == 0 && available == 0 {
			component.Sleep(ctx, idleIterationSleep)
		} else {
			component.Sleep(ctx, activeIterationSleep)
		}
	}
}

// drainInputs empties every configured input buffer into the merge buffer
// via the flow's reader id, bounding each input's drain to the frames
// available at the start of this call so one fast input cannot starve the
// others (spec §4.8 step 2).
func (f *Flow) drainInputs() (collected, available int) {
	f.mu.Lock()
	inputs := append([]namedInput(nil), f.inputs...)
	f.mu.Unlock()

	if len(inputs) == 0 {
		return 0, 0
	}

	readerID := f.readerID()
	for _, in := range inputs {
		budget := in.ring.AvailableForReader(readerID)
		available += budget
		for i := 0; i < budget; i++ {
			frame, utcNanos, ok := in.ring.PopForReader(readerID)
			if !ok {
				break
			}
			f.merge.Push(frame, utcNanos)
			collected++
		}
	}
	return collected, available
}

// runProcessorChain runs every stage in order, selecting the (input,
// output) ring pair per the flow's pipeline mode (spec §4.8 step 3).
// Processor errors are logged and the chain continues with the next
// stage; they are never fatal.
func (f *Flow) runProcessorChain() {
	f.mu.Lock()
	stages := append([]*stage(nil), f.stages...)
	mode := f.mode
	scratchIndex := f.scratchIndex
	f.mu.Unlock()

	prev := f.merge
	for i, st := range stages {
		last := i == len(stages)-1
		var out *ring.Ring[pcmframe.Frame]
		switch {
		case last:
			out = f.output
		case mode == Buffered, st.buffered:
			out = st.intermediate
		default:
			out = f.scratch[scratchIndex]
			scratchIndex = (scratchIndex + 1) % 2
		}

		if err := st.proc.Process(prev, out); err != nil && f.log != nil {
			f.log.Error("flow: processor failed", "flow", f.name, "stage", i, "error", err)
		}
		prev = out
	}

	f.mu.Lock()
	f.scratchIndex = scratchIndex
	f.mu.Unlock()
}

// Status reports a cheap, lock-protected snapshot of the flow's shape and
// progress.
func (f *Flow) Status() Status {
	f.mu.Lock()
	defer f.mu.Unlock()
	return Status{
		State:      f.state,
		Inputs:     len(f.inputs),
		Processors: len(f.stages),
		Consumers:  len(f.consumers),
		Iterations: f.iterations.Load(),
	}
}
