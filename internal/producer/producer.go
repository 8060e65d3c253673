// Package producer implements the node's built-in Producer capabilities:
// Generator (synthetic tone/silence), Pushed (external push-in), and
// FileReplay (RFMA file replay at original cadence). Each follows the
// teacher's Connection pattern: a context-cancellable worker goroutine
// started by Start and joined by Stop within a bounded time.
package producer

import (
	"context"
	"log/slog"
	"math"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/davdef/airlift-node/internal/component"
	"github.com/davdef/airlift-node/internal/pcmframe"
	"github.com/davdef/airlift-node/internal/ring"
)

// frameInterval is the cadence at which producers emit frames for the
// default 100ms PCM frame format.
const frameInterval = pcmframe.DefaultFrameMillis * time.Millisecond

// Generator emits a synthetic sine tone (or silence) at a fixed cadence.
// Useful for tests, demos, and as the reference "attach_ring_buffer then
// start" implementation of the Producer contract.
type Generator struct {
	name       string
	freqHz     float64
	amplitude  int16
	sampleRate uint32
	channels   uint8
	log        *slog.Logger

	mu     sync.Mutex
	ring   *ring.Ring[pcmframe.Frame]
	worker *component.Worker

	running          atomic.Bool
	samplesProcessed atomic.Uint64
	errors           atomic.Uint64
	phase            float64
}

// NewGenerator builds a tone generator. A freqHz of 0 produces silence.
func NewGenerator(name string, freqHz float64, amplitude int16, log *slog.Logger) *Generator {
	return &Generator{
		name:       name,
		freqHz:     freqHz,
		amplitude:  amplitude,
		sampleRate: pcmframe.DefaultSampleRate,
		channels:   pcmframe.DefaultChannels,
		log:        log,
	}
}

// Name returns the producer's logical name.
func (g *Generator) Name() string { return g.name }

// AttachRingBuffer must be called before Start (spec §4.4).
func (g *Generator) AttachRingBuffer(r *ring.Ring[pcmframe.Frame]) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.ring = r
}

// Start spawns the worker that periodically emits frames.
func (g *Generator) Start() error {
	g.mu.Lock()
	r := g.ring
	g.mu.Unlock()
	if r == nil {
		return nil // attach_ring_buffer was never called; nothing to do
	}

	w := component.NewWorker(context.Background())
	g.mu.Lock()
	g.worker = w
	g.mu.Unlock()
	g.running.Store(true)

	w.Run(func(ctx context.Context) {
		defer g.running.Store(false)
		samplesPerCh := pcmframe.DefaultSamplesPerChannel
		for {
			select {
			case <-ctx.Done():
				return
			default:
			}
			samples := g.generate(samplesPerCh)
			r.Push(pcmframe.Frame{
				UTCNanos:   uint64(time.Now().UnixNano()),
				Samples:    samples,
				SampleRate: g.sampleRate,
				Channels:   g.channels,
			}, uint64(time.Now().UnixNano()))
			g.samplesProcessed.Add(uint64(len(samples)))
			component.Sleep(ctx, frameInterval)
		}
	})
	return nil
}

func (g *Generator) generate(samplesPerCh int) []int16 {
	out := make([]int16, samplesPerCh*int(g.channels))
	if g.freqHz <= 0 {
		return out // silence
	}
	step := 2 * math.Pi * g.freqHz / float64(g.sampleRate)
	for i := 0; i < samplesPerCh; i++ {
		v := int16(float64(g.amplitude) * math.Sin(g.phase))
		g.phase += step
		for c := 0; c < int(g.channels); c++ {
			out[i*int(g.channels)+c] = v
		}
	}
	return out
}

// Stop joins the worker within a bounded time.
func (g *Generator) Stop() error {
	g.mu.Lock()
	w := g.worker
	g.mu.Unlock()
	if w != nil {
		w.Stop()
	}
	return nil
}

// Status reports the stable ProducerStatus shape (spec §4.4).
func (g *Generator) Status() component.ProducerStatus {
	return component.ProducerStatus{
		Running:          g.running.Load(),
		Connected:        true,
		SamplesProcessed: g.samplesProcessed.Load(),
		Errors:           g.errors.Load(),
	}
}

// Pushed is a Producer whose frames arrive from an external caller (e.g. a
// network receiver out of this module's scope) via Push, rather than being
// generated internally. Start/Stop only toggle the running flag; there is
// no internal worker goroutine to join.
type Pushed struct {
	name string

	mu   sync.Mutex
	ring *ring.Ring[pcmframe.Frame]

	running          atomic.Bool
	samplesProcessed atomic.Uint64
	errors           atomic.Uint64
}

// NewPushed builds an externally-fed producer.
func NewPushed(name string) *Pushed { return &Pushed{name: name} }

func (p *Pushed) Name() string { return p.name }

func (p *Pushed) AttachRingBuffer(r *ring.Ring[pcmframe.Frame]) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.ring = r
}

func (p *Pushed) Start() error { p.running.Store(true); return nil }
func (p *Pushed) Stop() error  { p.running.Store(false); return nil }

func (p *Pushed) Status() component.ProducerStatus {
	return component.ProducerStatus{
		Running:          p.running.Load(),
		Connected:        true,
		SamplesProcessed: p.samplesProcessed.Load(),
		Errors:           p.errors.Load(),
	}
}

// Push hands an externally-sourced frame to the producer's attached ring.
// It is a no-op (and counts an error) if called before attach or start.
func (p *Pushed) Push(frame pcmframe.Frame) {
	p.mu.Lock()
	r := p.ring
	p.mu.Unlock()
	if r == nil || !p.running.Load() {
		p.errors.Add(1)
		return
	}
	r.Push(frame, frame.UTCNanos)
	p.samplesProcessed.Add(uint64(len(frame.Samples)))
}

// FileReplay reads RFMA records from a file and replays them into its
// attached ring at their original recorded cadence (derived from
// consecutive utc_ns deltas), useful for deterministic tests and demos
// grounded on recorded material.
type FileReplay struct {
	name string
	path string
	log  *slog.Logger

	mu   sync.Mutex
	ring *ring.Ring[pcmframe.Frame]
	wrk  *component.Worker

	running          atomic.Bool
	samplesProcessed atomic.Uint64
	errors           atomic.Uint64
}

// NewFileReplay builds a producer that replays RFMA records from path.
func NewFileReplay(name, path string, log *slog.Logger) *FileReplay {
	return &FileReplay{name: name, path: path, log: log}
}

func (f *FileReplay) Name() string { return f.name }

func (f *FileReplay) AttachRingBuffer(r *ring.Ring[pcmframe.Frame]) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ring = r
}

func (f *FileReplay) Start() error {
	f.mu.Lock()
	r := f.ring
	f.mu.Unlock()
	if r == nil {
		return nil
	}

	data, err := os.ReadFile(f.path)
	if err != nil {
		f.errors.Add(1)
		if f.log != nil {
			f.log.Error("producer: file replay open failed", "name", f.name, "path", f.path, "error", err)
		}
		return err
	}

	records := decodeAllRFMA(data)

	w := component.NewWorker(context.Background())
	f.mu.Lock()
	f.wrk = w
	f.mu.Unlock()
	f.running.Store(true)

	w.Run(func(ctx context.Context) {
		defer f.running.Store(false)
		var lastUTC uint64
		for i, rec := range records {
			select {
			case <-ctx.Done():
				return
			default:
			}
			if i > 0 && rec.UTCNanos > lastUTC {
				component.Sleep(ctx, time.Duration(rec.UTCNanos-lastUTC))
			}
			r.Push(rec, rec.UTCNanos)
			f.samplesProcessed.Add(uint64(len(rec.Samples)))
			lastUTC = rec.UTCNanos
		}
	})
	return nil
}

func (f *FileReplay) Stop() error {
	f.mu.Lock()
	w := f.wrk
	f.mu.Unlock()
	if w != nil {
		w.Stop()
	}
	return nil
}

func (f *FileReplay) Status() component.ProducerStatus {
	return component.ProducerStatus{
		Running:          f.running.Load(),
		Connected:        true,
		SamplesProcessed: f.samplesProcessed.Load(),
		Errors:           f.errors.Load(),
	}
}

// decodeAllRFMA parses every RFMA record in data, stopping at the first
// decode failure (a truncated or corrupt trailing record).
func decodeAllRFMA(data []byte) []pcmframe.Frame {
	var frames []pcmframe.Frame
	off := 0
	for off < len(data) {
		_, frame, err := pcmframe.DecodeRFMA(data[off:])
		if err != nil {
			break
		}
		frames = append(frames, frame)
		off += 4 + 8 + 8 + 4 + len(frame.Samples)*2
	}
	return frames
}
