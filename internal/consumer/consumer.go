// Package consumer implements the node's built-in Consumer capabilities:
// FileWriter (RFMA file persistence, adapted from the teacher's FLV
// recorder), Subscriber (live fan-out with non-blocking backpressure,
// adapted from the teacher's media relay), and Encoder (PCM to encoded
// frame, publishing into a codec.Ring).
package consumer

import (
	"context"
	"log/slog"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/davdef/airlift-node/internal/apperrors"
	"github.com/davdef/airlift-node/internal/bufpool"
	"github.com/davdef/airlift-node/internal/codec"
	"github.com/davdef/airlift-node/internal/component"
	"github.com/davdef/airlift-node/internal/pcmframe"
	"github.com/davdef/airlift-node/internal/ring"
)

// pollInterval is the consumer worker's idle poll back-off (spec §4.5:
// "recommended ~10ms polling").
const pollInterval = 10 * time.Millisecond

// readerIDFor derives a consumer's reader identity from its name, per the
// convention in spec §4.5.
func readerIDFor(name string) string { return "consumer:" + name }

// FileWriter persists every frame it drains to a single RFMA file. On a
// write error it counts the error, closes the file, and disables itself
// rather than taking down the flow; frames drained after that are
// discarded without being counted (mirrors the teacher's Recorder
// "graceful degradation: on any write error the recorder is disabled").
type FileWriter struct {
	name string
	path string
	log  *slog.Logger

	mu           sync.Mutex
	w            *os.File
	disabled     bool
	bytesWritten uint64

	in     *ring.Ring[pcmframe.Frame]
	worker *component.Worker

	running          atomic.Bool
	samplesProcessed atomic.Uint64
	errors           atomic.Uint64
}

// NewFileWriter creates a FileWriter persisting to path.
func NewFileWriter(name, path string, log *slog.Logger) (*FileWriter, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, apperrors.NewBackendError("consumer.FileWriter.create", err)
	}
	return &FileWriter{name: name, path: path, log: log, w: f}, nil
}

func (fw *FileWriter) Name() string { return fw.name }

// AttachInputBuffer must be called before Start (spec §4.5).
func (fw *FileWriter) AttachInputBuffer(r *ring.Ring[pcmframe.Frame]) {
	fw.mu.Lock()
	defer fw.mu.Unlock()
	fw.in = r
}

func (fw *FileWriter) Start() error {
	fw.mu.Lock()
	in := fw.in
	fw.mu.Unlock()
	if in == nil {
		return nil
	}

	w := component.NewWorker(context.Background())
	fw.mu.Lock()
	fw.worker = w
	fw.mu.Unlock()
	fw.running.Store(true)
	readerID := readerIDFor(fw.name)
	in.SeatReader(readerID) // deliver frames pushed from now on, not from the worker's first pop

	w.Run(func(ctx context.Context) {
		defer fw.running.Store(false)
		var seq uint64
		for {
			select {
			case <-ctx.Done():
				return
			default:
			}
			frame, _, ok := in.PopForReader(readerID)
			if !ok {
				component.Sleep(ctx, pollInterval)
				continue
			}
			seq++
			fw.write(seq, frame)
		}
	})
	return nil
}

// write serializes frame into a pooled buffer sized for the record (rather
// than allocating a fresh one per call, the teacher's bufpool sized-class
// reuse) and returns it once the write has completed.
func (fw *FileWriter) write(seq uint64, frame pcmframe.Frame) {
	fw.mu.Lock()
	defer fw.mu.Unlock()
	if fw.disabled {
		return
	}
	buf := bufpool.Get(pcmframe.RFMALen(frame))
	defer bufpool.Put(buf)
	n, err := pcmframe.EncodeRFMAInto(buf, seq, frame)
	if err != nil {
		fw.errors.Add(1)
		if fw.log != nil {
			fw.log.Error("consumer: file writer encode failed", "name", fw.name, "error", err)
		}
		return
	}
	if _, err := fw.w.Write(buf[:n]); err != nil {
		fw.errors.Add(1)
		fw.disabled = true
		_ = fw.w.Close()
		if fw.log != nil {
			fw.log.Error("consumer: file writer disabled after write error", "name", fw.name, "error", err)
		}
		return
	}
	fw.bytesWritten += uint64(n)
	fw.samplesProcessed.Add(uint64(len(frame.Samples)))
}

func (fw *FileWriter) Stop() error {
	fw.mu.Lock()
	w := fw.worker
	fw.mu.Unlock()
	if w != nil {
		w.Stop()
	}
	fw.mu.Lock()
	defer fw.mu.Unlock()
	if !fw.disabled && fw.w != nil {
		_ = fw.w.Close()
		fw.disabled = true
	}
	return nil
}

func (fw *FileWriter) Status() component.ConsumerStatus {
	return component.ConsumerStatus{
		Running:          fw.running.Load(),
		SamplesProcessed: fw.samplesProcessed.Load(),
		Errors:           fw.errors.Load(),
	}
}

// Subscriber is a live fan-out sink: anything implementing Deliver can be
// registered, and delivery to a slow subscriber never blocks the others
// (mirrors the teacher's BroadcastMessage: snapshot under read lock,
// deliver outside the lock, drop on a full non-blocking send).
type Deliver interface {
	// TryDeliver attempts a non-blocking delivery; it returns false if the
	// subscriber's own buffering is full, in which case the frame is
	// dropped for that subscriber only.
	TryDeliver(frame pcmframe.Frame) bool
}

// Subscriber drains an input ring and fans each frame out to every
// registered Deliver target.
type Subscriber struct {
	name string
	log  *slog.Logger

	mu    sync.RWMutex
	subs  []Deliver
	in    *ring.Ring[pcmframe.Frame]
	wrk   *component.Worker

	running          atomic.Bool
	samplesProcessed atomic.Uint64
	errors           atomic.Uint64
	dropped          atomic.Uint64
}

// NewSubscriber builds a fan-out consumer.
func NewSubscriber(name string, log *slog.Logger) *Subscriber {
	return &Subscriber{name: name, log: log}
}

func (s *Subscriber) Name() string { return s.name }

func (s *Subscriber) AttachInputBuffer(r *ring.Ring[pcmframe.Frame]) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.in = r
}

// AddDeliverTarget registers a new fan-out target. Safe to call while running.
func (s *Subscriber) AddDeliverTarget(d Deliver) {
	if d == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.subs = append(s.subs, d)
}

func (s *Subscriber) Start() error {
	s.mu.RLock()
	in := s.in
	s.mu.RUnlock()
	if in == nil {
		return nil
	}

	w := component.NewWorker(context.Background())
	s.mu.Lock()
	s.wrk = w
	s.mu.Unlock()
	s.running.Store(true)
	readerID := readerIDFor(s.name)
	in.SeatReader(readerID) // deliver frames pushed from now on, not from the worker's first pop

	w.Run(func(ctx context.Context) {
		defer s.running.Store(false)
		for {
			select {
			case <-ctx.Done():
				return
			default:
			}
			frame, _, ok := in.PopForReader(readerID)
			if !ok {
				component.Sleep(ctx, pollInterval)
				continue
			}
			s.broadcast(frame)
			s.samplesProcessed.Add(uint64(len(frame.Samples)))
		}
	})
	return nil
}

func (s *Subscriber) broadcast(frame pcmframe.Frame) {
	s.mu.RLock()
	subs := make([]Deliver, len(s.subs))
	copy(subs, s.subs)
	s.mu.RUnlock()

	for _, d := range subs {
		if !d.TryDeliver(frame) {
			s.dropped.Add(1)
			if s.log != nil {
				s.log.Debug("consumer: dropped frame for slow subscriber", "name", s.name)
			}
		}
	}
}

func (s *Subscriber) Stop() error {
	s.mu.Lock()
	w := s.wrk
	s.mu.Unlock()
	if w != nil {
		w.Stop()
	}
	return nil
}

func (s *Subscriber) Status() component.ConsumerStatus {
	return component.ConsumerStatus{
		Running:          s.running.Load(),
		SamplesProcessed: s.samplesProcessed.Load(),
		Errors:           s.errors.Load(),
	}
}

// Encoder drains PCM frames from an input ring, runs them through a
// codec.Encoder, and publishes the resulting EncodedFrames to an output
// encoded ring.
type Encoder struct {
	name string
	enc  codec.Encoder
	log  *slog.Logger

	mu  sync.Mutex
	in  *ring.Ring[pcmframe.Frame]
	out *codec.Ring
	wrk *component.Worker

	running          atomic.Bool
	samplesProcessed atomic.Uint64
	errors           atomic.Uint64
}

// NewEncoder builds an encoded-output consumer around enc.
func NewEncoder(name string, enc codec.Encoder, out *codec.Ring, log *slog.Logger) *Encoder {
	return &Encoder{name: name, enc: enc, out: out, log: log}
}

func (e *Encoder) Name() string { return e.name }

func (e *Encoder) AttachInputBuffer(r *ring.Ring[pcmframe.Frame]) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.in = r
}

func (e *Encoder) Start() error {
	e.mu.Lock()
	in := e.in
	e.mu.Unlock()
	if in == nil {
		return nil
	}

	w := component.NewWorker(context.Background())
	e.mu.Lock()
	e.wrk = w
	e.mu.Unlock()
	e.running.Store(true)
	readerID := readerIDFor(e.name)
	in.SeatReader(readerID) // deliver frames pushed from now on, not from the worker's first pop

	w.Run(func(ctx context.Context) {
		defer e.running.Store(false)
		for {
			select {
			case <-ctx.Done():
				return
			default:
			}
			frame, utcNanos, ok := in.PopForReader(readerID)
			if !ok {
				component.Sleep(ctx, pollInterval)
				continue
			}
			frames, err := e.enc.Encode(frame.Samples)
			if err != nil {
				e.errors.Add(1)
				if e.log != nil {
					e.log.Error("consumer: encode failed", "name", e.name, "error", err)
				}
				continue
			}
			for _, ef := range frames {
				e.out.Push(ef, utcNanos)
			}
			e.samplesProcessed.Add(uint64(len(frame.Samples)))
		}
	})
	return nil
}

func (e *Encoder) Stop() error {
	e.mu.Lock()
	w := e.wrk
	e.mu.Unlock()
	if w != nil {
		w.Stop()
	}
	return nil
}

func (e *Encoder) Status() component.ConsumerStatus {
	return component.ConsumerStatus{
		Running:          e.running.Load(),
		SamplesProcessed: e.samplesProcessed.Load(),
		Errors:           e.errors.Load(),
	}
}
