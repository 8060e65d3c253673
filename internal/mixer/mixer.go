// Package mixer implements the Mixer processor (spec §4.7): it combines
// several named, registry-resolved input streams into one output stream,
// bypassing the flow's merged input entirely. Grounded in the corpus's
// flowpbx G.711 mixer for the gain/clamp/mix-cycle shape, and in the
// teacher's relay.DestinationManager for registry-style resolution of
// multiple named sources that tolerates partial failure.
package mixer

import (
	"log/slog"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/davdef/airlift-node/internal/component"
	"github.com/davdef/airlift-node/internal/pcmframe"
	"github.com/davdef/airlift-node/internal/registry"
	"github.com/davdef/airlift-node/internal/ring"
)

// maxBatch bounds how many mixed frames a single Process call produces, so
// the flow worker's iteration never stalls behind a mixer with a deep
// backlog on one of its sources.
const maxBatch = 8

// InputConfig describes one named, gain-scaled source the mixer reads.
type InputConfig struct {
	// Name is the mixer-local logical name, used in log lines. The mixer's
	// per-source reader id is derived from Source, not Name.
	Name string
	// Source is the registry key the mixer resolves Name against.
	Source string
	Gain    float32
	Enabled *bool // nil means enabled
}

func (c InputConfig) enabled() bool { return c.Enabled == nil || *c.Enabled }

// Config is the mixer's live, wholesale-replaceable configuration.
type Config struct {
	Inputs            []InputConfig
	OutputSampleRate  uint32
	OutputChannels    uint8
	MasterGain        float32
	AutoConnect       bool
}

// applyDefaults fills the zero-valued optional fields, matching the
// teacher's Config.applyDefaults pattern (server.Config.applyDefaults).
func (c *Config) applyDefaults() {
	if c.OutputSampleRate == 0 {
		c.OutputSampleRate = pcmframe.DefaultSampleRate
	}
	if c.OutputChannels == 0 {
		c.OutputChannels = pcmframe.DefaultChannels
	}
	if c.MasterGain == 0 {
		c.MasterGain = 1.0
	}
}

// connection is a resolved input: the ring it reads from plus the input
// config (source and gain) it was resolved from; the reader id is derived
// from the source with readerIDFor.
type connection struct {
	cfg  InputConfig
	ring *ring.Ring[pcmframe.Frame]
}

// Status reports the mixer's processor status plus how many of its
// configured inputs are currently resolved.
type Status struct {
	component.ProcessorStatus
	ConnectedInputs int
}

// Mixer implements component.Processor, ignoring its Process input
// argument and reading directly from per-source buffers resolved through
// its registry handle (spec §4.7).
type Mixer struct {
	name string
	log  *slog.Logger

	mu          sync.Mutex
	cfg         Config
	reg         *registry.Registry[*ring.Ring[pcmframe.Frame]]
	connections []connection

	framesProcessed atomic.Uint64
	errors          atomic.Uint64
}

// New constructs a mixer with the given configuration. SetRegistry must be
// called, followed by ConnectFromRegistry, before Process will do anything.
func New(name string, cfg Config, log *slog.Logger) *Mixer {
	cfg.applyDefaults()
	return &Mixer{name: name, cfg: cfg, log: log}
}

func (m *Mixer) Name() string { return m.name }

// SetRegistry gives the mixer its registry handle for source resolution
// (spec §4.9 create_and_add_mixer: "gives it the registry handle").
func (m *Mixer) SetRegistry(reg *registry.Registry[*ring.Ring[pcmframe.Frame]]) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.reg = reg
}

// readerIDFor derives this mixer's reader identity over a given source, so
// distinct mixers reading the same registry entry do not steal frames from
// each other (spec §4.7).
func (m *Mixer) readerIDFor(source string) string {
	return "mixer:" + m.name + ":" + source
}

// ConnectFromRegistry resolves every enabled input against the registry.
// Missing sources are logged and skipped; the mixer proceeds with whatever
// it could resolve (spec §4.7: "Missing sources are logged; the mixer
// proceeds with the sources it could resolve").
func (m *Mixer) ConnectFromRegistry() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.connectFromRegistryLocked()
}

func (m *Mixer) connectFromRegistryLocked() {
	m.connections = m.connections[:0]
	if m.reg == nil {
		return
	}
	for _, in := range m.cfg.Inputs {
		if !in.enabled() {
			continue
		}
		r, err := m.reg.Get(in.Source)
		if err != nil {
			if m.log != nil {
				m.log.Warn("mixer: input source not found in registry", "mixer", m.name, "input", in.Name, "source", in.Source)
			}
			continue
		}
		// Seat this source's reader at its current head the moment it is
		// wired, not on the first Process call, so frames pushed between
		// now and the first mix cycle are delivered rather than skipped
		// (mirrors the original's subscribe-at-wiring semantics).
		r.SeatReader(m.readerIDFor(in.Source))
		m.connections = append(m.connections, connection{cfg: in, ring: r})
	}
}

// UpdateConfig replaces the mixer's configuration wholesale. If the new
// configuration's AutoConnect is true, prior connections are cleared and
// re-resolved from the registry; otherwise prior connections are cleared
// and must be re-established with a ConnectFromRegistry call (spec §4.7:
// "Live reconfiguration").
func (m *Mixer) UpdateConfig(cfg Config) {
	cfg.applyDefaults()
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cfg = cfg
	if cfg.AutoConnect {
		m.connectFromRegistryLocked()
	} else {
		m.connections = nil
	}
}

// Process ignores its input argument entirely (spec §4.6: "Implementations
// may use the Mixer pattern which ignores the input argument") and mixes
// from its resolved per-source connections into output.
func (m *Mixer) Process(_ *ring.Ring[pcmframe.Frame], output *ring.Ring[pcmframe.Frame]) error {
	m.mu.Lock()
	connections := append([]connection(nil), m.connections...)
	cfg := m.cfg
	m.mu.Unlock()

	if len(connections) == 0 || output == nil {
		return nil
	}

	maxAvailable := 0
	for _, c := range connections {
		if a := c.ring.AvailableForReader(m.readerIDFor(c.cfg.Source)); a > maxAvailable {
			maxAvailable = a
		}
	}
	batch := maxAvailable
	if batch > maxBatch {
		batch = maxBatch
	}

	mixedLen := int(cfg.OutputSampleRate/10) * int(cfg.OutputChannels)
	for i := 0; i < batch; i++ {
		mixed := make([]int16, mixedLen)
		contributed := false

		for _, c := range connections {
			frame, _, ok := c.ring.PopForReader(m.readerIDFor(c.cfg.Source))
			if !ok {
				continue
			}
			contributed = true
			n := len(frame.Samples)
			if n > mixedLen {
				n = mixedLen
			}
			for s := 0; s < n; s++ {
				sum := float64(mixed[s]) + float64(frame.Samples[s])*float64(c.cfg.Gain)
				mixed[s] = clampI16(sum)
			}
		}

		if !contributed {
			break // spec §4.7: abort the batch rather than push a silent frame
		}

		if cfg.MasterGain != 1.0 {
			for s := range mixed {
				mixed[s] = clampI16(float64(mixed[s]) * float64(cfg.MasterGain))
			}
		}

		output.Push(pcmframe.Frame{
			UTCNanos:   uint64(time.Now().UnixNano()),
			Samples:    mixed,
			SampleRate: cfg.OutputSampleRate,
			Channels:   cfg.OutputChannels,
		}, uint64(time.Now().UnixNano()))
		m.framesProcessed.Add(1)
	}

	return nil
}

// Status reports the processor status (frames mixed, errors); the
// connected-input count is reported by ExtendedStatus.
func (m *Mixer) Status() component.ProcessorStatus {
	return component.ProcessorStatus{
		FramesProcessed: m.framesProcessed.Load(),
		Errors:          m.errors.Load(),
	}
}

// ExtendedStatus reports Status plus how many configured inputs are
// currently resolved, for operator-facing node status snapshots.
func (m *Mixer) ExtendedStatus() Status {
	m.mu.Lock()
	n := len(m.connections)
	m.mu.Unlock()
	return Status{ProcessorStatus: m.Status(), ConnectedInputs: n}
}

// clampI16 clamps a float64 sum to the inclusive i16 range (spec §4.7:
// "clamp every intermediate sum... after each add").
func clampI16(v float64) int16 {
	if v > math.MaxInt16 {
		return math.MaxInt16
	}
	if v < math.MinInt16 {
		return math.MinInt16
	}
	return int16(v)
}
