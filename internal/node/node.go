// Package node implements the top-level lifecycle manager that owns a
// node's producers, flows, and buffer registry (spec §4.9). Grounded in
// the teacher's server.Server: New → Start → startAll-shaped helper →
// Stop in reverse best-effort order, Config.applyDefaults, a
// ConnectionCount-shaped Status.
package node

import (
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/davdef/airlift-node/internal/apperrors"
	"github.com/davdef/airlift-node/internal/component"
	"github.com/davdef/airlift-node/internal/events"
	"github.com/davdef/airlift-node/internal/flow"
	"github.com/davdef/airlift-node/internal/mixer"
	"github.com/davdef/airlift-node/internal/pcmframe"
	"github.com/davdef/airlift-node/internal/registry"
	"github.com/davdef/airlift-node/internal/ring"
)

// defaultRingCapacity is the capacity a producer's registered ring gets
// when add_producer allocates it (spec §4.9).
const defaultRingCapacity = 1000

// Config configures a node at construction time.
type Config struct {
	// RingCapacity overrides the default capacity given to each producer's
	// allocated ring. Zero uses defaultRingCapacity.
	RingCapacity int
}

func (c *Config) applyDefaults() {
	if c.RingCapacity == 0 {
		c.RingCapacity = defaultRingCapacity
	}
}

// producerEntry pairs a producer with the registry name it was registered
// under, for status reporting and reverse-order shutdown.
type producerEntry struct {
	name string
	p    component.Producer
}

// Status is the cheap, lock-protected snapshot returned by Status (spec
// §4.9: "cheap snapshot of producer and flow status, uptime, counts").
type Status struct {
	ID          string
	Running     bool
	Uptime      time.Duration
	Producers   []component.ProducerStatus
	Flows       []flow.Status
}

// Node owns producers, flows, a shared buffer registry, and a running
// flag.
type Node struct {
	ID  uuid.UUID
	cfg Config
	log *slog.Logger
	bus *events.Bus

	reg *registry.Registry[*ring.Ring[pcmframe.Frame]]

	mu        sync.Mutex
	producers []producerEntry
	flows     []*flow.Flow
	running   bool
	startedAt time.Time
}

// New constructs an idle node with a fresh registry and correlation id.
func New(cfg Config, log *slog.Logger, bus *events.Bus) *Node {
	cfg.applyDefaults()
	return &Node{
		ID:  uuid.New(),
		cfg: cfg,
		log: log,
		bus: bus,
		reg: registry.New[*ring.Ring[pcmframe.Frame]](),
	}
}

// Registry exposes the node's buffer registry, e.g. for a mixer or flow
// input resolution performed outside this package.
func (n *Node) Registry() *registry.Registry[*ring.Ring[pcmframe.Frame]] { return n.reg }

// AddProducer allocates a capacity-configured ring, attaches it to p,
// registers it under "producer:<name>", and stores p. Fails if the
// registry entry already exists (spec §4.9).
func (n *Node) AddProducer(name string, p component.Producer) error {
	type attacher interface {
		AttachRingBuffer(*ring.Ring[pcmframe.Frame])
	}

	key := "producer:" + name
	r := ring.New[pcmframe.Frame](n.cfg.RingCapacity, n.log)
	if err := n.reg.Register(key, r); err != nil {
		return err
	}
	if a, ok := p.(attacher); ok {
		a.AttachRingBuffer(r)
	}

	n.mu.Lock()
	defer n.mu.Unlock()
	n.producers = append(n.producers, producerEntry{name: key, p: p})
	return nil
}

// AddFlow appends f to the node's flow list.
func (n *Node) AddFlow(f *flow.Flow) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.flows = append(n.flows, f)
}

// ConnectFlowInput resolves bufferName in the registry and wires it as an
// input of the flow at flowIndex (spec §4.9 connect_flow_input).
func (n *Node) ConnectFlowInput(flowIndex int, bufferName string) error {
	n.mu.Lock()
	if flowIndex < 0 || flowIndex >= len(n.flows) {
		n.mu.Unlock()
		return apperrors.NewInvalidIndex("node.flow_index", flowIndex)
	}
	f := n.flows[flowIndex]
	n.mu.Unlock()
	return f.AddInputFromRegistry(n.reg, bufferName)
}

// DisconnectFlowInput removes bufferName from the input set of the flow at
// flowIndex (spec §4.9 disconnect_flow_input). Returns a BufferNotFound-class
// error if bufferName was not connected.
func (n *Node) DisconnectFlowInput(flowIndex int, bufferName string) error {
	n.mu.Lock()
	if flowIndex < 0 || flowIndex >= len(n.flows) {
		n.mu.Unlock()
		return apperrors.NewInvalidIndex("node.flow_index", flowIndex)
	}
	f := n.flows[flowIndex]
	n.mu.Unlock()
	return f.RemoveInputFromRegistry(bufferName)
}

// CreateAndAddMixer constructs a mixer from cfg, gives it the node's
// registry handle, attempts connect_from_registry when cfg.AutoConnect is
// set (warning on partial failure is handled inside the mixer), and
// appends it as a processor on the flow at flowIndex (spec §4.9
// create_and_add_mixer). With AutoConnect unset the returned mixer has no
// connections until the caller runs ConnectFromRegistry.
func (n *Node) CreateAndAddMixer(flowIndex int, name string, cfg mixer.Config) (*mixer.Mixer, error) {
	n.mu.Lock()
	if flowIndex < 0 || flowIndex >= len(n.flows) {
		n.mu.Unlock()
		return nil, apperrors.NewInvalidIndex("node.flow_index", flowIndex)
	}
	f := n.flows[flowIndex]
	n.mu.Unlock()

	m := mixer.New(name, cfg, n.log)
	m.SetRegistry(n.reg)
	if cfg.AutoConnect {
		m.ConnectFromRegistry()
	}
	f.AddProcessor(m, true)
	return m, nil
}

// Start starts all producers then all flows. Per-unit errors are logged
// but never abort the sequence (spec §4.9).
func (n *Node) Start() error {
	n.mu.Lock()
	producers := append([]producerEntry(nil), n.producers...)
	flows := append([]*flow.Flow(nil), n.flows...)
	n.running = true
	n.startedAt = time.Now()
	n.mu.Unlock()

	for _, pe := range producers {
		if err := pe.p.Start(); err != nil {
			n.logError("producer start failed", "producer", pe.name, "error", err)
			continue
		}
		n.publish(events.KindProducerStarted, "producer", pe.name)
	}
	for i, f := range flows {
		if err := f.Start(); err != nil {
			n.logError("flow start failed", "flow", i, "error", err)
			continue
		}
		n.publish(events.KindFlowStarted, "flow", f.Name())
	}
	n.publish(events.KindNodeStarted, "node", n.ID.String())
	return nil
}

// Stop stops flows then producers, in the reverse of start order.
// Best-effort: every unit gets its stop call even if an earlier one
// errored (spec §4.9).
func (n *Node) Stop() error {
	n.mu.Lock()
	producers := append([]producerEntry(nil), n.producers...)
	flows := append([]*flow.Flow(nil), n.flows...)
	n.running = false
	n.mu.Unlock()

	for i := len(flows) - 1; i >= 0; i-- {
		if err := flows[i].Stop(); err != nil {
			n.logError("flow stop failed", "flow", i, "error", err)
		}
		n.publish(events.KindFlowStopped, "flow", flows[i].Name())
	}
	for i := len(producers) - 1; i >= 0; i-- {
		if err := producers[i].p.Stop(); err != nil {
			n.logError("producer stop failed", "producer", producers[i].name, "error", err)
		}
		n.publish(events.KindProducerStopped, "producer", producers[i].name)
	}
	n.publish(events.KindNodeStopped, "node", n.ID.String())
	return nil
}

// Status reports a cheap snapshot of every owned unit.
func (n *Node) Status() Status {
	n.mu.Lock()
	producers := append([]producerEntry(nil), n.producers...)
	flows := append([]*flow.Flow(nil), n.flows...)
	running := n.running
	startedAt := n.startedAt
	n.mu.Unlock()

	st := Status{ID: n.ID.String(), Running: running}
	if running {
		st.Uptime = time.Since(startedAt)
	}
	for _, pe := range producers {
		st.Producers = append(st.Producers, pe.p.Status())
	}
	for _, f := range flows {
		st.Flows = append(st.Flows, f.Status())
	}
	return st
}

func (n *Node) logError(msg string, args ...any) {
	if n.log != nil {
		n.log.Error("node: "+msg, args...)
	}
}

func (n *Node) publish(kind events.Kind, key string, value string) {
	if n.bus != nil {
		n.bus.Publish(events.New(kind).With(key, value))
	}
}
