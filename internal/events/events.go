// Package events implements a lightweight in-process observability bus for
// lifecycle and data-plane notifications (producer/flow/consumer start and
// stop, buffer registration, sequence gaps). It exists purely so a caller
// embedding the node can observe what is happening; nothing in the data
// plane depends on a subscriber being present or fast.
//
// This is not the cross-process event distribution mechanism named
// out of scope; it never leaves the process. Subscribers run synchronously
// on the publisher's goroutine, so a slow subscriber delays that publisher.
package events

import (
	"log/slog"
	"sync"
)

// Kind identifies the category of an observability event.
type Kind string

const (
	KindNodeStarted     Kind = "node_started"
	KindNodeStopped     Kind = "node_stopped"
	KindFlowStarted     Kind = "flow_started"
	KindFlowStopped     Kind = "flow_stopped"
	KindProducerStarted Kind = "producer_started"
	KindProducerStopped Kind = "producer_stopped"
	KindConsumerStarted Kind = "consumer_started"
	KindConsumerStopped Kind = "consumer_stopped"
	KindBufferRegistered Kind = "buffer_registered"
	KindBufferRemoved    Kind = "buffer_removed"
	KindSequenceGap      Kind = "sequence_gap"
	KindBackendError     Kind = "backend_error"
)

// Event is a single observability notification. Data carries kind-specific
// context (e.g. "name", "reader_id", "missed") and is never mutated once
// published.
type Event struct {
	Kind Kind
	Data map[string]any
}

// New builds an Event with an empty Data map ready for With-chaining.
func New(kind Kind) Event {
	return Event{Kind: kind, Data: make(map[string]any)}
}

// With returns e with key set to value, for fluent construction at the
// call site (e.g. events.New(events.KindSequenceGap).With("reader_id", id)).
func (e Event) With(key string, value any) Event {
	e.Data[key] = value
	return e
}

// Subscriber receives published events. Implementations must not block;
// the bus calls them synchronously from the publisher's own goroutine
// for ordering, so a slow subscriber slows its own publisher only.
type Subscriber func(Event)

// Bus fans a published Event out to every subscriber. The zero value is
// ready to use.
type Bus struct {
	mu   sync.RWMutex
	subs []Subscriber
	log  *slog.Logger
}

// NewBus constructs a Bus. A nil logger disables diagnostic logging of
// subscriber panics.
func NewBus(log *slog.Logger) *Bus {
	return &Bus{log: log}
}

// Subscribe registers fn to receive every future Publish call.
func (b *Bus) Subscribe(fn Subscriber) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subs = append(b.subs, fn)
}

// Publish delivers event to every current subscriber in registration order.
// A subscriber that panics is recovered and logged so one bad observer
// cannot take down the publishing component.
func (b *Bus) Publish(event Event) {
	b.mu.RLock()
	subs := make([]Subscriber, len(b.subs))
	copy(subs, b.subs)
	b.mu.RUnlock()

	for _, fn := range subs {
		b.deliver(fn, event)
	}
}

func (b *Bus) deliver(fn Subscriber, event Event) {
	defer func() {
		if r := recover(); r != nil && b.log != nil {
			b.log.Error("events: subscriber panicked", "kind", event.Kind, "recover", r)
		}
	}()
	fn(event)
}
