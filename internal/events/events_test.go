package events

import (
	"sync"
	"testing"
)

func TestBusPublishDeliversToAllSubscribers(t *testing.T) {
	t.Parallel()

	bus := NewBus(nil)
	var mu sync.Mutex
	var got []Kind

	bus.Subscribe(func(e Event) {
		mu.Lock()
		defer mu.Unlock()
		got = append(got, e.Kind)
	})
	bus.Subscribe(func(e Event) {
		mu.Lock()
		defer mu.Unlock()
		got = append(got, e.Kind)
	})

	bus.Publish(New(KindFlowStarted).With("flow", "mix"))

	mu.Lock()
	defer mu.Unlock()
	if len(got) != 2 {
		t.Fatalf("expected 2 deliveries, got %d", len(got))
	}
	for _, k := range got {
		if k != KindFlowStarted {
			t.Fatalf("unexpected kind: %v", k)
		}
	}
}

func TestBusPublishSurvivesSubscriberPanic(t *testing.T) {
	t.Parallel()

	bus := NewBus(nil)
	called := false

	bus.Subscribe(func(Event) { panic("boom") })
	bus.Subscribe(func(Event) { called = true })

	bus.Publish(New(KindSequenceGap))

	if !called {
		t.Fatalf("expected second subscriber to still be called after first panicked")
	}
}

func TestEventWithAddsData(t *testing.T) {
	t.Parallel()

	e := New(KindBufferRegistered).With("name", "mix-out").With("capacity", 1000)
	if e.Data["name"] != "mix-out" || e.Data["capacity"] != 1000 {
		t.Fatalf("unexpected data: %+v", e.Data)
	}
}
