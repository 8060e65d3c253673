// Package registry implements the name → ring-buffer mapping that is the
// substrate on which a node's graph is assembled (spec §4.3). It is the
// generic form of the teacher's stream registry, keyed by arbitrary buffer
// name instead of an RTMP stream key, and carrying no domain fields beyond
// the referenced value.
package registry

import (
	"sync"

	"github.com/davdef/airlift-node/internal/apperrors"
)

// Registry is a concurrent name → T map. Readers are expected to outnumber
// writers (lookups happen on every flow/producer/consumer start and on
// every status query; registration happens rarely), so a sync.RWMutex with
// a double-checked-locking Register is the right fit — the same shape the
// teacher uses for its stream registry.
type Registry[T any] struct {
	mu      sync.RWMutex
	entries map[string]T
}

// New constructs an empty registry.
func New[T any]() *Registry[T] {
	return &Registry[T]{entries: make(map[string]T)}
}

// Register adds name → value. It fails with AlreadyRegisteredError if name
// already exists.
func (r *Registry[T]) Register(name string, value T) error {
	r.mu.RLock()
	if _, ok := r.entries[name]; ok {
		r.mu.RUnlock()
		return apperrors.NewAlreadyRegistered(name)
	}
	r.mu.RUnlock()

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.entries[name]; ok { // double-check under the write lock
		return apperrors.NewAlreadyRegistered(name)
	}
	r.entries[name] = value
	return nil
}

// Update replaces the value registered under name, or registers it for the
// first time if absent. Unlike Register, Update never fails on collision.
func (r *Registry[T]) Update(name string, value T) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries[name] = value
}

// Get returns the value registered under name, or BufferNotFoundError if
// none exists.
func (r *Registry[T]) Get(name string) (T, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	v, ok := r.entries[name]
	if !ok {
		var zero T
		return zero, apperrors.NewBufferNotFound(name)
	}
	return v, nil
}

// Remove deletes the entry registered under name. It is not an error to
// remove a name that was never registered.
func (r *Registry[T]) Remove(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.entries, name)
}

// List returns every registered name, in no particular order.
func (r *Registry[T]) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.entries))
	for name := range r.entries {
		names = append(names, name)
	}
	return names
}
