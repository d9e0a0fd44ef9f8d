package sigengine

import (
	"fmt"
	"sync"
)

// Registry is a name-keyed lookup of user-registered collaborators
// (strategies, exchanges, frames, risks, sizings — spec.md §4.10).
// Registration is by unique name; duplicate names are rejected.
type Registry[T any] struct {
	mu    sync.Mutex
	items map[string]T
	built map[string]any
}

// NewRegistry builds an empty registry.
func NewRegistry[T any]() *Registry[T] {
	return &Registry[T]{
		items: make(map[string]T),
		built: make(map[string]any),
	}
}

// Register adds name → item. Registering an already-used name is an error.
func (r *Registry[T]) Register(name string, item T) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.items[name]; exists {
		return fmt.Errorf("registry: %q already registered", name)
	}
	r.items[name] = item
	return nil
}

// Get returns the raw registered value for name.
func (r *Registry[T]) Get(name string) (T, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	v, ok := r.items[name]
	return v, ok
}

// Names returns every registered name.
func (r *Registry[T]) Names() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	names := make([]string, 0, len(r.items))
	for n := range r.items {
		names = append(names, n)
	}
	return names
}

// Build returns the memoized result of calling construct for name the
// first time it is requested; subsequent Build calls for the same name
// reuse the cached instance without re-invoking construct. This is how
// a Registry[Strategy] hands out one long-lived *SignalEngine per slot
// rather than rebuilding it on every lookup.
func Build[T any, U any](r *Registry[T], name string, construct func(T) (U, error)) (U, error) {
	var zero U

	r.mu.Lock()
	defer r.mu.Unlock()

	if cached, ok := r.built[name]; ok {
		return cached.(U), nil
	}

	item, ok := r.items[name]
	if !ok {
		return zero, fmt.Errorf("registry: %q not registered", name)
	}

	v, err := construct(item)
	if err != nil {
		return zero, err
	}
	r.built[name] = v
	return v, nil
}
