package adapter

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
)

// PriorityOrder is the fixed preference order used when a package does not
// pin a backend. Selection walks this list and picks the first registered
// adapter whose toolchain is available; backends outside this list (such
// as the package-script adapter) are only used when pinned explicitly.
var PriorityOrder = []string{"bun", "esbuild", "tsc", "rollup"}

// Sentinel errors for registry lookups. Both indicate a configuration or
// environment problem, not a build failure.
var (
	// ErrNotRegistered indicates a pinned backend name has no adapter.
	ErrNotRegistered = errors.New("adapter not registered")

	// ErrNoneAvailable indicates no prioritized backend is usable on
	// this host.
	ErrNoneAvailable = errors.New("no build adapter available")
)

// Registry holds the known build adapters.
//
// The zero value is not usable; create one with NewRegistry. All methods
// are safe for concurrent use.
type Registry struct {
	mu       sync.RWMutex
	adapters map[string]Adapter
}

// NewRegistry creates an empty adapter registry.
func NewRegistry() *Registry {
	return &Registry{adapters: make(map[string]Adapter)}
}

// Register adds an adapter under its own name. Registering a name twice
// replaces the earlier adapter.
func (r *Registry) Register(a Adapter) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.adapters[a.Name()] = a
}

// Get returns the adapter registered under name.
func (r *Registry) Get(name string) (Adapter, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	a, ok := r.adapters[name]
	if !ok {
		return nil, fmt.Errorf("%q: %w", name, ErrNotRegistered)
	}
	return a, nil
}

// Names returns the registered adapter names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.adapters))
	for name := range r.adapters {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// GetBest returns the first adapter in PriorityOrder that is registered
// and reports its toolchain available. Availability is probed fresh on
// every call, so the same registry state and host state always yield the
// same selection.
func (r *Registry) GetBest(ctx context.Context) (Adapter, error) {
	for _, name := range PriorityOrder {
		r.mu.RLock()
		a, ok := r.adapters[name]
		r.mu.RUnlock()
		if !ok {
			continue
		}
		if a.IsAvailable(ctx) {
			return a, nil
		}
	}
	return nil, ErrNoneAvailable
}
