package executor

import (
	"fmt"
	"sort"
	"sync"
)

// Registry holds named engine factories and resolves the one to use for the
// configured engine kind.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]EngineFactory
}

// NewRegistry creates an empty engine registry.
func NewRegistry() *Registry {
	return &Registry{
		factories: make(map[string]EngineFactory),
	}
}

// Register adds an engine factory under the given name.
func (r *Registry) Register(name string, f EngineFactory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[name] = f
}

// Resolve returns the factory registered under name.
func (r *Registry) Resolve(name string) (EngineFactory, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	f, ok := r.factories[name]
	if !ok {
		return nil, fmt.Errorf("engine %q is not registered", name)
	}
	return f, nil
}

// Names returns the registered engine names, sorted for a stable API response.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.factories))
	for name := range r.factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
