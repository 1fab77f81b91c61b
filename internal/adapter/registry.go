package adapter

import (
	"fmt"
	"sort"
	"sync"

	"github.com/pattonant/autopen2.0/internal/types"
)

// Registry maps pipeline phases to the adapters registered for them.
// Registration is typically done once at startup; lookups happen per phase.
type Registry struct {
	mu      sync.RWMutex
	byName  map[string]ToolAdapter
	byPhase map[types.Phase][]string
}

// NewRegistry creates an empty adapter registry.
func NewRegistry() *Registry {
	return &Registry{
		byName:  make(map[string]ToolAdapter),
		byPhase: make(map[types.Phase][]string),
	}
}

// Register adds an adapter under its name for every phase it declares.
// Registering a duplicate name is an error.
func (r *Registry) Register(a ToolAdapter) error {
	name := a.Name()
	if name == "" {
		return fmt.Errorf("adapter name cannot be empty")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.byName[name]; exists {
		return fmt.Errorf("adapter %q already registered", name)
	}
	r.byName[name] = a
	for _, phase := range a.Phases() {
		r.byPhase[phase] = append(r.byPhase[phase], name)
	}
	return nil
}

// Get returns the adapter registered under name.
func (r *Registry) Get(name string) (ToolAdapter, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.byName[name]
	return a, ok
}

// ForPhase returns the adapters registered for a phase, ordered by name for
// deterministic dispatch.
func (r *Registry) ForPhase(phase types.Phase) []ToolAdapter {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := append([]string(nil), r.byPhase[phase]...)
	sort.Strings(names)

	out := make([]ToolAdapter, 0, len(names))
	for _, name := range names {
		out = append(out, r.byName[name])
	}
	return out
}

// Names returns every registered adapter name, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.byName))
	for name := range r.byName {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
