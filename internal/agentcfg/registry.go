package agentcfg

import (
	"fmt"
	"sync"
)

// Registry holds named agent profiles, seeded with the built-ins and
// extensible from configuration (internal/config Agent map).
type Registry struct {
	mu       sync.RWMutex
	profiles map[string]*Profile
}

// NewRegistry returns a Registry pre-populated with BuiltIn profiles.
func NewRegistry() *Registry {
	r := &Registry{profiles: make(map[string]*Profile)}
	for name, p := range BuiltIn() {
		r.profiles[name] = p
	}
	return r
}

// Get looks up a profile by name.
func (r *Registry) Get(name string) (*Profile, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.profiles[name]
	if !ok {
		return nil, fmt.Errorf("agentcfg: unknown profile %q", name)
	}
	return p, nil
}

// Register adds or replaces a profile, e.g. from configuration.
func (r *Registry) Register(p *Profile) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.profiles[p.Name] = p
}

// List returns all registered profile names.
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.profiles))
	for name := range r.profiles {
		names = append(names, name)
	}
	return names
}
