package platform

import (
	"strings"
	"sync"
)

// Registry holds the set of adapters and resolves one by platform id or
// by the hostname a user is browsing. Adding a platform means adding one
// adapter here; the engine never changes.
type Registry struct {
	mu       sync.RWMutex
	adapters map[string]Adapter
	order    []string
}

// NewRegistry creates a registry over the given adapters, preserving
// registration order for listings.
func NewRegistry(adapters ...Adapter) *Registry {
	r := &Registry{adapters: make(map[string]Adapter)}
	for _, a := range adapters {
		r.Register(a)
	}
	return r
}

// Register adds an adapter, replacing any previous one with the same id.
func (r *Registry) Register(a Adapter) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.adapters[a.ID()]; !exists {
		r.order = append(r.order, a.ID())
	}
	r.adapters[a.ID()] = a
}

// Get resolves an adapter by platform id.
func (r *Registry) Get(id string) (Adapter, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.adapters[id]
	return a, ok
}

// ByHostname resolves an adapter by the hostname of the site the user is
// on. Subdomains match ("chat.openai.com" resolves like "openai.com").
func (r *Registry) ByHostname(host string) (Adapter, bool) {
	host = strings.ToLower(strings.TrimSpace(host))
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, id := range r.order {
		a := r.adapters[id]
		for _, h := range a.Hostnames() {
			if host == h || strings.HasSuffix(host, "."+h) {
				return a, true
			}
		}
	}
	return nil, false
}

// All returns every adapter in registration order.
func (r *Registry) All() []Adapter {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Adapter, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.adapters[id])
	}
	return out
}
