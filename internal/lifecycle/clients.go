package lifecycle

import "sync"

// Registry tracks open clients and which deployment version controls each
// of them. Claiming repoints every client at the current version without
// waiting for it to reconnect.
type Registry struct {
	mu      sync.RWMutex
	clients map[string]string // client id → controlling version
}

// NewRegistry creates an empty client registry.
func NewRegistry() *Registry {
	return &Registry{clients: make(map[string]string)}
}

// Register records a client under the given version. Re-registering an
// already claimed client keeps its current controller.
func (r *Registry) Register(id, version string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.clients[id]; !ok {
		r.clients[id] = version
	}
}

// Version returns the version controlling a client, if registered.
func (r *Registry) Version(id string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	v, ok := r.clients[id]
	return v, ok
}

// Claim takes control of every registered client for version.
func (r *Registry) Claim(version string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	for id := range r.clients {
		r.clients[id] = version
	}
	return len(r.clients)
}

// Remove forgets a client.
func (r *Registry) Remove(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.clients, id)
}

// Len returns the number of registered clients.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.clients)
}
