// File: agent/registry.go
// Author: momentics <momentics@gmail.com>
//
// Dispatcher registry mapping agent ids to delegates.

package agent

import (
	"fmt"
	"sync"

	"github.com/momentics/agentwire/api"
)

// Registry is a concurrency-safe api.Dispatcher. Unregistering an agent
// does not unbind sessions already routed to it; they keep their delegate
// until a frame for another target arrives.
type Registry struct {
	mu     sync.RWMutex
	agents map[uint32]api.Delegate
}

var _ api.Dispatcher = (*Registry)(nil)

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{agents: make(map[uint32]api.Delegate)}
}

// Register adds d under d.AgentID().
func (r *Registry) Register(d api.Delegate) error {
	id := d.AgentID()
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.agents[id]; ok {
		return fmt.Errorf("agent %d: %w", id, ErrAgentExists)
	}
	r.agents[id] = d
	return nil
}

// Unregister removes id and reports whether it was registered.
func (r *Registry) Unregister(id uint32) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.agents[id]; !ok {
		return false
	}
	delete(r.agents, id)
	return true
}

// Search implements api.Dispatcher.
func (r *Registry) Search(id uint32) (api.Delegate, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	d, ok := r.agents[id]
	return d, ok
}

// Len returns the number of registered agents.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.agents)
}
