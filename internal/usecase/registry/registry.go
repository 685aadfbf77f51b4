// Package registry holds the set of agents currently available to routing.
package registry

import (
	"io"
	"log/slog"
	"sync"

	"switchboard/internal/domain"
)

// discardLogger returns a no-op logger for registries created without one.
func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// Registry is a goroutine-safe collection of agents keyed by name.
// Registration order is preserved so that "first available agent" fallback
// routing is deterministic.
type Registry struct {
	mu     sync.RWMutex
	agents map[string]domain.Agent
	order  []string
	logger *slog.Logger
}

// New creates an empty registry.
func New(logger *slog.Logger) *Registry {
	if logger == nil {
		logger = discardLogger()
	}
	return &Registry{
		agents: make(map[string]domain.Agent),
		logger: logger,
	}
}

// Register adds an agent. Returns ErrInvalidInput for a nil or unnamed agent
// and ErrDuplicate if the name is already taken.
func (r *Registry) Register(agent domain.Agent) error {
	if agent == nil {
		return domain.NewSubSystemError("agent", "Registry.Register", domain.ErrInvalidInput, "nil agent")
	}
	name := agent.Name()
	if name == "" {
		return domain.NewSubSystemError("agent", "Registry.Register", domain.ErrInvalidInput, "empty agent name")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.agents[name]; exists {
		return domain.NewSubSystemError("agent", "Registry.Register", domain.ErrDuplicate, name)
	}
	r.agents[name] = agent
	r.order = append(r.order, name)
	r.logger.Info("agent registered", "agent", name, "kind", string(agent.Kind()))
	return nil
}

// Get returns the agent with the given name, or ErrNotFound.
func (r *Registry) Get(name string) (domain.Agent, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	agent, ok := r.agents[name]
	if !ok {
		return nil, domain.NewSubSystemError("agent", "Registry.Get", domain.ErrNotFound, name)
	}
	return agent, nil
}

// Remove unregisters an agent. Returns ErrNotFound if not present.
func (r *Registry) Remove(name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.agents[name]; !ok {
		return domain.NewSubSystemError("agent", "Registry.Remove", domain.ErrNotFound, name)
	}
	delete(r.agents, name)
	for i, n := range r.order {
		if n == name {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
	r.logger.Info("agent removed", "agent", name)
	return nil
}

// Snapshot returns the current agents in registration order. The returned
// slice is a copy; concurrent mutation does not affect it.
func (r *Registry) Snapshot() []domain.Agent {
	r.mu.RLock()
	defer r.mu.RUnlock()

	agents := make([]domain.Agent, 0, len(r.order))
	for _, name := range r.order {
		agents = append(agents, r.agents[name])
	}
	return agents
}

// FindByKind returns the first registered agent of the given kind.
func (r *Registry) FindByKind(kind domain.AgentKind) (domain.Agent, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, name := range r.order {
		if a := r.agents[name]; a.Kind() == kind {
			return a, true
		}
	}
	return nil, false
}

// Len returns the number of registered agents.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.agents)
}
