package agent

import (
	"fmt"
	"sync"

	"go.uber.org/zap"
)

// Registry is the seam that lets a production agent binding be swapped in
// without touching pipeline code: workers resolve an Agent by name out of a
// Registry rather than importing a concrete implementation.
type Registry struct {
	mu     sync.RWMutex
	agents map[string]Agent
	logger *zap.Logger
}

// NewRegistry creates an empty agent registry.
func NewRegistry(logger *zap.Logger) *Registry {
	return &Registry{
		agents: make(map[string]Agent),
		logger: logger.With(zap.String("component", "agent-registry")),
	}
}

// Register adds an agent to the registry under its own Name().
// Returns ErrProviderConflict if that name is already registered.
func (r *Registry) Register(a Agent) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	name := a.Name()
	if name == "" {
		return fmt.Errorf("agent name cannot be empty")
	}

	if _, exists := r.agents[name]; exists {
		return fmt.Errorf("%w: %s", ErrProviderConflict, name)
	}

	r.agents[name] = a
	r.logger.Info("registered agent", zap.String("agent", name))
	return nil
}

// Get retrieves an agent by name. Returns ErrProviderNotFound if no agent
// is registered under that name.
func (r *Registry) Get(name string) (Agent, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	a, exists := r.agents[name]
	if !exists {
		return nil, fmt.Errorf("%w: %s", ErrProviderNotFound, name)
	}
	return a, nil
}

// List returns the names of all registered agents.
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.agents))
	for name := range r.agents {
		names = append(names, name)
	}
	return names
}

// Has reports whether an agent is registered under the given name.
func (r *Registry) Has(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	_, exists := r.agents[name]
	return exists
}
