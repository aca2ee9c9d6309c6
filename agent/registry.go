package agent

import (
	"fmt"
	"sort"
	"sync"

	"go.uber.org/zap"

	"github.com/parleylabs/parley/types"
)

// Registry holds the registered agents by name. Registration order is not
// preserved; List returns agents sorted by name.
type Registry struct {
	mu     sync.RWMutex
	agents map[string]Agent
	logger *zap.Logger
}

// NewRegistry creates an empty registry.
func NewRegistry(logger *zap.Logger) *Registry {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Registry{
		agents: make(map[string]Agent),
		logger: logger.With(zap.String("component", "agent_registry")),
	}
}

// Register adds or replaces an agent under its own name.
func (r *Registry) Register(a Agent) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.agents[a.Name()]; exists {
		r.logger.Warn("replacing registered agent", zap.String("agent", a.Name()))
	}
	r.agents[a.Name()] = a

	r.logger.Info("agent registered",
		zap.String("agent", a.Name()),
		zap.String("type", a.Type()),
	)
}

// Resolve returns the agent registered under name.
func (r *Registry) Resolve(name string) (Agent, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	a, ok := r.agents[name]
	if !ok {
		return nil, types.NewError(types.ErrAgentNotFound,
			fmt.Sprintf("agent %q is not registered", name)).WithAgent(name)
	}
	return a, nil
}

// List returns all registered agents sorted by name.
func (r *Registry) List() []Agent {
	r.mu.RLock()
	defer r.mu.RUnlock()

	agents := make([]Agent, 0, len(r.agents))
	for _, a := range r.agents {
		agents = append(agents, a)
	}
	sort.Slice(agents, func(i, j int) bool { return agents[i].Name() < agents[j].Name() })
	return agents
}

// Names returns the registered agent names sorted alphabetically.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.agents))
	for name := range r.agents {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Len returns the number of registered agents.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.agents)
}
