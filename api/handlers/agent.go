package handlers

import (
	"net/http"

	"go.uber.org/zap"

	"github.com/parleylabs/parley/agent"
	"github.com/parleylabs/parley/api"
)

// AgentHandler serves GET /api/v1/agents.
type AgentHandler struct {
	registry *agent.Registry
	logger   *zap.Logger
}

// NewAgentHandler wires the agent listing endpoint.
func NewAgentHandler(registry *agent.Registry, logger *zap.Logger) *AgentHandler {
	return &AgentHandler{
		registry: registry,
		logger:   logger.With(zap.String("component", "agent_handler")),
	}
}

// HandleList returns the registered agents sorted by name.
func (h *AgentHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	agents := h.registry.List()
	infos := make([]api.AgentInfo, 0, len(agents))
	for _, ag := range agents {
		infos = append(infos, api.AgentInfo{Name: ag.Name(), Type: ag.Type()})
	}

	WriteSuccess(w, &api.AgentListResponse{
		Agents: infos,
		Count:  len(infos),
	})
}
