package handlers

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/parleylabs/parley/agent"
	"github.com/parleylabs/parley/api"
	"github.com/parleylabs/parley/format"
	"github.com/parleylabs/parley/groupchat"
	"github.com/parleylabs/parley/session"
	"github.com/parleylabs/parley/types"
)

// singleAgentTimeout caps a direct (non-orchestrated) agent call.
const singleAgentTimeout = time.Minute

// ChatHandler serves POST /api/v1/chat. One agent means a direct call;
// more than one means an orchestrated group chat.
type ChatHandler struct {
	registry  *agent.Registry
	store     session.Store
	orch      *groupchat.Orchestrator
	formatter *format.Formatter
	logger    *zap.Logger
}

// NewChatHandler wires the chat endpoint.
func NewChatHandler(registry *agent.Registry, store session.Store, orch *groupchat.Orchestrator, formatter *format.Formatter, logger *zap.Logger) *ChatHandler {
	return &ChatHandler{
		registry:  registry,
		store:     store,
		orch:      orch,
		formatter: formatter,
		logger:    logger.With(zap.String("component", "chat_handler")),
	}
}

// HandleChat dispatches a chat request to one agent or a group chat.
func (h *ChatHandler) HandleChat(w http.ResponseWriter, r *http.Request) {
	var req api.ChatRequest
	if err := DecodeJSONBody(w, r, &req, h.logger); err != nil {
		return
	}

	if strings.TrimSpace(req.Message) == "" {
		WriteError(w, types.NewError(types.ErrInvalidRequest, "message is required"), h.logger)
		return
	}

	agents := req.Agents
	if len(agents) == 0 {
		names := h.registry.Names()
		if len(names) == 0 {
			WriteError(w, types.NewError(types.ErrUnavailable, "no agents are registered"), h.logger)
			return
		}
		agents = names[:1]
	}

	if len(agents) > 1 {
		h.handleGroupChat(w, r, &req, agents)
		return
	}
	h.handleSingleAgent(w, r, &req, agents[0])
}

func (h *ChatHandler) handleGroupChat(w http.ResponseWriter, r *http.Request, req *api.ChatRequest, agents []string) {
	maxTurns := req.MaxTurns
	if maxTurns <= 0 {
		// Larger rosters get fewer rounds to stay inside the session deadline.
		if len(agents) > 3 {
			maxTurns = 2
		} else {
			maxTurns = 3
		}
	}

	orch := h.orch
	if req.Mode != "" {
		orch = orch.WithMode(groupchat.Mode(req.Mode))
	}

	result, err := orch.Run(r.Context(), &types.TurnRequest{
		Message:    req.Message,
		AgentNames: agents,
		SessionID:  req.SessionID,
		MaxTurns:   maxTurns,
	})
	if err != nil {
		WriteAnyError(w, err, h.logger)
		return
	}

	formatted := h.formatter.Format(result, req.Message)

	var replies []api.AgentReply
	for _, msg := range result.Messages {
		if msg.IsUser() || msg.IsTerminated {
			continue
		}
		replies = append(replies, api.AgentReply{Agent: msg.AgentName, Content: msg.Content})
	}

	WriteSuccess(w, &api.ChatResponse{
		Content:   formatted.Content,
		Agent:     formatted.Metadata.PrimaryAgent,
		SessionID: result.SessionID,
		Timestamp: time.Now(),
		Metadata: &api.ChatMetadata{
			TotalAgents:        len(agents),
			GroupChat:          true,
			AllResponses:       replies,
			ConversationLength: len(result.Messages),
			TotalTurns:         result.TotalTurns,
			TerminatedAgents:   result.TerminatedAgents,
			ProcessingMs:       result.TotalProcessingMs,
			Summary:            result.Summary,
			Format:             string(formatted.Format),
		},
	})
}

func (h *ChatHandler) handleSingleAgent(w http.ResponseWriter, r *http.Request, req *api.ChatRequest, name string) {
	ag, err := h.registry.Resolve(name)
	if err != nil {
		WriteAnyError(w, err, h.logger)
		return
	}

	ctx := r.Context()
	sessionID := req.SessionID

	var history []types.Message
	if sessionID != "" {
		history, err = h.store.Messages(ctx, sessionID)
		if err != nil {
			// An unknown session id starts a fresh conversation under it.
			if types.GetErrorCode(err) != types.ErrSessionNotFound {
				WriteAnyError(w, err, h.logger)
				return
			}
			history = nil
		}
	} else {
		sessionID, err = h.store.Create(ctx)
		if err != nil {
			WriteError(w, types.NewError(types.ErrStoreFailure, "failed to create session").WithCause(err), h.logger)
			return
		}
	}

	userMsg := types.NewUserMessage(req.Message)
	if err := h.store.Append(ctx, sessionID, userMsg); err != nil {
		h.logger.Error("failed to persist user message",
			zap.String("session_id", sessionID), zap.Error(err))
	}

	callCtx, cancel := context.WithTimeout(ctx, singleAgentTimeout)
	defer cancel()

	start := time.Now()
	out, err := ag.Respond(callCtx, &agent.Input{Message: req.Message, History: history})
	elapsed := time.Since(start)
	if err != nil {
		if errors.Is(callCtx.Err(), context.DeadlineExceeded) {
			WriteError(w, types.NewError(types.ErrTimeout, "agent response timed out").
				WithAgent(name).WithCause(err).WithRetryable(true), h.logger)
			return
		}
		WriteAnyError(w, err, h.logger)
		return
	}

	reply := types.NewAgentMessage(ag.Name(), ag.Type(), out.Content, nextTurn(history))
	reply.ProcessingMs = elapsed.Milliseconds()
	if err := h.store.Append(ctx, sessionID, reply); err != nil {
		h.logger.Error("failed to persist agent message",
			zap.String("session_id", sessionID), zap.Error(err))
	}

	WriteSuccess(w, &api.ChatResponse{
		Content:   out.Content,
		Agent:     ag.Name(),
		SessionID: sessionID,
		Timestamp: time.Now(),
		Metadata: &api.ChatMetadata{
			TotalAgents:  1,
			GroupChat:    false,
			ProcessingMs: elapsed.Milliseconds(),
		},
	})
}

// nextTurn numbers the new agent message after the existing agent messages.
func nextTurn(history []types.Message) int {
	turn := 1
	for _, msg := range history {
		if !msg.IsUser() {
			turn++
		}
	}
	return turn
}
