// Package api defines the request and response shapes of the HTTP surface.
package api

import (
	"time"

	"github.com/parleylabs/parley/types"
)

// ChatRequest is the body of POST /api/v1/chat.
type ChatRequest struct {
	// Message is the user's question or instruction.
	Message string `json:"message"`
	// SessionID continues an existing conversation when set.
	SessionID string `json:"session_id,omitempty"`
	// Agents names the participants. Empty means the default agent.
	Agents []string `json:"agents,omitempty"`
	// MaxTurns caps the number of rounds in a group chat.
	// Zero lets the server pick based on roster size.
	MaxTurns int `json:"max_turns,omitempty"`
	// Mode selects "sequential" or "broadcast" dispatch for group chats.
	Mode string `json:"mode,omitempty"`
}

// AgentReply is one agent's contribution inside chat metadata.
type AgentReply struct {
	Agent   string `json:"agent"`
	Content string `json:"content"`
}

// ChatMetadata carries group-chat details alongside the formatted answer.
type ChatMetadata struct {
	TotalAgents        int          `json:"total_agents"`
	GroupChat          bool         `json:"group_chat"`
	AllResponses       []AgentReply `json:"all_responses,omitempty"`
	ConversationLength int          `json:"conversation_length,omitempty"`
	TotalTurns         int          `json:"total_turns,omitempty"`
	TerminatedAgents   []string     `json:"terminated_agents,omitempty"`
	ProcessingMs       int64        `json:"processing_ms"`
	Summary            string       `json:"summary,omitempty"`
	Format             string       `json:"format,omitempty"`
}

// ChatResponse is the body of a successful chat call.
type ChatResponse struct {
	Content   string        `json:"content"`
	Agent     string        `json:"agent"`
	SessionID string        `json:"session_id"`
	Timestamp time.Time     `json:"timestamp"`
	Metadata  *ChatMetadata `json:"metadata,omitempty"`
}

// AgentInfo describes one registered agent.
type AgentInfo struct {
	Name string `json:"name"`
	Type string `json:"type"`
}

// AgentListResponse is the body of GET /api/v1/agents.
type AgentListResponse struct {
	Agents []AgentInfo `json:"agents"`
	Count  int         `json:"count"`
}

// SessionResponse is the body of GET /api/v1/sessions/{id}.
type SessionResponse struct {
	SessionID string          `json:"session_id"`
	Messages  []types.Message `json:"messages"`
	Count     int             `json:"count"`
}
