// Package types defines the core data model shared by every parley package.
// It depends on nothing else in the module so that agents, stores and
// transports can all exchange the same values without import cycles.
package types

import (
	"time"

	"github.com/google/uuid"
)

// UserAgentName is the reserved author name for the human participant.
// Messages carrying it are never produced by an agent turn.
const UserAgentName = "user"

// Message is a single utterance in a group-chat transcript.
type Message struct {
	MessageID string `json:"message_id"`
	Content   string `json:"content"`

	// AgentName is the author: a registered agent name, or UserAgentName.
	AgentName string `json:"agent"`
	AgentType string `json:"agent_type,omitempty"`

	// Turn is 0 for the seed user message and the 1-based turn counter for
	// agent messages, in transcript order.
	Turn      int       `json:"turn"`
	Timestamp time.Time `json:"timestamp"`

	// IsTerminated marks a message whose author has left the conversation,
	// either voluntarily (termination signal) or synthetically (absorbed
	// failure). Terminated messages stay in the transcript but are excluded
	// from formatting.
	IsTerminated bool `json:"terminated,omitempty"`

	// ProcessingMs is how long the agent took to produce this message.
	// Zero for user messages.
	ProcessingMs int64 `json:"processing_ms,omitempty"`
}

// IsUser reports whether the message was authored by the human participant.
func (m Message) IsUser() bool {
	return m.AgentName == UserAgentName
}

// NewUserMessage builds the turn-0 seed message for a conversation.
func NewUserMessage(content string) Message {
	return Message{
		MessageID: uuid.New().String(),
		Content:   content,
		AgentName: UserAgentName,
		Turn:      0,
		Timestamp: time.Now(),
	}
}

// NewAgentMessage builds an agent-authored message for the given turn.
func NewAgentMessage(agentName, agentType, content string, turn int) Message {
	return Message{
		MessageID: uuid.New().String(),
		Content:   content,
		AgentName: agentName,
		AgentType: agentType,
		Turn:      turn,
		Timestamp: time.Now(),
	}
}

// TurnRequest describes one orchestrated group-chat run.
type TurnRequest struct {
	// Message is the user's message. Required.
	Message string `json:"message"`

	// AgentNames lists the participants in speaking order. Required,
	// duplicates allowed (an agent may speak twice per round).
	AgentNames []string `json:"agents"`

	// SessionID resumes an existing session when set; a new session is
	// created otherwise.
	SessionID string `json:"session_id,omitempty"`

	// MaxTurns bounds the number of full rounds. Values below 1 are
	// treated as 1.
	MaxTurns int `json:"max_turns,omitempty"`
}

// TurnResult is the outcome of one orchestrated run.
type TurnResult struct {
	// Messages is the full transcript of this run: the seed user message
	// followed by every agent message (including synthetic terminated
	// ones), in production order.
	Messages []Message `json:"messages"`

	SessionID string `json:"session_id"`

	// TotalTurns counts agent messages actually produced.
	TotalTurns int `json:"total_turns"`

	// Summary is the conversation digest, or empty when summarization was
	// not requested.
	Summary string `json:"summary,omitempty"`

	// TerminatedAgents lists the agents that left the conversation,
	// sorted by name.
	TerminatedAgents []string `json:"terminated_agents,omitempty"`

	// TotalProcessingMs is the wall-clock duration of the whole run.
	TotalProcessingMs int64 `json:"total_processing_ms"`
}

// ResponseFormat tells clients how to render formatted content.
type ResponseFormat string

const (
	FormatText     ResponseFormat = "text"
	FormatMarkdown ResponseFormat = "markdown"
)

// ResponseMetadata describes how a formatted response was assembled.
type ResponseMetadata struct {
	AgentCount         int      `json:"agent_count"`
	ResponseCount      int      `json:"response_count"`
	PrimaryAgent       string   `json:"primary_agent,omitempty"`
	ContributingAgents []string `json:"contributing_agents,omitempty"`
}

// FormattedResponse is a transcript condensed into a single user-facing
// answer.
type FormattedResponse struct {
	Content   string           `json:"content"`
	Format    ResponseFormat   `json:"format"`
	SessionID string           `json:"session_id"`
	Metadata  ResponseMetadata `json:"metadata"`
}
