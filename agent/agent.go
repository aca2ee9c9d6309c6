// Package agent defines the capability contract the orchestrator drives,
// the registry that resolves agent names, and two concrete agents: an
// OpenAI-compatible HTTP adapter and a deterministic scripted agent.
package agent

import (
	"context"

	"github.com/parleylabs/parley/types"
)

// Input carries one request to an agent.
type Input struct {
	// Message is the original user message.
	Message string

	// History is the prior transcript, when the caller maintains one.
	// Group-chat runs leave it empty and pass collaboration state through
	// Context instead.
	History []types.Message

	// Context is pre-rendered collaboration guidance: the original message
	// plus, after the agent's first turn, the other participants' latest
	// responses.
	Context string
}

// Output is an agent's reply.
type Output struct {
	Content string
}

// Agent is an external capability that turns a message into text. Respond
// must honor ctx cancellation; the orchestrator enforces a per-call
// deadline through it.
type Agent interface {
	Name() string
	Type() string
	Respond(ctx context.Context, in *Input) (*Output, error)
}
