package groupchat

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/parleylabs/parley/types"
)

// Summarizer condenses a transcript into a short digest. Implementations
// should be fast; the orchestrator gives them a 30-second sub-deadline and
// substitutes a fallback on error.
type Summarizer interface {
	Summarize(ctx context.Context, messages []types.Message) (string, error)
}

const (
	summaryNoConversation = "No meaningful conversation to summarize."
	summaryNoAgents       = "No agent responses to summarize."
	summaryApology        = "I apologize, but I could not produce a summary of this conversation."

	// summaryMaxExcerpt is the per-agent excerpt length in the digest.
	summaryMaxExcerpt = 100
)

// TemplateSummarizer builds a deterministic digest from the transcript
// itself: the user's question, who contributed, and each agent's latest
// response. It needs no model call, so the same transcript always yields
// the same digest, and it never returns an error.
type TemplateSummarizer struct {
	logger *zap.Logger
}

// NewTemplateSummarizer creates a template summarizer.
func NewTemplateSummarizer(logger *zap.Logger) *TemplateSummarizer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TemplateSummarizer{
		logger: logger.With(zap.String("component", "summarizer")),
	}
}

func (s *TemplateSummarizer) Summarize(ctx context.Context, messages []types.Message) (out string, err error) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Warn("summarizer recovered from panic", zap.Any("panic", r))
			out, err = summaryApology, nil
		}
	}()

	if len(messages) <= 1 {
		return summaryNoConversation, nil
	}

	var userQuestion string
	for _, msg := range messages {
		if msg.IsUser() {
			userQuestion = msg.Content
			break
		}
	}

	var agentMsgs []types.Message
	for _, msg := range messages {
		if !msg.IsUser() {
			agentMsgs = append(agentMsgs, msg)
		}
	}
	if len(agentMsgs) == 0 {
		return summaryNoAgents, nil
	}

	// Distinct agents in first-contribution order, latest message each.
	latest := make(map[string]types.Message)
	var names []string
	for _, msg := range agentMsgs {
		if _, seen := latest[msg.AgentName]; !seen {
			names = append(names, msg.AgentName)
		}
		latest[msg.AgentName] = msg
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Question: %s\n\n", userQuestion)
	fmt.Fprintf(&b, "Participants: %s\n\n", strings.Join(names, ", "))
	for _, name := range names {
		fmt.Fprintf(&b, "- %s: %s\n", name, excerpt(latest[name].Content, summaryMaxExcerpt))
	}
	fmt.Fprintf(&b, "\nIn total, %d agents contributed %d responses.", len(names), len(agentMsgs))
	return b.String(), nil
}

// excerpt truncates s to max runes, appending an ellipsis when cut.
func excerpt(s string, max int) string {
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max]) + "..."
}
