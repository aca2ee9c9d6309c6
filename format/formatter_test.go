package format

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/parleylabs/parley/types"
)

func agentMsg(name, content string, turn int) types.Message {
	return types.NewAgentMessage(name, "scripted", content, turn)
}

func terminatedMsg(name string, turn int) types.Message {
	msg := types.NewAgentMessage(name, "scripted", "TERMINATED - done", turn)
	msg.IsTerminated = true
	return msg
}

func result(msgs ...types.Message) *types.TurnResult {
	return &types.TurnResult{Messages: msgs, SessionID: "sess-1"}
}

func TestSelectStrategy(t *testing.T) {
	t.Parallel()

	f := NewFormatter(zap.NewNop())

	tests := []struct {
		name          string
		contributions []types.Message
		query         string
		want          Strategy
	}{
		{
			name:          "single distinct agent",
			contributions: []types.Message{agentMsg("solo", "a", 1), agentMsg("solo", "b", 2)},
			query:         "what is this? who knows",
			want:          StrategySingleAgent,
		},
		{
			name:          "query keyword forces synthesis",
			contributions: []types.Message{agentMsg("a", "x", 1), agentMsg("b", "y", 2), agentMsg("c", "z", 3), agentMsg("d", "w", 4)},
			query:         "find the owner",
			want:          StrategySynthesis,
		},
		{
			name:          "many distinct agents go structured",
			contributions: []types.Message{agentMsg("a", "x", 1), agentMsg("b", "y", 2), agentMsg("c", "z", 3)},
			query:         "summarize your discussion",
			want:          StrategyStructured,
		},
		{
			name:          "many responses go structured",
			contributions: []types.Message{agentMsg("a", "1", 1), agentMsg("b", "2", 2), agentMsg("a", "3", 3), agentMsg("b", "4", 4)},
			query:         "give your verdicts",
			want:          StrategyStructured,
		},
		{
			name:          "two agents few responses default to synthesis",
			contributions: []types.Message{agentMsg("a", "x", 1), agentMsg("b", "y", 2)},
			query:         "proceed",
			want:          StrategySynthesis,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, f.SelectStrategy(tt.contributions, tt.query))
		})
	}
}

func TestFormat_NoUsableResponses(t *testing.T) {
	t.Parallel()

	f := NewFormatter(zap.NewNop())

	for _, res := range []*types.TurnResult{
		result(types.NewUserMessage("anyone?")),
		result(types.NewUserMessage("anyone?"), terminatedMsg("a", 1), terminatedMsg("b", 2)),
	} {
		resp := f.Format(res, "anyone?")
		assert.Equal(t, noResponseContent, resp.Content)
		assert.Equal(t, types.FormatText, resp.Format)
		assert.Equal(t, "sess-1", resp.SessionID)
		assert.Zero(t, resp.Metadata.AgentCount)
	}
}

func TestFormat_SingleAgent(t *testing.T) {
	t.Parallel()

	f := NewFormatter(zap.NewNop())
	res := result(
		types.NewUserMessage("what did you decide?"),
		agentMsg("solo", "First draft of the decision.", 1),
		agentMsg("solo", "Here is the final decision: we proceed next week.", 2),
	)

	resp := f.Format(res, "what did you decide?")
	assert.Equal(t, "Here is the final decision: we proceed next week.", resp.Content)
	assert.Equal(t, types.FormatText, resp.Format)
	assert.Equal(t, 1, resp.Metadata.AgentCount)
	assert.Equal(t, 2, resp.Metadata.ResponseCount)
	assert.Equal(t, "solo", resp.Metadata.PrimaryAgent)
}

func TestFormat_SynthesisPrefersActionableSpecialist(t *testing.T) {
	t.Parallel()

	f := NewFormatter(zap.NewNop())
	res := result(
		types.NewUserMessage("find the contact for billing"),
		agentMsg("people-lookup", "I found the contact: billing@corp.example is the address you want.", 1),
		agentMsg("advisor", "Short aside.", 2),
	)

	resp := f.Format(res, "find the contact for billing")
	require.Equal(t, types.FormatText, resp.Format)
	assert.Contains(t, resp.Content, "billing@corp.example")
	assert.Equal(t, "people-lookup", resp.Metadata.PrimaryAgent)
	assert.Equal(t, 2, resp.Metadata.AgentCount)
	assert.ElementsMatch(t, []string{"people-lookup", "advisor"}, resp.Metadata.ContributingAgents)
}

func TestFormat_SynthesisAppendsOneComplementaryDetail(t *testing.T) {
	t.Parallel()

	f := NewFormatter(zap.NewNop())
	res := result(
		types.NewUserMessage("find the owner and notify them"),
		agentMsg("contact-finder", "The owner has been located: it is Dana Reyes in facilities management.", 1),
		agentMsg("advisor", "For the record, the handover was confirmed by facilities this morning.", 2),
		agentMsg("advisor", "Nothing more from me.", 3),
	)

	resp := f.Format(res, "find the owner and notify them")
	// The specialist's completed action wins, and exactly one short detail
	// from a later contributor is appended after it.
	assert.Equal(t, "contact-finder", resp.Metadata.PrimaryAgent)
	assert.Contains(t, resp.Content, "Dana Reyes")
	assert.Contains(t, resp.Content, "\n\nFor the record, the handover was confirmed by facilities this morning.")
	assert.NotContains(t, resp.Content, "Nothing more from me")
}

func TestFormat_SynthesisFallsBackToMostRecent(t *testing.T) {
	t.Parallel()

	f := NewFormatter(zap.NewNop())
	res := result(
		types.NewUserMessage("tell me how this ends"),
		agentMsg("alpha", "An early observation about the matter at hand.", 1),
		agentMsg("beta", "Here is the conclusion everyone agreed on after the debate.", 2),
	)

	resp := f.Format(res, "tell me how this ends")
	assert.Equal(t, "Here is the conclusion everyone agreed on after the debate.", resp.Content)
	assert.Equal(t, "beta", resp.Metadata.PrimaryAgent)
}

func TestFormat_StructuredAddsAdditionalInformation(t *testing.T) {
	t.Parallel()

	f := NewFormatter(zap.NewNop())
	long := "Here is the combined assessment of the proposal, covering budget, staffing and the migration timeline in enough depth to stand alone as the primary answer."
	res := result(
		types.NewUserMessage("give your verdicts"),
		agentMsg("alpha", "I found no budget issues worth escalating at this stage.", 1),
		agentMsg("beta", "Staffing has been confirmed by both team leads already.", 2),
		agentMsg("gamma", long, 3),
	)

	resp := f.Format(res, "give your verdicts")
	require.Equal(t, types.FormatMarkdown, resp.Format)
	assert.Contains(t, resp.Content, long)
	assert.Contains(t, resp.Content, "Additional Information")
	assert.Contains(t, resp.Content, "**alpha**")
	assert.Contains(t, resp.Content, "**beta**")
	assert.NotContains(t, resp.Content, "**gamma**")
	assert.Equal(t, 3, resp.Metadata.AgentCount)
}

func TestFormat_StructuredShortPrimaryUsesParagraphs(t *testing.T) {
	t.Parallel()

	f := NewFormatter(zap.NewNop())
	res := result(
		types.NewUserMessage("give your verdicts"),
		agentMsg("alpha", "Alpha verdict: approve.", 1),
		agentMsg("beta", "Beta verdict: approve.", 2),
		agentMsg("gamma", "Gamma verdict: defer.", 3),
	)

	resp := f.Format(res, "give your verdicts")
	require.Equal(t, types.FormatMarkdown, resp.Format)
	assert.Contains(t, resp.Content, "Alpha verdict: approve.")
	assert.Contains(t, resp.Content, "Beta verdict: approve.")
	assert.Contains(t, resp.Content, "Gamma verdict: defer.")
	assert.NotContains(t, resp.Content, "Additional Information")
}

func TestFormat_TerminatedMessagesNeverContribute(t *testing.T) {
	t.Parallel()

	f := NewFormatter(zap.NewNop())
	res := result(
		types.NewUserMessage("what happened?"),
		agentMsg("alpha", "Here is the one real answer in this conversation.", 1),
		terminatedMsg("beta", 2),
	)

	resp := f.Format(res, "what happened?")
	assert.Equal(t, "Here is the one real answer in this conversation.", resp.Content)
	assert.NotContains(t, resp.Content, "TERMINATED")
	assert.Equal(t, 1, resp.Metadata.AgentCount)
}

// panickyCleaner forces the strategy path to blow up.
type panickyCleaner struct{}

func (panickyCleaner) Clean(string) string { panic("cleaner exploded") }

func TestFormat_StrategyPanicFallsBackToDefault(t *testing.T) {
	t.Parallel()

	f := NewFormatter(zap.NewNop()).WithCleaner(panickyCleaner{})
	res := result(
		types.NewUserMessage("hi"),
		agentMsg("a", "alpha answer", 1),
		agentMsg("b", "beta answer", 2),
	)

	var resp *types.FormattedResponse
	assert.NotPanics(t, func() { resp = f.Format(res, "hi") })
	require.NotNil(t, resp)
	// The fallback keeps the raw last response rather than panicking again.
	assert.Equal(t, "beta answer", resp.Content)
	assert.Equal(t, types.FormatText, resp.Format)
	assert.Equal(t, "b", resp.Metadata.PrimaryAgent)
}
