package groupchat

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/parleylabs/parley/agent"
	"github.com/parleylabs/parley/session"
	"github.com/parleylabs/parley/types"
)

// recordingAgent captures the collaboration context of every call.
type recordingAgent struct {
	name string

	mu       sync.Mutex
	contexts []string
	response string
}

func (a *recordingAgent) Name() string { return a.name }
func (a *recordingAgent) Type() string { return "recording" }

func (a *recordingAgent) Respond(ctx context.Context, in *agent.Input) (*agent.Output, error) {
	a.mu.Lock()
	a.contexts = append(a.contexts, in.Context)
	a.mu.Unlock()
	return &agent.Output{Content: a.response}, nil
}

func newTestOrchestrator(t *testing.T, cfg Config, agents ...agent.Agent) (*Orchestrator, *session.MemoryStore) {
	t.Helper()
	registry := agent.NewRegistry(zap.NewNop())
	for _, a := range agents {
		registry.Register(a)
	}
	store := session.NewMemoryStore(zap.NewNop())
	return New(registry, store, cfg, zap.NewNop()), store
}

func TestRun_SequentialOrderAndTurnNumbers(t *testing.T) {
	t.Parallel()

	o, store := newTestOrchestrator(t, Config{Summarize: true},
		agent.NewScriptedAgent("alpha", "scripted", "alpha round one", "alpha round two"),
		agent.NewScriptedAgent("beta", "scripted", "beta round one", "beta round two"),
	)

	result, err := o.Run(context.Background(), &types.TurnRequest{
		Message:    "compare the options",
		AgentNames: []string{"alpha", "beta"},
		MaxTurns:   2,
	})
	require.NoError(t, err)

	// seed + 2 agents x 2 rounds
	require.Len(t, result.Messages, 5)
	assert.True(t, result.Messages[0].IsUser())
	assert.Equal(t, 0, result.Messages[0].Turn)

	wantAuthors := []string{"alpha", "beta", "alpha", "beta"}
	for i, msg := range result.Messages[1:] {
		assert.Equal(t, wantAuthors[i], msg.AgentName)
		assert.Equal(t, i+1, msg.Turn)
	}
	assert.Equal(t, 4, result.TotalTurns)
	assert.Empty(t, result.TerminatedAgents)
	assert.NotEmpty(t, result.Summary)

	// the whole transcript was persisted
	persisted, err := store.Messages(context.Background(), result.SessionID)
	require.NoError(t, err)
	assert.Len(t, persisted, 5)
}

func TestRun_CollaborationContext(t *testing.T) {
	t.Parallel()

	alpha := &recordingAgent{name: "alpha", response: "alpha's take"}
	beta := &recordingAgent{name: "beta", response: "beta's take"}
	o, _ := newTestOrchestrator(t, Config{}, alpha, beta)

	_, err := o.Run(context.Background(), &types.TurnRequest{
		Message:    "what is the plan?",
		AgentNames: []string{"alpha", "beta"},
		MaxTurns:   2,
	})
	require.NoError(t, err)

	require.Len(t, alpha.contexts, 2)
	// First turn: original message only.
	assert.Contains(t, alpha.contexts[0], "what is the plan?")
	assert.NotContains(t, alpha.contexts[0], "beta's take")
	// Second round: alpha has spoken, so it sees beta's latest response.
	assert.Contains(t, alpha.contexts[1], "beta's take")
	assert.Contains(t, alpha.contexts[1], "Build upon these responses")

	// beta heard alpha already in round one, since beta had not spoken yet
	// the context stays minimal; by round two it includes alpha.
	require.Len(t, beta.contexts, 2)
	assert.NotContains(t, beta.contexts[0], "alpha's take")
	assert.Contains(t, beta.contexts[1], "alpha's take")
}

func TestRun_TerminatedAgentIsSkipped(t *testing.T) {
	t.Parallel()

	quitter := agent.NewScriptedAgent("quitter", "scripted", "TERMINATED - nothing to add")
	stayer := agent.NewScriptedAgent("stayer", "scripted", "round one", "round two", "round three")
	o, _ := newTestOrchestrator(t, Config{}, quitter, stayer)

	result, err := o.Run(context.Background(), &types.TurnRequest{
		Message:    "keep talking",
		AgentNames: []string{"quitter", "stayer"},
		MaxTurns:   3,
	})
	require.NoError(t, err)

	assert.Equal(t, []string{"quitter"}, result.TerminatedAgents)
	assert.Equal(t, 1, quitter.Calls())
	assert.Equal(t, 3, stayer.Calls())

	// quitter's message stays in the transcript, flagged terminated
	var quitterMsgs int
	for _, msg := range result.Messages {
		if msg.AgentName == "quitter" {
			quitterMsgs++
			assert.True(t, msg.IsTerminated)
		}
	}
	assert.Equal(t, 1, quitterMsgs)
	assert.Equal(t, 4, result.TotalTurns)
}

func TestRun_EndsEarlyWhenAllAgentsTerminate(t *testing.T) {
	t.Parallel()

	a := agent.NewScriptedAgent("a", "scripted", "TERMINATED")
	b := agent.NewScriptedAgent("b", "scripted", "terminated - all set")
	o, _ := newTestOrchestrator(t, Config{}, a, b)

	result, err := o.Run(context.Background(), &types.TurnRequest{
		Message:    "anything left?",
		AgentNames: []string{"a", "b"},
		MaxTurns:   5,
	})
	require.NoError(t, err)

	assert.Equal(t, 1, a.Calls())
	assert.Equal(t, 1, b.Calls())
	assert.Equal(t, 2, result.TotalTurns)
	assert.ElementsMatch(t, []string{"a", "b"}, result.TerminatedAgents)
}

func TestRun_AbsorbsAgentErrors(t *testing.T) {
	t.Parallel()

	broken := agent.NewScriptedAgent("broken", "scripted").WithError(errors.New("connection reset"))
	healthy := agent.NewScriptedAgent("healthy", "scripted", "still here", "still here")
	o, _ := newTestOrchestrator(t, Config{}, broken, healthy)

	result, err := o.Run(context.Background(), &types.TurnRequest{
		Message:    "carry on",
		AgentNames: []string{"broken", "healthy"},
		MaxTurns:   2,
	})
	require.NoError(t, err)

	// broken produced one synthetic terminated message, then was skipped
	require.GreaterOrEqual(t, len(result.Messages), 4)
	synthetic := result.Messages[1]
	assert.Equal(t, "broken", synthetic.AgentName)
	assert.Equal(t, "TERMINATED - Agent response timed out", synthetic.Content)
	assert.True(t, synthetic.IsTerminated)
	assert.Equal(t, []string{"broken"}, result.TerminatedAgents)

	// the healthy agent kept speaking in both rounds
	assert.Equal(t, 2, healthy.Calls())
	assert.Equal(t, 3, result.TotalTurns)
}

func TestRun_AbsorbsPerAgentTimeout(t *testing.T) {
	t.Parallel()

	slow := agent.NewScriptedAgent("slow", "scripted", "too late").WithDelay(time.Second)
	fast := agent.NewScriptedAgent("fast", "scripted", "right away")
	o, _ := newTestOrchestrator(t, Config{AgentTimeout: 30 * time.Millisecond}, slow, fast)

	result, err := o.Run(context.Background(), &types.TurnRequest{
		Message:    "quick question",
		AgentNames: []string{"slow", "fast"},
	})
	require.NoError(t, err)

	assert.Equal(t, "TERMINATED - Agent response timed out", result.Messages[1].Content)
	assert.True(t, result.Messages[1].IsTerminated)
	assert.Equal(t, "right away", result.Messages[2].Content)
	assert.Equal(t, []string{"slow"}, result.TerminatedAgents)
}

func TestRun_SessionDeadlineReturnsTimeout(t *testing.T) {
	t.Parallel()

	glacial := agent.NewScriptedAgent("glacial", "scripted", "never seen").WithDelay(10 * time.Second)
	o, _ := newTestOrchestrator(t, Config{
		SessionTimeout: 50 * time.Millisecond,
		AgentTimeout:   time.Minute,
		Summarize:      true,
	}, glacial)

	_, err := o.Run(context.Background(), &types.TurnRequest{
		Message:    "hello?",
		AgentNames: []string{"glacial"},
	})
	require.Error(t, err)
	assert.Equal(t, types.ErrTimeout, types.GetErrorCode(err))
	assert.True(t, types.IsRetryable(err))
}

func TestRun_UnknownAgentSkippedWithoutTurn(t *testing.T) {
	t.Parallel()

	known := agent.NewScriptedAgent("known", "scripted", "present")
	o, _ := newTestOrchestrator(t, Config{}, known)

	result, err := o.Run(context.Background(), &types.TurnRequest{
		Message:    "anyone home?",
		AgentNames: []string{"ghost", "known"},
	})
	require.NoError(t, err)

	require.Len(t, result.Messages, 2)
	assert.Equal(t, "known", result.Messages[1].AgentName)
	assert.Equal(t, 1, result.Messages[1].Turn)
	assert.Equal(t, 1, result.TotalTurns)
	assert.Empty(t, result.TerminatedAgents)
}

func TestRun_ValidatesRequest(t *testing.T) {
	t.Parallel()

	o, _ := newTestOrchestrator(t, Config{})

	_, err := o.Run(context.Background(), &types.TurnRequest{Message: "  ", AgentNames: []string{"a"}})
	assert.Equal(t, types.ErrInvalidRequest, types.GetErrorCode(err))

	_, err = o.Run(context.Background(), &types.TurnRequest{Message: "hi"})
	assert.Equal(t, types.ErrInvalidRequest, types.GetErrorCode(err))

	_, err = o.Run(context.Background(), nil)
	assert.Equal(t, types.ErrInvalidRequest, types.GetErrorCode(err))
}

func TestRun_ReusesProvidedSession(t *testing.T) {
	t.Parallel()

	a := agent.NewScriptedAgent("a", "scripted", "first run", "second run")
	o, store := newTestOrchestrator(t, Config{}, a)

	ctx := context.Background()
	first, err := o.Run(ctx, &types.TurnRequest{Message: "one", AgentNames: []string{"a"}})
	require.NoError(t, err)

	second, err := o.Run(ctx, &types.TurnRequest{
		Message:    "two",
		AgentNames: []string{"a"},
		SessionID:  first.SessionID,
	})
	require.NoError(t, err)
	assert.Equal(t, first.SessionID, second.SessionID)

	persisted, err := store.Messages(ctx, first.SessionID)
	require.NoError(t, err)
	assert.Len(t, persisted, 4) // two seeds + two replies
}

func TestRun_BroadcastMode(t *testing.T) {
	t.Parallel()

	slow := agent.NewScriptedAgent("slow", "scripted", "slow answer").WithDelay(50 * time.Millisecond)
	fast := agent.NewScriptedAgent("fast", "scripted", "fast answer")
	o, _ := newTestOrchestrator(t, Config{Mode: ModeBroadcast}, slow, fast)

	result, err := o.Run(context.Background(), &types.TurnRequest{
		Message:    "fan out",
		AgentNames: []string{"slow", "fast"},
	})
	require.NoError(t, err)

	// roster order is preserved even though fast finished first
	require.Len(t, result.Messages, 3)
	assert.Equal(t, "slow", result.Messages[1].AgentName)
	assert.Equal(t, "fast", result.Messages[2].AgentName)
	assert.Equal(t, 2, result.TotalTurns)
}

func TestRun_BroadcastGetsOriginalMessageOnly(t *testing.T) {
	t.Parallel()

	a := &recordingAgent{name: "a", response: "from a"}
	b := &recordingAgent{name: "b", response: "from b"}
	o, _ := newTestOrchestrator(t, Config{Mode: ModeBroadcast}, a, b)

	_, err := o.Run(context.Background(), &types.TurnRequest{
		Message:    "independent takes please",
		AgentNames: []string{"a", "b"},
	})
	require.NoError(t, err)

	require.Len(t, a.contexts, 1)
	assert.Empty(t, a.contexts[0])
	require.Len(t, b.contexts, 1)
	assert.Empty(t, b.contexts[0])
}

func TestBuildContext_NoOtherResponsesBeforeFirstTurn(t *testing.T) {
	t.Parallel()

	transcript := []types.Message{
		types.NewUserMessage("seed"),
		types.NewAgentMessage("other", "scripted", "other's answer", 1),
	}

	// "me" has not spoken yet: context is the original message only.
	ctx := buildContext(transcript, "me", "seed")
	assert.Equal(t, "Original user message: seed", ctx)

	// After "me" speaks, other participants' latest responses appear.
	transcript = append(transcript, types.NewAgentMessage("me", "scripted", "my answer", 2))
	transcript = append(transcript, types.NewAgentMessage("other", "scripted", "other's newer answer", 3))
	ctx = buildContext(transcript, "me", "seed")
	assert.Contains(t, ctx, "other's newer answer")
	assert.NotContains(t, ctx, "other's answer\n")
	assert.NotContains(t, ctx, "my answer")
}
