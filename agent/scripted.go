package agent

import (
	"context"
	"sync"
	"time"
)

// ScriptedAgent replays canned responses in call order; once the script is
// exhausted the last response repeats. It is used for workshop demos and as
// a deterministic participant in tests.
type ScriptedAgent struct {
	name      string
	agentType string

	mu        sync.Mutex
	responses []string
	calls     int

	delay time.Duration
	err   error
}

// NewScriptedAgent creates a scripted agent. With no responses it answers
// with an empty string.
func NewScriptedAgent(name, agentType string, responses ...string) *ScriptedAgent {
	return &ScriptedAgent{
		name:      name,
		agentType: agentType,
		responses: responses,
	}
}

// WithDelay makes every Respond call sleep for d first, honoring ctx.
func (a *ScriptedAgent) WithDelay(d time.Duration) *ScriptedAgent {
	a.delay = d
	return a
}

// WithError makes every Respond call fail with err.
func (a *ScriptedAgent) WithError(err error) *ScriptedAgent {
	a.err = err
	return a
}

func (a *ScriptedAgent) Name() string { return a.name }

func (a *ScriptedAgent) Type() string { return a.agentType }

// Calls returns how many times Respond has been invoked.
func (a *ScriptedAgent) Calls() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.calls
}

func (a *ScriptedAgent) Respond(ctx context.Context, in *Input) (*Output, error) {
	if a.delay > 0 {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(a.delay):
		}
	}
	if a.err != nil {
		return nil, a.err
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	if len(a.responses) == 0 {
		a.calls++
		return &Output{}, nil
	}
	idx := a.calls
	if idx >= len(a.responses) {
		idx = len(a.responses) - 1
	}
	a.calls++
	return &Output{Content: a.responses[idx]}, nil
}
