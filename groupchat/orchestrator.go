// Package groupchat runs bounded multi-agent conversations. An Orchestrator
// drives a fixed roster of agents through rounds of turns, persists the
// transcript, and produces a digest of the conversation.
package groupchat

import (
	"context"
	"sort"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/parleylabs/parley/agent"
	"github.com/parleylabs/parley/internal/metrics"
	"github.com/parleylabs/parley/session"
	"github.com/parleylabs/parley/types"
)

// Mode selects how a round of turns is executed.
type Mode string

const (
	// ModeSequential runs agents one at a time in roster order, each seeing
	// the others' latest responses through the collaboration context.
	ModeSequential Mode = "sequential"

	// ModeBroadcast fans all agents out in parallel against the original
	// message only. Single round, no inter-agent context.
	ModeBroadcast Mode = "broadcast"
)

// timeoutContent is the synthetic message body recorded when an agent turn
// is absorbed (per-agent deadline or any invocation error).
const timeoutContent = "TERMINATED - Agent response timed out"

// summaryFallback replaces the digest when the summarizer misses its
// sub-deadline or fails.
const summaryFallback = "The conversation completed, but a summary could not be generated in time."

// Config bounds one orchestrated run.
type Config struct {
	// Mode defaults to ModeSequential.
	Mode Mode `yaml:"mode" json:"mode" env:"MODE"`

	// SessionTimeout caps the whole run. Defaults to 4 minutes.
	SessionTimeout time.Duration `yaml:"session_timeout" json:"session_timeout" env:"SESSION_TIMEOUT"`

	// AgentTimeout caps each agent call. Defaults to 1 minute.
	AgentTimeout time.Duration `yaml:"agent_timeout" json:"agent_timeout" env:"AGENT_TIMEOUT"`

	// SummaryTimeout caps summarization. Defaults to 30 seconds.
	SummaryTimeout time.Duration `yaml:"summary_timeout" json:"summary_timeout" env:"SUMMARY_TIMEOUT"`

	// Summarize controls whether a digest is produced after the run.
	Summarize bool `yaml:"summarize" json:"summarize" env:"SUMMARIZE"`
}

// DefaultConfig returns the production defaults.
func DefaultConfig() Config {
	return Config{
		Mode:           ModeSequential,
		SessionTimeout: 4 * time.Minute,
		AgentTimeout:   time.Minute,
		SummaryTimeout: 30 * time.Second,
		Summarize:      true,
	}
}

// withDefaults fills zero fields so a partially specified Config still runs.
func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.Mode == "" {
		c.Mode = d.Mode
	}
	if c.SessionTimeout <= 0 {
		c.SessionTimeout = d.SessionTimeout
	}
	if c.AgentTimeout <= 0 {
		c.AgentTimeout = d.AgentTimeout
	}
	if c.SummaryTimeout <= 0 {
		c.SummaryTimeout = d.SummaryTimeout
	}
	return c
}

// Orchestrator drives group-chat runs. It is stateless across runs: all
// per-conversation state lives in the request, the transcript of the run,
// and the session store. Safe for concurrent use.
type Orchestrator struct {
	registry   *agent.Registry
	store      session.Store
	summarizer Summarizer
	config     Config
	metrics    *metrics.Collector
	logger     *zap.Logger
	tracer     trace.Tracer
}

// New creates an orchestrator with a TemplateSummarizer. Zero config fields
// fall back to DefaultConfig values.
func New(registry *agent.Registry, store session.Store, cfg Config, logger *zap.Logger) *Orchestrator {
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.With(zap.String("component", "orchestrator"))
	return &Orchestrator{
		registry:   registry,
		store:      store,
		summarizer: NewTemplateSummarizer(logger),
		config:     cfg.withDefaults(),
		logger:     logger,
		tracer:     otel.Tracer("parley/groupchat"),
	}
}

// WithSummarizer replaces the digest implementation.
func (o *Orchestrator) WithSummarizer(s Summarizer) *Orchestrator {
	o.summarizer = s
	return o
}

// WithMetrics attaches a metrics collector.
func (o *Orchestrator) WithMetrics(c *metrics.Collector) *Orchestrator {
	o.metrics = c
	return o
}

// WithMode returns a copy of the orchestrator running in the given mode.
// The orchestrator carries no per-run state, so the copy shares everything
// but the mode.
func (o *Orchestrator) WithMode(m Mode) *Orchestrator {
	c := *o
	c.config.Mode = m
	return &c
}

// Run executes one orchestrated conversation and returns the full
// transcript. The request's agents speak in roster order for up to MaxTurns
// rounds (sequential mode) or exactly once each (broadcast mode). Reaching
// the whole-session deadline returns types.ErrTimeout without a result;
// per-agent failures never abort the run.
func (o *Orchestrator) Run(ctx context.Context, req *types.TurnRequest) (*types.TurnResult, error) {
	if req == nil || strings.TrimSpace(req.Message) == "" {
		return nil, types.NewError(types.ErrInvalidRequest, "message is required")
	}
	if len(req.AgentNames) == 0 {
		return nil, types.NewError(types.ErrInvalidRequest, "at least one agent is required")
	}
	maxTurns := req.MaxTurns
	if maxTurns < 1 {
		maxTurns = 1
	}

	start := time.Now()
	ctx, span := o.tracer.Start(ctx, "groupchat.run",
		trace.WithAttributes(
			attribute.String("groupchat.mode", string(o.config.Mode)),
			attribute.Int("groupchat.agents", len(req.AgentNames)),
			attribute.Int("groupchat.max_turns", maxTurns),
		))
	defer span.End()

	ctx, cancel := context.WithTimeout(ctx, o.config.SessionTimeout)
	defer cancel()

	sessionID := req.SessionID
	if sessionID == "" {
		id, err := o.store.Create(ctx)
		o.metrics.RecordStoreOp("create", err)
		if err != nil {
			o.metrics.RecordRun(string(o.config.Mode), "error", time.Since(start))
			return nil, types.NewError(types.ErrStoreFailure, "failed to create session").WithCause(err)
		}
		sessionID = id
	}

	run := &runState{
		sessionID:  sessionID,
		terminated: make(map[string]struct{}),
		nextTurn:   1,
	}

	seed := types.NewUserMessage(req.Message)
	run.transcript = append(run.transcript, seed)
	o.persist(ctx, sessionID, seed)

	o.logger.Info("group chat started",
		zap.String("session_id", sessionID),
		zap.Strings("agents", req.AgentNames),
		zap.Int("max_turns", maxTurns),
		zap.String("mode", string(o.config.Mode)),
	)

	var err error
	switch o.config.Mode {
	case ModeBroadcast:
		err = o.runBroadcast(ctx, req, run)
	default:
		err = o.runSequential(ctx, req, run, maxTurns)
	}
	if err != nil {
		o.metrics.RecordRun(string(o.config.Mode), "timeout", time.Since(start))
		o.logger.Warn("group chat aborted",
			zap.String("session_id", sessionID),
			zap.Error(err),
		)
		return nil, err
	}

	result := &types.TurnResult{
		Messages:         run.transcript,
		SessionID:        sessionID,
		TotalTurns:       run.nextTurn - 1,
		TerminatedAgents: sortedNames(run.terminated),
	}
	if o.config.Summarize {
		result.Summary = o.summarize(ctx, run.transcript)
	}
	result.TotalProcessingMs = time.Since(start).Milliseconds()

	o.metrics.RecordRun(string(o.config.Mode), "ok", time.Since(start))
	o.logger.Info("group chat finished",
		zap.String("session_id", sessionID),
		zap.Int("total_turns", result.TotalTurns),
		zap.Int("terminated", len(result.TerminatedAgents)),
		zap.Int64("elapsed_ms", result.TotalProcessingMs),
	)
	return result, nil
}

// runState is the mutable state of one run.
type runState struct {
	sessionID  string
	transcript []types.Message
	terminated map[string]struct{}
	nextTurn   int
}

func (o *Orchestrator) runSequential(ctx context.Context, req *types.TurnRequest, run *runState, maxTurns int) error {
	for round := 1; round <= maxTurns; round++ {
		for _, name := range req.AgentNames {
			if ctx.Err() != nil {
				return o.sessionTimeout(ctx)
			}
			if _, done := run.terminated[name]; done {
				o.logger.Debug("agent already terminated, skipping",
					zap.String("agent", name), zap.Int("round", round))
				continue
			}

			ag, err := o.registry.Resolve(name)
			if err != nil {
				// Unknown agents never abort a run; the turn counter does
				// not advance either.
				o.metrics.RecordAgentTurn(name, "skipped", 0)
				o.logger.Warn("agent not registered, skipping turn",
					zap.String("agent", name), zap.Int("round", round))
				continue
			}

			collab := buildContext(run.transcript, name, req.Message)
			msg, ok := o.invoke(ctx, ag, req.Message, collab, run.nextTurn)
			if !ok {
				return o.sessionTimeout(ctx)
			}
			o.record(ctx, run, msg)
		}

		if coversAll(run.terminated, req.AgentNames) {
			o.logger.Info("all agents terminated, ending early",
				zap.String("session_id", run.sessionID), zap.Int("round", round))
			break
		}
	}
	return nil
}

// runBroadcast fans all agents out in parallel against the original message.
// Responses are recorded in roster order regardless of completion order.
func (o *Orchestrator) runBroadcast(ctx context.Context, req *types.TurnRequest, run *runState) error {
	g, gctx := errgroup.WithContext(ctx)
	results := make([]*types.Message, len(req.AgentNames))

	for i, name := range req.AgentNames {
		g.Go(func() error {
			ag, err := o.registry.Resolve(name)
			if err != nil {
				o.metrics.RecordAgentTurn(name, "skipped", 0)
				o.logger.Warn("agent not registered, skipping", zap.String("agent", name))
				return nil
			}
			msg, ok := o.invoke(gctx, ag, req.Message, "", 0)
			if !ok {
				return o.sessionTimeout(gctx)
			}
			results[i] = &msg
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	for _, msg := range results {
		if msg == nil {
			continue
		}
		msg.Turn = run.nextTurn
		o.record(ctx, run, *msg)
	}
	return nil
}

// invoke runs one agent turn under the per-agent deadline. Any failure is
// absorbed into a synthetic terminated message; ok is false only when the
// whole-session deadline fired during the call.
func (o *Orchestrator) invoke(ctx context.Context, ag agent.Agent, message, collab string, turn int) (types.Message, bool) {
	callCtx, cancel := context.WithTimeout(ctx, o.config.AgentTimeout)
	defer cancel()

	callCtx, span := o.tracer.Start(callCtx, "groupchat.agent_turn",
		trace.WithAttributes(
			attribute.String("agent.name", ag.Name()),
			attribute.Int("groupchat.turn", turn),
		))
	start := time.Now()
	out, err := ag.Respond(callCtx, &agent.Input{Message: message, Context: collab})
	elapsed := time.Since(start)
	span.End()

	if err != nil {
		if ctx.Err() != nil {
			// The session deadline fired, not just this agent's.
			return types.Message{}, false
		}
		o.metrics.RecordAgentTurn(ag.Name(), "absorbed", elapsed)
		o.metrics.RecordTermination(ag.Name(), "failure")
		o.logger.Warn("agent turn absorbed",
			zap.String("agent", ag.Name()),
			zap.Int("turn", turn),
			zap.Duration("elapsed", elapsed),
			zap.Error(err),
		)
		msg := types.NewAgentMessage(ag.Name(), ag.Type(), timeoutContent, turn)
		msg.IsTerminated = true
		msg.ProcessingMs = elapsed.Milliseconds()
		return msg, true
	}

	msg := types.NewAgentMessage(ag.Name(), ag.Type(), out.Content, turn)
	msg.ProcessingMs = elapsed.Milliseconds()
	if agent.IsTerminationSignal(out.Content) {
		msg.IsTerminated = true
		o.metrics.RecordTermination(ag.Name(), "signal")
		o.logger.Info("agent signaled termination",
			zap.String("agent", ag.Name()), zap.Int("turn", turn))
	}
	o.metrics.RecordAgentTurn(ag.Name(), "ok", elapsed)
	return msg, true
}

// record appends a produced message to the run, persists it and advances
// the turn counter.
func (o *Orchestrator) record(ctx context.Context, run *runState, msg types.Message) {
	run.transcript = append(run.transcript, msg)
	o.persist(ctx, run.sessionID, msg)
	if msg.IsTerminated {
		run.terminated[msg.AgentName] = struct{}{}
	}
	run.nextTurn++
}

// persist appends to the session store. Store failures degrade the run to
// in-memory only rather than aborting it.
func (o *Orchestrator) persist(ctx context.Context, sessionID string, msg types.Message) {
	err := o.store.Append(ctx, sessionID, msg)
	o.metrics.RecordStoreOp("append", err)
	if err != nil {
		o.logger.Error("failed to persist message",
			zap.String("session_id", sessionID),
			zap.String("agent", msg.AgentName),
			zap.Error(err),
		)
	}
}

// summarize produces the conversation digest under its own sub-deadline.
// It never fails: a slow or broken summarizer yields the fallback text.
func (o *Orchestrator) summarize(ctx context.Context, transcript []types.Message) string {
	sctx, cancel := context.WithTimeout(ctx, o.config.SummaryTimeout)
	defer cancel()

	summary, err := o.summarizer.Summarize(sctx, transcript)
	if err != nil {
		o.metrics.RecordSummaryFallback()
		o.logger.Warn("summarization failed, using fallback", zap.Error(err))
		return summaryFallback
	}
	return summary
}

func (o *Orchestrator) sessionTimeout(ctx context.Context) error {
	return types.NewError(types.ErrTimeout,
		"group chat deadline exceeded; retry with fewer agents or turns").
		WithCause(ctx.Err()).
		WithRetryable(true)
}

// coversAll reports whether every requested agent has terminated.
func coversAll(terminated map[string]struct{}, names []string) bool {
	for _, name := range names {
		if _, ok := terminated[name]; !ok {
			return false
		}
	}
	return true
}

func sortedNames(set map[string]struct{}) []string {
	if len(set) == 0 {
		return nil
	}
	names := make([]string, 0, len(set))
	for name := range set {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
