package agent

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/parleylabs/parley/types"
)

// HTTPAgentConfig configures an HTTPAgent.
type HTTPAgentConfig struct {
	// Name is the agent's registry name. Required.
	Name string

	// Type labels the backing service (e.g. "azure_openai", "openai").
	Type string

	// BaseURL is the base URL of the OpenAI-compatible API
	// (e.g. "https://api.openai.com/v1").
	BaseURL string

	// APIKey is sent as a Bearer token.
	APIKey string

	// Model is the model name passed on every request.
	Model string

	// SystemPrompt gives the agent its persona. Optional.
	SystemPrompt string

	// EndpointPath is the chat completions path. Defaults to "/chat/completions".
	EndpointPath string

	// Timeout is the HTTP client timeout. Defaults to 60s if zero. The
	// per-call context deadline still applies on top of it.
	Timeout time.Duration
}

// HTTPAgent adapts any OpenAI-compatible chat-completions endpoint to the
// Agent interface. It is stateless; conversation state arrives through the
// Input on each call.
type HTTPAgent struct {
	cfg    HTTPAgentConfig
	client *http.Client
	logger *zap.Logger
}

// NewHTTPAgent creates an HTTPAgent from cfg.
func NewHTTPAgent(cfg HTTPAgentConfig, logger *zap.Logger) *HTTPAgent {
	if cfg.Timeout == 0 {
		cfg.Timeout = 60 * time.Second
	}
	if cfg.EndpointPath == "" {
		cfg.EndpointPath = "/chat/completions"
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &HTTPAgent{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.Timeout},
		logger: logger.With(zap.String("component", "http_agent"), zap.String("agent", cfg.Name)),
	}
}

func (a *HTTPAgent) Name() string { return a.cfg.Name }

func (a *HTTPAgent) Type() string { return a.cfg.Type }

type chatCompletionMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatCompletionRequest struct {
	Model    string                  `json:"model"`
	Messages []chatCompletionMessage `json:"messages"`
}

type chatCompletionResponse struct {
	Choices []struct {
		Message chatCompletionMessage `json:"message"`
	} `json:"choices"`
}

// Respond sends the rendered conversation to the chat-completions endpoint
// and returns the first choice.
func (a *HTTPAgent) Respond(ctx context.Context, in *Input) (*Output, error) {
	body := chatCompletionRequest{
		Model:    a.cfg.Model,
		Messages: a.buildMessages(in),
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	url := strings.TrimRight(a.cfg.BaseURL, "/") + a.cfg.EndpointPath
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if a.cfg.APIKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+a.cfg.APIKey)
	}

	resp, err := a.client.Do(httpReq)
	if err != nil {
		return nil, types.NewError(types.ErrAgentInvocation, "agent endpoint unreachable").
			WithAgent(a.cfg.Name).
			WithCause(err).
			WithRetryable(true)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		msg := readErrorMessage(resp.Body)
		e := types.NewError(types.ErrAgentInvocation,
			fmt.Sprintf("agent endpoint returned status %d: %s", resp.StatusCode, msg)).
			WithAgent(a.cfg.Name)
		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
			e = e.WithRetryable(true)
		}
		return nil, e
	}

	var out chatCompletionResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, types.NewError(types.ErrAgentInvocation, "decode agent response").
			WithAgent(a.cfg.Name).
			WithCause(err).
			WithRetryable(true)
	}
	if len(out.Choices) == 0 {
		return nil, types.NewError(types.ErrAgentInvocation, "agent response had no choices").
			WithAgent(a.cfg.Name)
	}

	return &Output{Content: out.Choices[0].Message.Content}, nil
}

// buildMessages renders the Input into chat-completions messages: system
// prompt, prior history, collaboration context, then the user message.
func (a *HTTPAgent) buildMessages(in *Input) []chatCompletionMessage {
	msgs := make([]chatCompletionMessage, 0, len(in.History)+3)

	if a.cfg.SystemPrompt != "" {
		msgs = append(msgs, chatCompletionMessage{Role: "system", Content: a.cfg.SystemPrompt})
	}
	for _, m := range in.History {
		role := "assistant"
		if m.IsUser() {
			role = "user"
		}
		msgs = append(msgs, chatCompletionMessage{Role: role, Content: m.Content})
	}
	if in.Context != "" {
		msgs = append(msgs, chatCompletionMessage{Role: "system", Content: in.Context})
	}
	msgs = append(msgs, chatCompletionMessage{Role: "user", Content: in.Message})
	return msgs
}

// readErrorMessage pulls a short error description from a failed response
// body without assuming a particular error schema.
func readErrorMessage(body io.Reader) string {
	data, err := io.ReadAll(io.LimitReader(body, 2048))
	if err != nil || len(data) == 0 {
		return "no error detail"
	}

	var parsed struct {
		Error struct {
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.Unmarshal(data, &parsed); err == nil && parsed.Error.Message != "" {
		return parsed.Error.Message
	}
	return strings.TrimSpace(string(data))
}
