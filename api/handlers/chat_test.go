package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/parleylabs/parley/agent"
	"github.com/parleylabs/parley/api"
	"github.com/parleylabs/parley/format"
	"github.com/parleylabs/parley/groupchat"
	"github.com/parleylabs/parley/session"
)

func newChatMux(t *testing.T, registry *agent.Registry, store session.Store) *http.ServeMux {
	t.Helper()

	logger := zap.NewNop()
	orch := groupchat.New(registry, store, groupchat.DefaultConfig(), logger)
	h := NewChatHandler(registry, store, orch, format.NewFormatter(logger), logger)

	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/v1/chat", h.HandleChat)
	return mux
}

func postChat(t *testing.T, mux *http.ServeMux, req api.ChatRequest) *httptest.ResponseRecorder {
	t.Helper()

	body, err := json.Marshal(req)
	require.NoError(t, err)

	r := httptest.NewRequest(http.MethodPost, "/api/v1/chat", bytes.NewReader(body))
	r.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, r)
	return w
}

func TestHandleChat_SingleAgent(t *testing.T) {
	t.Parallel()

	registry := agent.NewRegistry(nil)
	registry.Register(agent.NewScriptedAgent("advisor", "scripted", "First answer.", "Second answer."))
	store := session.NewMemoryStore(nil)
	mux := newChatMux(t, registry, store)

	w := postChat(t, mux, api.ChatRequest{Message: "Hello", Agents: []string{"advisor"}})
	require.Equal(t, http.StatusOK, w.Code)

	var resp api.ChatResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "First answer.", resp.Content)
	assert.Equal(t, "advisor", resp.Agent)
	assert.NotEmpty(t, resp.SessionID)
	require.NotNil(t, resp.Metadata)
	assert.False(t, resp.Metadata.GroupChat)
	assert.Equal(t, 1, resp.Metadata.TotalAgents)

	// user message and agent reply both persisted
	msgs, err := store.Messages(context.Background(), resp.SessionID)
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.True(t, msgs[0].IsUser())
	assert.Equal(t, "advisor", msgs[1].AgentName)
	assert.Equal(t, 1, msgs[1].Turn)

	// continuing the session numbers the next reply after the first
	w = postChat(t, mux, api.ChatRequest{Message: "And then?", Agents: []string{"advisor"}, SessionID: resp.SessionID})
	require.Equal(t, http.StatusOK, w.Code)

	var second api.ChatResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &second))
	assert.Equal(t, "Second answer.", second.Content)
	assert.Equal(t, resp.SessionID, second.SessionID)

	msgs, err = store.Messages(context.Background(), resp.SessionID)
	require.NoError(t, err)
	require.Len(t, msgs, 4)
	assert.Equal(t, 2, msgs[3].Turn)
}

func TestHandleChat_DefaultsToFirstRegisteredAgent(t *testing.T) {
	t.Parallel()

	registry := agent.NewRegistry(nil)
	registry.Register(agent.NewScriptedAgent("alpha", "scripted", "alpha here"))
	registry.Register(agent.NewScriptedAgent("beta", "scripted", "beta here"))
	mux := newChatMux(t, registry, session.NewMemoryStore(nil))

	w := postChat(t, mux, api.ChatRequest{Message: "Hi"})
	require.Equal(t, http.StatusOK, w.Code)

	var resp api.ChatResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "alpha", resp.Agent)
}

func TestHandleChat_GroupChat(t *testing.T) {
	t.Parallel()

	registry := agent.NewRegistry(nil)
	registry.Register(agent.NewScriptedAgent("alpha", "scripted", "The database is the bottleneck."))
	registry.Register(agent.NewScriptedAgent("beta", "scripted", "Caching would relieve the load."))
	mux := newChatMux(t, registry, session.NewMemoryStore(nil))

	w := postChat(t, mux, api.ChatRequest{
		Message:  "Why is the service slow?",
		Agents:   []string{"alpha", "beta"},
		MaxTurns: 1,
	})
	require.Equal(t, http.StatusOK, w.Code)

	var resp api.ChatResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.NotEmpty(t, resp.Content)
	assert.NotEmpty(t, resp.SessionID)

	require.NotNil(t, resp.Metadata)
	assert.True(t, resp.Metadata.GroupChat)
	assert.Equal(t, 2, resp.Metadata.TotalAgents)
	assert.Equal(t, 2, resp.Metadata.TotalTurns)
	assert.Equal(t, 3, resp.Metadata.ConversationLength)
	assert.NotEmpty(t, resp.Metadata.Summary)
	require.Len(t, resp.Metadata.AllResponses, 2)
	assert.Equal(t, "alpha", resp.Metadata.AllResponses[0].Agent)
	assert.Equal(t, "beta", resp.Metadata.AllResponses[1].Agent)
}

func TestHandleChat_UnknownAgentIs404(t *testing.T) {
	t.Parallel()

	registry := agent.NewRegistry(nil)
	registry.Register(agent.NewScriptedAgent("alpha", "scripted", "hi"))
	mux := newChatMux(t, registry, session.NewMemoryStore(nil))

	w := postChat(t, mux, api.ChatRequest{Message: "Hi", Agents: []string{"ghost"}})
	require.Equal(t, http.StatusNotFound, w.Code)

	var env Response
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env))
	assert.False(t, env.Success)
	require.NotNil(t, env.Error)
	assert.Equal(t, "AGENT_NOT_FOUND", env.Error.Code)
	assert.Equal(t, "ghost", env.Error.Agent)
}

func TestHandleChat_ValidationErrors(t *testing.T) {
	t.Parallel()

	registry := agent.NewRegistry(nil)
	registry.Register(agent.NewScriptedAgent("alpha", "scripted", "hi"))
	mux := newChatMux(t, registry, session.NewMemoryStore(nil))

	// blank message
	w := postChat(t, mux, api.ChatRequest{Message: "   "})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	// unknown field rejected
	r := httptest.NewRequest(http.MethodPost, "/api/v1/chat",
		bytes.NewReader([]byte(`{"message":"hi","bogus":true}`)))
	w2 := httptest.NewRecorder()
	mux.ServeHTTP(w2, r)
	assert.Equal(t, http.StatusBadRequest, w2.Code)
}

func TestHandleChat_NoAgentsRegistered(t *testing.T) {
	t.Parallel()

	mux := newChatMux(t, agent.NewRegistry(nil), session.NewMemoryStore(nil))

	w := postChat(t, mux, api.ChatRequest{Message: "Hi"})
	require.Equal(t, http.StatusServiceUnavailable, w.Code)

	var env Response
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env))
	require.NotNil(t, env.Error)
	assert.Equal(t, "SERVICE_UNAVAILABLE", env.Error.Code)
}
