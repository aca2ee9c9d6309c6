package handlers

import (
	"net/http"

	"go.uber.org/zap"

	"github.com/parleylabs/parley/api"
	"github.com/parleylabs/parley/session"
)

// SessionHandler serves GET /api/v1/sessions/{id}.
type SessionHandler struct {
	store  session.Store
	logger *zap.Logger
}

// NewSessionHandler wires the session transcript endpoint.
func NewSessionHandler(store session.Store, logger *zap.Logger) *SessionHandler {
	return &SessionHandler{
		store:  store,
		logger: logger.With(zap.String("component", "session_handler")),
	}
}

// HandleGet returns the ordered transcript of one session.
func (h *SessionHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	messages, err := h.store.Messages(r.Context(), id)
	if err != nil {
		WriteAnyError(w, err, h.logger)
		return
	}

	WriteSuccess(w, &api.SessionResponse{
		SessionID: id,
		Messages:  messages,
		Count:     len(messages),
	})
}
