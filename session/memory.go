package session

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/parleylabs/parley/types"
)

// MemoryStore keeps transcripts in process memory. Suitable for tests and
// single-instance deployments; everything is lost on restart.
type MemoryStore struct {
	mu       sync.RWMutex
	sessions map[string][]types.Message
	logger   *zap.Logger
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore(logger *zap.Logger) *MemoryStore {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &MemoryStore{
		sessions: make(map[string][]types.Message),
		logger:   logger.With(zap.String("component", "memory_store")),
	}
}

func (s *MemoryStore) Create(ctx context.Context) (string, error) {
	id := uuid.New().String()

	s.mu.Lock()
	s.sessions[id] = nil
	s.mu.Unlock()

	s.logger.Debug("session created", zap.String("session_id", id))
	return id, nil
}

func (s *MemoryStore) Append(ctx context.Context, sessionID string, msg types.Message) error {
	s.mu.Lock()
	s.sessions[sessionID] = append(s.sessions[sessionID], msg)
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) Messages(ctx context.Context, sessionID string) ([]types.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	msgs, ok := s.sessions[sessionID]
	if !ok {
		return nil, types.NewError(types.ErrSessionNotFound, "session "+sessionID+" does not exist")
	}

	out := make([]types.Message, len(msgs))
	copy(out, msgs)
	return out, nil
}

func (s *MemoryStore) Close() error {
	return nil
}

// Len returns the number of sessions held.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}
