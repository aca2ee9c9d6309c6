// Package session persists group-chat transcripts keyed by session id.
// Three backends share one interface: in-memory (default), Redis, and
// SQLite via GORM.
package session

import (
	"context"

	"github.com/parleylabs/parley/types"
)

// Store is the transcript persistence contract. Sessions are append-only;
// Append on an unknown session id creates it implicitly so that callers
// supplying their own ids keep working. Messages on an unknown id returns
// types.ErrSessionNotFound.
//
// Appends on a single session are atomic per backend, but interleaving of
// concurrent orchestrator runs against the same session id is the caller's
// responsibility.
type Store interface {
	// Create allocates a new empty session and returns its id.
	Create(ctx context.Context) (string, error)

	// Append adds one message to the end of the session's transcript.
	Append(ctx context.Context, sessionID string, msg types.Message) error

	// Messages returns the transcript in append order.
	Messages(ctx context.Context, sessionID string) ([]types.Message, error)

	Close() error
}
