// Package history is the conversation history adapter.
//
// A Store keeps the append-only sequence of turns for each session and
// materializes the bounded window used for prompt construction. The window
// is rebuilt from the store on every request and never cached in process
// memory.
package history

import (
	"context"

	"github.com/quailsgpt/quailsgpt/pkg/models"
)

// Store persists conversation turns keyed by session id.
type Store interface {
	// GetHistory returns at most the last limit turns for the session,
	// oldest first.
	GetHistory(ctx context.Context, sessionID string, limit int) ([]*models.Message, error)

	// AppendMessage appends one turn to the session's history.
	AppendMessage(ctx context.Context, sessionID string, msg *models.Message) error

	// Close releases store resources.
	Close() error
}

// Window trims msgs to the last size entries, preserving order. It is the
// shared windowing policy for all store implementations: older turns are
// dropped, not summarized.
func Window(msgs []*models.Message, size int) []*models.Message {
	if size <= 0 || len(msgs) <= size {
		return msgs
	}
	return msgs[len(msgs)-size:]
}
