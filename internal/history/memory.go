package history

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/quailsgpt/quailsgpt/pkg/models"
)

// maxMessagesPerSession bounds per-session storage so long-lived dev
// processes do not grow without limit. Old turns are trimmed first.
const maxMessagesPerSession = 1000

// MemoryStore is an in-memory Store for tests and local runs.
type MemoryStore struct {
	mu       sync.RWMutex
	messages map[string][]*models.Message
}

// NewMemoryStore creates an empty in-memory history store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{messages: map[string][]*models.Message{}}
}

func (m *MemoryStore) GetHistory(ctx context.Context, sessionID string, limit int) ([]*models.Message, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	msgs := m.messages[sessionID]
	windowed := Window(msgs, limit)
	out := make([]*models.Message, len(windowed))
	for i, msg := range windowed {
		clone := *msg
		out[i] = &clone
	}
	return out, nil
}

func (m *MemoryStore) AppendMessage(ctx context.Context, sessionID string, msg *models.Message) error {
	if msg == nil {
		return errors.New("message is required")
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	clone := *msg
	if clone.ID == "" {
		clone.ID = uuid.NewString()
	}
	if clone.SessionID == "" {
		clone.SessionID = sessionID
	}
	if clone.CreatedAt.IsZero() {
		clone.CreatedAt = time.Now()
	}
	msgs := append(m.messages[sessionID], &clone)
	if len(msgs) > maxMessagesPerSession {
		msgs = msgs[len(msgs)-maxMessagesPerSession:]
	}
	m.messages[sessionID] = msgs
	return nil
}

func (m *MemoryStore) Close() error {
	return nil
}

// Len reports the number of stored turns for a session. Test helper.
func (m *MemoryStore) Len(sessionID string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.messages[sessionID])
}
