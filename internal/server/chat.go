package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/quailsgpt/quailsgpt/internal/agent"
	"github.com/quailsgpt/quailsgpt/internal/auth"
	"github.com/quailsgpt/quailsgpt/internal/history"
	"github.com/quailsgpt/quailsgpt/internal/prompt"
	"github.com/quailsgpt/quailsgpt/internal/staging"
	"github.com/quailsgpt/quailsgpt/pkg/models"
)

// maxRequestBodyBytes caps the inbound request body (1MB).
const maxRequestBodyBytes = 1 << 20

// ChatRequest is one inbound user turn.
type ChatRequest struct {
	Input     string   `json:"input"`
	ImageURLs []string `json:"imageUrls,omitempty"`
	SessionID string   `json:"sessionId,omitempty"`

	// History carries prior turns when the deployment runs in inline
	// history mode. Ignored when a server-side store is configured.
	History []InlineTurn `json:"history,omitempty"`
}

// InlineTurn is one caller-supplied prior turn.
type InlineTurn struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// chatHandler runs the whole pipeline for one turn: credential gate,
// media staging, history window, prompt assembly, completion, stream.
type chatHandler struct {
	gate   *auth.Gate
	stager *staging.Stager

	// store is nil in inline history mode; then the window comes from
	// the request body and nothing is persisted.
	store      history.Store
	windowSize int

	provider     agent.LLMProvider
	loop         *agent.Loop
	loopConfig   *agent.LoopConfig
	toolsEnabled bool

	metrics *Metrics
	logger  *slog.Logger
}

func (h *chatHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	ctx := r.Context()
	start := time.Now()
	outcome := "success"
	defer func() { h.metrics.RecordRequest(outcome, time.Since(start)) }()

	// The stream must terminate exactly once on every exit path, the
	// deferred End covers them all.
	em := NewEmitter(w)
	defer em.End()

	if err := h.gate.Check(r.Header.Get("Authorization")); err != nil {
		// No output, no side effects: the caller only observes an
		// empty, closed stream.
		h.logger.Warn("credential check failed", "remote", r.RemoteAddr)
		outcome = "auth_failed"
		return
	}

	req, err := decodeChatRequest(r)
	if err != nil {
		h.logger.Warn("malformed chat request", "error", err)
		outcome = "bad_request"
		return
	}
	if req == nil || (strings.TrimSpace(req.Input) == "" && len(req.ImageURLs) == 0) {
		// An empty turn is a valid no-op: empty stream, nothing stored.
		outcome = "noop"
		return
	}

	sessionID := req.SessionID
	if sessionID == "" {
		sessionID = "default"
	}

	var attachments []models.Attachment
	if len(req.ImageURLs) > 0 {
		stagingStart := time.Now()
		attachments, err = h.stager.Stage(ctx, req.ImageURLs)
		h.metrics.ObserveStaging(time.Since(stagingStart))
		if err != nil {
			h.logger.Error("media staging failed", "session_id", sessionID, "error", err)
			outcome = "staging_error"
			return
		}
	}

	turn := &models.Message{
		ID:          uuid.NewString(),
		SessionID:   sessionID,
		Role:        models.RoleUser,
		Content:     req.Input,
		Attachments: attachments,
		CreatedAt:   time.Now().UTC(),
	}

	window, err := h.window(ctx, sessionID, req.History)
	if err != nil {
		h.logger.Error("history lookup failed", "session_id", sessionID, "error", err)
		outcome = "history_error"
		return
	}

	messages := prompt.Assemble(window, turn)

	// Images force direct mode: one completion, tokens forwarded as they
	// arrive. The agentic loop only runs for text-only turns with tools
	// enabled.
	var reply string
	if len(attachments) > 0 || !h.toolsEnabled {
		reply, err = h.streamDirect(ctx, em, messages)
	} else {
		reply, err = h.streamAgentic(ctx, em, messages)
	}
	if err != nil {
		if errors.Is(err, context.Canceled) {
			h.logger.Debug("client went away", "session_id", sessionID)
			outcome = "client_gone"
			return
		}
		h.logger.Error("completion failed", "session_id", sessionID, "error", err)
		outcome = "loop_error"
		return
	}

	if h.store != nil {
		h.persistTurns(ctx, sessionID, turn, reply)
	}
}

// window materializes the conversation window for the turn. Inline mode
// trims the caller-supplied turns; persisted modes load from the store.
func (h *chatHandler) window(ctx context.Context, sessionID string, inline []InlineTurn) ([]*models.Message, error) {
	if h.store == nil {
		msgs := make([]*models.Message, 0, len(inline))
		for _, t := range inline {
			role := models.Role(t.Role)
			if role == "" {
				role = models.RoleUser
			}
			msgs = append(msgs, &models.Message{
				SessionID: sessionID,
				Role:      role,
				Content:   t.Content,
			})
		}
		return history.Window(msgs, h.windowSize), nil
	}
	return h.store.GetHistory(ctx, sessionID, h.windowSize)
}

// streamDirect runs a single completion and forwards every text chunk to
// the client as it arrives.
func (h *chatHandler) streamDirect(ctx context.Context, em *Emitter, messages []agent.CompletionMessage) (string, error) {
	chunks, err := h.provider.Complete(ctx, &agent.CompletionRequest{
		Model:     h.loopConfig.Model,
		System:    h.loopConfig.System,
		Messages:  messages,
		MaxTokens: h.loopConfig.MaxTokens,
	})
	if err != nil {
		return "", err
	}

	var sb strings.Builder
	for chunk := range chunks {
		if chunk.Error != nil {
			return sb.String(), chunk.Error
		}
		if chunk.Text != "" {
			em.Write(chunk.Text)
			sb.WriteString(chunk.Text)
		}
	}
	return sb.String(), nil
}

// streamAgentic runs the tool loop and forwards the final answer.
func (h *chatHandler) streamAgentic(ctx context.Context, em *Emitter, messages []agent.CompletionMessage) (string, error) {
	chunks, err := h.loop.Run(ctx, messages)
	if err != nil {
		return "", err
	}

	var sb strings.Builder
	for chunk := range chunks {
		if chunk.Error != nil {
			return sb.String(), chunk.Error
		}
		if chunk.Text != "" {
			em.Write(chunk.Text)
			sb.WriteString(chunk.Text)
		}
	}
	return sb.String(), nil
}

// persistTurns appends the user turn and the assistant's final answer.
// Appends happen only after a complete answer, never mid-loop, so a
// crashed request leaves no half-written exchange behind. Failures are
// logged, not surfaced: the client already has its answer.
func (h *chatHandler) persistTurns(ctx context.Context, sessionID string, turn *models.Message, reply string) {
	if err := h.store.AppendMessage(ctx, sessionID, turn); err != nil {
		h.logger.Error("persist user turn failed", "session_id", sessionID, "error", err)
		return
	}
	assistant := &models.Message{
		ID:        uuid.NewString(),
		SessionID: sessionID,
		Role:      models.RoleAssistant,
		Content:   reply,
		CreatedAt: time.Now().UTC(),
	}
	if err := h.store.AppendMessage(ctx, sessionID, assistant); err != nil {
		h.logger.Error("persist assistant turn failed", "session_id", sessionID, "error", err)
	}
}

// decodeChatRequest reads and decodes the turn. An empty body is a valid
// no-op and decodes to nil.
func decodeChatRequest(r *http.Request) (*ChatRequest, error) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxRequestBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	if len(bytes.TrimSpace(body)) == 0 {
		return nil, nil
	}
	var req ChatRequest
	if err := json.Unmarshal(body, &req); err != nil {
		return nil, fmt.Errorf("decode body: %w", err)
	}
	return &req, nil
}
