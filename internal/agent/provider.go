package agent

import (
	"context"
	"encoding/json"

	"github.com/quailsgpt/quailsgpt/pkg/models"
)

// LLMProvider is the completion backend. Implementations stream chunks
// through the returned channel and close it when the completion ends.
type LLMProvider interface {
	// Complete streams a completion for the request. The channel carries
	// text and tool-call chunks and is closed after the final chunk.
	Complete(ctx context.Context, req *CompletionRequest) (<-chan *CompletionChunk, error)

	// Name returns the provider identifier.
	Name() string

	// Models lists the models this provider can serve.
	Models() []Model

	// SupportsTools reports whether the provider accepts tool definitions.
	SupportsTools() bool
}

// CompletionRequest is one completion call.
type CompletionRequest struct {
	Model     string              `json:"model,omitempty"`
	System    string              `json:"system,omitempty"`
	Messages  []CompletionMessage `json:"messages"`
	Tools     []Tool              `json:"-"`
	MaxTokens int                 `json:"max_tokens,omitempty"`
}

// CompletionMessage is one turn in a completion request. Role is one of
// user, assistant, system, or tool.
type CompletionMessage struct {
	Role        string              `json:"role"`
	Content     string              `json:"content"`
	ToolCalls   []models.ToolCall   `json:"tool_calls,omitempty"`
	ToolResults []models.ToolResult `json:"tool_results,omitempty"`
	Attachments []models.Attachment `json:"attachments,omitempty"`
}

// CompletionChunk is one streamed piece of a completion. Exactly one of
// Text, ToolCall, Done, or Error is meaningful per chunk; token counts
// ride along on whichever chunk the provider learned them from.
type CompletionChunk struct {
	Text         string
	ToolCall     *models.ToolCall
	Done         bool
	Error        error
	InputTokens  int
	OutputTokens int
}

// Model describes a servable model.
type Model struct {
	ID             string `json:"id"`
	Name           string `json:"name"`
	ContextSize    int    `json:"context_size,omitempty"`
	SupportsVision bool   `json:"supports_vision,omitempty"`
}

// Tool is an executable capability exposed to the model.
type Tool interface {
	// Name returns the tool identifier the model calls it by.
	Name() string

	// Description tells the model what the tool does.
	Description() string

	// Schema returns the JSON schema for the tool's parameters.
	Schema() json.RawMessage

	// Execute runs the tool. Recoverable failures are reported through
	// ToolResult.IsError so the model can observe them.
	Execute(ctx context.Context, params json.RawMessage) (*ToolResult, error)
}

// ToolResult is the outcome of one tool execution.
type ToolResult struct {
	Content string `json:"content"`
	IsError bool   `json:"is_error,omitempty"`
}

// ResponseChunk is one piece of the loop's output stream.
type ResponseChunk struct {
	Text  string
	Error error
}
