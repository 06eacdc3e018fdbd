// Package agent runs the tool-augmented completion loop.
//
// The loop operates as a state machine: stream a completion, execute any
// tool calls the model requested, feed the results back, and repeat until
// the model answers without tools or the iteration limit is reached. Only
// the final answer's text reaches the output stream; text produced on
// iterations that also requested tools stays internal to the loop.
package agent

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"github.com/quailsgpt/quailsgpt/pkg/models"
)

// processBufferSize is the output channel buffer.
const processBufferSize = 32

// MaxResponseTextSize caps accumulated response text per iteration (1MB).
const MaxResponseTextSize = 1 << 20

// MaxToolCallsPerIteration caps tool calls collected from one completion.
const MaxToolCallsPerIteration = 16

// LoopConfig configures the completion loop.
type LoopConfig struct {
	// Model is the default model for completion requests.
	Model string

	// System is the default system prompt.
	System string

	// MaxTokens caps each completion. Default: 1024.
	MaxTokens int

	// MaxIterations limits tool use rounds. Default: 5.
	MaxIterations int
}

// DefaultLoopConfig returns the default loop configuration.
func DefaultLoopConfig() *LoopConfig {
	return &LoopConfig{
		MaxTokens:     1024,
		MaxIterations: 5,
	}
}

func sanitizeLoopConfig(config *LoopConfig) *LoopConfig {
	if config == nil {
		return DefaultLoopConfig()
	}
	cfg := *config
	defaults := DefaultLoopConfig()
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = defaults.MaxTokens
	}
	if cfg.MaxIterations <= 0 {
		cfg.MaxIterations = defaults.MaxIterations
	}
	return &cfg
}

// Loop drives multi-turn completions against a provider, executing tools
// between rounds. When the registry is empty the loop degrades to a single
// pass-through completion.
type Loop struct {
	provider LLMProvider
	registry *ToolRegistry
	config   *LoopConfig
	logger   *slog.Logger
}

// NewLoop creates a loop over the given provider and tool registry.
// A nil config uses DefaultLoopConfig.
func NewLoop(provider LLMProvider, registry *ToolRegistry, config *LoopConfig, logger *slog.Logger) *Loop {
	if registry == nil {
		registry = NewToolRegistry()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Loop{
		provider: provider,
		registry: registry,
		config:   sanitizeLoopConfig(config),
		logger:   logger,
	}
}

// loopState tracks one run of the loop.
type loopState struct {
	phase     LoopPhase
	iteration int
	messages  []CompletionMessage

	// finalText holds the text chunks of the iteration currently being
	// streamed. It is flushed to the output only when the iteration
	// finishes without tool calls.
	finalText []string
}

// Run executes the loop over the assembled conversation and streams the
// final answer through the returned channel. The channel is closed when
// the run completes or fails; a failure is delivered as a chunk with a
// non-nil Error before close.
func (l *Loop) Run(ctx context.Context, messages []CompletionMessage) (<-chan *ResponseChunk, error) {
	if l.provider == nil {
		return nil, ErrNoProvider
	}
	if len(messages) == 0 {
		return nil, fmt.Errorf("no messages to complete")
	}

	chunks := make(chan *ResponseChunk, processBufferSize)

	go func() {
		defer close(chunks)

		state := &loopState{
			phase:    PhaseInit,
			messages: messages,
		}

		for state.iteration < l.config.MaxIterations {
			select {
			case <-ctx.Done():
				chunks <- &ResponseChunk{Error: &LoopError{
					Phase:     state.phase,
					Iteration: state.iteration,
					Cause:     ctx.Err(),
				}}
				return
			default:
			}

			state.phase = PhaseStream
			toolCalls, err := l.streamPhase(ctx, state)
			if err != nil {
				chunks <- &ResponseChunk{Error: &LoopError{
					Phase:     PhaseStream,
					Iteration: state.iteration,
					Cause:     err,
				}}
				return
			}

			if len(toolCalls) == 0 {
				// Final answer: flush the buffered text downstream.
				for _, text := range state.finalText {
					chunks <- &ResponseChunk{Text: text}
				}
				state.phase = PhaseComplete
				return
			}

			state.phase = PhaseExecuteTools
			results := l.executeToolsPhase(ctx, toolCalls)

			state.messages = append(state.messages,
				CompletionMessage{
					Role:      "assistant",
					Content:   strings.Join(state.finalText, ""),
					ToolCalls: toolCalls,
				},
				CompletionMessage{
					Role:        "tool",
					ToolResults: results,
				},
			)
			state.finalText = nil
			state.iteration++
		}

		chunks <- &ResponseChunk{Error: &LoopError{
			Phase:     state.phase,
			Iteration: state.iteration,
			Cause:     ErrMaxIterations,
			Message:   fmt.Sprintf("reached max iterations: %d", l.config.MaxIterations),
		}}
	}()

	return chunks, nil
}

// streamPhase runs one completion and collects the text and tool calls it
// produced. Text is buffered into state.finalText, not emitted.
func (l *Loop) streamPhase(ctx context.Context, state *loopState) ([]models.ToolCall, error) {
	req := &CompletionRequest{
		Model:     l.config.Model,
		System:    l.config.System,
		Messages:  state.messages,
		MaxTokens: l.config.MaxTokens,
	}
	if l.provider.SupportsTools() {
		req.Tools = l.registry.AsLLMTools()
	}

	completion, err := l.provider.Complete(ctx, req)
	if err != nil {
		return nil, err
	}

	var toolCalls []models.ToolCall
	var textSize int
	for chunk := range completion {
		if chunk.Error != nil {
			return nil, chunk.Error
		}
		if chunk.Text != "" {
			if textSize+len(chunk.Text) > MaxResponseTextSize {
				return nil, fmt.Errorf("response text exceeds maximum size of %d bytes", MaxResponseTextSize)
			}
			textSize += len(chunk.Text)
			state.finalText = append(state.finalText, chunk.Text)
		}
		if chunk.ToolCall != nil {
			if len(toolCalls) >= MaxToolCallsPerIteration {
				return nil, fmt.Errorf("tool calls exceed maximum of %d per iteration", MaxToolCallsPerIteration)
			}
			toolCalls = append(toolCalls, *chunk.ToolCall)
		}
	}

	return toolCalls, nil
}

// executeToolsPhase runs the requested tools one at a time, in request
// order. Every call produces a result; failures come back as error
// results for the model to observe.
func (l *Loop) executeToolsPhase(ctx context.Context, toolCalls []models.ToolCall) []models.ToolResult {
	results := make([]models.ToolResult, len(toolCalls))
	for i := range toolCalls {
		if toolCalls[i].ID == "" {
			toolCalls[i].ID = uuid.NewString()
		}
		tc := toolCalls[i]

		l.logger.Debug("executing tool", "tool", tc.Name, "tool_call_id", tc.ID)
		res := l.registry.Execute(ctx, tc.Name, tc.Input)
		if res.IsError {
			l.logger.Warn("tool failed", "tool", tc.Name, "tool_call_id", tc.ID, "error", res.Content)
		}

		results[i] = models.ToolResult{
			ToolCallID: tc.ID,
			Content:    res.Content,
			IsError:    res.IsError,
		}
	}
	return results
}
