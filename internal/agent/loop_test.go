package agent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/quailsgpt/quailsgpt/pkg/models"
)

// fakeProvider replays a scripted sequence of completions, one per call,
// and records every request it received.
type fakeProvider struct {
	mu       sync.Mutex
	script   [][]*CompletionChunk
	requests []*CompletionRequest
	err      error
}

func (p *fakeProvider) Complete(ctx context.Context, req *CompletionRequest) (<-chan *CompletionChunk, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return nil, p.err
	}
	p.requests = append(p.requests, req)

	var chunks []*CompletionChunk
	if len(p.script) > 0 {
		chunks = p.script[0]
		p.script = p.script[1:]
	}

	ch := make(chan *CompletionChunk, len(chunks)+1)
	for _, c := range chunks {
		ch <- c
	}
	ch <- &CompletionChunk{Done: true}
	close(ch)
	return ch, nil
}

func (p *fakeProvider) Name() string { return "fake" }

func (p *fakeProvider) Models() []Model { return nil }

func (p *fakeProvider) SupportsTools() bool { return true }

func (p *fakeProvider) requestCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.requests)
}

func (p *fakeProvider) request(i int) *CompletionRequest {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.requests[i]
}

// echoTool records invocations and returns a fixed payload.
type echoTool struct {
	mu     sync.Mutex
	calls  []json.RawMessage
	result string
}

func (t *echoTool) Name() string        { return "echo" }
func (t *echoTool) Description() string { return "echoes input" }

func (t *echoTool) Schema() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"text": {"type": "string"}
		},
		"required": ["text"]
	}`)
}

func (t *echoTool) Execute(ctx context.Context, params json.RawMessage) (*ToolResult, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.calls = append(t.calls, params)
	return &ToolResult{Content: t.result}, nil
}

func (t *echoTool) callCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.calls)
}

func userMessages(content string) []CompletionMessage {
	return []CompletionMessage{{Role: "user", Content: content}}
}

func collect(t *testing.T, chunks <-chan *ResponseChunk) (string, error) {
	t.Helper()
	var sb strings.Builder
	timeout := time.After(5 * time.Second)
	for {
		select {
		case chunk, ok := <-chunks:
			if !ok {
				return sb.String(), nil
			}
			if chunk.Error != nil {
				return sb.String(), chunk.Error
			}
			sb.WriteString(chunk.Text)
		case <-timeout:
			t.Fatal("timed out waiting for chunks")
		}
	}
}

func TestLoopDirectAnswer(t *testing.T) {
	provider := &fakeProvider{script: [][]*CompletionChunk{
		{{Text: "Hello"}, {Text: ", world"}},
	}}
	loop := NewLoop(provider, nil, nil, nil)

	chunks, err := loop.Run(context.Background(), userMessages("hi"))
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	text, err := collect(t, chunks)
	if err != nil {
		t.Fatalf("collect: %v", err)
	}
	if text != "Hello, world" {
		t.Errorf("text = %q", text)
	}
	if got := provider.requestCount(); got != 1 {
		t.Errorf("completions = %d, want 1", got)
	}
}

func TestLoopExecutesToolAndFeedsResultBack(t *testing.T) {
	provider := &fakeProvider{script: [][]*CompletionChunk{
		{
			{Text: "Let me check."},
			{ToolCall: &models.ToolCall{ID: "tc-1", Name: "echo", Input: json.RawMessage(`{"text":"ping"}`)}},
		},
		{{Text: "The answer is pong."}},
	}}
	tool := &echoTool{result: "pong"}
	registry := NewToolRegistry()
	registry.Register(tool)
	loop := NewLoop(provider, registry, nil, nil)

	chunks, err := loop.Run(context.Background(), userMessages("ping?"))
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	text, err := collect(t, chunks)
	if err != nil {
		t.Fatalf("collect: %v", err)
	}

	if text != "The answer is pong." {
		t.Errorf("text = %q, want only the final answer", text)
	}
	if got := tool.callCount(); got != 1 {
		t.Fatalf("tool calls = %d, want 1", got)
	}
	if got := provider.requestCount(); got != 2 {
		t.Fatalf("completions = %d, want 2", got)
	}

	// The second completion must carry the scratchpad: the assistant's
	// tool request followed by the tool's result.
	second := provider.request(1)
	n := len(second.Messages)
	if n < 3 {
		t.Fatalf("second request has %d messages", n)
	}
	assistant := second.Messages[n-2]
	if assistant.Role != "assistant" || len(assistant.ToolCalls) != 1 || assistant.ToolCalls[0].ID != "tc-1" {
		t.Errorf("assistant scratchpad message = %+v", assistant)
	}
	toolMsg := second.Messages[n-1]
	if toolMsg.Role != "tool" || len(toolMsg.ToolResults) != 1 {
		t.Fatalf("tool scratchpad message = %+v", toolMsg)
	}
	if res := toolMsg.ToolResults[0]; res.ToolCallID != "tc-1" || res.Content != "pong" || res.IsError {
		t.Errorf("tool result = %+v", res)
	}
}

func TestLoopStopsAtMaxIterations(t *testing.T) {
	// Every completion requests another tool call, so the loop can never
	// settle on a final answer.
	call := func() []*CompletionChunk {
		return []*CompletionChunk{
			{ToolCall: &models.ToolCall{ID: "tc", Name: "echo", Input: json.RawMessage(`{"text":"again"}`)}},
		}
	}
	provider := &fakeProvider{script: [][]*CompletionChunk{
		call(), call(), call(), call(), call(), call(),
	}}
	registry := NewToolRegistry()
	registry.Register(&echoTool{result: "ok"})
	loop := NewLoop(provider, registry, &LoopConfig{MaxIterations: 3}, nil)

	chunks, err := loop.Run(context.Background(), userMessages("loop forever"))
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	_, err = collect(t, chunks)
	if !errors.Is(err, ErrMaxIterations) {
		t.Fatalf("err = %v, want ErrMaxIterations", err)
	}
	var loopErr *LoopError
	if !errors.As(err, &loopErr) {
		t.Fatalf("err = %T, want *LoopError", err)
	}
	if got := provider.requestCount(); got != 3 {
		t.Errorf("completions = %d, want 3", got)
	}
}

func TestLoopInvalidToolParamsBecomeErrorResult(t *testing.T) {
	provider := &fakeProvider{script: [][]*CompletionChunk{
		{
			// "text" is required but missing; validation must fail.
			{ToolCall: &models.ToolCall{ID: "tc-1", Name: "echo", Input: json.RawMessage(`{"bogus":1}`)}},
		},
		{{Text: "I could not use the tool."}},
	}}
	tool := &echoTool{result: "unused"}
	registry := NewToolRegistry()
	registry.Register(tool)
	loop := NewLoop(provider, registry, nil, nil)

	chunks, err := loop.Run(context.Background(), userMessages("try"))
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	text, err := collect(t, chunks)
	if err != nil {
		t.Fatalf("collect: %v", err)
	}
	if text != "I could not use the tool." {
		t.Errorf("text = %q", text)
	}
	if got := tool.callCount(); got != 0 {
		t.Errorf("tool calls = %d, want 0 (validation must reject before invoke)", got)
	}

	second := provider.request(1)
	res := second.Messages[len(second.Messages)-1].ToolResults[0]
	if !res.IsError {
		t.Errorf("tool result = %+v, want IsError", res)
	}
}

func TestLoopUnknownToolBecomesErrorResult(t *testing.T) {
	provider := &fakeProvider{script: [][]*CompletionChunk{
		{{ToolCall: &models.ToolCall{ID: "tc-1", Name: "missing", Input: json.RawMessage(`{}`)}}},
		{{Text: "done"}},
	}}
	loop := NewLoop(provider, NewToolRegistry(), nil, nil)

	chunks, err := loop.Run(context.Background(), userMessages("x"))
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if _, err := collect(t, chunks); err != nil {
		t.Fatalf("collect: %v", err)
	}

	second := provider.request(1)
	res := second.Messages[len(second.Messages)-1].ToolResults[0]
	if !res.IsError || !strings.Contains(res.Content, "tool not found") {
		t.Errorf("tool result = %+v", res)
	}
}

func TestLoopStreamErrorSurfaces(t *testing.T) {
	provider := &fakeProvider{script: [][]*CompletionChunk{
		{{Text: "part"}, {Error: fmt.Errorf("upstream hiccup")}},
	}}
	loop := NewLoop(provider, nil, nil, nil)

	chunks, err := loop.Run(context.Background(), userMessages("x"))
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	text, err := collect(t, chunks)
	if err == nil {
		t.Fatal("collect: expected error")
	}
	if text != "" {
		t.Errorf("text = %q, want no partial text on failed iteration", text)
	}
	var loopErr *LoopError
	if !errors.As(err, &loopErr) || loopErr.Phase != PhaseStream {
		t.Errorf("err = %v", err)
	}
}

func TestLoopNoProvider(t *testing.T) {
	loop := NewLoop(nil, nil, nil, nil)
	if _, err := loop.Run(context.Background(), userMessages("x")); !errors.Is(err, ErrNoProvider) {
		t.Fatalf("err = %v, want ErrNoProvider", err)
	}
}
