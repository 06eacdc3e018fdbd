package websearch

import (
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/quailsgpt/quailsgpt/internal/agent"
)

func TestExecuteRejectsMissingQuery(t *testing.T) {
	tool := New(nil, nil)
	res, err := tool.Execute(context.Background(), json.RawMessage(`{}`))
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if !res.IsError || !strings.Contains(res.Content, "required") {
		t.Errorf("result = %+v", res)
	}
}

func TestExecuteRejectsMalformedParams(t *testing.T) {
	tool := New(nil, nil)
	res, err := tool.Execute(context.Background(), json.RawMessage(`not json`))
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if !res.IsError {
		t.Errorf("result = %+v", res)
	}
}

func TestCacheRoundTripAndExpiry(t *testing.T) {
	tool := New(&Config{CacheTTL: 1}, nil)
	response := &SearchResponse{Query: "quail", ResultCount: 1, Results: []SearchResult{{Title: "Quail"}}}

	key := tool.cacheKey(&SearchParams{Query: "quail", ResultCount: 5})
	tool.putInCache(key, response)

	if got := tool.getFromCache(key); got == nil || got.Query != "quail" {
		t.Fatalf("getFromCache = %+v", got)
	}

	// Force expiry.
	tool.cacheMu.Lock()
	tool.cache[key].expiresAt = time.Now().Add(-time.Second)
	tool.cacheMu.Unlock()
	if got := tool.getFromCache(key); got != nil {
		t.Errorf("expired entry still served: %+v", got)
	}
}

func TestSchemaRequiresQuery(t *testing.T) {
	tool := New(nil, nil)
	var schema struct {
		Required []string `json:"required"`
	}
	if err := json.Unmarshal(tool.Schema(), &schema); err != nil {
		t.Fatalf("unmarshal schema: %v", err)
	}
	if len(schema.Required) != 1 || schema.Required[0] != "query" {
		t.Errorf("required = %v", schema.Required)
	}
}

// summaryProvider returns a fixed completion for any request.
type summaryProvider struct {
	text string
}

func (p *summaryProvider) Complete(ctx context.Context, req *agent.CompletionRequest) (<-chan *agent.CompletionChunk, error) {
	ch := make(chan *agent.CompletionChunk, 2)
	ch <- &agent.CompletionChunk{Text: p.text}
	ch <- &agent.CompletionChunk{Done: true}
	close(ch)
	return ch, nil
}

func (p *summaryProvider) Name() string { return "fake" }

func (p *summaryProvider) Models() []agent.Model { return nil }

func (p *summaryProvider) SupportsTools() bool { return false }

func TestSummarizerCollectsText(t *testing.T) {
	summarizer := NewSummarizer(&summaryProvider{text: "  quail migrate seasonally  "})
	summary, err := summarizer.Summarize(context.Background(), &SearchResponse{
		Query:   "quail migration",
		Results: []SearchResult{{Title: "Quail", URL: "https://example.org", Snippet: "..."}},
	})
	if err != nil {
		t.Fatalf("Summarize: %v", err)
	}
	if summary != "quail migrate seasonally" {
		t.Errorf("summary = %q", summary)
	}
}
