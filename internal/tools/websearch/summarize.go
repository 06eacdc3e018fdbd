package websearch

import (
	"context"
	"fmt"
	"strings"

	"github.com/quailsgpt/quailsgpt/internal/agent"
)

// summarizeSystemPrompt instructs the model to condense search results.
const summarizeSystemPrompt = "You condense web search results. Write a short, factual summary of the results below, citing nothing beyond what they contain."

// maxSummaryInputChars bounds the material fed to the summarizer.
const maxSummaryInputChars = 20000

// Summarizer condenses search results into a short summary using the
// configured LLM provider.
type Summarizer struct {
	provider agent.LLMProvider
}

// NewSummarizer creates a summarizer over the given provider.
func NewSummarizer(provider agent.LLMProvider) *Summarizer {
	return &Summarizer{provider: provider}
}

// Summarize runs one non-tool completion over the search results and
// returns the accumulated text.
func (s *Summarizer) Summarize(ctx context.Context, response *SearchResponse) (string, error) {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Query: %s\n\n", response.Query)
	for i, r := range response.Results {
		fmt.Fprintf(&sb, "%d. %s\n%s\n%s\n", i+1, r.Title, r.URL, r.Snippet)
		if r.Content != "" {
			sb.WriteString(r.Content)
			sb.WriteString("\n")
		}
		sb.WriteString("\n")
		if sb.Len() > maxSummaryInputChars {
			break
		}
	}
	input := sb.String()
	if len(input) > maxSummaryInputChars {
		input = input[:maxSummaryInputChars]
	}

	chunks, err := s.provider.Complete(ctx, &agent.CompletionRequest{
		System: summarizeSystemPrompt,
		Messages: []agent.CompletionMessage{
			{Role: "user", Content: input},
		},
		MaxTokens: 512,
	})
	if err != nil {
		return "", fmt.Errorf("summarize: %w", err)
	}

	var out strings.Builder
	for chunk := range chunks {
		if chunk.Error != nil {
			return "", fmt.Errorf("summarize: %w", chunk.Error)
		}
		out.WriteString(chunk.Text)
	}
	return strings.TrimSpace(out.String()), nil
}
