// Package websearch implements the web_search tool: a DuckDuckGo query,
// optional content extraction from result pages, and optional LLM
// summarization of what was found.
package websearch

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/quailsgpt/quailsgpt/internal/agent"
)

// maxCacheSize limits cached search responses.
const maxCacheSize = 1000

// Config holds web search tool configuration.
type Config struct {
	// DefaultResultCount is the number of results when the model does
	// not ask for a specific count. Default: 5.
	DefaultResultCount int `json:"default_result_count"`

	// ExtractContent enables fetching full page content for results.
	ExtractContent bool `json:"extract_content"`

	// Summarize enables LLM summarization of the gathered results.
	Summarize bool `json:"summarize"`

	// CacheTTL is the response cache lifetime in seconds. Default: 300.
	CacheTTL int `json:"cache_ttl"`
}

// SearchParams are the model-supplied tool parameters.
type SearchParams struct {
	Query          string `json:"query"`
	ResultCount    int    `json:"result_count,omitempty"`
	ExtractContent bool   `json:"extract_content,omitempty"`
}

// SearchResult is a single result entry.
type SearchResult struct {
	Title   string `json:"title"`
	URL     string `json:"url"`
	Snippet string `json:"snippet"`
	Content string `json:"content,omitempty"`
}

// SearchResponse is the structured tool output.
type SearchResponse struct {
	Query       string         `json:"query"`
	Results     []SearchResult `json:"results"`
	ResultCount int            `json:"result_count"`
	Summary     string         `json:"summary,omitempty"`
}

type cacheEntry struct {
	response  *SearchResponse
	expiresAt time.Time
}

// Tool implements agent.Tool for web searching.
type Tool struct {
	config     *Config
	httpClient *http.Client
	extractor  *ContentExtractor
	summarizer *Summarizer
	cache      map[string]*cacheEntry
	cacheMu    sync.RWMutex
}

// New creates a web search tool. The provider is only used when
// summarization is enabled and may be nil otherwise.
func New(config *Config, provider agent.LLMProvider) *Tool {
	if config == nil {
		config = &Config{}
	}
	if config.DefaultResultCount == 0 {
		config.DefaultResultCount = 5
	}
	if config.CacheTTL == 0 {
		config.CacheTTL = 300
	}

	var summarizer *Summarizer
	if config.Summarize && provider != nil {
		summarizer = NewSummarizer(provider)
	}

	return &Tool{
		config: config,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		extractor:  NewContentExtractor(),
		summarizer: summarizer,
		cache:      make(map[string]*cacheEntry),
	}
}

func (t *Tool) Name() string {
	return "web_search"
}

func (t *Tool) Description() string {
	return "Search the web for current information. Returns result titles, URLs, and snippets, optionally with extracted page content and a summary."
}

func (t *Tool) Schema() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"query": {
				"type": "string",
				"description": "The search query"
			},
			"result_count": {
				"type": "integer",
				"description": "Number of results to return (default: 5, max: 20)",
				"minimum": 1,
				"maximum": 20
			},
			"extract_content": {
				"type": "boolean",
				"description": "Whether to extract full content from result URLs (default: false)"
			}
		},
		"required": ["query"]
	}`)
}

// Execute runs the search, checking the cache first.
func (t *Tool) Execute(ctx context.Context, params json.RawMessage) (*agent.ToolResult, error) {
	var searchParams SearchParams
	if err := json.Unmarshal(params, &searchParams); err != nil {
		return &agent.ToolResult{
			Content: fmt.Sprintf("Invalid parameters: %v", err),
			IsError: true,
		}, nil
	}
	if searchParams.Query == "" {
		return &agent.ToolResult{
			Content: "Query parameter is required",
			IsError: true,
		}, nil
	}
	if searchParams.ResultCount == 0 {
		searchParams.ResultCount = t.config.DefaultResultCount
	} else if searchParams.ResultCount > 20 {
		searchParams.ResultCount = 20
	}
	if !searchParams.ExtractContent {
		searchParams.ExtractContent = t.config.ExtractContent
	}

	cacheKey := t.cacheKey(&searchParams)
	if cached := t.getFromCache(cacheKey); cached != nil {
		return formatResponse(cached), nil
	}

	response, err := t.searchDuckDuckGo(ctx, &searchParams)
	if err != nil {
		return &agent.ToolResult{
			Content: fmt.Sprintf("Search failed: %v", err),
			IsError: true,
		}, nil
	}

	if searchParams.ExtractContent {
		t.extractContentForResults(ctx, response)
	}

	if t.summarizer != nil && len(response.Results) > 0 {
		if summary, err := t.summarizer.Summarize(ctx, response); err == nil {
			response.Summary = summary
		}
	}

	t.putInCache(cacheKey, response)
	return formatResponse(response), nil
}

func formatResponse(response *SearchResponse) *agent.ToolResult {
	output, err := json.MarshalIndent(response, "", "  ")
	if err != nil {
		return &agent.ToolResult{
			Content: fmt.Sprintf("Failed to format response: %v", err),
			IsError: true,
		}
	}
	return &agent.ToolResult{Content: string(output)}
}

func (t *Tool) cacheKey(params *SearchParams) string {
	return fmt.Sprintf("%d:%v:%s", params.ResultCount, params.ExtractContent, params.Query)
}

func (t *Tool) getFromCache(key string) *SearchResponse {
	t.cacheMu.RLock()
	defer t.cacheMu.RUnlock()

	entry, exists := t.cache[key]
	if !exists || time.Now().After(entry.expiresAt) {
		return nil
	}
	return entry.response
}

func (t *Tool) putInCache(key string, response *SearchResponse) {
	t.cacheMu.Lock()
	defer t.cacheMu.Unlock()

	now := time.Now()
	for k, v := range t.cache {
		if now.After(v.expiresAt) {
			delete(t.cache, k)
		}
	}

	// Still at capacity after cleanup: evict entries closest to expiry.
	for len(t.cache) >= maxCacheSize {
		var oldestKey string
		var oldestTime time.Time
		for k, v := range t.cache {
			if oldestKey == "" || v.expiresAt.Before(oldestTime) {
				oldestKey = k
				oldestTime = v.expiresAt
			}
		}
		if oldestKey == "" {
			break
		}
		delete(t.cache, oldestKey)
	}

	t.cache[key] = &cacheEntry{
		response:  response,
		expiresAt: now.Add(time.Duration(t.config.CacheTTL) * time.Second),
	}
}

func (t *Tool) extractContentForResults(ctx context.Context, response *SearchResponse) {
	var wg sync.WaitGroup
	for i := range response.Results {
		wg.Add(1)
		go func(result *SearchResult) {
			defer wg.Done()
			content, err := t.extractor.Extract(ctx, result.URL)
			if err == nil && content != "" {
				result.Content = content
			}
		}(&response.Results[i])
	}
	wg.Wait()
}

// searchDuckDuckGo queries the DuckDuckGo Instant Answer API.
func (t *Tool) searchDuckDuckGo(ctx context.Context, params *SearchParams) (*SearchResponse, error) {
	instantURL := fmt.Sprintf("https://api.duckduckgo.com/?q=%s&format=json&no_html=1", url.QueryEscape(params.Query))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, instantURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", searchUserAgent)

	resp, err := t.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("duckduckgo returned status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	var ddgResp struct {
		AbstractText  string `json:"AbstractText"`
		AbstractURL   string `json:"AbstractURL"`
		Heading       string `json:"Heading"`
		RelatedTopics []struct {
			FirstURL string `json:"FirstURL"`
			Text     string `json:"Text"`
		} `json:"RelatedTopics"`
	}
	if err := json.Unmarshal(body, &ddgResp); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}

	results := make([]SearchResult, 0)
	if ddgResp.AbstractText != "" && ddgResp.AbstractURL != "" {
		results = append(results, SearchResult{
			Title:   ddgResp.Heading,
			URL:     ddgResp.AbstractURL,
			Snippet: ddgResp.AbstractText,
		})
	}
	for i := 0; i < len(ddgResp.RelatedTopics) && len(results) < params.ResultCount; i++ {
		topic := ddgResp.RelatedTopics[i]
		if topic.FirstURL == "" || topic.Text == "" {
			continue
		}
		title := topic.Text
		if len(title) > 100 {
			title = title[:100]
		}
		results = append(results, SearchResult{
			Title:   title,
			URL:     topic.FirstURL,
			Snippet: topic.Text,
		})
	}

	return &SearchResponse{
		Query:       params.Query,
		Results:     results,
		ResultCount: len(results),
	}, nil
}
