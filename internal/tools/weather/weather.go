// Package weather implements the get_weather_by_city tool. It queries a
// wttr.in style plain-text endpoint for a fixed set of supported cities.
package weather

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/quailsgpt/quailsgpt/internal/agent"
)

const defaultBaseURL = "https://wttr.in"

// maxReportBytes bounds the report read from the weather endpoint.
const maxReportBytes = 64 * 1024

// supportedCities is the closed set of city names the tool accepts. The
// schema enum keeps the model from inventing locations the endpoint may
// not resolve.
var supportedCities = []string{
	"Amsterdam",
	"Berlin",
	"London",
	"New York",
	"Paris",
	"San Francisco",
	"Singapore",
	"Sydney",
	"Tokyo",
	"Toronto",
}

// Config holds weather tool configuration.
type Config struct {
	// BaseURL overrides the weather endpoint. Default: https://wttr.in.
	BaseURL string

	// Timeout bounds a single request. Default: 10s.
	Timeout time.Duration
}

// Params are the model-supplied tool parameters.
type Params struct {
	City string `json:"city"`
}

// Tool implements agent.Tool for city weather lookups.
type Tool struct {
	httpClient *http.Client
	baseURL    string
}

// New creates a weather tool.
func New(config *Config) *Tool {
	if config == nil {
		config = &Config{}
	}
	baseURL := strings.TrimRight(config.BaseURL, "/")
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	timeout := config.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Tool{
		httpClient: &http.Client{Timeout: timeout},
		baseURL:    baseURL,
	}
}

func (t *Tool) Name() string {
	return "get_weather_by_city"
}

func (t *Tool) Description() string {
	return "Get the current weather for a supported city as a short text report."
}

func (t *Tool) Schema() json.RawMessage {
	cities, _ := json.Marshal(supportedCities)
	schema := fmt.Sprintf(`{
		"type": "object",
		"properties": {
			"city": {
				"type": "string",
				"enum": %s,
				"description": "City to look up"
			}
		},
		"required": ["city"]
	}`, cities)
	return json.RawMessage(schema)
}

// Execute fetches the plain-text weather report for the requested city.
func (t *Tool) Execute(ctx context.Context, params json.RawMessage) (*agent.ToolResult, error) {
	var p Params
	if err := json.Unmarshal(params, &p); err != nil {
		return &agent.ToolResult{
			Content: fmt.Sprintf("Invalid parameters: %v", err),
			IsError: true,
		}, nil
	}
	if !isSupportedCity(p.City) {
		return &agent.ToolResult{
			Content: fmt.Sprintf("Unsupported city: %q", p.City),
			IsError: true,
		}, nil
	}

	report, err := t.fetchReport(ctx, p.City)
	if err != nil {
		return &agent.ToolResult{
			Content: fmt.Sprintf("Weather lookup failed: %v", err),
			IsError: true,
		}, nil
	}
	return &agent.ToolResult{Content: report}, nil
}

func (t *Tool) fetchReport(ctx context.Context, city string) (string, error) {
	// ?format=3 asks wttr.in for a one-line text report.
	reqURL := fmt.Sprintf("%s/%s?format=3", t.baseURL, url.PathEscape(city))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", "curl/8.0")
	req.Header.Set("Accept", "text/plain")

	resp, err := t.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("fetch weather: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("weather endpoint returned status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxReportBytes))
	if err != nil {
		return "", fmt.Errorf("read response: %w", err)
	}
	report := strings.TrimSpace(string(body))
	if report == "" {
		return "", fmt.Errorf("weather endpoint returned an empty report")
	}
	return report, nil
}

func isSupportedCity(city string) bool {
	for _, c := range supportedCities {
		if c == city {
			return true
		}
	}
	return false
}
