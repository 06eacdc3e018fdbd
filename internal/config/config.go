// Package config loads and validates the server configuration.
//
// Configuration is a single YAML or JSON5 file. Environment variables are
// expanded before parsing, so secrets can be referenced as ${VAR} instead of
// being written into the file.
package config

import (
	"fmt"
	"strings"
	"time"
)

// Config is the root configuration.
type Config struct {
	Server  ServerConfig  `json:"server" yaml:"server"`
	Auth    AuthConfig    `json:"auth" yaml:"auth"`
	LLM     LLMConfig     `json:"llm" yaml:"llm"`
	History HistoryConfig `json:"history" yaml:"history"`
	Staging StagingConfig `json:"staging" yaml:"staging"`
	Tools   ToolsConfig   `json:"tools" yaml:"tools"`
	Logging LoggingConfig `json:"logging" yaml:"logging"`
}

// ServerConfig configures the HTTP listener.
type ServerConfig struct {
	Addr string `json:"addr" yaml:"addr"`
}

// AuthConfig holds the shared-secret credential pair. The expected
// authorization header is derived from Identifier and Passphrase.
type AuthConfig struct {
	Identifier string `json:"identifier" yaml:"identifier"`
	Passphrase string `json:"passphrase" yaml:"passphrase"`
}

// LLMConfig selects and configures the completion provider.
type LLMConfig struct {
	// Provider is "anthropic" or "openai".
	Provider string `json:"provider" yaml:"provider"`
	APIKey   string `json:"api_key" yaml:"api_key"`
	BaseURL  string `json:"base_url" yaml:"base_url"`
	Model    string `json:"model" yaml:"model"`
	// MaxTokens bounds each completion response.
	MaxTokens int `json:"max_tokens" yaml:"max_tokens"`
	// SystemPrompt sets the assistant persona and language policy.
	SystemPrompt string `json:"system_prompt" yaml:"system_prompt"`
	// MaxIterations bounds the agentic tool loop.
	MaxIterations int `json:"max_iterations" yaml:"max_iterations"`
}

// HistoryConfig configures the conversation history adapter.
//
// Mode selects where the conversation window comes from. The modes are
// mutually exclusive per deployment:
//   - "sqlite": turns are persisted in a local SQLite database keyed by
//     session id, and the window is loaded from it.
//   - "memory": like sqlite but process-local, for tests and dev runs.
//   - "inline": the caller supplies prior turns in the request body and
//     nothing is persisted server-side.
type HistoryConfig struct {
	Mode string `json:"mode" yaml:"mode"`
	Path string `json:"path" yaml:"path"`
	// WindowSize is the number of most-recent turns included in the prompt.
	WindowSize int `json:"window_size" yaml:"window_size"`
}

// StagingConfig configures the image staging object store.
type StagingConfig struct {
	Bucket          string `json:"bucket" yaml:"bucket"`
	Region          string `json:"region" yaml:"region"`
	Endpoint        string `json:"endpoint" yaml:"endpoint"`
	Prefix          string `json:"prefix" yaml:"prefix"`
	AccessKeyID     string `json:"access_key_id" yaml:"access_key_id"`
	SecretAccessKey string `json:"secret_access_key" yaml:"secret_access_key"`
	UsePathStyle    bool   `json:"use_path_style" yaml:"use_path_style"`
	// SignTTL is how long presigned retrieval URLs stay valid.
	SignTTL time.Duration `json:"sign_ttl" yaml:"sign_ttl"`
	// MaxImageBytes caps a single fetched image.
	MaxImageBytes int64 `json:"max_image_bytes" yaml:"max_image_bytes"`
}

// ToolsConfig enables and configures agent tools.
type ToolsConfig struct {
	// Enabled turns the agentic tool loop on. When false every request runs
	// in direct (single completion) mode.
	Enabled bool `json:"enabled" yaml:"enabled"`

	ImageGen  ImageGenConfig  `json:"image_gen" yaml:"image_gen"`
	Weather   WeatherConfig   `json:"weather" yaml:"weather"`
	WebSearch WebSearchConfig `json:"web_search" yaml:"web_search"`
}

// ImageGenConfig configures the image generation tool.
type ImageGenConfig struct {
	Enabled bool   `json:"enabled" yaml:"enabled"`
	APIKey  string `json:"api_key" yaml:"api_key"`
	BaseURL string `json:"base_url" yaml:"base_url"`
}

// WeatherConfig configures the city weather tool.
type WeatherConfig struct {
	Enabled bool   `json:"enabled" yaml:"enabled"`
	BaseURL string `json:"base_url" yaml:"base_url"`
}

// WebSearchConfig configures the web search tool.
type WebSearchConfig struct {
	Enabled bool `json:"enabled" yaml:"enabled"`
	// MaxResults is the number of search results fetched per query.
	MaxResults int `json:"max_results" yaml:"max_results"`
	// Summarize runs fetched page content through the main completion
	// provider before returning it to the loop.
	Summarize bool `json:"summarize" yaml:"summarize"`
}

// LoggingConfig configures structured logging.
type LoggingConfig struct {
	Level string `json:"level" yaml:"level"` // debug, info, warn, error
}

// Default returns a configuration with all defaults applied.
func Default() *Config {
	return &Config{
		Server: ServerConfig{Addr: "127.0.0.1:8700"},
		LLM: LLMConfig{
			Provider:      "anthropic",
			MaxTokens:     1024,
			MaxIterations: 5,
		},
		History: HistoryConfig{
			Mode:       "sqlite",
			Path:       "quailsgpt.db",
			WindowSize: 3,
		},
		Staging: StagingConfig{
			Region:        "us-east-1",
			SignTTL:       15 * time.Minute,
			MaxImageBytes: 20 << 20,
		},
		Tools: ToolsConfig{
			WebSearch: WebSearchConfig{MaxResults: 5, Summarize: true},
		},
		Logging: LoggingConfig{Level: "info"},
	}
}

// Validate checks the configuration for fields the server cannot run without.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Auth.Identifier) == "" || strings.TrimSpace(c.Auth.Passphrase) == "" {
		return fmt.Errorf("auth: identifier and passphrase are required")
	}
	switch c.LLM.Provider {
	case "anthropic", "openai":
	default:
		return fmt.Errorf("llm: unknown provider %q", c.LLM.Provider)
	}
	if strings.TrimSpace(c.LLM.APIKey) == "" {
		return fmt.Errorf("llm: api key is required")
	}
	switch c.History.Mode {
	case "sqlite", "memory", "inline":
	default:
		return fmt.Errorf("history: unknown mode %q", c.History.Mode)
	}
	if c.History.Mode == "sqlite" && strings.TrimSpace(c.History.Path) == "" {
		return fmt.Errorf("history: path is required for sqlite mode")
	}
	if c.History.WindowSize <= 0 {
		return fmt.Errorf("history: window size must be positive")
	}
	if c.LLM.MaxIterations <= 0 {
		return fmt.Errorf("llm: max iterations must be positive")
	}
	return nil
}
