package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	json5 "github.com/yosuke-furukawa/json5/encoding/json5"
	"gopkg.in/yaml.v3"
)

// Load reads, env-expands, and parses a config file, then applies defaults
// and validates. The format is chosen by extension: .json/.json5 parse as
// JSON5, everything else as YAML.
func Load(path string) (*Config, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("config path is required")
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	expanded := os.ExpandEnv(string(data))

	cfg := Default()
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json", ".json5":
		if err := json5.Unmarshal([]byte(expanded), cfg); err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
	default:
		if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
	}

	applyDefaults(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyDefaults fills zero values that decoding may have cleared.
func applyDefaults(cfg *Config) {
	def := Default()
	if cfg.Server.Addr == "" {
		cfg.Server.Addr = def.Server.Addr
	}
	if cfg.LLM.Provider == "" {
		cfg.LLM.Provider = def.LLM.Provider
	}
	if cfg.LLM.MaxTokens <= 0 {
		cfg.LLM.MaxTokens = def.LLM.MaxTokens
	}
	if cfg.LLM.MaxIterations <= 0 {
		cfg.LLM.MaxIterations = def.LLM.MaxIterations
	}
	if cfg.History.Mode == "" {
		cfg.History.Mode = def.History.Mode
	}
	if cfg.History.WindowSize <= 0 {
		cfg.History.WindowSize = def.History.WindowSize
	}
	if cfg.Staging.Region == "" {
		cfg.Staging.Region = def.Staging.Region
	}
	if cfg.Staging.SignTTL <= 0 {
		cfg.Staging.SignTTL = def.Staging.SignTTL
	}
	if cfg.Staging.MaxImageBytes <= 0 {
		cfg.Staging.MaxImageBytes = def.Staging.MaxImageBytes
	}
	if cfg.Tools.WebSearch.MaxResults <= 0 {
		cfg.Tools.WebSearch.MaxResults = def.Tools.WebSearch.MaxResults
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = def.Logging.Level
	}
}
