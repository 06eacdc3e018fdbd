// Package main provides the CLI entry point for the quailsgpt chat relay.
//
// quailsgpt turns one user turn (text, optional image URLs, session id)
// into a streamed, tool-augmented LLM reply over plain HTTP.
//
// # Basic Usage
//
// Start the server:
//
//	quailsgpt serve --config quailsgpt.yaml
//
// Print the configuration schema:
//
//	quailsgpt config schema
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/quailsgpt/quailsgpt/internal/agent"
	"github.com/quailsgpt/quailsgpt/internal/agent/providers"
	"github.com/quailsgpt/quailsgpt/internal/auth"
	"github.com/quailsgpt/quailsgpt/internal/config"
	"github.com/quailsgpt/quailsgpt/internal/history"
	"github.com/quailsgpt/quailsgpt/internal/server"
	"github.com/quailsgpt/quailsgpt/internal/staging"
	"github.com/quailsgpt/quailsgpt/internal/tools/imagegen"
	"github.com/quailsgpt/quailsgpt/internal/tools/weather"
	"github.com/quailsgpt/quailsgpt/internal/tools/websearch"
)

var version = "dev"

func main() {
	if err := buildRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func buildRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "quailsgpt",
		Short:         "Streamed, tool-augmented chat relay",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.AddCommand(
		buildServeCmd(),
		buildConfigCmd(),
	)
	return rootCmd
}

func buildServeCmd() *cobra.Command {
	var (
		configPath string
		debug      bool
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the chat relay server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), configPath, debug)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "quailsgpt.yaml",
		"Path to YAML or JSON5 configuration file")
	cmd.Flags().BoolVarP(&debug, "debug", "d", false,
		"Enable debug logging (verbose output)")

	return cmd
}

func buildConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Configuration utilities",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "schema",
		Short: "Print the configuration JSON Schema",
		RunE: func(cmd *cobra.Command, args []string) error {
			schema, err := config.JSONSchema()
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), string(schema))
			return nil
		},
	})
	return cmd
}

// runServe loads configuration, wires the pipeline, and serves until a
// shutdown signal arrives.
func runServe(ctx context.Context, configPath string, debug bool) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger := newLogger(cfg.Logging.Level, debug)
	slog.SetDefault(logger)

	logger.Info("starting quailsgpt",
		"version", version,
		"config", configPath,
		"provider", cfg.LLM.Provider,
		"history_mode", cfg.History.Mode,
	)

	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	provider, err := newProvider(cfg)
	if err != nil {
		return fmt.Errorf("init provider: %w", err)
	}

	store, err := newStore(cfg)
	if err != nil {
		return fmt.Errorf("init history store: %w", err)
	}
	if store != nil {
		defer store.Close()
	}

	objectStore, err := staging.NewS3Store(ctx, staging.S3Config{
		Bucket:          cfg.Staging.Bucket,
		Region:          cfg.Staging.Region,
		Endpoint:        cfg.Staging.Endpoint,
		Prefix:          cfg.Staging.Prefix,
		AccessKeyID:     cfg.Staging.AccessKeyID,
		SecretAccessKey: cfg.Staging.SecretAccessKey,
		UsePathStyle:    cfg.Staging.UsePathStyle,
	})
	if err != nil {
		return fmt.Errorf("init object store: %w", err)
	}
	stager := staging.NewStager(objectStore, nil, staging.Config{
		MaxBytes: cfg.Staging.MaxImageBytes,
		SignTTL:  cfg.Staging.SignTTL,
	}, logger)

	registry := agent.NewToolRegistry()
	if cfg.Tools.Enabled {
		if err := registerTools(cfg, provider, registry, logger); err != nil {
			return fmt.Errorf("register tools: %w", err)
		}
	}

	loopConfig := &agent.LoopConfig{
		Model:         cfg.LLM.Model,
		System:        cfg.LLM.SystemPrompt,
		MaxTokens:     cfg.LLM.MaxTokens,
		MaxIterations: cfg.LLM.MaxIterations,
	}

	srv := server.New(server.Options{
		Addr:         cfg.Server.Addr,
		Gate:         auth.NewGate(cfg.Auth.Identifier, cfg.Auth.Passphrase),
		Stager:       stager,
		Store:        store,
		WindowSize:   cfg.History.WindowSize,
		Provider:     provider,
		Loop:         agent.NewLoop(provider, registry, loopConfig, logger),
		LoopConfig:   loopConfig,
		ToolsEnabled: cfg.Tools.Enabled && registry.Len() > 0,
		Logger:       logger,
	})
	if err := srv.Start(); err != nil {
		return err
	}

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	return srv.Shutdown(shutdownCtx)
}

func newLogger(level string, debug bool) *slog.Logger {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	if debug {
		lvl = slog.LevelDebug
	}
	return slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}

func newProvider(cfg *config.Config) (agent.LLMProvider, error) {
	switch cfg.LLM.Provider {
	case "anthropic":
		return providers.NewAnthropicProvider(providers.AnthropicConfig{
			APIKey:       cfg.LLM.APIKey,
			BaseURL:      cfg.LLM.BaseURL,
			DefaultModel: cfg.LLM.Model,
		})
	case "openai":
		return providers.NewOpenAIProvider(providers.OpenAIConfig{
			APIKey:       cfg.LLM.APIKey,
			BaseURL:      cfg.LLM.BaseURL,
			DefaultModel: cfg.LLM.Model,
		})
	default:
		return nil, fmt.Errorf("unknown provider %q", cfg.LLM.Provider)
	}
}

// newStore builds the history backend for the configured mode. Inline
// mode returns nil: the window comes from the request body.
func newStore(cfg *config.Config) (history.Store, error) {
	switch cfg.History.Mode {
	case "sqlite":
		return history.NewSQLiteStore(cfg.History.Path)
	case "memory":
		return history.NewMemoryStore(), nil
	case "inline":
		return nil, nil
	default:
		return nil, fmt.Errorf("unknown history mode %q", cfg.History.Mode)
	}
}

func registerTools(cfg *config.Config, provider agent.LLMProvider, registry *agent.ToolRegistry, logger *slog.Logger) error {
	if cfg.Tools.ImageGen.Enabled {
		tool, err := imagegen.New(imagegen.Config{
			APIKey:  cfg.Tools.ImageGen.APIKey,
			BaseURL: cfg.Tools.ImageGen.BaseURL,
		})
		if err != nil {
			return err
		}
		registry.Register(tool)
	}
	if cfg.Tools.Weather.Enabled {
		registry.Register(weather.New(&weather.Config{
			BaseURL: cfg.Tools.Weather.BaseURL,
		}))
	}
	if cfg.Tools.WebSearch.Enabled {
		registry.Register(websearch.New(&websearch.Config{
			DefaultResultCount: cfg.Tools.WebSearch.MaxResults,
			ExtractContent:     true,
			Summarize:          cfg.Tools.WebSearch.Summarize,
		}, provider))
	}
	logger.Info("tools registered", "count", registry.Len())
	return nil
}
