// Package server hosts the HTTP surface: the streaming chat endpoint,
// liveness, and metrics.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/quailsgpt/quailsgpt/internal/agent"
	"github.com/quailsgpt/quailsgpt/internal/auth"
	"github.com/quailsgpt/quailsgpt/internal/history"
	"github.com/quailsgpt/quailsgpt/internal/staging"
)

// Options wires the chat pipeline dependencies.
type Options struct {
	Addr   string
	Gate   *auth.Gate
	Stager *staging.Stager

	// Store is the conversation history backend. Leave nil to run in
	// inline history mode, where prior turns come from the request body
	// and nothing is persisted.
	Store      history.Store
	WindowSize int

	Provider     agent.LLMProvider
	Loop         *agent.Loop
	LoopConfig   *agent.LoopConfig
	ToolsEnabled bool

	Metrics *Metrics
	Logger  *slog.Logger
}

// Server is the HTTP process hosting the chat pipeline.
type Server struct {
	httpServer *http.Server
	handler    http.Handler
	logger     *slog.Logger
}

// New assembles the server from its dependencies.
func New(opts Options) *Server {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	metrics := opts.Metrics
	if metrics == nil {
		metrics = NewMetrics()
	}
	loopConfig := opts.LoopConfig
	if loopConfig == nil {
		loopConfig = agent.DefaultLoopConfig()
	}
	windowSize := opts.WindowSize
	if windowSize <= 0 {
		windowSize = 3
	}

	chat := &chatHandler{
		gate:         opts.Gate,
		stager:       opts.Stager,
		store:        opts.Store,
		windowSize:   windowSize,
		provider:     opts.Provider,
		loop:         opts.Loop,
		loopConfig:   loopConfig,
		toolsEnabled: opts.ToolsEnabled,
		metrics:      metrics,
		logger:       logger,
	}

	mux := http.NewServeMux()
	mux.Handle("/chat", Chain(chat, Recovery(logger), RequestLog(logger)))
	mux.Handle("/metrics", metrics.Handler())
	mux.HandleFunc("/healthz", handleHealthz)

	return &Server{
		httpServer: &http.Server{
			Addr:              opts.Addr,
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		},
		handler: mux,
		logger:  logger,
	}
}

// Handler exposes the routing table, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Start listens and serves in the background. It returns once the
// listener is bound, so a failed bind is reported synchronously.
func (s *Server) Start() error {
	listener, err := net.Listen("tcp", s.httpServer.Addr)
	if err != nil {
		return fmt.Errorf("http listen: %w", err)
	}

	s.logger.Info("starting http server", "addr", listener.Addr().String())
	go func() {
		if err := s.httpServer.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("http server error", "error", err)
		}
	}()
	return nil
}

// Shutdown drains in-flight requests and stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

func handleHealthz(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(`{"status":"ok"}`))
}
