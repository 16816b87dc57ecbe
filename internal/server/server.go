// Package server exposes Echolot's HTTP API: analysis runs, the reflective
// chat companion, journal retrieval, health probes, and the Prometheus
// metrics endpoint.
//
// The server is a thin transport layer. All analysis semantics live in the
// pipeline orchestrator and the inference client; handlers only decode
// requests, delegate, and shape responses.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/echolotlabs/echolot/internal/health"
	"github.com/echolotlabs/echolot/internal/journal"
	"github.com/echolotlabs/echolot/internal/observe"
	"github.com/echolotlabs/echolot/internal/pipeline"
	"github.com/echolotlabs/echolot/pkg/inference"
)

// Runner executes one analysis run. *pipeline.Orchestrator is the production
// implementation; tests substitute a stub.
type Runner interface {
	Run(ctx context.Context, in pipeline.Input) (pipeline.Result, error)
}

// Compile-time interface check.
var _ Runner = (*pipeline.Orchestrator)(nil)

// Option is a functional option for New.
type Option func(*Server)

// WithHealth sets the health handler serving /healthz and /readyz. Without
// one the probes report a bare liveness check only.
func WithHealth(h *health.Handler) Option {
	return func(s *Server) { s.health = h }
}

// WithMetrics overrides the metrics instance used by the HTTP middleware.
// Defaults to [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(s *Server) { s.metrics = m }
}

// WithDisabledFeatures sets the feature names disabled by configuration.
// Requests can disable further features but never re-enable these.
func WithDisabledFeatures(names []string) Option {
	return func(s *Server) { s.disabled = names }
}

// WithTLS makes Start serve TLS with the given certificate pair.
func WithTLS(certFile, keyFile string) Option {
	return func(s *Server) {
		s.certFile = certFile
		s.keyFile = keyFile
	}
}

// Server serves the Echolot HTTP API.
type Server struct {
	runner   Runner
	client   inference.Client
	recorder journal.Recorder

	health   *health.Handler
	metrics  *observe.Metrics
	disabled []string
	certFile string
	keyFile  string

	httpSrv  *http.Server
	listener net.Listener
}

// New creates a Server. The runner, inference client, and journal recorder
// are required.
func New(runner Runner, client inference.Client, recorder journal.Recorder, opts ...Option) (*Server, error) {
	if runner == nil {
		return nil, errors.New("server: runner must not be nil")
	}
	if client == nil {
		return nil, errors.New("server: inference client must not be nil")
	}
	if recorder == nil {
		return nil, errors.New("server: journal recorder must not be nil")
	}
	s := &Server{
		runner:   runner,
		client:   client,
		recorder: recorder,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.metrics == nil {
		s.metrics = observe.DefaultMetrics()
	}
	if s.health == nil {
		s.health = health.New()
	}
	return s, nil
}

// Handler builds the full route table wrapped in the observability
// middleware.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /api/analyze", s.handleAnalyze)
	mux.HandleFunc("POST /api/chat", s.handleChat)
	mux.HandleFunc("POST /api/chat/summary", s.handleChatSummary)
	mux.HandleFunc("GET /api/entries", s.handleEntries)
	mux.HandleFunc("GET /api/entries/{id}", s.handleEntry)

	s.health.Register(mux)
	mux.Handle("GET /metrics", promhttp.Handler())

	return observe.Middleware(s.metrics)(mux)
}

// Start binds addr and serves in a background goroutine. When ctx is
// cancelled the server drains in-flight requests and stops.
func (s *Server) Start(ctx context.Context, addr string) error {
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("server: listen %s: %w", addr, err)
	}
	s.listener = listener
	s.httpSrv = &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       30 * time.Second,
		// Audio uploads analysed by a local model can be slow end to end.
		WriteTimeout: 5 * time.Minute,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		var err error
		if s.certFile != "" && s.keyFile != "" {
			err = s.httpSrv.ServeTLS(listener, s.certFile, s.keyFile)
		} else {
			err = s.httpSrv.Serve(listener)
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("http server error", "err", err)
		}
	}()

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		_ = s.httpSrv.Shutdown(shutdownCtx)
	}()

	slog.Info("http server listening",
		slog.String("addr", listener.Addr().String()),
		slog.Bool("tls", s.certFile != ""),
	)
	return nil
}

// Addr returns the bound address, or "" before Start.
func (s *Server) Addr() string {
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// Shutdown drains in-flight requests and stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpSrv == nil {
		return nil
	}
	if err := s.httpSrv.Shutdown(ctx); err != nil {
		return fmt.Errorf("server: shutdown: %w", err)
	}
	return nil
}
