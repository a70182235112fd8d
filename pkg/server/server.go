package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/trinitydeploy/trinity/pkg/engine"
	"github.com/trinitydeploy/trinity/pkg/telemetry"
)

const (
	healthCheckTimeout = 5 * time.Second
	eventBuffer        = 128
)

// Deployer runs deployments. *engine.Orchestrator satisfies it.
type Deployer interface {
	Deploy(ctx context.Context, req engine.Request, sink engine.ProgressSink) (*engine.Outcome, error)
	DeploySingle(ctx context.Context, req engine.Request, sink engine.ProgressSink) (*engine.Outcome, error)
}

// DeployerFactory returns the deployer for live or dry runs. It may fail
// when live credentials are missing.
type DeployerFactory func(dryRun bool) (Deployer, error)

// HealthFunc reports whether the server's dependencies are usable.
type HealthFunc func(ctx context.Context) error

// BackgroundFunc runs alongside the HTTP server until ctx is done.
type BackgroundFunc func(ctx context.Context) error

// Config holds server settings.
type Config struct {
	Addr              string
	HeartbeatInterval time.Duration
	ShutdownTimeout   time.Duration
}

// Server exposes deployments over HTTP.
type Server struct {
	cfg        Config
	deployers  DeployerFactory
	classifier engine.Classifier
	health     HealthFunc
	metrics    *telemetry.Metrics
	logger     zerolog.Logger
	upgrader   websocket.Upgrader
	background []BackgroundFunc
	mux        *http.ServeMux

	// runs counts detached deployments still in flight.
	runs sync.WaitGroup
}

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the server logger.
func WithLogger(logger zerolog.Logger) Option {
	return func(s *Server) {
		s.logger = logger
	}
}

// WithMetrics exposes m on /metrics.
func WithMetrics(m *telemetry.Metrics) Option {
	return func(s *Server) {
		s.metrics = m
	}
}

// WithHealthCheck sets the /healthz probe.
func WithHealthCheck(fn HealthFunc) Option {
	return func(s *Server) {
		s.health = fn
	}
}

// WithBackground adds a task that runs for the server's lifetime. A task
// returning an error stops the server.
func WithBackground(fn BackgroundFunc) Option {
	return func(s *Server) {
		s.background = append(s.background, fn)
	}
}

// New creates a server.
func New(cfg Config, deployers DeployerFactory, classifier engine.Classifier, opts ...Option) (*Server, error) {
	if deployers == nil {
		return nil, fmt.Errorf("deployer factory is required")
	}
	if classifier == nil {
		return nil, fmt.Errorf("classifier is required")
	}
	if cfg.HeartbeatInterval <= 0 {
		cfg.HeartbeatInterval = 15 * time.Second
	}
	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = 30 * time.Second
	}

	s := &Server{
		cfg:        cfg,
		deployers:  deployers,
		classifier: classifier,
		logger:     zerolog.Nop(),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(*http.Request) bool { return true },
		},
		mux: http.NewServeMux(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With().Str("component", "server").Logger()
	s.register()
	return s, nil
}

func (s *Server) register() {
	s.mux.HandleFunc("POST /api/deploy", s.handleDeploySSE)
	s.mux.HandleFunc("GET /api/ws/deploy", s.handleDeployWS)
	s.mux.HandleFunc("POST /api/discover", s.handleDiscover)
	s.mux.HandleFunc("GET /healthz", s.handleHealthz)
	if s.metrics != nil {
		s.mux.Handle("GET /metrics", s.metrics.Handler())
	}
}

// Handler returns the HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.mux
}

// Run listens on the configured address and serves until ctx is done.
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.cfg.Addr, err)
	}
	return s.Serve(ctx, ln)
}

// Serve accepts connections on ln until ctx is done, then shuts down
// gracefully and waits for in-flight deployments up to the shutdown
// timeout.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		s.logger.Info().Str("addr", ln.Addr().String()).Msg("server listening")
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
		defer cancel()

		err := srv.Shutdown(shutdownCtx)
		if !s.waitRuns(shutdownCtx) {
			s.logger.Warn().Msg("shutdown timed out with deployments still running")
		}
		s.logger.Info().Msg("server stopped")
		return err
	})

	for _, task := range s.background {
		g.Go(func() error {
			return task(gctx)
		})
	}

	return g.Wait()
}

// waitRuns blocks until detached runs finish or ctx is done.
func (s *Server) waitRuns(ctx context.Context) bool {
	done := make(chan struct{})
	go func() {
		s.runs.Wait()
		close(done)
	}()
	select {
	case <-done:
		return true
	case <-ctx.Done():
		return false
	}
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	if s.health != nil {
		ctx, cancel := context.WithTimeout(r.Context(), healthCheckTimeout)
		defer cancel()
		if err := s.health(ctx); err != nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{
				"status": "unhealthy",
				"error":  err.Error(),
			})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleDiscover(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Target string `json:"target"`
	}
	if err := decodeJSON(r, &body); err != nil || body.Target == "" {
		writeError(w, http.StatusBadRequest, engine.NewValidationError("target is required", err).
			WithCode(engine.ErrCodeInvalidRequest))
		return
	}

	result, err := s.classifier.Classify(r.Context(), body.Target)
	if err != nil {
		status := http.StatusUnprocessableEntity
		if !engine.IsClassification(err) {
			status = http.StatusInternalServerError
		}
		writeError(w, status, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}
