package api

import (
	"context"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/psaab/slotstrike/pkg/configsync"
	"github.com/psaab/slotstrike/pkg/engine"
	"github.com/psaab/slotstrike/pkg/ingress"
	"github.com/psaab/slotstrike/pkg/logging"
	"github.com/psaab/slotstrike/pkg/rules"
	"github.com/psaab/slotstrike/pkg/telemetry"
)

// EngineStats exposes the sniper engine's classification counters.
type EngineStats interface {
	Snapshot() engine.CounterSnapshot
}

// RuleSource yields the current rule snapshot.
type RuleSource interface {
	Load() *rules.RuleBook
}

// Config configures the API server. Nil collaborators are reported as
// unavailable.
type Config struct {
	Addr      string
	Auth      *AuthConfig // nil = no authentication
	Mode      ingress.Mode
	Ingress   ingress.Port
	Describe  string // human readable network path
	Telemetry *telemetry.LatencyTelemetry
	Engine    EngineStats
	Rules     RuleSource
	History   *configsync.History
	EventBuf  *logging.EventBuffer
}

// Server is the HTTP API server.
type Server struct {
	httpServer *http.Server
	mode       ingress.Mode
	port       ingress.Port
	describe   string
	telemetry  *telemetry.LatencyTelemetry
	engine     EngineStats
	rules      RuleSource
	history    *configsync.History
	eventBuf   *logging.EventBuffer
	startTime  time.Time
}

// NewServer creates a new API server.
func NewServer(cfg Config) *Server {
	s := &Server{
		mode:      cfg.Mode,
		port:      cfg.Ingress,
		describe:  cfg.Describe,
		telemetry: cfg.Telemetry,
		engine:    cfg.Engine,
		rules:     cfg.Rules,
		history:   cfg.History,
		eventBuf:  cfg.EventBuf,
		startTime: time.Now(),
	}

	mux := http.NewServeMux()

	// Health + metrics
	mux.HandleFunc("GET /health", s.healthHandler)

	// Prometheus metrics with isolated registry
	registry := prometheus.NewRegistry()
	registry.MustRegister(newCollector(s))
	mux.Handle("GET /metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))

	// REST API v1
	mux.HandleFunc("GET /api/v1/status", s.statusHandler)
	mux.HandleFunc("GET /api/v1/telemetry", s.telemetryHandler)
	mux.HandleFunc("GET /api/v1/rules", s.rulesHandler)
	mux.HandleFunc("GET /api/v1/rules/history", s.rulesHistoryHandler)
	mux.HandleFunc("GET /api/v1/candidates", s.candidatesHandler)
	mux.HandleFunc("GET /api/v1/alerts", s.alertsHandler)

	// SSE streaming
	mux.HandleFunc("GET /api/v1/events/stream", s.eventStreamHandler)

	var handler http.Handler = mux
	if cfg.Auth != nil {
		handler = authMiddleware(*cfg.Auth, mux)
	}

	s.httpServer = &http.Server{
		Addr:              cfg.Addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// Handler returns the root handler, for tests and embedding.
func (s *Server) Handler() http.Handler { return s.httpServer.Handler }

// Run starts the HTTP server and blocks until ctx is cancelled.
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.httpServer.Addr)
	if err != nil {
		return err
	}
	return s.Serve(ctx, ln)
}

// Serve is Run on an existing listener.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	errCh := make(chan error, 1)
	go func() {
		slog.Info("HTTP API server listening", "addr", ln.Addr().String())
		if err := s.httpServer.Serve(ln); err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.httpServer.Shutdown(shutdownCtx)
}
