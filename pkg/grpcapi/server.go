// Package grpcapi implements the gRPC API server for slotstrike: the
// standard health service plus a small runtime introspection service.
package grpcapi

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/psaab/slotstrike/pkg/engine"
	"github.com/psaab/slotstrike/pkg/ingress"
	"github.com/psaab/slotstrike/pkg/rules"
	"github.com/psaab/slotstrike/pkg/telemetry"
)

// ServiceName is the runtime service registered alongside health.
const ServiceName = "slotstrike.v1.Runtime"

// EngineStats exposes the sniper engine's classification counters.
type EngineStats interface {
	Snapshot() engine.CounterSnapshot
}

// RuleSource yields the current rule snapshot.
type RuleSource interface {
	Load() *rules.RuleBook
}

// Config configures the gRPC server.
type Config struct {
	Mode      ingress.Mode
	Ingress   ingress.Port
	Telemetry *telemetry.LatencyTelemetry
	Engine    EngineStats
	Rules     RuleSource
}

// Server implements the Runtime gRPC service.
type Server struct {
	mode      ingress.Mode
	port      ingress.Port
	telemetry *telemetry.LatencyTelemetry
	engine    EngineStats
	rules     RuleSource
	health    *health.Server
	startTime time.Time
	addr      string
}

// NewServer creates a new gRPC server. Health starts NOT_SERVING until
// SetServing(true).
func NewServer(addr string, cfg Config) *Server {
	s := &Server{
		mode:      cfg.Mode,
		port:      cfg.Ingress,
		telemetry: cfg.Telemetry,
		engine:    cfg.Engine,
		rules:     cfg.Rules,
		health:    health.NewServer(),
		startTime: time.Now(),
		addr:      addr,
	}
	s.SetServing(false)
	return s
}

// SetServing flips the health status of the server and the runtime service.
func (s *Server) SetServing(ok bool) {
	st := healthpb.HealthCheckResponse_NOT_SERVING
	if ok {
		st = healthpb.HealthCheckResponse_SERVING
	}
	s.health.SetServingStatus("", st)
	s.health.SetServingStatus(ServiceName, st)
}

// Run starts the gRPC server and blocks until ctx is cancelled.
func (s *Server) Run(ctx context.Context) error {
	lis, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("gRPC listen: %w", err)
	}
	return s.Serve(ctx, lis)
}

// Serve is Run on an existing listener.
func (s *Server) Serve(ctx context.Context, lis net.Listener) error {
	srv := grpc.NewServer()
	healthpb.RegisterHealthServer(srv, s.health)
	srv.RegisterService(&runtimeServiceDesc, s)

	errCh := make(chan error, 1)
	go func() {
		slog.Info("gRPC server listening", "addr", lis.Addr().String())
		if err := srv.Serve(lis); err != nil {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	s.health.Shutdown()
	srv.GracefulStop()
	return nil
}

// GetTelemetry returns every hop's latency stats.
func (s *Server) GetTelemetry(_ context.Context, _ *emptypb.Empty) (*structpb.Struct, error) {
	if s.telemetry == nil {
		return nil, status.Error(codes.Unavailable, "telemetry not available")
	}
	hops := []any{}
	for _, h := range s.telemetry.SnapshotAll() {
		hops = append(hops, map[string]any{
			"hop":          h.Hop,
			"sample_count": h.SampleCount,
			"p50_ns":       h.P50Ns,
			"p99_ns":       h.P99Ns,
			"max_ns":       h.MaxNs,
		})
	}
	return structpb.NewStruct(map[string]any{
		"enabled":         s.telemetry.Enabled(),
		"slo_ns":          s.telemetry.SLONs(),
		"dropped_samples": s.telemetry.Dropped(),
		"hops":            hops,
	})
}

// GetStatus returns the network path, counters and rule counts.
func (s *Server) GetStatus(_ context.Context, _ *emptypb.Empty) (*structpb.Struct, error) {
	out := map[string]any{
		"uptime":        time.Since(s.startTime).Truncate(time.Second).String(),
		"network_stack": string(s.mode),
	}
	if s.port != nil {
		c := s.port.Counters().Snapshot()
		out["ingress"] = s.port.Name()
		out["ingress_counters"] = map[string]any{
			"frames":        c.Frames,
			"filtered":      c.Filtered,
			"decode_errors": c.DecodeErrors,
			"published":     c.Published,
			"reconnects":    c.Reconnects,
		}
	}
	if s.engine != nil {
		e := s.engine.Snapshot()
		out["engine"] = map[string]any{
			"received":          e.Received,
			"failed_tx":         e.FailedTx,
			"invalid_signature": e.InvalidSignature,
			"cpmm":              e.CPMM,
			"openbook":          e.OpenBook,
			"ignored":           e.Ignored,
		}
	}
	if s.rules != nil {
		if rb := s.rules.Load(); rb != nil {
			out["mint_rules"] = rb.Len(rules.KindMint)
			out["deployer_rules"] = rb.Len(rules.KindDeployer)
		}
	}
	return structpb.NewStruct(out)
}
