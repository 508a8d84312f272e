// Package grpc serves the standard grpc.health.v1 service for
// inventory-service. Consumers report their liveness through Probe.
package grpc

import (
	"context"
	"log/slog"
	"net"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// Probe reports whether one dependency of the service is up.
type Probe func() bool

type Server struct {
	log    *slog.Logger
	gs     *grpc.Server
	health *health.Server
	probes map[string]Probe
}

func NewServer(log *slog.Logger, probes map[string]Probe) *Server {
	hs := health.NewServer()
	gs := grpc.NewServer(grpc.StatsHandler(otelgrpc.NewServerHandler()))
	healthpb.RegisterHealthServer(gs, hs)
	return &Server{log: log, gs: gs, health: hs, probes: probes}
}

// Refresh sets the overall status and one status per probe name. The
// overall status is NOT_SERVING as soon as a single probe fails.
func (s *Server) Refresh() {
	overall := healthpb.HealthCheckResponse_SERVING
	for name, probe := range s.probes {
		status := healthpb.HealthCheckResponse_SERVING
		if !probe() {
			status = healthpb.HealthCheckResponse_NOT_SERVING
			overall = status
		}
		s.health.SetServingStatus(name, status)
	}
	s.health.SetServingStatus("", overall)
}

// Serve listens on addr until ctx is cancelled, refreshing the health
// status every interval.
func (s *Server) Serve(ctx context.Context, addr string, interval time.Duration) error {
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	s.Refresh()

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				s.health.Shutdown()
				s.gs.GracefulStop()
				return
			case <-ticker.C:
				s.Refresh()
			}
		}
	}()

	s.log.Info("grpc health server listening", "addr", addr)
	if err := s.gs.Serve(lis); err != nil && err != grpc.ErrServerStopped {
		return err
	}
	return nil
}
