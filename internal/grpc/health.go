// Package grpc serves the gRPC health endpoint used by orchestrators.
package grpc

import (
	"fmt"
	"net"

	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	gogrpc "google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"go.uber.org/zap"

	"hms-sync/internal/observability"
)

// HealthServer wraps a gRPC server exposing grpc.health.v1.
type HealthServer struct {
	server  *gogrpc.Server
	health  *health.Server
	service string
}

// NewHealthServer builds a server reporting SERVING for service and the
// empty overall service name.
func NewHealthServer(service string) *HealthServer {
	srv := gogrpc.NewServer(
		gogrpc.StatsHandler(otelgrpc.NewServerHandler()),
		gogrpc.UnaryInterceptor(observability.GRPCServerMetricsUnaryInterceptor()),
	)
	hs := health.NewServer()
	hs.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	hs.SetServingStatus(service, healthpb.HealthCheckResponse_SERVING)
	healthpb.RegisterHealthServer(srv, hs)
	return &HealthServer{server: srv, health: hs, service: service}
}

// Serve blocks serving on lis.
func (h *HealthServer) Serve(lis net.Listener) error {
	zap.S().Infow("grpc health listening", "addr", lis.Addr().String())
	if err := h.server.Serve(lis); err != nil {
		return fmt.Errorf("grpc serve: %w", err)
	}
	return nil
}

// Stop marks the service NOT_SERVING and drains in-flight calls.
func (h *HealthServer) Stop() {
	h.health.Shutdown()
	h.server.GracefulStop()
}
