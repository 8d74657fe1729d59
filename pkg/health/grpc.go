package health

import (
	"context"
	"net"

	"google.golang.org/grpc"
	grpchealth "google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// ServiceName is the gRPC health service name reported for the wall API
const ServiceName = "birthdaywall.v1.Wall"

// GRPCServer exposes the checker through the standard gRPC health
// protocol for orchestrators that probe over gRPC
type GRPCServer struct {
	server *grpc.Server
	health *grpchealth.Server
}

// NewGRPCServer creates the gRPC server and keeps its serving status in
// step with the checker
func NewGRPCServer(checker *Checker) *GRPCServer {
	hs := grpchealth.NewServer()
	srv := grpc.NewServer()
	healthpb.RegisterHealthServer(srv, hs)

	g := &GRPCServer{server: srv, health: hs}
	g.set(checker.IsSystemHealthy())
	checker.OnChange(g.set)
	return g
}

func (g *GRPCServer) set(healthy bool) {
	status := healthpb.HealthCheckResponse_SERVING
	if !healthy {
		status = healthpb.HealthCheckResponse_NOT_SERVING
	}
	g.health.SetServingStatus("", status)
	g.health.SetServingStatus(ServiceName, status)
}

// Serve blocks serving on lis
func (g *GRPCServer) Serve(lis net.Listener) error {
	return g.server.Serve(lis)
}

// Shutdown marks everything not serving and stops the server, forcing it
// if ctx expires first
func (g *GRPCServer) Shutdown(ctx context.Context) {
	g.health.Shutdown()

	done := make(chan struct{})
	go func() {
		g.server.GracefulStop()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		g.server.Stop()
	}
}
