package server

import (
	"fmt"
	"net"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"
)

// RoomsService is the health service name reported for the room server.
const RoomsService = "hetman.Rooms"

// AdminServer is the gRPC admin endpoint exposing the standard health service
// and server reflection.
type AdminServer struct {
	addr   string
	logger *zap.Logger
	grpc   *grpc.Server
	health *health.Server
}

// NewAdminServer creates an admin server for addr. Every service starts NOT_SERVING
// until MarkServing is called.
//
// Precondition: logger must be non-nil.
func NewAdminServer(addr string, logger *zap.Logger) *AdminServer {
	gs := grpc.NewServer()
	hs := health.NewServer()
	healthpb.RegisterHealthServer(gs, hs)
	reflection.Register(gs)
	hs.SetServingStatus("", healthpb.HealthCheckResponse_NOT_SERVING)
	hs.SetServingStatus(RoomsService, healthpb.HealthCheckResponse_NOT_SERVING)
	return &AdminServer{addr: addr, logger: logger, grpc: gs, health: hs}
}

// MarkServing flips the overall and room service status to SERVING.
func (a *AdminServer) MarkServing() {
	a.health.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	a.health.SetServingStatus(RoomsService, healthpb.HealthCheckResponse_SERVING)
}

// MarkNotServing flips the room service status back to NOT_SERVING, e.g. while a
// required dependency is unreachable.
func (a *AdminServer) MarkNotServing() {
	a.health.SetServingStatus(RoomsService, healthpb.HealthCheckResponse_NOT_SERVING)
}

// Serve serves on an existing listener until Stop is called.
func (a *AdminServer) Serve(lis net.Listener) error {
	a.logger.Info("admin grpc listening", zap.String("addr", lis.Addr().String()))
	if err := a.grpc.Serve(lis); err != nil && err != grpc.ErrServerStopped {
		return fmt.Errorf("serving admin grpc: %w", err)
	}
	return nil
}

// Start listens on the configured address and serves.
func (a *AdminServer) Start() error {
	lis, err := net.Listen("tcp", a.addr)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", a.addr, err)
	}
	return a.Serve(lis)
}

// Stop reports NOT_SERVING to watchers and stops the gRPC server gracefully.
func (a *AdminServer) Stop() {
	a.health.Shutdown()
	a.grpc.GracefulStop()
}
