package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthgrpc "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/imbesat-rizvi/imperio/internal/config"
)

// HealthServiceName is the gRPC health service name of the pipeline
const HealthServiceName = "imperio.Pipeline"

// GRPCServer exposes the standard gRPC health service. Both the overall
// status and HealthServiceName follow the pipeline: SERVING while a
// transcription cycle runs, NOT_SERVING otherwise.
type GRPCServer struct {
	server *grpc.Server
	health *health.Server
	addr   string
	logger *slog.Logger
}

// NewGRPCServer creates a gRPC server with the health service registered
func NewGRPCServer(cfg config.GRPCConfig, logger *slog.Logger) *GRPCServer {
	g := &GRPCServer{
		server: grpc.NewServer(),
		health: health.NewServer(),
		addr:   net.JoinHostPort(cfg.Address, fmt.Sprintf("%d", cfg.Port)),
		logger: logger.With("component", "grpc_server"),
	}
	healthgrpc.RegisterHealthServer(g.server, g.health)
	g.SetServing(false)

	return g
}

// SetServing updates the health status; it matches pipeline.OnStateChange
func (g *GRPCServer) SetServing(serving bool) {
	status := healthgrpc.HealthCheckResponse_NOT_SERVING
	if serving {
		status = healthgrpc.HealthCheckResponse_SERVING
	}
	g.health.SetServingStatus("", status)
	g.health.SetServingStatus(HealthServiceName, status)
}

// Start listens on the configured address and serves in the background
func (g *GRPCServer) Start() error {
	lis, err := net.Listen("tcp", g.addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", g.addr, err)
	}

	g.logger.Info("Starting gRPC health server", slog.String("address", lis.Addr().String()))

	go func() {
		if err := g.Serve(lis); err != nil {
			g.logger.Error("gRPC server error", slog.String("error", err.Error()))
		}
	}()

	return nil
}

// Serve serves on lis until the server is stopped
func (g *GRPCServer) Serve(lis net.Listener) error {
	if err := g.server.Serve(lis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
		return err
	}
	return nil
}

// Stop stops the server gracefully, forcing it when ctx is done first
func (g *GRPCServer) Stop(ctx context.Context) {
	g.logger.Info("Stopping gRPC health server...")
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
		<-done
	}
}
