package main

import (
	"context"
	"log/slog"
	"net"

	"github.com/md-rashed-zaman/specialistbook/libs/grpcx"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// serveGRPC exposes grpc.health.v1 until ctx ends, reporting NOT_SERVING
// while draining.
func serveGRPC(ctx context.Context, addr string, logger *slog.Logger) error {
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	srv, hs := grpcx.NewServer(logger)
	hs.SetServingStatus("booking", healthpb.HealthCheckResponse_SERVING)

	go func() {
		<-ctx.Done()
		hs.Shutdown()
		srv.GracefulStop()
	}()

	logger.Info("grpc server starting", "addr", addr)
	return srv.Serve(lis)
}
