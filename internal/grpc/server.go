// Package grpc exposes the standard gRPC health service so orchestrators and
// the rest of the platform can health-check the checkout service the same way they
// check the other gRPC services.
package grpc

import (
	"context"
	"net"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"
)

// ServiceName is the name the health status is reported under, next to the
// server-wide "" entry.
const ServiceName = "tavros.checkout.v1.Checkout"

type Server struct {
	grpc   *grpc.Server
	health *health.Server
	logger *zap.Logger
}

func NewServer(logger *zap.Logger) *Server {
	srv := grpc.NewServer(
		grpc.StatsHandler(otelgrpc.NewServerHandler()),
		grpc.ChainUnaryInterceptor(loggingInterceptor(logger)),
	)
	hs := health.NewServer()
	healthpb.RegisterHealthServer(srv, hs)

	// Enable reflection for grpcurl/grpcui
	reflection.Register(srv)

	s := &Server{grpc: srv, health: hs, logger: logger}
	s.SetServing(false)
	return s
}

func (s *Server) SetServing(ok bool) {
	status := healthpb.HealthCheckResponse_NOT_SERVING
	if ok {
		status = healthpb.HealthCheckResponse_SERVING
	}
	s.health.SetServingStatus("", status)
	s.health.SetServingStatus(ServiceName, status)
}

// RunHealthChecks runs check every interval and publishes the result until
// ctx is done.
func (s *Server) RunHealthChecks(ctx context.Context, interval time.Duration, check func(context.Context) error) {
	checkOnce := func() {
		checkCtx, cancel := context.WithTimeout(ctx, interval)
		defer cancel()
		err := check(checkCtx)
		if err != nil {
			s.logger.Warn("health check failed", zap.Error(err))
		}
		s.SetServing(err == nil)
	}

	checkOnce()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			checkOnce()
		case <-ctx.Done():
			return
		}
	}
}

func (s *Server) Serve(lis net.Listener) error {
	return s.grpc.Serve(lis)
}

func (s *Server) GracefulStop() {
	s.health.Shutdown()
	s.grpc.GracefulStop()
}

func loggingInterceptor(logger *zap.Logger) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		start := time.Now()
		resp, err := handler(ctx, req)
		logger.Debug("grpc request",
			zap.String("method", info.FullMethod),
			zap.Duration("duration", time.Since(start)),
			zap.Error(err),
		)
		return resp, err
	}
}
