package httpapi

import (
	"context"
	"time"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/status"
)

// readinessChecker reports whether the service can answer requests.
type readinessChecker interface {
	Ready(ctx context.Context) error
}

// GRPCServer implements grpc.health.v1.Health over store readiness. Both the
// empty service name and "gatehouse" are known.
type GRPCServer struct {
	healthpb.UnimplementedHealthServer

	readiness readinessChecker
	log       *zap.Logger
}

// NewGRPCServer creates the health service.
func NewGRPCServer(r readinessChecker, log *zap.Logger) *GRPCServer {
	if log == nil {
		log = zap.NewNop()
	}
	return &GRPCServer{readiness: r, log: log}
}

// Check probes readiness on every call.
func (s *GRPCServer) Check(ctx context.Context, req *healthpb.HealthCheckRequest) (*healthpb.HealthCheckResponse, error) {
	if svc := req.GetService(); svc != "" && svc != serviceName {
		return nil, status.Errorf(codes.NotFound, "unknown service %q", svc)
	}
	if err := s.readiness.Ready(ctx); err != nil {
		s.log.Warn("health check failed", zap.Error(err))
		return &healthpb.HealthCheckResponse{Status: healthpb.HealthCheckResponse_NOT_SERVING}, nil
	}
	return &healthpb.HealthCheckResponse{Status: healthpb.HealthCheckResponse_SERVING}, nil
}

// NewGRPC returns a server with the health service registered and every
// unary call logged.
func NewGRPC(r readinessChecker, log *zap.Logger) *grpc.Server {
	health := NewGRPCServer(r, log)
	srv := grpc.NewServer(grpc.ChainUnaryInterceptor(unaryLogger(health.log)))
	healthpb.RegisterHealthServer(srv, health)
	return srv
}

func unaryLogger(log *zap.Logger) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		start := time.Now()
		resp, err := handler(ctx, req)
		log.Debug("grpc_complete",
			zap.String("method", info.FullMethod),
			zap.String("code", status.Code(err).String()),
			zap.Duration("duration", time.Since(start)),
		)
		return resp, err
	}
}
