package handler

import (
	"context"
	"time"

	"github.com/google/uuid"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/reflection"
	"google.golang.org/grpc/status"

	"github.com/pesio-ai/be-ap-payment-orders/internal/logger"
	"github.com/pesio-ai/be-ap-payment-orders/internal/middleware"
)

// ServiceName is the name the health server reports for this service
const ServiceName = "pesio.ap.PaymentOrders"

// GRPCServer serves the health and reflection services
type GRPCServer struct {
	*grpc.Server
	health *health.Server
}

// NewGRPCServer creates a gRPC server reporting SERVING for ServiceName
func NewGRPCServer(log *logger.Logger) *GRPCServer {
	srv := grpc.NewServer(grpc.UnaryInterceptor(requestLogger(log)))

	hs := health.NewServer()
	hs.SetServingStatus(ServiceName, healthpb.HealthCheckResponse_SERVING)
	healthpb.RegisterHealthServer(srv, hs)
	reflection.Register(srv) // Enable reflection for debugging

	return &GRPCServer{Server: srv, health: hs}
}

// Drain marks every service NOT_SERVING ahead of a graceful stop
func (s *GRPCServer) Drain() {
	s.health.Shutdown()
}

// requestLogger logs each unary call with the caller's x-request-id,
// assigning one when the metadata has none
func requestLogger(log *logger.Logger) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		start := time.Now()

		var requestID string
		md, _ := metadata.FromIncomingContext(ctx)
		if ids := md.Get(middleware.RequestIDHeader); len(ids) > 0 {
			requestID = ids[0]
		} else {
			requestID = uuid.NewString()
		}
		_ = grpc.SetHeader(ctx, metadata.Pairs(middleware.RequestIDHeader, requestID))

		resp, err := handler(ctx, req)

		log.Debug().
			Str("method", info.FullMethod).
			Str("code", status.Code(err).String()).
			Dur("duration", time.Since(start)).
			Str("request_id", requestID).
			Msg("gRPC request")
		return resp, err
	}
}
