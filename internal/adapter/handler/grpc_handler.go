package handler

import (
	"context"
	"time"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// ServiceName is the health service name probed by orchestrators.
const ServiceName = "eventinventory.Inventory"

type Pinger interface {
	Ping(ctx context.Context) error
}

// GRPCHandler reports store reachability through the standard gRPC health
// protocol.
type GRPCHandler struct {
	health *health.Server
	store  Pinger
	logger *zap.Logger
}

func NewGRPCHandler(store Pinger, logger *zap.Logger) *GRPCHandler {
	return &GRPCHandler{
		health: health.NewServer(),
		store:  store,
		logger: logger,
	}
}

func (h *GRPCHandler) Register(s *grpc.Server) {
	healthpb.RegisterHealthServer(s, h.health)
}

// CheckStore pings the store and flips the serving status to match.
func (h *GRPCHandler) CheckStore(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	status := healthpb.HealthCheckResponse_SERVING
	if err := h.store.Ping(ctx); err != nil {
		h.logger.Warn("store unreachable", zap.Error(err))
		status = healthpb.HealthCheckResponse_NOT_SERVING
	}
	h.health.SetServingStatus("", status)
	h.health.SetServingStatus(ServiceName, status)
}

// Shutdown marks every service as not serving ahead of GracefulStop.
func (h *GRPCHandler) Shutdown() {
	h.health.Shutdown()
}
