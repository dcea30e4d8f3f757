package dataapi

import (
	"log/slog"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/keepalive"

	"github.com/rafaeljc/discountrules/internal/config"
)

// NewServer builds a grpc.Server tuned by cfg with the logging and metrics
// interceptors installed, the API registered and the standard gRPC health
// service reporting SERVING for RequirementService.
func NewServer(cfg *config.DataPlaneConfig, log *slog.Logger, api *API) (*grpc.Server, *health.Server) {
	srv := grpc.NewServer(
		grpc.MaxConcurrentStreams(cfg.MaxConcurrentStreams),
		grpc.KeepaliveParams(keepalive.ServerParameters{
			Time:             cfg.KeepaliveTime,
			Timeout:          cfg.KeepaliveTimeout,
			MaxConnectionAge: cfg.MaxConnectionAge,
		}),
		grpc.ChainUnaryInterceptor(
			RequestLoggerInterceptor(log),
			MetricsInterceptor(),
		),
	)

	api.Register(srv)

	healthSrv := health.NewServer()
	healthSrv.SetServingStatus(ServiceName, healthpb.HealthCheckResponse_SERVING)
	healthpb.RegisterHealthServer(srv, healthSrv)

	return srv, healthSrv
}
