package dataapi

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/peer"
	"google.golang.org/grpc/status"

	"github.com/rafaeljc/discountrules/internal/logger"
	"github.com/rafaeljc/discountrules/internal/observability"
)

// RequestIDKey is the metadata key carrying the caller's request id.
const RequestIDKey = "x-request-id"

// RequestLoggerInterceptor resolves the request id (generating a UUID when
// the caller sent none), stores a request-scoped logger in the context and
// logs the outcome of every RPC.
func RequestLoggerInterceptor(base *slog.Logger) grpc.UnaryServerInterceptor {
	if base == nil {
		base = slog.Default()
	}

	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		start := time.Now()

		reqID := ""
		if md, ok := metadata.FromIncomingContext(ctx); ok {
			if ids := md.Get(RequestIDKey); len(ids) > 0 {
				reqID = ids[0]
			}
		}
		if reqID == "" {
			reqID = uuid.NewString()
		}

		rpcLogger := base.With(
			slog.String("request_id", reqID),
			slog.String("rpc_method", info.FullMethod),
		)
		newCtx := logger.WithContext(ctx, rpcLogger)

		// Echo the id so callers can correlate logs.
		_ = grpc.SetHeader(newCtx, metadata.Pairs(RequestIDKey, reqID))

		resp, err := handler(newCtx, req)

		code := status.Code(err)
		level := slog.LevelInfo
		switch code {
		case codes.Internal, codes.Unavailable, codes.DataLoss, codes.Unknown:
			level = slog.LevelError
		case codes.DeadlineExceeded, codes.Unimplemented, codes.FailedPrecondition:
			level = slog.LevelWarn
		}

		rpcLogger.Log(newCtx, level, "grpc request completed",
			slog.String("code", code.String()),
			slog.Duration("duration", time.Since(start)),
			slog.String("peer_addr", getPeerAddr(ctx)),
		)

		return resp, err
	}
}

// MetricsInterceptor records RPC count and latency by method and status code.
func MetricsInterceptor() grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		start := time.Now()
		resp, err := handler(ctx, req)

		code := status.Code(err).String()
		observability.DataAPIGrpcDuration.WithLabelValues(info.FullMethod, code).Observe(time.Since(start).Seconds())
		observability.DataAPIGrpcTotal.WithLabelValues(info.FullMethod, code).Inc()

		return resp, err
	}
}

func getPeerAddr(ctx context.Context) string {
	if p, ok := peer.FromContext(ctx); ok {
		return p.Addr.String()
	}
	return "unknown"
}
