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

	"github.com/rafaeljc/daffodil/internal/logger"
	"github.com/rafaeljc/daffodil/internal/observability"
)

// RequestIDHeader is the metadata key carrying the caller's request id.
const RequestIDHeader = "x-request-id"

// RequestLoggerInterceptor returns a UnaryServerInterceptor that handles structured logging.
// It performs three tasks:
// 1. Traceability: Extracts or generates a Request ID.
// 2. Context Injection: Injects a logger derived from base into the context.
// 3. Telemetry: Logs the duration and status of the RPC call.
func RequestLoggerInterceptor(base *slog.Logger) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		start := time.Now()

		reqID := ""
		if md, ok := metadata.FromIncomingContext(ctx); ok {
			// metadata keys are normalized to lowercase
			if ids := md.Get(RequestIDHeader); len(ids) > 0 {
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

		resp, err := handler(newCtx, req)

		code := status.Code(err)

		// OK/Canceled/NotFound/InvalidArgument are expected outcomes.
		level := slog.LevelInfo
		switch code {
		case codes.Internal, codes.Unavailable, codes.DataLoss, codes.Unknown:
			level = slog.LevelError
		case codes.DeadlineExceeded, codes.Unimplemented:
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

// ObservabilityInterceptor records request count and latency per method and
// status code.
func ObservabilityInterceptor() grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		start := time.Now()

		resp, err := handler(ctx, req)

		code := status.Code(err).String()
		observability.DataPlaneGrpcDuration.WithLabelValues(info.FullMethod, code).Observe(time.Since(start).Seconds())
		observability.DataPlaneGrpcTotal.WithLabelValues(info.FullMethod, code).Inc()

		return resp, err
	}
}

// getPeerAddr extracts the client address safely.
func getPeerAddr(ctx context.Context) string {
	if p, ok := peer.FromContext(ctx); ok {
		return p.Addr.String()
	}
	return "unknown"
}

// ServerOptions returns the interceptor chain every data plane server uses.
func ServerOptions(base *slog.Logger) []grpc.ServerOption {
	return []grpc.ServerOption{
		grpc.ChainUnaryInterceptor(
			RequestLoggerInterceptor(base),
			ObservabilityInterceptor(),
		),
	}
}
