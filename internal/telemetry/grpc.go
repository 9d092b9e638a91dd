package telemetry

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"

	"github.com/grpc-ecosystem/go-grpc-middleware/v2/interceptors/logging"
	"github.com/grpc-ecosystem/go-grpc-middleware/v2/interceptors/recovery"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

var grpcHandled = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: namespace,
	Name:      "grpc_handled_total",
	Help:      "Admin RPCs handled by method and status code.",
}, []string{"method", "code"})

// GRPCServerInterceptor wraps admin calls with panic recovery and per-method accounting. Room
// errors caused by the caller are logged at info level, only server faults at error level.
func GRPCServerInterceptor() grpc.ServerOption {
	opts := []logging.Option{
		logging.WithLogOnEvents(logging.FinishCall),
		logging.WithLevels(codeToLevel),
	}

	return grpc.ChainUnaryInterceptor(
		recovery.UnaryServerInterceptor(recovery.WithRecoveryHandlerContext(recoverPanic)),
		countHandled,
		logging.UnaryServerInterceptor(grpcServerLogger(slog.Default()), opts...),
	)
}

func codeToLevel(c codes.Code) logging.Level {
	switch c {
	case codes.OK, codes.NotFound, codes.InvalidArgument, codes.AlreadyExists,
		codes.FailedPrecondition, codes.PermissionDenied, codes.Unauthenticated, codes.Canceled:
		return logging.LevelInfo
	case codes.ResourceExhausted, codes.DeadlineExceeded:
		return logging.LevelWarn
	default:
		return logging.LevelError
	}
}

func countHandled(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
	resp, err := handler(ctx, req)
	grpcHandled.WithLabelValues(info.FullMethod, status.Code(err).String()).Inc()
	return resp, err
}

func recoverPanic(ctx context.Context, p any) error {
	slog.ErrorContext(ctx, fmt.Sprintf("grpc: panic: %v", p), "stack", string(debug.Stack()))
	return status.Error(codes.Internal, "internal error")
}

func grpcServerLogger(l *slog.Logger) logging.Logger {
	return logging.LoggerFunc(func(ctx context.Context, lvl logging.Level, msg string, fields ...any) {
		l.Log(ctx, slog.Level(lvl), "grpc: "+msg, fields...)
	})
}
