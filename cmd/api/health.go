package main

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"time"

	"github.com/grpc-ecosystem/go-grpc-middleware/v2/interceptors/logging"
	"github.com/grpc-ecosystem/go-grpc-middleware/v2/interceptors/recovery"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/status"

	"github.com/PaulBabatuyi/pairchat/internal/logger"
)

// Pinger checks a backing service.
type Pinger interface {
	Ping(ctx context.Context) error
}

func interceptorLogger(l *logger.Logger) logging.Logger {
	return logging.LoggerFunc(func(ctx context.Context, lvl logging.Level, msg string, fields ...any) {
		l.Log(ctx, slog.Level(lvl), msg, fields...)
	})
}

// newHealthServer returns a gRPC server exposing grpc.health.v1.Health.
func newHealthServer(l *logger.Logger) (*grpc.Server, *health.Server) {
	recoveryHandler := func(p any) error {
		l.Error("recovered from panic", "panic", p, "stack", string(debug.Stack()))
		return status.Errorf(codes.Internal, "%v", p)
	}

	s := grpc.NewServer(
		grpc.ChainUnaryInterceptor(
			logging.UnaryServerInterceptor(interceptorLogger(l), logging.WithLogOnEvents(logging.FinishCall)),
			recovery.UnaryServerInterceptor(recovery.WithRecoveryHandler(recoveryHandler)),
		),
		grpc.ChainStreamInterceptor(
			recovery.StreamServerInterceptor(recovery.WithRecoveryHandler(recoveryHandler)),
		),
	)
	hs := health.NewServer()
	healthpb.RegisterHealthServer(s, hs)
	return s, hs
}

// watchHealth pings the database every interval and reports the overall
// serving status until ctx is done.
func watchHealth(ctx context.Context, hs *health.Server, db Pinger, interval time.Duration, l *logger.Logger) {
	check := func() {
		pingCtx, cancel := context.WithTimeout(ctx, interval)
		defer cancel()
		if err := db.Ping(pingCtx); err != nil {
			l.Warn("database ping failed", "error", err)
			hs.SetServingStatus("", healthpb.HealthCheckResponse_NOT_SERVING)
			return
		}
		hs.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	}

	check()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			check()
		case <-ctx.Done():
			hs.Shutdown()
			return
		}
	}
}

func healthAddr(port string) string {
	return fmt.Sprintf(":%s", port)
}
