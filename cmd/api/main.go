package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/PaulBabatuyi/pairchat/internal/auth"
	"github.com/PaulBabatuyi/pairchat/internal/chat"
	"github.com/PaulBabatuyi/pairchat/internal/config"
	"github.com/PaulBabatuyi/pairchat/internal/data"
	"github.com/PaulBabatuyi/pairchat/internal/db"
	"github.com/PaulBabatuyi/pairchat/internal/logger"
	"github.com/PaulBabatuyi/pairchat/internal/media"
	"github.com/PaulBabatuyi/pairchat/internal/middleware"
	"github.com/PaulBabatuyi/pairchat/internal/relay"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM, os.Interrupt)
	defer stop()

	cfg, err := config.NewConfig()
	if err != nil {
		log.Fatalf("failed to parse config: %v", err)
	}
	logger := logger.New(cfg.LogLevel)
	gin.SetMode(gin.ReleaseMode)

	dbClient, err := db.New(ctx, cfg.Mongo.URI, cfg.Mongo.Database)
	if err != nil {
		logger.Fatal("failed to connect to DB", "error", err)
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = dbClient.Close(closeCtx)
	}()

	if err := dbClient.CreateIndexes(ctx); err != nil {
		logger.Fatal("failed to create indexes", "error", err)
	}

	usersStore := data.NewUsersStore(dbClient.UsersCollection())
	msgsStore := data.NewMessagesStore(dbClient.MessagesCollection())

	// JWT_KEYS enables rotation; JWT_SECRET is the single-key fallback.
	var jwtMgr *auth.JWTManager
	if len(cfg.JWT.Keys) > 0 {
		jwtMgr = auth.NewJWTManagerFromKeys(cfg.JWT.Keys, cfg.JWT.ActiveKID, cfg.JWT.TTL)
	} else {
		jwtMgr = auth.NewJWTManager(cfg.JWT.Secret, cfg.JWT.TTL)
	}

	presence := relay.NewPresence()
	pusherRelay := relay.New(
		relay.NewPusherClient(cfg.Pusher.AppID, cfg.Pusher.Key, cfg.Pusher.Secret, cfg.Pusher.Cluster),
		presence,
		logger,
	)
	chatService := chat.NewService(usersStore, msgsStore, pusherRelay, presence, logger)

	backend, err := newMediaBackend(ctx, cfg)
	if err != nil {
		logger.Fatal("failed to initialize media storage", "error", err)
	}

	limiterStore := middleware.NewLimiterStore(cfg.RateLimit.RPM, cfg.RateLimit.Burst, time.Minute)
	defer limiterStore.Stop()

	srv := &Server{
		users:    usersStore,
		chat:     chatService,
		relay:    pusherRelay,
		presence: presence,
		media:    media.NewUploader(backend, cfg.Media.MaxBytes),
		auth:     jwtMgr,
		limiter:  limiterStore,
		opts: serverOptions{
			cookieName:     cfg.Session.CookieName,
			secureCookie:   cfg.Session.Secure,
			clientURL:      cfg.HTTP.ClientURL,
			maxUpload:      cfg.Media.MaxBytes,
			trustedProxies: cfg.HTTP.TrustedProxies,
		},
		logger: logger,
	}
	if cfg.Google.Enabled() {
		srv.google = auth.NewGoogleStrategy(cfg.Google.ClientID, cfg.Google.ClientSecret, cfg.Google.CallbackURL)
	} else {
		logger.Info("google login disabled")
	}

	httpServer := &http.Server{
		Addr:              fmt.Sprintf(":%s", cfg.HTTP.Port),
		Handler:           srv.routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	grpcServer, healthServer := newHealthServer(logger)
	lis, err := net.Listen("tcp", healthAddr(cfg.Health.Port))
	if err != nil {
		logger.Fatal("failed to listen", "error", err)
	}

	var wg sync.WaitGroup
	wg.Add(3)
	go func() {
		defer wg.Done()
		logger.Info("HTTP server listening", "address", httpServer.Addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("HTTP server exit", "error", err)
			stop()
		}
	}()
	go func() {
		defer wg.Done()
		logger.Info("gRPC health server listening", "address", lis.Addr().String())
		if err := grpcServer.Serve(lis); err != nil {
			logger.Error("gRPC server exit", "error", err)
		}
	}()
	go func() {
		defer wg.Done()
		watchHealth(ctx, healthServer, dbClient, 15*time.Second, logger)
	}()

	<-ctx.Done()
	logger.Info("received interruption signal, shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("error during HTTP shutdown", "error", err)
	}
	grpcServer.GracefulStop()

	wg.Wait()
	logger.Info("shutdown complete")
}

func newMediaBackend(ctx context.Context, cfg *config.Config) (media.Backend, error) {
	switch cfg.Media.Backend {
	case "s3":
		return media.NewS3Backend(ctx, media.S3Options{
			Region:        cfg.S3.Region,
			Endpoint:      cfg.S3.Endpoint,
			Bucket:        cfg.S3.Bucket,
			AccessKey:     cfg.S3.AccessKey,
			SecretKey:     cfg.S3.SecretKey,
			PublicBaseURL: cfg.S3.PublicBaseURL,
		})
	default:
		client, err := media.NewMinioClient(cfg.Minio.Endpoint, cfg.Minio.AccessKey, cfg.Minio.SecretKey, cfg.Minio.UseSSL)
		if err != nil {
			return nil, err
		}
		return media.NewMinioBackend(ctx, client, cfg.Minio.Bucket, cfg.Minio.PublicBaseURL)
	}
}
