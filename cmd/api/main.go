package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"

	"github.com/idphotolab/passpix/internal/api"
	"github.com/idphotolab/passpix/internal/config"
	"github.com/idphotolab/passpix/internal/queue"
	"github.com/idphotolab/passpix/internal/ratelimit"
	"github.com/idphotolab/passpix/internal/storage"
	"github.com/idphotolab/passpix/internal/store"
	"github.com/idphotolab/passpix/internal/telemetry"
)

func main() {
	cfg := config.Load()
	logger := log.New(os.Stdout, "[api] ", log.LstdFlags|log.Lmsgprefix)

	ctx := context.Background()

	shutdownTracing, err := telemetry.SetupTracing(ctx, telemetry.TraceConfig{
		ServiceName:  "passpix-api",
		Exporter:     cfg.Tracing.Exporter,
		OTLPEndpoint: cfg.Tracing.OTLPEndpoint,
		OTLPInsecure: cfg.Tracing.OTLPInsecure,
	}, logger)
	if err != nil {
		logger.Fatalf("tracing setup failed: %v", err)
	}

	queueClient := queue.NewClient(cfg.Queue.RedisClientOpt(), cfg.Queue.Name)
	defer func() {
		if err := queueClient.Close(); err != nil {
			logger.Printf("queue client close error: %v", err)
		}
	}()

	storageClient, err := storage.NewClient(storage.Config{
		Endpoint: cfg.Storage.Endpoint,
		Access:   cfg.Storage.AccessKey,
		Secret:   cfg.Storage.SecretKey,
		Bucket:   cfg.Storage.Bucket,
		UseSSL:   cfg.Storage.UseSSL,
	})
	if err != nil {
		logger.Fatalf("storage client setup failed: %v", err)
	}
	if err := storageClient.EnsureBucket(ctx); err != nil {
		logger.Printf("bucket check failed (continuing, uploads may fail): %v", err)
	}

	photoStore, closeStore := buildPhotoStore(ctx, cfg, logger)
	defer closeStore()

	rateLimiter := buildRateLimiter(cfg, logger)

	app := api.NewServer(logger, queueClient, photoStore, storageClient, api.Options{
		PresignTTL:         cfg.API.PresignTTL,
		LocalInputDir:      cfg.Worker.LocalInputDir,
		RateLimiter:        rateLimiter,
		RateLimitKeyHeader: cfg.API.RateLimitKeyHeader,
		Tracer:             otel.Tracer("passpix/api"),
	})

	httpServer := &http.Server{
		Addr:         cfg.API.Addr,
		Handler:      app.Handler(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Printf("listening on %s", cfg.API.Addr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatalf("server failed: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	logger.Println("shutting down")
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Printf("graceful shutdown failed: %v", err)
	}
	if err := shutdownTracing(shutdownCtx); err != nil {
		logger.Printf("tracing shutdown failed: %v", err)
	}
}

func buildPhotoStore(ctx context.Context, cfg config.Config, logger *log.Logger) (store.PhotoStore, func()) {
	if cfg.Database.DSN == "" {
		logger.Printf("POSTGRES_DSN is empty, using in-memory photo store")
		return store.NewMemoryPhotoStore(), func() {}
	}

	pg, err := store.NewPostgresPhotoStore(ctx, cfg.Database.DSN)
	if err != nil {
		logger.Fatalf("postgres setup failed: %v", err)
	}
	return pg, func() {
		if err := pg.Close(); err != nil {
			logger.Printf("postgres close error: %v", err)
		}
	}
}

func buildRateLimiter(cfg config.Config, logger *log.Logger) api.RateLimiter {
	if cfg.API.RateLimitCapacity <= 0 {
		logger.Printf("rate limiting disabled")
		return nil
	}

	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.Queue.RedisAddr,
		Password: cfg.Queue.RedisPassword,
		DB:       cfg.Queue.RedisDB,
	})
	limiter, err := ratelimit.NewRedisTokenBucket(redisClient, cfg.API.RateLimitCapacity, cfg.API.RateLimitWindow, "passpix:ratelimit")
	if err != nil {
		logger.Fatalf("rate limiter setup failed: %v", err)
	}
	return limiter
}
