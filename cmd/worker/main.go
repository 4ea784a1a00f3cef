package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"time"

	"github.com/idphotolab/passpix/internal/config"
	"github.com/idphotolab/passpix/internal/encode"
	"github.com/idphotolab/passpix/internal/facemesh"
	"github.com/idphotolab/passpix/internal/segment"
	"github.com/idphotolab/passpix/internal/storage"
	"github.com/idphotolab/passpix/internal/store"
	"github.com/idphotolab/passpix/internal/telemetry"
	"github.com/idphotolab/passpix/internal/webhook"
	"github.com/idphotolab/passpix/internal/worker"
)

func main() {
	cfg := config.Load()
	logger := log.New(os.Stdout, "[worker] ", log.LstdFlags|log.Lmsgprefix)

	ctx := context.Background()

	shutdownTracing, err := telemetry.SetupTracing(ctx, telemetry.TraceConfig{
		ServiceName:  "passpix-worker",
		Exporter:     cfg.Tracing.Exporter,
		OTLPEndpoint: cfg.Tracing.OTLPEndpoint,
		OTLPInsecure: cfg.Tracing.OTLPInsecure,
	}, logger)
	if err != nil {
		logger.Fatalf("tracing setup failed: %v", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracing(shutdownCtx); err != nil {
			logger.Printf("tracing shutdown failed: %v", err)
		}
	}()

	if err := encode.Startup(); err != nil {
		logger.Fatalf("image runtime startup failed: %v", err)
	}
	defer encode.Shutdown()

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
		logger.Printf("bucket check failed (continuing, object-store photos may fail): %v", err)
	}

	photoStore, closeStore := buildPhotoStore(ctx, cfg, logger)
	defer closeStore()

	landmarks := buildLandmarkChain(cfg)
	segmenter := segment.NewHTTPProvider(segment.HTTPProviderConfig{
		Endpoint: cfg.Providers.SegmentEndpoint,
		Timeout:  cfg.Providers.Timeout,
	})

	webhookClient := webhook.NewClient(webhook.Config{
		SigningSecret: cfg.Webhook.SigningSecret,
		MaxAttempts:   cfg.Webhook.MaxAttempts,
	})

	logger.Printf(
		"starting worker concurrency=%d max_active_photos=%d queue=%s redis=%s landmark_endpoints=%d",
		cfg.Worker.Concurrency,
		cfg.Worker.MaxActivePhotos,
		cfg.Queue.Name,
		cfg.Queue.RedisAddr,
		len(cfg.Providers.LandmarkEndpoints),
	)

	srv, err := worker.NewServer(
		logger,
		cfg.Queue,
		cfg.Worker,
		storageClient,
		landmarks,
		segmenter,
		webhookClient,
		photoStore,
		nil,
	)
	if err != nil {
		logger.Fatalf("worker setup failed: %v", err)
	}

	go func() {
		mux := http.NewServeMux()
		mux.Handle("GET /metrics", srv.MetricsHandler())
		logger.Printf("worker metrics on %s", cfg.Worker.MetricsAddr)
		if err := http.ListenAndServe(cfg.Worker.MetricsAddr, mux); err != nil && err != http.ErrServerClosed {
			logger.Printf("metrics server failed: %v", err)
		}
	}()

	if err := srv.Run(); err != nil {
		logger.Fatalf("worker failed: %v", err)
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

func buildLandmarkChain(cfg config.Config) facemesh.Provider {
	providers := make([]facemesh.Provider, 0, len(cfg.Providers.LandmarkEndpoints))
	for _, endpoint := range cfg.Providers.LandmarkEndpoints {
		providers = append(providers, facemesh.NewHTTPProvider(facemesh.HTTPProviderConfig{
			Endpoint: endpoint,
			Timeout:  cfg.Providers.Timeout,
		}))
	}
	return facemesh.NewChain(providers...)
}
