package worker

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/hibiken/asynq"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/idphotolab/passpix/internal/config"
	"github.com/idphotolab/passpix/internal/domain"
	"github.com/idphotolab/passpix/internal/facemesh"
	"github.com/idphotolab/passpix/internal/pipeline"
	"github.com/idphotolab/passpix/internal/queue"
	"github.com/idphotolab/passpix/internal/segment"
	"github.com/idphotolab/passpix/internal/storage"
	"github.com/idphotolab/passpix/internal/store"
	"github.com/idphotolab/passpix/internal/webhook"
)

type Server struct {
	logger          *log.Logger
	server          *asynq.Server
	sem             chan struct{}
	localProcessor  *pipeline.Processor
	objectProcessor *pipeline.Processor
	webhookClient   webhookSender
	photoStore      store.PhotoStore
	usageStore      store.UsageStore
	metrics         *metrics
	tracer          trace.Tracer
}

type webhookSender interface {
	Send(ctx context.Context, endpoint, event string, payload any) error
}

func NewServer(
	logger *log.Logger,
	queueCfg config.QueueConfig,
	workerCfg config.WorkerConfig,
	storageClient *storage.Client,
	landmarks facemesh.Provider,
	segmenter segment.Provider,
	webhookClient *webhook.Client,
	photoStore store.PhotoStore,
	usageStore store.UsageStore,
) (*Server, error) {
	if storageClient == nil {
		return nil, fmt.Errorf("storage client is required")
	}
	if landmarks == nil {
		return nil, fmt.Errorf("landmark provider is required")
	}
	if segmenter == nil {
		return nil, fmt.Errorf("segmentation provider is required")
	}

	localProcessor := pipeline.NewProcessor(
		pipeline.LocalFileFetcher{InputDir: workerCfg.LocalInputDir},
		landmarks,
		segmenter,
		pipeline.LocalFileEmitter{OutputDir: workerCfg.LocalOutputDir},
	)
	objectProcessor := pipeline.NewProcessor(
		pipeline.ObjectStoreFetcher{Storage: storageClient},
		landmarks,
		segmenter,
		pipeline.ObjectStoreEmitter{Storage: storageClient},
	)

	if usageStore == nil {
		if photoAndUsageStore, ok := photoStore.(store.UsageStore); ok {
			usageStore = photoAndUsageStore
		}
	}

	s := &Server{
		logger: logger,
		server: asynq.NewServer(
			queueCfg.RedisClientOpt(),
			asynq.Config{
				Concurrency: workerCfg.Concurrency,
				Queues: map[string]int{
					queueCfg.Name: 1,
				},
				LogLevel: asynq.InfoLevel,
				ErrorHandler: asynq.ErrorHandlerFunc(func(ctx context.Context, task *asynq.Task, err error) {
					retried, _ := asynq.GetRetryCount(ctx)
					maxRetry, _ := asynq.GetMaxRetry(ctx)
					logger.Printf("task failed type=%s retry=%d/%d err=%v", task.Type(), retried, maxRetry, err)
				}),
			},
		),
		sem:             make(chan struct{}, max(1, workerCfg.MaxActivePhotos)),
		localProcessor:  localProcessor,
		objectProcessor: objectProcessor,
		webhookClient:   webhookClient,
		photoStore:      photoStore,
		usageStore:      usageStore,
		metrics:         newMetrics(),
		tracer:          otel.Tracer("passpix/worker"),
	}
	return s, nil
}

func (s *Server) Run() error {
	mux := asynq.NewServeMux()
	mux.HandleFunc(queue.TypeProcessPhoto, s.handleProcessPhoto)
	return s.server.Run(mux)
}

func (s *Server) MetricsHandler() http.Handler {
	return s.metrics.Handler()
}

func (s *Server) handleProcessPhoto(ctx context.Context, task *asynq.Task) error {
	startedAt := time.Now()
	finalStatus := domain.PhotoStatusFailed

	payload, err := queue.ParseProcessPhotoPayload(task)
	if err != nil {
		return fmt.Errorf("parse payload: %v: %w", err, asynq.SkipRetry)
	}

	ctx, span := s.tracer.Start(ctx, "worker.process_photo", trace.WithSpanKind(trace.SpanKindConsumer))
	span.SetAttributes(
		attribute.String("photo.id", payload.PhotoID),
		attribute.String("photo.source_type", payload.SourceType),
		attribute.Float64("photo.target_width_mm", payload.Spec.TargetWidthMM),
		attribute.Float64("photo.target_height_mm", payload.Spec.TargetHeightMM),
	)
	defer span.End()
	defer func() {
		s.metrics.photoDuration.WithLabelValues(payload.SourceType, finalStatus).Observe(time.Since(startedAt).Seconds())
		s.metrics.photosTotal.WithLabelValues(payload.SourceType, finalStatus).Inc()
	}()

	s.sem <- struct{}{}
	s.metrics.activePhotos.Inc()
	defer func() {
		<-s.sem
		s.metrics.activePhotos.Dec()
	}()

	s.logger.Printf(
		"Working... photo_id=%s source_type=%s target=%gx%gmm object_key=%s",
		payload.PhotoID,
		payload.SourceType,
		payload.Spec.TargetWidthMM,
		payload.Spec.TargetHeightMM,
		payload.ObjectKey,
	)

	s.updatePhotoStatus(ctx, payload.PhotoID, domain.PhotoStatusProcessing)

	request := pipeline.Request{
		PhotoID:    payload.PhotoID,
		SessionID:  payload.SessionID,
		SourceType: payload.SourceType,
		ObjectKey:  payload.ObjectKey,
		Spec:       payload.Spec,
	}

	var result pipeline.Result
	switch payload.SourceType {
	case domain.SourceTypeLocalFile:
		result, err = s.localProcessor.Process(ctx, request)
	default:
		result, err = s.objectProcessor.Process(ctx, request)
	}
	if err != nil {
		s.updatePhotoStatus(ctx, payload.PhotoID, domain.PhotoStatusFailed)
		span.RecordError(err)
		span.SetStatus(codes.Error, "pipeline failed")
		s.dispatchWebhook(ctx, payload, "photo.failed", map[string]any{
			"photo_id":     payload.PhotoID,
			"status":       domain.PhotoStatusFailed,
			"source_type":  payload.SourceType,
			"object_key":   payload.ObjectKey,
			"requested_at": payload.RequestedAt,
			"failed_at":    time.Now().UTC(),
			"error":        err.Error(),
		})
		return fmt.Errorf("run pipeline: %w", err)
	}

	// A failed outcome is a verdict, not a fault: the photo genuinely has no
	// detectable face or undecodable pixels, and retrying will not change
	// that. Persist it and consume the task.
	if result.Outcome.Status == domain.PhotoStatusFailed {
		s.setOutcome(ctx, payload.PhotoID, result.Outcome, "")
		s.metrics.verdictsTotal.WithLabelValues("rejected").Inc()
		span.SetStatus(codes.Ok, "rejected")
		s.dispatchWebhook(ctx, payload, "photo.failed", map[string]any{
			"photo_id":     payload.PhotoID,
			"status":       domain.PhotoStatusFailed,
			"source_type":  payload.SourceType,
			"object_key":   payload.ObjectKey,
			"requested_at": payload.RequestedAt,
			"failed_at":    time.Now().UTC(),
			"detail":       result.Outcome.Detail,
		})
		return nil
	}

	s.logger.Printf(
		"Processed photo_id=%s output=%s bytes=%d crop_degraded=%t matte_degraded=%t",
		payload.PhotoID,
		result.Output.Path,
		result.Output.Bytes,
		result.Outcome.CropDegraded,
		result.Outcome.MatteDegraded,
	)
	s.setOutcome(ctx, payload.PhotoID, result.Outcome, result.Output.Path)
	s.metrics.verdictsTotal.WithLabelValues("ready").Inc()
	if result.Outcome.CropDegraded {
		s.metrics.degradedStagesTotal.WithLabelValues("crop").Inc()
	}
	if result.Outcome.MatteDegraded {
		s.metrics.degradedStagesTotal.WithLabelValues("matte").Inc()
	}
	s.recordUsage(ctx, payload, result, time.Since(startedAt))

	if err := s.dispatchWebhook(ctx, payload, "photo.ready", map[string]any{
		"photo_id":       payload.PhotoID,
		"status":         domain.PhotoStatusReady,
		"source_type":    payload.SourceType,
		"object_key":     payload.ObjectKey,
		"processed_key":  result.Output.Path,
		"format":         result.Output.Format,
		"width":          result.Output.Width,
		"height":         result.Output.Height,
		"crop_degraded":  result.Outcome.CropDegraded,
		"matte_degraded": result.Outcome.MatteDegraded,
		"requested_at":   payload.RequestedAt,
		"completed_at":   time.Now().UTC(),
	}); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "webhook dispatch failed")
		return err
	}

	finalStatus = domain.PhotoStatusReady
	span.SetStatus(codes.Ok, "processed")
	return nil
}

func (s *Server) updatePhotoStatus(ctx context.Context, photoID, status string) {
	if s.photoStore == nil {
		return
	}
	if _, err := s.photoStore.UpdateStatus(ctx, photoID, status); err != nil {
		s.logger.Printf("photo status update failed photo_id=%s status=%s err=%v", photoID, status, err)
	}
}

func (s *Server) setOutcome(ctx context.Context, photoID string, outcome domain.ComplianceOutcome, processedKey string) {
	if s.photoStore == nil {
		return
	}
	if _, err := s.photoStore.SetOutcome(ctx, photoID, outcome, processedKey); err != nil {
		s.logger.Printf("photo outcome update failed photo_id=%s status=%s err=%v", photoID, outcome.Status, err)
	}
}

func (s *Server) dispatchWebhook(ctx context.Context, payload queue.ProcessPhotoPayload, event string, body map[string]any) error {
	if payload.WebhookURL == "" || s.webhookClient == nil {
		return nil
	}

	if err := s.webhookClient.Send(ctx, payload.WebhookURL, event, body); err != nil {
		s.logger.Printf("webhook delivery failed photo_id=%s event=%s err=%v", payload.PhotoID, event, err)
		return fmt.Errorf("dispatch webhook: %w", err)
	}

	return nil
}

func (s *Server) recordUsage(ctx context.Context, payload queue.ProcessPhotoPayload, result pipeline.Result, computeDuration time.Duration) {
	if s.usageStore == nil {
		return
	}

	sessionID := payload.SessionID
	if sessionID == "" {
		sessionID = "anonymous"
	}

	computeTimeMS := computeDuration.Milliseconds()
	if computeTimeMS < 1 {
		computeTimeMS = 1
	}

	usage := domain.UsageLog{
		SessionID:       sessionID,
		PhotoID:         payload.PhotoID,
		PixelsProcessed: result.Pixels,
		SourceBytes:     int64(result.SourceBytes),
		OutputBytes:     int64(result.Output.Bytes),
		ComputeTimeMS:   computeTimeMS,
		CreatedAt:       time.Now().UTC(),
	}
	if err := s.usageStore.CreateUsageLog(ctx, usage); err != nil {
		s.logger.Printf("usage log write failed photo_id=%s err=%v", payload.PhotoID, err)
		return
	}

	s.metrics.pixelsProcessedTotal.Add(float64(result.Pixels))
	s.metrics.outputBytesTotal.Add(float64(result.Output.Bytes))
	s.metrics.computeTimeMSTotal.Add(float64(computeTimeMS))
}

func max(a, b int) int {
	if a > b {
		return a
	}
	return b
}
