package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/hibiken/asynq"
	"go.opentelemetry.io/otel/trace"

	"github.com/idphotolab/passpix/internal/domain"
	"github.com/idphotolab/passpix/internal/id"
	"github.com/idphotolab/passpix/internal/queue"
	"github.com/idphotolab/passpix/internal/storage"
	"github.com/idphotolab/passpix/internal/store"
)

type Server struct {
	logger             *log.Logger
	queueClient        queueEnqueuer
	photoStore         store.PhotoStore
	storage            objectStorage
	presignTTL         time.Duration
	localInputDir      string
	rateLimiter        RateLimiter
	rateLimitKeyHeader string
	metrics            *metrics
	tracer             trace.Tracer
	mux                *http.ServeMux
}

type queueEnqueuer interface {
	EnqueueProcessPhoto(ctx context.Context, payload queue.ProcessPhotoPayload) (*asynq.TaskInfo, error)
}

type objectStorage interface {
	PresignedPutURL(ctx context.Context, objectKey string, expiry time.Duration) (string, error)
	PresignedGetURL(ctx context.Context, objectKey string, expiry time.Duration) (string, error)
	ObjectExists(ctx context.Context, objectKey string) (bool, error)
}

type Options struct {
	PresignTTL         time.Duration
	LocalInputDir      string
	RateLimiter        RateLimiter
	RateLimitKeyHeader string
	Tracer             trace.Tracer
}

func NewServer(logger *log.Logger, queueClient queueEnqueuer, photoStore store.PhotoStore, objStorage objectStorage, opts Options) *Server {
	if opts.PresignTTL <= 0 {
		opts.PresignTTL = 15 * time.Minute
	}
	if objStorage == nil {
		objStorage = unavailableObjectStorage{}
	}
	if opts.RateLimitKeyHeader == "" {
		opts.RateLimitKeyHeader = "X-Session-ID"
	}

	s := &Server{
		logger:             logger,
		queueClient:        queueClient,
		photoStore:         photoStore,
		storage:            objStorage,
		presignTTL:         opts.PresignTTL,
		localInputDir:      opts.LocalInputDir,
		rateLimiter:        opts.RateLimiter,
		rateLimitKeyHeader: opts.RateLimitKeyHeader,
		metrics:            newMetrics(),
		tracer:             opts.Tracer,
		mux:                http.NewServeMux(),
	}
	s.routes()
	return s
}

type unavailableObjectStorage struct{}

func (unavailableObjectStorage) PresignedPutURL(_ context.Context, _ string, _ time.Duration) (string, error) {
	return "", errors.New("object storage is unavailable")
}

func (unavailableObjectStorage) PresignedGetURL(_ context.Context, _ string, _ time.Duration) (string, error) {
	return "", errors.New("object storage is unavailable")
}

func (unavailableObjectStorage) ObjectExists(_ context.Context, _ string) (bool, error) {
	return false, errors.New("object storage is unavailable")
}

func (s *Server) Handler() http.Handler {
	return s.withTracing(s.metrics.withHTTPMetrics(s.withRateLimit(s.mux)))
}

func (s *Server) routes() {
	s.mux.HandleFunc("GET /healthz", s.handleHealthz)
	s.mux.Handle("GET /metrics", s.metrics.metricsHandler())
	s.mux.HandleFunc("POST /v1/photos", s.handleCreatePhoto)
	s.mux.HandleFunc("POST /v1/photos/", s.handleProcessPhoto)
	s.mux.HandleFunc("GET /v1/photos/", s.handleGetPhoto)
}

func (s *Server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleCreatePhoto(w http.ResponseWriter, r *http.Request) {
	var req domain.CreatePhotoRequest
	if err := decodeJSON(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	if err := req.Validate(); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}

	now := time.Now().UTC()
	photoID := id.New()
	sourceType := strings.ToLower(strings.TrimSpace(req.SourceType))
	objectKey := strings.TrimSpace(req.ObjectKey)
	uploadState := "not_required"
	presignedPutURL := ""

	if sourceType == domain.SourceTypeS3Presigned {
		objectKey = storage.UploadKey(photoID)
		url, err := s.storage.PresignedPutURL(r.Context(), objectKey, s.presignTTL)
		if err != nil {
			s.logger.Printf("generate presigned url failed for photo %s: %v", photoID, err)
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to generate upload URL"})
			return
		}
		presignedPutURL = url
		uploadState = "ready"
	}

	photo := domain.Photo{
		ID:         photoID,
		SessionID:  strings.TrimSpace(req.SessionID),
		Status:     domain.PhotoStatusUploaded,
		SourceType: sourceType,
		WebhookURL: req.WebhookURL,
		ObjectKey:  objectKey,
		Spec:       req.ResolvedSpec(),
		CreatedAt:  now,
		UpdatedAt:  now,
	}

	if err := s.photoStore.Create(r.Context(), photo); err != nil {
		s.logger.Printf("create photo failed for photo %s: %v", photo.ID, err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to create photo"})
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]any{
		"photo_id": photo.ID,
		"status":   photo.Status,
		"upload": map[string]string{
			"object_key":          photo.ObjectKey,
			"presigned_put_url":   presignedPutURL,
			"presigned_url_state": uploadState,
		},
		"process_url": fmt.Sprintf("/v1/photos/%s/process", photo.ID),
	})
}

func (s *Server) handleProcessPhoto(w http.ResponseWriter, r *http.Request) {
	photoID, err := extractPhotoIDFromProcessPath(r.URL.Path)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}

	photo, ok, err := s.photoStore.Get(r.Context(), photoID)
	if err != nil {
		s.logger.Printf("fetch photo failed for photo %s: %v", photoID, err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to load photo"})
		return
	}
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "photo not found"})
		return
	}

	if err := s.verifySourceExists(r.Context(), photo); err != nil {
		writeJSON(w, http.StatusConflict, map[string]string{"error": err.Error()})
		return
	}

	payload := queue.ProcessPhotoPayload{
		PhotoID:     photo.ID,
		SessionID:   photo.SessionID,
		SourceType:  photo.SourceType,
		WebhookURL:  photo.WebhookURL,
		ObjectKey:   photo.ObjectKey,
		Spec:        photo.Spec,
		RequestedAt: time.Now().UTC(),
	}

	taskInfo, err := s.queueClient.EnqueueProcessPhoto(r.Context(), payload)
	if err != nil {
		s.logger.Printf("enqueue failed for photo %s: %v", photo.ID, err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to enqueue photo"})
		return
	}
	s.metrics.queueEnqueued.WithLabelValues(taskInfo.Queue).Inc()

	if _, err := s.photoStore.UpdateStatus(r.Context(), photo.ID, domain.PhotoStatusProcessing); err != nil {
		s.logger.Printf("update status failed for photo %s: %v", photo.ID, err)
	}

	writeJSON(w, http.StatusAccepted, map[string]any{
		"photo_id":    photo.ID,
		"status":      domain.PhotoStatusProcessing,
		"queue":       taskInfo.Queue,
		"task_id":     taskInfo.ID,
		"state":       taskInfo.State.String(),
		"enqueued_at": taskInfo.NextProcessAt,
	})
}

func (s *Server) handleGetPhoto(w http.ResponseWriter, r *http.Request) {
	photoID, err := extractPhotoIDFromGetPath(r.URL.Path)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}

	photo, ok, err := s.photoStore.Get(r.Context(), photoID)
	if err != nil {
		s.logger.Printf("fetch photo failed for photo %s: %v", photoID, err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to load photo"})
		return
	}
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "photo not found"})
		return
	}

	resp := map[string]any{
		"photo_id":    photo.ID,
		"status":      photo.Status,
		"source_type": photo.SourceType,
		"spec":        photo.Spec,
		"created_at":  photo.CreatedAt,
		"updated_at":  photo.UpdatedAt,
	}
	if photo.Outcome != nil {
		resp["outcome"] = photo.Outcome
	}
	if photo.ProcessedAt != nil {
		resp["processed_at"] = photo.ProcessedAt
	}
	if photo.ProcessedKey != "" {
		resp["processed_key"] = photo.ProcessedKey
		if photo.SourceType == domain.SourceTypeS3Presigned {
			url, err := s.storage.PresignedGetURL(r.Context(), photo.ProcessedKey, s.presignTTL)
			if err != nil {
				s.logger.Printf("generate download url failed for photo %s: %v", photo.ID, err)
			} else {
				resp["download_url"] = url
			}
		}
	}

	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) verifySourceExists(ctx context.Context, photo domain.Photo) error {
	switch photo.SourceType {
	case domain.SourceTypeLocalFile:
		fullPath := photo.ObjectKey
		if strings.TrimSpace(s.localInputDir) != "" {
			fullPath = filepath.Join(s.localInputDir, filepath.Base(photo.ObjectKey))
		}
		if _, err := os.Stat(fullPath); err != nil {
			if errors.Is(err, os.ErrNotExist) {
				return fmt.Errorf("source object is missing: %s", fullPath)
			}
			return fmt.Errorf("source object check failed: %w", err)
		}
		return nil
	default:
		exists, err := s.storage.ObjectExists(ctx, photo.ObjectKey)
		if err != nil {
			return fmt.Errorf("source object check failed: %w", err)
		}
		if !exists {
			return fmt.Errorf("source object is missing: %s", photo.ObjectKey)
		}
		return nil
	}
}

func extractPhotoIDFromProcessPath(path string) (string, error) {
	trimmed := strings.TrimPrefix(path, "/v1/photos/")
	parts := strings.Split(strings.Trim(trimmed, "/"), "/")
	if len(parts) != 2 || parts[0] == "" || parts[1] != "process" {
		return "", errors.New("expected path format /v1/photos/{id}/process")
	}
	return parts[0], nil
}

func extractPhotoIDFromGetPath(path string) (string, error) {
	trimmed := strings.TrimPrefix(path, "/v1/photos/")
	parts := strings.Split(strings.Trim(trimmed, "/"), "/")
	if len(parts) != 1 || parts[0] == "" {
		return "", errors.New("expected path format /v1/photos/{id}")
	}
	return parts[0], nil
}

func decodeJSON(r *http.Request, into any) error {
	const maxBodyBytes = 1 << 20
	limited := io.LimitReader(r.Body, maxBodyBytes)
	decoder := json.NewDecoder(limited)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(into); err != nil {
		return fmt.Errorf("invalid JSON body: %w", err)
	}
	if err := decoder.Decode(&struct{}{}); err != io.EOF {
		return errors.New("invalid JSON body: multiple JSON values are not allowed")
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}
