package store

import (
	"context"
	"sync"
	"time"

	"github.com/idphotolab/passpix/internal/domain"
)

type MemoryPhotoStore struct {
	mu     sync.RWMutex
	photos map[string]domain.Photo
	usage  []domain.UsageLog
}

func NewMemoryPhotoStore() *MemoryPhotoStore {
	return &MemoryPhotoStore{
		photos: make(map[string]domain.Photo),
	}
}

func (s *MemoryPhotoStore) Create(_ context.Context, photo domain.Photo) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.photos[photo.ID] = photo
	return nil
}

func (s *MemoryPhotoStore) Get(_ context.Context, id string) (domain.Photo, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	photo, ok := s.photos[id]
	return photo, ok, nil
}

func (s *MemoryPhotoStore) UpdateStatus(_ context.Context, id, status string) (domain.Photo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	photo, ok := s.photos[id]
	if !ok {
		return domain.Photo{}, ErrPhotoNotFound
	}

	photo.Status = status
	photo.UpdatedAt = time.Now().UTC()
	s.photos[id] = photo
	return photo, nil
}

func (s *MemoryPhotoStore) SetOutcome(_ context.Context, id string, outcome domain.ComplianceOutcome, processedKey string) (domain.Photo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	photo, ok := s.photos[id]
	if !ok {
		return domain.Photo{}, ErrPhotoNotFound
	}

	now := time.Now().UTC()
	photo.Status = outcome.Status
	photo.Outcome = &outcome
	photo.ProcessedKey = processedKey
	photo.UpdatedAt = now
	photo.ProcessedAt = &now
	s.photos[id] = photo
	return photo, nil
}

func (s *MemoryPhotoStore) CreateUsageLog(_ context.Context, usage domain.UsageLog) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.usage = append(s.usage, usage)
	return nil
}
