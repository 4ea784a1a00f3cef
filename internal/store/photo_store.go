package store

import (
	"context"
	"errors"

	"github.com/idphotolab/passpix/internal/domain"
)

var ErrPhotoNotFound = errors.New("photo not found")

type PhotoStore interface {
	Create(ctx context.Context, photo domain.Photo) error
	Get(ctx context.Context, id string) (domain.Photo, bool, error)
	UpdateStatus(ctx context.Context, id, status string) (domain.Photo, error)
	SetOutcome(ctx context.Context, id string, outcome domain.ComplianceOutcome, processedKey string) (domain.Photo, error)
}

type UsageStore interface {
	CreateUsageLog(ctx context.Context, usage domain.UsageLog) error
}
