package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/lib/pq"

	"github.com/idphotolab/passpix/internal/domain"
)

const photoSchemaSQL = `
CREATE TABLE IF NOT EXISTS photos (
	id TEXT PRIMARY KEY,
	session_id TEXT NOT NULL DEFAULT '',
	status TEXT NOT NULL,
	source_type TEXT NOT NULL,
	webhook_url TEXT NOT NULL DEFAULT '',
	object_key TEXT NOT NULL,
	processed_key TEXT NOT NULL DEFAULT '',
	spec JSONB NOT NULL,
	outcome JSONB,
	created_at TIMESTAMPTZ NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL,
	processed_at TIMESTAMPTZ
);
CREATE INDEX IF NOT EXISTS photos_session_id_idx ON photos (session_id);

CREATE TABLE IF NOT EXISTS usage_logs (
	id BIGSERIAL PRIMARY KEY,
	session_id TEXT NOT NULL DEFAULT '',
	photo_id TEXT NOT NULL,
	pixels_processed BIGINT NOT NULL,
	source_bytes BIGINT NOT NULL,
	output_bytes BIGINT NOT NULL,
	compute_time_ms BIGINT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL
);
`

type PostgresPhotoStore struct {
	db *sql.DB
}

func NewPostgresPhotoStore(ctx context.Context, dsn string) (*PostgresPhotoStore, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres connection: %w", err)
	}

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	s := &PostgresPhotoStore{db: db}
	if err := s.EnsureSchema(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}

	return s, nil
}

func (s *PostgresPhotoStore) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, photoSchemaSQL); err != nil {
		return fmt.Errorf("ensure photos schema: %w", err)
	}
	return nil
}

func (s *PostgresPhotoStore) Close() error {
	return s.db.Close()
}

func (s *PostgresPhotoStore) Create(ctx context.Context, photo domain.Photo) error {
	specJSON, err := json.Marshal(photo.Spec)
	if err != nil {
		return fmt.Errorf("marshal photo spec: %w", err)
	}

	_, err = s.db.ExecContext(
		ctx,
		`INSERT INTO photos (id, session_id, status, source_type, webhook_url, object_key, processed_key, spec, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		photo.ID,
		photo.SessionID,
		photo.Status,
		photo.SourceType,
		photo.WebhookURL,
		photo.ObjectKey,
		photo.ProcessedKey,
		specJSON,
		photo.CreatedAt,
		photo.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert photo: %w", err)
	}

	return nil
}

func (s *PostgresPhotoStore) Get(ctx context.Context, id string) (domain.Photo, bool, error) {
	row := s.db.QueryRowContext(
		ctx,
		`SELECT id, session_id, status, source_type, webhook_url, object_key, processed_key, spec, outcome, created_at, updated_at, processed_at
		 FROM photos
		 WHERE id = $1`,
		id,
	)

	var (
		photo       domain.Photo
		specJSON    []byte
		outcomeJSON []byte
		processedAt sql.NullTime
	)
	if err := row.Scan(
		&photo.ID,
		&photo.SessionID,
		&photo.Status,
		&photo.SourceType,
		&photo.WebhookURL,
		&photo.ObjectKey,
		&photo.ProcessedKey,
		&specJSON,
		&outcomeJSON,
		&photo.CreatedAt,
		&photo.UpdatedAt,
		&processedAt,
	); err != nil {
		if err == sql.ErrNoRows {
			return domain.Photo{}, false, nil
		}
		return domain.Photo{}, false, fmt.Errorf("query photo: %w", err)
	}

	if err := json.Unmarshal(specJSON, &photo.Spec); err != nil {
		return domain.Photo{}, false, fmt.Errorf("unmarshal photo spec: %w", err)
	}
	if len(outcomeJSON) > 0 {
		var outcome domain.ComplianceOutcome
		if err := json.Unmarshal(outcomeJSON, &outcome); err != nil {
			return domain.Photo{}, false, fmt.Errorf("unmarshal photo outcome: %w", err)
		}
		photo.Outcome = &outcome
	}
	if processedAt.Valid {
		t := processedAt.Time
		photo.ProcessedAt = &t
	}

	return photo, true, nil
}

func (s *PostgresPhotoStore) UpdateStatus(ctx context.Context, id, status string) (domain.Photo, error) {
	now := time.Now().UTC()
	_, err := s.db.ExecContext(
		ctx,
		`UPDATE photos
		 SET status = $1, updated_at = $2
		 WHERE id = $3`,
		status,
		now,
		id,
	)
	if err != nil {
		return domain.Photo{}, fmt.Errorf("update photo status: %w", err)
	}

	return s.mustGet(ctx, id)
}

func (s *PostgresPhotoStore) SetOutcome(ctx context.Context, id string, outcome domain.ComplianceOutcome, processedKey string) (domain.Photo, error) {
	outcomeJSON, err := json.Marshal(outcome)
	if err != nil {
		return domain.Photo{}, fmt.Errorf("marshal photo outcome: %w", err)
	}

	now := time.Now().UTC()
	_, err = s.db.ExecContext(
		ctx,
		`UPDATE photos
		 SET status = $1, outcome = $2, processed_key = $3, updated_at = $4, processed_at = $4
		 WHERE id = $5`,
		outcome.Status,
		outcomeJSON,
		processedKey,
		now,
		id,
	)
	if err != nil {
		return domain.Photo{}, fmt.Errorf("set photo outcome: %w", err)
	}

	return s.mustGet(ctx, id)
}

func (s *PostgresPhotoStore) CreateUsageLog(ctx context.Context, usage domain.UsageLog) error {
	_, err := s.db.ExecContext(
		ctx,
		`INSERT INTO usage_logs (session_id, photo_id, pixels_processed, source_bytes, output_bytes, compute_time_ms, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		usage.SessionID,
		usage.PhotoID,
		usage.PixelsProcessed,
		usage.SourceBytes,
		usage.OutputBytes,
		usage.ComputeTimeMS,
		usage.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert usage log: %w", err)
	}
	return nil
}

func (s *PostgresPhotoStore) mustGet(ctx context.Context, id string) (domain.Photo, error) {
	photo, ok, err := s.Get(ctx, id)
	if err != nil {
		return domain.Photo{}, err
	}
	if !ok {
		return domain.Photo{}, ErrPhotoNotFound
	}
	return photo, nil
}
