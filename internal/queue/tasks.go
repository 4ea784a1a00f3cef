package queue

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/hibiken/asynq"

	"github.com/idphotolab/passpix/internal/domain"
)

const TypeProcessPhoto = "photo:process"

type ProcessPhotoPayload struct {
	PhotoID     string             `json:"photo_id"`
	SessionID   string             `json:"session_id,omitempty"`
	SourceType  string             `json:"source_type"`
	WebhookURL  string             `json:"webhook_url,omitempty"`
	ObjectKey   string             `json:"object_key"`
	Spec        domain.ProcessSpec `json:"spec"`
	RequestedAt time.Time          `json:"requested_at"`
}

func NewProcessPhotoTask(payload ProcessPhotoPayload) (*asynq.Task, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal process payload: %w", err)
	}
	return asynq.NewTask(TypeProcessPhoto, body), nil
}

func ParseProcessPhotoPayload(task *asynq.Task) (ProcessPhotoPayload, error) {
	var payload ProcessPhotoPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return ProcessPhotoPayload{}, fmt.Errorf("unmarshal process payload: %w", err)
	}
	return payload, nil
}
