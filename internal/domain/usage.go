package domain

import "time"

// UsageLog records compute accounting for one processed photo.
type UsageLog struct {
	SessionID       string
	PhotoID         string
	PixelsProcessed int64
	SourceBytes     int64
	OutputBytes     int64
	ComputeTimeMS   int64
	CreatedAt       time.Time
}
