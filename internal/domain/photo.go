package domain

import (
	"errors"
	"fmt"
	"image/color"
	"strings"
	"time"
)

const (
	PhotoStatusUploaded   = "uploaded"
	PhotoStatusProcessing = "processing"
	PhotoStatusReady      = "ready"
	PhotoStatusFailed     = "failed"

	SourceTypeLocalFile   = "local_file"
	SourceTypeS3Presigned = "s3_presigned"
)

// ProcessSpec is the requested print specification for one photo.
type ProcessSpec struct {
	TargetWidthMM  float64 `json:"target_width_mm"`
	TargetHeightMM float64 `json:"target_height_mm"`
	BackgroundHex  string  `json:"background_hex,omitempty"`
	DrawOverlays   bool    `json:"draw_overlays"`
	TransparentPNG bool    `json:"transparent_png"`
}

// DefaultProcessSpec is a 600x600px print at 300 DPI on white, with
// verification overlays drawn.
func DefaultProcessSpec() ProcessSpec {
	return ProcessSpec{
		TargetWidthMM:  50.8,
		TargetHeightMM: 50.8,
		BackgroundHex:  "#ffffff",
		DrawOverlays:   true,
	}
}

func (s ProcessSpec) Validate() error {
	if s.TargetWidthMM <= 0 {
		return errors.New("target_width_mm must be positive")
	}
	if s.TargetHeightMM <= 0 {
		return errors.New("target_height_mm must be positive")
	}
	if s.BackgroundHex != "" {
		if _, err := ParseHexColor(s.BackgroundHex); err != nil {
			return err
		}
	}
	return nil
}

// ParseHexColor parses a #rrggbb background color.
func ParseHexColor(s string) (color.NRGBA, error) {
	s = strings.TrimSpace(s)
	if len(s) != 7 || s[0] != '#' {
		return color.NRGBA{}, fmt.Errorf("invalid background color %q: expected #rrggbb", s)
	}

	var rgb [3]uint8
	for i := 0; i < 3; i++ {
		hi, ok1 := hexNibble(s[1+2*i])
		lo, ok2 := hexNibble(s[2+2*i])
		if !ok1 || !ok2 {
			return color.NRGBA{}, fmt.Errorf("invalid background color %q: expected #rrggbb", s)
		}
		rgb[i] = hi<<4 | lo
	}
	return color.NRGBA{R: rgb[0], G: rgb[1], B: rgb[2], A: 255}, nil
}

func hexNibble(c byte) (uint8, bool) {
	switch {
	case c >= '0' && c <= '9':
		return c - '0', true
	case c >= 'a' && c <= 'f':
		return c - 'a' + 10, true
	case c >= 'A' && c <= 'F':
		return c - 'A' + 10, true
	default:
		return 0, false
	}
}

// ProcessSpecRequest mirrors ProcessSpec for the API payload. DrawOverlays is
// a pointer so an omitted field keeps the overlays-on default instead of
// collapsing to false.
type ProcessSpecRequest struct {
	TargetWidthMM  float64 `json:"target_width_mm"`
	TargetHeightMM float64 `json:"target_height_mm"`
	BackgroundHex  string  `json:"background_hex,omitempty"`
	DrawOverlays   *bool   `json:"draw_overlays,omitempty"`
	TransparentPNG bool    `json:"transparent_png,omitempty"`
}

// CreatePhotoRequest is the API payload for registering a new photo job.
type CreatePhotoRequest struct {
	SourceType string              `json:"source_type"`
	SessionID  string              `json:"session_id,omitempty"`
	WebhookURL string              `json:"webhook_url,omitempty"`
	ObjectKey  string              `json:"object_key,omitempty"`
	Spec       *ProcessSpecRequest `json:"spec,omitempty"`
}

func (r CreatePhotoRequest) Validate() error {
	sourceType := strings.ToLower(strings.TrimSpace(r.SourceType))
	if sourceType == "" {
		return errors.New("source_type is required")
	}
	if sourceType != SourceTypeLocalFile && sourceType != SourceTypeS3Presigned {
		return fmt.Errorf("unsupported source_type: %s", r.SourceType)
	}
	if sourceType == SourceTypeLocalFile && strings.TrimSpace(r.ObjectKey) == "" {
		return errors.New("object_key is required for source_type=local_file")
	}
	if r.Spec != nil {
		if err := r.ResolvedSpec().Validate(); err != nil {
			return err
		}
	}
	return nil
}

// ResolvedSpec returns the requested spec with defaults filled in.
func (r CreatePhotoRequest) ResolvedSpec() ProcessSpec {
	if r.Spec == nil {
		return DefaultProcessSpec()
	}
	spec := ProcessSpec{
		TargetWidthMM:  r.Spec.TargetWidthMM,
		TargetHeightMM: r.Spec.TargetHeightMM,
		BackgroundHex:  r.Spec.BackgroundHex,
		DrawOverlays:   true,
		TransparentPNG: r.Spec.TransparentPNG,
	}
	if r.Spec.DrawOverlays != nil {
		spec.DrawOverlays = *r.Spec.DrawOverlays
	}
	if spec.BackgroundHex == "" {
		spec.BackgroundHex = "#ffffff"
	}
	return spec
}

// ComplianceOutcome is the per-attempt processing verdict persisted with the
// photo record.
type ComplianceOutcome struct {
	Status        string `json:"status"`
	Detail        string `json:"detail,omitempty"`
	FaceFound     bool   `json:"face_found"`
	CropDegraded  bool   `json:"crop_degraded,omitempty"`
	MatteDegraded bool   `json:"matte_degraded,omitempty"`
}

// Photo is one photo-processing job.
type Photo struct {
	ID           string
	SessionID    string
	Status       string
	SourceType   string
	WebhookURL   string
	ObjectKey    string
	ProcessedKey string
	Spec         ProcessSpec
	Outcome      *ComplianceOutcome
	CreatedAt    time.Time
	UpdatedAt    time.Time
	ProcessedAt  *time.Time
}
