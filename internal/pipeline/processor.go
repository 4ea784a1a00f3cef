package pipeline

import (
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"strings"

	"github.com/idphotolab/passpix/internal/domain"
	"github.com/idphotolab/passpix/internal/encode"
	"github.com/idphotolab/passpix/internal/facemesh"
	"github.com/idphotolab/passpix/internal/geometry"
	"github.com/idphotolab/passpix/internal/matte"
	"github.com/idphotolab/passpix/internal/overlay"
	"github.com/idphotolab/passpix/internal/segment"
)

var ErrUnsupportedSourceType = errors.New("unsupported source_type")

// overlayRedetectPad is how far the final frame is padded on each side before
// re-running landmark detection for the measurement guides. The crop can push
// the chin close to the frame edge, which some detectors reject.
const overlayRedetectPad = 0.2

const jpegQuality = 95

type Request struct {
	PhotoID    string
	SessionID  string
	SourceType string
	ObjectKey  string
	Spec       domain.ProcessSpec
}

// Output describes the single emitted file for a photo.
type Output struct {
	Format string
	Path   string
	Bytes  int
	Width  int
	Height int
}

type Result struct {
	Outcome     domain.ComplianceOutcome
	Output      Output
	SourceBytes int
	Pixels      int64
}

type Fetcher interface {
	Fetch(ctx context.Context, req Request) ([]byte, error)
}

type Emitter interface {
	Emit(ctx context.Context, req Request, data []byte, format string) (Output, error)
}

type Processor struct {
	fetcher   Fetcher
	landmarks facemesh.Provider
	segmenter segment.Provider
	emitter   Emitter
}

func NewProcessor(fetcher Fetcher, landmarks facemesh.Provider, segmenter segment.Provider, emitter Emitter) *Processor {
	return &Processor{
		fetcher:   fetcher,
		landmarks: landmarks,
		segmenter: segmenter,
		emitter:   emitter,
	}
}

// Process runs the full photo pipeline: fetch, detect, frame, matte,
// composite, encode, emit. A missing face is a terminal verdict, not an
// error: the returned Result carries a failed outcome and err is nil, so the
// job is not retried. Errors are reserved for infrastructure faults worth
// retrying.
func (p *Processor) Process(ctx context.Context, req Request) (Result, error) {
	if strings.TrimSpace(req.PhotoID) == "" {
		return Result{}, errors.New("photo_id is required")
	}
	if err := req.Spec.Validate(); err != nil {
		return Result{}, fmt.Errorf("invalid spec: %w", err)
	}

	sourceBytes, err := p.fetcher.Fetch(ctx, req)
	if err != nil {
		return Result{}, fmt.Errorf("fetch stage: %w", err)
	}

	src, _, err := encode.Decode(sourceBytes)
	if err != nil {
		return Result{
			Outcome: domain.ComplianceOutcome{
				Status: domain.PhotoStatusFailed,
				Detail: fmt.Sprintf("source is not a decodable image: %v", err),
			},
			SourceBytes: len(sourceBytes),
		}, nil
	}

	lm, found, err := p.landmarks.DetectLandmarks(ctx, src)
	if err != nil {
		return Result{}, fmt.Errorf("landmark stage: %w", err)
	}
	if !found {
		return Result{
			Outcome: domain.ComplianceOutcome{
				Status: domain.PhotoStatusFailed,
				Detail: "no face detected in source image",
			},
			SourceBytes: len(sourceBytes),
		}, nil
	}

	cropped := geometry.Crop(src, lm, req.Spec.TargetWidthMM, req.Spec.TargetHeightMM)

	cutout, matteDegraded, matteReason := p.refineMatte(ctx, cropped)

	bg := color.NRGBA{R: 255, G: 255, B: 255, A: 255}
	if req.Spec.BackgroundHex != "" {
		bg, err = domain.ParseHexColor(req.Spec.BackgroundHex)
		if err != nil {
			return Result{}, fmt.Errorf("invalid spec: %w", err)
		}
	}

	format := encode.FormatJPEG
	var final *image.NRGBA
	if req.Spec.TransparentPNG {
		format = encode.FormatPNG
		final = cutout
	} else {
		final = matte.CompositeBackground(cutout, bg)
	}

	// The overlay pass is not compliance-critical: a provider outage during
	// re-detection downgrades to emitting the frame without guides.
	var overlayNote string
	if req.Spec.DrawOverlays {
		fill := color.Color(bg)
		if req.Spec.TransparentPNG {
			fill = color.NRGBA{}
		}
		frameLM, _, err := facemesh.DetectPadded(ctx, p.landmarks, final, overlayRedetectPad, fill)
		if err != nil {
			overlayNote = fmt.Sprintf("measurement guides skipped: %v", err)
		} else {
			final = overlay.Draw(final, frameLM)
		}
	}

	encoded, err := encode.Export(final, format, jpegQuality)
	if err != nil {
		return Result{}, fmt.Errorf("encode stage: %w", err)
	}

	out, err := p.emitter.Emit(ctx, req, encoded, format)
	if err != nil {
		return Result{}, fmt.Errorf("emit stage: %w", err)
	}
	out.Width = final.Bounds().Dx()
	out.Height = final.Bounds().Dy()

	outcome := domain.ComplianceOutcome{
		Status:        domain.PhotoStatusReady,
		FaceFound:     true,
		CropDegraded:  cropped.Degraded,
		MatteDegraded: matteDegraded,
	}
	var notes []string
	if cropped.Degraded {
		notes = append(notes, cropped.Reason)
	}
	if matteDegraded {
		notes = append(notes, matteReason)
	}
	if overlayNote != "" {
		notes = append(notes, overlayNote)
	}
	outcome.Detail = strings.Join(notes, "; ")

	return Result{
		Outcome:     outcome,
		Output:      out,
		SourceBytes: len(sourceBytes),
		Pixels:      int64(out.Width) * int64(out.Height),
	}, nil
}

// refineMatte segments the cropped frame and refines the mask. Segmentation
// failures degrade to a fully opaque cutout so the photo still produces an
// output; the outcome records the downgrade.
func (p *Processor) refineMatte(ctx context.Context, cropped geometry.Result) (cutout *image.NRGBA, degraded bool, reason string) {
	raw, err := p.segmenter.Segment(ctx, cropped.Image)
	if err != nil {
		return matte.OpaqueCutout(cropped.Image), true, fmt.Sprintf("segmentation unavailable: %v", err)
	}

	refined := matte.Refine(cropped.Image, raw)
	return refined.Image, refined.Degraded, refined.Reason
}
