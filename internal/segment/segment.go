package segment

import (
	"context"
	"image"

	"github.com/idphotolab/passpix/internal/raster"
)

// Provider produces a raw foreground alpha mask for an image. The mask is the
// model's unrefined opinion; refinement is the matte engine's job.
type Provider interface {
	Segment(ctx context.Context, img image.Image) (*raster.Plane, error)
}
