package facemesh

import (
	"context"
	"image"
	"image/color"
	"image/draw"
)

// DetectPadded re-runs detection on a copy of the frame padded by padFrac on
// each axis, then shifts the points back into the unpadded coordinate space.
// Tightly cropped outputs often defeat detection at the frame edge; padding
// restores enough context for the mesh to lock on.
func DetectPadded(ctx context.Context, p Provider, img image.Image, padFrac float64, fill color.Color) (LandmarkSet, bool, error) {
	bounds := img.Bounds()
	w, h := bounds.Dx(), bounds.Dy()
	padX := int(float64(w) * padFrac)
	padY := int(float64(h) * padFrac)

	padded := image.NewNRGBA(image.Rect(0, 0, w+2*padX, h+2*padY))
	draw.Draw(padded, padded.Bounds(), image.NewUniform(fill), image.Point{}, draw.Src)
	draw.Draw(padded, image.Rect(padX, padY, padX+w, padY+h), img, bounds.Min, draw.Over)

	set, ok, err := p.DetectLandmarks(ctx, padded)
	if err != nil || !ok {
		return nil, ok, err
	}
	return set.Shift(float64(-padX), float64(-padY)), true, nil
}
