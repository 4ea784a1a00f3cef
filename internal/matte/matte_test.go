package matte

import (
	"image"
	"image/color"
	"image/draw"
	"testing"

	"github.com/idphotolab/passpix/internal/raster"
)

func TestRefineFullMaskKeepsSubjectOpaque(t *testing.T) {
	img := uniformImage(40, 40, color.NRGBA{180, 140, 120, 255})
	mask := raster.NewPlane(40, 40)
	for i := range mask.Pix {
		mask.Pix[i] = 1
	}

	result := Refine(img, mask)
	if result.Degraded {
		t.Fatalf("expected clean refinement, degraded: %s", result.Reason)
	}

	a := result.Image.NRGBAAt(20, 20).A
	if a < 250 {
		t.Fatalf("expected near-opaque center, got alpha %d", a)
	}
}

func TestRefineEmptyMaskRemovesEverything(t *testing.T) {
	img := uniformImage(40, 40, color.NRGBA{180, 140, 120, 255})
	mask := raster.NewPlane(40, 40)

	result := Refine(img, mask)
	if result.Degraded {
		t.Fatalf("expected clean refinement, degraded: %s", result.Reason)
	}

	for y := 0; y < 40; y++ {
		for x := 0; x < 40; x++ {
			if a := result.Image.NRGBAAt(x, y).A; a != 0 {
				t.Fatalf("expected residual fog to snap to zero at (%d,%d), got alpha %d", x, y, a)
			}
		}
	}
}

func TestRefineHardEdgeSeparatesSides(t *testing.T) {
	img := image.NewNRGBA(image.Rect(0, 0, 60, 40))
	draw.Draw(img, image.Rect(0, 0, 30, 40), image.NewUniform(color.NRGBA{90, 70, 60, 255}), image.Point{}, draw.Src)
	draw.Draw(img, image.Rect(30, 0, 60, 40), image.NewUniform(color.NRGBA{240, 240, 240, 255}), image.Point{}, draw.Src)

	mask := raster.NewPlane(60, 40)
	for y := 0; y < 40; y++ {
		for x := 0; x < 30; x++ {
			mask.Set(x, y, 1)
		}
	}

	result := Refine(img, mask)
	if result.Degraded {
		t.Fatalf("expected clean refinement, degraded: %s", result.Reason)
	}

	if a := result.Image.NRGBAAt(5, 20).A; a < 250 {
		t.Fatalf("expected opaque subject side, got alpha %d", a)
	}
	if a := result.Image.NRGBAAt(55, 20).A; a != 0 {
		t.Fatalf("expected transparent background side, got alpha %d", a)
	}
}

func TestRefineMismatchedMaskDegrades(t *testing.T) {
	img := uniformImage(40, 40, color.NRGBA{180, 140, 120, 255})
	mask := raster.NewPlane(20, 20)

	result := Refine(img, mask)
	if !result.Degraded {
		t.Fatal("expected degraded result for a mismatched mask")
	}
	if result.Reason == "" {
		t.Fatal("expected a degradation reason")
	}
	if a := result.Image.NRGBAAt(20, 20).A; a != 255 {
		t.Fatalf("expected opaque fallback, got alpha %d", a)
	}
}

func TestRefineNilMaskDegrades(t *testing.T) {
	img := uniformImage(40, 40, color.NRGBA{180, 140, 120, 255})

	result := Refine(img, nil)
	if !result.Degraded {
		t.Fatal("expected degraded result for a nil mask")
	}
}

func TestRawCompositeAppliesMaskDirectly(t *testing.T) {
	img := uniformImage(20, 20, color.NRGBA{100, 100, 100, 255})
	mask := raster.NewPlane(20, 20)
	for y := 0; y < 20; y++ {
		for x := 0; x < 10; x++ {
			mask.Set(x, y, 1)
		}
	}

	out := RawComposite(img, mask)
	if a := out.NRGBAAt(5, 10).A; a != 255 {
		t.Fatalf("expected opaque left half, got alpha %d", a)
	}
	if a := out.NRGBAAt(15, 10).A; a != 0 {
		t.Fatalf("expected transparent right half, got alpha %d", a)
	}
}

func TestCompositeBackground(t *testing.T) {
	cutout := image.NewNRGBA(image.Rect(0, 0, 2, 1))
	cutout.SetNRGBA(0, 0, color.NRGBA{200, 100, 50, 255})
	cutout.SetNRGBA(1, 0, color.NRGBA{0, 0, 0, 0})

	out := CompositeBackground(cutout, color.NRGBA{255, 255, 255, 255})

	if got := out.NRGBAAt(0, 0); got != (color.NRGBA{200, 100, 50, 255}) {
		t.Fatalf("expected opaque pixel to keep its color, got %+v", got)
	}
	if got := out.NRGBAAt(1, 0); got != (color.NRGBA{255, 255, 255, 255}) {
		t.Fatalf("expected transparent pixel to take the background, got %+v", got)
	}
}

func TestCompositeBackgroundBlendsPartialAlpha(t *testing.T) {
	cutout := image.NewNRGBA(image.Rect(0, 0, 1, 1))
	cutout.SetNRGBA(0, 0, color.NRGBA{0, 0, 0, 128})

	out := CompositeBackground(cutout, color.NRGBA{255, 255, 255, 255})

	got := out.NRGBAAt(0, 0)
	if got.A != 255 {
		t.Fatalf("expected fully opaque output, got alpha %d", got.A)
	}
	if got.R < 126 || got.R > 129 {
		t.Fatalf("expected roughly half-blended channel, got %d", got.R)
	}
}

func uniformImage(w, h int, c color.NRGBA) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	draw.Draw(img, img.Bounds(), image.NewUniform(c), image.Point{}, draw.Src)
	return img
}
