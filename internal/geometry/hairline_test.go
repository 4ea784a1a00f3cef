package geometry

import (
	"image"
	"image/color"
	"image/draw"
	"math"
	"testing"
)

func TestEstimateHairTopPlainBackgroundUsesFallback(t *testing.T) {
	img := whiteCanvas(400, 400)

	got := EstimateHairTop(img, 200, 220, 320, 100)
	if got.Refined {
		t.Fatal("expected landmark fallback on a plain background")
	}
	want := 220 - 100*hairBufferRatio
	if math.Abs(got.Y-want) > 1e-9 {
		t.Fatalf("expected fallback y=%.2f, got %.2f", want, got.Y)
	}
}

func TestEstimateHairTopRefinesToDarkHair(t *testing.T) {
	img := whiteCanvas(400, 400)
	// Dark hair mass starting at y=170, well inside the scan band.
	draw.Draw(img, image.Rect(100, 170, 300, 400), image.NewUniform(color.NRGBA{30, 25, 20, 255}), image.Point{}, draw.Src)

	got := EstimateHairTop(img, 200, 220, 320, 100)
	if !got.Refined {
		t.Fatal("expected pixel scan to refine the estimate")
	}

	fallback := 220 - 100*hairBufferRatio
	if got.Y >= fallback {
		t.Fatalf("refined estimate %.2f should lift above fallback %.2f", got.Y, fallback)
	}
	// Streak confirmation plus the safety margin lands a few rows above the
	// first dark row.
	if got.Y < 160 || got.Y > 172 {
		t.Fatalf("expected estimate near y=168, got %.2f", got.Y)
	}
}

func TestEstimateHairTopFractionalEyeCenter(t *testing.T) {
	img := whiteCanvas(400, 400)
	draw.Draw(img, image.Rect(100, 170, 300, 400), image.NewUniform(color.NRGBA{30, 25, 20, 255}), image.Point{}, draw.Src)

	// A sub-pixel eye center truncates the same way on both band edges, so
	// the scan band stays 2*bandHalf wide and the estimate matches the
	// integer-center run.
	whole := EstimateHairTop(img, 200, 220, 320, 100)
	frac := EstimateHairTop(img, 200.7, 220, 320, 100)
	if !frac.Refined {
		t.Fatal("expected pixel scan to refine with a fractional eye center")
	}
	if frac.Y != whole.Y {
		t.Fatalf("fractional center shifted the estimate: %.2f vs %.2f", frac.Y, whole.Y)
	}
}

func TestEstimateHairTopNeverDropsBelowFallback(t *testing.T) {
	img := whiteCanvas(400, 400)
	// Dark region starting below the fallback line must not push the
	// estimate down.
	draw.Draw(img, image.Rect(100, 260, 300, 400), image.NewUniform(color.NRGBA{30, 25, 20, 255}), image.Point{}, draw.Src)

	got := EstimateHairTop(img, 200, 220, 320, 100)
	fallback := 220 - 100*hairBufferRatio
	if got.Y > fallback {
		t.Fatalf("estimate %.2f must not exceed fallback %.2f", got.Y, fallback)
	}
}

func TestEstimateHairTopClampsAbsurdLift(t *testing.T) {
	img := whiteCanvas(400, 400)
	// Busy background: dark content from the very top of the frame, below
	// the border sampling rows.
	draw.Draw(img, image.Rect(100, 10, 300, 400), image.NewUniform(color.NRGBA{30, 25, 20, 255}), image.Point{}, draw.Src)

	got := EstimateHairTop(img, 200, 220, 320, 100)
	fallback := 220 - 100*hairBufferRatio
	floor := fallback - 100*maxLiftRatio
	if got.Y < floor-1e-9 {
		t.Fatalf("estimate %.2f lifted past the clamp %.2f", got.Y, floor)
	}
}

func TestEstimateHairTopTinyImageUsesFallback(t *testing.T) {
	img := whiteCanvas(10, 10)

	got := EstimateHairTop(img, 5, 6, 9, 3)
	if got.Refined {
		t.Fatal("expected fallback for an image below the scan minimum")
	}
}
