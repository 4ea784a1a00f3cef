package geometry

import (
	"image"
	"image/color"
	"image/draw"
	"math"
	"testing"

	"github.com/idphotolab/passpix/internal/facemesh"
)

func TestMMToPx(t *testing.T) {
	cases := []struct {
		mm   float64
		want int
	}{
		{35, 413},
		{45, 531},
		{50.8, 600},
		{25.4, 300},
	}
	for _, tc := range cases {
		if got := MMToPx(tc.mm); got != tc.want {
			t.Fatalf("MMToPx(%g) = %d, want %d", tc.mm, got, tc.want)
		}
	}
}

func TestCropProducesExactTargetSize(t *testing.T) {
	img := whiteCanvas(1000, 1000)
	lm := testLandmarks(450, 200, 450, 600, 400, 400, 500, 400)

	result := Crop(img, lm, 35, 45)
	if result.Degraded {
		t.Fatalf("expected clean crop, degraded: %s", result.Reason)
	}

	bounds := result.Image.Bounds()
	if bounds.Dx() != 413 || bounds.Dy() != 531 {
		t.Fatalf("expected 413x531 output, got %dx%d", bounds.Dx(), bounds.Dy())
	}
}

func TestCropFaceFillsHalfTheFrame(t *testing.T) {
	img := whiteCanvas(1000, 1000)
	lm := testLandmarks(450, 200, 450, 600, 400, 400, 500, 400)

	plan, err := PlanCrop(img, lm, 35, 45)
	if err != nil {
		t.Fatalf("plan crop: %v", err)
	}

	fullHead := 600 - plan.HairTopY
	ratio := fullHead / plan.CropH
	if math.Abs(ratio-0.50) > 1e-9 {
		t.Fatalf("expected full head to fill 50%% of the crop, got %.4f", ratio)
	}

	// Headroom above the hair equals the margin below the chin.
	frameTop := plan.HairTopY - plan.CropH*0.25
	above := plan.HairTopY - frameTop
	below := (frameTop + plan.CropH) - 600
	if math.Abs(above-below) > 1e-6 {
		t.Fatalf("expected symmetric margins, above=%.2f below=%.2f", above, below)
	}
}

func TestCropPreservesTargetAspect(t *testing.T) {
	img := whiteCanvas(1000, 1000)
	lm := testLandmarks(450, 200, 450, 600, 400, 400, 500, 400)

	plan, err := PlanCrop(img, lm, 35, 45)
	if err != nil {
		t.Fatalf("plan crop: %v", err)
	}

	got := plan.CropW / plan.CropH
	want := 35.0 / 45.0
	if math.Abs(got-want) > 1e-9 {
		t.Fatalf("expected crop aspect %.6f, got %.6f", want, got)
	}
}

func TestCropCenteredOnEyeMidpoint(t *testing.T) {
	img := whiteCanvas(1000, 1000)
	lm := testLandmarks(450, 200, 450, 600, 400, 400, 500, 400)

	plan, err := PlanCrop(img, lm, 35, 45)
	if err != nil {
		t.Fatalf("plan crop: %v", err)
	}

	center := float64(plan.Left+plan.Right) / 2
	want := 450.0 + float64(plan.Pad)
	if math.Abs(center-want) > 1.0 {
		t.Fatalf("expected crop centered near x=%.1f, got %.1f", want, center)
	}
}

func TestCropSubjectLargerThanFrameStaysInCanvas(t *testing.T) {
	// A face filling most of a small image forces the crop rectangle past the
	// image edges; the padded canvas must absorb it without degrading.
	img := whiteCanvas(200, 200)
	lm := testLandmarks(100, 20, 100, 180, 60, 90, 140, 90)

	result := Crop(img, lm, 35, 45)
	if result.Degraded {
		t.Fatalf("expected padded crop to absorb overflow, degraded: %s", result.Reason)
	}
	bounds := result.Image.Bounds()
	if bounds.Dx() != 413 || bounds.Dy() != 531 {
		t.Fatalf("expected 413x531 output, got %dx%d", bounds.Dx(), bounds.Dy())
	}
}

func TestCropDegeneratePoseDegradesToResize(t *testing.T) {
	img := whiteCanvas(400, 400)
	lm := testLandmarks(200, 150, 200, 150, 150, 150, 250, 150)

	result := Crop(img, lm, 50.8, 50.8)
	if !result.Degraded {
		t.Fatal("expected degraded result for coincident forehead and chin")
	}
	if result.Reason == "" {
		t.Fatal("expected a degradation reason")
	}
	bounds := result.Image.Bounds()
	if bounds.Dx() != 600 || bounds.Dy() != 600 {
		t.Fatalf("expected 600x600 fallback output, got %dx%d", bounds.Dx(), bounds.Dy())
	}
}

func TestCropInvalidLandmarksDegrade(t *testing.T) {
	img := whiteCanvas(400, 400)

	result := Crop(img, nil, 35, 45)
	if !result.Degraded {
		t.Fatal("expected degraded result for an invalid landmark set")
	}
	bounds := result.Image.Bounds()
	if bounds.Dx() != 413 || bounds.Dy() != 531 {
		t.Fatalf("expected target-size fallback output, got %dx%d", bounds.Dx(), bounds.Dy())
	}
}

func TestPlanCropRejectsBadTargets(t *testing.T) {
	img := whiteCanvas(400, 400)
	lm := testLandmarks(200, 100, 200, 300, 150, 200, 250, 200)

	if _, err := PlanCrop(img, lm, 0, 45); err == nil {
		t.Fatal("expected error for zero width")
	}
	if _, err := PlanCrop(img, lm, 35, -1); err == nil {
		t.Fatal("expected error for negative height")
	}
}

func whiteCanvas(w, h int) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	draw.Draw(img, img.Bounds(), image.NewUniform(color.NRGBA{255, 255, 255, 255}), image.Point{}, draw.Src)
	return img
}

// testLandmarks builds a full mesh with the four anchor points set and every
// other point parked at the chin.
func testLandmarks(fx, fy, cx, cy, lx, ly, rx, ry float64) facemesh.LandmarkSet {
	lm := make(facemesh.LandmarkSet, facemesh.LandmarkCount)
	for i := range lm {
		lm[i] = facemesh.Point{X: cx, Y: cy}
	}
	lm[facemesh.ForeheadCenter] = facemesh.Point{X: fx, Y: fy}
	lm[facemesh.ChinCenter] = facemesh.Point{X: cx, Y: cy}
	lm[facemesh.LeftEyeCenter] = facemesh.Point{X: lx, Y: ly}
	lm[facemesh.RightEyeCenter] = facemesh.Point{X: rx, Y: ry}
	return lm
}
