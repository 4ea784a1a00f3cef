package matte

import (
	"fmt"
	"image"
	"math"

	"github.com/idphotolab/passpix/internal/raster"
)

// Empirically tuned constants. These encode the visual calibration of the
// matte; treat as contract values.
const (
	coreThreshold   = 0.95
	fogThreshold    = 0.05
	blendExponent   = 3.5
	sigmoidGain     = 25.0
	sigmoidMidpoint = 0.58

	dilateKernel      = 7
	dilateIterations  = 3
	bilateralDiameter = 9
	bilateralSigma    = 75.0
	varianceKernel    = 5
	varianceGain      = 20.0
	guidedRadius      = 5
	guidedEps         = 1e-6
)

// Result is the refined cutout. Degraded reports that refinement could not
// run and the raw provider mask was composited instead.
type Result struct {
	Image    *image.NRGBA
	Degraded bool
	Reason   string
}

// Refine turns a raw segmentation mask into a studio-quality cutout:
// decontaminated edge colors, alpha tightened to true object edges, residual
// background fog removed entirely.
func Refine(original image.Image, raw *raster.Plane) Result {
	bounds := original.Bounds()
	w, h := bounds.Dx(), bounds.Dy()

	if w == 0 || h == 0 {
		return Result{
			Image:    image.NewNRGBA(image.Rect(0, 0, 1, 1)),
			Degraded: true,
			Reason:   "empty source image",
		}
	}
	if raw == nil || raw.W != w || raw.H != h {
		return Result{
			Image:    OpaqueCutout(original),
			Degraded: true,
			Reason:   fmt.Sprintf("raw mask does not match source %dx%d", w, h),
		}
	}

	rgb := raster.FromImage(original)
	alpha := raw.Clone()
	alpha.Clamp(0, 1)

	decontam := decontaminate(rgb, alpha)
	precise := guidedFilter(normalizeGuide(rgb), alpha, guidedRadius, guidedEps)

	final := raster.NewPlane(w, h)
	for i, v := range precise.Pix {
		a := 1.0 / (1.0 + math.Exp(-sigmoidGain*(float64(v)-sigmoidMidpoint)))
		if a < fogThreshold {
			a = 0
		} else if a > 1 {
			a = 1
		}
		final.Pix[i] = float32(a)
	}

	out := raster.NewRGB(w, h)
	for i := range final.Pix {
		a := final.Pix[i]
		out.R.Pix[i] = decontam.R.Pix[i] * a
		out.G.Pix[i] = decontam.G.Pix[i] * a
		out.B.Pix[i] = decontam.B.Pix[i] * a
	}

	return Result{Image: raster.ToNRGBA(out, final)}
}

// decontaminate replaces edge colors with a clean-plate estimate, weighted by
// local detail so hair strands keep true color while flat near-background
// pixels take the plate color.
func decontaminate(rgb *raster.RGB, alpha *raster.Plane) *raster.RGB {
	hasCore := false
	for _, a := range alpha.Pix {
		if a > coreThreshold {
			hasCore = true
			break
		}
	}
	if !hasCore {
		return rgb
	}

	subject := rgb.Clone()
	for i, a := range alpha.Pix {
		if a < coreThreshold {
			subject.R.Pix[i] = 0
			subject.G.Pix[i] = 0
			subject.B.Pix[i] = 0
		}
	}

	dilated := raster.Dilate(subject, dilateKernel, dilateIterations)
	dilated.R.Clamp(0, 255)
	dilated.G.Clamp(0, 255)
	dilated.B.Clamp(0, 255)
	plate := raster.Bilateral(dilated, bilateralDiameter, bilateralSigma, bilateralSigma)

	// Local variance flags fine structure (hair) against flat regions.
	gray := raster.Gray(rgb)
	graySq := raster.NewPlane(gray.W, gray.H)
	for i, v := range gray.Pix {
		graySq.Pix[i] = v * v
	}
	blurSq := raster.GaussianBlur(graySq, varianceKernel)
	blurG := raster.GaussianBlur(gray, varianceKernel)

	mix := func(orig, plateV float32, blend, varWeight float64) float32 {
		target := float64(orig)*blend + float64(plateV)*(1.0-blend)
		v := target*varWeight + float64(orig)*(1.0-varWeight)
		if v < 0 {
			return 0
		}
		if v > 255 {
			return 255
		}
		return float32(v)
	}

	out := raster.NewRGB(rgb.W, rgb.H)
	for i := range alpha.Pix {
		variance := float64(blurSq.Pix[i]) - float64(blurG.Pix[i])*float64(blurG.Pix[i])
		varWeight := variance * varianceGain
		if varWeight < 0 {
			varWeight = 0
		} else if varWeight > 1 {
			varWeight = 1
		}

		// Steep curve: trust the original color only where the raw mask
		// is very confident.
		blend := math.Pow(float64(alpha.Pix[i]), blendExponent)

		out.R.Pix[i] = mix(rgb.R.Pix[i], plate.R.Pix[i], blend, varWeight)
		out.G.Pix[i] = mix(rgb.G.Pix[i], plate.G.Pix[i], blend, varWeight)
		out.B.Pix[i] = mix(rgb.B.Pix[i], plate.B.Pix[i], blend, varWeight)
	}
	return out
}

func normalizeGuide(rgb *raster.RGB) *raster.RGB {
	out := raster.NewRGB(rgb.W, rgb.H)
	for i := range rgb.R.Pix {
		out.R.Pix[i] = rgb.R.Pix[i] / 255.0
		out.G.Pix[i] = rgb.G.Pix[i] / 255.0
		out.B.Pix[i] = rgb.B.Pix[i] / 255.0
	}
	return out
}

// OpaqueCutout is the last-resort fallback when not even the raw mask is
// usable: the original frame with full opacity.
func OpaqueCutout(original image.Image) *image.NRGBA {
	rgb := raster.FromImage(original)
	alpha := raster.NewPlane(rgb.W, rgb.H)
	for i := range alpha.Pix {
		alpha.Pix[i] = 1
	}
	return raster.ToNRGBA(rgb, alpha)
}

// RawComposite applies the provider mask with basic alpha blending and no
// decontamination, the degraded path when refinement cannot run.
func RawComposite(original image.Image, raw *raster.Plane) *image.NRGBA {
	bounds := original.Bounds()
	w, h := bounds.Dx(), bounds.Dy()
	if raw == nil || raw.W != w || raw.H != h {
		return OpaqueCutout(original)
	}

	rgb := raster.FromImage(original)
	alpha := raw.Clone()
	alpha.Clamp(0, 1)
	return raster.ToNRGBA(rgb, alpha)
}
