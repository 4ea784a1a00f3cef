package geometry

import (
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"math"

	"github.com/idphotolab/passpix/internal/encode"
	"github.com/idphotolab/passpix/internal/facemesh"
)

// DPI is the fixed print resolution every millimeter conversion assumes.
// Changing it here changes it everywhere.
const DPI = 300

const (
	// The visible head (hairline to chin) fills exactly half the frame
	// height, with the remainder split evenly above and below.
	faceRatio     = 0.50
	headroomRatio = (1.0 - faceRatio) / 2.0

	// Canvas padding factor, generous enough that any realistic crop
	// overflow stays on the white canvas.
	padFactor = 0.6
)

var ErrBadTarget = errors.New("target dimensions must be positive")

// MMToPx converts a physical print length to pixels at the fixed DPI.
func MMToPx(mm float64) int {
	return int(mm * DPI / 25.4)
}

// Plan is a resolved crop: edges in padded-canvas coordinates plus the exact
// output pixel size.
type Plan struct {
	Pad                      int
	Left, Top, Right, Bottom int
	OutW, OutH               int
	CropW, CropH             float64
	HairTopY                 float64
	HairRefined              bool
}

// Result carries the cropped frame. Degraded reports that geometry planning
// failed and the original was resized directly instead.
type Result struct {
	Image    *image.NRGBA
	Plan     Plan
	Degraded bool
	Reason   string
}

// PlanCrop derives the regulatory framing rectangle from the landmark set.
func PlanCrop(img image.Image, lm facemesh.LandmarkSet, targetWmm, targetHmm float64) (Plan, error) {
	if targetWmm <= 0 || targetHmm <= 0 {
		return Plan{}, ErrBadTarget
	}
	if err := lm.Validate(); err != nil {
		return Plan{}, err
	}

	forehead := lm.Forehead()
	chin := lm.Chin()
	eyeCenterX := (lm.LeftEye().X + lm.RightEye().X) / 2

	faceCoreH := math.Abs(chin.Y - forehead.Y)
	if faceCoreH == 0 {
		return Plan{}, fmt.Errorf("degenerate landmarks: forehead and chin coincide at y=%g", chin.Y)
	}

	hairTop := EstimateHairTop(img, eyeCenterX, forehead.Y, chin.Y, faceCoreH)
	fullHeadH := math.Abs(chin.Y - hairTop.Y)

	cropH := fullHeadH / faceRatio
	cropW := (targetWmm / targetHmm) * cropH

	frameTop := hairTop.Y - cropH*headroomRatio
	frameBottom := frameTop + cropH
	frameLeft := eyeCenterX - cropW/2
	frameRight := eyeCenterX + cropW/2

	bounds := img.Bounds()
	pad := int(float64(max(bounds.Dx(), bounds.Dy())) * padFactor)

	return Plan{
		Pad:         pad,
		Left:        int(frameLeft + float64(pad)),
		Top:         int(frameTop + float64(pad)),
		Right:       int(frameRight + float64(pad)),
		Bottom:      int(frameBottom + float64(pad)),
		OutW:        MMToPx(targetWmm),
		OutH:        MMToPx(targetHmm),
		CropW:       cropW,
		CropH:       cropH,
		HairTopY:    hairTop.Y,
		HairRefined: hairTop.Refined,
	}, nil
}

// Crop pads the image onto a white canvas, cuts the planned rectangle and
// resamples it to the exact target pixel size. Planning failures degrade to a
// direct resize of the original rather than failing the photo.
func Crop(img image.Image, lm facemesh.LandmarkSet, targetWmm, targetHmm float64) Result {
	outW, outH := MMToPx(targetWmm), MMToPx(targetHmm)

	plan, err := PlanCrop(img, lm, targetWmm, targetHmm)
	if err != nil {
		return Result{
			Image:    encode.Resample(img, outW, outH),
			Plan:     Plan{OutW: outW, OutH: outH},
			Degraded: true,
			Reason:   err.Error(),
		}
	}

	bounds := img.Bounds()
	canvas := image.NewNRGBA(image.Rect(0, 0, bounds.Dx()+2*plan.Pad, bounds.Dy()+2*plan.Pad))
	draw.Draw(canvas, canvas.Bounds(), image.NewUniform(color.NRGBA{255, 255, 255, 255}), image.Point{}, draw.Src)
	draw.Draw(canvas, image.Rect(plan.Pad, plan.Pad, plan.Pad+bounds.Dx(), plan.Pad+bounds.Dy()), img, bounds.Min, draw.Over)

	rect := image.Rect(plan.Left, plan.Top, plan.Right, plan.Bottom).Intersect(canvas.Bounds())
	if rect.Empty() {
		return Result{
			Image:    encode.Resample(img, outW, outH),
			Plan:     plan,
			Degraded: true,
			Reason:   "crop rectangle fell outside the padded canvas",
		}
	}

	return Result{
		Image: encode.Resample(canvas.SubImage(rect), outW, outH),
		Plan:  plan,
	}
}

func max(a, b int) int {
	if a > b {
		return a
	}
	return b
}
