package geometry

import (
	"image"
	"math"
	"sort"

	"gonum.org/v1/gonum/stat"

	"github.com/idphotolab/passpix/internal/raster"
)

// Landmark 10 tracks the forehead, not hair. The buffer protects common
// hairstyles when the pixel scan cannot improve on it.
const hairBufferRatio = 0.32

const (
	borderTopRows   = 8
	borderSideCols  = 4
	minScanImage    = 20
	minBandWidth    = 12
	fgFloorDistance = 18.0
	fgFloorMargin   = 6.0
	requiredStreak  = 3
	maxLiftRatio    = 0.45
)

// HairTop is the estimated visible top of hair. Refined reports whether the
// pixel scan produced the estimate or the landmark fallback was used.
type HairTop struct {
	Y       float64
	Refined bool
}

// EstimateHairTop locates the visible top of hair above the forehead
// landmark. It starts from a calibrated landmark fallback and refines it with
// a background-distance scan in a face-centered vertical band when the image
// allows. The result is never below (never a larger y than) the fallback.
func EstimateHairTop(img image.Image, eyeCenterX, foreheadY, chinY, faceCoreH float64) HairTop {
	fallback := foreheadY - faceCoreH*hairBufferRatio

	bounds := img.Bounds()
	w, h := bounds.Dx(), bounds.Dy()
	if w < minScanImage || h < minScanImage {
		return HairTop{Y: fallback}
	}

	rgb := raster.FromImage(img)
	bg := borderMedianColor(rgb)

	dist := make([]float64, w*h)
	for i := range dist {
		dr := float64(rgb.R.Pix[i]) - bg[0]
		dg := float64(rgb.G.Pix[i]) - bg[1]
		db := float64(rgb.B.Pix[i]) - bg[2]
		dist[i] = math.Sqrt(dr*dr + dg*dg + db*db)
	}

	bandHalf := int(faceCoreH * 0.45)
	if bandHalf < 30 {
		bandHalf = 30
	}
	x1 := int(eyeCenterX - float64(bandHalf))
	if x1 < 0 {
		x1 = 0
	}
	x2 := int(eyeCenterX + float64(bandHalf))
	if x2 > w {
		x2 = w
	}
	if x2-x1 < minBandWidth {
		return HairTop{Y: fallback}
	}

	maxScanY := int(chinY)
	if maxScanY < 1 {
		maxScanY = 1
	}
	if maxScanY > h {
		maxScanY = h
	}
	if maxScanY < 5 {
		return HairTop{Y: fallback}
	}

	// Foreground threshold derives from how noisy the top border itself is.
	topRows := make([]float64, borderTopRows*w)
	copy(topRows, dist[:borderTopRows*w])
	sort.Float64s(topRows)
	threshold := stat.Quantile(0.97, stat.LinInterp, topRows, nil) + fgFloorMargin
	if threshold < fgFloorDistance {
		threshold = fgFloorDistance
	}

	minFG := int(float64(x2-x1) * 0.06)
	if minFG < 6 {
		minFG = 6
	}

	firstSubjectY := -1
	streak := 0
	for y := 0; y < maxScanY; y++ {
		count := 0
		row := dist[y*w : y*w+w]
		for x := x1; x < x2; x++ {
			if row[x] > threshold {
				count++
			}
		}
		if count >= minFG {
			streak++
			if streak >= requiredStreak {
				firstSubjectY = y - 2
				break
			}
		} else {
			streak = 0
		}
	}
	if firstSubjectY < 0 {
		return HairTop{Y: fallback}
	}

	safety := int(faceCoreH * 0.02)
	if safety < 2 {
		safety = 2
	}
	candidate := float64(firstSubjectY - safety)

	// Busy backgrounds can fake an absurdly high hairline.
	if minCandidate := fallback - faceCoreH*maxLiftRatio; candidate < minCandidate {
		candidate = minCandidate
	}

	if candidate < fallback {
		return HairTop{Y: candidate, Refined: true}
	}
	return HairTop{Y: fallback}
}

// borderMedianColor samples a thin frame border (top strip plus both side
// strips) and takes the per-channel median as the background color estimate.
func borderMedianColor(rgb *raster.RGB) [3]float64 {
	w, h := rgb.W, rgb.H
	n := borderTopRows*w + 2*borderSideCols*h
	samples := [3][]float64{
		make([]float64, 0, n),
		make([]float64, 0, n),
		make([]float64, 0, n),
	}

	appendPixel := func(i int) {
		samples[0] = append(samples[0], float64(rgb.R.Pix[i]))
		samples[1] = append(samples[1], float64(rgb.G.Pix[i]))
		samples[2] = append(samples[2], float64(rgb.B.Pix[i]))
	}

	for y := 0; y < borderTopRows && y < h; y++ {
		for x := 0; x < w; x++ {
			appendPixel(y*w + x)
		}
	}
	for y := 0; y < h; y++ {
		for x := 0; x < borderSideCols && x < w; x++ {
			appendPixel(y*w + x)
		}
		for x := w - borderSideCols; x < w; x++ {
			if x >= 0 {
				appendPixel(y*w + x)
			}
		}
	}

	var median [3]float64
	for c := 0; c < 3; c++ {
		sort.Float64s(samples[c])
		median[c] = stat.Quantile(0.5, stat.LinInterp, samples[c], nil)
	}
	return median
}
