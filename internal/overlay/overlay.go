package overlay

import (
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"math"

	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"

	"github.com/idphotolab/passpix/internal/facemesh"
)

var markerBlue = color.NRGBA{R: 0, G: 131, B: 255, A: 255}

// The face-band marker uses the display hair buffer, which is looser than the
// crop fallback: after framing, the hairline sits a quarter face-core above
// the forehead landmark.
const displayHairBuffer = 0.25

const watermarkText = "Passpix"

// Draw renders measurement guides and a tiled watermark onto a copy of the
// final frame. Landmarks must be in the frame's coordinate space. This is a
// verification aid, not part of the compliance-critical path; with a nil or
// invalid landmark set only the watermark and rulers are drawn.
func Draw(img image.Image, lm facemesh.LandmarkSet) *image.NRGBA {
	bounds := img.Bounds()
	w, h := bounds.Dx(), bounds.Dy()

	dst := image.NewNRGBA(image.Rect(0, 0, w, h))
	draw.Draw(dst, dst.Bounds(), img, bounds.Min, draw.Src)

	scale := float64(h) / 900.0
	if scale <= 0 {
		return dst
	}
	lineW := int(math.Max(1, 1.5*scale))
	s := func(v float64) int { return int(v * scale) }

	drawWatermark(dst, scale)

	// Vertical px ruler, left edge.
	fillRect(dst, s(15), s(10), lineW, h-s(20), markerBlue)
	fillRect(dst, s(5), s(10), s(20), lineW, markerBlue)
	fillRect(dst, s(5), h-s(10), s(20), lineW, markerBlue)
	labelV := rotate90(renderText(fmt.Sprintf("%d px", h), markerBlue))
	pasteNRGBA(dst, labelV, s(20), h/2-labelV.Bounds().Dy()/2)

	// Horizontal px ruler, bottom edge.
	fillRect(dst, s(10), h-s(15), w-s(20), lineW, markerBlue)
	fillRect(dst, s(10), h-s(25), lineW, s(20), markerBlue)
	fillRect(dst, w-s(10), h-s(25), lineW, s(20), markerBlue)
	labelH := fmt.Sprintf("%d px", w)
	drawText(dst, w/2-textWidth(labelH)/2, h-s(45)+basicfont.Face7x13.Ascent, labelH, markerBlue)

	if lm.Validate() != nil {
		return dst
	}

	// Face band marker, right edge: hairline to chin.
	forehead := lm.Forehead()
	chin := lm.Chin()
	faceCoreH := math.Abs(chin.Y - forehead.Y)
	hairTopY := int(forehead.Y - faceCoreH*displayHairBuffer)
	chinY := int(chin.Y)
	if hairTopY < 0 {
		hairTopY = 0
	}
	if chinY > h {
		chinY = h
	}
	if chinY > hairTopY {
		fillRect(dst, w-s(15), hairTopY, lineW, chinY-hairTopY, markerBlue)
		fillRect(dst, w-s(25), hairTopY, s(20), lineW, markerBlue)
		fillRect(dst, w-s(25), chinY, s(20), lineW, markerBlue)

		labelF := rotate90(renderText("Face: 50 %", markerBlue))
		pasteNRGBA(dst, labelF, w-s(45), (hairTopY+chinY)/2-labelF.Bounds().Dy()/2)
	}

	return dst
}

func drawWatermark(dst *image.NRGBA, scale float64) {
	faint := color.NRGBA{R: 100, G: 100, B: 100, A: 35}
	tile := renderText(watermarkText, faint)
	tw := tile.Bounds().Dx() + int(60*scale)
	th := tile.Bounds().Dy() + int(60*scale)
	if tw < 1 || th < 1 {
		return
	}

	bounds := dst.Bounds()
	row := 0
	for y := 0; y < bounds.Dy()+th; y += int(float64(th) * 1.8) {
		offset := (row % 2) * (tw / 2)
		for x := -tw; x < bounds.Dx()+tw; x += int(float64(tw) * 1.3) {
			pasteNRGBA(dst, tile, x+offset, y)
		}
		row++
	}
}

func renderText(text string, col color.NRGBA) *image.NRGBA {
	face := basicfont.Face7x13
	width := font.MeasureString(face, text).Ceil()
	height := face.Height

	img := image.NewNRGBA(image.Rect(0, 0, width, height))
	drawer := &font.Drawer{
		Dst:  img,
		Src:  image.NewUniform(col),
		Face: face,
		Dot:  fixed.P(0, face.Ascent),
	}
	drawer.DrawString(text)
	return img
}

func drawText(dst *image.NRGBA, x, baselineY int, text string, col color.NRGBA) {
	drawer := &font.Drawer{
		Dst:  dst,
		Src:  image.NewUniform(col),
		Face: basicfont.Face7x13,
		Dot:  fixed.P(x, baselineY),
	}
	drawer.DrawString(text)
}

func textWidth(text string) int {
	return font.MeasureString(basicfont.Face7x13, text).Ceil()
}

// rotate90 turns a rendered label counter-clockwise for vertical rulers.
func rotate90(src *image.NRGBA) *image.NRGBA {
	b := src.Bounds()
	w, h := b.Dx(), b.Dy()
	dst := image.NewNRGBA(image.Rect(0, 0, h, w))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			dst.SetNRGBA(y, w-1-x, src.NRGBAAt(b.Min.X+x, b.Min.Y+y))
		}
	}
	return dst
}

func fillRect(dst *image.NRGBA, x, y, w, h int, col color.NRGBA) {
	if w < 1 {
		w = 1
	}
	if h < 1 {
		h = 1
	}
	rect := image.Rect(x, y, x+w, y+h).Intersect(dst.Bounds())
	draw.Draw(dst, rect, image.NewUniform(col), image.Point{}, draw.Over)
}

func pasteNRGBA(dst *image.NRGBA, src *image.NRGBA, x, y int) {
	rect := src.Bounds().Add(image.Pt(x, y)).Intersect(dst.Bounds())
	if rect.Empty() {
		return
	}
	draw.Draw(dst, rect, src, src.Bounds().Min.Add(rect.Min.Sub(image.Pt(x, y))), draw.Over)
}
