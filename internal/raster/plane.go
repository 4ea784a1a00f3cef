package raster

import (
	"image"
	"image/color"
)

// Plane is a single-channel float32 field addressed row-major.
type Plane struct {
	W, H int
	Pix  []float32
}

func NewPlane(w, h int) *Plane {
	return &Plane{W: w, H: h, Pix: make([]float32, w*h)}
}

func (p *Plane) At(x, y int) float32 {
	return p.Pix[y*p.W+x]
}

func (p *Plane) Set(x, y int, v float32) {
	p.Pix[y*p.W+x] = v
}

func (p *Plane) Clone() *Plane {
	out := NewPlane(p.W, p.H)
	copy(out.Pix, p.Pix)
	return out
}

// RGB holds three same-sized color planes with values in [0, 255].
type RGB struct {
	W, H    int
	R, G, B *Plane
}

func NewRGB(w, h int) *RGB {
	return &RGB{W: w, H: h, R: NewPlane(w, h), G: NewPlane(w, h), B: NewPlane(w, h)}
}

func (c *RGB) Clone() *RGB {
	return &RGB{W: c.W, H: c.H, R: c.R.Clone(), G: c.G.Clone(), B: c.B.Clone()}
}

// FromImage decodes an image into float32 color planes.
func FromImage(img image.Image) *RGB {
	bounds := img.Bounds()
	w, h := bounds.Dx(), bounds.Dy()
	out := NewRGB(w, h)

	if nrgba, ok := img.(*image.NRGBA); ok {
		for y := 0; y < h; y++ {
			for x := 0; x < w; x++ {
				o := nrgba.PixOffset(bounds.Min.X+x, bounds.Min.Y+y)
				i := y*w + x
				out.R.Pix[i] = float32(nrgba.Pix[o])
				out.G.Pix[i] = float32(nrgba.Pix[o+1])
				out.B.Pix[i] = float32(nrgba.Pix[o+2])
			}
		}
		return out
	}

	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			r, g, b, _ := img.At(bounds.Min.X+x, bounds.Min.Y+y).RGBA()
			i := y*w + x
			out.R.Pix[i] = float32(r >> 8)
			out.G.Pix[i] = float32(g >> 8)
			out.B.Pix[i] = float32(b >> 8)
		}
	}
	return out
}

// AlphaFromImage extracts the alpha channel scaled to [0, 1].
func AlphaFromImage(img image.Image) *Plane {
	bounds := img.Bounds()
	w, h := bounds.Dx(), bounds.Dy()
	out := NewPlane(w, h)
	if nrgba, ok := img.(*image.NRGBA); ok {
		for y := 0; y < h; y++ {
			for x := 0; x < w; x++ {
				o := nrgba.PixOffset(bounds.Min.X+x, bounds.Min.Y+y)
				out.Pix[y*w+x] = float32(nrgba.Pix[o+3]) / 255.0
			}
		}
		return out
	}
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			_, _, _, a := img.At(bounds.Min.X+x, bounds.Min.Y+y).RGBA()
			out.Pix[y*w+x] = float32(a>>8) / 255.0
		}
	}
	return out
}

// Gray converts color planes (0..255) to luma in [0, 1].
func Gray(c *RGB) *Plane {
	out := NewPlane(c.W, c.H)
	for i := range out.Pix {
		out.Pix[i] = (0.299*c.R.Pix[i] + 0.587*c.G.Pix[i] + 0.114*c.B.Pix[i]) / 255.0
	}
	return out
}

// ToNRGBA assembles color planes and an alpha plane into a non-premultiplied image.
func ToNRGBA(c *RGB, alpha *Plane) *image.NRGBA {
	out := image.NewNRGBA(image.Rect(0, 0, c.W, c.H))
	for y := 0; y < c.H; y++ {
		for x := 0; x < c.W; x++ {
			i := y*c.W + x
			out.SetNRGBA(x, y, color.NRGBA{
				R: clampByte(c.R.Pix[i]),
				G: clampByte(c.G.Pix[i]),
				B: clampByte(c.B.Pix[i]),
				A: clampByte(alpha.Pix[i] * 255.0),
			})
		}
	}
	return out
}

func clampByte(v float32) uint8 {
	if v <= 0 {
		return 0
	}
	if v >= 255 {
		return 255
	}
	return uint8(v + 0.5)
}

// Clamp limits every sample of the plane to [lo, hi] in place.
func (p *Plane) Clamp(lo, hi float32) {
	for i, v := range p.Pix {
		if v < lo {
			p.Pix[i] = lo
		} else if v > hi {
			p.Pix[i] = hi
		}
	}
}
