package matte

import (
	"image"
	"image/color"
)

// CompositeBackground flattens a cutout onto a solid background color,
// treating the cutout's channels as straight (non-premultiplied) alpha.
func CompositeBackground(cutout *image.NRGBA, bg color.NRGBA) *image.NRGBA {
	bounds := cutout.Bounds()
	out := image.NewNRGBA(bounds)

	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			fg := cutout.NRGBAAt(x, y)
			a := uint32(fg.A)
			out.SetNRGBA(x, y, color.NRGBA{
				R: uint8((uint32(fg.R)*a + uint32(bg.R)*(255-a) + 127) / 255),
				G: uint8((uint32(fg.G)*a + uint32(bg.G)*(255-a) + 127) / 255),
				B: uint8((uint32(fg.B)*a + uint32(bg.B)*(255-a) + 127) / 255),
				A: 255,
			})
		}
	}
	return out
}
