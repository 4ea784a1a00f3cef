package encode

import (
	"bytes"
	"fmt"
	"image"

	xdraw "golang.org/x/image/draw"
	_ "golang.org/x/image/webp"

	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
)

const (
	FormatJPEG = "jpeg"
	FormatPNG  = "png"
)

// Decode reads any supported source format (png, jpeg, gif, webp).
func Decode(data []byte) (image.Image, string, error) {
	img, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, "", fmt.Errorf("decode source image: %w", err)
	}
	return img, format, nil
}

// Resample scales src to exactly w×h using a multi-tap anti-aliased kernel.
// Always applied, even for matching sizes, so output dimensions are exact.
func Resample(src image.Image, w, h int) *image.NRGBA {
	if w < 1 {
		w = 1
	}
	if h < 1 {
		h = 1
	}
	dst := image.NewNRGBA(image.Rect(0, 0, w, h))
	xdraw.CatmullRom.Scale(dst, dst.Bounds(), src, src.Bounds(), xdraw.Over, nil)
	return dst
}

func normalizeFormat(format string) string {
	switch format {
	case "jpg", FormatJPEG:
		return FormatJPEG
	default:
		return FormatPNG
	}
}
