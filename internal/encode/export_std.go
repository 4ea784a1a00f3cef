//go:build !govips || !cgo

package encode

import (
	"bytes"
	"fmt"
	"image"
	"image/jpeg"
	"image/png"
)

func Startup() error {
	return nil
}

func Shutdown() {}

// Export encodes the final frame. Quality applies to jpeg only.
func Export(img image.Image, format string, quality int) ([]byte, error) {
	var buf bytes.Buffer

	switch normalizeFormat(format) {
	case FormatJPEG:
		if quality <= 0 || quality > 100 {
			quality = 95
		}
		if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: quality}); err != nil {
			return nil, fmt.Errorf("encode jpeg: %w", err)
		}
	case FormatPNG:
		encoder := png.Encoder{CompressionLevel: png.DefaultCompression}
		if err := encoder.Encode(&buf, img); err != nil {
			return nil, fmt.Errorf("encode png: %w", err)
		}
	}

	return buf.Bytes(), nil
}
