package pipeline

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/draw"
	"image/jpeg"
	"image/png"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/idphotolab/passpix/internal/domain"
	"github.com/idphotolab/passpix/internal/facemesh"
	"github.com/idphotolab/passpix/internal/raster"
)

// geometricFaceProvider synthesizes a plausible mesh from the frame size, so
// re-detection on padded frames keeps working.
type geometricFaceProvider struct{}

func (geometricFaceProvider) DetectLandmarks(_ context.Context, img image.Image) (facemesh.LandmarkSet, bool, error) {
	w := float64(img.Bounds().Dx())
	h := float64(img.Bounds().Dy())

	lm := make(facemesh.LandmarkSet, facemesh.LandmarkCount)
	for i := range lm {
		lm[i] = facemesh.Point{X: w * 0.5, Y: h * 0.6}
	}
	lm[facemesh.ForeheadCenter] = facemesh.Point{X: w * 0.5, Y: h * 0.3}
	lm[facemesh.ChinCenter] = facemesh.Point{X: w * 0.5, Y: h * 0.7}
	lm[facemesh.LeftEyeCenter] = facemesh.Point{X: w * 0.4, Y: h * 0.45}
	lm[facemesh.RightEyeCenter] = facemesh.Point{X: w * 0.6, Y: h * 0.45}
	return lm, true, nil
}

// flakyRedetectProvider detects once, then fails. The second detection only
// happens during the overlay pass on the final frame.
type flakyRedetectProvider struct {
	calls int
}

func (p *flakyRedetectProvider) DetectLandmarks(ctx context.Context, img image.Image) (facemesh.LandmarkSet, bool, error) {
	p.calls++
	if p.calls > 1 {
		return nil, false, errors.New("provider restarting")
	}
	return geometricFaceProvider{}.DetectLandmarks(ctx, img)
}

type noFaceProvider struct{}

func (noFaceProvider) DetectLandmarks(_ context.Context, _ image.Image) (facemesh.LandmarkSet, bool, error) {
	return nil, false, nil
}

type fullMaskSegmenter struct{}

func (fullMaskSegmenter) Segment(_ context.Context, img image.Image) (*raster.Plane, error) {
	mask := raster.NewPlane(img.Bounds().Dx(), img.Bounds().Dy())
	for i := range mask.Pix {
		mask.Pix[i] = 1
	}
	return mask, nil
}

type failingSegmenter struct{}

func (failingSegmenter) Segment(_ context.Context, _ image.Image) (*raster.Plane, error) {
	return nil, errors.New("model server unreachable")
}

type bytesFetcher struct {
	data []byte
}

func (f bytesFetcher) Fetch(_ context.Context, _ Request) ([]byte, error) {
	return f.data, nil
}

type captureEmitter struct {
	called bool
	data   []byte
	format string
}

func (e *captureEmitter) Emit(_ context.Context, req Request, data []byte, format string) (Output, error) {
	e.called = true
	e.data = data
	e.format = format
	return Output{Format: format, Path: "captured/" + req.PhotoID, Bytes: len(data)}, nil
}

func testSpec() domain.ProcessSpec {
	return domain.ProcessSpec{
		TargetWidthMM:  35,
		TargetHeightMM: 45,
		BackgroundHex:  "#ffffff",
	}
}

func TestProcessLocalFileEndToEnd(t *testing.T) {
	tmp := t.TempDir()
	inputPath := filepath.Join(tmp, "input.png")
	outputDir := filepath.Join(tmp, "out")

	if err := os.WriteFile(inputPath, buildPortraitPNG(t, 400, 500), 0o644); err != nil {
		t.Fatalf("write input image: %v", err)
	}

	processor := NewProcessor(
		LocalFileFetcher{},
		geometricFaceProvider{},
		fullMaskSegmenter{},
		LocalFileEmitter{OutputDir: outputDir},
	)

	spec := testSpec()
	spec.DrawOverlays = true
	result, err := processor.Process(context.Background(), Request{
		PhotoID:    "photo-local-1",
		SourceType: domain.SourceTypeLocalFile,
		ObjectKey:  inputPath,
		Spec:       spec,
	})
	if err != nil {
		t.Fatalf("process photo: %v", err)
	}

	if result.Outcome.Status != domain.PhotoStatusReady {
		t.Fatalf("expected ready outcome, got %s (%s)", result.Outcome.Status, result.Outcome.Detail)
	}
	if !result.Outcome.FaceFound {
		t.Fatal("expected face_found=true")
	}
	if result.Output.Format != "jpeg" {
		t.Fatalf("expected jpeg output, got %s", result.Output.Format)
	}
	if result.Output.Width != 413 || result.Output.Height != 531 {
		t.Fatalf("expected 413x531 output, got %dx%d", result.Output.Width, result.Output.Height)
	}

	data, err := os.ReadFile(result.Output.Path)
	if err != nil {
		t.Fatalf("read output: %v", err)
	}
	decoded, err := jpeg.Decode(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("decode output: %v", err)
	}
	if decoded.Bounds().Dx() != 413 || decoded.Bounds().Dy() != 531 {
		t.Fatalf("expected 413x531 file, got %dx%d", decoded.Bounds().Dx(), decoded.Bounds().Dy())
	}
}

func TestProcessNoFaceIsTerminalNotRetryable(t *testing.T) {
	emitter := &captureEmitter{}
	processor := NewProcessor(
		bytesFetcher{data: buildPortraitPNG(t, 200, 200)},
		noFaceProvider{},
		fullMaskSegmenter{},
		emitter,
	)

	result, err := processor.Process(context.Background(), Request{
		PhotoID:    "photo-noface",
		SourceType: domain.SourceTypeS3Presigned,
		ObjectKey:  "uploads/photo-noface/source",
		Spec:       testSpec(),
	})
	if err != nil {
		t.Fatalf("expected nil error for a no-face verdict, got %v", err)
	}
	if result.Outcome.Status != domain.PhotoStatusFailed {
		t.Fatalf("expected failed outcome, got %s", result.Outcome.Status)
	}
	if result.Outcome.FaceFound {
		t.Fatal("expected face_found=false")
	}
	if emitter.called {
		t.Fatal("expected no output for a rejected photo")
	}
}

func TestProcessUndecodableSourceIsTerminal(t *testing.T) {
	processor := NewProcessor(
		bytesFetcher{data: []byte("not an image")},
		geometricFaceProvider{},
		fullMaskSegmenter{},
		&captureEmitter{},
	)

	result, err := processor.Process(context.Background(), Request{
		PhotoID:    "photo-garbage",
		SourceType: domain.SourceTypeS3Presigned,
		ObjectKey:  "uploads/photo-garbage/source",
		Spec:       testSpec(),
	})
	if err != nil {
		t.Fatalf("expected nil error for an undecodable source, got %v", err)
	}
	if result.Outcome.Status != domain.PhotoStatusFailed {
		t.Fatalf("expected failed outcome, got %s", result.Outcome.Status)
	}
}

func TestProcessTransparentPNG(t *testing.T) {
	emitter := &captureEmitter{}
	processor := NewProcessor(
		bytesFetcher{data: buildPortraitPNG(t, 400, 500)},
		geometricFaceProvider{},
		fullMaskSegmenter{},
		emitter,
	)

	spec := testSpec()
	spec.TransparentPNG = true
	result, err := processor.Process(context.Background(), Request{
		PhotoID:    "photo-transparent",
		SourceType: domain.SourceTypeS3Presigned,
		ObjectKey:  "uploads/photo-transparent/source",
		Spec:       spec,
	})
	if err != nil {
		t.Fatalf("process photo: %v", err)
	}

	if result.Output.Format != "png" {
		t.Fatalf("expected png output, got %s", result.Output.Format)
	}
	if _, err := png.Decode(bytes.NewReader(emitter.data)); err != nil {
		t.Fatalf("decode emitted png: %v", err)
	}
}

func TestProcessTransparentPNGKeepsGuides(t *testing.T) {
	emitter := &captureEmitter{}
	processor := NewProcessor(
		bytesFetcher{data: buildPortraitPNG(t, 400, 500)},
		geometricFaceProvider{},
		fullMaskSegmenter{},
		emitter,
	)

	spec := testSpec()
	spec.TransparentPNG = true
	spec.DrawOverlays = true
	_, err := processor.Process(context.Background(), Request{
		PhotoID:    "photo-transparent-guides",
		SourceType: domain.SourceTypeS3Presigned,
		ObjectKey:  "uploads/photo-transparent-guides/source",
		Spec:       spec,
	})
	if err != nil {
		t.Fatalf("process photo: %v", err)
	}

	decoded, err := png.Decode(bytes.NewReader(emitter.data))
	if err != nil {
		t.Fatalf("decode emitted png: %v", err)
	}
	marker := color.NRGBA{R: 0, G: 131, B: 255, A: 255}
	found := false
	bounds := decoded.Bounds()
	for y := bounds.Min.Y; y < bounds.Max.Y && !found; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			if color.NRGBAModel.Convert(decoded.At(x, y)).(color.NRGBA) == marker {
				found = true
				break
			}
		}
	}
	if !found {
		t.Fatal("expected measurement guides on transparent output")
	}
}

func TestProcessOverlayOutageEmitsWithoutGuides(t *testing.T) {
	emitter := &captureEmitter{}
	processor := NewProcessor(
		bytesFetcher{data: buildPortraitPNG(t, 400, 500)},
		&flakyRedetectProvider{},
		fullMaskSegmenter{},
		emitter,
	)

	spec := testSpec()
	spec.DrawOverlays = true
	result, err := processor.Process(context.Background(), Request{
		PhotoID:    "photo-noguides",
		SourceType: domain.SourceTypeS3Presigned,
		ObjectKey:  "uploads/photo-noguides/source",
		Spec:       spec,
	})
	if err != nil {
		t.Fatalf("expected emit without guides, got %v", err)
	}

	if result.Outcome.Status != domain.PhotoStatusReady {
		t.Fatalf("expected ready outcome, got %s (%s)", result.Outcome.Status, result.Outcome.Detail)
	}
	if !emitter.called {
		t.Fatal("expected output despite the overlay outage")
	}
	if !strings.Contains(result.Outcome.Detail, "measurement guides skipped") {
		t.Fatalf("expected a skipped-guides note, got %q", result.Outcome.Detail)
	}
}

func TestProcessSegmenterOutageDegradesMatte(t *testing.T) {
	processor := NewProcessor(
		bytesFetcher{data: buildPortraitPNG(t, 400, 500)},
		geometricFaceProvider{},
		failingSegmenter{},
		&captureEmitter{},
	)

	result, err := processor.Process(context.Background(), Request{
		PhotoID:    "photo-nomatte",
		SourceType: domain.SourceTypeS3Presigned,
		ObjectKey:  "uploads/photo-nomatte/source",
		Spec:       testSpec(),
	})
	if err != nil {
		t.Fatalf("expected degraded success, got %v", err)
	}

	if result.Outcome.Status != domain.PhotoStatusReady {
		t.Fatalf("expected ready outcome, got %s", result.Outcome.Status)
	}
	if !result.Outcome.MatteDegraded {
		t.Fatal("expected matte_degraded=true")
	}
	if result.Outcome.Detail == "" {
		t.Fatal("expected a degradation detail")
	}
}

func TestLocalFileFetcherRejectsWrongSourceType(t *testing.T) {
	_, err := LocalFileFetcher{}.Fetch(context.Background(), Request{
		SourceType: domain.SourceTypeS3Presigned,
		ObjectKey:  "uploads/x/source",
	})
	if !errors.Is(err, ErrUnsupportedSourceType) {
		t.Fatalf("expected ErrUnsupportedSourceType, got %v", err)
	}
}

func TestSanitizePathToken(t *testing.T) {
	if got := sanitizePathToken("../../etc/passwd"); got != "______etc_passwd" {
		t.Fatalf("unexpected sanitized token: %s", got)
	}
	if got := sanitizePathToken("  "); got != "unknown" {
		t.Fatalf("expected unknown for blank input, got %s", got)
	}
	if got := sanitizePathToken("photo-01_A"); got != "photo-01_A" {
		t.Fatalf("expected safe token to pass through, got %s", got)
	}
}

// buildPortraitPNG paints a simple head-and-shoulders scene: light backdrop,
// dark hair cap, skin-tone face block.
func buildPortraitPNG(t *testing.T, w, h int) []byte {
	t.Helper()

	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	draw.Draw(img, img.Bounds(), image.NewUniform(color.NRGBA{235, 235, 240, 255}), image.Point{}, draw.Src)

	faceLeft := int(float64(w) * 0.3)
	faceRight := int(float64(w) * 0.7)
	hairTop := int(float64(h) * 0.2)
	foreheadY := int(float64(h) * 0.3)
	chinY := int(float64(h) * 0.7)

	draw.Draw(img, image.Rect(faceLeft, hairTop, faceRight, foreheadY), image.NewUniform(color.NRGBA{40, 30, 25, 255}), image.Point{}, draw.Src)
	draw.Draw(img, image.Rect(faceLeft, foreheadY, faceRight, chinY), image.NewUniform(color.NRGBA{205, 160, 130, 255}), image.Point{}, draw.Src)

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("encode test portrait: %v", err)
	}
	return buf.Bytes()
}
