package segment

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/png"
	"io"
	"net/http"
	"time"

	"github.com/idphotolab/passpix/internal/raster"
)

// HTTPProvider talks to a segmentation model server over HTTP. The server
// accepts an encoded PNG and answers with a same-resolution RGBA cutout; the
// alpha channel is the raw mask.
type HTTPProvider struct {
	endpoint   string
	httpClient *http.Client
}

type HTTPProviderConfig struct {
	Endpoint string
	Timeout  time.Duration
}

func NewHTTPProvider(cfg HTTPProviderConfig) *HTTPProvider {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &HTTPProvider{
		endpoint:   cfg.Endpoint,
		httpClient: &http.Client{Timeout: timeout},
	}
}

func (p *HTTPProvider) Segment(ctx context.Context, img image.Image) (*raster.Plane, error) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("encode segmentation request image: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.endpoint, &buf)
	if err != nil {
		return nil, fmt.Errorf("build segmentation request: %w", err)
	}
	req.Header.Set("Content-Type", "image/png")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("segmentation provider request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("segmentation provider returned status=%d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 64<<20))
	if err != nil {
		return nil, fmt.Errorf("read segmentation response: %w", err)
	}

	cutout, err := png.Decode(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("decode segmentation cutout: %w", err)
	}

	srcBounds := img.Bounds()
	maskBounds := cutout.Bounds()
	if maskBounds.Dx() != srcBounds.Dx() || maskBounds.Dy() != srcBounds.Dy() {
		return nil, fmt.Errorf(
			"segmentation mask size %dx%d does not match source %dx%d",
			maskBounds.Dx(), maskBounds.Dy(), srcBounds.Dx(), srcBounds.Dy(),
		)
	}

	return raster.AlphaFromImage(cutout), nil
}
