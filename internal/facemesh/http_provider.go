package facemesh

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"image"
	"image/png"
	"io"
	"net/http"
	"time"
)

// HTTPProvider talks to a face-landmark model server over HTTP. The server
// accepts an encoded PNG and answers with the detected mesh, or an empty
// point list when no face is present.
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
		timeout = 30 * time.Second
	}
	return &HTTPProvider{
		endpoint:   cfg.Endpoint,
		httpClient: &http.Client{Timeout: timeout},
	}
}

type landmarkResponse struct {
	Points []Point `json:"points"`
}

func (p *HTTPProvider) DetectLandmarks(ctx context.Context, img image.Image) (LandmarkSet, bool, error) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, false, fmt.Errorf("encode landmark request image: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.endpoint, &buf)
	if err != nil {
		return nil, false, fmt.Errorf("build landmark request: %w", err)
	}
	req.Header.Set("Content-Type", "image/png")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, false, fmt.Errorf("landmark provider request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, false, nil
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, false, fmt.Errorf("landmark provider returned status=%d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return nil, false, fmt.Errorf("read landmark response: %w", err)
	}

	var parsed landmarkResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, false, fmt.Errorf("decode landmark response: %w", err)
	}
	if len(parsed.Points) == 0 {
		return nil, false, nil
	}

	set := LandmarkSet(parsed.Points)
	if err := set.Validate(); err != nil {
		return nil, false, err
	}
	return set, true, nil
}
