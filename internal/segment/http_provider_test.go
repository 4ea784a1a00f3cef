package segment

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/png"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestHTTPProviderDecodesCutoutAlpha(t *testing.T) {
	cutout := image.NewNRGBA(image.Rect(0, 0, 8, 8))
	for y := 0; y < 8; y++ {
		for x := 0; x < 4; x++ {
			cutout.SetNRGBA(x, y, color.NRGBA{120, 90, 80, 255})
		}
	}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if ct := r.Header.Get("Content-Type"); ct != "image/png" {
			t.Errorf("expected image/png content type, got %s", ct)
		}
		var buf bytes.Buffer
		if err := png.Encode(&buf, cutout); err != nil {
			t.Errorf("encode cutout: %v", err)
		}
		_, _ = w.Write(buf.Bytes())
	}))
	defer srv.Close()

	provider := NewHTTPProvider(HTTPProviderConfig{Endpoint: srv.URL})
	mask, err := provider.Segment(context.Background(), image.NewNRGBA(image.Rect(0, 0, 8, 8)))
	if err != nil {
		t.Fatalf("segment: %v", err)
	}

	if mask.W != 8 || mask.H != 8 {
		t.Fatalf("expected 8x8 mask, got %dx%d", mask.W, mask.H)
	}
	if mask.At(1, 1) != 1 {
		t.Fatalf("expected opaque subject pixel 1.0, got %g", mask.At(1, 1))
	}
	if mask.At(6, 6) != 0 {
		t.Fatalf("expected transparent background pixel 0.0, got %g", mask.At(6, 6))
	}
}

func TestHTTPProviderRejectsSizeMismatch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		var buf bytes.Buffer
		_ = png.Encode(&buf, image.NewNRGBA(image.Rect(0, 0, 4, 4)))
		_, _ = w.Write(buf.Bytes())
	}))
	defer srv.Close()

	provider := NewHTTPProvider(HTTPProviderConfig{Endpoint: srv.URL})
	if _, err := provider.Segment(context.Background(), image.NewNRGBA(image.Rect(0, 0, 8, 8))); err == nil {
		t.Fatal("expected error for mismatched mask size")
	}
}

func TestHTTPProviderServerErrorIsError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	provider := NewHTTPProvider(HTTPProviderConfig{Endpoint: srv.URL})
	if _, err := provider.Segment(context.Background(), image.NewNRGBA(image.Rect(0, 0, 8, 8))); err == nil {
		t.Fatal("expected error for status 502")
	}
}
