package facemesh

import (
	"context"
	"encoding/json"
	"image"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestHTTPProviderParsesMesh(t *testing.T) {
	points := make([]Point, LandmarkCount)
	points[ForeheadCenter] = Point{X: 50, Y: 20}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("expected POST, got %s", r.Method)
		}
		if ct := r.Header.Get("Content-Type"); ct != "image/png" {
			t.Errorf("expected image/png content type, got %s", ct)
		}
		_ = json.NewEncoder(w).Encode(landmarkResponse{Points: points})
	}))
	defer srv.Close()

	provider := NewHTTPProvider(HTTPProviderConfig{Endpoint: srv.URL})
	lm, found, err := provider.DetectLandmarks(context.Background(), image.NewNRGBA(image.Rect(0, 0, 10, 10)))
	if err != nil {
		t.Fatalf("detect landmarks: %v", err)
	}
	if !found {
		t.Fatal("expected a detection")
	}
	if got := lm.Forehead(); got.X != 50 || got.Y != 20 {
		t.Fatalf("unexpected forehead point: %+v", got)
	}
}

func TestHTTPProviderTreats404AsNoFace(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	provider := NewHTTPProvider(HTTPProviderConfig{Endpoint: srv.URL})
	_, found, err := provider.DetectLandmarks(context.Background(), image.NewNRGBA(image.Rect(0, 0, 10, 10)))
	if err != nil {
		t.Fatalf("expected clean miss, got %v", err)
	}
	if found {
		t.Fatal("expected no face")
	}
}

func TestHTTPProviderEmptyPointListIsNoFace(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_ = json.NewEncoder(w).Encode(landmarkResponse{})
	}))
	defer srv.Close()

	provider := NewHTTPProvider(HTTPProviderConfig{Endpoint: srv.URL})
	_, found, err := provider.DetectLandmarks(context.Background(), image.NewNRGBA(image.Rect(0, 0, 10, 10)))
	if err != nil {
		t.Fatalf("expected clean miss, got %v", err)
	}
	if found {
		t.Fatal("expected no face")
	}
}

func TestHTTPProviderRejectsPartialMesh(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_ = json.NewEncoder(w).Encode(landmarkResponse{Points: make([]Point, 7)})
	}))
	defer srv.Close()

	provider := NewHTTPProvider(HTTPProviderConfig{Endpoint: srv.URL})
	if _, _, err := provider.DetectLandmarks(context.Background(), image.NewNRGBA(image.Rect(0, 0, 10, 10))); err == nil {
		t.Fatal("expected topology error for a partial mesh")
	}
}

func TestHTTPProviderServerErrorIsError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	provider := NewHTTPProvider(HTTPProviderConfig{Endpoint: srv.URL})
	if _, _, err := provider.DetectLandmarks(context.Background(), image.NewNRGBA(image.Rect(0, 0, 10, 10))); err == nil {
		t.Fatal("expected error for status 500")
	}
}
