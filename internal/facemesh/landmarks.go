package facemesh

import (
	"context"
	"errors"
	"fmt"
	"image"
)

// Index convention of the 468-point face mesh topology. Substituting a
// provider with a different topology requires revalidating these.
const (
	LandmarkCount  = 468
	ForeheadCenter = 10
	ChinCenter     = 152
	LeftEyeCenter  = 33
	RightEyeCenter = 263
)

var ErrInvalidTopology = errors.New("landmark set does not match the 468-point topology")

// Point is a detected landmark in pixel space with relative depth.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

// LandmarkSet is the full ordered mesh for a single detected face.
type LandmarkSet []Point

func (ls LandmarkSet) Validate() error {
	if len(ls) != LandmarkCount {
		return fmt.Errorf("%w: got %d points", ErrInvalidTopology, len(ls))
	}
	return nil
}

// Forehead, Chin, LeftEye and RightEye return the anchor points the crop
// geometry depends on. Validate must pass before calling these.
func (ls LandmarkSet) Forehead() Point { return ls[ForeheadCenter] }
func (ls LandmarkSet) Chin() Point     { return ls[ChinCenter] }
func (ls LandmarkSet) LeftEye() Point  { return ls[LeftEyeCenter] }
func (ls LandmarkSet) RightEye() Point { return ls[RightEyeCenter] }

// Shift translates every point by (dx, dy), used to map landmarks detected
// on a padded frame back into the unpadded coordinate space.
func (ls LandmarkSet) Shift(dx, dy float64) LandmarkSet {
	out := make(LandmarkSet, len(ls))
	for i, p := range ls {
		out[i] = Point{X: p.X + dx, Y: p.Y + dy, Z: p.Z}
	}
	return out
}

// Provider detects face landmarks on an image. The boolean reports whether a
// face was found; absence is an expected outcome, not an error.
type Provider interface {
	DetectLandmarks(ctx context.Context, img image.Image) (LandmarkSet, bool, error)
}

// Chain tries providers in order, falling through on provider errors only.
// A clean "no face" answer is final and does not trigger the next provider.
type Chain struct {
	providers []Provider
}

func NewChain(providers ...Provider) *Chain {
	return &Chain{providers: providers}
}

func (c *Chain) DetectLandmarks(ctx context.Context, img image.Image) (LandmarkSet, bool, error) {
	if len(c.providers) == 0 {
		return nil, false, errors.New("no landmark providers configured")
	}

	var lastErr error
	for _, p := range c.providers {
		set, ok, err := p.DetectLandmarks(ctx, img)
		if err != nil {
			lastErr = err
			continue
		}
		return set, ok, nil
	}
	return nil, false, fmt.Errorf("all landmark providers failed: %w", lastErr)
}
