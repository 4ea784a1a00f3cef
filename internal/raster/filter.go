package raster

import "math"

// reflect101 mirrors an out-of-range coordinate without repeating the edge
// sample, matching the default border mode of the filters these kernels are
// calibrated against.
func reflect101(i, n int) int {
	if n == 1 {
		return 0
	}
	for i < 0 || i >= n {
		if i < 0 {
			i = -i
		}
		if i >= n {
			i = 2*(n-1) - i
		}
	}
	return i
}

func gaussianKernel(ksize int) []float32 {
	// Sigma derived from kernel size the way OpenCV does when sigma=0.
	sigma := 0.3*(float64(ksize-1)*0.5-1) + 0.8
	half := ksize / 2
	kernel := make([]float32, ksize)
	var sum float64
	for i := 0; i < ksize; i++ {
		d := float64(i - half)
		v := math.Exp(-d * d / (2 * sigma * sigma))
		kernel[i] = float32(v)
		sum += v
	}
	for i := range kernel {
		kernel[i] = float32(float64(kernel[i]) / sum)
	}
	return kernel
}

// GaussianBlur applies a separable ksize×ksize gaussian with auto sigma.
func GaussianBlur(p *Plane, ksize int) *Plane {
	kernel := gaussianKernel(ksize)
	half := ksize / 2

	tmp := NewPlane(p.W, p.H)
	for y := 0; y < p.H; y++ {
		for x := 0; x < p.W; x++ {
			var acc float32
			for k := -half; k <= half; k++ {
				acc += kernel[k+half] * p.Pix[y*p.W+reflect101(x+k, p.W)]
			}
			tmp.Pix[y*p.W+x] = acc
		}
	}

	out := NewPlane(p.W, p.H)
	for y := 0; y < p.H; y++ {
		for x := 0; x < p.W; x++ {
			var acc float32
			for k := -half; k <= half; k++ {
				acc += kernel[k+half] * tmp.Pix[reflect101(y+k, p.H)*p.W+x]
			}
			out.Pix[y*p.W+x] = acc
		}
	}
	return out
}

// BoxFilter computes the normalized mean over a (2r+1)×(2r+1) window.
func BoxFilter(p *Plane, radius int) *Plane {
	tmp := NewPlane(p.W, p.H)
	norm := float32(1) / float32(2*radius+1)
	for y := 0; y < p.H; y++ {
		for x := 0; x < p.W; x++ {
			var acc float32
			for k := -radius; k <= radius; k++ {
				acc += p.Pix[y*p.W+reflect101(x+k, p.W)]
			}
			tmp.Pix[y*p.W+x] = acc * norm
		}
	}

	out := NewPlane(p.W, p.H)
	for y := 0; y < p.H; y++ {
		for x := 0; x < p.W; x++ {
			var acc float32
			for k := -radius; k <= radius; k++ {
				acc += tmp.Pix[reflect101(y+k, p.H)*p.W+x]
			}
			out.Pix[y*p.W+x] = acc * norm
		}
	}
	return out
}

func dilatePlane(p *Plane, half int) *Plane {
	tmp := NewPlane(p.W, p.H)
	for y := 0; y < p.H; y++ {
		for x := 0; x < p.W; x++ {
			m := float32(math.Inf(-1))
			for k := -half; k <= half; k++ {
				xx := x + k
				if xx < 0 || xx >= p.W {
					continue
				}
				if v := p.Pix[y*p.W+xx]; v > m {
					m = v
				}
			}
			tmp.Pix[y*p.W+x] = m
		}
	}

	out := NewPlane(p.W, p.H)
	for y := 0; y < p.H; y++ {
		for x := 0; x < p.W; x++ {
			m := float32(math.Inf(-1))
			for k := -half; k <= half; k++ {
				yy := y + k
				if yy < 0 || yy >= p.H {
					continue
				}
				if v := tmp.Pix[yy*p.W+x]; v > m {
					m = v
				}
			}
			out.Pix[y*p.W+x] = m
		}
	}
	return out
}

// Dilate runs grayscale morphological dilation with a square ksize element,
// repeated iterations times, on each color plane.
func Dilate(c *RGB, ksize, iterations int) *RGB {
	half := ksize / 2
	out := c.Clone()
	for i := 0; i < iterations; i++ {
		out.R = dilatePlane(out.R, half)
		out.G = dilatePlane(out.G, half)
		out.B = dilatePlane(out.B, half)
	}
	return out
}

// Bilateral smooths color planes with a d-diameter edge-preserving filter.
// Color distance uses the L1 sum across channels, as the reference filter does.
func Bilateral(c *RGB, d int, sigmaColor, sigmaSpace float64) *RGB {
	radius := d / 2
	if radius < 1 {
		radius = 1
	}

	spaceCoeff := -0.5 / (sigmaSpace * sigmaSpace)
	colorCoeff := -0.5 / (sigmaColor * sigmaColor)

	spaceWeight := make([]float64, 0, (2*radius+1)*(2*radius+1))
	offsets := make([][2]int, 0, (2*radius+1)*(2*radius+1))
	for dy := -radius; dy <= radius; dy++ {
		for dx := -radius; dx <= radius; dx++ {
			r2 := float64(dx*dx + dy*dy)
			if r2 > float64(radius*radius) {
				continue
			}
			spaceWeight = append(spaceWeight, math.Exp(r2*spaceCoeff))
			offsets = append(offsets, [2]int{dx, dy})
		}
	}

	out := NewRGB(c.W, c.H)
	for y := 0; y < c.H; y++ {
		for x := 0; x < c.W; x++ {
			i := y*c.W + x
			r0 := float64(c.R.Pix[i])
			g0 := float64(c.G.Pix[i])
			b0 := float64(c.B.Pix[i])

			var sumW, sumR, sumG, sumB float64
			for k, off := range offsets {
				xx := reflect101(x+off[0], c.W)
				yy := reflect101(y+off[1], c.H)
				j := yy*c.W + xx
				r := float64(c.R.Pix[j])
				g := float64(c.G.Pix[j])
				b := float64(c.B.Pix[j])
				diff := math.Abs(r-r0) + math.Abs(g-g0) + math.Abs(b-b0)
				w := spaceWeight[k] * math.Exp(diff*diff*colorCoeff)
				sumW += w
				sumR += w * r
				sumG += w * g
				sumB += w * b
			}
			if sumW > 0 {
				out.R.Pix[i] = float32(sumR / sumW)
				out.G.Pix[i] = float32(sumG / sumW)
				out.B.Pix[i] = float32(sumB / sumW)
			}
		}
	}
	return out
}
