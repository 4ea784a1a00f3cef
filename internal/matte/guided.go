package matte

import "github.com/idphotolab/passpix/internal/raster"

// guidedFilter sharpens src (the alpha matte) against a color guide in [0,1],
// the standard He et al. formulation with a full 3x3 color covariance per
// pixel. radius is the box window radius, eps the regularization term.
func guidedFilter(guide *raster.RGB, src *raster.Plane, radius int, eps float64) *raster.Plane {
	w, h := guide.W, guide.H
	n := w * h

	meanR := raster.BoxFilter(guide.R, radius)
	meanG := raster.BoxFilter(guide.G, radius)
	meanB := raster.BoxFilter(guide.B, radius)
	meanP := raster.BoxFilter(src, radius)

	mulPlane := func(a, b *raster.Plane) *raster.Plane {
		out := raster.NewPlane(w, h)
		for i := 0; i < n; i++ {
			out.Pix[i] = a.Pix[i] * b.Pix[i]
		}
		return out
	}

	corrRP := raster.BoxFilter(mulPlane(guide.R, src), radius)
	corrGP := raster.BoxFilter(mulPlane(guide.G, src), radius)
	corrBP := raster.BoxFilter(mulPlane(guide.B, src), radius)

	corrRR := raster.BoxFilter(mulPlane(guide.R, guide.R), radius)
	corrRG := raster.BoxFilter(mulPlane(guide.R, guide.G), radius)
	corrRB := raster.BoxFilter(mulPlane(guide.R, guide.B), radius)
	corrGG := raster.BoxFilter(mulPlane(guide.G, guide.G), radius)
	corrGB := raster.BoxFilter(mulPlane(guide.G, guide.B), radius)
	corrBB := raster.BoxFilter(mulPlane(guide.B, guide.B), radius)

	aR := raster.NewPlane(w, h)
	aG := raster.NewPlane(w, h)
	aB := raster.NewPlane(w, h)
	b := raster.NewPlane(w, h)

	for i := 0; i < n; i++ {
		mr := float64(meanR.Pix[i])
		mg := float64(meanG.Pix[i])
		mb := float64(meanB.Pix[i])
		mp := float64(meanP.Pix[i])

		// Covariance matrix of the guide, regularized on the diagonal.
		srr := float64(corrRR.Pix[i]) - mr*mr + eps
		srg := float64(corrRG.Pix[i]) - mr*mg
		srb := float64(corrRB.Pix[i]) - mr*mb
		sgg := float64(corrGG.Pix[i]) - mg*mg + eps
		sgb := float64(corrGB.Pix[i]) - mg*mb
		sbb := float64(corrBB.Pix[i]) - mb*mb + eps

		cvr := float64(corrRP.Pix[i]) - mr*mp
		cvg := float64(corrGP.Pix[i]) - mg*mp
		cvb := float64(corrBP.Pix[i]) - mb*mp

		// Invert the symmetric 3x3 by adjugate.
		c00 := sgg*sbb - sgb*sgb
		c01 := sgb*srb - srg*sbb
		c02 := srg*sgb - sgg*srb
		det := srr*c00 + srg*c01 + srb*c02
		if det == 0 {
			b.Pix[i] = float32(mp)
			continue
		}
		c11 := srr*sbb - srb*srb
		c12 := srb*srg - srr*sgb
		c22 := srr*sgg - srg*srg

		ar := (c00*cvr + c01*cvg + c02*cvb) / det
		ag := (c01*cvr + c11*cvg + c12*cvb) / det
		ab := (c02*cvr + c12*cvg + c22*cvb) / det

		aR.Pix[i] = float32(ar)
		aG.Pix[i] = float32(ag)
		aB.Pix[i] = float32(ab)
		b.Pix[i] = float32(mp - ar*mr - ag*mg - ab*mb)
	}

	meanAR := raster.BoxFilter(aR, radius)
	meanAG := raster.BoxFilter(aG, radius)
	meanAB := raster.BoxFilter(aB, radius)
	meanB2 := raster.BoxFilter(b, radius)

	out := raster.NewPlane(w, h)
	for i := 0; i < n; i++ {
		out.Pix[i] = meanAR.Pix[i]*guide.R.Pix[i] +
			meanAG.Pix[i]*guide.G.Pix[i] +
			meanAB.Pix[i]*guide.B.Pix[i] +
			meanB2.Pix[i]
	}
	return out
}
