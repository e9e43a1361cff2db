// terrain/place.go
// Copyright(c) 2025 jetsim contributors, licensed under the GNU Public License, Version 3.
// SPDX: GPL-3.0-only

package terrain

import (
	"github.com/mmp/jetsim/rand"
)

// Sampling a random point and rejecting water can in principle loop
// forever on a mostly-water raster, so give up after this many attempts and
// report ErrNoLandFound; callers treat that as a transient condition and
// hold rather than accepting a water point.
const maxPlacementAttempts = 1000

// RandomLandPoint returns a uniformly-sampled land point at least margin
// pixels from the raster edge. Randomness comes only from the provided
// generator, so placement is reproducible under a fixed seed.
func (g *Grid) RandomLandPoint(r *rand.Rand, margin int) ([2]float32, error) {
	if margin < 0 {
		margin = 0
	}
	w := g.Width - 2*margin
	h := g.Height - 2*margin
	if w <= 0 || h <= 0 {
		return [2]float32{}, ErrNoLandFound
	}

	for i := 0; i < maxPlacementAttempts; i++ {
		x := margin + r.Intn(w)
		y := margin + r.Intn(h)
		if t, err := g.Classify(x, y); err == nil && t == Land {
			return [2]float32{float32(x), float32(y)}, nil
		}
	}
	return [2]float32{}, ErrNoLandFound
}

// RandomLandPoints returns n distinct-ish land points; it fails with
// ErrNoLandFound if any single placement exhausts its attempts.
func (g *Grid) RandomLandPoints(r *rand.Rand, n int, margin int) ([][2]float32, error) {
	pts := make([][2]float32, 0, n)
	for i := 0; i < n; i++ {
		p, err := g.RandomLandPoint(r, margin)
		if err != nil {
			return nil, err
		}
		pts = append(pts, p)
	}
	return pts, nil
}
