// terrain/terrain.go
// Copyright(c) 2025 jetsim contributors, licensed under the GNU Public License, Version 3.
// SPDX: GPL-3.0-only

// Package terrain classifies city map rasters into land and water and
// provides land-constrained random placement for spawn points,
// destinations, and parking pads.
package terrain

import (
	"errors"
	"image"
)

var (
	ErrInvalidRaster = errors.New("invalid map raster")
	ErrOutOfBounds   = errors.New("coordinate out of raster bounds")
	ErrNoLandFound   = errors.New("no land point found")
)

type Terrain int

const (
	Land Terrain = iota
	Water
)

func (t Terrain) String() string {
	return [...]string{"Land", "Water"}[t]
}

// ClassifyRGB returns the terrain type for a raster sample with the given
// 8-bit color channels. The rule must not be changed: pre-generated
// placement data depends on it exactly.
func ClassifyRGB(r, g, b uint8) Terrain {
	ri, gi, bi := int(r), int(g), int(b)

	if bi > ri+20 && bi > gi+20 {
		return Water
	}
	if bi > 150 && bi > ri && bi > gi {
		return Water
	}
	if ri < 100 && gi < 150 && bi > 100 && bi-ri > 30 {
		return Water
	}
	return Land
}

// Grid holds the per-pixel land/water classification of a city map,
// derived once from a raster and immutable afterward.
type Grid struct {
	Width, Height int
	water         []uint64 // row-major bitset, one bit per pixel
}

// MakeGrid classifies every pixel of the given raster.
func MakeGrid(img image.Image) (*Grid, error) {
	if img == nil {
		return nil, ErrInvalidRaster
	}
	bounds := img.Bounds()
	w, h := bounds.Dx(), bounds.Dy()
	if w <= 0 || h <= 0 {
		return nil, ErrInvalidRaster
	}

	g := &Grid{
		Width:  w,
		Height: h,
		water:  make([]uint64, (w*h+63)/64),
	}
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			r, gc, b, _ := img.At(bounds.Min.X+x, bounds.Min.Y+y).RGBA()
			if ClassifyRGB(uint8(r>>8), uint8(gc>>8), uint8(b>>8)) == Water {
				g.setWater(x, y)
			}
		}
	}
	return g, nil
}

// makeGridFromBits reconstitutes a Grid from archived classification bits;
// see archive.go.
func makeGridFromBits(w, h int, water []uint64) (*Grid, error) {
	if w <= 0 || h <= 0 || len(water) != (w*h+63)/64 {
		return nil, ErrInvalidRaster
	}
	return &Grid{Width: w, Height: h, water: water}, nil
}

func (g *Grid) setWater(x, y int) {
	idx := y*g.Width + x
	g.water[idx/64] |= 1 << (idx % 64)
}

// Classify returns the terrain at the given pixel coordinate. Coordinates
// outside the raster are an error, never a default terrain: placement
// code must not be allowed to treat off-map points as land or water.
func (g *Grid) Classify(x, y int) (Terrain, error) {
	if x < 0 || x >= g.Width || y < 0 || y >= g.Height {
		return Land, ErrOutOfBounds
	}
	idx := y*g.Width + x
	if g.water[idx/64]&(1<<(idx%64)) != 0 {
		return Water, nil
	}
	return Land, nil
}

// IsLand reports whether the given point, truncated to a pixel
// coordinate, is on land; points off the map are not land.
func (g *Grid) IsLand(p [2]float32) bool {
	t, err := g.Classify(int(p[0]), int(p[1]))
	return err == nil && t == Land
}
