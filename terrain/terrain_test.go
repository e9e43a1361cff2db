// terrain/terrain_test.go
// Copyright(c) 2025 jetsim contributors, licensed under the GNU Public License, Version 3.
// SPDX: GPL-3.0-only

package terrain

import (
	"bytes"
	"errors"
	"image"
	"image/color"
	"testing"

	"github.com/mmp/jetsim/rand"
)

func TestClassifyRGB(t *testing.T) {
	type testCase struct {
		name     string
		r, g, b  uint8
		expected Terrain
	}

	testCases := []testCase{
		// Rule (a): blue dominates both channels by more than 20.
		{name: "DeepBlue", r: 10, g: 10, b: 200, expected: Water},
		{name: "BlueBarelyOver", r: 100, g: 100, b: 121, expected: Water},
		{name: "BlueExactlyTwenty", r: 100, g: 100, b: 120, expected: Land},
		// Rule (b): bright blue that still exceeds red and green.
		{name: "BrightBlue", r: 140, g: 145, b: 151, expected: Water},
		{name: "BrightButNotBluest", r: 160, g: 140, b: 151, expected: Land},
		// Rule (c): dark murky water.
		{name: "MurkyWater", r: 80, g: 120, b: 115, expected: Water},
		{name: "MurkyButRedTooHigh", r: 100, g: 120, b: 140, expected: Land},
		// Unambiguous land.
		{name: "Grass", r: 60, g: 180, b: 60, expected: Land},
		{name: "Concrete", r: 128, g: 128, b: 128, expected: Land},
		{name: "Black", r: 0, g: 0, b: 0, expected: Land},
		{name: "White", r: 255, g: 255, b: 255, expected: Land},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			if got := ClassifyRGB(tc.r, tc.g, tc.b); got != tc.expected {
				t.Errorf("(%d,%d,%d): got %v, expected %v", tc.r, tc.g, tc.b, got, tc.expected)
			}
			// Determinism: same input, same output.
			if again := ClassifyRGB(tc.r, tc.g, tc.b); again != ClassifyRGB(tc.r, tc.g, tc.b) {
				t.Errorf("(%d,%d,%d): classification not deterministic", tc.r, tc.g, tc.b)
			}
		})
	}
}

// uniformRaster returns a w x h image filled with the given color.
func uniformRaster(w, h int, c color.RGBA) image.Image {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, c)
		}
	}
	return img
}

var (
	landColor  = color.RGBA{R: 90, G: 160, B: 70, A: 255}
	waterColor = color.RGBA{R: 20, G: 40, B: 200, A: 255}
)

func TestGridClassify(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 8, 8))
	for y := 0; y < 8; y++ {
		for x := 0; x < 8; x++ {
			if x >= 4 {
				img.Set(x, y, waterColor)
			} else {
				img.Set(x, y, landColor)
			}
		}
	}

	g, err := MakeGrid(img)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	for y := 0; y < 8; y++ {
		for x := 0; x < 8; x++ {
			terr, err := g.Classify(x, y)
			if err != nil {
				t.Fatalf("(%d,%d): unexpected error: %v", x, y, err)
			}
			expected := Land
			if x >= 4 {
				expected = Water
			}
			if terr != expected {
				t.Errorf("(%d,%d): got %v, expected %v", x, y, terr, expected)
			}
		}
	}

	for _, pt := range [][2]int{{-1, 0}, {0, -1}, {8, 0}, {0, 8}, {100, 100}} {
		if _, err := g.Classify(pt[0], pt[1]); !errors.Is(err, ErrOutOfBounds) {
			t.Errorf("(%d,%d): expected ErrOutOfBounds, got %v", pt[0], pt[1], err)
		}
	}
}

func TestMakeGridInvalid(t *testing.T) {
	if _, err := MakeGrid(nil); !errors.Is(err, ErrInvalidRaster) {
		t.Errorf("nil raster: expected ErrInvalidRaster, got %v", err)
	}
	if _, err := MakeGrid(image.NewRGBA(image.Rect(0, 0, 0, 0))); !errors.Is(err, ErrInvalidRaster) {
		t.Errorf("empty raster: expected ErrInvalidRaster, got %v", err)
	}
}

func TestRandomLandPointNeverWater(t *testing.T) {
	// Half land, half water, in vertical stripes.
	img := image.NewRGBA(image.Rect(0, 0, 100, 100))
	for y := 0; y < 100; y++ {
		for x := 0; x < 100; x++ {
			if (x/10)%2 == 0 {
				img.Set(x, y, waterColor)
			} else {
				img.Set(x, y, landColor)
			}
		}
	}
	g, err := MakeGrid(img)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	r := rand.MakeWithSeed(6502)
	for i := 0; i < 10000; i++ {
		p, err := g.RandomLandPoint(r, 2)
		if err != nil {
			t.Fatalf("iteration %d: unexpected error: %v", i, err)
		}
		if terr, err := g.Classify(int(p[0]), int(p[1])); err != nil || terr != Land {
			t.Fatalf("iteration %d: returned point %v is not land (%v, %v)", i, p, terr, err)
		}
		if p[0] < 2 || p[0] >= 98 || p[1] < 2 || p[1] >= 98 {
			t.Fatalf("iteration %d: point %v violates margin", i, p)
		}
	}
}

func TestRandomLandPointAllWater(t *testing.T) {
	g, err := MakeGrid(uniformRaster(50, 50, waterColor))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	r := rand.MakeWithSeed(1)
	if _, err := g.RandomLandPoint(r, 0); !errors.Is(err, ErrNoLandFound) {
		t.Errorf("expected ErrNoLandFound, got %v", err)
	}
}

func TestRandomLandPointExcessiveMargin(t *testing.T) {
	g, err := MakeGrid(uniformRaster(20, 20, landColor))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	r := rand.MakeWithSeed(2)
	if _, err := g.RandomLandPoint(r, 15); !errors.Is(err, ErrNoLandFound) {
		t.Errorf("expected ErrNoLandFound for margin larger than raster, got %v", err)
	}
}

func TestRandomLandPointDeterminism(t *testing.T) {
	g, err := MakeGrid(uniformRaster(64, 64, landColor))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	a, err := g.RandomLandPoints(rand.MakeWithSeed(99), 50, 1)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	b, err := g.RandomLandPoints(rand.MakeWithSeed(99), 50, 1)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for i := range a {
		if a[i] != b[i] {
			t.Fatalf("placement diverged at %d: %v vs %v", i, a[i], b[i])
		}
	}
}

func TestArchiveRoundTrip(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 37, 23)) // deliberately not a multiple of 64 pixels
	for y := 0; y < 23; y++ {
		for x := 0; x < 37; x++ {
			if (x+y)%3 == 0 {
				img.Set(x, y, waterColor)
			} else {
				img.Set(x, y, landColor)
			}
		}
	}
	g, err := MakeGrid(img)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var buf bytes.Buffer
	if err := g.Save(&buf); err != nil {
		t.Fatalf("save: %v", err)
	}
	g2, err := LoadArchive(&buf)
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	if g2.Width != g.Width || g2.Height != g.Height {
		t.Fatalf("dimensions mismatch: %dx%d vs %dx%d", g2.Width, g2.Height, g.Width, g.Height)
	}
	for y := 0; y < g.Height; y++ {
		for x := 0; x < g.Width; x++ {
			t0, _ := g.Classify(x, y)
			t1, _ := g2.Classify(x, y)
			if t0 != t1 {
				t.Fatalf("(%d,%d): classification changed across archive round trip", x, y)
			}
		}
	}
}
