// math/heading.go
// Copyright(c) 2025 jetsim contributors, licensed under the GNU Public License, Version 3.
// SPDX: GPL-3.0-only

package math

import gomath "math"

///////////////////////////////////////////////////////////////////////////
// headings and directions

// Headings are expressed in radians in [0,2pi), measured clockwise from
// north. Map rasters have y increasing downward, so the direction vector
// for a heading h is (sin h, -cos h).

// HeadingVector returns the unit direction vector corresponding to the
// given heading.
func HeadingVector(h float32) [2]float32 {
	return [2]float32{Sin(h), -Cos(h)}
}

// Heading2f returns the heading from the point from to the point to.
func Heading2f(from, to [2]float32) float32 {
	v := Sub2f(to, from)

	// Note that atan2() normally measures w.r.t. the +x axis and angles
	// are positive for counter-clockwise. We want to measure w.r.t. -y
	// (north) and to have positive angles be clockwise; passing (x,-y)
	// gives what we want.
	return NormalizeHeading(Atan2(v[0], -v[1]))
}

// Reduces it to [0,2pi).
func NormalizeHeading(h float32) float32 {
	if h < 0 {
		return NormalizeHeading(h + 2*Pi())
	}
	if h = Mod(h, 2*Pi()); h == 2*Pi() {
		// float32 rounding of the float64 modulus can land exactly on
		// 2pi for inputs just below it.
		h = 0
	}
	return h
}

// HeadingDifference returns the minimum difference between two headings;
// the result is always in the range [0,pi].
func HeadingDifference(a float32, b float32) float32 {
	var d float32
	if a > b {
		d = a - b
	} else {
		d = b - a
	}
	if d > Pi() {
		d = 2*Pi() - d
	}
	return d
}

func OppositeHeading(h float32) float32 {
	return NormalizeHeading(h + Pi())
}

// Compass converts a heading into an abbreviated string corresponding to
// the closest compass direction.
func Compass(heading float32) string {
	h := NormalizeHeading(heading + Pi()/8) // now [0,pi/4) is north, etc...
	idx := int(h / (Pi() / 4))
	return [...]string{"N", "NE", "E", "SE", "S", "SW", "W", "NW"}[idx%8]
}

func Degrees(r float32) float32 {
	return r * 180 / gomath.Pi
}

func Radians(d float32) float32 {
	return d / 180 * gomath.Pi
}
