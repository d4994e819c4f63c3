// Package geometry holds the planar primitives shared by the feature
// builders and readers: points, bounding rectangles, quantization of
// plane coordinates to the fixed-precision integer grid, and the delta
// encoding of grid points.
package geometry

import (
	"math"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/planar"
)

// Point is a pair of double-precision coordinates in the projected plane.
type Point = orb.Point

// Bounds of the projected plane. Coordinates outside are clamped before
// quantization.
const (
	MinX = -180.0
	MaxX = 180.0
	MinY = -180.0
	MaxY = 180.0
)

// CoordBits is the number of bits per axis of the integer grid.
const CoordBits = 30

const coordSize = float64(uint32(1)<<CoordBits - 1)

// Epsilon is the size of one grid cell. Quantization moves a coordinate by
// at most half a cell, so values that survive an encode/decode round trip
// compare equal under this tolerance.
var Epsilon = (MaxX - MinX) / coordSize

// PointU is a point on the integer grid.
type PointU struct {
	X, Y uint32
}

// ToPointU quantizes p to the grid.
func ToPointU(p Point) PointU {
	return PointU{
		X: quantize(p[0], MinX, MaxX),
		Y: quantize(p[1], MinY, MaxY),
	}
}

// FromPointU maps a grid point back to the plane.
func FromPointU(u PointU) Point {
	return Point{
		float64(u.X)*(MaxX-MinX)/coordSize + MinX,
		float64(u.Y)*(MaxY-MinY)/coordSize + MinY,
	}
}

func quantize(v, lo, hi float64) uint32 {
	v = math.Max(lo, math.Min(hi, v))
	return uint32(math.Round((v - lo) * coordSize / (hi - lo)))
}

// InPlane reports whether p is a finite point of the coordinate plane.
// NaN coordinates are outside it.
func InPlane(p Point) bool {
	return p[0] >= MinX && p[0] <= MaxX && p[1] >= MinY && p[1] <= MaxY
}

// AlmostEqual compares two coordinates under Epsilon.
func AlmostEqual(a, b float64) bool {
	return math.Abs(a-b) < Epsilon
}

// PointsEqual compares two points axis by axis under Epsilon.
func PointsEqual(a, b Point) bool {
	return AlmostEqual(a[0], b[0]) && AlmostEqual(a[1], b[1])
}

// PathsEqual compares two point sequences element-wise under Epsilon.
func PathsEqual(a, b []Point) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if !PointsEqual(a[i], b[i]) {
			return false
		}
	}
	return true
}

// RingContains reports whether p lies inside the polygon formed by ring.
// The ring does not need to be explicitly closed. Points on the boundary
// count as inside.
func RingContains(ring []Point, p Point) bool {
	if len(ring) < 3 {
		return false
	}
	r := make(orb.Ring, len(ring), len(ring)+1)
	copy(r, ring)
	if !r.Closed() {
		r = append(r, r[0])
	}
	return planar.RingContains(r, p)
}
