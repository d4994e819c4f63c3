package generator

import (
	"errors"

	"github.com/dyuri/mwmcodec/internal/geometry"
)

// TriangulateFunc turns an area into a triangle strip. Consecutive triples
// of the returned strip form the triangles.
type TriangulateFunc func(outer []geometry.Point, holes [][]geometry.Point) ([]geometry.Point, error)

// ErrDegenerateRing is returned for a ring with fewer than three distinct
// points.
var ErrDegenerateRing = errors.New("ring has fewer than three points")

// ZigzagStrip strips a ring by alternating between its two ends:
// p0, p1, pn-1, p2, pn-2, ... Every triangle shares an edge with the
// previous one, which covers the ring exactly when it is convex. Holes are
// not cut out.
func ZigzagStrip(outer []geometry.Point, _ [][]geometry.Point) ([]geometry.Point, error) {
	ring := openRing(outer)
	if len(ring) < 3 {
		return nil, ErrDegenerateRing
	}

	strip := make([]geometry.Point, 0, len(ring))
	lo, hi := 0, len(ring)-1
	strip = append(strip, ring[lo])
	lo++
	for fromLo := true; lo <= hi; fromLo = !fromLo {
		if fromLo {
			strip = append(strip, ring[lo])
			lo++
		} else {
			strip = append(strip, ring[hi])
			hi--
		}
	}
	return strip, nil
}

// openRing drops the closing point of a ring that repeats its first point.
func openRing(ring []geometry.Point) []geometry.Point {
	if n := len(ring); n > 1 && geometry.PointsEqual(ring[0], ring[n-1]) {
		return ring[:n-1]
	}
	return ring
}
