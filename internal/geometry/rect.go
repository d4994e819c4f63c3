package geometry

import (
	"fmt"

	"github.com/paulmach/orb"
)

// Rect is an axis-aligned bounding rectangle that starts out empty and
// grows to the minimal box covering every point added to it.
type Rect struct {
	bound orb.Bound
	valid bool
}

// NewRect returns a rectangle spanning the two corners.
func NewRect(minX, minY, maxX, maxY float64) Rect {
	return Rect{
		bound: orb.Bound{Min: orb.Point{minX, minY}, Max: orb.Point{maxX, maxY}},
		valid: true,
	}
}

// IsEmpty reports whether nothing was added yet.
func (r Rect) IsEmpty() bool {
	return !r.valid
}

// Add grows the rectangle to cover p.
func (r *Rect) Add(p Point) {
	if !r.valid {
		r.bound = orb.Bound{Min: p, Max: p}
		r.valid = true
		return
	}
	r.bound = r.bound.Extend(p)
}

// AddPoints grows the rectangle to cover every point in pts.
func (r *Rect) AddPoints(pts []Point) {
	for _, p := range pts {
		r.Add(p)
	}
}

// Bound returns the rectangle as an orb.Bound. An empty rectangle yields
// the zero bound.
func (r Rect) Bound() orb.Bound {
	return r.bound
}

// MinX returns the left edge.
func (r Rect) MinX() float64 { return r.bound.Min[0] }

// MinY returns the bottom edge.
func (r Rect) MinY() float64 { return r.bound.Min[1] }

// MaxX returns the right edge.
func (r Rect) MaxX() float64 { return r.bound.Max[0] }

// MaxY returns the top edge.
func (r Rect) MaxY() float64 { return r.bound.Max[1] }

// SizeX returns the width.
func (r Rect) SizeX() float64 { return r.bound.Max[0] - r.bound.Min[0] }

// SizeY returns the height.
func (r Rect) SizeY() float64 { return r.bound.Max[1] - r.bound.Min[1] }

// Equal compares two rectangles edge by edge under Epsilon.
func (r Rect) Equal(o Rect) bool {
	if r.valid != o.valid {
		return false
	}
	if !r.valid {
		return true
	}
	return AlmostEqual(r.MinX(), o.MinX()) &&
		AlmostEqual(r.MinY(), o.MinY()) &&
		AlmostEqual(r.MaxX(), o.MaxX()) &&
		AlmostEqual(r.MaxY(), o.MaxY())
}

func (r Rect) String() string {
	if !r.valid {
		return "[empty]"
	}
	return fmt.Sprintf("[%g, %g, %g, %g]", r.MinX(), r.MinY(), r.MaxX(), r.MaxY())
}
