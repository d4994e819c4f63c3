package source

import (
	"fmt"
	"io"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"

	"github.com/dyuri/mwmcodec/internal/feature"
	"github.com/dyuri/mwmcodec/internal/geometry"
)

func properties(types []uint32, name string, layer int32) geojson.Properties {
	ts := make([]any, len(types))
	for i, t := range types {
		ts[i] = float64(t)
	}
	p := geojson.Properties{PropTypes: ts}
	if name != "" {
		p[PropName] = name
	}
	if layer != 0 {
		p[PropLayer] = float64(layer)
	}
	return p
}

func closeRing(pts []geometry.Point) orb.Ring {
	r := make(orb.Ring, len(pts), len(pts)+1)
	copy(r, pts)
	if len(r) > 0 && !r.Closed() {
		r = append(r, r[0])
	}
	return r
}

func withCenter(g orb.Geometry, hasPoint bool, center geometry.Point) orb.Geometry {
	switch {
	case !hasPoint:
		return g
	case g == nil:
		return center
	}
	return orb.Collection{center, g}
}

// FromBuilder renders a single-scale feature.
func FromBuilder(b *feature.Builder) *geojson.Feature {
	var g orb.Geometry
	switch {
	case b.IsLinear():
		g = orb.LineString(b.Geometry())
	case b.IsArea():
		poly := orb.Polygon{closeRing(b.Geometry())}
		for _, h := range b.Holes() {
			poly = append(poly, closeRing(h))
		}
		g = poly
	}

	f := geojson.NewFeature(withCenter(g, b.HasPoint(), b.Center()))
	f.Properties = properties(b.Types(), b.Name(), b.Layer())
	return f
}

// FromReader renders a multi-scale feature with its geometry at scale.
// Areas become one polygon per triangle. It returns nil for a feature with
// nothing to show at scale.
func FromReader(r *feature.Reader, scale int) (*geojson.Feature, error) {
	if err := r.Parse(scale); err != nil {
		return nil, fmt.Errorf("parse feature: %w", err)
	}

	var parts orb.Collection
	if pts, _ := r.Points(scale); len(pts) > 0 {
		parts = append(parts, orb.LineString(pts))
	}
	if tris, _ := r.Triangles(scale); len(tris) > 0 {
		mp := make(orb.MultiPolygon, 0, len(tris)/3)
		for i := 0; i+2 < len(tris); i += 3 {
			mp = append(mp, orb.Polygon{closeRing(tris[i : i+3])})
		}
		parts = append(parts, mp)
	}

	var g orb.Geometry
	switch len(parts) {
	case 0:
		if !r.HasPoint() {
			return nil, nil
		}
	case 1:
		g = parts[0]
	default:
		g = parts
	}

	f := geojson.NewFeature(withCenter(g, r.HasPoint(), r.Center()))
	f.Properties = properties(r.Types(), r.Name(), r.Layer())
	f.Properties["offset"] = float64(r.Offset())
	return f, nil
}

// Export writes features as a GeoJSON FeatureCollection.
func Export(w io.Writer, features []*geojson.Feature) error {
	fc := geojson.NewFeatureCollection()
	fc.Features = features

	data, err := fc.MarshalJSON()
	if err != nil {
		return fmt.Errorf("marshal geojson: %w", err)
	}
	if _, err := w.Write(data); err != nil {
		return fmt.Errorf("write geojson: %w", err)
	}
	return nil
}
