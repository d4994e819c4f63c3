// Package source converts between GeoJSON and feature builders.
//
// A GeoJSON feature carries its classification in properties: "types" (an
// array of numbers) or "type" (a number), plus optional "name" and
// "layer". Multi-part geometries become one builder per part.
package source

import (
	"fmt"
	"io"
	"math"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"github.com/sirupsen/logrus"

	"github.com/dyuri/mwmcodec/internal/feature"
	"github.com/dyuri/mwmcodec/internal/geometry"
)

// Property keys.
const (
	PropTypes = "types"
	PropType  = "type"
	PropName  = "name"
	PropLayer = "layer"
)

// Options controls Import.
type Options struct {
	CodePage int
	Log      logrus.FieldLogger
}

// Import reads a GeoJSON FeatureCollection and returns one valid builder
// per feature part. Parts that fail validation are logged and skipped.
func Import(r io.Reader, opts Options) ([]*feature.Builder, error) {
	log := opts.Log
	if log == nil {
		log = logrus.StandardLogger()
	}

	dr, err := DecodingReader(r, opts.CodePage)
	if err != nil {
		return nil, fmt.Errorf("setup decoder: %w", err)
	}
	data, err := io.ReadAll(dr)
	if err != nil {
		return nil, fmt.Errorf("read input: %w", err)
	}

	fc, err := geojson.UnmarshalFeatureCollection(data)
	if err != nil {
		return nil, fmt.Errorf("parse geojson: %w", err)
	}

	var out []*feature.Builder
	for i, f := range fc.Features {
		flog := log.WithField("feature", i)

		attrs, err := parseProperties(f.Properties)
		if err != nil {
			flog.Warnf("skipped: %v", err)
			continue
		}

		for _, b := range buildersFor(f.Geometry) {
			attrs.apply(b)
			if err := b.CheckValid(); err != nil {
				flog.Warnf("skipped part: %v", err)
				continue
			}
			out = append(out, b)
		}
	}

	log.WithField("features", len(out)).Debug("geojson imported")
	return out, nil
}

type attributes struct {
	types []uint32
	name  string
	layer int32
}

func (a attributes) apply(b *feature.Builder) {
	b.AddTypes(a.types)
	b.AddName(a.name)
	b.AddLayer(a.layer)
}

func toUint32(v any) (uint32, error) {
	f, ok := v.(float64)
	if !ok || f < 0 || f > float64(^uint32(0)) || f != float64(uint32(f)) {
		return 0, fmt.Errorf("type %v is not an unsigned integer", v)
	}
	return uint32(f), nil
}

func parseProperties(p geojson.Properties) (attributes, error) {
	var a attributes

	switch v := p[PropTypes].(type) {
	case []any:
		for _, e := range v {
			t, err := toUint32(e)
			if err != nil {
				return a, err
			}
			a.types = append(a.types, t)
		}
	case nil:
		if t, ok := p[PropType]; ok {
			u, err := toUint32(t)
			if err != nil {
				return a, err
			}
			a.types = []uint32{u}
		}
	default:
		return a, fmt.Errorf("property %q must be an array", PropTypes)
	}
	if len(a.types) == 0 {
		return a, fmt.Errorf("no %q or %q property", PropTypes, PropType)
	}

	a.name = p.MustString(PropName, "")
	// clamp before converting, out of range floats do not convert to int32
	layer := p.MustFloat64(PropLayer, 0)
	a.layer = int32(math.Max(-feature.LayerBound, math.Min(feature.LayerBound, layer)))
	return a, nil
}

func buildersFor(g orb.Geometry) []*feature.Builder {
	switch g := g.(type) {
	case orb.Point:
		b := feature.NewBuilder()
		b.SetCenter(g)
		return []*feature.Builder{b}

	case orb.MultiPoint:
		var out []*feature.Builder
		for _, p := range g {
			out = append(out, buildersFor(p)...)
		}
		return out

	case orb.LineString:
		b := feature.NewBuilder()
		for _, p := range g {
			b.AddPoint(p)
		}
		b.SetLinear()
		return []*feature.Builder{b}

	case orb.MultiLineString:
		var out []*feature.Builder
		for _, ls := range g {
			out = append(out, buildersFor(ls)...)
		}
		return out

	case orb.Polygon:
		if len(g) == 0 {
			return nil
		}
		b := feature.NewBuilder()
		for _, p := range openRing(g[0]) {
			b.AddPoint(p)
		}
		var holes [][]geometry.Point
		for _, h := range g[1:] {
			holes = append(holes, openRing(h))
		}
		b.SetAreaAddHoles(holes)
		return []*feature.Builder{b}

	case orb.MultiPolygon:
		var out []*feature.Builder
		for _, p := range g {
			out = append(out, buildersFor(p)...)
		}
		return out

	case orb.Collection:
		var out []*feature.Builder
		for _, c := range g {
			out = append(out, buildersFor(c)...)
		}
		return out
	}
	return nil
}

func openRing(r orb.Ring) []geometry.Point {
	if r.Closed() && len(r) > 1 {
		r = r[:len(r)-1]
	}
	return []geometry.Point(r)
}
