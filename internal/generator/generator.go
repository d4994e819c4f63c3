// Package generator produces multi-scale datasets: it reduces each source
// feature to one geometry per detail level, keeps small geometry inline in
// the record and writes the rest to the per-scale stores.
package generator

import (
	"fmt"
	"math"
	"slices"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/simplify"
	"github.com/sirupsen/logrus"

	"github.com/dyuri/mwmcodec/internal/feature"
	"github.com/dyuri/mwmcodec/internal/geometry"
	"github.com/dyuri/mwmcodec/internal/serial"
	"github.com/dyuri/mwmcodec/internal/store"
)

// tileSize is the pixel width of a tile used to derive default tolerances.
const tileSize = 256

// Options tunes a Generator. Zero fields take defaults.
type Options struct {
	// Epsilons is the Douglas-Peucker tolerance in degrees per detail
	// level, coarsest first. Defaults to one pixel at each level's scale.
	Epsilons []float64

	// InlineMaxPoints caps inline polylines. At most MaxInlinePoints.
	InlineMaxPoints int
	// InlineMaxStrip caps inline triangle strips. At most MaxInlineStrip.
	InlineMaxStrip int

	Triangulate TriangulateFunc

	// Drawable, when set, drops features with geometry that it rejects at
	// every scale of the table.
	Drawable func(env *feature.Envelope, scale int) bool

	Log logrus.FieldLogger
}

// DefaultEpsilons returns one pixel in degrees at every scale of t.
func DefaultEpsilons(t feature.ScaleTable) []float64 {
	eps := make([]float64, len(t))
	for i, s := range t {
		eps[i] = (geometry.MaxX - geometry.MinX) / (tileSize * math.Exp2(float64(s)))
	}
	return eps
}

// Stats counts what a Generator wrote.
type Stats struct {
	Features       int
	Skipped        int
	InlinePoints   int
	ExternalPoints int
	InlineStrips   int
	ExternalStrips int
}

// Generator writes features into a dataset sink. It is not safe for
// concurrent use.
type Generator struct {
	header *feature.DatasetHeader
	sink   store.Sink
	opts   Options
	log    logrus.FieldLogger
	stats  Stats
}

// New returns a generator writing records against h into sink.
func New(h *feature.DatasetHeader, sink store.Sink, opts Options) (*Generator, error) {
	if err := h.Validate(); err != nil {
		return nil, fmt.Errorf("validate header: %w", err)
	}

	if opts.Epsilons == nil {
		opts.Epsilons = DefaultEpsilons(h.Scales)
	}
	if len(opts.Epsilons) != h.ScalesCount() {
		return nil, fmt.Errorf("%d tolerances for %d detail levels", len(opts.Epsilons), h.ScalesCount())
	}
	if opts.InlineMaxPoints == 0 || opts.InlineMaxPoints > feature.MaxInlinePoints {
		opts.InlineMaxPoints = feature.MaxInlinePoints
	}
	if opts.InlineMaxStrip == 0 || opts.InlineMaxStrip > feature.MaxInlineStrip {
		opts.InlineMaxStrip = feature.MaxInlineStrip
	}
	if opts.Triangulate == nil {
		opts.Triangulate = ZigzagStrip
	}
	if opts.Log == nil {
		opts.Log = logrus.StandardLogger()
	}

	return &Generator{header: h, sink: sink, opts: opts, log: opts.Log}, nil
}

// Stats returns the counters accumulated so far.
func (g *Generator) Stats() Stats {
	return g.stats
}

// Add encodes b and appends its record. It reports false when the feature
// has nothing to show at any detail level and was skipped.
func (g *Generator) Add(b *feature.Builder) (uint32, bool, error) {
	log := g.log.WithField("feature", g.stats.Features+g.stats.Skipped)

	if err := b.CheckValid(); err != nil {
		return 0, false, fmt.Errorf("check feature: %w", err)
	}

	ms := feature.NewMultiScaleBuilder(b)
	if g.opts.Drawable != nil && len(b.Geometry()) > 0 {
		ok, err := ms.IsDrawableInRange(0, g.header.Scales[len(g.header.Scales)-1], g.opts.Drawable)
		if err != nil {
			return 0, false, fmt.Errorf("check drawable: %w", err)
		}
		if !ok {
			log.Debug("not drawable at any scale")
			g.stats.Skipped++
			return 0, false, nil
		}
	}

	h := &feature.Holder{}
	if b.IsLinear() {
		if err := g.addLine(h, b.Geometry()); err != nil {
			return 0, false, err
		}
	}
	if b.IsArea() {
		if err := g.addArea(h, b.Geometry(), b.Holes(), log); err != nil {
			return 0, false, err
		}
	}

	if !ms.PreSerialize(h) {
		log.Debug("no geometry at any detail level")
		g.stats.Skipped++
		return 0, false, nil
	}

	rec, err := ms.Serialize(h, g.header.Base)
	if err != nil {
		return 0, false, fmt.Errorf("serialize feature: %w", err)
	}
	off, err := g.sink.AppendRecord(rec)
	if err != nil {
		return 0, false, fmt.Errorf("append record: %w", err)
	}

	log.WithField("bytes", len(rec)).Debug("feature written")
	g.stats.Features++
	return off, true, nil
}

func (g *Generator) addLine(h *feature.Holder, pts []geometry.Point) error {
	levels := g.simplifyLevels(dedupe(pts), false)
	finest := levels[len(levels)-1]

	if len(finest) >= 2 && len(finest) <= g.opts.InlineMaxPoints {
		h.InnerPts = finest
		for i, level := range pointLevels(levels) {
			h.SetPointLevel(i+1, level)
		}
		g.stats.InlinePoints++
		return nil
	}

	for i := len(levels) - 1; i >= 0; i-- {
		if len(levels[i]) < 2 || !g.visible(levels[i], i) {
			continue
		}
		off, err := g.sink.Append(feature.GeometryTag(i), serial.SaveOuterPath(nil, levels[i], g.header.Base))
		if err != nil {
			return fmt.Errorf("append points: %w", err)
		}
		h.AddPointsOffset(i, off)
	}
	if h.PtsMask != 0 {
		g.stats.ExternalPoints++
	}
	return nil
}

func (g *Generator) addArea(h *feature.Holder, outer []geometry.Point, holes [][]geometry.Point, log logrus.FieldLogger) error {
	levels := g.simplifyLevels(dedupe(openRing(outer)), true)

	strips := make([][]geometry.Point, len(levels))
	for i, ring := range levels {
		strip, err := g.opts.Triangulate(ring, holes)
		if err != nil {
			log.WithField("level", i).Debugf("triangulate: %v", err)
			continue
		}
		strips[i] = strip
	}

	if finest := strips[len(strips)-1]; len(finest) >= 3 && len(finest) <= g.opts.InlineMaxStrip {
		h.InnerTrg = finest
		g.stats.InlineStrips++
		return nil
	}

	for i := len(strips) - 1; i >= 0; i-- {
		if len(strips[i]) < 3 || !g.visible(levels[i], i) {
			continue
		}
		off, err := g.sink.Append(feature.TrianglesTag(i), serial.SaveOuterTriangles(nil, strips[i], g.header.Base))
		if err != nil {
			return fmt.Errorf("append triangles: %w", err)
		}
		h.AddTrianglesOffset(i, off)
	}
	if h.TrgMask != 0 {
		g.stats.ExternalStrips++
	}
	return nil
}

// simplifyLevels reduces pts once per detail level. A closed ring is
// simplified with its closing point and returned open.
func (g *Generator) simplifyLevels(pts []geometry.Point, closed bool) [][]geometry.Point {
	levels := make([][]geometry.Point, len(g.opts.Epsilons))
	for i, eps := range g.opts.Epsilons {
		// the simplifier compacts its input in place
		ls := orb.LineString(slices.Clone(pts))
		if closed && len(ls) > 0 {
			ls = append(ls, ls[0])
		}
		ls = simplify.DouglasPeucker(eps).LineString(ls)
		if closed && len(ls) > 1 {
			ls = ls[:len(ls)-1]
		}
		levels[i] = []geometry.Point(ls)
	}
	return levels
}

// visible reports whether pts spans at least one tolerance at level.
func (g *Generator) visible(pts []geometry.Point, level int) bool {
	var r geometry.Rect
	r.AddPoints(pts)
	eps := g.opts.Epsilons[level]
	return r.SizeX() >= eps || r.SizeY() >= eps
}

// pointLevels returns, for every interior point of the finest level, the
// coarsest level that still contains it.
func pointLevels(levels [][]geometry.Point) []uint8 {
	finest := levels[len(levels)-1]
	if len(finest) <= 2 {
		return nil
	}

	out := make([]uint8, len(finest)-2)
	for i := range out {
		out[i] = uint8(len(levels) - 1)
	}
	for lvl := len(levels) - 2; lvl >= 0; lvl-- {
		coarse := levels[lvl]
		k := 0
		for j, p := range finest {
			if k < len(coarse) && coarse[k] == p {
				k++
				if j > 0 && j < len(finest)-1 {
					out[j-1] = uint8(lvl)
				}
			}
		}
	}
	return out
}

// dedupe drops consecutive points that quantize to the same grid cell.
func dedupe(pts []geometry.Point) []geometry.Point {
	out := make([]geometry.Point, 0, len(pts))
	var last geometry.PointU
	for i, p := range pts {
		u := geometry.ToPointU(p)
		if i > 0 && u == last {
			continue
		}
		out = append(out, p)
		last = u
	}
	return out
}
