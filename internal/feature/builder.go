package feature

import (
	"fmt"
	"slices"

	"github.com/dyuri/mwmcodec/internal/coding"
	"github.com/dyuri/mwmcodec/internal/geometry"
	"github.com/dyuri/mwmcodec/internal/serial"
)

// Builder accumulates the geometry and attributes of one feature and
// serializes it in the simple self-contained form.
type Builder struct {
	types []uint32
	layer int32
	name  string

	center    geometry.Point
	hasPoint  bool
	linear    bool
	area      bool
	geometry  []geometry.Point
	holes     [][]geometry.Point
	limitRect geometry.Rect
}

// NewBuilder returns an empty builder.
func NewBuilder() *Builder {
	return &Builder{}
}

// Reset clears every field.
func (b *Builder) Reset() {
	*b = Builder{}
}

// AddPoint appends a point to the outer ring or polyline.
func (b *Builder) AddPoint(p geometry.Point) {
	b.geometry = append(b.geometry, p)
	b.limitRect.Add(p)
}

// SetCenter sets the anchor point and marks the feature as having one.
func (b *Builder) SetCenter(p geometry.Point) {
	b.center = p
	b.hasPoint = true
	b.limitRect.Add(p)
}

// SetLinear marks the geometry as a polyline.
func (b *Builder) SetLinear() {
	b.linear = true
}

// SetAreaAddHoles marks the geometry as an area and replaces its holes.
// A hole is kept only when its first point lies inside the outer ring;
// others are dropped without error.
func (b *Builder) SetAreaAddHoles(holes [][]geometry.Point) {
	b.area = true
	b.holes = nil

	for _, h := range holes {
		if len(h) == 0 {
			continue
		}
		if geometry.RingContains(b.geometry, h[0]) {
			hole := slices.Clone(h)
			b.holes = append(b.holes, hole)
			b.limitRect.AddPoints(hole)
		}
	}
}

// AddName sets the name. An empty name means none.
func (b *Builder) AddName(name string) {
	b.name = name
}

// AddType appends a type tag.
func (b *Builder) AddType(t uint32) {
	b.types = append(b.types, t)
}

// AddTypes appends several type tags.
func (b *Builder) AddTypes(types []uint32) {
	b.types = append(b.types, types...)
}

// IsTypeExist reports whether t is among the type tags.
func (b *Builder) IsTypeExist(t uint32) bool {
	return slices.Contains(b.types, t)
}

// AssignTypesExcluding replaces the type tags with their sorted set
// difference against exclude. It reports whether any tag remains; callers
// drop the feature when none does.
func (b *Builder) AssignTypesExcluding(exclude []uint32) bool {
	src := slices.Clone(b.types)
	slices.Sort(src)

	b.types = b.types[:0]
	for _, t := range src {
		if !slices.Contains(exclude, t) {
			b.types = append(b.types, t)
		}
	}
	return len(b.types) > 0
}

// AddLayer sets the layer, clamped to [-LayerBound, LayerBound].
func (b *Builder) AddLayer(layer int32) {
	switch {
	case layer < -LayerBound:
		layer = -LayerBound
	case layer > LayerBound:
		layer = LayerBound
	}
	b.layer = layer
}

// Types returns the type tags.
func (b *Builder) Types() []uint32 { return b.types }

// Layer returns the display layer.
func (b *Builder) Layer() int32 { return b.layer }

func (b *Builder) Name() string { return b.name }

// Center returns the anchor point; meaningful only when HasPoint.
func (b *Builder) Center() geometry.Point { return b.center }

func (b *Builder) HasPoint() bool { return b.hasPoint }
func (b *Builder) IsLinear() bool { return b.linear }
func (b *Builder) IsArea() bool   { return b.area }

// Geometry returns the polyline or outer ring.
func (b *Builder) Geometry() []geometry.Point { return b.geometry }

// Holes returns the accepted holes of an area.
func (b *Builder) Holes() [][]geometry.Point { return b.holes }

// LimitRect returns the bounding rectangle of everything added so far.
func (b *Builder) LimitRect() geometry.Rect { return b.limitRect }

// Kind returns the primary geometry kind.
func (b *Builder) Kind() Kind {
	return KindOf(b.Header())
}

// IsGeometryClosed reports whether the outer ring ends where it starts.
func (b *Builder) IsGeometryClosed() bool {
	n := len(b.geometry)
	return n > 2 && b.geometry[0] == b.geometry[n-1]
}

// CheckValid verifies the builder can be serialized.
func (b *Builder) CheckValid() error {
	if len(b.types) == 0 {
		return invariant("no type tags")
	}
	if len(b.types) > MaxTypesCount {
		return invariant("%d type tags, at most %d allowed", len(b.types), MaxTypesCount)
	}
	if b.layer < -LayerBound || b.layer > LayerBound {
		return invariant("layer %d out of range", b.layer)
	}
	if !b.hasPoint && !b.linear && !b.area {
		return invariant("no geometry kind set")
	}
	if b.linear && b.area {
		return invariant("feature is both line and area")
	}
	if b.linear && len(b.geometry) < 2 {
		return invariant("line with %d points", len(b.geometry))
	}
	if b.area && len(b.geometry) < 3 {
		return invariant("area with %d points", len(b.geometry))
	}
	if len(b.geometry) > 0 && !b.linear && !b.area {
		return invariant("%d geometry points on a point feature", len(b.geometry))
	}
	if len(b.holes) > 0 && !b.area {
		return invariant("holes on a non-area feature")
	}
	for i, h := range b.holes {
		if len(h) < 3 {
			return invariant("hole %d with %d points", i, len(h))
		}
	}

	// every coordinate must survive quantization
	if b.hasPoint && !geometry.InPlane(b.center) {
		return invariant("center %v outside the coordinate plane", b.center)
	}
	if i := outsidePlane(b.geometry); i >= 0 {
		return invariant("point %d %v outside the coordinate plane", i, b.geometry[i])
	}
	for j, h := range b.holes {
		if i := outsidePlane(h); i >= 0 {
			return invariant("hole %d point %d %v outside the coordinate plane", j, i, h[i])
		}
	}
	return nil
}

// outsidePlane returns the index of the first point off the plane, or -1.
func outsidePlane(pts []geometry.Point) int {
	for i, p := range pts {
		if !geometry.InPlane(p) {
			return i
		}
	}
	return -1
}

// Header computes the header byte from the current state.
func (b *Builder) Header() byte {
	h := byte(len(b.types)) & HeaderTypeMask

	if b.name != "" {
		h |= HeaderHasName
	}
	if b.layer != 0 {
		h |= HeaderHasLayer
	}
	if b.hasPoint {
		h |= HeaderHasPoint
	}
	if b.linear {
		h |= HeaderIsLine
	}
	if b.area {
		h |= HeaderIsArea
	}
	return h
}

// serializeBase appends the common part of a record: header, types,
// layer, name and anchor point delta-encoded against base.
func (b *Builder) serializeBase(dst []byte, base uint64) []byte {
	dst = append(dst, b.Header())

	for _, t := range b.types {
		dst = coding.AppendUvarint(dst, uint64(t))
	}

	if b.layer != 0 {
		dst = coding.AppendVarint(dst, int64(b.layer))
	}

	if b.name != "" {
		dst = coding.AppendUvarint(dst, uint64(len(b.name)-1))
		dst = append(dst, b.name...)
	}

	if b.hasPoint {
		dst = coding.AppendUvarint(dst, geometry.EncodeDelta(geometry.ToPointU(b.center), geometry.Uint64ToPointU(base)))
	}
	return dst
}

// Serialize encodes the feature with a zero base point and self-contained
// geometry.
func (b *Builder) Serialize() ([]byte, error) {
	if err := b.CheckValid(); err != nil {
		return nil, err
	}

	data := b.serializeBase(nil, 0)

	if b.linear || b.area {
		data = serial.SaveOuterPath(data, b.geometry, 0)
	}

	if b.area {
		data = coding.AppendUvarint(data, uint64(len(b.holes)))
		for _, h := range b.holes {
			data = serial.SaveOuterPath(data, h, 0)
		}
	}

	return data, nil
}

// Deserialize replaces the builder state with the feature encoded in data.
// data is not retained.
func (b *Builder) Deserialize(data []byte) error {
	b.Reset()

	env := NewEnvelope(data, 0)
	if err := env.InitBuilder(b); err != nil {
		return err
	}

	src := coding.NewSource(data)
	if err := src.Skip(env.GeometryOffset()); err != nil {
		return corrupt(stageCommon, err, "geometry offset %d", env.GeometryOffset())
	}

	if b.linear || b.area {
		pts, err := serial.LoadOuterPath(src, 0)
		if err != nil {
			return fmt.Errorf("load outer path: %w", err)
		}
		b.geometry = pts
		b.limitRect.AddPoints(pts)
	}

	if b.area {
		count, err := src.ReadUvarint()
		if err != nil {
			return fmt.Errorf("read hole count: %w", err)
		}
		if count > uint64(src.Len()) {
			return corrupt(stageCommon, nil, "hole count %d exceeds remaining bytes", count)
		}
		for i := uint64(0); i < count; i++ {
			hole, err := serial.LoadOuterPath(src, 0)
			if err != nil {
				return fmt.Errorf("load hole %d: %w", i, err)
			}
			b.holes = append(b.holes, hole)
			b.limitRect.AddPoints(hole)
		}
	}

	return b.CheckValid()
}

// Equal compares two builders. Coordinates and rectangles compare under
// geometry.Epsilon since encoding quantizes them to the grid.
func (b *Builder) Equal(o *Builder) bool {
	if !slices.Equal(b.types, o.types) ||
		b.layer != o.layer ||
		b.name != o.name ||
		b.hasPoint != o.hasPoint ||
		b.linear != o.linear ||
		b.area != o.area {
		return false
	}

	if b.hasPoint && !geometry.PointsEqual(b.center, o.center) {
		return false
	}
	if !b.limitRect.Equal(o.limitRect) {
		return false
	}
	if !geometry.PathsEqual(b.geometry, o.geometry) {
		return false
	}

	if len(b.holes) != len(o.holes) {
		return false
	}
	for i := range b.holes {
		if !geometry.PathsEqual(b.holes[i], o.holes[i]) {
			return false
		}
	}
	return true
}

// FeatureBase returns an envelope over the builder's common attributes
// with every common stage already parsed. It lets visibility checks run
// on features that were never serialized.
func (b *Builder) FeatureBase() (*Envelope, error) {
	if err := b.CheckValid(); err != nil {
		return nil, err
	}

	e := &Envelope{
		data:      []byte{b.Header()},
		stage:     stageCommon,
		types:     slices.Clone(b.types),
		layer:     b.layer,
		name:      b.name,
		center:    b.center,
		limitRect: b.limitRect,
	}
	e.commonOffset = 1
	e.header2Offset = 1
	return e, nil
}
