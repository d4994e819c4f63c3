package feature

import (
	"fmt"
	"strings"

	"github.com/dyuri/mwmcodec/internal/coding"
	"github.com/dyuri/mwmcodec/internal/geometry"
)

// stage is the parse progress of a record. Stages are strictly ordered and
// each one is parsed at most once per Deserialize.
type stage uint8

const (
	stageRaw stage = iota
	stageTypes
	stageCommon
	stageHeader2
	stagePoints
	stageTriangles
)

func (s stage) String() string {
	switch s {
	case stageRaw:
		return "raw"
	case stageTypes:
		return "types"
	case stageCommon:
		return "common"
	case stageHeader2:
		return "header2"
	case stagePoints:
		return "points"
	case stageTriangles:
		return "triangles"
	}
	return fmt.Sprintf("stage(%d)", uint8(s))
}

// Envelope lazily decodes the part of a record shared by every flavor:
// type tags, layer, name and anchor point.
//
// An Envelope is not safe for concurrent use until ParseAll has returned.
type Envelope struct {
	data   []byte
	offset uint32
	base   uint64

	stage stage

	types     []uint32
	layer     int32
	name      string
	center    geometry.Point
	limitRect geometry.Rect

	commonOffset  int
	header2Offset int
}

// NewEnvelope wraps data, decoding the anchor point against base.
func NewEnvelope(data []byte, base uint64) *Envelope {
	e := &Envelope{}
	e.Deserialize(data, 0, base)
	return e
}

// Deserialize takes ownership of data and resets every cached stage.
// offset is the record position within its file, kept for reference.
func (e *Envelope) Deserialize(data []byte, offset uint32, base uint64) {
	*e = Envelope{
		data:   data,
		offset: offset,
		base:   base,
	}
}

// Data returns the raw record.
func (e *Envelope) Data() []byte {
	return e.data
}

// Offset returns the record position given to Deserialize.
func (e *Envelope) Offset() uint32 {
	return e.offset
}

// Header returns the header byte, or 0 for an empty record.
func (e *Envelope) Header() byte {
	if len(e.data) == 0 {
		return 0
	}
	return e.data[0]
}

// TypesCount returns the number of type tags announced by the header.
func (e *Envelope) TypesCount() int {
	return int(e.Header() & HeaderTypeMask)
}

// Kind returns the primary geometry kind announced by the header.
func (e *Envelope) Kind() Kind {
	return KindOf(e.Header())
}

func (e *Envelope) parseTypes() error {
	if e.stage >= stageTypes {
		return corrupt(stageTypes, nil, "already parsed")
	}
	if len(e.data) == 0 {
		return corrupt(stageTypes, coding.ErrTruncated, "empty record")
	}

	src := coding.NewSource(e.data)
	if err := src.Skip(1); err != nil {
		return corrupt(stageTypes, err, "header")
	}

	count := e.TypesCount()
	e.types = make([]uint32, count)
	for i := 0; i < count; i++ {
		t, err := src.ReadUvarint32()
		if err != nil {
			return corrupt(stageTypes, err, "type %d of %d", i, count)
		}
		e.types[i] = t
	}

	e.commonOffset = src.Pos()
	e.stage = stageTypes
	return nil
}

func (e *Envelope) parseCommon() error {
	if e.stage >= stageCommon {
		return corrupt(stageCommon, nil, "already parsed")
	}
	if e.stage < stageTypes {
		if err := e.parseTypes(); err != nil {
			return err
		}
	}

	src := coding.NewSource(e.data)
	if err := src.Skip(e.commonOffset); err != nil {
		return corrupt(stageCommon, err, "common offset %d", e.commonOffset)
	}

	h := e.Header()

	if h&HeaderHasLayer != 0 {
		layer, err := src.ReadVarint()
		if err != nil {
			return corrupt(stageCommon, err, "layer")
		}
		e.layer = int32(layer)
	}

	if h&HeaderHasName != 0 {
		n, err := src.ReadUvarint()
		if err != nil {
			return corrupt(stageCommon, err, "name length")
		}
		if n >= uint64(src.Len()) {
			return corrupt(stageCommon, coding.ErrTruncated, "name of %d bytes", n+1)
		}
		name, err := src.ReadBytes(int(n) + 1)
		if err != nil {
			return corrupt(stageCommon, err, "name")
		}
		e.name = string(name)
	}

	if h&HeaderHasPoint != 0 {
		v, err := src.ReadUvarint()
		if err != nil {
			return corrupt(stageCommon, err, "anchor point")
		}
		e.center = geometry.FromPointU(geometry.DecodeDelta(v, geometry.Uint64ToPointU(e.base)))
		e.limitRect.Add(e.center)
	}

	e.header2Offset = src.Pos()
	e.stage = stageCommon
	return nil
}

// ParseTypes parses the type tags if not done yet.
func (e *Envelope) ParseTypes() error {
	if e.stage >= stageTypes {
		return nil
	}
	return e.parseTypes()
}

// ParseAll parses every common attribute if not done yet.
func (e *Envelope) ParseAll() error {
	if e.stage >= stageCommon {
		return nil
	}
	return e.parseCommon()
}

// Types returns the type tags. Valid after ParseTypes.
func (e *Envelope) Types() []uint32 {
	return e.types
}

// Layer returns the display layer. Valid after ParseAll.
func (e *Envelope) Layer() int32 {
	return e.layer
}

// Name returns the name. Valid after ParseAll.
func (e *Envelope) Name() string {
	return e.name
}

// Center returns the anchor point. Valid after ParseAll.
func (e *Envelope) Center() geometry.Point {
	return e.center
}

// HasPoint reports whether the record carries an anchor point.
func (e *Envelope) HasPoint() bool {
	return e.Header()&HeaderHasPoint != 0
}

// LimitRect returns the bounding rectangle of what has been decoded so far.
func (e *Envelope) LimitRect() geometry.Rect {
	return e.limitRect
}

// GeometryOffset returns the byte offset at which geometry data begins.
// Valid after ParseAll.
func (e *Envelope) GeometryOffset() int {
	return e.header2Offset
}

// InitBuilder parses the envelope and copies its attributes into b. For
// areas no holes are copied; the caller loads geometry separately.
func (e *Envelope) InitBuilder(b *Builder) error {
	if err := e.ParseAll(); err != nil {
		return err
	}

	b.AddTypes(e.types)
	b.AddLayer(e.layer)
	b.AddName(e.name)

	h := e.Header()

	if h&HeaderHasPoint != 0 {
		b.SetCenter(e.center)
	}
	if h&HeaderIsLine != 0 {
		b.SetLinear()
	}
	if h&HeaderIsArea != 0 {
		b.SetAreaAddHoles(nil)
	}
	return nil
}

func (e *Envelope) String() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "FEATURE: '%s' ", e.name)
	for _, t := range e.types {
		fmt.Fprintf(&sb, "Type:%d ", t)
	}
	fmt.Fprintf(&sb, "Layer:%d ", e.layer)
	if e.HasPoint() {
		fmt.Fprintf(&sb, "Center:(%g, %g) ", e.center[0], e.center[1])
	}
	return sb.String()
}
