// Package feature implements the binary codec of map features.
//
// A feature record starts with a header byte:
//
//	bit   7         6        5        4          3         2..0
//	+-----------+---------+---------+-----------+----------+------------+
//	| has point | is area | is line | has layer | has name | type count |
//	+-----------+---------+---------+-----------+----------+------------+
//
// followed by the type tags (uvarints), the layer (varint, iff has layer),
// the name (uvarint length-1 and raw bytes, iff has name) and the anchor
// point (delta uvarint against the base point, iff has point). What comes
// after depends on the flavor of record:
//
//   - Builder writes the outer ring and holes inline, self-contained.
//   - MultiScaleBuilder writes a bit-packed secondary header and either
//     inline geometry with per-point simplification levels, or offsets into
//     per-scale geometry and triangle stores.
//
// Envelope decodes the common part lazily; Reader adds the secondary
// header and geometry resolution per requested scale.
package feature

// Header byte layout.
const (
	HeaderTypeMask = 0x07
	HeaderHasName  = 1 << 3
	HeaderHasLayer = 1 << 4
	HeaderIsLine   = 1 << 5
	HeaderIsArea   = 1 << 6
	HeaderHasPoint = 1 << 7
)

// MaxTypesCount is the largest number of type tags one feature can carry.
const MaxTypesCount = HeaderTypeMask

// LayerBound clamps layers to [-LayerBound, LayerBound].
const LayerBound = 10

// Kind is the primary geometry kind of a feature.
type Kind int

const (
	KindPoint Kind = iota
	KindLine
	KindArea
)

func (k Kind) String() string {
	switch k {
	case KindPoint:
		return "point"
	case KindLine:
		return "line"
	case KindArea:
		return "area"
	}
	return "unknown"
}

// KindOf derives the kind from a header byte.
func KindOf(h byte) Kind {
	switch {
	case h&HeaderIsArea != 0:
		return KindArea
	case h&HeaderIsLine != 0:
		return KindLine
	}
	return KindPoint
}
