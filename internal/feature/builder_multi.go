package feature

import (
	"fmt"
	"math/bits"
	"slices"

	"github.com/dyuri/mwmcodec/internal/coding"
	"github.com/dyuri/mwmcodec/internal/geometry"
	"github.com/dyuri/mwmcodec/internal/serial"
)

// Limits of inline geometry, bounded by the 4-bit count fields.
const (
	MaxInlinePoints = 15
	MaxInlineStrip  = 15 + 2
)

// Holder carries the pre-simplified geometry of a multi-scale feature.
//
// Either the inline fields or the mask/offset fields are used per kind.
// Offsets are listed from the highest present detail level down to the
// lowest, one per set bit of the matching mask.
type Holder struct {
	InnerPts    []geometry.Point
	PtsSimpMask uint32
	PtsMask     uint8
	PtsOffset   []uint32

	InnerTrg  []geometry.Point
	TrgMask   uint8
	TrgOffset []uint32
}

// SetPointLevel records the coarsest detail level at which the interior
// point i (1 <= i < len(InnerPts)-1) is still visible.
func (h *Holder) SetPointLevel(i int, level uint8) {
	shift := 2 * uint(i-1)
	h.PtsSimpMask &^= 0x3 << shift
	h.PtsSimpMask |= uint32(level&0x3) << shift
}

// AddPointsOffset records a polyline store offset for a detail level.
// Levels must be added from the highest to the lowest.
func (h *Holder) AddPointsOffset(level int, offset uint32) {
	h.PtsMask |= 1 << uint(level)
	h.PtsOffset = append(h.PtsOffset, offset)
}

// AddTrianglesOffset records a triangle store offset for a detail level.
// Levels must be added from the highest to the lowest.
func (h *Holder) AddTrianglesOffset(level int, offset uint32) {
	h.TrgMask |= 1 << uint(level)
	h.TrgOffset = append(h.TrgOffset, offset)
}

// MultiScaleBuilder serializes features whose geometry was already reduced
// to one or more detail levels.
type MultiScaleBuilder struct {
	Builder
}

// NewMultiScaleBuilder wraps a populated builder.
func NewMultiScaleBuilder(b *Builder) *MultiScaleBuilder {
	return &MultiScaleBuilder{Builder: *b}
}

// PreSerialize clears the line and area flags when h holds no geometry of
// that kind. It reports whether the feature still has a geometry kind;
// callers skip features for which it does not.
func (b *MultiScaleBuilder) PreSerialize(h *Holder) bool {
	if h.PtsMask == 0 && len(h.InnerPts) == 0 {
		b.linear = false
	}
	if h.TrgMask == 0 && len(h.InnerTrg) == 0 {
		b.area = false
		b.holes = nil
	}
	if !b.linear && !b.area {
		// a downgraded feature keeps only its center
		b.geometry = nil
	}
	return b.hasPoint || b.linear || b.area
}

func (b *MultiScaleBuilder) checkHolder(h *Holder) error {
	if b.linear {
		n := len(h.InnerPts)
		switch {
		case n == 1 || n > MaxInlinePoints:
			return invariant("%d inline points", n)
		case n == 0 && h.PtsMask == 0:
			return invariant("line without points or detail levels")
		case n == 0 && h.PtsMask > 0xF:
			return invariant("points mask %#x wider than 4 bits", h.PtsMask)
		case n == 0 && bits.OnesCount8(h.PtsMask) != len(h.PtsOffset):
			return invariant("points mask %#x with %d offsets", h.PtsMask, len(h.PtsOffset))
		}
	}
	if b.area {
		n := len(h.InnerTrg)
		switch {
		case n > 0 && (n < 3 || n > MaxInlineStrip):
			return invariant("inline strip of %d points", n)
		case n == 0 && h.TrgMask == 0:
			return invariant("area without triangles or detail levels")
		case n == 0 && h.TrgMask > 0xF:
			return invariant("triangles mask %#x wider than 4 bits", h.TrgMask)
		case n == 0 && bits.OnesCount8(h.TrgMask) != len(h.TrgOffset):
			return invariant("triangles mask %#x with %d offsets", h.TrgMask, len(h.TrgOffset))
		}
	}
	return nil
}

// Serialize encodes the feature against base. PreSerialize must have been
// called with the same holder. h is not modified.
func (b *MultiScaleBuilder) Serialize(h *Holder, base uint64) ([]byte, error) {
	if err := b.CheckValid(); err != nil {
		return nil, err
	}
	if err := b.checkHolder(h); err != nil {
		return nil, err
	}

	// Header, types and common attributes
	data := b.serializeBase(nil, base)

	ptsCount := uint8(len(h.InnerPts))
	trgCount := uint8(len(h.InnerTrg))
	if trgCount > 0 {
		trgCount -= 2
	}

	// Packed section: inline counts, or detail level masks
	bw := coding.NewBitWriter(data)
	if b.linear {
		if err := bw.Write(ptsCount, 4); err != nil {
			return nil, fmt.Errorf("write points count: %w", err)
		}
		if ptsCount == 0 {
			if err := bw.Write(h.PtsMask, 4); err != nil {
				return nil, fmt.Errorf("write points mask: %w", err)
			}
		}
	}
	if b.area {
		if err := bw.Write(trgCount, 4); err != nil {
			return nil, fmt.Errorf("write triangles count: %w", err)
		}
		if trgCount == 0 {
			if err := bw.Write(h.TrgMask, 4); err != nil {
				return nil, fmt.Errorf("write triangles mask: %w", err)
			}
		}
	}
	data = bw.Bytes()

	// Polyline: simplification mask and inline points, or store offsets
	if b.linear {
		if ptsCount > 0 {
			if ptsCount > 2 {
				v := h.PtsSimpMask
				for i := 0; i < simpMaskBytes(int(ptsCount)); i++ {
					data = append(data, byte(v))
					v >>= 8
				}
			}
			data = serial.SaveInnerPath(data, h.InnerPts, base)
		} else {
			offsets := slices.Clone(h.PtsOffset)
			slices.Reverse(offsets)
			data = serial.WriteVarUintArray(data, offsets)
		}
	}

	// Area: inline strip, or store offsets
	if b.area {
		if trgCount > 0 {
			data = serial.SaveInnerTriangles(data, h.InnerTrg, base)
		} else {
			offsets := slices.Clone(h.TrgOffset)
			slices.Reverse(offsets)
			data = serial.WriteVarUintArray(data, offsets)
		}
	}

	return data, nil
}

// IsDrawableInRange reports whether drawable accepts the feature at any
// scale in [lowScale, highScale]. Features without geometry never are.
func (b *MultiScaleBuilder) IsDrawableInRange(lowScale, highScale int, drawable func(*Envelope, int) bool) (bool, error) {
	if len(b.geometry) == 0 {
		return false, nil
	}

	env, err := b.FeatureBase()
	if err != nil {
		return false, err
	}
	for s := lowScale; s <= highScale; s++ {
		if drawable(env, s) {
			return true, nil
		}
	}
	return false, nil
}

// simpMaskBytes returns the bytes needed for the 2-bit levels of the
// interior points of an inline polyline of count points.
func simpMaskBytes(count int) int {
	return (count - 2 + 3) / 4
}
