package feature

import (
	"fmt"
	"io"
	"strconv"

	"github.com/dyuri/mwmcodec/internal/geometry"
)

// MaxScalesCount is the number of detail levels a multi-scale record can
// address. Presence masks are 4 bits wide.
const MaxScalesCount = 4

// NoScale is returned when a requested scale resolves to no detail level.
const NoScale = -1

// InvalidOffset marks an absent per-scale store slot.
const InvalidOffset = ^uint32(0)

// Resource tag prefixes of the per-scale stores.
const (
	GeometryFileTag  = "geom"
	TrianglesFileTag = "trg"
)

// GeometryTag returns the identifier of the polyline store of a detail level.
func GeometryTag(index int) string {
	return GeometryFileTag + strconv.Itoa(index)
}

// TrianglesTag returns the identifier of the triangle store of a detail level.
func TrianglesTag(index int) string {
	return TrianglesFileTag + strconv.Itoa(index)
}

// ReaderProvider resolves a resource identifier to a random-access reader
// over that store. Implementations own the handles and their lifetime.
type ReaderProvider interface {
	Reader(tag string) (io.ReaderAt, error)
}

// ScaleTable holds ascending zoom thresholds, one per detail level. Index
// 0 is the coarsest level.
type ScaleTable []int

// Index maps a scale to the first level whose threshold is >= scale.
// Scale -1 selects the last level. NoScale is returned when the scale is
// above every threshold.
func (t ScaleTable) Index(scale int) int {
	if scale == -1 {
		return len(t) - 1
	}
	for i, s := range t {
		if scale <= s {
			return i
		}
	}
	return NoScale
}

// Resolve picks the detail level to load for scale given per-level store
// offsets.
//
// Scale -1 selects the most detailed level present; it fails with
// ErrNoDetailLevel when every slot is absent. Any other scale stops at the
// first threshold >= scale: if that slot is absent the result is NoScale
// even when coarser slots exist, since a feature is not visible below its
// minimum authored detail.
func (t ScaleTable) Resolve(scale int, offsets []uint32) (int, error) {
	if scale == -1 {
		for i := len(offsets) - 1; i >= 0; i-- {
			if offsets[i] != InvalidOffset {
				return i, nil
			}
		}
		return NoScale, ErrNoDetailLevel
	}

	for i, s := range t {
		if scale <= s {
			if i < len(offsets) && offsets[i] != InvalidOffset {
				return i, nil
			}
			break
		}
	}
	return NoScale, nil
}

// Validate checks the table is usable by multi-scale records.
func (t ScaleTable) Validate() error {
	if len(t) == 0 || len(t) > MaxScalesCount {
		return fmt.Errorf("scale table must have 1..%d entries, got %d", MaxScalesCount, len(t))
	}
	for i := 1; i < len(t); i++ {
		if t[i] <= t[i-1] {
			return fmt.Errorf("scale table not ascending at %d: %d <= %d", i, t[i], t[i-1])
		}
	}
	return nil
}

// DatasetHeader is the descriptor shared by every record of a dataset.
type DatasetHeader struct {
	Base   uint64
	Scales ScaleTable
}

// Validate checks the base point lies on the grid and the scale table is
// well formed.
func (h *DatasetHeader) Validate() error {
	p := geometry.Uint64ToPointU(h.Base)
	const maxCoord = 1<<geometry.CoordBits - 1
	if p.X > maxCoord || p.Y > maxCoord {
		return fmt.Errorf("base point %d is off the coordinate grid", h.Base)
	}
	return h.Scales.Validate()
}

// ScalesCount returns the number of detail levels.
func (h *DatasetHeader) ScalesCount() int {
	return len(h.Scales)
}

// BasePoint returns the base as a plane point.
func (h *DatasetHeader) BasePoint() geometry.Point {
	return geometry.FromPointU(geometry.Uint64ToPointU(h.Base))
}
