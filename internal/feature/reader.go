package feature

import (
	"bufio"
	"fmt"
	"io"
	"math"
	"strings"

	"github.com/dyuri/mwmcodec/internal/coding"
	"github.com/dyuri/mwmcodec/internal/geometry"
	"github.com/dyuri/mwmcodec/internal/serial"
)

// InnerStats accounts for the bytes of inline geometry in a record.
type InnerStats struct {
	Points uint32 // inline polyline bytes
	Strips uint32 // inline triangle strip bytes
	Size   uint32 // bytes consumed up to the end of the secondary section
}

// GeomStat pairs the encoded size of resolved geometry with its point count.
type GeomStat struct {
	Bytes uint32
	Count int
}

// Reader decodes multi-scale records: the common envelope, the packed
// secondary header, and polyline and triangle geometry resolved for a
// requested scale.
//
// Points and triangles are separate stages, each resolved once at the
// scale of the first request that reaches it; later requests return the
// cached stage whatever scale they pass. Triangles passes through the points
// stage, so Points(3) then Triangles(17) resolves points at 3 and triangles
// at 17, while Triangles(17) alone fixes both at 17. Use Deserialize to start
// over. A Reader is not safe for concurrent use until
// Parse has returned.
type Reader struct {
	Envelope

	header   *DatasetHeader
	provider ReaderProvider

	ptsSimpMask uint32
	ptsOffsets  []uint32
	trgOffsets  []uint32

	points    []geometry.Point
	triangles []geometry.Point

	pointsSize    uint32
	trianglesSize uint32
	inner         InnerStats
}

// NewReader wraps a multi-scale record. External stores are fetched
// through provider, which may be nil when every geometry is inline.
func NewReader(data []byte, offset uint32, header *DatasetHeader, provider ReaderProvider) *Reader {
	r := &Reader{}
	r.Deserialize(data, offset, header, provider)
	return r
}

// Deserialize takes ownership of data and resets every cached stage.
func (r *Reader) Deserialize(data []byte, offset uint32, header *DatasetHeader, provider ReaderProvider) {
	if header == nil {
		header = &DatasetHeader{}
	}
	*r = Reader{
		header:   header,
		provider: provider,
	}
	r.Envelope.Deserialize(data, offset, header.Base)
}

func (r *Reader) ensure(target stage, scale int) error {
	for r.stage < target {
		var err error
		switch r.stage + 1 {
		case stageTypes:
			err = r.parseTypes()
		case stageCommon:
			err = r.parseCommon()
		case stageHeader2:
			err = r.parseHeader2()
		case stagePoints:
			err = r.parsePoints(scale)
		case stageTriangles:
			err = r.parseTriangles(scale)
		}
		if err != nil {
			return err
		}
	}
	return nil
}

func (r *Reader) newOffsets() []uint32 {
	offsets := make([]uint32, r.header.ScalesCount())
	for i := range offsets {
		offsets[i] = InvalidOffset
	}
	return offsets
}

func (r *Reader) readOffsets(src *coding.Source, mask uint8, offsets []uint32) error {
	if mask == 0 {
		return corrupt(stageHeader2, nil, "empty detail level mask")
	}
	for i := 0; mask > 0; i, mask = i+1, mask>>1 {
		if i >= len(offsets) {
			return corrupt(stageHeader2, nil, "detail level %d beyond %d scales", i, len(offsets))
		}
		if mask&1 == 0 {
			continue
		}
		v, err := src.ReadUvarint32()
		if err != nil {
			return corrupt(stageHeader2, err, "offset of level %d", i)
		}
		offsets[i] = v
	}
	return nil
}

func (r *Reader) parseHeader2() error {
	if r.stage != stageCommon {
		return corrupt(stageHeader2, nil, "requested at stage %s", r.stage)
	}

	// Packed section: inline counts, or detail level masks
	h := r.Header()
	br := coding.NewBitReader(r.data, r.header2Offset)

	var ptsCount, ptsMask, trgCount, trgMask uint8
	var err error

	if h&HeaderIsLine != 0 {
		if ptsCount, err = br.Read(4); err != nil {
			return corrupt(stageHeader2, err, "points count")
		}
		if ptsCount == 0 {
			if ptsMask, err = br.Read(4); err != nil {
				return corrupt(stageHeader2, err, "points mask")
			}
		} else if ptsCount < 2 {
			return corrupt(stageHeader2, nil, "line with %d inline points", ptsCount)
		}
	}

	if h&HeaderIsArea != 0 {
		if trgCount, err = br.Read(4); err != nil {
			return corrupt(stageHeader2, err, "triangles count")
		}
		if trgCount == 0 {
			if trgMask, err = br.Read(4); err != nil {
				return corrupt(stageHeader2, err, "triangles mask")
			}
		}
	}

	// Byte-aligned data follows the packed section
	src := coding.NewSource(r.data)
	if err := src.Skip(br.Align()); err != nil {
		return corrupt(stageHeader2, err, "packed section")
	}

	ptsOffsets := r.newOffsets()
	trgOffsets := r.newOffsets()
	var (
		simpMask  uint32
		points    []geometry.Point
		triangles []geometry.Point
		inner     InnerStats
	)

	// Polyline: simplification mask and inline points, or store offsets
	if h&HeaderIsLine != 0 {
		if ptsCount > 0 {
			if ptsCount > 2 {
				for i := 0; i < simpMaskBytes(int(ptsCount)); i++ {
					b, err := src.ReadByte()
					if err != nil {
						return corrupt(stageHeader2, coding.ErrTruncated, "simplification mask")
					}
					simpMask |= uint32(b) << (8 * i)
				}
			}

			start := src.Pos()
			if points, err = serial.LoadInnerPath(src, int(ptsCount), r.base); err != nil {
				return corrupt(stageHeader2, err, "inline points")
			}
			inner.Points = uint32(src.Pos() - start)
		} else if err := r.readOffsets(src, ptsMask, ptsOffsets); err != nil {
			return err
		}
	}

	// Area: inline strip expanded to triangles, or store offsets
	if h&HeaderIsArea != 0 {
		if trgCount > 0 {
			start := src.Pos()
			strip, err := serial.LoadInnerTriangles(src, int(trgCount)+2, r.base)
			if err != nil {
				return corrupt(stageHeader2, err, "inline triangles")
			}
			inner.Strips = uint32(src.Pos() - start)
			triangles = serial.ExpandStrip(strip)
		} else if err := r.readOffsets(src, trgMask, trgOffsets); err != nil {
			return err
		}
	}

	inner.Size = uint32(src.Pos())

	r.ptsSimpMask = simpMask
	r.ptsOffsets = ptsOffsets
	r.trgOffsets = trgOffsets
	r.points = points
	r.triangles = triangles
	r.inner = inner
	r.stage = stageHeader2
	return nil
}

type loadFunc func(src io.ByteReader, base uint64) ([]geometry.Point, error)

// loadExternal decodes geometry at offset of the store named tag and
// returns it with the number of bytes consumed.
func (r *Reader) loadExternal(tag string, offset uint32, load loadFunc) ([]geometry.Point, uint32, error) {
	if r.provider == nil {
		return nil, 0, fmt.Errorf("load %s: no store provider", tag)
	}
	ra, err := r.provider.Reader(tag)
	if err != nil {
		return nil, 0, fmt.Errorf("open %s: %w", tag, err)
	}

	sec := io.NewSectionReader(ra, int64(offset), math.MaxInt64-int64(offset))
	cr := &coding.CountingReader{R: bufio.NewReader(sec)}

	pts, err := load(cr, r.base)
	if err != nil {
		return nil, 0, fmt.Errorf("load %s at %d: %w", tag, offset, err)
	}
	return pts, uint32(cr.N), nil
}

func (r *Reader) parsePoints(scale int) error {
	if r.stage != stageHeader2 {
		return corrupt(stagePoints, nil, "requested at stage %s", r.stage)
	}

	if r.Header()&HeaderIsLine != 0 {
		if len(r.points) == 0 {
			ind, err := r.header.Scales.Resolve(scale, r.ptsOffsets)
			if err != nil {
				return fmt.Errorf("resolve points at scale %d: %w", scale, err)
			}
			if ind != NoScale {
				pts, n, err := r.loadExternal(GeometryTag(ind), r.ptsOffsets[ind], serial.LoadOuterPath)
				if err != nil {
					return err
				}
				r.points = pts
				r.pointsSize = n
			}
		} else {
			r.points = r.filterPoints(r.header.Scales.Index(scale))
		}

		r.limitRect.AddPoints(r.points)
	}

	r.stage = stagePoints
	return nil
}

// filterPoints keeps the endpoints and every interior point whose
// simplification level is <= level. NoScale keeps every point.
func (r *Reader) filterPoints(level int) []geometry.Point {
	n := len(r.points)
	if level == NoScale || n <= 2 {
		return r.points
	}

	out := make([]geometry.Point, 0, n)
	out = append(out, r.points[0])
	for i := 1; i < n-1; i++ {
		if int((r.ptsSimpMask>>(2*(i-1)))&0x3) <= level {
			out = append(out, r.points[i])
		}
	}
	return append(out, r.points[n-1])
}

func (r *Reader) parseTriangles(scale int) error {
	if r.stage != stagePoints {
		return corrupt(stageTriangles, nil, "requested at stage %s", r.stage)
	}

	if r.Header()&HeaderIsArea != 0 {
		if len(r.triangles) == 0 {
			ind, err := r.header.Scales.Resolve(scale, r.trgOffsets)
			if err != nil {
				return fmt.Errorf("resolve triangles at scale %d: %w", scale, err)
			}
			if ind != NoScale {
				tris, n, err := r.loadExternal(TrianglesTag(ind), r.trgOffsets[ind], serial.LoadOuterTriangles)
				if err != nil {
					return err
				}
				r.triangles = tris
				r.trianglesSize = n
			}
		}

		r.limitRect.AddPoints(r.triangles)
	}

	r.stage = stageTriangles
	return nil
}

// Parse resolves every stage, including geometry for scale. Scale -1
// requests the most detailed geometry available.
func (r *Reader) Parse(scale int) error {
	return r.ensure(stageTriangles, scale)
}

// ResolveScaleIndex picks the detail level for scale among offsets using
// the dataset's scale table. See ScaleTable.Resolve.
func (r *Reader) ResolveScaleIndex(scale int, offsets []uint32) (int, error) {
	return r.header.Scales.Resolve(scale, offsets)
}

// PointsOffsets returns the polyline store offsets per detail level.
func (r *Reader) PointsOffsets() ([]uint32, error) {
	if err := r.ensure(stageHeader2, -1); err != nil {
		return nil, err
	}
	return r.ptsOffsets, nil
}

// TrianglesOffsets returns the triangle store offsets per detail level.
func (r *Reader) TrianglesOffsets() ([]uint32, error) {
	if err := r.ensure(stageHeader2, -1); err != nil {
		return nil, err
	}
	return r.trgOffsets, nil
}

// PointsSimplificationMask returns the packed 2-bit levels of the inline
// interior points.
func (r *Reader) PointsSimplificationMask() (uint32, error) {
	if err := r.ensure(stageHeader2, -1); err != nil {
		return 0, err
	}
	return r.ptsSimpMask, nil
}

// InnerStats returns the byte accounting of inline geometry.
func (r *Reader) InnerStats() (InnerStats, error) {
	if err := r.ensure(stageHeader2, -1); err != nil {
		return InnerStats{}, err
	}
	return r.inner, nil
}

// Points returns the polyline resolved for scale.
func (r *Reader) Points(scale int) ([]geometry.Point, error) {
	if err := r.ensure(stagePoints, scale); err != nil {
		return nil, err
	}
	return r.points, nil
}

// Triangles returns the triangles resolved for scale, three points each.
func (r *Reader) Triangles(scale int) ([]geometry.Point, error) {
	if err := r.ensure(stageTriangles, scale); err != nil {
		return nil, err
	}
	return r.triangles, nil
}

// GeometrySize returns the encoded size and point count of the polyline
// resolved for scale. Inline polylines report their inline byte count.
func (r *Reader) GeometrySize(scale int) (GeomStat, error) {
	if err := r.ensure(stagePoints, scale); err != nil {
		return GeomStat{}, err
	}
	sz := r.pointsSize
	if sz == 0 && len(r.points) > 0 {
		sz = r.inner.Points
	}
	return GeomStat{Bytes: sz, Count: len(r.points)}, nil
}

// TrianglesSize returns the encoded size and point count of the triangles
// resolved for scale. Inline strips report their inline byte count.
func (r *Reader) TrianglesSize(scale int) (GeomStat, error) {
	if err := r.ensure(stageTriangles, scale); err != nil {
		return GeomStat{}, err
	}
	sz := r.trianglesSize
	if sz == 0 && len(r.triangles) > 0 {
		sz = r.inner.Strips
	}
	return GeomStat{Bytes: sz, Count: len(r.triangles)}, nil
}

// LimitRect returns the bounding rectangle of everything decoded for
// scale. A feature with nothing to show at scale gets the degenerate
// rectangle at the origin, which visibility checks treat as invisible.
func (r *Reader) LimitRect(scale int) (geometry.Rect, error) {
	if err := r.Parse(scale); err != nil {
		return geometry.Rect{}, err
	}
	if len(r.triangles) == 0 && len(r.points) == 0 && !r.HasPoint() {
		r.limitRect = geometry.NewRect(0, 0, 0, 0)
	}
	return r.limitRect, nil
}

// IsEmptyGeometry reports whether the geometry required by the feature's
// kind is empty at scale. Point features are never empty.
func (r *Reader) IsEmptyGeometry(scale int) (bool, error) {
	if err := r.Parse(scale); err != nil {
		return false, err
	}
	switch r.Kind() {
	case KindArea:
		return len(r.triangles) == 0, nil
	case KindLine:
		return len(r.points) == 0, nil
	}
	return false, nil
}

// DebugString renders the feature with its geometry at scale.
func (r *Reader) DebugString(scale int) string {
	if err := r.Parse(scale); err != nil {
		return fmt.Sprintf("FEATURE: <%v>", err)
	}

	var sb strings.Builder
	sb.WriteString(r.Envelope.String())
	sb.WriteString("Points:")
	writePoints(&sb, r.points)
	sb.WriteString("Triangles:")
	writePoints(&sb, r.triangles)
	return sb.String()
}

func writePoints(sb *strings.Builder, pts []geometry.Point) {
	for _, p := range pts {
		fmt.Fprintf(sb, "(%g, %g) ", p[0], p[1])
	}
}
