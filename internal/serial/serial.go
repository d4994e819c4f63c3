// Package serial encodes point sequences and triangle strips.
//
// Every point is quantized to the grid and written as a delta varint
// against a predicted position. The first point is predicted by the base
// point, so the same geometry encodes differently under different bases.
//
// Outer encodings carry their own point count and are used where no
// context is available (simple features, per-scale stores). Inner
// encodings rely on a count stored elsewhere, in the feature's packed
// secondary header.
package serial

import (
	"fmt"
	"io"

	"github.com/dyuri/mwmcodec/internal/coding"
	"github.com/dyuri/mwmcodec/internal/geometry"
)

// MaxOuterCount caps the point count accepted from an outer encoding.
// Anything larger is treated as corrupt input.
const MaxOuterCount = 1 << 24

type predictor func(grid []geometry.PointU, i int, base geometry.PointU) geometry.PointU

func predictPath(grid []geometry.PointU, i int, base geometry.PointU) geometry.PointU {
	switch i {
	case 0:
		return base
	case 1:
		return grid[0]
	}
	return geometry.PredictPolyline(grid[i-1], grid[i-2])
}

func predictStrip(grid []geometry.PointU, i int, base geometry.PointU) geometry.PointU {
	switch i {
	case 0:
		return base
	case 1:
		return grid[0]
	case 2:
		return grid[1]
	}
	return geometry.PredictStrip(grid[i-1], grid[i-2], grid[i-3])
}

func savePoints(dst []byte, pts []geometry.Point, base uint64, predict predictor) []byte {
	basePt := geometry.Uint64ToPointU(base)
	grid := make([]geometry.PointU, len(pts))
	for i, p := range pts {
		grid[i] = geometry.ToPointU(p)
		dst = coding.AppendUvarint(dst, geometry.EncodeDelta(grid[i], predict(grid, i, basePt)))
	}
	return dst
}

func loadPoints(src io.ByteReader, count int, base uint64, predict predictor) ([]geometry.Point, error) {
	basePt := geometry.Uint64ToPointU(base)
	grid := make([]geometry.PointU, count)
	pts := make([]geometry.Point, count)
	for i := 0; i < count; i++ {
		v, err := coding.ReadUvarintFrom(src)
		if err != nil {
			return nil, fmt.Errorf("read point %d of %d: %w", i, count, err)
		}
		grid[i] = geometry.DecodeDelta(v, predict(grid, i, basePt))
		pts[i] = geometry.FromPointU(grid[i])
	}
	return pts, nil
}

func readCount(src io.ByteReader) (int, error) {
	n, err := coding.ReadUvarintFrom(src)
	if err != nil {
		return 0, fmt.Errorf("read point count: %w", err)
	}
	if n > MaxOuterCount {
		return 0, fmt.Errorf("point count %d exceeds %d", n, MaxOuterCount)
	}
	return int(n), nil
}

// SaveOuterPath appends a self-contained polyline encoding.
func SaveOuterPath(dst []byte, pts []geometry.Point, base uint64) []byte {
	dst = coding.AppendUvarint(dst, uint64(len(pts)))
	return savePoints(dst, pts, base, predictPath)
}

// LoadOuterPath decodes a polyline written by SaveOuterPath.
func LoadOuterPath(src io.ByteReader, base uint64) ([]geometry.Point, error) {
	count, err := readCount(src)
	if err != nil {
		return nil, err
	}
	return loadPoints(src, count, base, predictPath)
}

// SaveInnerPath appends a polyline without its point count.
func SaveInnerPath(dst []byte, pts []geometry.Point, base uint64) []byte {
	return savePoints(dst, pts, base, predictPath)
}

// LoadInnerPath decodes count points written by SaveInnerPath.
func LoadInnerPath(src io.ByteReader, count int, base uint64) ([]geometry.Point, error) {
	return loadPoints(src, count, base, predictPath)
}

// SaveInnerTriangles appends a triangle strip without its point count.
func SaveInnerTriangles(dst []byte, strip []geometry.Point, base uint64) []byte {
	return savePoints(dst, strip, base, predictStrip)
}

// LoadInnerTriangles decodes the count strip points written by
// SaveInnerTriangles. The strip is returned as is, not expanded.
func LoadInnerTriangles(src io.ByteReader, count int, base uint64) ([]geometry.Point, error) {
	return loadPoints(src, count, base, predictStrip)
}

// SaveOuterTriangles appends a self-contained triangle strip encoding.
func SaveOuterTriangles(dst []byte, strip []geometry.Point, base uint64) []byte {
	dst = coding.AppendUvarint(dst, uint64(len(strip)))
	return savePoints(dst, strip, base, predictStrip)
}

// LoadOuterTriangles decodes a strip written by SaveOuterTriangles and
// expands it into independent triangles.
func LoadOuterTriangles(src io.ByteReader, base uint64) ([]geometry.Point, error) {
	count, err := readCount(src)
	if err != nil {
		return nil, err
	}
	strip, err := loadPoints(src, count, base, predictStrip)
	if err != nil {
		return nil, err
	}
	return ExpandStrip(strip), nil
}

// ExpandStrip turns a strip of n points into n-2 triangles, three points
// each: (i-2, i-1, i) for every i >= 2.
func ExpandStrip(strip []geometry.Point) []geometry.Point {
	if len(strip) < 3 {
		return nil
	}
	out := make([]geometry.Point, 0, 3*(len(strip)-2))
	for i := 2; i < len(strip); i++ {
		out = append(out, strip[i-2], strip[i-1], strip[i])
	}
	return out
}

// WriteVarUintArray appends each value as an unsigned varint. The array
// length is not written; readers learn it from elsewhere.
func WriteVarUintArray(dst []byte, vals []uint32) []byte {
	for _, v := range vals {
		dst = coding.AppendUvarint(dst, uint64(v))
	}
	return dst
}
