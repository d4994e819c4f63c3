package geometry

// Deltas between grid points are zigzag mapped per axis and the two
// results interleaved bit by bit (x on even bits, y on odd bits), so that
// small displacements on either axis produce small varints.

// EncodeDelta encodes actual relative to prediction.
func EncodeDelta(actual, prediction PointU) uint64 {
	dx := int64(actual.X) - int64(prediction.X)
	dy := int64(actual.Y) - int64(prediction.Y)
	return interleave(zigzag(dx), zigzag(dy))
}

// DecodeDelta is the inverse of EncodeDelta.
func DecodeDelta(v uint64, prediction PointU) PointU {
	zx, zy := deinterleave(v)
	return PointU{
		X: uint32(int64(prediction.X) + unzigzag(zx)),
		Y: uint32(int64(prediction.Y) + unzigzag(zy)),
	}
}

// PointUToUint64 packs a grid point into a single integer. It is the form
// in which dataset base points are stored.
func PointUToUint64(p PointU) uint64 {
	return interleave(p.X, p.Y)
}

// Uint64ToPointU is the inverse of PointUToUint64.
func Uint64ToPointU(v uint64) PointU {
	x, y := deinterleave(v)
	return PointU{X: x, Y: y}
}

// PredictPolyline extrapolates the next point of a polyline from the last
// two, clamped to the grid.
func PredictPolyline(p1, p2 PointU) PointU {
	return PointU{
		X: clampGrid(2*int64(p1.X) - int64(p2.X)),
		Y: clampGrid(2*int64(p1.Y) - int64(p2.Y)),
	}
}

// PredictStrip predicts the next vertex of a triangle strip by completing
// the parallelogram on the last three vertices, clamped to the grid.
func PredictStrip(p1, p2, p3 PointU) PointU {
	return PointU{
		X: clampGrid(int64(p1.X) + int64(p2.X) - int64(p3.X)),
		Y: clampGrid(int64(p1.Y) + int64(p2.Y) - int64(p3.Y)),
	}
}

func clampGrid(v int64) uint32 {
	const maxCoord = int64(1)<<CoordBits - 1
	switch {
	case v < 0:
		return 0
	case v > maxCoord:
		return uint32(maxCoord)
	}
	return uint32(v)
}

// Grid deltas stay within ±(2^30-1), so the zigzag form fits in 32 bits.
func zigzag(d int64) uint32 {
	return uint32((d << 1) ^ (d >> 63))
}

func unzigzag(z uint32) int64 {
	return int64(z>>1) ^ -int64(z&1)
}

func interleave(x, y uint32) uint64 {
	return spread(x) | spread(y)<<1
}

func deinterleave(v uint64) (uint32, uint32) {
	return compact(v), compact(v >> 1)
}

func spread(v uint32) uint64 {
	x := uint64(v)
	x = (x | x<<16) & 0x0000FFFF0000FFFF
	x = (x | x<<8) & 0x00FF00FF00FF00FF
	x = (x | x<<4) & 0x0F0F0F0F0F0F0F0F
	x = (x | x<<2) & 0x3333333333333333
	x = (x | x<<1) & 0x5555555555555555
	return x
}

func compact(x uint64) uint32 {
	x &= 0x5555555555555555
	x = (x | x>>1) & 0x3333333333333333
	x = (x | x>>2) & 0x0F0F0F0F0F0F0F0F
	x = (x | x>>4) & 0x00FF00FF00FF00FF
	x = (x | x>>8) & 0x0000FFFF0000FFFF
	x = (x | x>>16) & 0x00000000FFFFFFFF
	return uint32(x)
}
