package feature

import (
	"errors"
	"math"
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/dyuri/mwmcodec/internal/geometry"
)

func square(x0, y0, size float64) []geometry.Point {
	return []geometry.Point{{x0, y0}, {x0 + size, y0}, {x0 + size, y0 + size}, {x0, y0 + size}}
}

func newArea(t *testing.T, holes [][]geometry.Point) *Builder {
	t.Helper()
	b := NewBuilder()
	b.AddType(7)
	for _, p := range square(0, 0, 10) {
		b.AddPoint(p)
	}
	b.SetAreaAddHoles(holes)
	return b
}

func TestAddLayerClamps(t *testing.T) {
	tests := []struct {
		in, want int32
	}{
		{-100, -10}, {-11, -10}, {-10, -10}, {0, 0}, {7, 7}, {10, 10}, {11, 10}, {math.MaxInt32, 10},
	}
	for _, tt := range tests {
		b := NewBuilder()
		b.AddLayer(tt.in)
		if b.Layer() != tt.want {
			t.Errorf("AddLayer(%d) = %d, want %d", tt.in, b.Layer(), tt.want)
		}
	}
}

func TestSetAreaAddHolesFiltersOutside(t *testing.T) {
	inside := square(2, 2, 2)
	outside := square(20, 20, 2)

	for _, order := range [][][]geometry.Point{{inside, outside}, {outside, inside}} {
		b := newArea(t, order)
		require.True(t, b.IsArea())
		require.Len(t, b.Holes(), 1)
		require.Equal(t, inside, b.Holes()[0])
	}
}

func TestSetAreaAddHolesReplaces(t *testing.T) {
	b := newArea(t, [][]geometry.Point{square(2, 2, 2)})
	b.SetAreaAddHoles(nil)
	require.Empty(t, b.Holes())
}

func TestAssignTypesExcluding(t *testing.T) {
	b := NewBuilder()
	b.AddTypes([]uint32{3, 1, 2})
	require.True(t, b.AssignTypesExcluding([]uint32{1, 2}))
	require.Equal(t, []uint32{3}, b.Types())

	b = NewBuilder()
	b.AddTypes([]uint32{1, 2})
	require.False(t, b.AssignTypesExcluding([]uint32{2, 1}))
	require.Empty(t, b.Types())
}

func TestIsTypeExist(t *testing.T) {
	b := NewBuilder()
	b.AddTypes([]uint32{4, 5})
	require.True(t, b.IsTypeExist(5))
	require.False(t, b.IsTypeExist(6))
}

func TestCheckValid(t *testing.T) {
	tests := []struct {
		name  string
		setup func(b *Builder)
		ok    bool
	}{
		{"point", func(b *Builder) { b.AddType(1); b.SetCenter(geometry.Point{1, 1}) }, true},
		{"no types", func(b *Builder) { b.SetCenter(geometry.Point{1, 1}) }, false},
		{"too many types", func(b *Builder) {
			b.AddTypes([]uint32{1, 2, 3, 4, 5, 6, 7, 8})
			b.SetCenter(geometry.Point{1, 1})
		}, false},
		{"no kind", func(b *Builder) { b.AddType(1) }, false},
		{"short line", func(b *Builder) { b.AddType(1); b.AddPoint(geometry.Point{0, 0}); b.SetLinear() }, false},
		{"line", func(b *Builder) {
			b.AddType(1)
			b.AddPoint(geometry.Point{0, 0})
			b.AddPoint(geometry.Point{1, 1})
			b.SetLinear()
		}, true},
		{"short area", func(b *Builder) {
			b.AddType(1)
			b.AddPoint(geometry.Point{0, 0})
			b.AddPoint(geometry.Point{1, 1})
			b.SetAreaAddHoles(nil)
		}, false},
		{"line and area", func(b *Builder) {
			b.AddType(1)
			for _, p := range square(0, 0, 1) {
				b.AddPoint(p)
			}
			b.SetLinear()
			b.SetAreaAddHoles(nil)
		}, false},
		{"point with geometry", func(b *Builder) {
			b.AddType(1)
			b.SetCenter(geometry.Point{1, 1})
			b.AddPoint(geometry.Point{5, 5})
		}, false},
		{"center off plane", func(b *Builder) { b.AddType(1); b.SetCenter(geometry.Point{200, 1}) }, false},
		{"line point off plane", func(b *Builder) {
			b.AddType(1)
			b.AddPoint(geometry.Point{0, 0})
			b.AddPoint(geometry.Point{1, -181})
			b.SetLinear()
		}, false},
		{"NaN coordinate", func(b *Builder) {
			b.AddType(1)
			b.AddPoint(geometry.Point{math.NaN(), 0})
			b.AddPoint(geometry.Point{1, 1})
			b.SetLinear()
		}, false},
		{"plane corner", func(b *Builder) {
			b.AddType(1)
			b.SetCenter(geometry.Point{geometry.MaxX, geometry.MinY})
		}, true},
		{"short hole", func(b *Builder) {
			b.AddType(1)
			for _, p := range square(0, 0, 10) {
				b.AddPoint(p)
			}
			b.SetAreaAddHoles([][]geometry.Point{{{1, 1}, {2, 2}}})
		}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := NewBuilder()
			tt.setup(b)
			err := b.CheckValid()
			if tt.ok {
				require.NoError(t, err)
				return
			}
			var ie *InvariantError
			require.True(t, errors.As(err, &ie), "CheckValid() = %v, want *InvariantError", err)

			_, err = b.Serialize()
			require.Error(t, err)
		})
	}
}

func TestHeaderPointOnly(t *testing.T) {
	b := NewBuilder()
	b.AddType(1)
	b.AddType(2)
	b.SetCenter(geometry.Point{5, 5})

	h := b.Header()
	require.Equal(t, byte(2), h&HeaderTypeMask)
	require.NotZero(t, h&HeaderHasPoint)
	require.Zero(t, h&HeaderHasName)
	require.Zero(t, h&HeaderHasLayer)
	require.Zero(t, h&(HeaderIsLine|HeaderIsArea))
	require.Equal(t, KindPoint, b.Kind())
}

func TestSerializeWireFormat(t *testing.T) {
	b := NewBuilder()
	b.AddType(1)
	b.SetCenter(geometry.Point{geometry.MinX, geometry.MinY})

	data, err := b.Serialize()
	require.NoError(t, err)
	require.Equal(t, []byte{0x81, 0x01, 0x00}, data)

	b = NewBuilder()
	b.AddType(300)
	b.AddLayer(-3)
	b.AddName("ab")
	b.AddPoint(geometry.Point{0, 0})
	b.AddPoint(geometry.Point{1, 1})
	b.SetLinear()

	data, err = b.Serialize()
	require.NoError(t, err)
	// header, type 300, layer -3 zigzagged, name length-1, name, point count
	require.Equal(t, []byte{0x39, 0xAC, 0x02, 0x05, 0x01, 'a', 'b', 0x02}, data[:8])
}

func TestSerializeRoundTrip(t *testing.T) {
	point := NewBuilder()
	point.AddTypes([]uint32{10, 20})
	point.AddName("Cafe")
	point.SetCenter(geometry.Point{37.6173, 55.7558})

	line := NewBuilder()
	line.AddType(5)
	line.AddLayer(-2)
	for _, p := range []geometry.Point{{10, 10}, {10.5, 10.2}, {11, 9.8}} {
		line.AddPoint(p)
	}
	line.SetLinear()

	area := newArea(t, [][]geometry.Point{square(1, 1, 2), square(5, 5, 3)})
	area.AddName("Park")
	area.SetCenter(geometry.Point{5, 5})

	for name, b := range map[string]*Builder{"point": point, "line": line, "area": area} {
		t.Run(name, func(t *testing.T) {
			data, err := b.Serialize()
			require.NoError(t, err)

			got := NewBuilder()
			require.NoError(t, got.Deserialize(data))
			require.True(t, got.Equal(b), "round trip mismatch:\nwant %+v\ngot  %+v", b, got)
		})
	}
}

func TestDeserializeTruncated(t *testing.T) {
	b := newArea(t, [][]geometry.Point{square(1, 1, 2)})
	data, err := b.Serialize()
	require.NoError(t, err)

	for n := 0; n < len(data); n++ {
		got := NewBuilder()
		if err := got.Deserialize(data[:n]); err == nil {
			t.Fatalf("Deserialize of %d/%d bytes succeeded", n, len(data))
		}
	}
}

func randomPoint(rng *rand.Rand, cx, cy, r float64) geometry.Point {
	return geometry.Point{cx + (rng.Float64()*2-1)*r, cy + (rng.Float64()*2-1)*r}
}

func circle(cx, cy, r float64, n int) []geometry.Point {
	pts := make([]geometry.Point, n)
	for i := range pts {
		a := 2 * math.Pi * float64(i) / float64(n)
		pts[i] = geometry.Point{cx + r*math.Cos(a), cy + r*math.Sin(a)}
	}
	return pts
}

func randomBuilder(rng *rand.Rand) *Builder {
	b := NewBuilder()
	for i := 0; i < 1+rng.IntN(MaxTypesCount); i++ {
		b.AddType(rng.Uint32())
	}
	b.AddLayer(int32(rng.IntN(31) - 15))
	if rng.IntN(2) == 0 {
		name := make([]byte, 1+rng.IntN(40))
		for i := range name {
			name[i] = byte('a' + rng.IntN(26))
		}
		b.AddName(string(name))
	}

	cx := (rng.Float64()*2 - 1) * 170
	cy := (rng.Float64()*2 - 1) * 170
	r := rng.Float64() * 5

	switch rng.IntN(3) {
	case 0:
		b.SetCenter(randomPoint(rng, cx, cy, r))
	case 1:
		for i := 0; i < 2+rng.IntN(50); i++ {
			b.AddPoint(randomPoint(rng, cx, cy, r))
		}
		b.SetLinear()
		if rng.IntN(2) == 0 {
			b.SetCenter(randomPoint(rng, cx, cy, r))
		}
	case 2:
		for _, p := range circle(cx, cy, r+1, 3+rng.IntN(40)) {
			b.AddPoint(p)
		}
		var holes [][]geometry.Point
		for i := 0; i < rng.IntN(4); i++ {
			holes = append(holes, circle(cx, cy, rng.Float64()*r/2, 3+rng.IntN(10)))
		}
		b.SetAreaAddHoles(holes)
	}
	return b
}

func TestRoundTripProperty(t *testing.T) {
	rng := rand.New(rand.NewPCG(42, 7))
	for i := 0; i < 500; i++ {
		b := randomBuilder(rng)
		data, err := b.Serialize()
		require.NoError(t, err, "feature %d", i)

		got := NewBuilder()
		require.NoError(t, got.Deserialize(data), "feature %d", i)
		if !got.Equal(b) {
			t.Fatalf("feature %d: round trip mismatch\nwant %+v\ngot  %+v", i, b, got)
		}
	}
}

var offPlane = []geometry.Point{
	{200, 1},
	{1, -181},
	{math.NaN(), 0},
	{0, math.Inf(-1)},
}

// spoil turns a valid builder into one that cannot round trip.
func spoil(rng *rand.Rand, b *Builder) {
	if !b.IsLinear() && !b.IsArea() {
		if rng.IntN(2) == 0 {
			b.AddPoint(b.Center())
			return
		}
		b.SetCenter(offPlane[rng.IntN(len(offPlane))])
		return
	}
	bad := offPlane[rng.IntN(len(offPlane))]
	if rng.IntN(2) == 0 {
		b.SetCenter(bad)
	} else {
		b.AddPoint(bad)
	}
}

func TestCheckValidRejectsUnencodable(t *testing.T) {
	rng := rand.New(rand.NewPCG(9, 3))
	for i := 0; i < 200; i++ {
		b := randomBuilder(rng)
		require.NoError(t, b.CheckValid(), "feature %d", i)

		spoil(rng, b)
		err := b.CheckValid()
		var ie *InvariantError
		require.True(t, errors.As(err, &ie), "feature %d: CheckValid() = %v, want *InvariantError", i, err)

		_, err = b.Serialize()
		require.Error(t, err, "feature %d", i)
	}
}

func TestIsGeometryClosed(t *testing.T) {
	b := NewBuilder()
	for _, p := range square(0, 0, 1) {
		b.AddPoint(p)
	}
	require.False(t, b.IsGeometryClosed())
	b.AddPoint(geometry.Point{0, 0})
	require.True(t, b.IsGeometryClosed())
}

func TestLimitRectCoversEverything(t *testing.T) {
	b := newArea(t, nil)
	b.SetCenter(geometry.Point{-5, 20})
	require.True(t, b.LimitRect().Equal(geometry.NewRect(-5, 0, 10, 20)))
}

func TestFeatureBase(t *testing.T) {
	b := NewBuilder()
	b.AddTypes([]uint32{3, 4})
	b.AddName("x")
	b.AddLayer(2)
	b.SetCenter(geometry.Point{1, 2})

	env, err := b.FeatureBase()
	require.NoError(t, err)
	require.NoError(t, env.ParseAll())
	require.Equal(t, b.Header(), env.Header())
	require.Equal(t, []uint32{3, 4}, env.Types())
	require.Equal(t, "x", env.Name())
	require.Equal(t, int32(2), env.Layer())
	require.Equal(t, geometry.Point{1, 2}, env.Center())
}
