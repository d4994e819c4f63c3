package feature

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/dyuri/mwmcodec/internal/geometry"
)

func TestEnvelopeParsesCommonAttributes(t *testing.T) {
	b := NewBuilder()
	b.AddTypes([]uint32{1, 500})
	b.AddLayer(-4)
	b.AddName("Main Street")
	b.SetCenter(geometry.Point{12.5, -7.25})

	data, err := b.Serialize()
	require.NoError(t, err)

	env := NewEnvelope(data, 0)
	require.Equal(t, 2, env.TypesCount())
	require.NoError(t, env.ParseAll())

	require.Equal(t, []uint32{1, 500}, env.Types())
	require.Equal(t, int32(-4), env.Layer())
	require.Equal(t, "Main Street", env.Name())
	require.True(t, geometry.PointsEqual(geometry.Point{12.5, -7.25}, env.Center()))
	require.True(t, env.LimitRect().Equal(geometry.NewRect(12.5, -7.25, 12.5, -7.25)))
	require.Equal(t, len(data), env.GeometryOffset())
}

func TestEnvelopeStagesParseOnce(t *testing.T) {
	b := NewBuilder()
	b.AddType(9)
	b.SetCenter(geometry.Point{1, 1})
	data, err := b.Serialize()
	require.NoError(t, err)

	env := NewEnvelope(data, 0)
	require.NoError(t, env.ParseTypes())
	require.NoError(t, env.ParseTypes())

	var ce *CorruptError
	require.True(t, errors.As(env.parseTypes(), &ce), "second parseTypes must fail")

	require.NoError(t, env.ParseAll())
	require.NoError(t, env.ParseAll())
	require.True(t, errors.As(env.parseCommon(), &ce), "second parseCommon must fail")

	// the anchor is added to the rectangle exactly once
	require.True(t, env.LimitRect().Equal(geometry.NewRect(1, 1, 1, 1)))
}

func TestEnvelopeDeserializeResets(t *testing.T) {
	first := NewBuilder()
	first.AddType(1)
	first.AddName("first")
	first.SetCenter(geometry.Point{1, 1})
	d1, err := first.Serialize()
	require.NoError(t, err)

	second := NewBuilder()
	second.AddType(2)
	second.SetCenter(geometry.Point{2, 2})
	d2, err := second.Serialize()
	require.NoError(t, err)

	env := NewEnvelope(d1, 0)
	require.NoError(t, env.ParseAll())
	require.Equal(t, "first", env.Name())

	env.Deserialize(d2, 42, 0)
	require.NoError(t, env.ParseAll())
	require.Equal(t, "", env.Name())
	require.Equal(t, []uint32{2}, env.Types())
	require.Equal(t, uint32(42), env.Offset())
	require.True(t, env.LimitRect().Equal(geometry.NewRect(2, 2, 2, 2)))
}

func TestEnvelopeBaseShiftsAnchor(t *testing.T) {
	base := geometry.PointUToUint64(geometry.ToPointU(geometry.Point{30, 50}))

	b := NewMultiScaleBuilder(func() *Builder {
		b := NewBuilder()
		b.AddType(1)
		b.SetCenter(geometry.Point{30.001, 50.002})
		return b
	}())
	h := &Holder{}
	require.True(t, b.PreSerialize(h))
	data, err := b.Serialize(h, base)
	require.NoError(t, err)
	// header, type, and a short anchor delta
	require.LessOrEqual(t, len(data), 2+4)

	env := NewEnvelope(data, base)
	require.NoError(t, env.ParseAll())
	require.True(t, geometry.PointsEqual(geometry.Point{30.001, 50.002}, env.Center()))
}

func TestEnvelopeCorruptInput(t *testing.T) {
	tests := map[string][]byte{
		"empty":          nil,
		"missing types":  {0x02, 0x01},
		"missing layer":  {0x01 | HeaderHasLayer, 0x01},
		"short name":     {0x01 | HeaderHasName, 0x01, 0x05, 'a'},
		"missing anchor": {0x01 | HeaderHasPoint, 0x01},
	}
	for name, data := range tests {
		t.Run(name, func(t *testing.T) {
			env := NewEnvelope(data, 0)
			var ce *CorruptError
			require.True(t, errors.As(env.ParseAll(), &ce))
		})
	}
}

func TestEnvelopeInitBuilder(t *testing.T) {
	b := NewBuilder()
	b.AddType(3)
	b.AddPoint(geometry.Point{0, 0})
	b.AddPoint(geometry.Point{1, 0})
	b.SetLinear()
	data, err := b.Serialize()
	require.NoError(t, err)

	got := NewBuilder()
	require.NoError(t, NewEnvelope(data, 0).InitBuilder(got))
	require.True(t, got.IsLinear())
	require.False(t, got.IsArea())
	require.Equal(t, []uint32{3}, got.Types())
	require.Empty(t, got.Geometry())
}

func TestEnvelopeString(t *testing.T) {
	b := NewBuilder()
	b.AddType(3)
	b.AddName("N")
	b.SetCenter(geometry.Point{1, 2})
	env, err := b.FeatureBase()
	require.NoError(t, err)
	require.Contains(t, env.String(), "'N'")
	require.Contains(t, env.String(), "Type:3")
	require.Contains(t, env.String(), "Center:")
}
