package mwmcodec

import (
	"errors"
	"math"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/dyuri/mwmcodec/internal/feature"
	"github.com/dyuri/mwmcodec/internal/geometry"
)

func TestEncodeDecodeFeature(t *testing.T) {
	b := feature.NewBuilder()
	b.AddType(7)
	b.AddName("Bridge")
	b.AddPoint(geometry.Point{19.04, 47.49})
	b.AddPoint(geometry.Point{19.05, 47.50})
	b.SetLinear()

	data, err := EncodeFeature(b)
	if err != nil {
		t.Fatalf("EncodeFeature failed: %v", err)
	}

	got, err := DecodeFeature(data)
	if err != nil {
		t.Fatalf("DecodeFeature failed: %v", err)
	}
	if !got.Equal(b) {
		t.Errorf("DecodeFeature = %+v, want %+v", got, b)
	}
}

func TestErrorCodes(t *testing.T) {
	_, err := DecodeFeature([]byte{0x01})
	require.True(t, errors.Is(err, ErrInvalidFormat))

	var ce *feature.CorruptError
	require.True(t, errors.As(err, &ce))

	_, err = EncodeFeature(feature.NewBuilder())
	var ie *feature.InvariantError
	require.True(t, errors.As(err, &ie))
	require.False(t, errors.Is(err, ErrInvalidFormat))

	_, err = OpenDataset(t.TempDir())
	require.True(t, errors.Is(err, ErrInvalidHeader))
}

func TestValidate(t *testing.T) {
	good := feature.NewBuilder()
	good.AddType(1)
	good.SetCenter(geometry.Point{1, 1})

	bad := feature.NewBuilder()
	bad.AddType(1)

	errs := Validate([]*feature.Builder{good, bad, good})
	require.Len(t, errs, 1)
	require.Equal(t, 1, errs[0].Index)
	require.NotEmpty(t, errs[0].Message)
}

const city = `{"type":"FeatureCollection","features":[
 {"type":"Feature","properties":{"type":1,"name":"Station"},
  "geometry":{"type":"Point","coordinates":[19.08,47.50]}},
 {"type":"Feature","properties":{"type":2,"name":"Avenue"},
  "geometry":{"type":"LineString","coordinates":[[19.0,47.5],[19.02,47.51],[19.04,47.5]]}},
 {"type":"Feature","properties":{"type":3,"name":"Square"},
  "geometry":{"type":"Polygon","coordinates":[[[19.1,47.4],[19.2,47.4],[19.2,47.5],[19.1,47.5],[19.1,47.4]]]}}
]}`

func riverArc() *feature.Builder {
	b := feature.NewBuilder()
	b.AddType(4)
	b.AddName("River")
	for i := 0; i < 60; i++ {
		a := math.Pi * float64(i) / 59
		b.AddPoint(geometry.Point{19 + 0.5*math.Cos(a), 47 + 0.5*math.Sin(a)})
	}
	b.SetLinear()
	return b
}

func TestBuildAndOpenDataset(t *testing.T) {
	features, err := ImportGeoJSON(strings.NewReader(city), 0)
	require.NoError(t, err)
	features = append(features, riverArc())

	base := geometry.PointUToUint64(geometry.ToPointU(geometry.Point{19, 47.5}))
	h := &feature.DatasetHeader{Base: base, Scales: DefaultScales}
	dir := filepath.Join(t.TempDir(), "city")

	var progress int
	stats, err := BuildDataset(dir, h, features, BuildOptions{
		OnFeature: func(int, bool) { progress++ },
	})
	require.NoError(t, err)
	require.Equal(t, len(features), progress)
	require.Equal(t, 4, stats.Features)
	require.Equal(t, 1, stats.ExternalPoints)

	ds, err := OpenDataset(dir)
	require.NoError(t, err)
	defer ds.Close()
	require.Equal(t, h, ds.Header)

	got := map[string]int{}
	err = ds.ForEach(func(r *feature.Reader) error {
		pts, err := r.Points(-1)
		if err != nil {
			return err
		}
		tris, err := r.Triangles(-1)
		if err != nil {
			return err
		}
		got[r.Name()] = len(pts) + len(tris)
		return nil
	})
	require.NoError(t, err)
	require.Equal(t, map[string]int{"Station": 0, "Avenue": 3, "Square": 6, "River": 60}, got)
}

func TestBuildMemory(t *testing.T) {
	mem, stats, err := BuildMemory(DefaultHeader(), []*feature.Builder{riverArc()}, BuildOptions{})
	require.NoError(t, err)
	require.Equal(t, 1, stats.Features)
	require.NotEmpty(t, mem.Records())
	require.NotEmpty(t, mem.Bytes(feature.GeometryTag(3)))
}
