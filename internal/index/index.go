// Package index keeps a spatial index of the features visible at one
// scale of a multi-scale dataset.
//
// Example:
//
//	ds, _ := store.OpenDir("city", nil)
//	idx, _ := index.Build(ds, 14, nil)
//	for _, e := range idx.Query(geometry.NewRect(19.0, 47.4, 19.1, 47.6)) {
//	    fmt.Println(e.Offset, e.Name)
//	}
package index

import (
	"cmp"
	"fmt"
	"math"
	"slices"

	"github.com/dhconnelly/rtreego"
	"github.com/sirupsen/logrus"

	"github.com/dyuri/mwmcodec/internal/feature"
	"github.com/dyuri/mwmcodec/internal/geometry"
)

// Entry describes an indexed feature.
type Entry struct {
	Offset uint32
	Kind   feature.Kind
	Types  []uint32
	Name   string
	Rect   geometry.Rect
}

func toRtree(r geometry.Rect) rtreego.Rect {
	point := rtreego.Point{r.MinX(), r.MinY()}

	// points and axis-parallel lines still need a positive extent
	lengths := []float64{
		math.Max(r.SizeX(), geometry.Epsilon),
		math.Max(r.SizeY(), geometry.Epsilon),
	}

	rect, _ := rtreego.NewRect(point, lengths)
	return rect
}

// Bounds implements rtreego.Spatial.
func (e *Entry) Bounds() rtreego.Rect {
	return toRtree(e.Rect)
}

// Source yields the feature records of a dataset.
type Source interface {
	ForEach(fn func(r *feature.Reader) error) error
}

// Index is an R-tree over the features visible at a fixed scale.
type Index struct {
	scale   int
	tree    *rtreego.Rtree
	entries int
	log     logrus.FieldLogger
}

// New returns an empty index for scale.
func New(scale int, log logrus.FieldLogger) *Index {
	if log == nil {
		log = logrus.StandardLogger()
	}
	// 2D, min=25 children, max=50 children
	return &Index{scale: scale, tree: rtreego.NewTree(2, 25, 50), log: log}
}

// Build indexes every feature of src visible at scale.
func Build(src Source, scale int, log logrus.FieldLogger) (*Index, error) {
	idx := New(scale, log)
	err := src.ForEach(func(r *feature.Reader) error {
		_, err := idx.Add(r)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("index features: %w", err)
	}
	idx.log.WithField("scale", scale).WithField("features", idx.entries).Debug("index built")
	return idx, nil
}

// Add indexes r when it has geometry at the index scale and reports
// whether it did.
func (idx *Index) Add(r *feature.Reader) (bool, error) {
	empty, err := r.IsEmptyGeometry(idx.scale)
	if err != nil {
		return false, fmt.Errorf("feature at %d: %w", r.Offset(), err)
	}
	rect, err := r.LimitRect(idx.scale)
	if err != nil {
		return false, fmt.Errorf("feature at %d: %w", r.Offset(), err)
	}
	if empty || rect.IsEmpty() {
		idx.log.WithField("offset", r.Offset()).Debug("not visible")
		return false, nil
	}

	idx.tree.Insert(&Entry{
		Offset: r.Offset(),
		Kind:   r.Kind(),
		Types:  r.Types(),
		Name:   r.Name(),
		Rect:   rect,
	})
	idx.entries++
	return true, nil
}

// Len returns the number of indexed features.
func (idx *Index) Len() int {
	return idx.entries
}

// Scale returns the scale the index was built for.
func (idx *Index) Scale() int {
	return idx.scale
}

// Query returns the features whose rectangles intersect bounds, ordered
// by record offset.
func (idx *Index) Query(bounds geometry.Rect) []*Entry {
	if bounds.IsEmpty() {
		return nil
	}

	spatials := idx.tree.SearchIntersect(toRtree(bounds))

	result := make([]*Entry, 0, len(spatials))
	for _, s := range spatials {
		result = append(result, s.(*Entry))
	}
	slices.SortFunc(result, func(a, b *Entry) int {
		return cmp.Compare(a.Offset, b.Offset)
	})
	return result
}
