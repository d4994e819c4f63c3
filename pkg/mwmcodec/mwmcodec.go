// Package mwmcodec provides functions for encoding map features into the
// compact record format and for building and reading multi-scale datasets.
//
// Example usage:
//
//	f, _ := os.Open("city.geojson")
//	defer f.Close()
//
//	features, err := mwmcodec.ImportGeoJSON(f, 0)
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	stats, err := mwmcodec.BuildDataset("city", mwmcodec.DefaultHeader(), features, mwmcodec.BuildOptions{})
package mwmcodec

import (
	"errors"
	"fmt"
	"io"

	"github.com/dyuri/mwmcodec/internal/feature"
	"github.com/dyuri/mwmcodec/internal/generator"
	"github.com/dyuri/mwmcodec/internal/source"
	"github.com/dyuri/mwmcodec/internal/store"
)

// DefaultScales are the detail level thresholds used when none are given.
var DefaultScales = feature.ScaleTable{5, 10, 14, 17}

// DefaultHeader returns a dataset header with DefaultScales and a zero base.
func DefaultHeader() *feature.DatasetHeader {
	return &feature.DatasetHeader{Scales: DefaultScales}
}

// EncodeFeature serializes a single-scale feature.
//
// Example:
//
//	b := feature.NewBuilder()
//	b.AddType(1)
//	b.SetCenter(geometry.Point{19.04, 47.5})
//	data, err := EncodeFeature(b)
func EncodeFeature(b *feature.Builder) ([]byte, error) {
	data, err := b.Serialize()
	if err != nil {
		return nil, &Error{Code: "invalid_feature", Message: "cannot encode feature", Cause: err}
	}
	return data, nil
}

// DecodeFeature parses a record produced by EncodeFeature.
func DecodeFeature(data []byte) (*feature.Builder, error) {
	b := feature.NewBuilder()
	if err := b.Deserialize(data); err != nil {
		return nil, &Error{Code: "invalid_format", Message: "cannot decode feature", Cause: err}
	}
	return b, nil
}

// ImportGeoJSON reads a GeoJSON FeatureCollection. codePage names the
// input encoding; 0 means UTF-8.
func ImportGeoJSON(r io.Reader, codePage int) ([]*feature.Builder, error) {
	return source.Import(r, source.Options{CodePage: codePage})
}

// BuildOptions controls BuildDataset.
type BuildOptions struct {
	Generator generator.Options

	// OnFeature is called after each input feature is processed.
	OnFeature func(index int, written bool)
}

// BuildDataset writes features as a multi-scale dataset into dir.
func BuildDataset(dir string, h *feature.DatasetHeader, features []*feature.Builder, opts BuildOptions) (generator.Stats, error) {
	w, err := store.CreateDir(dir, h, opts.Generator.Log)
	if err != nil {
		return generator.Stats{}, err
	}

	stats, err := build(w, h, features, opts)
	if cerr := w.Close(); err == nil && cerr != nil {
		err = fmt.Errorf("close dataset: %w", cerr)
	}
	return stats, err
}

// BuildMemory writes features as a multi-scale dataset held in memory.
func BuildMemory(h *feature.DatasetHeader, features []*feature.Builder, opts BuildOptions) (*store.Memory, generator.Stats, error) {
	mem := store.NewMemory()
	stats, err := build(mem, h, features, opts)
	return mem, stats, err
}

func build(sink store.Sink, h *feature.DatasetHeader, features []*feature.Builder, opts BuildOptions) (generator.Stats, error) {
	g, err := generator.New(h, sink, opts.Generator)
	if err != nil {
		return generator.Stats{}, err
	}
	for i, b := range features {
		_, ok, err := g.Add(b)
		if err != nil {
			return g.Stats(), fmt.Errorf("feature %d: %w", i, err)
		}
		if opts.OnFeature != nil {
			opts.OnFeature(i, ok)
		}
	}
	return g.Stats(), nil
}

// OpenDataset opens a dataset directory written by BuildDataset.
//
// Example:
//
//	ds, _ := OpenDataset("city")
//	defer ds.Close()
//	ds.ForEach(func(r *feature.Reader) error {
//	    pts, err := r.Points(14)
//	    ...
//	})
func OpenDataset(dir string) (*store.Dataset, error) {
	ds, err := store.OpenDir(dir, nil)
	if err != nil {
		return nil, &Error{Code: "invalid_header", Message: "cannot open dataset", Cause: err}
	}
	return ds, nil
}

// ValidationError represents a feature that cannot be encoded.
type ValidationError struct {
	Index   int    // Position in the input
	Message string // Error description
}

// Validate checks features before encoding. An empty list means every
// feature is valid.
func Validate(features []*feature.Builder) []ValidationError {
	var errs []ValidationError
	for i, b := range features {
		if err := b.CheckValid(); err != nil {
			var ie *feature.InvariantError
			msg := err.Error()
			if errors.As(err, &ie) {
				msg = ie.Rule
			}
			errs = append(errs, ValidationError{Index: i, Message: msg})
		}
	}
	return errs
}

// Common errors
var (
	ErrInvalidFormat = &Error{Code: "invalid_format", Message: "invalid feature record"}
	ErrInvalidHeader = &Error{Code: "invalid_header", Message: "invalid dataset header"}
)

// Error represents an mwmcodec error
type Error struct {
	Code    string
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return e.Message + ": " + e.Cause.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// Is matches errors by code, so errors.Is(err, ErrInvalidFormat) holds for
// any decode failure.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Code == e.Code
}
