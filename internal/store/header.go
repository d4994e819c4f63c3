// Package store holds the on-disk and in-memory containers of a multi-scale
// dataset: the dataset header, the feature record file and the per-scale
// geometry and triangle stores that records point into by byte offset.
package store

import (
	"encoding/binary"
	"fmt"
	"io"

	"github.com/dyuri/mwmcodec/internal/feature"
)

// Dataset file names.
const (
	HeaderFile   = "header"
	FeaturesFile = "features"
)

const (
	headerMagic   = "MWMC"
	headerVersion = 1

	// magic, version, base, scale count, then one uint16 per scale
	headerFixedSize = 4 + 2 + 8 + 1
)

// WriteHeader writes the dataset descriptor in its fixed little-endian layout.
func WriteHeader(w io.Writer, h *feature.DatasetHeader) error {
	if err := h.Validate(); err != nil {
		return fmt.Errorf("validate header: %w", err)
	}

	buf := make([]byte, headerFixedSize+2*len(h.Scales))
	copy(buf[0x00:0x04], headerMagic)
	binary.LittleEndian.PutUint16(buf[0x04:0x06], headerVersion)
	binary.LittleEndian.PutUint64(buf[0x06:0x0E], h.Base)
	buf[0x0E] = byte(len(h.Scales))
	for i, s := range h.Scales {
		if s < 0 || s > 0xFFFF {
			return fmt.Errorf("scale %d out of range", s)
		}
		binary.LittleEndian.PutUint16(buf[headerFixedSize+2*i:], uint16(s))
	}

	if _, err := w.Write(buf); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	return nil
}

// ReadHeader parses a dataset descriptor written by WriteHeader.
func ReadHeader(r io.Reader) (*feature.DatasetHeader, error) {
	buf := make([]byte, headerFixedSize)
	if _, err := io.ReadFull(r, buf); err != nil {
		return nil, fmt.Errorf("read header bytes: %w", err)
	}

	if string(buf[0x00:0x04]) != headerMagic {
		return nil, fmt.Errorf("unrecognized dataset header - missing %s signature", headerMagic)
	}
	if v := binary.LittleEndian.Uint16(buf[0x04:0x06]); v != headerVersion {
		return nil, fmt.Errorf("unsupported dataset version %d", v)
	}

	h := &feature.DatasetHeader{Base: binary.LittleEndian.Uint64(buf[0x06:0x0E])}

	count := int(buf[0x0E])
	if count == 0 || count > feature.MaxScalesCount {
		return nil, fmt.Errorf("invalid scale count %d", count)
	}
	scales := make([]byte, 2*count)
	if _, err := io.ReadFull(r, scales); err != nil {
		return nil, fmt.Errorf("read scale table: %w", err)
	}
	for i := 0; i < count; i++ {
		h.Scales = append(h.Scales, int(binary.LittleEndian.Uint16(scales[2*i:])))
	}

	if err := h.Validate(); err != nil {
		return nil, fmt.Errorf("validate header: %w", err)
	}
	return h, nil
}
