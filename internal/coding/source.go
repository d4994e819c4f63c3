// Package coding provides the low-level primitives of the feature wire
// format: variable-length integers over byte slices and an LSB-first bit
// cursor for sub-byte fields.
//
// Varints follow the usual scheme of 7 payload bits per byte with the MSB
// as continuation flag; signed values are zigzag mapped first. This is the
// encoding produced by encoding/binary's AppendUvarint and AppendVarint.
package coding

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

// ErrTruncated is returned when a read runs past the end of the buffer.
var ErrTruncated = errors.New("coding: truncated data")

// ErrOverflow is returned when a varint does not fit the requested width.
var ErrOverflow = errors.New("coding: varint overflows")

// Source reads primitives sequentially from an immutable byte slice.
// It implements io.ByteReader so that the same decoders can run over
// in-memory records and buffered external stores.
type Source struct {
	data []byte
	pos  int
}

// NewSource returns a Source positioned at the start of data.
func NewSource(data []byte) *Source {
	return &Source{data: data}
}

// Pos returns the number of bytes consumed so far.
func (s *Source) Pos() int {
	return s.pos
}

// Len returns the number of unread bytes.
func (s *Source) Len() int {
	return len(s.data) - s.pos
}

// Rest returns the unread tail of the buffer without consuming it.
func (s *Source) Rest() []byte {
	return s.data[s.pos:]
}

// Skip advances the cursor by n bytes.
func (s *Source) Skip(n int) error {
	if n < 0 || n > s.Len() {
		return ErrTruncated
	}
	s.pos += n
	return nil
}

// ReadByte implements io.ByteReader.
func (s *Source) ReadByte() (byte, error) {
	if s.pos >= len(s.data) {
		return 0, io.EOF
	}
	b := s.data[s.pos]
	s.pos++
	return b, nil
}

// ReadBytes returns the next n bytes. The returned slice aliases the
// underlying buffer and must not be modified.
func (s *Source) ReadBytes(n int) ([]byte, error) {
	if n < 0 || n > s.Len() {
		return nil, ErrTruncated
	}
	b := s.data[s.pos : s.pos+n]
	s.pos += n
	return b, nil
}

// ReadUvarint reads an unsigned varint.
func (s *Source) ReadUvarint() (uint64, error) {
	v, n := binary.Uvarint(s.data[s.pos:])
	switch {
	case n == 0:
		return 0, ErrTruncated
	case n < 0:
		return 0, ErrOverflow
	}
	s.pos += n
	return v, nil
}

// ReadUvarint32 reads an unsigned varint that must fit in 32 bits.
func (s *Source) ReadUvarint32() (uint32, error) {
	v, err := s.ReadUvarint()
	if err != nil {
		return 0, err
	}
	if v > 0xFFFFFFFF {
		return 0, ErrOverflow
	}
	return uint32(v), nil
}

// ReadVarint reads a zigzag-encoded signed varint.
func (s *Source) ReadVarint() (int64, error) {
	v, n := binary.Varint(s.data[s.pos:])
	switch {
	case n == 0:
		return 0, ErrTruncated
	case n < 0:
		return 0, ErrOverflow
	}
	s.pos += n
	return v, nil
}

// ReadUvarintFrom reads an unsigned varint from any byte reader, mapping a
// premature end of input to ErrTruncated.
func ReadUvarintFrom(r io.ByteReader) (uint64, error) {
	v, err := binary.ReadUvarint(r)
	if err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return 0, ErrTruncated
		}
		return 0, fmt.Errorf("read uvarint: %w", err)
	}
	return v, nil
}

// AppendUvarint appends v as an unsigned varint.
func AppendUvarint(dst []byte, v uint64) []byte {
	return binary.AppendUvarint(dst, v)
}

// AppendVarint appends v as a zigzag-encoded signed varint.
func AppendVarint(dst []byte, v int64) []byte {
	return binary.AppendVarint(dst, v)
}

// CountingReader wraps a byte reader and counts consumed bytes.
type CountingReader struct {
	R io.ByteReader
	N int64
}

// ReadByte implements io.ByteReader.
func (c *CountingReader) ReadByte() (byte, error) {
	b, err := c.R.ReadByte()
	if err == nil {
		c.N++
	}
	return b, err
}
