package coding

import "fmt"

// BitWriter packs fields of up to 8 bits LSB-first into bytes. A field
// never straddles a byte boundary: when it does not fit in the remaining
// bits of the current byte, the byte is flushed and the field starts a new
// one.
type BitWriter struct {
	buf     []byte
	current byte
	pos     uint8
}

// NewBitWriter returns a writer appending to dst.
func NewBitWriter(dst []byte) *BitWriter {
	return &BitWriter{buf: dst}
}

// Write packs the low count bits of value.
func (w *BitWriter) Write(value uint8, count uint8) error {
	if count == 0 || count > 8 {
		return fmt.Errorf("bit field width %d out of range", count)
	}
	if count < 8 && value>>count != 0 {
		return fmt.Errorf("value %d does not fit in %d bits", value, count)
	}

	if w.pos+count > 8 {
		w.Align()
	}

	w.current |= value << w.pos
	w.pos += count
	return nil
}

// Align flushes a partially filled byte. It is a no-op on a byte boundary.
func (w *BitWriter) Align() {
	if w.pos > 0 {
		w.buf = append(w.buf, w.current)
		w.pos = 0
		w.current = 0
	}
}

// Bytes aligns the writer and returns the accumulated buffer.
func (w *BitWriter) Bytes() []byte {
	w.Align()
	return w.buf
}

// BitReader is the read-side mirror of BitWriter.
type BitReader struct {
	data []byte
	off  int
	pos  uint8
}

// NewBitReader returns a reader over data starting at byte offset off.
func NewBitReader(data []byte, off int) *BitReader {
	return &BitReader{data: data, off: off}
}

// Read unpacks the next count bits.
func (r *BitReader) Read(count uint8) (uint8, error) {
	if count == 0 || count > 8 {
		return 0, fmt.Errorf("bit field width %d out of range", count)
	}

	if r.pos+count > 8 {
		r.Align()
	}
	if r.off >= len(r.data) {
		return 0, ErrTruncated
	}

	v := r.data[r.off] >> r.pos
	if count < 8 {
		v &= (1 << count) - 1
	}

	r.pos += count
	if r.pos == 8 {
		r.off++
		r.pos = 0
	}
	return v, nil
}

// Align skips to the next byte boundary and returns the byte offset at
// which byte-aligned data continues.
func (r *BitReader) Align() int {
	if r.pos > 0 {
		r.off++
		r.pos = 0
	}
	return r.off
}
