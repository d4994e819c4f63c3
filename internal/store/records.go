package store

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"math"

	"github.com/dyuri/mwmcodec/internal/coding"
)

// MaxRecordSize bounds a single feature record.
const MaxRecordSize = 1 << 20

// RecordWriter appends length-prefixed feature records.
type RecordWriter struct {
	w   *bufio.Writer
	off int64
}

// NewRecordWriter returns a writer appending records to w.
func NewRecordWriter(w io.Writer) *RecordWriter {
	return &RecordWriter{w: bufio.NewWriter(w)}
}

// Append writes rec and returns the offset of its length prefix, which
// identifies the record within the file.
func (rw *RecordWriter) Append(rec []byte) (uint32, error) {
	if len(rec) == 0 || len(rec) > MaxRecordSize {
		return 0, fmt.Errorf("record size %d out of range", len(rec))
	}
	if rw.off >= math.MaxUint32 {
		return 0, fmt.Errorf("record file exceeds %d bytes", uint32(math.MaxUint32))
	}

	off := uint32(rw.off)
	prefix := coding.AppendUvarint(nil, uint64(len(rec)))
	if _, err := rw.w.Write(prefix); err != nil {
		return 0, fmt.Errorf("write record length: %w", err)
	}
	if _, err := rw.w.Write(rec); err != nil {
		return 0, fmt.Errorf("write record: %w", err)
	}
	rw.off += int64(len(prefix) + len(rec))
	return off, nil
}

// Size returns the number of bytes appended so far.
func (rw *RecordWriter) Size() int64 {
	return rw.off
}

// Flush writes buffered records to the underlying writer.
func (rw *RecordWriter) Flush() error {
	return rw.w.Flush()
}

// ReadRecords calls fn for every record of r in order. The slice passed to
// fn is freshly allocated and may be retained.
func ReadRecords(r io.Reader, fn func(offset uint32, rec []byte) error) error {
	cr := &coding.CountingReader{R: bufio.NewReader(r)}
	br := cr.R.(*bufio.Reader)

	for {
		off := cr.N
		if _, err := br.Peek(1); errors.Is(err, io.EOF) {
			return nil
		}

		n, err := coding.ReadUvarintFrom(cr)
		if err != nil {
			return fmt.Errorf("read record length at %d: %w", off, err)
		}
		if n == 0 || n > MaxRecordSize {
			return fmt.Errorf("record at %d: size %d out of range", off, n)
		}

		rec := make([]byte, n)
		if _, err := io.ReadFull(br, rec); err != nil {
			return fmt.Errorf("read record at %d: %w", off, err)
		}
		cr.N += int64(n)

		if err := fn(uint32(off), rec); err != nil {
			return err
		}
	}
}

// ReadRecordAt returns the record whose length prefix starts at offset.
func ReadRecordAt(ra io.ReaderAt, offset uint32) ([]byte, error) {
	sec := io.NewSectionReader(ra, int64(offset), math.MaxInt64-int64(offset))
	br := bufio.NewReader(sec)

	n, err := coding.ReadUvarintFrom(br)
	if err != nil {
		return nil, fmt.Errorf("read record length at %d: %w", offset, err)
	}
	if n == 0 || n > MaxRecordSize {
		return nil, fmt.Errorf("record at %d: size %d out of range", offset, n)
	}

	rec := make([]byte, n)
	if _, err := io.ReadFull(br, rec); err != nil {
		return nil, fmt.Errorf("read record at %d: %w", offset, err)
	}
	return rec, nil
}
