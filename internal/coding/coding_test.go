package coding

import (
	"bufio"
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestVarintRoundTrip(t *testing.T) {
	var buf []byte
	unsigned := []uint64{0, 1, 127, 128, 300, 1 << 32, 1<<64 - 1}
	signed := []int64{0, -1, 1, -10, 10, -1 << 40}

	for _, v := range unsigned {
		buf = AppendUvarint(buf, v)
	}
	for _, v := range signed {
		buf = AppendVarint(buf, v)
	}

	src := NewSource(buf)
	for _, want := range unsigned {
		got, err := src.ReadUvarint()
		require.NoError(t, err)
		require.Equal(t, want, got)
	}
	for _, want := range signed {
		got, err := src.ReadVarint()
		require.NoError(t, err)
		require.Equal(t, want, got)
	}
	require.Equal(t, 0, src.Len())
}

func TestVarintWireFormat(t *testing.T) {
	// 300 = 0b1_0010_1100 -> 0xAC 0x02
	require.Equal(t, []byte{0xAC, 0x02}, AppendUvarint(nil, 300))
	// zigzag: -1 -> 1, 1 -> 2
	require.Equal(t, []byte{0x01}, AppendVarint(nil, -1))
	require.Equal(t, []byte{0x02}, AppendVarint(nil, 1))
}

func TestSourceTruncated(t *testing.T) {
	src := NewSource([]byte{0x80})
	_, err := src.ReadUvarint()
	require.ErrorIs(t, err, ErrTruncated)

	src = NewSource([]byte{1, 2})
	_, err = src.ReadBytes(3)
	require.ErrorIs(t, err, ErrTruncated)
}

func TestReadUvarint32Overflow(t *testing.T) {
	src := NewSource(AppendUvarint(nil, 1<<33))
	_, err := src.ReadUvarint32()
	require.ErrorIs(t, err, ErrOverflow)
}

func TestReadUvarintFrom(t *testing.T) {
	data := AppendUvarint(nil, 123456)
	cr := &CountingReader{R: bufio.NewReader(bytes.NewReader(data))}

	v, err := ReadUvarintFrom(cr)
	require.NoError(t, err)
	require.Equal(t, uint64(123456), v)
	require.Equal(t, int64(len(data)), cr.N)

	_, err = ReadUvarintFrom(cr)
	require.ErrorIs(t, err, ErrTruncated)
}

func TestBitWriterPacking(t *testing.T) {
	w := NewBitWriter(nil)
	require.NoError(t, w.Write(0x5, 4))
	require.NoError(t, w.Write(0xA, 4))
	require.NoError(t, w.Write(0x3, 4))

	// first byte holds 0x5 in the low nibble and 0xA in the high one
	require.Equal(t, []byte{0xA5, 0x03}, w.Bytes())
}

func TestBitWriterDoesNotStraddle(t *testing.T) {
	w := NewBitWriter([]byte{0xFF})
	require.NoError(t, w.Write(0x7, 3))
	require.NoError(t, w.Write(0x3F, 6))

	require.Equal(t, []byte{0xFF, 0x07, 0x3F}, w.Bytes())
}

func TestBitWriterRejectsWideValue(t *testing.T) {
	w := NewBitWriter(nil)
	require.Error(t, w.Write(16, 4))
	require.Error(t, w.Write(1, 9))
}

func TestBitReaderMirrorsWriter(t *testing.T) {
	fields := []struct {
		value uint8
		count uint8
	}{
		{3, 4}, {0, 4}, {9, 4}, {1, 2}, {0x7F, 7}, {0xFF, 8},
	}

	w := NewBitWriter(nil)
	for _, f := range fields {
		require.NoError(t, w.Write(f.value, f.count))
	}
	data := append(w.Bytes(), 0xEE)

	r := NewBitReader(data, 0)
	for i, f := range fields {
		got, err := r.Read(f.count)
		require.NoError(t, err)
		if got != f.value {
			t.Errorf("field %d = %d, want %d", i, got, f.value)
		}
	}

	off := r.Align()
	require.Equal(t, byte(0xEE), data[off])
}

func TestBitReaderTruncated(t *testing.T) {
	r := NewBitReader([]byte{0x12}, 0)
	_, err := r.Read(8)
	require.NoError(t, err)
	_, err = r.Read(4)
	require.ErrorIs(t, err, ErrTruncated)
}
