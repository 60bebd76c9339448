package elfbin

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCodecReadWrite(t *testing.T) {
	buf := make([]byte, 16)
	c := Codec{Order: binary.LittleEndian}

	require.NoError(t, c.PutU16(buf, 0, 0xBEEF))
	require.NoError(t, c.PutU32(buf, 2, 0xDEADBEEF))
	require.NoError(t, c.PutU64(buf, 8, 0x0102030405060708))
	require.Equal(t, []byte{0xEF, 0xBE}, buf[:2])

	v16, err := c.U16(buf, 0)
	require.NoError(t, err)
	require.Equal(t, uint16(0xBEEF), v16)
	v32, err := c.U32(buf, 2)
	require.NoError(t, err)
	require.Equal(t, uint32(0xDEADBEEF), v32)
	v64, err := c.U64(buf, 8)
	require.NoError(t, err)
	require.Equal(t, uint64(0x0102030405060708), v64)
}

func TestCodecHonorsByteOrder(t *testing.T) {
	buf := []byte{0x12, 0x34, 0x56, 0x78}
	le, err := CodecFor(Little).U32(buf, 0)
	require.NoError(t, err)
	be, err := CodecFor(Big).U32(buf, 0)
	require.NoError(t, err)
	require.Equal(t, uint32(0x78563412), le)
	require.Equal(t, uint32(0x12345678), be)

	fallback, err := CodecFor(UnknownEndian).U32(buf, 0)
	require.NoError(t, err)
	require.Equal(t, le, fallback)
}

func TestCodecBounds(t *testing.T) {
	buf := make([]byte, 8)
	c := CodecFor(Little)

	for _, tc := range []struct {
		name string
		fn   func() error
	}{
		{"u16 at end", func() error { _, err := c.U16(buf, 7); return err }},
		{"u32 past end", func() error { _, err := c.U32(buf, 6); return err }},
		{"u64 past end", func() error { _, err := c.U64(buf, 1); return err }},
		{"offset overflow", func() error { _, err := c.U64(buf, ^uint64(0)-2); return err }},
		{"write past end", func() error { return c.PutU32(buf, 5, 1) }},
		{"write far away", func() error { return c.PutU64(buf, 1<<40, 1) }},
	} {
		t.Run(tc.name, func(t *testing.T) {
			require.ErrorIs(t, tc.fn(), ErrOutOfBounds)
		})
	}

	// A failed write leaves the buffer untouched.
	require.Equal(t, make([]byte, 8), buf)

	v, err := c.U64(buf, 0)
	require.NoError(t, err)
	require.Zero(t, v)
}

func TestPutWordRejectsOverflow(t *testing.T) {
	buf := make([]byte, 8)
	c := CodecFor(Little)
	require.ErrorIs(t, c.PutWord(buf, 0, 4, 1<<32), ErrOutOfBounds)
	require.NoError(t, c.PutWord(buf, 0, 4, 0xFFFFFFFF))

	v, err := c.Word(buf, 0, 4)
	require.NoError(t, err)
	require.Equal(t, uint64(0xFFFFFFFF), v)

	_, err = c.Word(buf, 0, 3)
	require.Error(t, err)
}
