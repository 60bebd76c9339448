package elfbin

import (
	"encoding/binary"

	"github.com/pkg/errors"
)

// Codec reads and writes fixed-width integers at arbitrary offsets of a
// byte buffer. Every structural field of an image goes through it.
type Codec struct {
	Order binary.ByteOrder
}

// CodecFor returns the codec matching the declared byte order. Unknown
// order falls back to little-endian.
func CodecFor(e Endian) Codec {
	if e == Big {
		return Codec{Order: binary.BigEndian}
	}
	return Codec{Order: binary.LittleEndian}
}

func check(buf []byte, off uint64, width int) error {
	end := off + uint64(width)
	if end < off || end > uint64(len(buf)) {
		return errors.Wrapf(ErrOutOfBounds, "%d bytes at 0x%x (buffer is %d bytes)", width, off, len(buf))
	}
	return nil
}

// U8 reads the byte at off.
func (c Codec) U8(buf []byte, off uint64) (uint8, error) {
	if err := check(buf, off, 1); err != nil {
		return 0, err
	}
	return buf[off], nil
}

// U16 reads a 16-bit integer at off.
func (c Codec) U16(buf []byte, off uint64) (uint16, error) {
	if err := check(buf, off, 2); err != nil {
		return 0, err
	}
	return c.Order.Uint16(buf[off:]), nil
}

// U32 reads a 32-bit integer at off.
func (c Codec) U32(buf []byte, off uint64) (uint32, error) {
	if err := check(buf, off, 4); err != nil {
		return 0, err
	}
	return c.Order.Uint32(buf[off:]), nil
}

// U64 reads a 64-bit integer at off.
func (c Codec) U64(buf []byte, off uint64) (uint64, error) {
	if err := check(buf, off, 8); err != nil {
		return 0, err
	}
	return c.Order.Uint64(buf[off:]), nil
}

// PutU8 overwrites the byte at off.
func (c Codec) PutU8(buf []byte, off uint64, v uint8) error {
	if err := check(buf, off, 1); err != nil {
		return err
	}
	buf[off] = v
	return nil
}

// PutU16 overwrites the 16-bit integer at off.
func (c Codec) PutU16(buf []byte, off uint64, v uint16) error {
	if err := check(buf, off, 2); err != nil {
		return err
	}
	c.Order.PutUint16(buf[off:], v)
	return nil
}

// PutU32 overwrites the 32-bit integer at off.
func (c Codec) PutU32(buf []byte, off uint64, v uint32) error {
	if err := check(buf, off, 4); err != nil {
		return err
	}
	c.Order.PutUint32(buf[off:], v)
	return nil
}

// PutU64 overwrites the 64-bit integer at off.
func (c Codec) PutU64(buf []byte, off uint64, v uint64) error {
	if err := check(buf, off, 8); err != nil {
		return err
	}
	c.Order.PutUint64(buf[off:], v)
	return nil
}

// Word reads an integer of the given width (1, 2, 4 or 8) widened to 64 bits.
func (c Codec) Word(buf []byte, off uint64, width int) (uint64, error) {
	switch width {
	case 1:
		v, err := c.U8(buf, off)
		return uint64(v), err
	case 2:
		v, err := c.U16(buf, off)
		return uint64(v), err
	case 4:
		v, err := c.U32(buf, off)
		return uint64(v), err
	case 8:
		return c.U64(buf, off)
	}
	return 0, errors.Errorf("unsupported field width %d", width)
}

// PutWord writes v with the given width. A value that does not fit the
// width is rejected rather than truncated.
func (c Codec) PutWord(buf []byte, off uint64, width int, v uint64) error {
	if width < 8 && v>>(uint(width)*8) != 0 {
		return errors.Wrapf(ErrOutOfBounds, "value 0x%x does not fit in %d bytes", v, width)
	}
	switch width {
	case 1:
		return c.PutU8(buf, off, uint8(v))
	case 2:
		return c.PutU16(buf, off, uint16(v))
	case 4:
		return c.PutU32(buf, off, uint32(v))
	case 8:
		return c.PutU64(buf, off, v)
	}
	return errors.Errorf("unsupported field width %d", width)
}
