package cursor

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

// ErrTruncated is returned when a declared section length exceeds the
// remaining bytes of the container.
var ErrTruncated = errors.New("cursor: truncated input")

// Cursor is a forward-only, bounds-checked reader over a container stream.
// The NCM layout is strictly sequential, so no backward seeking is offered;
// the position only ever advances.
type Cursor struct {
	rd  io.Reader
	pos int64
}

func New(rd io.Reader) *Cursor {
	return &Cursor{rd: rd}
}

// Pos returns the number of bytes consumed so far.
func (c *Cursor) Pos() int64 {
	return c.pos
}

// ReadExact reads exactly n bytes, or fails with ErrTruncated.
func (c *Cursor) ReadExact(n uint32) ([]byte, error) {
	buf := make([]byte, n)
	read, err := io.ReadFull(c.rd, buf)
	c.pos += int64(read)
	if err != nil {
		return nil, fmt.Errorf("%w: want %d bytes at offset %d: %v", ErrTruncated, n, c.pos, err)
	}
	return buf, nil
}

// ReadUint32LE reads a 4-byte little-endian length prefix.
func (c *Cursor) ReadUint32LE() (uint32, error) {
	var buf [4]byte
	read, err := io.ReadFull(c.rd, buf[:])
	c.pos += int64(read)
	if err != nil {
		return 0, fmt.Errorf("%w: want uint32 at offset %d: %v", ErrTruncated, c.pos, err)
	}
	return binary.LittleEndian.Uint32(buf[:]), nil
}

// ReadSection reads a uint32-LE length prefix followed by that many payload
// bytes. A zero length yields a nil payload.
func (c *Cursor) ReadSection() ([]byte, error) {
	n, err := c.ReadUint32LE()
	if err != nil {
		return nil, err
	}
	if n == 0 {
		return nil, nil
	}
	return c.ReadExact(n)
}

// Skip discards n bytes.
func (c *Cursor) Skip(n uint32) error {
	discarded, err := io.CopyN(io.Discard, c.rd, int64(n))
	c.pos += discarded
	if err != nil {
		return fmt.Errorf("%w: skip %d bytes at offset %d: %v", ErrTruncated, n, c.pos, err)
	}
	return nil
}
