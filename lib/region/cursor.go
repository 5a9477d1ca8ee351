// Copyright 2026 The Unearth Authors
// SPDX-License-Identifier: Apache-2.0

package region

import (
	"encoding/binary"
	"io"
)

// Cursor provides sequential structured reads over one region of a
// buffer. Positions are relative to the region start, so a parser
// handed a cursor works in its own coordinate space regardless of
// where in the parent buffer the candidate match sits.
//
// Every read either returns complete data or fails with
// [ErrOutOfBounds] (wrapped); the cursor position is unchanged after
// a failed read.
type Cursor struct {
	buf  *Buffer
	base Region
	pos  int64
}

// NewCursor creates a cursor over the given region of the buffer.
// The region must be valid for the buffer.
func NewCursor(b *Buffer, r Region) (*Cursor, error) {
	if !r.Valid(b.Size()) {
		return nil, ErrOutOfBounds
	}
	return &Cursor{buf: b, base: r}, nil
}

// Base returns the region the cursor was created over.
func (c *Cursor) Base() Region { return c.base }

// Pos returns the current position relative to the region start.
func (c *Cursor) Pos() int64 { return c.pos }

// Remaining returns the number of unread bytes in the region.
func (c *Cursor) Remaining() int64 { return c.base.Len - c.pos }

// Seek sets the position relative to the region start.
func (c *Cursor) Seek(pos int64) error {
	if pos < 0 || pos > c.base.Len {
		return ErrOutOfBounds
	}
	c.pos = pos
	return nil
}

// Skip advances the position by n bytes without reading them.
func (c *Cursor) Skip(n int64) error {
	if n < 0 || n > c.Remaining() {
		return ErrOutOfBounds
	}
	c.pos += n
	return nil
}

// ReadBytes reads exactly n bytes at the current position and
// advances past them. The returned slice is freshly allocated.
func (c *Cursor) ReadBytes(n int64) ([]byte, error) {
	if n < 0 || n > c.Remaining() {
		return nil, ErrOutOfBounds
	}
	data := make([]byte, n)
	if _, err := c.buf.ReadAt(data, c.base.Off+c.pos); err != nil {
		return nil, err
	}
	c.pos += n
	return data, nil
}

// PeekBytes reads exactly n bytes at the given position relative to
// the region start without moving the cursor.
func (c *Cursor) PeekBytes(pos, n int64) ([]byte, error) {
	if pos < 0 || n < 0 || pos > c.base.Len || n > c.base.Len-pos {
		return nil, ErrOutOfBounds
	}
	data := make([]byte, n)
	if _, err := c.buf.ReadAt(data, c.base.Off+pos); err != nil {
		return nil, err
	}
	return data, nil
}

// Reader returns an io.SectionReader over the unread remainder of
// the region, for streaming consumers (decompression, archive
// walking). Reads and seeks through it do not move the cursor.
func (c *Cursor) Reader() *io.SectionReader {
	return io.NewSectionReader(c.buf.src, c.base.Off+c.pos, c.Remaining())
}

// Uint8 reads one byte.
func (c *Cursor) Uint8() (uint8, error) {
	data, err := c.ReadBytes(1)
	if err != nil {
		return 0, err
	}
	return data[0], nil
}

// Uint16LE reads a little-endian 16-bit integer.
func (c *Cursor) Uint16LE() (uint16, error) {
	data, err := c.ReadBytes(2)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint16(data), nil
}

// Uint32LE reads a little-endian 32-bit integer.
func (c *Cursor) Uint32LE() (uint32, error) {
	data, err := c.ReadBytes(4)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(data), nil
}

// Uint64LE reads a little-endian 64-bit integer.
func (c *Cursor) Uint64LE() (uint64, error) {
	data, err := c.ReadBytes(8)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint64(data), nil
}

// Uint16BE reads a big-endian 16-bit integer.
func (c *Cursor) Uint16BE() (uint16, error) {
	data, err := c.ReadBytes(2)
	if err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint16(data), nil
}

// Uint32BE reads a big-endian 32-bit integer.
func (c *Cursor) Uint32BE() (uint32, error) {
	data, err := c.ReadBytes(4)
	if err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint32(data), nil
}
