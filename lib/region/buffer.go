// Copyright 2026 The Unearth Authors
// SPDX-License-Identifier: Apache-2.0

package region

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"sync/atomic"
)

// ErrOutOfBounds is returned by any read that would touch bytes
// outside the buffer. The scan engine treats this as a structural
// mismatch at the parse boundary, never as a fault.
var ErrOutOfBounds = errors.New("region: read out of bounds")

// bufferIDs allocates process-unique buffer identities. IDs only
// need to distinguish buffers within one process lifetime; they are
// never persisted.
var bufferIDs atomic.Uint64

// Region is an (offset, length) window in some buffer's coordinate
// space. Regions are values: freely copyable, never owning.
type Region struct {
	Off int64
	Len int64
}

// End returns the exclusive end offset of the region.
func (r Region) End() int64 { return r.Off + r.Len }

// Valid reports whether the region lies entirely within a buffer of
// the given size, with non-negative offset and length.
func (r Region) Valid(size int64) bool {
	return r.Off >= 0 && r.Len >= 0 && r.Off <= size && r.Len <= size-r.Off
}

// Contains reports whether o lies entirely within r.
func (r Region) Contains(o Region) bool {
	return o.Off >= r.Off && o.End() <= r.End()
}

func (r Region) String() string {
	return fmt.Sprintf("[%d,%d)", r.Off, r.End())
}

// Buffer is an immutable, bounds-checked byte source. The root buffer
// of a scan session wraps the input file; child buffers are section
// views created by [Buffer.View] for carved and extracted regions.
type Buffer struct {
	id    uint64
	src   io.ReaderAt
	size  int64
	close func() error
}

// NewBuffer wraps an io.ReaderAt of known size. The source must not
// change for the lifetime of the buffer.
func NewBuffer(src io.ReaderAt, size int64) *Buffer {
	return &Buffer{id: bufferIDs.Add(1), src: src, size: size}
}

// FromBytes wraps an in-memory byte slice. The slice is not copied;
// the caller must not modify it while the buffer is in use.
func FromBytes(data []byte) *Buffer {
	return NewBuffer(bytes.NewReader(data), int64(len(data)))
}

// Open opens the file at path as a buffer. Regular files of nonzero
// size are memory-mapped read-only where the platform supports it;
// otherwise reads go through the open file descriptor. Close releases
// the mapping or descriptor.
func Open(path string) (*Buffer, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", path, err)
	}
	info, err := file.Stat()
	if err != nil {
		file.Close()
		return nil, fmt.Errorf("stat %s: %w", path, err)
	}
	if info.Mode().IsRegular() && info.Size() > 0 {
		if data, unmap, err := mmapFile(file, info.Size()); err == nil {
			// The descriptor is no longer needed once the pages are
			// mapped.
			file.Close()
			buffer := FromBytes(data)
			buffer.close = unmap
			return buffer, nil
		}
		// Mapping failed (unsupported filesystem, platform without
		// mmap); fall through to descriptor-backed reads.
	}
	buffer := NewBuffer(file, info.Size())
	buffer.close = file.Close
	return buffer, nil
}

// ID returns the buffer's process-unique identity. Ledgers and dedup
// indexes key on this.
func (b *Buffer) ID() uint64 { return b.id }

// Size returns the buffer length in bytes.
func (b *Buffer) Size() int64 { return b.size }

// Whole returns the region covering the entire buffer.
func (b *Buffer) Whole() Region { return Region{Off: 0, Len: b.size} }

// ReadAt reads len(p) bytes starting at off. Unlike the io.ReaderAt
// contract, a read that would cross the end of the buffer fails
// entirely with [ErrOutOfBounds]: parsers never see short data.
func (b *Buffer) ReadAt(p []byte, off int64) (int, error) {
	if off < 0 || int64(len(p)) > b.size-off {
		return 0, ErrOutOfBounds
	}
	n, err := b.src.ReadAt(p, off)
	if err == io.EOF && n == len(p) {
		err = nil
	}
	if err != nil {
		return n, fmt.Errorf("buffer %d: reading %d bytes at %d: %w", b.id, len(p), off, err)
	}
	return n, nil
}

// Bytes copies the given region out of the buffer.
func (b *Buffer) Bytes(r Region) ([]byte, error) {
	if !r.Valid(b.size) {
		return nil, ErrOutOfBounds
	}
	data := make([]byte, r.Len)
	if _, err := b.ReadAt(data, r.Off); err != nil {
		return nil, err
	}
	return data, nil
}

// View creates a child buffer over the given region. The child has
// its own identity and its own coordinate space starting at zero;
// reads are delegated to the parent's source, so no data is copied.
// A child never outlives the validity of its parent's source.
func (b *Buffer) View(r Region) (*Buffer, error) {
	if !r.Valid(b.size) {
		return nil, ErrOutOfBounds
	}
	return NewBuffer(io.NewSectionReader(b.src, r.Off, r.Len), r.Len), nil
}

// SectionReader returns an io.Reader over the given region, for
// streaming consumers (hashing, decompression).
func (b *Buffer) SectionReader(r Region) (*io.SectionReader, error) {
	if !r.Valid(b.size) {
		return nil, ErrOutOfBounds
	}
	return io.NewSectionReader(b.src, r.Off, r.Len), nil
}

// Close releases the mapping or file descriptor backing the buffer.
// Child views hold no resources and do not need closing.
func (b *Buffer) Close() error {
	if b.close == nil {
		return nil
	}
	err := b.close()
	b.close = nil
	return err
}
