// Copyright 2026 The Unearth Authors
// SPDX-License-Identifier: Apache-2.0

// Package region provides the byte-access primitives the scan engine
// operates on: [Buffer], an immutable bounds-checked byte source, and
// [Region], a value-type (offset, length) view into a buffer.
//
// A Buffer wraps an io.ReaderAt plus a known size. Child buffers
// created with [Buffer.View] are section views over the same backing
// source — no bytes are copied, and a child can never read outside
// the window it was created with. Every out-of-range read returns
// [ErrOutOfBounds] rather than short data or a panic; the scan engine
// relies on this to convert overruns into structural mismatches.
//
// [Cursor] layers sequential structured reads (little- and big-endian
// integers, fixed-length byte runs) on top of a region. Parsers use a
// cursor for header walking; it carries the same bounds guarantee.
//
// [Open] maps regular files into memory on Linux (golang.org/x/sys)
// so that large firmware images are paged in by the OS instead of
// read through syscalls per access; other platforms and non-regular
// files fall back to pread-style access through the open file.
//
// Buffers are safe for concurrent readers. Nothing in this package
// ever mutates buffer contents.
package region
