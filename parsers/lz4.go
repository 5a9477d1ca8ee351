// Copyright 2026 The Unearth Authors
// SPDX-License-Identifier: Apache-2.0

package parsers

import (
	"bytes"
	"io"

	"github.com/pierrec/lz4/v4"

	"github.com/unearth-project/unearth/lib/region"
	"github.com/unearth-project/unearth/scan"
)

type lz4Parser struct{}

// LZ4 recognizes a single LZ4 frame, establishing the compressed
// footprint by walking the block headers and decompressing the frame
// for the child payload.
func LZ4() scan.Parser { return lz4Parser{} }

func (lz4Parser) Name() string { return "lz4" }

func (lz4Parser) Signatures() []scan.Signature {
	return []scan.Signature{{Offset: 0, Pattern: []byte{0x04, 0x22, 0x4d, 0x18}}}
}

func (lz4Parser) Parse(c *region.Cursor) (scan.Parsed, error) {
	consumed, err := walkLZ4Frame(c)
	if err != nil {
		return nil, err
	}

	frame, err := c.PeekBytes(0, consumed)
	if err != nil {
		return nil, err
	}
	var out bytes.Buffer
	zr := lz4.NewReader(bytes.NewReader(frame))
	n, err := io.Copy(&out, io.LimitReader(zr, maxSynthesized))
	if err != nil {
		return nil, scan.Mismatchf("lz4 frame: %v", err)
	}

	parsed := &streamParsed{
		consumed: consumed,
		labels:   []string{"lz4", "compressed"},
		hint:     "lz4.out",
	}
	if n == maxSynthesized {
		parsed.metadata = map[string]any{"expansion_skipped": true}
	} else {
		parsed.data = out.Bytes()
	}
	return parsed, nil
}

// walkLZ4Frame steps over an LZ4 frame using the descriptor flags
// and block length fields, returning the total frame length from the
// region start.
func walkLZ4Frame(c *region.Cursor) (int64, error) {
	magic, err := c.Uint32LE()
	if err != nil {
		return 0, err
	}
	if magic != 0x184d2204 {
		return 0, scan.Mismatchf("bad magic %#x", magic)
	}

	flags, err := c.Uint8()
	if err != nil {
		return 0, err
	}
	if flags>>6 != 1 {
		return 0, scan.Mismatchf("unsupported frame version %d", flags>>6)
	}
	blockChecksums := flags&0x10 != 0
	hasContentSize := flags&0x08 != 0
	contentChecksum := flags&0x04 != 0
	hasDictID := flags&0x01 != 0

	bd, err := c.Uint8()
	if err != nil {
		return 0, err
	}
	if max := (bd >> 4) & 7; max < 4 || max > 7 {
		return 0, scan.Mismatchf("invalid block max size code %d", max)
	}

	if hasContentSize {
		if err := c.Skip(8); err != nil {
			return 0, err
		}
	}
	if hasDictID {
		if err := c.Skip(4); err != nil {
			return 0, err
		}
	}
	if err := c.Skip(1); err != nil { // header checksum
		return 0, err
	}

	for {
		blockLen, err := c.Uint32LE()
		if err != nil {
			return 0, err
		}
		if blockLen == 0 { // end mark
			break
		}
		size := int64(blockLen & 0x7fffffff)
		if err := c.Skip(size); err != nil {
			return 0, err
		}
		if blockChecksums {
			if err := c.Skip(4); err != nil {
				return 0, err
			}
		}
	}
	if contentChecksum {
		if err := c.Skip(4); err != nil {
			return 0, err
		}
	}
	return c.Pos(), nil
}
