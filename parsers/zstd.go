// Copyright 2026 The Unearth Authors
// SPDX-License-Identifier: Apache-2.0

package parsers

import (
	"errors"

	"github.com/klauspost/compress/zstd"

	"github.com/unearth-project/unearth/lib/region"
	"github.com/unearth-project/unearth/scan"
)

type zstdParser struct {
	decoder *zstd.Decoder
}

// Zstd recognizes a single zstandard frame. The frame is first
// walked structurally (block headers only) to establish the exact
// compressed footprint, then decompressed for the child; a frame
// that walks but does not decode is a mismatch, not a fault.
func Zstd() scan.Parser {
	decoder, err := zstd.NewReader(nil, zstd.WithDecoderMaxMemory(maxSynthesized))
	if err != nil {
		// Only reachable with broken options.
		panic(err)
	}
	return &zstdParser{decoder: decoder}
}

func (*zstdParser) Name() string { return "zstd" }

func (*zstdParser) Signatures() []scan.Signature {
	return []scan.Signature{{Offset: 0, Pattern: []byte{0x28, 0xb5, 0x2f, 0xfd}}}
}

func (p *zstdParser) Parse(c *region.Cursor) (scan.Parsed, error) {
	consumed, err := walkZstdFrame(c)
	if err != nil {
		return nil, err
	}

	frame, err := c.PeekBytes(0, consumed)
	if err != nil {
		return nil, err
	}
	parsed := &streamParsed{
		consumed: consumed,
		labels:   []string{"zstd", "compressed"},
		hint:     "zstd.out",
	}
	data, err := p.decoder.DecodeAll(frame, nil)
	switch {
	case errors.Is(err, zstd.ErrDecoderSizeExceeded):
		parsed.metadata = map[string]any{"expansion_skipped": true}
	case err != nil:
		return nil, scan.Mismatchf("zstd frame: %v", err)
	default:
		parsed.data = data
	}
	return parsed, nil
}

// walkZstdFrame steps over a zstandard frame using only the header
// and block-size fields, returning the total frame length from the
// region start.
func walkZstdFrame(c *region.Cursor) (int64, error) {
	magic, err := c.Uint32LE()
	if err != nil {
		return 0, err
	}
	if magic != 0xfd2fb528 {
		return 0, scan.Mismatchf("bad magic %#x", magic)
	}

	descriptor, err := c.Uint8()
	if err != nil {
		return 0, err
	}
	singleSegment := descriptor&0x20 != 0
	hasChecksum := descriptor&0x04 != 0
	if descriptor&0x08 != 0 {
		return 0, scan.Mismatchf("reserved frame header bit set")
	}

	if !singleSegment {
		if _, err := c.Uint8(); err != nil { // window descriptor
			return 0, err
		}
	}
	dictIDSizes := [4]int64{0, 1, 2, 4}
	if err := c.Skip(dictIDSizes[descriptor&0x03]); err != nil {
		return 0, err
	}
	contentSizes := [4]int64{0, 2, 4, 8}
	fcsSize := contentSizes[descriptor>>6]
	if descriptor>>6 == 0 && singleSegment {
		fcsSize = 1
	}
	if err := c.Skip(fcsSize); err != nil {
		return 0, err
	}

	for {
		header, err := c.ReadBytes(3)
		if err != nil {
			return 0, err
		}
		raw := uint32(header[0]) | uint32(header[1])<<8 | uint32(header[2])<<16
		last := raw&1 != 0
		blockType := (raw >> 1) & 3
		blockSize := int64(raw >> 3)

		switch blockType {
		case 0, 2: // raw, compressed
			if err := c.Skip(blockSize); err != nil {
				return 0, err
			}
		case 1: // RLE: one byte repeated blockSize times
			if err := c.Skip(1); err != nil {
				return 0, err
			}
		default:
			return 0, scan.Mismatchf("reserved block type")
		}
		if last {
			break
		}
	}

	if hasChecksum {
		if err := c.Skip(4); err != nil {
			return 0, err
		}
	}
	return c.Pos(), nil
}
