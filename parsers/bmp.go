// Copyright 2026 The Unearth Authors
// SPDX-License-Identifier: Apache-2.0

package parsers

import (
	"bytes"

	"github.com/unearth-project/unearth/lib/region"
	"github.com/unearth-project/unearth/scan"
)

// dibHeaderSizes are the known BITMAPCOREHEADER/BITMAPINFOHEADER
// family sizes. Anything else after the file header is not a BMP.
var dibHeaderSizes = map[uint32]bool{
	12:  true, // BITMAPCOREHEADER
	16:  true, // OS22XBITMAPHEADER (short)
	40:  true, // BITMAPINFOHEADER
	52:  true, // BITMAPV2INFOHEADER
	56:  true, // BITMAPV3INFOHEADER
	64:  true, // OS22XBITMAPHEADER
	108: true, // BITMAPV4HEADER
	124: true, // BITMAPV5HEADER
}

const bmpFileHeaderSize = 14

type bmpParser struct{}

// BMP recognizes Windows bitmap images: "BM" file header, a known
// DIB header size, and internally consistent length and pixel-array
// offset fields. The declared file length is the consumed footprint.
func BMP() scan.Parser { return bmpParser{} }

func (bmpParser) Name() string { return "bmp" }

func (bmpParser) Signatures() []scan.Signature {
	return []scan.Signature{{Offset: 0, Pattern: []byte("BM")}}
}

func (bmpParser) Parse(c *region.Cursor) (scan.Parsed, error) {
	magic, err := c.ReadBytes(2)
	if err != nil {
		return nil, err
	}
	if !bytes.Equal(magic, []byte("BM")) {
		return nil, scan.Mismatchf("bad magic %q", magic)
	}
	fileLength, err := c.Uint32LE()
	if err != nil {
		return nil, err
	}
	if err := c.Skip(4); err != nil { // reserved
		return nil, err
	}
	pixelOffset, err := c.Uint32LE()
	if err != nil {
		return nil, err
	}
	dibSize, err := c.Uint32LE()
	if err != nil {
		return nil, err
	}

	if !dibHeaderSizes[dibSize] {
		return nil, scan.Mismatchf("unknown DIB header size %d", dibSize)
	}
	headerEnd := uint32(bmpFileHeaderSize) + dibSize
	if fileLength < headerEnd {
		return nil, scan.Mismatchf("declared length %d shorter than headers", fileLength)
	}
	if pixelOffset < headerEnd || pixelOffset > fileLength {
		return nil, scan.Mismatchf("pixel array offset %d outside [%d, %d]",
			pixelOffset, headerEnd, fileLength)
	}
	if int64(fileLength) > c.Base().Len {
		return nil, scan.Mismatchf("declared length %d exceeds available %d",
			fileLength, c.Base().Len)
	}

	metadata := map[string]any{"dib_header_size": int64(dibSize)}
	if dibSize >= 40 {
		width, err := c.Uint32LE()
		if err != nil {
			return nil, err
		}
		height, err := c.Uint32LE()
		if err != nil {
			return nil, err
		}
		if err := c.Skip(2); err != nil { // planes
			return nil, err
		}
		depth, err := c.Uint16LE()
		if err != nil {
			return nil, err
		}
		metadata["width"] = int64(int32(width))
		metadata["height"] = int64(int32(height))
		metadata["bits_per_pixel"] = int64(depth)
	}

	return &bmpParsed{length: int64(fileLength), metadata: metadata}, nil
}

type bmpParsed struct {
	length   int64
	metadata map[string]any
}

func (p *bmpParsed) ConsumedLength() int64 { return p.length }
func (p *bmpParsed) Children() []scan.Child {
	return nil
}
func (p *bmpParsed) Describe() scan.Description {
	return scan.Description{
		Labels:   []string{"bmp", "graphics"},
		Metadata: p.metadata,
	}
}
