// Copyright 2026 The Unearth Authors
// SPDX-License-Identifier: Apache-2.0

package parsers

import (
	"bytes"

	"github.com/unearth-project/unearth/lib/region"
	"github.com/unearth-project/unearth/scan"
)

// Android sparse image constants, from the AOSP libsparse
// sparse_format.h layout. Note this is the sparse *image* format,
// not the sparse data format used in OTA payloads.
const (
	sparseMagic = 0xed26ff3a

	sparseChunkRaw      = 0xcac1
	sparseChunkFill     = 0xcac2
	sparseChunkDontCare = 0xcac3
	sparseChunkCRC32    = 0xcac4
)

type sparseParser struct{}

// AndroidSparse recognizes Android sparse images and expands them
// into the raw device image as a synthesized child: raw chunks are
// copied, fill chunks repeat their 4-byte pattern, don't-care chunks
// become zero blocks.
func AndroidSparse() scan.Parser { return sparseParser{} }

func (sparseParser) Name() string { return "androidsparse" }

func (sparseParser) Signatures() []scan.Signature {
	return []scan.Signature{{Offset: 0, Pattern: []byte{0x3a, 0xff, 0x26, 0xed}}}
}

func (sparseParser) Parse(c *region.Cursor) (scan.Parsed, error) {
	magic, err := c.Uint32LE()
	if err != nil {
		return nil, err
	}
	if magic != sparseMagic {
		return nil, scan.Mismatchf("bad magic %#x", magic)
	}
	major, err := c.Uint16LE()
	if err != nil {
		return nil, err
	}
	if _, err := c.Uint16LE(); err != nil { // minor version
		return nil, err
	}
	fileHeaderSize, err := c.Uint16LE()
	if err != nil {
		return nil, err
	}
	chunkHeaderSize, err := c.Uint16LE()
	if err != nil {
		return nil, err
	}
	blockSize, err := c.Uint32LE()
	if err != nil {
		return nil, err
	}
	totalBlocks, err := c.Uint32LE()
	if err != nil {
		return nil, err
	}
	totalChunks, err := c.Uint32LE()
	if err != nil {
		return nil, err
	}
	if _, err := c.Uint32LE(); err != nil { // image checksum
		return nil, err
	}

	if major != 1 {
		return nil, scan.Mismatchf("unsupported major version %d", major)
	}
	if blockSize == 0 || blockSize%4 != 0 {
		return nil, scan.Mismatchf("unsupported block size %d", blockSize)
	}
	if fileHeaderSize < 28 || chunkHeaderSize < 12 {
		return nil, scan.Mismatchf("implausible header sizes %d/%d",
			fileHeaderSize, chunkHeaderSize)
	}
	if err := c.Seek(int64(fileHeaderSize)); err != nil {
		return nil, err
	}

	expandedSize := int64(totalBlocks) * int64(blockSize)
	var expanded *bytes.Buffer
	if expandedSize <= maxSynthesized {
		expanded = bytes.NewBuffer(make([]byte, 0, expandedSize))
	}

	var seenBlocks int64
	for i := uint32(0); i < totalChunks; i++ {
		chunkType, err := c.Uint16LE()
		if err != nil {
			return nil, err
		}
		if _, err := c.Uint16LE(); err != nil { // reserved
			return nil, err
		}
		chunkBlocks, err := c.Uint32LE()
		if err != nil {
			return nil, err
		}
		totalSize, err := c.Uint32LE()
		if err != nil {
			return nil, err
		}
		if int64(totalSize) < int64(chunkHeaderSize) {
			return nil, scan.Mismatchf("chunk %d total size %d below header size", i, totalSize)
		}
		bodySize := int64(totalSize) - int64(chunkHeaderSize)

		// Data chunks draw from the header's declared block total.
		// The running check bounds expansion by expandedSize, which
		// was already tested against the synthesis cap.
		if chunkType != sparseChunkCRC32 {
			seenBlocks += int64(chunkBlocks)
			if seenBlocks > int64(totalBlocks) {
				return nil, scan.Mismatchf("chunk %d: block count overruns declared total %d",
					i, totalBlocks)
			}
		}

		switch chunkType {
		case sparseChunkRaw:
			if bodySize != int64(chunkBlocks)*int64(blockSize) {
				return nil, scan.Mismatchf("chunk %d: raw body %d != %d blocks", i, bodySize, chunkBlocks)
			}
			if expanded != nil {
				body, err := c.ReadBytes(bodySize)
				if err != nil {
					return nil, err
				}
				expanded.Write(body)
			} else if err := c.Skip(bodySize); err != nil {
				return nil, err
			}
		case sparseChunkFill:
			if bodySize != 4 {
				return nil, scan.Mismatchf("chunk %d: fill body %d bytes, want 4", i, bodySize)
			}
			pattern, err := c.ReadBytes(4)
			if err != nil {
				return nil, err
			}
			if expanded != nil {
				block := bytes.Repeat(pattern, int(blockSize)/4)
				for b := uint32(0); b < chunkBlocks; b++ {
					expanded.Write(block)
				}
			}
		case sparseChunkDontCare:
			if bodySize != 0 {
				return nil, scan.Mismatchf("chunk %d: dont-care body %d bytes, want 0", i, bodySize)
			}
			if expanded != nil {
				expanded.Write(make([]byte, int64(chunkBlocks)*int64(blockSize)))
			}
		case sparseChunkCRC32:
			if err := c.Skip(bodySize); err != nil {
				return nil, err
			}
		default:
			return nil, scan.Mismatchf("chunk %d: invalid type %#x", i, chunkType)
		}
	}

	if seenBlocks != int64(totalBlocks) {
		return nil, scan.Mismatchf("chunks cover %d blocks, header declares %d",
			seenBlocks, totalBlocks)
	}

	parsed := &sparseParsed{
		consumed: c.Pos(),
		metadata: map[string]any{
			"block_size":   int64(blockSize),
			"total_blocks": int64(totalBlocks),
			"total_chunks": int64(totalChunks),
		},
	}
	if expanded != nil {
		parsed.image = expanded.Bytes()
	} else {
		parsed.metadata["expanded_size"] = expandedSize
		parsed.metadata["expansion_skipped"] = true
	}
	return parsed, nil
}

type sparseParsed struct {
	consumed int64
	image    []byte
	metadata map[string]any
}

func (p *sparseParsed) ConsumedLength() int64 { return p.consumed }

func (p *sparseParsed) Children() []scan.Child {
	if len(p.image) == 0 {
		return nil
	}
	return []scan.Child{{PathHint: "sparse.out", Data: p.image}}
}

func (p *sparseParsed) Describe() scan.Description {
	return scan.Description{
		Labels:   []string{"android", "androidsparse"},
		Metadata: p.metadata,
	}
}
