// Copyright 2026 The Unearth Authors
// SPDX-License-Identifier: Apache-2.0

package parsers

import (
	"bytes"

	"github.com/unearth-project/unearth/lib/region"
	"github.com/unearth-project/unearth/scan"
)

// Huawei boot image layout: a 76-byte meta header (magic, header
// size, version, image version string) followed by a partition table
// of 80-byte entries (name, offset, size). The table ends at the
// first all-zero entry or when the declared partitions begin.
const (
	hwMetaHeaderSize = 76
	hwEntrySize      = 80
	hwEntryNameSize  = 72
)

type hwBootParser struct{}

// HuaweiBoot recognizes Huawei Android boot images and extracts each
// named partition as a zero-copy child region.
func HuaweiBoot() scan.Parser { return hwBootParser{} }

func (hwBootParser) Name() string { return "androidboothuawei" }

func (hwBootParser) Signatures() []scan.Signature {
	return []scan.Signature{{Offset: 0, Pattern: []byte{0x3c, 0xd6, 0x1a, 0xce}}}
}

type hwPartition struct {
	name   string
	offset int64
	size   int64
}

func (hwBootParser) Parse(c *region.Cursor) (scan.Parsed, error) {
	magic, err := c.ReadBytes(4)
	if err != nil {
		return nil, err
	}
	if !bytes.Equal(magic, []byte{0x3c, 0xd6, 0x1a, 0xce}) {
		return nil, scan.Mismatchf("bad magic % x", magic)
	}
	headerSize, err := c.Uint32LE()
	if err != nil {
		return nil, err
	}
	if headerSize != hwMetaHeaderSize {
		return nil, scan.Mismatchf("meta header size %d, want %d", headerSize, hwMetaHeaderSize)
	}
	if err := c.Seek(hwMetaHeaderSize); err != nil {
		return nil, err
	}

	var partitions []hwPartition
	tableEnd := int64(hwMetaHeaderSize)
	firstData := int64(0)
	for c.Remaining() >= hwEntrySize && (firstData == 0 || c.Pos()+hwEntrySize <= firstData) {
		raw, err := c.ReadBytes(hwEntrySize)
		if err != nil {
			return nil, err
		}
		name, ok := hwEntryName(raw[:hwEntryNameSize])
		if !ok {
			return nil, scan.Mismatchf("partition %d has a non-ASCII name", len(partitions))
		}
		offset := int64(uint32(raw[72]) | uint32(raw[73])<<8 | uint32(raw[74])<<16 | uint32(raw[75])<<24)
		size := int64(uint32(raw[76]) | uint32(raw[77])<<8 | uint32(raw[78])<<16 | uint32(raw[79])<<24)

		if name == "" && offset == 0 && size == 0 {
			break
		}
		if size > 0 && offset < hwMetaHeaderSize {
			return nil, scan.Mismatchf("partition %q overlaps the meta header", name)
		}
		partitions = append(partitions, hwPartition{name: name, offset: offset, size: size})
		tableEnd = c.Pos()
		if size > 0 && (firstData == 0 || offset < firstData) {
			firstData = offset
		}
	}
	if len(partitions) == 0 {
		return nil, scan.Mismatchf("empty partition table")
	}

	consumed := tableEnd
	for _, p := range partitions {
		if end := p.offset + p.size; p.size > 0 && end > consumed {
			consumed = end
		}
	}
	if consumed > c.Base().Len {
		return nil, scan.Mismatchf("partitions end at %d, only %d available", consumed, c.Base().Len)
	}
	for _, p := range partitions {
		if p.size > 0 && p.offset < tableEnd {
			return nil, scan.Mismatchf("partition %q overlaps the partition table", p.name)
		}
	}

	return &hwBootParsed{consumed: consumed, partitions: partitions}, nil
}

// hwEntryName decodes a NUL-padded entry name, rejecting anything
// that is not printable ASCII: a garbage table is how a coincidental
// magic gets rejected.
func hwEntryName(raw []byte) (string, bool) {
	end := bytes.IndexByte(raw, 0)
	if end < 0 {
		end = len(raw)
	}
	name := raw[:end]
	for _, b := range name {
		if b < 0x20 || b > 0x7e {
			return "", false
		}
	}
	return string(name), true
}

type hwBootParsed struct {
	consumed   int64
	partitions []hwPartition
}

func (p *hwBootParsed) ConsumedLength() int64 { return p.consumed }

func (p *hwBootParsed) Children() []scan.Child {
	var children []scan.Child
	for _, part := range p.partitions {
		if part.size == 0 || part.name == "" {
			continue
		}
		r := region.Region{Off: part.offset, Len: part.size}
		children = append(children, scan.Child{PathHint: part.name, Region: &r})
	}
	return children
}

func (p *hwBootParsed) Describe() scan.Description {
	var table []any
	for _, part := range p.partitions {
		if part.size == 0 {
			continue
		}
		table = append(table, map[string]any{
			"name":   part.name,
			"offset": part.offset,
			"size":   part.size,
		})
	}
	return scan.Description{
		Labels:   []string{"android", "bootloader", "huawei"},
		Metadata: map[string]any{"partitions": table},
	}
}
