// Copyright 2026 The Unearth Authors
// SPDX-License-Identifier: Apache-2.0

package parsers

import (
	"archive/tar"
	"io"

	"github.com/unearth-project/unearth/lib/region"
	"github.com/unearth-project/unearth/scan"
)

type tarParser struct{}

// Tar recognizes ustar/GNU tar archives and exposes each regular
// member as a zero-copy child region: member data lives verbatim in
// the archive, so nothing is synthesized.
func Tar() scan.Parser { return tarParser{} }

func (tarParser) Name() string { return "tar" }

func (tarParser) Signatures() []scan.Signature {
	// "ustar" at the magic field of the first header block. Covers
	// POSIX ("ustar\x00") and GNU ("ustar ") archives.
	return []scan.Signature{{Offset: 257, Pattern: []byte("ustar")}}
}

func (tarParser) Parse(c *region.Cursor) (scan.Parsed, error) {
	sr := c.Reader()
	tr := tar.NewReader(sr)

	var children []scan.Child
	members := 0
	for {
		header, err := tr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			// A broken header mid-archive means this is not a valid
			// archive instance at all; claiming a prefix would split
			// members across a gap.
			return nil, scan.Mismatchf("tar header: %v", err)
		}
		members++

		// The reader's position after Next is the start of the
		// member's data.
		dataStart, err := sr.Seek(0, io.SeekCurrent)
		if err != nil {
			return nil, scan.Mismatchf("tar position: %v", err)
		}
		if header.Typeflag == tar.TypeReg && header.Size > 0 {
			r := region.Region{Off: dataStart, Len: header.Size}
			hint := header.Name
			if !safeHint(hint) {
				// The engine falls back to a positional name.
				hint = ""
			}
			children = append(children, scan.Child{PathHint: hint, Region: &r})
		}
	}
	if members == 0 {
		return nil, scan.Mismatchf("no members")
	}

	// Position after EOF covers the end-of-archive zero blocks.
	consumed, err := sr.Seek(0, io.SeekCurrent)
	if err != nil {
		return nil, scan.Mismatchf("tar position: %v", err)
	}

	return &tarParsed{consumed: consumed, children: children, members: members}, nil
}

type tarParsed struct {
	consumed int64
	children []scan.Child
	members  int
}

func (p *tarParsed) ConsumedLength() int64 { return p.consumed }
func (p *tarParsed) Children() []scan.Child {
	return p.children
}
func (p *tarParsed) Describe() scan.Description {
	return scan.Description{
		Labels:   []string{"tar", "archive"},
		Metadata: map[string]any{"members": int64(p.members)},
	}
}
