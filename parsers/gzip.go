// Copyright 2026 The Unearth Authors
// SPDX-License-Identifier: Apache-2.0

package parsers

import (
	"bytes"
	"io"

	"github.com/klauspost/compress/gzip"

	"github.com/unearth-project/unearth/lib/region"
	"github.com/unearth-project/unearth/scan"
)

type gzipParser struct{}

// Gzip recognizes a single gzip member and yields the decompressed
// stream as a synthesized child. Only the first member is claimed;
// a concatenated follow-up member is a new candidate at its own
// offset.
func Gzip() scan.Parser { return gzipParser{} }

func (gzipParser) Name() string { return "gzip" }

func (gzipParser) Signatures() []scan.Signature {
	// Magic plus the deflate compression method byte.
	return []scan.Signature{{Offset: 0, Pattern: []byte{0x1f, 0x8b, 0x08}}}
}

func (gzipParser) Parse(c *region.Cursor) (scan.Parsed, error) {
	// The counting reader implements io.ByteReader, which keeps the
	// flate decoder from reading ahead: after the member trailer the
	// count is the exact compressed footprint.
	counter := &countingReader{r: c.Reader()}
	zr, err := gzip.NewReader(counter)
	if err != nil {
		return nil, scan.Mismatchf("gzip header: %v", err)
	}
	zr.Multistream(false)

	var out bytes.Buffer
	n, err := io.Copy(&out, io.LimitReader(zr, maxSynthesized))
	if err != nil {
		return nil, scan.Mismatchf("gzip stream: %v", err)
	}
	truncated := false
	if n == maxSynthesized {
		// Keep draining so the consumed length stays exact; the
		// payload itself is too large to materialize.
		if _, err := io.Copy(io.Discard, zr); err != nil {
			return nil, scan.Mismatchf("gzip stream: %v", err)
		}
		truncated = true
	}
	if err := zr.Close(); err != nil {
		return nil, scan.Mismatchf("gzip trailer: %v", err)
	}

	metadata := map[string]any{}
	if zr.Header.Name != "" {
		metadata["original_name"] = zr.Header.Name
	}
	if !zr.Header.ModTime.IsZero() {
		metadata["mtime"] = zr.Header.ModTime.UTC().Format("2006-01-02T15:04:05Z")
	}

	parsed := &streamParsed{
		consumed: counter.n,
		labels:   []string{"gzip", "compressed"},
		metadata: metadata,
		hint:     "gzip.out",
	}
	if hint := zr.Header.Name; hint != "" && safeHint(hint) {
		parsed.hint = hint
	}
	if truncated {
		metadata["expansion_skipped"] = true
	} else {
		parsed.data = out.Bytes()
	}
	return parsed, nil
}

// streamParsed is the shared parsed state for single-payload
// compressed formats.
type streamParsed struct {
	consumed int64
	data     []byte
	hint     string
	labels   []string
	metadata map[string]any
}

func (p *streamParsed) ConsumedLength() int64 { return p.consumed }

func (p *streamParsed) Children() []scan.Child {
	if len(p.data) == 0 {
		return nil
	}
	return []scan.Child{{PathHint: p.hint, Data: p.data}}
}

func (p *streamParsed) Describe() scan.Description {
	metadata := p.metadata
	if len(metadata) == 0 {
		metadata = nil
	}
	return scan.Description{Labels: p.labels, Metadata: metadata}
}

// countingReader counts bytes handed out. ReadByte makes it a
// flate.Reader so decompressors consume exactly what they decode.
type countingReader struct {
	r io.Reader
	n int64
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.n += int64(n)
	return n, err
}

func (c *countingReader) ReadByte() (byte, error) {
	var one [1]byte
	n, err := io.ReadFull(c.r, one[:])
	c.n += int64(n)
	if err != nil {
		return 0, err
	}
	return one[0], nil
}

// safeHint rejects member names that would escape or confuse the
// result path: absolute paths and parent references.
func safeHint(name string) bool {
	if len(name) == 0 || name[0] == '/' {
		return false
	}
	for _, part := range bytes.Split([]byte(name), []byte{'/'}) {
		if string(part) == ".." || len(part) == 0 {
			return false
		}
	}
	return true
}
