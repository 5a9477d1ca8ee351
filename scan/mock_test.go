// Copyright 2026 The Unearth Authors
// SPDX-License-Identifier: Apache-2.0

package scan

import (
	"bytes"
	"encoding/binary"
	"testing"

	"github.com/unearth-project/unearth/lib/region"
)

// fakeParser adapts a closure to the Parser interface so tests can
// define throwaway formats inline.
type fakeParser struct {
	name  string
	sigs  []Signature
	parse func(*region.Cursor) (Parsed, error)
}

func (p *fakeParser) Name() string            { return p.name }
func (p *fakeParser) Signatures() []Signature { return p.sigs }
func (p *fakeParser) Parse(c *region.Cursor) (Parsed, error) {
	return p.parse(c)
}

// fakeParsed is a literal Parsed state.
type fakeParsed struct {
	consumed int64
	children []Child
	desc     Description
}

func (p *fakeParsed) ConsumedLength() int64 { return p.consumed }
func (p *fakeParsed) Children() []Child     { return p.children }
func (p *fakeParsed) Describe() Description { return p.desc }

// carvedParsed adds a Carve to fakeParsed.
type carvedParsed struct {
	fakeParsed
	carve region.Region
}

func (p *carvedParsed) Carve() region.Region { return p.carve }

// The blob test format: "BL" magic, big-endian 16-bit payload
// length, payload. Total footprint 4 + length bytes.
func blobParser() Parser {
	return &fakeParser{
		name: "blob",
		sigs: []Signature{{Offset: 0, Pattern: []byte("BL")}},
		parse: func(c *region.Cursor) (Parsed, error) {
			magic, err := c.ReadBytes(2)
			if err != nil {
				return nil, err
			}
			if !bytes.Equal(magic, []byte("BL")) {
				return nil, Mismatchf("bad magic %q", magic)
			}
			length, err := c.Uint16BE()
			if err != nil {
				return nil, err
			}
			consumed := 4 + int64(length)
			if consumed > c.Base().Len {
				return nil, Mismatchf("payload length %d exceeds region", length)
			}
			return &fakeParsed{
				consumed: consumed,
				desc:     Description{Labels: []string{"blob"}},
			}, nil
		},
	}
}

// blobBytes builds a valid blob instance with the given payload size.
func blobBytes(payload int) []byte {
	data := make([]byte, 4+payload)
	copy(data, "BL")
	binary.BigEndian.PutUint16(data[2:], uint16(payload))
	for i := 4; i < len(data); i++ {
		data[i] = 0x11
	}
	return data
}

// The pair test container: "C2" magic, two big-endian 16-bit child
// lengths, then the two children back to back.
func pairParser() Parser {
	return &fakeParser{
		name: "pair",
		sigs: []Signature{{Offset: 0, Pattern: []byte("C2")}},
		parse: func(c *region.Cursor) (Parsed, error) {
			magic, err := c.ReadBytes(2)
			if err != nil {
				return nil, err
			}
			if !bytes.Equal(magic, []byte("C2")) {
				return nil, Mismatchf("bad magic %q", magic)
			}
			a, err := c.Uint16BE()
			if err != nil {
				return nil, err
			}
			b, err := c.Uint16BE()
			if err != nil {
				return nil, err
			}
			consumed := 6 + int64(a) + int64(b)
			if consumed > c.Base().Len {
				return nil, Mismatchf("children exceed region")
			}
			first := region.Region{Off: 6, Len: int64(a)}
			second := region.Region{Off: 6 + int64(a), Len: int64(b)}
			return &fakeParsed{
				consumed: consumed,
				children: []Child{
					{PathHint: "first", Region: &first},
					{PathHint: "second", Region: &second},
				},
				desc: Description{Labels: []string{"container"}},
			}, nil
		},
	}
}

func pairBytes(first, second []byte) []byte {
	data := make([]byte, 6, 6+len(first)+len(second))
	copy(data, "C2")
	binary.BigEndian.PutUint16(data[2:], uint16(len(first)))
	binary.BigEndian.PutUint16(data[4:], uint16(len(second)))
	data = append(data, first...)
	return append(data, second...)
}

// The self test format embeds its own full footprint as its only
// child: a crafted cyclic container that recurses forever unless the
// depth bound or cycle detection stops it.
func selfParser() Parser {
	return &fakeParser{
		name: "self",
		sigs: []Signature{{Offset: 0, Pattern: []byte("SF")}},
		parse: func(c *region.Cursor) (Parsed, error) {
			magic, err := c.ReadBytes(2)
			if err != nil {
				return nil, err
			}
			if !bytes.Equal(magic, []byte("SF")) {
				return nil, Mismatchf("bad magic %q", magic)
			}
			whole := region.Region{Off: 0, Len: c.Base().Len}
			return &fakeParsed{
				consumed: c.Base().Len,
				children: []Child{{PathHint: "inner", Region: &whole}},
			}, nil
		},
	}
}

// The text fallback format: no signatures, accepts a region only if
// every byte is printable ASCII.
func textParser() Parser {
	return &fakeParser{
		name: "text",
		parse: func(c *region.Cursor) (Parsed, error) {
			data, err := c.ReadBytes(c.Remaining())
			if err != nil {
				return nil, err
			}
			for _, b := range data {
				if (b < 0x20 || b > 0x7e) && b != '\n' {
					return nil, Mismatchf("non-printable byte %#x", b)
				}
			}
			return &fakeParsed{
				consumed: int64(len(data)),
				desc:     Description{Labels: []string{"text"}},
			}, nil
		},
	}
}

func mustRegistry(t *testing.T, parsers ...Parser) *Registry {
	t.Helper()
	registry := NewRegistry()
	for _, p := range parsers {
		if err := registry.Register(p); err != nil {
			t.Fatalf("Register(%s): %v", p.Name(), err)
		}
	}
	registry.Freeze()
	return registry
}

func runScan(t *testing.T, registry *Registry, data []byte, opts Options) *Result {
	t.Helper()
	session, err := New(registry, opts)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	result, err := session.Run(t.Context(), region.FromBytes(data))
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	return result
}

// flatten renders the tree into comparable strings, one per node in
// walk order.
func flatten(root *Artifact) []string {
	var lines []string
	root.Walk(func(node *Artifact, depth int) {
		lines = append(lines, nodeLine(node, depth))
	})
	return lines
}

func nodeLine(node *Artifact, depth int) string {
	return string(rune('0'+depth)) + " " + node.PathHint + " " +
		node.Region.String() + " format=" + node.Format +
		" labels=" + labelString(node.Labels)
}

func labelString(labels []string) string {
	out := ""
	for i, l := range labels {
		if i > 0 {
			out += ","
		}
		out += l
	}
	return out
}
