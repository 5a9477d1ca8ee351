// Copyright 2026 The Unearth Authors
// SPDX-License-Identifier: Apache-2.0

package scan

import (
	"bytes"
	"fmt"
	"sort"

	"github.com/unearth-project/unearth/lib/region"
)

// scanChunkSize is the read granularity for signature sweeps. Large
// enough to amortize read overhead, small enough that a sweep over a
// multi-gigabyte image never holds more than one chunk in memory per
// worker.
const scanChunkSize = 256 * 1024

// sigEntry is one registered signature, flattened for lookup. A
// pattern found at absolute position p implies a candidate format
// start at p - relOffset.
type sigEntry struct {
	pattern   []byte
	relOffset int64
	ordinal   int // registry priority order
}

// signatureIndex answers "which variants could start at this offset"
// without consulting every registered format. Entries are grouped by
// the first byte of their pattern, so a sweep position is checked
// only against the formats whose magic begins with the byte actually
// present there.
//
// Built once by [Registry.Freeze]; read-only afterwards.
type signatureIndex struct {
	byFirst [256][]sigEntry

	// fallbacks are variants with zero signatures, tried only at the
	// start of a buffer window, in registration order.
	fallbacks []int

	// minSpan is the smallest (offset + pattern length) over all
	// signatures: a region shorter than this cannot contain any
	// signature, so it is skipped without a match attempt.
	minSpan int64
}

func buildSignatureIndex(parsers []Parser) *signatureIndex {
	index := &signatureIndex{minSpan: 1}
	first := true
	for ordinal, p := range parsers {
		signatures := p.Signatures()
		if len(signatures) == 0 {
			index.fallbacks = append(index.fallbacks, ordinal)
			continue
		}
		for _, sig := range signatures {
			entry := sigEntry{
				pattern:   append([]byte(nil), sig.Pattern...),
				relOffset: sig.Offset,
				ordinal:   ordinal,
			}
			index.byFirst[entry.pattern[0]] = append(index.byFirst[entry.pattern[0]], entry)

			span := sig.Offset + int64(len(sig.Pattern))
			if first || span < index.minSpan {
				index.minSpan = span
				first = false
			}
		}
	}
	return index
}

// candidate is a hypothesized format start: variant `ordinal` might
// begin at absolute offset `start`.
type candidate struct {
	start   int64
	ordinal int
}

// collect sweeps the window for signature occurrences and returns
// the candidates in dispatch order: ascending start offset, and
// registration order among equal starts. The ordering is what makes
// scan output reproducible, so it must not depend on chunking or on
// which signature of a variant fired.
//
// Only candidates whose signature lies entirely inside the window
// are returned; a pattern crossing the window edge belongs to the
// neighboring task, if any.
func (x *signatureIndex) collect(buf *region.Buffer, window region.Region) ([]candidate, error) {
	var found []candidate

	chunk := make([]byte, scanChunkSize)
	for base := window.Off; base < window.End(); base += scanChunkSize {
		n := window.End() - base
		if n > scanChunkSize {
			n = scanChunkSize
		}
		if _, err := buf.ReadAt(chunk[:n], base); err != nil {
			return nil, fmt.Errorf("signature sweep at %d: %w", base, err)
		}

		for i := int64(0); i < n; i++ {
			entries := x.byFirst[chunk[i]]
			if len(entries) == 0 {
				continue
			}
			patternPos := base + i
			for _, entry := range entries {
				start := patternPos - entry.relOffset
				patternEnd := patternPos + int64(len(entry.pattern))
				if start < window.Off || patternEnd > window.End() {
					continue
				}
				if !x.patternAt(buf, chunk[:n], base, patternPos, entry.pattern) {
					continue
				}
				found = append(found, candidate{start: start, ordinal: entry.ordinal})
			}
		}
	}

	sort.SliceStable(found, func(i, j int) bool {
		if found[i].start != found[j].start {
			return found[i].start < found[j].start
		}
		return found[i].ordinal < found[j].ordinal
	})

	// Two signatures of the same variant can fire at the same start;
	// dispatch should try that variant once.
	deduped := found[:0]
	for _, c := range found {
		if len(deduped) > 0 && deduped[len(deduped)-1] == c {
			continue
		}
		deduped = append(deduped, c)
	}
	return deduped, nil
}

// patternAt verifies a full pattern match at the absolute position,
// using the in-memory chunk when the pattern lies inside it and
// falling back to a buffer read when it crosses the chunk edge.
func (x *signatureIndex) patternAt(buf *region.Buffer, chunk []byte, base, pos int64, pattern []byte) bool {
	i := pos - base
	if i+int64(len(pattern)) <= int64(len(chunk)) {
		return bytes.Equal(chunk[i:i+int64(len(pattern))], pattern)
	}
	data := make([]byte, len(pattern))
	if _, err := buf.ReadAt(data, pos); err != nil {
		return false
	}
	return bytes.Equal(data, pattern)
}
