// Copyright 2026 The Unearth Authors
// SPDX-License-Identifier: Apache-2.0

// Package report turns a completed scan session into a serialized
// result document: a session header (input identity, engine
// configuration, failure summary) and the artifact tree flattened
// into a stable node schema. JSON output is for people and tools;
// CBOR output is deterministic and suitable for hashing or storage.
package report

import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/unearth-project/unearth/lib/binhash"
	"github.com/unearth-project/unearth/lib/codec"
	"github.com/unearth-project/unearth/lib/region"
	"github.com/unearth-project/unearth/lib/version"
	"github.com/unearth-project/unearth/scan"
)

// Node is one artifact in the serialized tree.
type Node struct {
	PathHint string         `json:"path_hint" cbor:"path_hint"`
	Offset   int64          `json:"offset" cbor:"offset"`
	Length   int64          `json:"length" cbor:"length"`
	Format   string         `json:"format,omitempty" cbor:"format,omitempty"`
	Labels   []string       `json:"labels" cbor:"labels"`
	Metadata map[string]any `json:"metadata,omitempty" cbor:"metadata,omitempty"`
	Children []*Node        `json:"children,omitempty" cbor:"children,omitempty"`

	// Incomplete marks nodes whose content was never scanned because
	// the session was cancelled.
	Incomplete bool `json:"incomplete,omitempty" cbor:"incomplete,omitempty"`
}

// EngineConfig echoes the effective engine options of the session,
// so a document records everything needed to reproduce it against
// the same input and registry.
type EngineConfig struct {
	Workers            int    `json:"workers" cbor:"workers"`
	MaxDepth           int    `json:"max_depth" cbor:"max_depth"`
	MinRegionSize      int64  `json:"min_region_size" cbor:"min_region_size"`
	DedupByContentHash bool   `json:"dedup_by_content_hash" cbor:"dedup_by_content_hash"`
	GapPolicy          string `json:"gap_policy" cbor:"gap_policy"`
	PoisonThreshold    int    `json:"poison_threshold" cbor:"poison_threshold"`
}

// Document is a complete serialized session.
type Document struct {
	// Tool is the producing engine version string.
	Tool string `json:"tool" cbor:"tool"`

	// ScannedAt is the UTC completion time, RFC 3339.
	ScannedAt string `json:"scanned_at" cbor:"scanned_at"`

	// RootHash is the keyed BLAKE3 hash of the input buffer, the
	// session's identity in the result catalog.
	RootHash string `json:"root_hash" cbor:"root_hash"`

	// RootSize is the input buffer length in bytes.
	RootSize int64 `json:"root_size" cbor:"root_size"`

	// Engine echoes the session's effective configuration.
	Engine EngineConfig `json:"engine" cbor:"engine"`

	Incomplete bool           `json:"incomplete,omitempty" cbor:"incomplete,omitempty"`
	Failures   []scan.Failure `json:"failures,omitempty" cbor:"failures,omitempty"`
	Poisoned   []string       `json:"poisoned,omitempty" cbor:"poisoned,omitempty"`

	Root *Node `json:"root" cbor:"root"`
}

// Build flattens a session result over its input buffer into a
// document. The buffer is re-read to compute the root hash; the tree
// itself is converted without touching the buffer.
func Build(result *scan.Result, buf *region.Buffer) (*Document, error) {
	reader, err := buf.SectionReader(buf.Whole())
	if err != nil {
		return nil, fmt.Errorf("report: reading input: %w", err)
	}
	rootHash, err := binhash.RegionReader(reader)
	if err != nil {
		return nil, fmt.Errorf("report: hashing input: %w", err)
	}

	gapPolicy := "keep"
	if result.Options.GapRescan {
		gapPolicy = "rescan"
	}
	return &Document{
		Tool:      "unearth " + version.Info(),
		ScannedAt: time.Now().UTC().Format(time.RFC3339),
		RootHash:  binhash.Format(rootHash),
		RootSize:  buf.Size(),
		Engine: EngineConfig{
			Workers:            result.Options.Workers,
			MaxDepth:           result.Options.MaxDepth,
			MinRegionSize:      result.Options.MinRegionSize,
			DedupByContentHash: result.Options.DedupByContentHash,
			GapPolicy:          gapPolicy,
			PoisonThreshold:    result.Options.PoisonThreshold,
		},
		Incomplete: result.Incomplete,
		Failures:   result.Failures,
		Poisoned:   result.Poisoned,
		Root:       convert(result.Root),
	}, nil
}

func convert(a *scan.Artifact) *Node {
	node := &Node{
		PathHint:   a.PathHint,
		Offset:     a.Region.Off,
		Length:     a.Region.Len,
		Format:     a.Format,
		Labels:     a.Labels,
		Metadata:   a.Metadata,
		Incomplete: a.Incomplete,
	}
	if node.Labels == nil {
		node.Labels = []string{}
	}
	for _, child := range a.Children {
		node.Children = append(node.Children, convert(child))
	}
	return node
}

// WriteJSON writes the document as indented JSON.
func WriteJSON(w io.Writer, doc *Document) error {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(doc); err != nil {
		return fmt.Errorf("report: encoding json: %w", err)
	}
	return nil
}

// WriteCBOR writes the document in deterministic CBOR: the same
// session always serializes to the same bytes (modulo the
// timestamp), so documents can be content-addressed.
func WriteCBOR(w io.Writer, doc *Document) error {
	data, err := codec.Marshal(doc)
	if err != nil {
		return fmt.Errorf("report: encoding cbor: %w", err)
	}
	if _, err := w.Write(data); err != nil {
		return fmt.Errorf("report: writing cbor: %w", err)
	}
	return nil
}

// ReadJSON parses a JSON document, for the tree renderer.
func ReadJSON(r io.Reader) (*Document, error) {
	var doc Document
	if err := json.NewDecoder(r).Decode(&doc); err != nil {
		return nil, fmt.Errorf("report: decoding json: %w", err)
	}
	return &doc, nil
}
