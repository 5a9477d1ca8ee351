// Copyright 2026 The Unearth Authors
// SPDX-License-Identifier: Apache-2.0

package report

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/unearth-project/unearth/lib/region"
	"github.com/unearth-project/unearth/scan"
)

func sampleResult() (*scan.Result, *region.Buffer) {
	root := &scan.Artifact{
		Region: region.Region{Off: 0, Len: 256},
		Children: []*scan.Artifact{
			{
				PathHint: "blob-0x0",
				Region:   region.Region{Off: 0, Len: 150},
				Format:   "blob",
				Labels:   []string{"blob"},
				Metadata: map[string]any{"flavor": "test"},
			},
			{
				PathHint: "unrecognized-0x96",
				Region:   region.Region{Off: 150, Len: 106},
				Labels:   []string{scan.LabelUnrecognized},
			},
		},
	}
	result := &scan.Result{
		Root:     root,
		Failures: []scan.Failure{{Parser: "boom", Path: "/x", Detail: "panic: ouch"}},
		Poisoned: []string{"boom"},
		Options:  scan.Options{Workers: 4, MaxDepth: 16, MinRegionSize: 4, PoisonThreshold: 3},
	}
	return result, region.FromBytes(bytes.Repeat([]byte{0x42}, 256))
}

func TestBuild(t *testing.T) {
	result, buf := sampleResult()
	doc, err := Build(result, buf)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	if doc.RootSize != 256 {
		t.Fatalf("RootSize = %d, want 256", doc.RootSize)
	}
	if len(doc.RootHash) != 64 {
		t.Fatalf("RootHash = %q, want 64 hex chars", doc.RootHash)
	}
	if !strings.HasPrefix(doc.Tool, "unearth ") {
		t.Fatalf("Tool = %q", doc.Tool)
	}
	if len(doc.Failures) != 1 || doc.Failures[0].Parser != "boom" {
		t.Fatalf("Failures = %v", doc.Failures)
	}
	if doc.Engine.MaxDepth != 16 || doc.Engine.GapPolicy != "keep" {
		t.Fatalf("Engine = %+v", doc.Engine)
	}

	root := doc.Root
	if root.Length != 256 || len(root.Children) != 2 {
		t.Fatalf("root = %+v", root)
	}
	if root.Labels == nil {
		t.Fatal("root Labels serialized as null")
	}
	artifact := root.Children[0]
	if artifact.Offset != 0 || artifact.Length != 150 || artifact.Format != "blob" {
		t.Fatalf("artifact = %+v", artifact)
	}
	gap := root.Children[1]
	if gap.Offset != 150 || gap.Length != 106 {
		t.Fatalf("gap = %+v", gap)
	}
}

// The same result builds to the same document, so hashing a scan is
// meaningful. Two builds differ only in the timestamp.
func TestBuildStable(t *testing.T) {
	result, buf := sampleResult()
	a, err := Build(result, buf)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	b, err := Build(result, buf)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	b.ScannedAt = a.ScannedAt

	var ja, jb bytes.Buffer
	if err := WriteJSON(&ja, a); err != nil {
		t.Fatalf("WriteJSON: %v", err)
	}
	if err := WriteJSON(&jb, b); err != nil {
		t.Fatalf("WriteJSON: %v", err)
	}
	if ja.String() != jb.String() {
		t.Fatal("documents differ between builds")
	}
}

func TestWriteAndReadJSON(t *testing.T) {
	result, buf := sampleResult()
	doc, err := Build(result, buf)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	var out bytes.Buffer
	if err := WriteJSON(&out, doc); err != nil {
		t.Fatalf("WriteJSON: %v", err)
	}

	// The wire field names are the contract.
	var raw map[string]any
	if err := json.Unmarshal(out.Bytes(), &raw); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	for _, key := range []string{"tool", "scanned_at", "root_hash", "root_size", "engine", "root"} {
		if _, ok := raw[key]; !ok {
			t.Fatalf("document missing %q: %v", key, raw)
		}
	}

	parsed, err := ReadJSON(&out)
	if err != nil {
		t.Fatalf("ReadJSON: %v", err)
	}
	if parsed.RootHash != doc.RootHash || len(parsed.Root.Children) != 2 {
		t.Fatalf("round trip lost data: %+v", parsed)
	}
}

func TestWriteCBORDeterministic(t *testing.T) {
	result, buf := sampleResult()
	doc, err := Build(result, buf)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	var a, b bytes.Buffer
	if err := WriteCBOR(&a, doc); err != nil {
		t.Fatalf("WriteCBOR: %v", err)
	}
	if err := WriteCBOR(&b, doc); err != nil {
		t.Fatalf("WriteCBOR: %v", err)
	}
	if !bytes.Equal(a.Bytes(), b.Bytes()) {
		t.Fatal("CBOR encoding is not deterministic")
	}
}
