// Copyright 2026 The Unearth Authors
// SPDX-License-Identifier: Apache-2.0

package binhash

import (
	"bytes"
	"testing"
)

func TestDomainSeparation(t *testing.T) {
	data := []byte("the same bytes in two roles")

	regionHash := Region(data)
	sessionHash, err := SessionReader(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("SessionReader failed: %v", err)
	}
	if regionHash == sessionHash {
		t.Error("region and session domains produced the same hash")
	}
}

func TestRegionReaderMatchesRegion(t *testing.T) {
	data := bytes.Repeat([]byte("firmware"), 4096)

	direct := Region(data)
	streamed, err := RegionReader(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("RegionReader failed: %v", err)
	}
	if direct != streamed {
		t.Errorf("streamed hash %s != direct hash %s", Format(streamed), Format(direct))
	}
}

func TestFormatParseRoundtrip(t *testing.T) {
	h := Region([]byte("roundtrip"))

	parsed, err := Parse(Format(h))
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if parsed != h {
		t.Errorf("roundtrip mismatch: %s != %s", Format(parsed), Format(h))
	}

	if _, err := Parse("not hex"); err == nil {
		t.Error("Parse accepted invalid hex")
	}
	if _, err := Parse("abcd"); err == nil {
		t.Error("Parse accepted short input")
	}
}
