// Copyright 2026 The Unearth Authors
// SPDX-License-Identifier: Apache-2.0

package scan

import (
	"os"
	"path/filepath"
	"reflect"
	"testing"
)

func TestParseProfileJSONC(t *testing.T) {
	data := []byte(`{
		// containers only
		"enable": ["pair", "blob"],
		"poison_threshold": 1, // trailing comma below
	}`)
	profile, err := ParseProfile(data)
	if err != nil {
		t.Fatalf("ParseProfile: %v", err)
	}
	if !reflect.DeepEqual(profile.Enable, []string{"pair", "blob"}) {
		t.Fatalf("Enable = %v", profile.Enable)
	}
	if profile.PoisonThreshold != 1 {
		t.Fatalf("PoisonThreshold = %d, want 1", profile.PoisonThreshold)
	}
}

func TestParseProfileEnableDisableExclusive(t *testing.T) {
	if _, err := ParseProfile([]byte(`{"enable": ["a"], "disable": ["b"]}`)); err == nil {
		t.Fatal("enable + disable accepted")
	}
}

func TestReadProfile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "triage.jsonc")
	if err := os.WriteFile(path, []byte(`{"disable": ["self"]}`), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	profile, err := ReadProfile(path)
	if err != nil {
		t.Fatalf("ReadProfile: %v", err)
	}
	if !reflect.DeepEqual(profile.Disable, []string{"self"}) {
		t.Fatalf("Disable = %v", profile.Disable)
	}

	if _, err := ReadProfile(filepath.Join(t.TempDir(), "missing.jsonc")); err == nil {
		t.Fatal("missing file accepted")
	}
}

func TestProfileApplyEnable(t *testing.T) {
	source := mustRegistry(t, pairParser(), blobParser(), selfParser())
	profile := &Profile{Enable: []string{"self", "pair"}}

	filtered, err := profile.Apply(source)
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	// Registration order survives filtering; the profile's own list
	// order does not matter.
	want := []string{"pair", "self"}
	parsers := filtered.Parsers()
	if len(parsers) != len(want) {
		t.Fatalf("filtered has %d parsers, want %d", len(parsers), len(want))
	}
	for i, p := range parsers {
		if p.Name() != want[i] {
			t.Fatalf("parser %d = %q, want %q", i, p.Name(), want[i])
		}
	}
	if filtered.Frozen() {
		t.Fatal("Apply returned a frozen registry")
	}
}

func TestProfileApplyDisable(t *testing.T) {
	source := mustRegistry(t, pairParser(), blobParser())
	filtered, err := (&Profile{Disable: []string{"blob"}}).Apply(source)
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	parsers := filtered.Parsers()
	if len(parsers) != 1 || parsers[0].Name() != "pair" {
		t.Fatalf("filtered = %v", parsers)
	}
}

func TestProfileApplyUnknownName(t *testing.T) {
	source := mustRegistry(t, blobParser())
	if _, err := (&Profile{Enable: []string{"no-such-format"}}).Apply(source); err == nil {
		t.Fatal("unknown parser name accepted")
	}
}
