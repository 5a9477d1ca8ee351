// Copyright 2026 The Unearth Authors
// SPDX-License-Identifier: Apache-2.0

package scan

import (
	"errors"
	"testing"
)

func TestRegistryRejectsBadDeclarations(t *testing.T) {
	cases := []struct {
		name   string
		parser Parser
	}{
		{"empty name", sigOnly("", Signature{Pattern: []byte("AB")})},
		{"empty pattern", sigOnly("x", Signature{Pattern: nil})},
		{"negative offset", sigOnly("x", Signature{Offset: -4, Pattern: []byte("AB")})},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			registry := NewRegistry()
			if err := registry.Register(tc.parser); err == nil {
				t.Fatal("Register accepted a broken declaration")
			}
		})
	}
}

func TestRegistryRejectsDuplicateNames(t *testing.T) {
	registry := NewRegistry()
	if err := registry.Register(blobParser()); err != nil {
		t.Fatalf("Register: %v", err)
	}
	if err := registry.Register(blobParser()); err == nil {
		t.Fatal("duplicate name accepted")
	}
}

func TestRegistryFreeze(t *testing.T) {
	registry := NewRegistry()
	if err := registry.Register(blobParser()); err != nil {
		t.Fatalf("Register: %v", err)
	}
	if registry.Frozen() {
		t.Fatal("Frozen before Freeze")
	}

	registry.Freeze()
	registry.Freeze() // idempotent

	if !registry.Frozen() {
		t.Fatal("not Frozen after Freeze")
	}
	if err := registry.Register(pairParser()); !errors.Is(err, ErrFrozen) {
		t.Fatalf("Register after freeze = %v, want ErrFrozen", err)
	}
}

func TestRegistryPreservesPriorityOrder(t *testing.T) {
	registry := mustRegistry(t, pairParser(), blobParser(), selfParser())
	want := []string{"pair", "blob", "self"}
	parsers := registry.Parsers()
	if len(parsers) != len(want) {
		t.Fatalf("Parsers returned %d entries, want %d", len(parsers), len(want))
	}
	for i, p := range parsers {
		if p.Name() != want[i] {
			t.Fatalf("parser %d = %q, want %q", i, p.Name(), want[i])
		}
	}
}
