// Copyright 2026 The Unearth Authors
// SPDX-License-Identifier: Apache-2.0

package scan

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"github.com/unearth-project/unearth/lib/region"
)

// fixtureParser returns a parser whose Parse always yields the given
// state and error, for exercising the dispatch contract checks.
func fixtureParser(state Parsed, err error) Parser {
	return &fakeParser{
		name:  "fixture",
		parse: func(*region.Cursor) (Parsed, error) { return state, err },
	}
}

func attemptOn(t *testing.T, p Parser, size int64, start int64) (*validated, *ContractViolation) {
	t.Helper()
	buf := region.FromBytes(bytes.Repeat([]byte{0x77}, int(size)))
	return attempt(p, buf, buf.Whole(), start)
}

func TestAttemptMismatchIsNotAFault(t *testing.T) {
	v, violation := attemptOn(t, fixtureParser(nil, Mismatchf("wrong everything")), 64, 0)
	if v != nil || violation != nil {
		t.Fatalf("attempt = (%v, %v), want mismatch (nil, nil)", v, violation)
	}
}

func TestAttemptOutOfBoundsIsMismatch(t *testing.T) {
	overreader := &fakeParser{
		name: "overreader",
		parse: func(c *region.Cursor) (Parsed, error) {
			_, err := c.ReadBytes(c.Remaining() + 1)
			return nil, err
		},
	}
	v, violation := attemptOn(t, overreader, 64, 0)
	if v != nil || violation != nil {
		t.Fatalf("attempt = (%v, %v), want mismatch (nil, nil)", v, violation)
	}
}

func TestAttemptPanicIsViolation(t *testing.T) {
	panicky := &fakeParser{
		name:  "panicky",
		parse: func(*region.Cursor) (Parsed, error) { panic("boom") },
	}
	v, violation := attemptOn(t, panicky, 64, 0)
	if v != nil || violation == nil {
		t.Fatalf("attempt = (%v, %v), want violation", v, violation)
	}
	if !strings.Contains(violation.Detail, "panic") {
		t.Fatalf("violation detail = %q, want panic", violation.Detail)
	}
}

func TestAttemptUnexpectedErrorIsViolation(t *testing.T) {
	_, violation := attemptOn(t, fixtureParser(nil, errors.New("disk fell off")), 64, 0)
	if violation == nil {
		t.Fatal("plain error accepted as mismatch")
	}
}

func TestAttemptNilStateIsViolation(t *testing.T) {
	_, violation := attemptOn(t, fixtureParser(nil, nil), 64, 0)
	if violation == nil {
		t.Fatal("nil state with nil error accepted")
	}
}

func TestAttemptConsumedBounds(t *testing.T) {
	for _, consumed := range []int64{0, -5, 65} {
		_, violation := attemptOn(t, fixtureParser(&fakeParsed{consumed: consumed}, nil), 64, 0)
		if violation == nil {
			t.Fatalf("consumed %d accepted for a 64-byte region", consumed)
		}
	}
	v, violation := attemptOn(t, fixtureParser(&fakeParsed{consumed: 64}, nil), 64, 0)
	if violation != nil || v == nil {
		t.Fatalf("attempt = (%v, %v), want validated", v, violation)
	}
	if v.claim != (region.Region{Off: 0, Len: 64}) {
		t.Fatalf("claim = %s, want [0,64)", v.claim)
	}
}

func TestAttemptClaimFromInteriorStart(t *testing.T) {
	v, violation := attemptOn(t, fixtureParser(&fakeParsed{consumed: 20}, nil), 64, 16)
	if violation != nil {
		t.Fatalf("violation: %v", violation)
	}
	if v.claim != (region.Region{Off: 16, Len: 20}) {
		t.Fatalf("claim = %s, want [16,36)", v.claim)
	}
	if v.carved != v.claim {
		t.Fatalf("carved = %s, want the claim when no Carver", v.carved)
	}
}

func TestAttemptCarve(t *testing.T) {
	state := &carvedParsed{
		fakeParsed: fakeParsed{consumed: 32},
		carve:      region.Region{Off: 4, Len: 10},
	}
	v, violation := attemptOn(t, fixtureParser(state, nil), 64, 16)
	if violation != nil {
		t.Fatalf("violation: %v", violation)
	}
	if v.claim != (region.Region{Off: 16, Len: 32}) {
		t.Fatalf("claim = %s", v.claim)
	}
	if v.carved != (region.Region{Off: 20, Len: 10}) {
		t.Fatalf("carved = %s, want [20,30)", v.carved)
	}
}

func TestAttemptCarveOutsideConsumedIsViolation(t *testing.T) {
	bad := []region.Region{
		{Off: -1, Len: 4},
		{Off: 0, Len: 0},
		{Off: 30, Len: 4},
	}
	for _, carve := range bad {
		state := &carvedParsed{fakeParsed: fakeParsed{consumed: 32}, carve: carve}
		if _, violation := attemptOn(t, fixtureParser(state, nil), 64, 0); violation == nil {
			t.Fatalf("carve %s accepted against consumed 32", carve)
		}
	}
}

func TestAttemptChildValidation(t *testing.T) {
	within := region.Region{Off: 4, Len: 8}
	outside := region.Region{Off: 28, Len: 8}

	t.Run("region child kept relative", func(t *testing.T) {
		state := &fakeParsed{consumed: 32, children: []Child{{PathHint: "x", Region: &within}}}
		v, violation := attemptOn(t, fixtureParser(state, nil), 64, 16)
		if violation != nil {
			t.Fatalf("violation: %v", violation)
		}
		if got := *v.children[0].Region; got != within {
			t.Fatalf("child region = %s, want %s relative to the claim", got, within)
		}
	})
	t.Run("region outside consumed", func(t *testing.T) {
		state := &fakeParsed{consumed: 32, children: []Child{{Region: &outside}}}
		if _, violation := attemptOn(t, fixtureParser(state, nil), 64, 0); violation == nil {
			t.Fatal("out-of-range child accepted")
		}
	})
	t.Run("both region and data", func(t *testing.T) {
		state := &fakeParsed{consumed: 32, children: []Child{{Region: &within, Data: []byte{1}}}}
		if _, violation := attemptOn(t, fixtureParser(state, nil), 64, 0); violation == nil {
			t.Fatal("child with both region and data accepted")
		}
	})
	t.Run("neither region nor data", func(t *testing.T) {
		state := &fakeParsed{consumed: 32, children: []Child{{PathHint: "empty"}}}
		if _, violation := attemptOn(t, fixtureParser(state, nil), 64, 0); violation == nil {
			t.Fatal("empty child accepted")
		}
	})
}

func TestChildName(t *testing.T) {
	if got := childName("partition.img", 3); got != "partition.img" {
		t.Fatalf("childName = %q", got)
	}
	if got := childName("", 3); got != "child-3" {
		t.Fatalf("childName = %q", got)
	}
}
