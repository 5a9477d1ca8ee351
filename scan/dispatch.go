// Copyright 2026 The Unearth Authors
// SPDX-License-Identifier: Apache-2.0

package scan

import (
	"fmt"

	"github.com/unearth-project/unearth/lib/region"
)

// validated is the engine-side record of one successful dispatch:
// a variant accepted the bytes at claim.Off and the contract checks
// passed.
type validated struct {
	parser string

	// claim is the full consumed range, which the ledger records so
	// the bytes are never processed twice.
	claim region.Region

	// carved is the artifact's own region: the claim, trimmed by the
	// parser's Carve when the logical content is shorter than the
	// consumed range (trailing padding).
	carved region.Region

	// children are the embedded sub-artifacts. Region children are
	// relative to the claim start, bounds-checked against the
	// consumed range.
	children []Child

	desc Description
}

// attempt runs one variant against the bytes from start to the end
// of the window. Three outcomes:
//
//   - (v, nil): the variant validated; v carries the claim.
//   - (nil, nil): structural mismatch — not this format, expected
//     control flow, try the next candidate.
//   - (nil, *ContractViolation): the plugin broke an engine
//     invariant or panicked; the caller records it and counts it
//     toward poisoning.
func attempt(p Parser, buf *region.Buffer, window region.Region, start int64) (v *validated, violation *ContractViolation) {
	name := p.Name()

	// A panic anywhere in the plugin lifecycle is a contract
	// violation, not a session fault.
	defer func() {
		if r := recover(); r != nil {
			v = nil
			violation = violationf(name, "panic: %v", r)
		}
	}()

	parseRegion := region.Region{Off: start, Len: window.End() - start}
	cursor, err := region.NewCursor(buf, parseRegion)
	if err != nil {
		return nil, violationf(name, "candidate region %s outside buffer", parseRegion)
	}

	parsed, err := p.Parse(cursor)
	if err != nil {
		if IsMismatch(err) {
			return nil, nil
		}
		// Anything other than a mismatch is an unexpected fault: the
		// contract requires parsers to signal rejection explicitly.
		return nil, violationf(name, "unexpected parse error: %v", err)
	}
	if parsed == nil {
		return nil, violationf(name, "Parse returned neither state nor error")
	}

	consumed := parsed.ConsumedLength()
	if consumed <= 0 || consumed > parseRegion.Len {
		return nil, violationf(name, "consumed length %d outside (0, %d]", consumed, parseRegion.Len)
	}
	claim := region.Region{Off: start, Len: consumed}

	carved := claim
	if carver, ok := parsed.(Carver); ok {
		trimmed := carver.Carve()
		if trimmed.Off < 0 || trimmed.Len <= 0 || trimmed.End() > consumed {
			return nil, violationf(name, "carved region %s outside consumed range [0,%d)", trimmed, consumed)
		}
		carved = region.Region{Off: start + trimmed.Off, Len: trimmed.Len}
	}

	children := parsed.Children()
	for i, child := range children {
		switch {
		case child.Region != nil && child.Data != nil:
			return nil, violationf(name, "child %d has both a region and synthesized data", i)
		case child.Region != nil:
			r := *child.Region
			if r.Off < 0 || r.Len <= 0 || r.End() > consumed {
				return nil, violationf(name, "child %d region %s outside consumed range [0,%d)", i, r, consumed)
			}
		case child.Data != nil:
		default:
			return nil, violationf(name, "child %d has neither a region nor synthesized data", i)
		}
	}

	return &validated{
		parser:   name,
		claim:    claim,
		carved:   carved,
		children: children,
		desc:     parsed.Describe(),
	}, nil
}

// childName derives the tree path element for a child: the parser's
// hint when it gave one, otherwise a positional name.
func childName(hint string, index int) string {
	if hint != "" {
		return hint
	}
	return fmt.Sprintf("child-%d", index)
}
