// Copyright 2026 The Unearth Authors
// SPDX-License-Identifier: Apache-2.0

// Package ledger tracks which byte ranges of a buffer have been
// claimed by validated artifacts. A ledger holds a set of disjoint
// intervals: [Ledger.Claim] fails with [ErrOverlap] on any
// intersection with an existing claim, and [Ledger.Gaps] yields the
// ordered unclaimed complement within a window. Those gaps become
// "unrecognized data" leaves in the result tree, or secondary scan
// targets when gap rescanning is enabled.
//
// One ledger belongs to one buffer. The scan scheduler may run
// gap-rescan tasks over disjoint windows of the same buffer on
// different workers, so the ledger serializes mutation internally;
// two different buffers never share a ledger and never contend.
package ledger

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/unearth-project/unearth/lib/region"
)

// ErrOverlap is returned when a claim intersects an already-claimed
// interval. Within the scan engine this indicates a scheduling bug
// (two tasks over the same bytes) and is fatal to the claiming task,
// never to the session.
var ErrOverlap = errors.New("ledger: interval overlaps an existing claim")

// Ledger is a set of disjoint claimed intervals over one buffer,
// ordered by offset. The zero value is not usable; create with [New].
type Ledger struct {
	mu     sync.Mutex
	claims []region.Region // sorted by Off, pairwise disjoint
}

// New returns an empty ledger.
func New() *Ledger {
	return &Ledger{}
}

// Claim records r as claimed. The claim must have positive length;
// zero-length claims would be invisible to [Ledger.Gaps] and always
// indicate a caller bug. Returns [ErrOverlap] if r intersects any
// existing claim, leaving the ledger unchanged.
func (l *Ledger) Claim(r region.Region) error {
	if r.Len <= 0 || r.Off < 0 {
		return fmt.Errorf("ledger: invalid claim %s", r)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	// Index of the first claim starting at or after r.Off.
	i := sort.Search(len(l.claims), func(i int) bool {
		return l.claims[i].Off >= r.Off
	})
	if i > 0 && l.claims[i-1].End() > r.Off {
		return fmt.Errorf("%w: %s intersects %s", ErrOverlap, r, l.claims[i-1])
	}
	if i < len(l.claims) && l.claims[i].Off < r.End() {
		return fmt.Errorf("%w: %s intersects %s", ErrOverlap, r, l.claims[i])
	}

	l.claims = append(l.claims, region.Region{})
	copy(l.claims[i+1:], l.claims[i:])
	l.claims[i] = r
	return nil
}

// Claimed reports whether the byte at the given offset lies inside
// any claimed interval. The signature scanner uses this to skip
// candidate offsets already consumed by an earlier match.
func (l *Ledger) Claimed(off int64) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	i := sort.Search(len(l.claims), func(i int) bool {
		return l.claims[i].End() > off
	})
	return i < len(l.claims) && l.claims[i].Off <= off
}

// Claims returns a copy of all claimed intervals in ascending offset
// order.
func (l *Ledger) Claims() []region.Region {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]region.Region(nil), l.claims...)
}

// Gaps returns the unclaimed complement of the ledger within the
// given window, in ascending offset order. The union of claims
// (clipped to the window) and gaps exactly tiles the window.
func (l *Ledger) Gaps(window region.Region) []region.Region {
	l.mu.Lock()
	defer l.mu.Unlock()

	var gaps []region.Region
	pos := window.Off
	for _, c := range l.claims {
		if c.End() <= pos {
			continue
		}
		if c.Off >= window.End() {
			break
		}
		if c.Off > pos {
			gaps = append(gaps, region.Region{Off: pos, Len: c.Off - pos})
		}
		pos = c.End()
	}
	if pos < window.End() {
		gaps = append(gaps, region.Region{Off: pos, Len: window.End() - pos})
	}
	return gaps
}
