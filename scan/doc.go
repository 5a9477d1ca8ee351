// Copyright 2026 The Unearth Authors
// SPDX-License-Identifier: Apache-2.0

// Package scan implements the detection-dispatch-carving-recursion
// engine: it turns a flat byte buffer into a tree of typed, validated,
// non-overlapping artifacts.
//
// # Lifecycle
//
// A [Registry] is populated with [Parser] implementations at startup,
// then frozen. Freezing builds the signature index and makes the
// registry immutable; concurrent scan workers only ever read it.
//
// A scan runs as a [Session] over one root [region.Buffer]. The
// scheduler drains a task queue with a bounded worker pool; each task
// scans one buffer window end to end (match, validate, carve, extract)
// and only the produced child tasks are handed back to the pool. An
// explicit outstanding-task count signals completion — no queue
// polling.
//
// # Dispatch
//
// For every candidate offset the index yields parser variants in
// registration order. The first variant whose Parse structurally
// validates wins; the rest are not tried. Specificity is expressed
// purely through registration order. A parser signals "not my format"
// by returning a mismatch error ([Mismatchf]); the engine also converts
// any out-of-bounds read into a mismatch, so a truncated or lying
// header can never crash a scan.
//
// Validated artifacts claim their byte range in the buffer's ledger.
// After a window is scanned, the unclaimed complement becomes
// "unrecognized data" leaves, or secondary scan tasks when gap
// rescanning is enabled.
//
// # Failure containment
//
// A parser that violates its contract (consumed length out of bounds,
// child regions outside the consumed range, a panic) fails only the
// current candidate. The violation is recorded in the session's
// failure report, and a variant that misbehaves repeatedly is poisoned
// — skipped for the remainder of the session. A scan never aborts
// because one region or one plugin misbehaves; cancellation returns
// the partial tree marked incomplete.
package scan
