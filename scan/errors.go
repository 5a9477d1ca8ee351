// Copyright 2026 The Unearth Authors
// SPDX-License-Identifier: Apache-2.0

package scan

import (
	"errors"
	"fmt"

	"github.com/unearth-project/unearth/lib/region"
)

// ErrAborted is returned by [Session.Run] when the context is
// cancelled before the scan completes. The partial result tree is
// still returned, marked incomplete.
var ErrAborted = errors.New("scan: session aborted")

// ErrFrozen is returned by [Registry.Register] after the registry
// has been frozen.
var ErrFrozen = errors.New("scan: registry is frozen")

// MismatchError is the expected "this is not my format" signal from
// a parser. It is ordinary control flow: dispatch moves on to the
// next candidate and nothing is logged above debug verbosity.
//
// Parsers create these with [Mismatchf]. Out-of-bounds buffer reads
// ([region.ErrOutOfBounds]) are converted to mismatches at the parse
// boundary, so a parser may simply propagate read errors.
type MismatchError struct {
	// Parser is the variant that declined, filled in by dispatch.
	Parser string
	// Reason describes the failed validation condition.
	Reason string
	// Err is an optional underlying error.
	Err error
}

func (e *MismatchError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Parser, e.Reason, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Parser, e.Reason)
}

func (e *MismatchError) Unwrap() error { return e.Err }

// Mismatchf builds a structural mismatch with a formatted reason.
func Mismatchf(format string, args ...any) error {
	return &MismatchError{Reason: fmt.Sprintf(format, args...)}
}

// IsMismatch reports whether err is a structural mismatch, including
// out-of-bounds reads, which are mismatches by definition: a format
// whose structure points past the end of the buffer did not validate.
func IsMismatch(err error) bool {
	var mismatch *MismatchError
	return errors.As(err, &mismatch) || errors.Is(err, region.ErrOutOfBounds)
}

// ContractViolation records a plugin returning data that violates
// the engine's invariants — as opposed to a normal mismatch signal.
// Dispatch counts these per variant; a variant crossing the poison
// threshold is skipped for the rest of the session.
type ContractViolation struct {
	// Parser is the offending variant.
	Parser string
	// Detail describes the violated invariant.
	Detail string
}

func (e *ContractViolation) Error() string {
	return fmt.Sprintf("contract violation in parser %s: %s", e.Parser, e.Detail)
}

// violationf builds a ContractViolation with a formatted detail.
func violationf(parser, format string, args ...any) *ContractViolation {
	return &ContractViolation{Parser: parser, Detail: fmt.Sprintf(format, args...)}
}
