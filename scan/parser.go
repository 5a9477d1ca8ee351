// Copyright 2026 The Unearth Authors
// SPDX-License-Identifier: Apache-2.0

package scan

import "github.com/unearth-project/unearth/lib/region"

// Signature is a static byte pattern a format declares: Pattern
// appears at Offset bytes from the start of any instance of the
// format. The index uses signatures to hypothesize candidate match
// positions; the parser's Parse confirms or rejects each one.
type Signature struct {
	// Offset is the pattern position relative to the format start.
	Offset int64
	// Pattern is the literal byte sequence. Must be non-empty.
	Pattern []byte
}

// Parser is the contract every format plugin implements. The engine
// depends only on this interface, never on concrete formats.
//
// The lifecycle is fixed: Signatures is read once at registration;
// Parse validates a candidate region; everything else — consumed
// length, carving, children, description — is read off the returned
// [Parsed] state. The post-parse calls are methods on that state, so
// a plugin cannot be asked to describe what it has not parsed.
//
// Parse must be a pure validation: no side effects, no network or
// interactive I/O, bounded time proportional to the region size. It
// must never read past the region it is given — the cursor enforces
// this, and a propagated out-of-bounds error is treated as a
// mismatch, not a fault.
type Parser interface {
	// Name is the unique variant identifier, used for labels,
	// profiles, and poison bookkeeping.
	Name() string

	// Signatures declares the variant's match patterns. A variant
	// with no signatures is a fallback: it is only tried at the
	// start of a buffer, never at interior offsets.
	Signatures() []Signature

	// Parse validates the format starting at the cursor's region
	// start. It returns the parsed state on success, or an error for
	// which [IsMismatch] holds when the bytes are not an instance of
	// the format.
	Parse(c *region.Cursor) (Parsed, error)
}

// Parsed is the state a successful Parse returns. All methods are
// deterministic functions of that state and must not re-read the
// buffer.
type Parsed interface {
	// ConsumedLength is the number of bytes the format instance
	// occupies, from the region start. Must satisfy
	// 0 < ConsumedLength <= region length; violating this is a
	// contract violation, not a recoverable mismatch.
	ConsumedLength() int64

	// Children decomposes the instance into embedded sub-artifacts
	// (partitions, archive members, decompressed payloads). May be
	// empty. Region children must lie within the consumed range.
	Children() []Child

	// Describe returns labels and metadata for the result tree. It
	// must not fail; a parser with nothing to say returns a zero
	// Description.
	Describe() Description
}

// Carver is optionally implemented by parsed states of formats whose
// logical content is shorter than the consumed range (trailing
// padding, alignment garbage). Carve returns the precise sub-region
// to keep, relative to the region start. Formats without the
// interface keep the full consumed range.
type Carver interface {
	Carve() region.Region
}

// Child is one embedded sub-artifact of a parsed instance. Exactly
// one of Region and Data is set: Region points into the parsed
// range of the parent buffer (zero-copy), Data carries synthesized
// content that does not exist verbatim in the parent, such as a
// decompressed stream.
type Child struct {
	// PathHint names the child, e.g. an archive member path or
	// partition name. Used for result paths; need not be unique.
	PathHint string

	// Region locates the child within the parsed range, relative to
	// the region start. Nil for synthesized children.
	Region *region.Region

	// Data is the synthesized content for children that are not a
	// byte range of the parent. Nil for region children.
	Data []byte
}

// Description is the descriptive output of a parsed instance.
type Description struct {
	// Labels classify the artifact, e.g. "android", "compressed".
	Labels []string

	// Metadata carries format-specific details. Values must be
	// JSON- and CBOR-serializable.
	Metadata map[string]any
}
