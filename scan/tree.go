// Copyright 2026 The Unearth Authors
// SPDX-License-Identifier: Apache-2.0

package scan

import "github.com/unearth-project/unearth/lib/region"

// LabelUnrecognized marks a byte range no registered parser
// validated. Such artifacts are retained as leaves with no children.
const LabelUnrecognized = "unrecognized data"

// LabelDuplicate marks a region whose content is byte-identical to a
// previously scanned region; it is linked by content hash rather
// than re-scanned.
const LabelDuplicate = "duplicate"

// Artifact is one node of the result tree: a validated, carved byte
// range (or an unrecognized gap) with its description and embedded
// children. The session exclusively owns the root; each node is
// exclusively owned by its parent. Nodes are only safe to read after
// the session has completed.
type Artifact struct {
	// PathHint names the node within its parent: an archive member
	// path, a partition name, or a positional fallback.
	PathHint string `json:"path_hint"`

	// Region locates the node's bytes. For carved and gap nodes the
	// coordinates are those of the enclosing buffer; for synthesized
	// content (e.g. a decompressed stream) the offset is zero and
	// the length is the content length, with "synthesized" set in
	// the metadata.
	Region region.Region `json:"-"`

	// Format is the name of the parser variant that validated this
	// node, empty for unrecognized data and synthetic grouping
	// nodes.
	Format string `json:"format,omitempty"`

	// Labels classify the artifact.
	Labels []string `json:"labels"`

	// Metadata carries format-specific details.
	Metadata map[string]any `json:"metadata,omitempty"`

	// Children are the embedded sub-artifacts in the deterministic
	// order the parser declared them (or ascending offset order for
	// top-level finds and gaps within a scanned window).
	Children []*Artifact `json:"children"`

	// Incomplete is true when the session was cancelled before this
	// node was scanned; its content may contain undetected
	// structure.
	Incomplete bool `json:"incomplete,omitempty"`
}

// Walk visits the node and all descendants depth-first in child
// order, calling fn with each node and its depth. Walk is only safe
// after the session has completed.
func (a *Artifact) Walk(fn func(node *Artifact, depth int)) {
	a.walk(0, fn)
}

func (a *Artifact) walk(depth int, fn func(*Artifact, int)) {
	fn(a, depth)
	for _, child := range a.Children {
		child.walk(depth+1, fn)
	}
}

// Count returns the total number of nodes in the subtree.
func (a *Artifact) Count() int {
	total := 0
	a.Walk(func(*Artifact, int) { total++ })
	return total
}

// addLabel appends a label if not already present, keeping label
// lists small and duplicate-free without a set type.
func (a *Artifact) addLabel(label string) {
	for _, existing := range a.Labels {
		if existing == label {
			return
		}
	}
	a.Labels = append(a.Labels, label)
}
