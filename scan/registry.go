// Copyright 2026 The Unearth Authors
// SPDX-License-Identifier: Apache-2.0

package scan

import (
	"fmt"
	"sync"
)

// Registry holds the parser variants available to scan sessions. It
// follows a build-then-freeze lifecycle: [Registry.Register] all
// variants at startup, then [Registry.Freeze] once. Freezing builds
// the signature index and makes the registry permanently read-only,
// so concurrent sessions and workers share it without locks.
//
// Registration order is the dispatch priority order: when several
// variants match at the same offset, the earliest-registered one that
// validates wins. Register more specific formats first.
type Registry struct {
	mu      sync.Mutex
	frozen  bool
	parsers []Parser
	names   map[string]int
	index   *signatureIndex
}

// NewRegistry returns an empty, unfrozen registry.
func NewRegistry() *Registry {
	return &Registry{names: make(map[string]int)}
}

// Register adds a parser variant. The static declarations are
// validated here — a broken plugin is rejected before it can ever be
// dispatched: the name must be non-empty and unique, and every
// signature needs a non-empty pattern at a non-negative offset.
func (r *Registry) Register(p Parser) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.frozen {
		return ErrFrozen
	}
	name := p.Name()
	if name == "" {
		return fmt.Errorf("scan: parser with empty name")
	}
	if _, exists := r.names[name]; exists {
		return fmt.Errorf("scan: duplicate parser name %q", name)
	}
	for i, sig := range p.Signatures() {
		if len(sig.Pattern) == 0 {
			return fmt.Errorf("scan: parser %q signature %d has an empty pattern", name, i)
		}
		if sig.Offset < 0 {
			return fmt.Errorf("scan: parser %q signature %d has negative offset %d", name, i, sig.Offset)
		}
	}

	r.names[name] = len(r.parsers)
	r.parsers = append(r.parsers, p)
	return nil
}

// Freeze makes the registry immutable and builds the signature
// index. Freeze is idempotent; Register fails afterwards.
func (r *Registry) Freeze() {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.frozen {
		return
	}
	r.index = buildSignatureIndex(r.parsers)
	r.frozen = true
}

// Frozen reports whether the registry has been frozen. Sessions
// require a frozen registry.
func (r *Registry) Frozen() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.frozen
}

// Parsers returns the registered variants in priority order. The
// returned slice is a copy.
func (r *Registry) Parsers() []Parser {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Parser(nil), r.parsers...)
}

// parser returns the variant at the given ordinal. Only called after
// freeze, so no lock is needed.
func (r *Registry) parser(ordinal int) Parser {
	return r.parsers[ordinal]
}
