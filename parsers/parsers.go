// Copyright 2026 The Unearth Authors
// SPDX-License-Identifier: Apache-2.0

package parsers

import "github.com/unearth-project/unearth/scan"

// maxSynthesized caps the in-memory size of any synthesized child
// (decompressed stream, expanded sparse image). A stream that
// expands past the cap still validates and claims its compressed
// footprint; the oversized payload is noted in the metadata instead
// of materialized.
const maxSynthesized = 1 << 30

// Default returns the built-in parser variants in priority order.
func Default() []scan.Parser {
	return []scan.Parser{
		AndroidSparse(),
		HuaweiBoot(),
		BMP(),
		Tar(),
		Gzip(),
		Zstd(),
		LZ4(),
	}
}

// Register registers all of Default on the registry, in order.
func Register(registry *scan.Registry) error {
	for _, p := range Default() {
		if err := registry.Register(p); err != nil {
			return err
		}
	}
	return nil
}
