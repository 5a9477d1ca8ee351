// Copyright 2026 The Unearth Authors
// SPDX-License-Identifier: Apache-2.0

// Package config provides YAML configuration loading for unearth
// binaries.
//
// Configuration is loaded from a single file specified by either the
// UNEARTH_CONFIG environment variable (via [Load]) or a --config flag
// (via [LoadFile]). There are no fallbacks, no ~/.config discovery,
// and no automatic file search. This ensures deterministic, auditable
// configuration with no hidden overrides — which matters doubly here,
// because scan output is specified to be reproducible and the
// configuration is part of what it must be reproducible against.
//
// Variable expansion is performed on path fields after loading:
// ${HOME} and ${VAR:-default} patterns are expanded. No other
// environment variables override config values.
//
// Key exports:
//
//   - [Config] -- master struct with Scan, Report, Catalog, Crawl
//   - [Default] -- returns a Config with usable defaults
//   - [Load] and [LoadFile] -- the two entry points for loading
//
// This package depends on no other unearth packages.
package config
