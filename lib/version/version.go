// Copyright 2026 The Unearth Authors
// SPDX-License-Identifier: Apache-2.0

// Package version reports build version information for unearth
// binaries.
package version

import "runtime/debug"

// Version is the release version, set at build time via
// -ldflags "-X .../lib/version.Version=v1.2.3". Empty for
// from-source builds.
var Version string

// Info returns a human-readable version string: the release version
// when set, otherwise the VCS revision embedded by the Go toolchain,
// otherwise "devel".
func Info() string {
	if Version != "" {
		return Version
	}
	if info, ok := debug.ReadBuildInfo(); ok {
		revision, dirty := "", false
		for _, setting := range info.Settings {
			switch setting.Key {
			case "vcs.revision":
				revision = setting.Value
			case "vcs.modified":
				dirty = setting.Value == "true"
			}
		}
		if revision != "" {
			if len(revision) > 12 {
				revision = revision[:12]
			}
			if dirty {
				revision += "-dirty"
			}
			return revision
		}
	}
	return "devel"
}
