// Copyright 2026 The Unearth Authors
// SPDX-License-Identifier: Apache-2.0

// Package crawl mirrors scan corpora from a Debian package archive.
// A crawler run fetches the archive's ls-lR.gz listing, skips the run
// entirely when the listing hash matches the previous run, and
// otherwise downloads the pool contents it cares about (.deb packages
// for the configured architectures, .dsc descriptions, upstream
// source tarballs, Debian patch files) into a category/component
// directory layout under the store directory:
//
//	binary/{contrib,main,non-free}/   compiled packages
//	source/{contrib,main,non-free}/   .orig.tar.{gz,bz2,xz}
//	dsc/{contrib,main,non-free}/      package descriptions
//	patches/{contrib,main,non-free}/  .diff.gz files
//	meta/                             timestamped ls-lR.gz copies
//	logs/                             download logs
//
// Files already present at the expected size are not fetched again,
// so interrupted runs resume cheaply.
package crawl
