// Copyright 2026 The Unearth Authors
// SPDX-License-Identifier: Apache-2.0

// Package parsers holds the built-in format plugins: firmware
// containers (Android sparse images, Huawei boot images), compressed
// streams (gzip, zstd, LZ4), archives (tar), and images (BMP). Each
// plugin implements the scan.Parser contract and nothing else; all
// dispatch, claiming, and recursion policy lives in the scan package.
//
// [Default] returns the full set in registration order. Order is
// dispatch priority: container formats with strong structural
// validation come before generic compressors, so the most specific
// interpretation of an offset wins.
package parsers
