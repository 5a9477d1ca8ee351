// Copyright 2026 The Unearth Authors
// SPDX-License-Identifier: Apache-2.0

//go:build !linux

package region

import (
	"errors"
	"os"
)

// mmapFile is unsupported off Linux; Open falls back to descriptor
// reads.
func mmapFile(file *os.File, size int64) ([]byte, func() error, error) {
	return nil, nil, errors.New("mmap not supported on this platform")
}
