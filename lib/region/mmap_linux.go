// Copyright 2026 The Unearth Authors
// SPDX-License-Identifier: Apache-2.0

//go:build linux

package region

import (
	"os"

	"golang.org/x/sys/unix"
)

// mmapFile maps size bytes of the file read-only. The returned
// function unmaps the pages. MADV_RANDOM is not set: signature
// scanning is a forward sweep, so the default readahead helps.
func mmapFile(file *os.File, size int64) ([]byte, func() error, error) {
	data, err := unix.Mmap(int(file.Fd()), 0, int(size), unix.PROT_READ, unix.MAP_SHARED)
	if err != nil {
		return nil, nil, err
	}
	return data, func() error { return unix.Munmap(data) }, nil
}
