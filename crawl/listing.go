// Copyright 2026 The Unearth Authors
// SPDX-License-Identifier: Apache-2.0

package crawl

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// category routes a pool file to its store subdirectory.
type category int

const (
	catBinary category = iota
	catSource
	catDSC
	catPatches
)

func (c category) dir() string {
	switch c {
	case catBinary:
		return "binary"
	case catSource:
		return "source"
	case catDSC:
		return "dsc"
	case catPatches:
		return "patches"
	}
	return ""
}

// task is one file to download: its pool directory, name, declared
// size, and target category.
type task struct {
	dir      string
	name     string
	size     int64
	category category
}

// component returns the archive component (main, contrib, non-free)
// from the pool directory, which becomes the store subdirectory.
func (t task) component() string {
	parts := strings.Split(t.dir, "/")
	if len(parts) < 2 {
		return ""
	}
	return parts[1]
}

// parseListing walks a decompressed ls-lR listing and returns the
// download tasks for the pool section. The listing is a sequence of
// directory headers ("./pool/main/a/abc:") followed by ls -l file
// lines; everything before the pool and everything from ./project on
// is ignored.
func parseListing(r io.Reader, architectures []string) ([]task, error) {
	var tasks []task
	inPool := false
	curdir := ""

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		if strings.HasPrefix(line, "./pool") {
			inPool = true
			header, _, _ := strings.Cut(line, ":")
			curdir = strings.TrimPrefix(header, "./")
		}
		if !inPool {
			continue
		}
		if strings.HasPrefix(line, "./project") {
			break
		}
		if !strings.HasPrefix(line, "-") {
			continue
		}

		fields := strings.Fields(line)
		if len(fields) < 5 {
			continue
		}
		name := fields[len(fields)-1]
		size, err := strconv.ParseInt(fields[4], 10, 64)
		if err != nil {
			return nil, fmt.Errorf("crawl: bad size in listing line %q: %w", line, err)
		}

		if cat, ok := categorize(name, architectures); ok {
			tasks = append(tasks, task{dir: curdir, name: name, size: size, category: cat})
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("crawl: reading listing: %w", err)
	}
	return tasks, nil
}

// categorize maps a pool file name to its download category. Binary
// packages are filtered by architecture; everything else is matched
// on suffix alone.
func categorize(name string, architectures []string) (category, bool) {
	switch {
	case strings.HasSuffix(name, ".dsc"):
		return catDSC, true
	case strings.HasSuffix(name, ".deb"):
		for _, arch := range architectures {
			if strings.HasSuffix(name, "_"+arch+".deb") {
				return catBinary, true
			}
		}
		return 0, false
	case strings.HasSuffix(name, ".diff.gz"):
		return catPatches, true
	case strings.HasSuffix(name, ".orig.tar.gz"),
		strings.HasSuffix(name, ".orig.tar.bz2"),
		strings.HasSuffix(name, ".orig.tar.xz"):
		return catSource, true
	}
	return 0, false
}
