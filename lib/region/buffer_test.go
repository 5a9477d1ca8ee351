// Copyright 2026 The Unearth Authors
// SPDX-License-Identifier: Apache-2.0

package region

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestReadAtBounds(t *testing.T) {
	buffer := FromBytes([]byte("0123456789"))

	p := make([]byte, 4)
	if _, err := buffer.ReadAt(p, 3); err != nil {
		t.Fatalf("in-bounds read failed: %v", err)
	}
	if string(p) != "3456" {
		t.Errorf("read %q, want %q", p, "3456")
	}

	// A read crossing the end must fail entirely, not return short
	// data.
	if _, err := buffer.ReadAt(p, 8); !errors.Is(err, ErrOutOfBounds) {
		t.Errorf("read past end: err = %v, want ErrOutOfBounds", err)
	}
	if _, err := buffer.ReadAt(p, -1); !errors.Is(err, ErrOutOfBounds) {
		t.Errorf("negative offset: err = %v, want ErrOutOfBounds", err)
	}
}

func TestViewIsolation(t *testing.T) {
	parent := FromBytes([]byte("aaaaBBBBcccc"))

	child, err := parent.View(Region{Off: 4, Len: 4})
	if err != nil {
		t.Fatalf("View failed: %v", err)
	}
	if child.Size() != 4 {
		t.Fatalf("child size = %d, want 4", child.Size())
	}
	if child.ID() == parent.ID() {
		t.Error("child shares the parent's buffer ID")
	}

	data, err := child.Bytes(child.Whole())
	if err != nil {
		t.Fatalf("Bytes failed: %v", err)
	}
	if !bytes.Equal(data, []byte("BBBB")) {
		t.Errorf("child bytes = %q, want %q", data, "BBBB")
	}

	// The child's coordinate space ends at its own length, even
	// though the parent has more data after the window.
	p := make([]byte, 1)
	if _, err := child.ReadAt(p, 4); !errors.Is(err, ErrOutOfBounds) {
		t.Errorf("read past child end: err = %v, want ErrOutOfBounds", err)
	}

	if _, err := parent.View(Region{Off: 8, Len: 8}); !errors.Is(err, ErrOutOfBounds) {
		t.Errorf("oversized view: err = %v, want ErrOutOfBounds", err)
	}
}

func TestRegionPredicates(t *testing.T) {
	tests := []struct {
		name   string
		region Region
		size   int64
		valid  bool
	}{
		{"whole", Region{0, 10}, 10, true},
		{"empty at end", Region{10, 0}, 10, true},
		{"interior", Region{3, 4}, 10, true},
		{"negative offset", Region{-1, 2}, 10, false},
		{"negative length", Region{0, -1}, 10, false},
		{"past end", Region{8, 3}, 10, false},
	}
	for _, tt := range tests {
		if got := tt.region.Valid(tt.size); got != tt.valid {
			t.Errorf("%s: Valid(%d) = %v, want %v", tt.name, tt.size, got, tt.valid)
		}
	}

	outer := Region{Off: 4, Len: 8}
	if !outer.Contains(Region{Off: 4, Len: 8}) {
		t.Error("region does not contain itself")
	}
	if !outer.Contains(Region{Off: 6, Len: 2}) {
		t.Error("region does not contain interior sub-region")
	}
	if outer.Contains(Region{Off: 10, Len: 4}) {
		t.Error("region contains sub-region crossing its end")
	}
}

func TestOpenFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "blob")
	content := bytes.Repeat([]byte("unearth"), 1000)
	if err := os.WriteFile(path, content, 0o644); err != nil {
		t.Fatalf("writing fixture: %v", err)
	}

	buffer, err := Open(path)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer buffer.Close()

	if buffer.Size() != int64(len(content)) {
		t.Fatalf("size = %d, want %d", buffer.Size(), len(content))
	}
	data, err := buffer.Bytes(Region{Off: 7, Len: 7})
	if err != nil {
		t.Fatalf("Bytes failed: %v", err)
	}
	if string(data) != "unearth" {
		t.Errorf("read %q, want %q", data, "unearth")
	}
	if err := buffer.Close(); err != nil {
		t.Errorf("Close failed: %v", err)
	}
}

func TestCursorReads(t *testing.T) {
	// 0x01, then LE16 0x0302, then BE32 0x04050607, then 3 raw bytes.
	buffer := FromBytes([]byte{0x01, 0x02, 0x03, 0x04, 0x05, 0x06, 0x07, 'a', 'b', 'c'})
	cursor, err := NewCursor(buffer, buffer.Whole())
	if err != nil {
		t.Fatalf("NewCursor failed: %v", err)
	}

	if v, err := cursor.Uint8(); err != nil || v != 0x01 {
		t.Fatalf("Uint8 = %#x, %v; want 0x01", v, err)
	}
	if v, err := cursor.Uint16LE(); err != nil || v != 0x0302 {
		t.Fatalf("Uint16LE = %#x, %v; want 0x0302", v, err)
	}
	if v, err := cursor.Uint32BE(); err != nil || v != 0x04050607 {
		t.Fatalf("Uint32BE = %#x, %v; want 0x04050607", v, err)
	}
	data, err := cursor.ReadBytes(3)
	if err != nil || string(data) != "abc" {
		t.Fatalf("ReadBytes = %q, %v; want %q", data, err, "abc")
	}
	if cursor.Remaining() != 0 {
		t.Errorf("Remaining = %d, want 0", cursor.Remaining())
	}

	// A failed read leaves the position unchanged.
	before := cursor.Pos()
	if _, err := cursor.Uint32LE(); !errors.Is(err, ErrOutOfBounds) {
		t.Errorf("read past end: err = %v, want ErrOutOfBounds", err)
	}
	if cursor.Pos() != before {
		t.Errorf("position moved on failed read: %d -> %d", before, cursor.Pos())
	}
}

func TestCursorWindowed(t *testing.T) {
	buffer := FromBytes([]byte("XXXXpayloadYYYY"))
	cursor, err := NewCursor(buffer, Region{Off: 4, Len: 7})
	if err != nil {
		t.Fatalf("NewCursor failed: %v", err)
	}

	data, err := cursor.ReadBytes(7)
	if err != nil || string(data) != "payload" {
		t.Fatalf("ReadBytes = %q, %v; want %q", data, err, "payload")
	}

	// Peek is relative to the window, not the buffer.
	head, err := cursor.PeekBytes(0, 3)
	if err != nil || string(head) != "pay" {
		t.Fatalf("PeekBytes = %q, %v; want %q", head, err, "pay")
	}
	if _, err := cursor.PeekBytes(5, 3); !errors.Is(err, ErrOutOfBounds) {
		t.Errorf("peek past window: err = %v, want ErrOutOfBounds", err)
	}
}
