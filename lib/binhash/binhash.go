// Copyright 2026 The Unearth Authors
// SPDX-License-Identifier: Apache-2.0

// Package binhash computes BLAKE3 content hashes for scanned data.
//
// Two keyed domains are used. Region hashes identify the content of a
// byte region for deduplication: when the scheduler sees a child
// region whose hash matches an already-processed region, it links the
// two instead of re-scanning (bounding work on self-similar inputs).
// Session hashes identify a scan input in the result catalog, so
// re-scanning an unchanged file can be skipped.
//
// Domain separation ensures the same bytes never produce the same
// hash in both roles. The keys are ASCII domain names zero-padded to
// 32 bytes: readable in hex dumps, and BLAKE3 keyed mode treats the
// key as an opaque value, so nothing is lost by the choice.
package binhash

import (
	"encoding/hex"
	"fmt"
	"io"

	"github.com/zeebo/blake3"
)

// Hash is a 32-byte BLAKE3 digest.
type Hash [32]byte

var (
	regionDomainKey = [32]byte{
		'u', 'n', 'e', 'a', 'r', 't', 'h', '.',
		'r', 'e', 'g', 'i', 'o', 'n', 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0,
	}

	sessionDomainKey = [32]byte{
		'u', 'n', 'e', 'a', 'r', 't', 'h', '.',
		's', 'e', 's', 's', 'i', 'o', 'n', 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0,
	}
)

// Region computes the region-domain hash of data.
func Region(data []byte) Hash {
	return keyedHash(regionDomainKey, data)
}

// RegionReader computes the region-domain hash of everything readable
// from r, streaming so memory use is constant regardless of region
// size.
func RegionReader(r io.Reader) (Hash, error) {
	return keyedHashReader(regionDomainKey, r)
}

// SessionReader computes the session-domain hash of a scan input.
func SessionReader(r io.Reader) (Hash, error) {
	return keyedHashReader(sessionDomainKey, r)
}

// Format returns the canonical lowercase hex form of a hash, used in
// reports, the catalog, and log output.
func Format(h Hash) string {
	return hex.EncodeToString(h[:])
}

// Parse parses the canonical hex form back into a hash.
func Parse(s string) (Hash, error) {
	var h Hash
	decoded, err := hex.DecodeString(s)
	if err != nil {
		return h, fmt.Errorf("parsing hash: %w", err)
	}
	if len(decoded) != len(h) {
		return h, fmt.Errorf("hash is %d bytes, want %d", len(decoded), len(h))
	}
	copy(h[:], decoded)
	return h, nil
}

func keyedHash(key [32]byte, data []byte) Hash {
	hasher, err := blake3.NewKeyed(key[:])
	if err != nil {
		// NewKeyed only fails on a wrong key length, which the
		// fixed-size key type rules out.
		panic("binhash: keyed hasher initialization failed: " + err.Error())
	}
	hasher.Write(data)
	var h Hash
	copy(h[:], hasher.Sum(nil))
	return h
}

func keyedHashReader(key [32]byte, r io.Reader) (Hash, error) {
	hasher, err := blake3.NewKeyed(key[:])
	if err != nil {
		panic("binhash: keyed hasher initialization failed: " + err.Error())
	}
	if _, err := io.Copy(hasher, r); err != nil {
		return Hash{}, fmt.Errorf("hashing: %w", err)
	}
	var h Hash
	copy(h[:], hasher.Sum(nil))
	return h, nil
}
