// Copyright 2026 The Unearth Authors
// SPDX-License-Identifier: Apache-2.0

// Package codec provides deterministic CBOR encoding for scan
// reports and the result catalog.
//
// Determinism matters here for the same reason scan output itself is
// deterministic: two runs over the same input with the same registry
// must produce byte-identical reports, so reports can be compared and
// content-addressed. The encoder uses Core Deterministic Encoding
// (RFC 8949 §4.2): sorted map keys, smallest integer encoding, no
// indefinite-length items.
package codec

import (
	"reflect"

	"github.com/fxamacker/cbor/v2"
)

// encMode is the CBOR encoder configured with Core Deterministic
// Encoding. Same logical data always produces identical bytes.
var encMode cbor.EncMode

// decMode is the CBOR decoder configured to accept standard CBOR.
// Unknown fields are silently ignored for forward compatibility.
var decMode cbor.DecMode

func init() {
	var err error

	encMode, err = cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic("codec: CBOR encoder initialization failed: " + err.Error())
	}

	decMode, err = cbor.DecOptions{
		// Artifact metadata is map[string]any. When the decoder's
		// target is any it must pick a concrete map type; the CBOR
		// default is map[interface{}]interface{}, which is
		// incompatible with encoding/json and everything else that
		// expects map[string]any. Report metadata never uses
		// non-string keys, so this loses nothing.
		DefaultMapType: reflect.TypeOf(map[string]any(nil)),
	}.DecMode()
	if err != nil {
		panic("codec: CBOR decoder initialization failed: " + err.Error())
	}
}

// Marshal encodes v to CBOR using Core Deterministic Encoding.
func Marshal(v any) ([]byte, error) {
	return encMode.Marshal(v)
}

// Unmarshal decodes CBOR data into v.
func Unmarshal(data []byte, v any) error {
	return decMode.Unmarshal(data, v)
}

// RawMessage is a raw encoded CBOR value, usable to delay decoding
// or embed pre-encoded output.
type RawMessage = cbor.RawMessage
