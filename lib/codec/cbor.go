// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package codec

import (
	"reflect"

	"github.com/fxamacker/cbor/v2"
)

// maxNesting bounds decode depth. The deepest legitimate value is a
// register view: view, entry list, entry, parent list, hash.
const maxNesting = 16

var (
	encMode cbor.EncMode
	decMode cbor.DecMode
)

func init() {
	var err error

	options := cbor.CoreDetEncOptions()
	// Hashes are [32]byte; they must encode as byte strings so the
	// bytes match what a []byte field would produce.
	options.ByteArray = cbor.ByteArrayToByteSlice
	if encMode, err = options.EncMode(); err != nil {
		panic("codec: building CBOR encoder: " + err.Error())
	}

	decMode, err = cbor.DecOptions{
		DefaultMapType:  reflect.TypeOf(map[string]any(nil)),
		MaxNestedLevels: maxNesting,
		// Duplicate keys would let two encodings decode to one value.
		DupMapKey: cbor.DupMapKeyEnforcedAPF,
	}.DecMode()
	if err != nil {
		panic("codec: building CBOR decoder: " + err.Error())
	}
}

// Marshal encodes v with Core Deterministic Encoding.
func Marshal(v any) ([]byte, error) {
	return encMode.Marshal(v)
}

// Unmarshal decodes data into v. Unknown fields are ignored; duplicate
// map keys and nesting deeper than the formats use are errors.
func Unmarshal(data []byte, v any) error {
	return decMode.Unmarshal(data, v)
}
