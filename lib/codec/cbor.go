// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package codec

import (
	"reflect"

	"github.com/fxamacker/cbor/v2"
)

// encMode encodes with Core Deterministic Encoding (RFC 8949 §4.2):
// map keys sorted, integers in their shortest form, no
// indefinite-length items. Equal values always produce equal bytes, so
// a republished signal record overwrites its Redis field with
// identical content.
var encMode cbor.EncMode

// decMode accepts any well-formed CBOR. Fields the target struct does
// not know are skipped, so records written by a newer build still
// decode.
var decMode cbor.DecMode

func init() {
	var err error

	encMode, err = cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic("codec: CBOR encoder initialization failed: " + err.Error())
	}

	decMode, err = cbor.DecOptions{
		// Records here only ever use string keys. For an any-typed
		// target the decoder must still pick a Go map type, and the
		// CBOR default is map[any]any because CBOR allows other key
		// types. map[string]any is what encoding/json and the rest of
		// the module expect. Struct fields are unaffected.
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

// Unmarshal decodes CBOR data into v. Trailing bytes after the first
// data item are an error.
func Unmarshal(data []byte, v any) error {
	return decMode.Unmarshal(data, v)
}
