// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package codec provides the CBOR encoding used for on-page records.
//
// Inode pages hold a single CBOR data item followed by whatever bytes
// the page held before (pages are page-sized, records are not), so
// decoding always goes through a Decoder, which consumes exactly one
// item and ignores the tail.
package codec

import (
	"bytes"
	"io"

	"github.com/fxamacker/cbor/v2"
)

// encMode uses Core Deterministic Encoding (RFC 8949 §4.2): sorted
// map keys, smallest integer encoding, no indefinite-length items.
// The same record always produces identical page bytes, which keeps
// the invariant checker and tests simple.
var encMode cbor.EncMode

var decMode cbor.DecMode

func init() {
	var err error
	encMode, err = cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic("codec: CBOR encoder initialization failed: " + err.Error())
	}
	decMode, err = cbor.DecOptions{}.DecMode()
	if err != nil {
		panic("codec: CBOR decoder initialization failed: " + err.Error())
	}
}

// Marshal encodes v as a single CBOR data item.
func Marshal(v any) ([]byte, error) {
	return encMode.Marshal(v)
}

// Unmarshal decodes the first CBOR data item in data into v,
// ignoring any trailing bytes. This is the page-decoding primitive:
// the record occupies the front of the page and the rest is noise.
func Unmarshal(data []byte, v any) error {
	return decMode.NewDecoder(bytes.NewReader(data)).Decode(v)
}

// NewDecoder returns a CBOR stream decoder reading from r.
func NewDecoder(r io.Reader) *cbor.Decoder {
	return decMode.NewDecoder(r)
}
