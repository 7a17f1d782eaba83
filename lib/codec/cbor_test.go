// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package codec

import (
	"bytes"
	"testing"
)

type record struct {
	Name string `cbor:"name"`
	Size int64  `cbor:"size"`
}

func TestRoundTrip(t *testing.T) {
	in := record{Name: "kernel.img", Size: 7_340_032}
	data, err := Marshal(in)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}

	var out record
	if err := Unmarshal(data, &out); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if out != in {
		t.Errorf("round trip = %+v, want %+v", out, in)
	}
}

func TestUnmarshalIgnoresTrailingBytes(t *testing.T) {
	data, err := Marshal(record{Name: "a", Size: 1})
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}

	// Simulate a page: the record at the front, stale bytes behind.
	page := make([]byte, 4096)
	copy(page, data)
	copy(page[len(data):], bytes.Repeat([]byte{0xee}, 64))

	var out record
	if err := Unmarshal(page, &out); err != nil {
		t.Fatalf("Unmarshal with trailing bytes: %v", err)
	}
	if out.Name != "a" || out.Size != 1 {
		t.Errorf("decoded %+v", out)
	}
}

func TestDeterministic(t *testing.T) {
	in := record{Name: "x", Size: 42}
	a, err := Marshal(in)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	b, err := Marshal(in)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	if !bytes.Equal(a, b) {
		t.Error("same record produced different encodings")
	}
}
