// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package codec

import (
	"bytes"
	"testing"
)

type sampleDescriptor struct {
	Index   int      `cbor:"index"`
	Address [32]byte `cbor:"address"`
	Size    int64    `cbor:"size"`
}

type sampleTagged struct {
	Version int    `json:"version"`
	Name    string `json:"name,omitempty"`
}

func TestMarshalUnmarshalRoundtrip(t *testing.T) {
	original := sampleDescriptor{Index: 3, Size: 1 << 20}
	original.Address[0] = 0xab
	original.Address[31] = 0xcd

	data, err := Marshal(original)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}

	var decoded sampleDescriptor
	if err := Unmarshal(data, &decoded); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if decoded != original {
		t.Errorf("roundtrip mismatch: got %+v, want %+v", decoded, original)
	}
}

func TestMarshalDeterministic(t *testing.T) {
	value := map[string]int{"zeta": 1, "alpha": 2, "mid": 3}

	first, err := Marshal(value)
	if err != nil {
		t.Fatalf("first Marshal: %v", err)
	}
	for i := 0; i < 10; i++ {
		again, err := Marshal(value)
		if err != nil {
			t.Fatalf("Marshal: %v", err)
		}
		if !bytes.Equal(first, again) {
			t.Fatalf("deterministic encoding violated: %x != %x", first, again)
		}
	}
}

func TestByteArrayEncodesAsByteString(t *testing.T) {
	var address [32]byte
	data, err := Marshal(address)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	// Major type 2 (byte string) with a one-byte length: 0x58 0x20.
	if len(data) != 34 || data[0] != 0x58 || data[1] != 0x20 {
		t.Errorf("encoding = %x, want 5820 followed by 32 bytes", data)
	}
}

func TestJSONTagFallback(t *testing.T) {
	data, err := Marshal(sampleTagged{Version: 1, Name: "root"})
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	var decoded map[string]any
	if err := Unmarshal(data, &decoded); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if _, ok := decoded["version"]; !ok {
		t.Errorf("decoded %v does not use json tag names", decoded)
	}
	if decoded["name"] != "root" {
		t.Errorf("name = %v", decoded["name"])
	}
}

func TestUnknownFieldsIgnored(t *testing.T) {
	data, err := Marshal(map[string]any{"version": 2, "future_field": "x"})
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	var decoded sampleTagged
	if err := Unmarshal(data, &decoded); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if decoded.Version != 2 {
		t.Errorf("Version = %d, want 2", decoded.Version)
	}
}

func TestDuplicateKeysRejected(t *testing.T) {
	// {"version": 1, "version": 2}
	data := []byte{0xa2, 0x67, 'v', 'e', 'r', 's', 'i', 'o', 'n', 0x01, 0x67, 'v', 'e', 'r', 's', 'i', 'o', 'n', 0x02}
	var decoded sampleTagged
	if err := Unmarshal(data, &decoded); err == nil {
		t.Errorf("decoded a map with a duplicate key as %+v", decoded)
	}
}

func TestNestingBounded(t *testing.T) {
	// maxNesting+1 nested one-element arrays around an integer.
	data := append(bytes.Repeat([]byte{0x81}, maxNesting+1), 0x00)
	var decoded any
	if err := Unmarshal(data, &decoded); err == nil {
		t.Error("decoded a value nested deeper than the limit")
	}
	shallow := append(bytes.Repeat([]byte{0x81}, 3), 0x00)
	if err := Unmarshal(shallow, &decoded); err != nil {
		t.Errorf("rejected shallow nesting: %v", err)
	}
}
