// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package address

import (
	"strings"
	"testing"
)

func TestDomainSeparation(t *testing.T) {
	input := []byte("the same bytes in every domain")

	hashes := map[string]Address{
		"source":  ForSource(input),
		"content": ForContent(input),
		"datamap": ForDataMap(input),
		"entry":   ForEntry(input),
	}

	seen := make(map[Address]string)
	for domain, hash := range hashes {
		if other, exists := seen[hash]; exists {
			t.Errorf("domains %s and %s produced the same hash %s", domain, other, hash)
		}
		seen[hash] = domain
	}
}

func TestHashDeterministic(t *testing.T) {
	input := []byte("deterministic")
	if ForContent(input) != ForContent(input) {
		t.Error("ForContent is not deterministic")
	}
	if ForContent(input) == ForContent([]byte("deterministiC")) {
		t.Error("different inputs produced the same content address")
	}
}

func TestForRegisterLengthPrefix(t *testing.T) {
	first := ForRegister([]byte("ab"), []byte("c"))
	second := ForRegister([]byte("a"), []byte("bc"))
	if first == second {
		t.Error("ForRegister is ambiguous across the owner/name boundary")
	}
	if first != ForRegister([]byte("ab"), []byte("c")) {
		t.Error("ForRegister is not deterministic")
	}
}

func TestParseRoundtrip(t *testing.T) {
	original := ForSource([]byte("roundtrip"))

	parsed, err := Parse(original.String())
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if parsed != original {
		t.Errorf("Parse(String()) = %s, want %s", parsed, original)
	}
	if !strings.HasPrefix(original.String(), original.Short()) {
		t.Errorf("Short %q is not a prefix of %q", original.Short(), original.String())
	}
	if len(original.Short()) != 12 {
		t.Errorf("Short length = %d, want 12", len(original.Short()))
	}
}

func TestParseErrors(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{"not hex", strings.Repeat("zz", 32)},
		{"too short", "abcd"},
		{"too long", strings.Repeat("00", 33)},
		{"empty", ""},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			if _, err := Parse(test.input); err == nil {
				t.Errorf("Parse(%q) succeeded, want error", test.input)
			}
		})
	}
}

func TestIsZeroAndCompare(t *testing.T) {
	var zero Address
	if !zero.IsZero() {
		t.Error("zero address reports non-zero")
	}
	one := ForSource([]byte("one"))
	if one.IsZero() {
		t.Error("hash reports zero")
	}
	if one.Compare(one) != 0 {
		t.Error("Compare with self is non-zero")
	}
	if zero.Compare(one) != -1 || one.Compare(zero) != 1 {
		t.Error("Compare does not order zero below a non-zero hash")
	}
}

func TestVerify(t *testing.T) {
	content := []byte("stored bytes")
	if !Verify(ForContent(content), content) {
		t.Error("Verify rejected a content address")
	}
	if !Verify(ForDataMap(content), content) {
		t.Error("Verify rejected a data map address")
	}
	if Verify(ForSource(content), content) {
		t.Error("Verify accepted a source hash as a storage address")
	}
	if Verify(ForContent(content), []byte("other bytes")) {
		t.Error("Verify accepted mismatched content")
	}
}
