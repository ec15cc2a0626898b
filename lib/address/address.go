// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package address

import (
	"bytes"
	"encoding/binary"
	"encoding/hex"
	"fmt"

	"github.com/zeebo/blake3"
)

// Size is the byte length of every address.
const Size = 32

// Address is a 32-byte BLAKE3 keyed digest.
type Address [Size]byte

// domainKey is a 32-byte key for BLAKE3 keyed hashing.
type domainKey [32]byte

// Domain keys are the ASCII domain name zero-padded to 32 bytes so
// they stay readable in hex dumps. Changing any of them changes every
// address in that domain.
var (
	sourceDomainKey   = newDomainKey("selfstore.chunk.src")
	contentDomainKey  = newDomainKey("selfstore.chunk.dst")
	dataMapDomainKey  = newDomainKey("selfstore.datamap")
	registerDomainKey = newDomainKey("selfstore.register")
	entryDomainKey    = newDomainKey("selfstore.entry")
)

func newDomainKey(name string) domainKey {
	if len(name) > 32 {
		panic("address: domain name longer than 32 bytes: " + name)
	}
	var key domainKey
	copy(key[:], name)
	return key
}

// ForSource hashes plaintext chunk content. The result is the
// pre-encryption hash stored in the data map.
func ForSource(plaintext []byte) Address {
	return keyedHash(sourceDomainKey, plaintext)
}

// ForContent hashes encrypted chunk bytes. The result is the chunk's
// network address.
func ForContent(ciphertext []byte) Address {
	return keyedHash(contentDomainKey, ciphertext)
}

// ForDataMap hashes a serialized root data map stored as a chunk of
// its own.
func ForDataMap(serialized []byte) Address {
	return keyedHash(dataMapDomainKey, serialized)
}

// ForEntry hashes the canonical encoding of a register entry.
func ForEntry(canonical []byte) Address {
	return keyedHash(entryDomainKey, canonical)
}

// ForRegister derives the key of the register called name owned by
// owner. Both parts are length-prefixed so ("ab","c") and ("a","bc")
// produce different keys.
func ForRegister(owner, name []byte) Address {
	hasher, err := blake3.NewKeyed(registerDomainKey[:])
	if err != nil {
		panic("address: BLAKE3 keyed hash initialization failed: " + err.Error())
	}
	writeLengthPrefixed(hasher, owner)
	writeLengthPrefixed(hasher, name)
	var result Address
	copy(result[:], hasher.Sum(nil))
	return result
}

// Verify reports whether content may be stored under a: either as an
// encrypted chunk or as a serialized root data map.
func Verify(a Address, content []byte) bool {
	return ForContent(content) == a || ForDataMap(content) == a
}

// IsZero reports whether a is the all-zero address, which no hash
// domain produces in practice and which marks an unset field.
func (a Address) IsZero() bool {
	return a == Address{}
}

// String returns the lowercase hex encoding of the address.
func (a Address) String() string {
	return hex.EncodeToString(a[:])
}

// Short returns the first 12 hex characters, for log lines.
func (a Address) Short() string {
	return hex.EncodeToString(a[:6])
}

// Compare orders addresses bytewise. Used to give sets of addresses a
// canonical order before encoding.
func (a Address) Compare(other Address) int {
	return bytes.Compare(a[:], other[:])
}

// Parse parses a 64-character hex string into an Address.
func Parse(hexString string) (Address, error) {
	var result Address
	decoded, err := hex.DecodeString(hexString)
	if err != nil {
		return result, fmt.Errorf("parsing address: %w", err)
	}
	if len(decoded) != Size {
		return result, fmt.Errorf("address is %d bytes, want %d", len(decoded), Size)
	}
	copy(result[:], decoded)
	return result, nil
}

// keyedHash computes the BLAKE3 keyed hash of data under key.
func keyedHash(key domainKey, data []byte) Address {
	// NewKeyed only fails for a key that is not 32 bytes, which the
	// domainKey type rules out.
	hasher, err := blake3.NewKeyed(key[:])
	if err != nil {
		panic("address: BLAKE3 keyed hash initialization failed: " + err.Error())
	}
	hasher.Write(data)
	var result Address
	copy(result[:], hasher.Sum(nil))
	return result
}

func writeLengthPrefixed(hasher *blake3.Hasher, data []byte) {
	var length [8]byte
	binary.BigEndian.PutUint64(length[:], uint64(len(data)))
	hasher.Write(length[:])
	hasher.Write(data)
}
