// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package selfencrypt

import (
	"crypto/sha256"
	"fmt"
	"io"

	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/hkdf"

	"github.com/bureau-foundation/selfstore/lib/address"
)

// PadSize is the length of the XOR pad applied over each chunk's
// ciphertext.
const PadSize = 64

// hkdfInfo separates this derivation from any other use of the same
// hashes. Changing it changes every address.
var hkdfInfo = []byte("selfstore.selfencrypt.v1")

// EncryptionKeySet is the key material for one chunk. It is never
// stored: [DeriveKeySet] recomputes it from the source hashes recorded
// in the data map.
type EncryptionKeySet struct {
	Key   [chacha20poly1305.KeySize]byte
	Nonce [chacha20poly1305.NonceSizeX]byte
	Pad   [PadSize]byte
}

// Zero overwrites the key material.
func (k *EncryptionKeySet) Zero() {
	*k = EncryptionKeySet{}
}

// Neighbors returns the indices whose source hashes key chunk index
// of count: the previous chunk, the next, and the one after that,
// wrapping at both ends.
func Neighbors(index, count int) (previous, next, afterNext int) {
	previous = (index - 1 + count) % count
	next = (index + 1) % count
	afterNext = (index + 2) % count
	return previous, next, afterNext
}

// DeriveKeySet derives the key set for chunk index from the source
// hashes of all chunks. The neighbors' hashes form the input key
// material and the chunk's own hash is the salt, so identical content
// at identical positions always yields identical ciphertext.
func DeriveKeySet(sourceHashes []address.Address, index int) (EncryptionKeySet, error) {
	count := len(sourceHashes)
	if count < minChunks {
		return EncryptionKeySet{}, fmt.Errorf("key derivation needs at least %d chunks, got %d", minChunks, count)
	}
	if index < 0 || index >= count {
		return EncryptionKeySet{}, fmt.Errorf("chunk index %d out of range [0, %d)", index, count)
	}

	previous, next, afterNext := Neighbors(index, count)
	var inputKeyMaterial [3 * address.Size]byte
	copy(inputKeyMaterial[0:], sourceHashes[previous][:])
	copy(inputKeyMaterial[address.Size:], sourceHashes[next][:])
	copy(inputKeyMaterial[2*address.Size:], sourceHashes[afterNext][:])

	reader := hkdf.New(sha256.New, inputKeyMaterial[:], sourceHashes[index][:], hkdfInfo)

	var keys EncryptionKeySet
	for _, field := range [][]byte{keys.Key[:], keys.Nonce[:], keys.Pad[:]} {
		if _, err := io.ReadFull(reader, field); err != nil {
			keys.Zero()
			return EncryptionKeySet{}, fmt.Errorf("HKDF key derivation failed: %w", err)
		}
	}
	return keys, nil
}

// applyPad XORs data in place with the pad repeated end to end.
// Applying it twice restores the input.
func applyPad(data []byte, pad *[PadSize]byte) {
	for i := range data {
		data[i] ^= pad[i%PadSize]
	}
}
