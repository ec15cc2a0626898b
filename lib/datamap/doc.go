// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package datamap defines the index that describes how to reassemble
// one logical object from its encrypted chunks.
//
// A [DataMap] lists one [ChunkInfo] per chunk, in order. Each entry
// carries the network address of the encrypted chunk and the source
// hash of its plaintext. Decryption re-derives every chunk's key from
// the source hashes of its neighbors, so the map is the only secret a
// reader needs: whoever holds the map can read the object, and the
// chunks alone reveal nothing.
//
// # Levels
//
// A map for a very large object can itself exceed the chunk size. In
// that case it is serialized, chunked, and self-encrypted like any
// other content, producing a smaller map one level up. A map with
// Level 0 points at content chunks. A map with Level n > 0 points at
// chunks whose plaintext is the serialized map of level n-1.
//
// [Shrink] builds the levels bottom-up until the top map fits.
// [Resolve] walks them top-down with a loop, not recursion, and
// refuses maps deeper than [MaxDepth]. Every step must decrease the
// level by exactly one, so a hostile map cannot make resolution
// cycle.
//
// # Format
//
// Maps are encoded with lib/codec (CBOR, Core Deterministic). The
// Version field is the format tag. Decoding rejects versions it does
// not know with ErrMalformedDataMap rather than guessing.
package datamap
