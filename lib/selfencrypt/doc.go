// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package selfencrypt encrypts chunks with keys derived from the
// content itself, so no key has to be stored or transmitted.
//
// Encryption runs in two passes. The first hashes every plaintext
// chunk (the source hashes). The second encrypts chunk i under an
// [EncryptionKeySet] derived with HKDF-SHA256 from the source hashes
// of chunks i-1, i+1, and i+2, wrapping at both ends, salted with
// chunk i's own hash. The hashes are kept as an immutable array
// indexed by position, so the circular dependency between neighbors
// never becomes a reference cycle.
//
// Each chunk goes through:
//
//  1. compression (LZ4 or zstd when it helps)
//  2. XChaCha20-Poly1305 with the derived key and derived nonce,
//     authenticating the format version, compression tag, and source
//     hash
//  3. an XOR pad over the ciphertext
//
// The chunk's network address is the hash of the result. Every step
// is deterministic, so identical input at identical boundaries always
// produces identical addresses and duplicate uploads collapse.
//
// Decryption needs the data map, which records every chunk's source
// hash. [DecryptChunk] checks the content against its address,
// authenticates, decompresses, and finally checks the plaintext
// against its source hash. Any mismatch is reported as
// dataerr.ErrCorruptChunk for that address and no plaintext is
// returned.
//
// [Pack] combines chunking, encryption, and data map wrapping into
// the single call that storing an object needs.
package selfencrypt
