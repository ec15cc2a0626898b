// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package reconstruct rebuilds stored objects from their data maps.
//
// A [Reconstructor] walks a data map down to its content level, one
// level at a time, then fetches, decrypts, and verifies every content
// chunk. Fetches within a level run concurrently up to a limit;
// an address listed more than once in a level is fetched once. Transient
// failures are retried per address with exponential backoff. Any
// other failure, or running out of attempts, cancels the remaining
// fetches and returns an error naming the address. No partial output
// is ever returned: the result is assembled only after every chunk
// of the level has verified.
//
// Chunk content is verified twice: the fetched bytes must hash to the
// descriptor's address, and the decrypted plaintext must hash to the
// recorded source hash. Either mismatch is dataerr.ErrCorruptChunk and
// is never retried.
package reconstruct
