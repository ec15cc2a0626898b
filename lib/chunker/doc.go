// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package chunker splits a byte slice into the ordered raw chunks that
// the self-encryptor consumes.
//
// Self-encryption derives each chunk's key from the hashes of three
// neighbors, so every input must produce at least [DefaultMinChunks]
// chunks no matter how small it is. Inputs shorter than the minimum
// are padded logically: some chunks are empty. No byte is ever
// duplicated, so concatenating the chunks in order always reproduces
// the input exactly, including the empty input.
//
// Two boundary strategies are available. Both are pure functions of
// the input and the [Config]:
//
//   - [StrategyFixed] divides the input into near-equal chunks, the
//     fewest that respect MaxChunkSize (and never fewer than
//     MinChunks). Two uploads of the same bytes always share every
//     chunk.
//   - [StrategyContent] places boundaries with a GearHash rolling
//     hash, so an insertion near the start of a large input only
//     disturbs the chunks around the edit. When it produces fewer
//     than MinChunks chunks the fixed split is used instead.
package chunker
