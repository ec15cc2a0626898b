// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package netstore defines the network-facing stores the client layer
// talks to and provides local backends for them.
//
// A [ChunkStore] holds immutable, content-addressed chunks. Put
// checks the content against its address before anything else, and
// putting an address that is already present is a successful no-op:
// content addressing makes duplicate uploads convergent. Get of an
// absent address fails with dataerr.ErrNotFound attributed to the
// address.
//
// A [RegisterStore] holds register entries. PutRegister merges a
// delta into the stored register and returns the merged view, so a
// writer learns about concurrent entries in the same round trip.
//
// Backends:
//
//   - [Memory]: maps behind a mutex, for tests and single-process use.
//   - [SQLite]: a sqlitepool database with chunks and register_entries
//     tables.
//   - [Badger]: a Badger key-value store with prefixed keys; an empty
//     directory opens it in memory.
//
// [Cached] wraps any ChunkStore with an LRU of verified reads.
//
// Every backend accepts an optional payment.Verifier. When set, a put
// of a new chunk must carry a proof covering its address; rejections
// wrap dataerr.ErrPaymentRejected.
package netstore
