// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package upload sends encrypted chunks to a chunk store behind a
// payment gate.
//
// [Coordinator.Upload] deduplicates a batch by address, asks the store
// which addresses it already holds, and quotes and pays only for the
// rest. The missing chunks are then put in parallel, each carrying the
// proof. Transient failures are retried per address with exponential
// backoff; one chunk's failure does not stop the others. A payment
// rejection is different: proofs are bound to their batch, so the
// first rejection cancels every outstanding put and is returned
// immediately without retry.
//
// Concurrent uploads through one Coordinator that put the same address
// at the same time share a single put.
package upload
