// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package payment is the payment side of the upload path: a [Quoter]
// prices the chunks an upload still needs, a [Payer] turns the quote
// into a [Proof], and chunk stores check the proof with a [Verifier].
//
// The ledger itself lives elsewhere. [FlatRate] and [Wallet] are the
// local implementations used by tests and single-machine networks:
// the wallet keeps a balance and a record of which chunk addresses it
// has paid for, tags proofs with a BLAKE3 MAC keyed from its age
// identity, and seals its state to that identity on disk.
//
// Wallet directory layout:
//
//	identity.key   age x25519 identity, mode 0600
//	wallet.age     CBOR wallet state sealed to the identity
package payment
