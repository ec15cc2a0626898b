// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package sealed wraps filippo.io/age for sealing the wallet's state
// file to the wallet's own x25519 identity.
//
// Identities keep their private half in a [secret.Buffer]. [Seal]
// writes the binary age format; [Open] reverses it. The decrypted
// wallet state (balances and spend records) is not itself secret, so
// Open returns it as an ordinary slice.
package sealed
