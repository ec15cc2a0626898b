// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package address defines the 32-byte content identifiers used
// throughout the client data layer and the hash domains that produce
// them.
//
// Every identifier is a BLAKE3 keyed hash. The key selects a domain:
// the same input bytes hash differently as a chunk pre-image, as an
// encrypted chunk, as a register entry, and so on. An address can
// therefore never be confused with a value from another domain even
// when the inputs collide.
//
// Domains:
//
//   - Source: plaintext chunk content before encryption. Recorded in
//     the data map and used to derive neighbor keys.
//   - Content: encrypted chunk bytes. This is the network address.
//   - DataMap: a serialized root data map stored as a public chunk.
//   - Register: an owner-scoped register key.
//   - Entry: a register entry.
package address
