// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package codec provides the shared CBOR configuration for every
// persisted or transmitted structure: data maps, register views,
// payment proofs, and wallet state.
//
// The encoder uses Core Deterministic Encoding (RFC 8949 §4.2):
// sorted map keys, smallest integer encoding, no indefinite-length
// items. Determinism is load-bearing here. A data map's bytes are
// chunked and self-encrypted, so two encodings of the same map must
// be identical for the resulting addresses to deduplicate.
//
//	data, err := codec.Marshal(value)
//	err = codec.Unmarshal(data, &value)
//
// # Struct Tag Rules
//
// Types that only ever travel as CBOR use `cbor` tags. Types that may
// also be rendered as JSON (for logs or debugging output) use `json`
// tags, which fxamacker/cbor reads as a fallback. Never put both on
// the same field.
package codec
