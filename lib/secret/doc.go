// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package secret keeps long-lived key material out of the Go heap.
//
// A [Buffer] is an anonymous mmap region, mlock'd against swap and
// marked MADV_DONTDUMP, zeroed and unmapped on Close. The wallet keeps
// its age identity in one for as long as the wallet is open.
// [ReadFile] and [WriteFile] move identities between disk and a
// Buffer without leaving a heap copy behind.
//
// Per-chunk self-encryption keys are short-lived stack values and do
// not use this package: an upload derives thousands of them and the
// mlock limit would be exhausted.
package secret
