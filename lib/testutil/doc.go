// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package testutil provides shared test helpers.
//
// [RandomBytes] returns reproducible pseudo-random payloads, so a
// failing roundtrip can be replayed from its seed. Random bytes do not
// compress, which keeps chunk sizes predictable.
//
// [RequireReceive] and [RequireClosed] wrap the select-with-timeout
// pattern for tests that wait on goroutines. They are the only place
// the test suite uses real wall-clock timeouts; backoff delays run on
// a fake clock.
//
// [UniqueID] generates monotonically increasing identifiers for
// deposit and quote IDs that must not collide within a test binary.
//
// All helpers call t.Fatalf on failure rather than returning errors.
package testutil
