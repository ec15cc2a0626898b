// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package version reports which build of the selfstore library is
// linked into the running program. The client logs it when it opens.
//
// Release builds of an embedding program set the variables with
// -ldflags:
//
//	-ldflags "-X github.com/bureau-foundation/selfstore/lib/version.Version=v0.2.0"
//
// Other builds fall back to the VCS stamp the Go toolchain embeds.
package version
