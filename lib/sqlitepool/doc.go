// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package sqlitepool is the SQLite connection pool behind the SQLite
// chunk and register store.
//
// It wraps zombiezen.com/go/sqlite's sqlitex.Pool. Every connection
// gets WAL journaling, NORMAL synchronous, a 5 second busy timeout,
// and then the caller's schema script. [Pool.Write] runs a function
// in an IMMEDIATE transaction so read-merge-write sequences (register
// merges) cannot interleave; [Pool.Read] borrows a connection without
// a transaction.
package sqlitepool
