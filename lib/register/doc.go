// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package register implements the mutable pointer of the storage
// network: a replicated log whose entries form a hash-linked DAG.
//
// Every entry names its parents by hash, and its own hash covers the
// register key, its payload, and those parents. A register therefore
// cannot hold a cycle or a dangling edge: an entry is admitted only
// when every parent is already present, and no entry can cite one
// created after it.
//
// The register's value is its tip set, the entries no other entry
// cites as a parent. Concurrent writers produce several tips; the
// register never picks a winner. A writer that wants a single
// successor writes an entry whose parents are all current tips:
//
//	tips := reg.Tips()
//	parents := make([]address.Address, len(tips))
//	for i, tip := range tips {
//	    parents[i] = tip.Hash
//	}
//	entry, err := reg.Write(payload, parents)
//
// Replicas exchange a [View] (every entry) or a delta (the entries
// the other side lacks) and [Register.Merge] it. Merge is a set
// union, so it is commutative, associative, and idempotent, and two
// replicas that have merged each other's entries report the same
// tips.
//
// Entries live in an arena keyed by hash; parent links are hashes, not
// pointers.
package register
