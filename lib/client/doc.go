// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package client is the surface callers use to store and retrieve
// objects and to read and write registers.
//
// A [Client] ties the pipeline together: Store chunks and
// self-encrypts the data, wraps the data map until it fits one chunk,
// and uploads every chunk through the payment-gated coordinator.
// Retrieve reverses it. StoreAddress additionally stores the root data
// map as a chunk of its own, so the whole object is named by one
// address that Get accepts.
//
// Registers are kept as local replicas synchronised with the register
// store on every call: reads pull and merge the stored view, writes
// push the new entry and merge back whatever concurrent writers added.
//
// [New] takes already-built collaborators. [Open] builds them from a
// config.Config: the storage backend, the local wallet, and a flat
// rate price oracle.
package client
