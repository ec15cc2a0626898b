// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package dataerr defines the failure taxonomy shared by the chunk
// pipeline, the upload path, and the register CRDT.
//
// Every failure that concerns a single chunk is wrapped in a
// [ChunkError] naming the address, so a caller holding an error from
// a large reconstruction can tell exactly which chunk to retry or
// report. The sentinel underneath says what kind of failure it was:
//
//	var chunkErr *dataerr.ChunkError
//	if errors.As(err, &chunkErr) && errors.Is(err, dataerr.ErrNotFound) {
//	    logger.Warn("chunk missing", "address", chunkErr.Address)
//	}
//
// Multi-tip register state is a value, not an error, and has no entry
// here.
package dataerr

import (
	"errors"
	"fmt"

	"github.com/bureau-foundation/selfstore/lib/address"
)

var (
	// ErrNotFound means the address is absent from the store. The
	// core never retries it; a caller may retry later at a higher
	// level.
	ErrNotFound = errors.New("not found")

	// ErrCorruptChunk means fetched bytes failed verification: the
	// content hash does not match the address, authentication failed,
	// or the decrypted plaintext does not match its recorded source
	// hash. Never retried against the same source.
	ErrCorruptChunk = errors.New("corrupt chunk")

	// ErrNetworkTransient covers timeouts and connection failures.
	// Upload and reconstruction retry it with bounded backoff.
	ErrNetworkTransient = errors.New("transient network failure")

	// ErrPaymentRejected means the store refused the payment proof.
	// Proofs are batch-bound, so this is surfaced immediately.
	ErrPaymentRejected = errors.New("payment rejected")

	// ErrMalformedDataMap means a data map is structurally invalid.
	ErrMalformedDataMap = errors.New("malformed data map")

	// ErrUnknownParent means a register entry cites a parent that is
	// not present in the register.
	ErrUnknownParent = errors.New("unknown parent entry")
)

// ChunkError attributes a failure to a single address.
type ChunkError struct {
	// Address is the chunk the failure concerns.
	Address address.Address

	// Op names the operation that failed: "get", "put", "decrypt",
	// "verify".
	Op string

	// Err is the underlying error, normally wrapping one of the
	// sentinels above.
	Err error
}

// NewChunkError wraps err with the address and operation it concerns.
// Returns nil when err is nil. An error that is already a ChunkError
// for the same address is returned unchanged.
func NewChunkError(op string, chunkAddress address.Address, err error) error {
	if err == nil {
		return nil
	}
	var existing *ChunkError
	if errors.As(err, &existing) && existing.Address == chunkAddress {
		return err
	}
	return &ChunkError{Address: chunkAddress, Op: op, Err: err}
}

func (e *ChunkError) Error() string {
	return fmt.Sprintf("%s chunk %s: %v", e.Op, e.Address.Short(), e.Err)
}

func (e *ChunkError) Unwrap() error {
	return e.Err
}

// Corrupt builds an ErrCorruptChunk failure for chunkAddress with a
// description of what did not match.
func Corrupt(chunkAddress address.Address, format string, args ...any) error {
	return &ChunkError{
		Address: chunkAddress,
		Op:      "verify",
		Err:     fmt.Errorf("%w: %s", ErrCorruptChunk, fmt.Sprintf(format, args...)),
	}
}

// Transient marks err as a retryable network failure. Stores use it
// to classify timeouts and connection errors from their transport.
func Transient(err error) error {
	if err == nil || errors.Is(err, ErrNetworkTransient) {
		return err
	}
	return fmt.Errorf("%w: %w", ErrNetworkTransient, err)
}

// IsRetryable reports whether err is worth retrying against the same
// store. Only transient network failures are.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrNetworkTransient)
}

// AddressOf returns the address a failure is attributed to.
func AddressOf(err error) (address.Address, bool) {
	var chunkErr *ChunkError
	if errors.As(err, &chunkErr) {
		return chunkErr.Address, true
	}
	return address.Address{}, false
}
