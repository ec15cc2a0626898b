// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package netstore

import (
	"context"
	"log/slog"

	"github.com/bureau-foundation/selfstore/lib/address"
	"github.com/bureau-foundation/selfstore/lib/dataerr"
	"github.com/bureau-foundation/selfstore/lib/payment"
	"github.com/bureau-foundation/selfstore/lib/register"
)

// ChunkStore stores immutable chunks by address.
type ChunkStore interface {
	// Put stores content under addr. Content that does not hash to
	// addr fails with dataerr.ErrCorruptChunk. An address already
	// present succeeds without storing anything.
	Put(ctx context.Context, addr address.Address, content []byte, proof *payment.Proof) error

	// Get returns the content stored under addr, or an error wrapping
	// dataerr.ErrNotFound.
	Get(ctx context.Context, addr address.Address) ([]byte, error)

	// Has reports whether addr is stored.
	Has(ctx context.Context, addr address.Address) (bool, error)
}

// RegisterStore stores register entries by register key.
type RegisterStore interface {
	// PutRegister merges delta into the stored register and returns
	// the complete merged view.
	PutRegister(ctx context.Context, key address.Address, delta *register.View) (*register.View, error)

	// GetRegister returns every stored entry of the register. A
	// register nobody has written is an empty view, not an error.
	GetRegister(ctx context.Context, key address.Address) (*register.View, error)
}

// Store is a backend serving both chunks and registers.
type Store interface {
	ChunkStore
	RegisterStore
	Close() error
}

// Options configures a backend.
type Options struct {
	// Verifier, when set, checks the payment proof of every new
	// chunk.
	Verifier payment.Verifier

	// Logger defaults to a discard logger.
	Logger *slog.Logger
}

func (o Options) logger() *slog.Logger {
	if o.Logger == nil {
		return slog.New(slog.DiscardHandler)
	}
	return o.Logger
}

// verifyContent checks that content belongs at addr.
func verifyContent(addr address.Address, content []byte) error {
	if !address.Verify(addr, content) {
		return dataerr.Corrupt(addr, "content of %d bytes does not hash to its address", len(content))
	}
	return nil
}

// verifyPayment checks proof against the configured verifier, if any.
func (o Options) verifyPayment(addr address.Address, proof *payment.Proof) error {
	if o.Verifier == nil {
		return nil
	}
	return dataerr.NewChunkError("put", addr, o.Verifier.Verify(proof, addr))
}

func notFound(addr address.Address) error {
	return dataerr.NewChunkError("get", addr, dataerr.ErrNotFound)
}

// mergeView merges delta into stored, checking that both belong to
// key. Returns the merged register and the delta entries it did not
// already hold.
func mergeView(key address.Address, stored, delta *register.View) (*register.Register, []register.Entry, error) {
	reg := register.New(key)
	if stored != nil {
		if _, err := reg.Merge(stored); err != nil {
			return nil, nil, err
		}
	}
	var fresh []register.Entry
	if delta == nil {
		return reg, nil, nil
	}
	for _, entry := range delta.Entries {
		if !reg.Has(entry.Hash) {
			fresh = append(fresh, entry)
		}
	}
	if _, err := reg.Merge(delta); err != nil {
		return nil, nil, err
	}
	return reg, fresh, nil
}
