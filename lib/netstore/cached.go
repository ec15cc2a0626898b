// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package netstore

import (
	"context"
	"fmt"
	"slices"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/bureau-foundation/selfstore/lib/address"
	"github.com/bureau-foundation/selfstore/lib/payment"
)

// Cached is a ChunkStore that keeps recently read or written chunks
// in memory. Only content that hashes to its address enters the
// cache.
type Cached struct {
	inner ChunkStore
	cache *lru.Cache[address.Address, []byte]
}

// NewCached wraps inner with an LRU holding up to entries chunks.
func NewCached(inner ChunkStore, entries int) (*Cached, error) {
	cache, err := lru.New[address.Address, []byte](entries)
	if err != nil {
		return nil, fmt.Errorf("creating chunk cache: %w", err)
	}
	return &Cached{inner: inner, cache: cache}, nil
}

// Put implements ChunkStore.
func (c *Cached) Put(ctx context.Context, addr address.Address, content []byte, proof *payment.Proof) error {
	if err := c.inner.Put(ctx, addr, content, proof); err != nil {
		return err
	}
	c.cache.Add(addr, slices.Clone(content))
	return nil
}

// Get implements ChunkStore. A fetched chunk that fails verification
// is returned as an error and not cached.
func (c *Cached) Get(ctx context.Context, addr address.Address) ([]byte, error) {
	if content, ok := c.cache.Get(addr); ok {
		return slices.Clone(content), nil
	}
	content, err := c.inner.Get(ctx, addr)
	if err != nil {
		return nil, err
	}
	if err := verifyContent(addr, content); err != nil {
		return nil, err
	}
	c.cache.Add(addr, slices.Clone(content))
	return content, nil
}

// Has implements ChunkStore.
func (c *Cached) Has(ctx context.Context, addr address.Address) (bool, error) {
	if c.cache.Contains(addr) {
		return true, nil
	}
	return c.inner.Has(ctx, addr)
}

// Len is the number of cached chunks.
func (c *Cached) Len() int {
	return c.cache.Len()
}
