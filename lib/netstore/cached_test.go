// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package netstore

import (
	"context"
	"errors"
	"testing"

	"github.com/bureau-foundation/selfstore/lib/address"
	"github.com/bureau-foundation/selfstore/lib/dataerr"
)

// countingStore counts Get calls reaching the wrapped store.
type countingStore struct {
	ChunkStore
	gets int
}

func (c *countingStore) Get(ctx context.Context, addr address.Address) ([]byte, error) {
	c.gets++
	return c.ChunkStore.Get(ctx, addr)
}

func TestCachedServesRepeatedReads(t *testing.T) {
	ctx := context.Background()
	memory := NewMemory(Options{})
	counter := &countingStore{ChunkStore: memory}
	cached, err := NewCached(counter, 2)
	if err != nil {
		t.Fatal(err)
	}

	addr, content := chunk("hot chunk")
	if err := memory.Put(ctx, addr, content, nil); err != nil {
		t.Fatal(err)
	}
	for range 3 {
		got, err := cached.Get(ctx, addr)
		if err != nil || string(got) != string(content) {
			t.Fatalf("Get = %q, %v", got, err)
		}
	}
	if counter.gets != 1 {
		t.Errorf("inner store saw %d gets, want 1", counter.gets)
	}

	// Mutating a returned slice must not poison the cache.
	got, _ := cached.Get(ctx, addr)
	got[0] ^= 0xff
	again, _ := cached.Get(ctx, addr)
	if string(again) != string(content) {
		t.Error("cache returned a slice aliased with an earlier result")
	}
}

func TestCachedEvicts(t *testing.T) {
	ctx := context.Background()
	memory := NewMemory(Options{})
	counter := &countingStore{ChunkStore: memory}
	cached, err := NewCached(counter, 2)
	if err != nil {
		t.Fatal(err)
	}
	var addrs []address.Address
	for _, name := range []string{"a", "b", "c"} {
		addr, content := chunk(name)
		addrs = append(addrs, addr)
		if err := cached.Put(ctx, addr, content, nil); err != nil {
			t.Fatal(err)
		}
	}
	if cached.Len() != 2 {
		t.Errorf("Len() = %d, want 2", cached.Len())
	}
	if _, err := cached.Get(ctx, addrs[0]); err != nil {
		t.Fatal(err)
	}
	if counter.gets != 1 {
		t.Errorf("evicted chunk was served without reaching the store")
	}
	if present, err := cached.Has(ctx, addrs[0]); err != nil || !present {
		t.Errorf("Has = %v, %v", present, err)
	}
}

func TestCachedRejectsCorruptReads(t *testing.T) {
	ctx := context.Background()
	memory := NewMemory(Options{})
	cached, err := NewCached(memory, 4)
	if err != nil {
		t.Fatal(err)
	}
	addr, content := chunk("will rot")
	if err := memory.Put(ctx, addr, content, nil); err != nil {
		t.Fatal(err)
	}
	memory.Corrupt(addr, []byte("rotten"))

	if _, err := cached.Get(ctx, addr); !errors.Is(err, dataerr.ErrCorruptChunk) {
		t.Fatalf("Get = %v, want ErrCorruptChunk", err)
	}
	if cached.Len() != 0 {
		t.Error("corrupt content entered the cache")
	}
}
