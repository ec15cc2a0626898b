// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package netstore

import (
	"context"
	"log/slog"
	"slices"
	"sync"

	"github.com/bureau-foundation/selfstore/lib/address"
	"github.com/bureau-foundation/selfstore/lib/payment"
	"github.com/bureau-foundation/selfstore/lib/register"
)

// Memory is an in-process Store. Safe for concurrent use.
type Memory struct {
	options Options
	logger  *slog.Logger

	mu        sync.RWMutex
	chunks    map[address.Address][]byte
	registers map[address.Address]*register.Register
}

// NewMemory creates an empty Memory store.
func NewMemory(options Options) *Memory {
	return &Memory{
		options:   options,
		logger:    options.logger(),
		chunks:    make(map[address.Address][]byte),
		registers: make(map[address.Address]*register.Register),
	}
}

// Put implements ChunkStore.
func (m *Memory) Put(ctx context.Context, addr address.Address, content []byte, proof *payment.Proof) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := verifyContent(addr, content); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.chunks[addr]; ok {
		return nil
	}
	if err := m.options.verifyPayment(addr, proof); err != nil {
		return err
	}
	m.chunks[addr] = slices.Clone(content)
	m.logger.Debug("chunk stored", "address", addr.Short(), "size", len(content))
	return nil
}

// Get implements ChunkStore.
func (m *Memory) Get(ctx context.Context, addr address.Address) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	content, ok := m.chunks[addr]
	if !ok {
		return nil, notFound(addr)
	}
	return slices.Clone(content), nil
}

// Has implements ChunkStore.
func (m *Memory) Has(ctx context.Context, addr address.Address) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.chunks[addr]
	return ok, nil
}

// Len is the number of distinct chunks stored.
func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.chunks)
}

// Corrupt replaces the stored bytes of addr without verification.
// Tests use it to simulate bit rot.
func (m *Memory) Corrupt(addr address.Address, content []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.chunks[addr] = slices.Clone(content)
}

// PutRegister implements RegisterStore.
func (m *Memory) PutRegister(ctx context.Context, key address.Address, delta *register.View) (*register.View, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if delta == nil {
		delta = &register.View{Key: key}
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	reg, ok := m.registers[key]
	if !ok {
		reg = register.New(key)
	}
	added, err := reg.Merge(delta)
	if err != nil {
		return nil, err
	}
	m.registers[key] = reg
	if added > 0 {
		m.logger.Debug("register updated", "register", key.Short(), "added", added, "tips", len(reg.Tips()))
	}
	return reg.View(), nil
}

// GetRegister implements RegisterStore.
func (m *Memory) GetRegister(ctx context.Context, key address.Address) (*register.View, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	reg, ok := m.registers[key]
	if !ok {
		return &register.View{Key: key}, nil
	}
	return reg.View(), nil
}

// Close implements Store. A Memory store holds no resources.
func (m *Memory) Close() error {
	return nil
}
