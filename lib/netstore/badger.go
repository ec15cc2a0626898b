// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package netstore

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/dgraph-io/badger/v4"

	"github.com/bureau-foundation/selfstore/lib/address"
	"github.com/bureau-foundation/selfstore/lib/codec"
	"github.com/bureau-foundation/selfstore/lib/dataerr"
	"github.com/bureau-foundation/selfstore/lib/payment"
	"github.com/bureau-foundation/selfstore/lib/register"
)

// Key prefixes. A chunk key is the prefix followed by the 32 address
// bytes; an entry key is the prefix, the register key, then the entry
// hash, so one register's entries are contiguous.
const (
	chunkPrefix = "c/"
	entryPrefix = "r/"
)

// conflictAttempts bounds retries of a register update that lost an
// optimistic-concurrency race inside Badger.
const conflictAttempts = 5

// Badger is a Store backed by a Badger key-value database.
type Badger struct {
	db      *badger.DB
	options Options
	logger  *slog.Logger
}

// OpenBadger opens or creates a database in dir. An empty dir keeps
// everything in memory.
func OpenBadger(dir string, options Options) (*Badger, error) {
	logger := options.logger()
	badgerOptions := badger.DefaultOptions(dir).WithLogger(badgerLogger{logger})
	if dir == "" {
		badgerOptions = badgerOptions.WithInMemory(true)
	}
	db, err := badger.Open(badgerOptions)
	if err != nil {
		return nil, fmt.Errorf("opening badger database %q: %w", dir, err)
	}
	return &Badger{db: db, options: options, logger: logger}, nil
}

func chunkKey(addr address.Address) []byte {
	return append([]byte(chunkPrefix), addr[:]...)
}

func registerPrefix(key address.Address) []byte {
	return append([]byte(entryPrefix), key[:]...)
}

func entryKey(key, hash address.Address) []byte {
	return append(registerPrefix(key), hash[:]...)
}

// Put implements ChunkStore. Chunk writes never read inside the
// update, so concurrent puts of the same address cannot conflict; the
// last one rewrites identical bytes.
func (b *Badger) Put(ctx context.Context, addr address.Address, content []byte, proof *payment.Proof) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := verifyContent(addr, content); err != nil {
		return err
	}
	present, err := b.Has(ctx, addr)
	if err != nil || present {
		return err
	}
	if err := b.options.verifyPayment(addr, proof); err != nil {
		return err
	}
	err = b.db.Update(func(txn *badger.Txn) error {
		return txn.Set(chunkKey(addr), content)
	})
	if err != nil {
		return dataerr.NewChunkError("put", addr, err)
	}
	b.logger.Debug("chunk stored", "address", addr.Short(), "size", len(content))
	return nil
}

// Get implements ChunkStore.
func (b *Badger) Get(ctx context.Context, addr address.Address) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var content []byte
	err := b.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(chunkKey(addr))
		if err != nil {
			return err
		}
		content, err = item.ValueCopy(nil)
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, notFound(addr)
	}
	if err != nil {
		return nil, dataerr.NewChunkError("get", addr, err)
	}
	return content, nil
}

// Has implements ChunkStore.
func (b *Badger) Has(ctx context.Context, addr address.Address) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	err := b.db.View(func(txn *badger.Txn) error {
		_, err := txn.Get(chunkKey(addr))
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("looking up chunk %s: %w", addr.Short(), err)
	}
	return true, nil
}

// PutRegister implements RegisterStore. Concurrent updates of one
// register conflict in Badger's transaction layer; the loser reloads
// and merges again.
func (b *Badger) PutRegister(ctx context.Context, key address.Address, delta *register.View) (*register.View, error) {
	var lastErr error
	for range conflictAttempts {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		var merged *register.View
		err := b.db.Update(func(txn *badger.Txn) error {
			stored, err := loadBadgerRegister(txn, key)
			if err != nil {
				return err
			}
			reg, fresh, err := mergeView(key, stored, delta)
			if err != nil {
				return err
			}
			for _, entry := range fresh {
				encoded, err := codec.Marshal(entry)
				if err != nil {
					return fmt.Errorf("encoding register entry: %w", err)
				}
				if err := txn.Set(entryKey(key, entry.Hash), encoded); err != nil {
					return err
				}
			}
			if len(fresh) > 0 {
				b.logger.Debug("register updated", "register", key.Short(), "added", len(fresh), "tips", len(reg.Tips()))
			}
			merged = reg.View()
			return nil
		})
		if err == nil {
			return merged, nil
		}
		if !errors.Is(err, badger.ErrConflict) {
			return nil, err
		}
		lastErr = err
	}
	return nil, dataerr.Transient(fmt.Errorf("updating register %s: %w", key.Short(), lastErr))
}

// GetRegister implements RegisterStore.
func (b *Badger) GetRegister(ctx context.Context, key address.Address) (*register.View, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var view *register.View
	err := b.db.View(func(txn *badger.Txn) error {
		var err error
		view, err = loadBadgerRegister(txn, key)
		return err
	})
	if err != nil {
		return nil, err
	}
	return view, nil
}

func loadBadgerRegister(txn *badger.Txn, key address.Address) (*register.View, error) {
	view := &register.View{Key: key}
	iteratorOptions := badger.DefaultIteratorOptions
	iteratorOptions.Prefix = registerPrefix(key)
	iterator := txn.NewIterator(iteratorOptions)
	defer iterator.Close()

	for iterator.Rewind(); iterator.Valid(); iterator.Next() {
		encoded, err := iterator.Item().ValueCopy(nil)
		if err != nil {
			return nil, err
		}
		var entry register.Entry
		if err := codec.Unmarshal(encoded, &entry); err != nil {
			return nil, fmt.Errorf("decoding register entry: %w", err)
		}
		view.Entries = append(view.Entries, entry)
	}
	return view, nil
}

// Close implements Store.
func (b *Badger) Close() error {
	return b.db.Close()
}

// badgerLogger routes Badger's printf-style logging into slog. Badger
// is chatty at info level, so its info lines become debug.
type badgerLogger struct {
	logger *slog.Logger
}

func (l badgerLogger) Errorf(format string, args ...any) {
	l.logger.Error(fmt.Sprintf(format, args...), "component", "badger")
}

func (l badgerLogger) Warningf(format string, args ...any) {
	l.logger.Warn(fmt.Sprintf(format, args...), "component", "badger")
}

func (l badgerLogger) Infof(format string, args ...any) {
	l.logger.Debug(fmt.Sprintf(format, args...), "component", "badger")
}

func (l badgerLogger) Debugf(format string, args ...any) {
	l.logger.Debug(fmt.Sprintf(format, args...), "component", "badger")
}
