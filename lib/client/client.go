// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package client

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/bureau-foundation/selfstore/lib/address"
	"github.com/bureau-foundation/selfstore/lib/chunker"
	"github.com/bureau-foundation/selfstore/lib/clock"
	"github.com/bureau-foundation/selfstore/lib/datamap"
	"github.com/bureau-foundation/selfstore/lib/metrics"
	"github.com/bureau-foundation/selfstore/lib/netstore"
	"github.com/bureau-foundation/selfstore/lib/payment"
	"github.com/bureau-foundation/selfstore/lib/reconstruct"
	"github.com/bureau-foundation/selfstore/lib/register"
	"github.com/bureau-foundation/selfstore/lib/retry"
	"github.com/bureau-foundation/selfstore/lib/selfencrypt"
	"github.com/bureau-foundation/selfstore/lib/upload"
)

// Config holds the collaborators and tuning of a Client. Store,
// Quoter, and Payer are required.
type Config struct {
	Store  netstore.Store
	Quoter payment.Quoter
	Payer  payment.Payer

	// Chunking defaults to chunker.DefaultConfig.
	Chunking    chunker.Config
	Compression selfencrypt.Compression

	UploadConcurrency int
	UploadRetry       retry.Policy
	FetchConcurrency  int
	FetchRetry        retry.Policy

	// CacheEntries, when positive, puts an LRU of verified chunks in
	// front of the store.
	CacheEntries int

	Clock   clock.Clock
	Logger  *slog.Logger
	Metrics *metrics.Metrics
}

// Client stores and retrieves objects and registers. Safe for
// concurrent use.
type Client struct {
	store         netstore.Store
	packOptions   selfencrypt.PackOptions
	uploader      *upload.Coordinator
	reconstructor *reconstruct.Reconstructor
	logger        *slog.Logger

	// closers run on Close, last first. Open registers what it
	// created.
	closers []func() error

	mu       sync.Mutex
	replicas map[address.Address]*register.Register
}

// New creates a Client over cfg's collaborators. Close does not close
// them.
func New(cfg Config) (*Client, error) {
	if cfg.Store == nil {
		return nil, errors.New("client: Store is required")
	}
	if cfg.Chunking == (chunker.Config{}) {
		cfg.Chunking = chunker.DefaultConfig()
	}
	if err := cfg.Chunking.Validate(); err != nil {
		return nil, err
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.New(slog.DiscardHandler)
	}

	var chunks netstore.ChunkStore = cfg.Store
	if cfg.CacheEntries > 0 {
		cached, err := netstore.NewCached(cfg.Store, cfg.CacheEntries)
		if err != nil {
			return nil, err
		}
		chunks = cached
	}

	uploader, err := upload.New(upload.Config{
		Store:       chunks,
		Quoter:      cfg.Quoter,
		Payer:       cfg.Payer,
		Concurrency: cfg.UploadConcurrency,
		Retry:       cfg.UploadRetry,
		Clock:       cfg.Clock,
		Logger:      cfg.Logger.With("component", "upload"),
		Metrics:     cfg.Metrics,
	})
	if err != nil {
		return nil, err
	}
	reconstructor, err := reconstruct.New(reconstruct.Config{
		Fetcher:     chunks,
		Concurrency: cfg.FetchConcurrency,
		Retry:       cfg.FetchRetry,
		Clock:       cfg.Clock,
		Logger:      cfg.Logger.With("component", "reconstruct"),
		Metrics:     cfg.Metrics,
	})
	if err != nil {
		return nil, err
	}

	return &Client{
		store: cfg.Store,
		packOptions: selfencrypt.PackOptions{
			Chunking: cfg.Chunking,
			Options:  selfencrypt.Options{Compression: cfg.Compression},
		},
		uploader:      uploader,
		reconstructor: reconstructor,
		logger:        cfg.Logger,
		replicas:      make(map[address.Address]*register.Register),
	}, nil
}

// Close releases what Open created. A Client from New holds nothing.
func (c *Client) Close() error {
	var errs []error
	for i := len(c.closers) - 1; i >= 0; i-- {
		errs = append(errs, c.closers[i]())
	}
	c.closers = nil
	return errors.Join(errs...)
}

// Store self-encrypts and uploads data and returns its data map. The
// map is the only way back to the data; keep it or use StoreAddress.
func (c *Client) Store(ctx context.Context, data []byte) (*datamap.DataMap, error) {
	packed, err := selfencrypt.Pack(data, c.packOptions)
	if err != nil {
		return nil, fmt.Errorf("encrypting object: %w", err)
	}
	if _, err := c.uploader.Upload(ctx, packed.Chunks); err != nil {
		return nil, fmt.Errorf("uploading object: %w", err)
	}
	return packed.DataMap, nil
}

// StoreAddress stores data and its root data map, and returns the
// address of the map. Get(address) returns data.
func (c *Client) StoreAddress(ctx context.Context, data []byte) (address.Address, error) {
	packed, err := selfencrypt.Pack(data, c.packOptions)
	if err != nil {
		return address.Address{}, fmt.Errorf("encrypting object: %w", err)
	}
	serialized, err := datamap.Marshal(packed.DataMap)
	if err != nil {
		return address.Address{}, err
	}
	root := selfencrypt.EncryptedChunk{Address: address.ForDataMap(serialized), Content: serialized}
	if _, err := c.uploader.Upload(ctx, append(packed.Chunks, root)); err != nil {
		return address.Address{}, fmt.Errorf("uploading object: %w", err)
	}
	return root.Address, nil
}

// Retrieve fetches and verifies the object described by m.
func (c *Client) Retrieve(ctx context.Context, m *datamap.DataMap) ([]byte, error) {
	return c.reconstructor.Retrieve(ctx, m)
}

// Get retrieves the object whose root data map is stored at addr.
func (c *Client) Get(ctx context.Context, addr address.Address) ([]byte, error) {
	return c.reconstructor.Get(ctx, addr)
}

// RegisterKey names the register called name owned by owner.
func RegisterKey(owner, name []byte) address.Address {
	return address.ForRegister(owner, name)
}

// RegisterWrite appends an entry to the register after pulling the
// stored view, so parents written elsewhere are known. Parents that
// are still unknown reject the write with dataerr.ErrUnknownParent.
//
// If the store rejects the push, the entry is returned together with
// the error. It stays in this client's replica, is visible to
// RegisterRead, and is pushed by the next write or merge of the
// register.
func (c *Client) RegisterWrite(ctx context.Context, key address.Address, payload []byte, parents []address.Address) (register.Entry, error) {
	replica, err := c.pull(ctx, key)
	if err != nil {
		return register.Entry{}, err
	}
	entry, err := replica.Write(payload, parents)
	if err != nil {
		return register.Entry{}, err
	}
	if err := c.push(ctx, replica); err != nil {
		c.logger.Warn("register entry kept locally", "register", key.Short(), "entry", entry.Hash.Short(), "error", err)
		return entry, fmt.Errorf("entry %s written locally but not stored: %w", entry.Hash.Short(), err)
	}
	c.logger.Debug("register entry written", "register", key.Short(), "entry", entry.Hash.Short(), "parents", len(entry.Parents))
	return entry, nil
}

// RegisterRead returns the register's current tips after merging the
// stored view. More than one tip means unreconciled concurrent writes.
func (c *Client) RegisterRead(ctx context.Context, key address.Address) ([]register.Entry, error) {
	replica, err := c.pull(ctx, key)
	if err != nil {
		return nil, err
	}
	return replica.Tips(), nil
}

// RegisterMerge merges a view received from elsewhere into the local
// replica and the store, and returns the resulting tips.
func (c *Client) RegisterMerge(ctx context.Context, key address.Address, view *register.View) ([]register.Entry, error) {
	replica, err := c.pull(ctx, key)
	if err != nil {
		return nil, err
	}
	if _, err := replica.Merge(view); err != nil {
		return nil, err
	}
	if err := c.push(ctx, replica); err != nil {
		return nil, err
	}
	return replica.Tips(), nil
}

// RegisterView returns every locally known entry of the register, for
// handing to another replica's RegisterMerge.
func (c *Client) RegisterView(ctx context.Context, key address.Address) (*register.View, error) {
	replica, err := c.pull(ctx, key)
	if err != nil {
		return nil, err
	}
	return replica.View(), nil
}

func (c *Client) replica(key address.Address) *register.Register {
	c.mu.Lock()
	defer c.mu.Unlock()
	replica, ok := c.replicas[key]
	if !ok {
		replica = register.New(key)
		c.replicas[key] = replica
	}
	return replica
}

// pull merges the stored view into the local replica.
func (c *Client) pull(ctx context.Context, key address.Address) (*register.Register, error) {
	replica := c.replica(key)
	view, err := c.store.GetRegister(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("reading register %s: %w", key.Short(), err)
	}
	if _, err := replica.Merge(view); err != nil {
		return nil, fmt.Errorf("merging stored register %s: %w", key.Short(), err)
	}
	return replica, nil
}

// push sends the entries the store lacks and merges back the result.
func (c *Client) push(ctx context.Context, replica *register.Register) error {
	key := replica.Key()
	stored, err := c.store.GetRegister(ctx, key)
	if err != nil {
		return fmt.Errorf("reading register %s: %w", key.Short(), err)
	}
	known := make([]address.Address, len(stored.Entries))
	for i, entry := range stored.Entries {
		known[i] = entry.Hash
	}
	merged, err := c.store.PutRegister(ctx, key, replica.Delta(known))
	if err != nil {
		return fmt.Errorf("writing register %s: %w", key.Short(), err)
	}
	if _, err := replica.Merge(merged); err != nil {
		return fmt.Errorf("merging register %s: %w", key.Short(), err)
	}
	return nil
}
