// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package client

import (
	"fmt"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/bureau-foundation/selfstore/lib/chunker"
	"github.com/bureau-foundation/selfstore/lib/config"
	"github.com/bureau-foundation/selfstore/lib/metrics"
	"github.com/bureau-foundation/selfstore/lib/netstore"
	"github.com/bureau-foundation/selfstore/lib/payment"
	"github.com/bureau-foundation/selfstore/lib/retry"
	"github.com/bureau-foundation/selfstore/lib/selfencrypt"
	"github.com/bureau-foundation/selfstore/lib/version"
)

// Open builds a Client from configuration: it opens the wallet in
// cfg.Wallet.Dir and the configured storage backend, which verifies
// payments against that wallet. registerer receives the client's
// metrics; nil disables them. Close releases the wallet and store.
func Open(cfg *config.Config, logger *slog.Logger, registerer prometheus.Registerer) (*Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	compression, err := selfencrypt.ParseCompression(cfg.Chunking.Compression)
	if err != nil {
		return nil, err
	}
	var m *metrics.Metrics
	if registerer != nil {
		m = metrics.New(registerer)
	}

	wallet, err := payment.OpenWallet(cfg.Wallet.Dir, payment.WalletOptions{Logger: logger.With("component", "wallet")})
	if err != nil {
		return nil, err
	}
	store, err := openStore(cfg.Storage, netstore.Options{
		Verifier: wallet.Verifier(),
		Logger:   logger.With("component", "store"),
	})
	if err != nil {
		wallet.Close()
		return nil, err
	}

	client, err := New(Config{
		Store:  store,
		Quoter: payment.FlatRate{PricePerChunk: cfg.Wallet.PricePerChunk},
		Payer:  wallet,
		Chunking: chunker.Config{
			Strategy:     chunker.Strategy(cfg.Chunking.Strategy),
			MinChunks:    cfg.Chunking.MinChunks,
			MaxChunkSize: int(cfg.Chunking.MaxChunkSize),
		},
		Compression:       compression,
		UploadConcurrency: cfg.Upload.Concurrency,
		UploadRetry: retry.Policy{
			MaxAttempts:    cfg.Upload.MaxAttempts,
			InitialBackoff: cfg.Upload.InitialBackoff,
			MaxBackoff:     cfg.Upload.MaxBackoff,
			Jitter:         retry.DefaultPolicy().Jitter,
		},
		FetchConcurrency: cfg.Fetch.Concurrency,
		FetchRetry: retry.Policy{
			MaxAttempts:    cfg.Fetch.MaxAttempts,
			InitialBackoff: cfg.Fetch.InitialBackoff,
			MaxBackoff:     cfg.Fetch.MaxBackoff,
			Jitter:         retry.DefaultPolicy().Jitter,
		},
		CacheEntries: cfg.Fetch.CacheEntries,
		Logger:       logger,
		Metrics:      m,
	})
	if err != nil {
		store.Close()
		wallet.Close()
		return nil, err
	}
	client.closers = []func() error{wallet.Close, store.Close}
	logger.Info("client opened",
		"version", version.Current().Version,
		"environment", cfg.Environment,
		"backend", cfg.Storage.Backend,
		"max_chunk_size", cfg.Chunking.MaxChunkSize.String(),
		"wallet", wallet.Recipient(),
	)
	return client, nil
}

func openStore(cfg config.StorageConfig, options netstore.Options) (netstore.Store, error) {
	switch cfg.Backend {
	case "memory":
		return netstore.NewMemory(options), nil
	case "sqlite":
		store, err := netstore.OpenSQLite(cfg.Path, options)
		if err != nil {
			return nil, err
		}
		return store, nil
	case "badger":
		store, err := netstore.OpenBadger(cfg.Path, options)
		if err != nil {
			return nil, err
		}
		return store, nil
	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.Backend)
	}
}
