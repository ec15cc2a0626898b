// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package upload

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/dustin/go-humanize"

	"github.com/bureau-foundation/selfstore/lib/address"
	"github.com/bureau-foundation/selfstore/lib/clock"
	"github.com/bureau-foundation/selfstore/lib/dataerr"
	"github.com/bureau-foundation/selfstore/lib/metrics"
	"github.com/bureau-foundation/selfstore/lib/netstore"
	"github.com/bureau-foundation/selfstore/lib/payment"
	"github.com/bureau-foundation/selfstore/lib/retry"
	"github.com/bureau-foundation/selfstore/lib/selfencrypt"
)

// DefaultConcurrency is the put fan-out when Config.Concurrency is
// unset.
const DefaultConcurrency = 8

// Config configures a Coordinator. Store, Quoter, and Payer are
// required.
type Config struct {
	Store  netstore.ChunkStore
	Quoter payment.Quoter
	Payer  payment.Payer

	// Concurrency bounds in-flight store calls per upload.
	Concurrency int

	// Retry bounds retries of one put or existence check.
	Retry retry.Policy

	Clock   clock.Clock
	Logger  *slog.Logger
	Metrics *metrics.Metrics
}

// Receipt describes the outcome of an upload.
type Receipt struct {
	// Stored lists the addresses written by this upload, sorted.
	Stored []address.Address

	// Skipped lists the addresses the store already held, sorted.
	Skipped []address.Address

	// Cost is the amount debited for this upload. It is zero when the
	// proof was reused from an earlier payment.
	Cost uint64

	// Proof is the payment attached to the puts, or nil when nothing
	// needed paying for.
	Proof *payment.Proof
}

// Coordinator uploads chunk batches. Safe for concurrent use.
type Coordinator struct {
	store       netstore.ChunkStore
	quoter      payment.Quoter
	payer       payment.Payer
	concurrency int
	retry       retry.Policy
	clock       clock.Clock
	logger      *slog.Logger
	metrics     *metrics.Metrics

	flights singleflight.Group
}

// New creates a Coordinator.
func New(cfg Config) (*Coordinator, error) {
	var missing []error
	if cfg.Store == nil {
		missing = append(missing, errors.New("Store is required"))
	}
	if cfg.Quoter == nil {
		missing = append(missing, errors.New("Quoter is required"))
	}
	if cfg.Payer == nil {
		missing = append(missing, errors.New("Payer is required"))
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("upload: %w", errors.Join(missing...))
	}

	c := &Coordinator{
		store:       cfg.Store,
		quoter:      cfg.Quoter,
		payer:       cfg.Payer,
		concurrency: cfg.Concurrency,
		retry:       cfg.Retry,
		clock:       cfg.Clock,
		logger:      cfg.Logger,
		metrics:     cfg.Metrics,
	}
	if c.concurrency <= 0 {
		c.concurrency = DefaultConcurrency
	}
	if c.clock == nil {
		c.clock = clock.Real()
	}
	if c.logger == nil {
		c.logger = slog.New(slog.DiscardHandler)
	}
	return c, nil
}

// Upload stores every chunk of the batch that the store does not
// already hold. The receipt is returned even when err is non-nil and
// lists what was stored before the failure. Per-address failures are
// joined into err, each attributed to its address; a payment
// rejection is returned alone.
func (c *Coordinator) Upload(ctx context.Context, chunks []selfencrypt.EncryptedChunk) (*Receipt, error) {
	start := c.clock.Now()
	receipt := &Receipt{}
	batch := dedup(chunks)
	if len(batch) == 0 {
		return receipt, nil
	}

	missing, skipped, err := c.partition(ctx, batch)
	if err != nil {
		return receipt, err
	}
	receipt.Skipped = skipped
	c.metrics.AddSkipped(len(skipped))
	if len(missing) == 0 {
		c.logger.Debug("upload skipped, every chunk already stored", "chunk_count", len(skipped))
		return receipt, nil
	}

	addresses := make([]address.Address, len(missing))
	for i, chunk := range missing {
		addresses[i] = chunk.Address
	}
	quote, err := c.quoter.Quote(ctx, addresses)
	if err != nil {
		return receipt, fmt.Errorf("quoting %d chunks: %w", len(addresses), err)
	}
	paid, err := c.payer.Pay(ctx, quote)
	if err != nil {
		return receipt, fmt.Errorf("paying quote %s: %w", quote.ID, err)
	}
	receipt.Proof = paid.Proof
	receipt.Cost = paid.Debited

	stored, err := c.putAll(ctx, missing, paid.Proof)
	receipt.Stored = stored
	c.metrics.AddUploaded(len(stored))
	if err != nil {
		return receipt, err
	}

	var bytes uint64
	for _, chunk := range missing {
		bytes += uint64(len(chunk.Content))
	}
	c.logger.Info("upload complete",
		"stored", len(stored),
		"skipped", len(skipped),
		"size", humanize.IBytes(bytes),
		"cost", receipt.Cost,
		"elapsed", c.clock.Now().Sub(start).Round(time.Millisecond),
	)
	return receipt, nil
}

// partition asks the store which chunks it holds. An existence check
// that keeps failing counts the chunk as missing: putting it again is
// harmless.
func (c *Coordinator) partition(ctx context.Context, batch []selfencrypt.EncryptedChunk) (missing []selfencrypt.EncryptedChunk, skipped []address.Address, err error) {
	present := make([]bool, len(batch))
	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(c.concurrency)
	for i, chunk := range batch {
		group.Go(func() error {
			var has bool
			err := retry.Do(groupCtx, c.clock, c.retry, func(ctx context.Context) error {
				var err error
				has, err = c.store.Has(ctx, chunk.Address)
				return err
			}, nil)
			if err != nil {
				if ctxErr := groupCtx.Err(); ctxErr != nil {
					return ctxErr
				}
				c.logger.Warn("existence check failed, uploading anyway", "address", chunk.Address.Short(), "error", err)
				return nil
			}
			present[i] = has
			return nil
		})
	}
	if err := group.Wait(); err != nil {
		return nil, nil, err
	}
	for i, chunk := range batch {
		if present[i] {
			skipped = append(skipped, chunk.Address)
		} else {
			missing = append(missing, chunk)
		}
	}
	slices.SortFunc(skipped, address.Address.Compare)
	return missing, skipped, nil
}

// putAll puts the chunks in parallel. Only a payment rejection cancels
// the batch; other failures are collected.
func (c *Coordinator) putAll(ctx context.Context, chunks []selfencrypt.EncryptedChunk, proof *payment.Proof) ([]address.Address, error) {
	var (
		mu       sync.Mutex
		stored   []address.Address
		failures []error
	)
	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(c.concurrency)
	for _, chunk := range chunks {
		if groupCtx.Err() != nil {
			break
		}
		group.Go(func() error {
			err := c.sharedPut(groupCtx, chunk, proof)
			if errors.Is(err, dataerr.ErrPaymentRejected) {
				return err
			}
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				failures = append(failures, err)
				return nil
			}
			stored = append(stored, chunk.Address)
			return nil
		})
	}
	err := group.Wait()
	slices.SortFunc(stored, address.Address.Compare)
	if err != nil {
		c.metrics.PaymentRejected()
		c.logger.Error("payment rejected, upload abandoned", "stored", len(stored), "error", err)
		return stored, err
	}
	if err := ctx.Err(); err != nil {
		return stored, err
	}
	if len(failures) > 0 {
		c.logger.Error("upload incomplete", "stored", len(stored), "failed", len(failures))
		return stored, errors.Join(failures...)
	}
	return stored, nil
}

// sharedPut joins an in-flight put of the same address when one
// exists. A shared put that ended because its originator was
// cancelled is redone under this caller's context.
func (c *Coordinator) sharedPut(ctx context.Context, chunk selfencrypt.EncryptedChunk, proof *payment.Proof) error {
	_, err, shared := c.flights.Do(string(chunk.Address[:]), func() (any, error) {
		return nil, c.put(ctx, chunk, proof)
	})
	if err != nil && shared && ctx.Err() == nil &&
		(errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)) {
		return c.put(ctx, chunk, proof)
	}
	return err
}

// put stores one chunk, retrying transient failures.
func (c *Coordinator) put(ctx context.Context, chunk selfencrypt.EncryptedChunk, proof *payment.Proof) error {
	start := c.clock.Now()
	err := retry.Do(ctx, c.clock, c.retry, func(ctx context.Context) error {
		return c.store.Put(ctx, chunk.Address, chunk.Content, proof)
	}, func(attempt int, delay time.Duration, err error) {
		c.metrics.UploadRetry()
		c.logger.Warn("chunk put failed, retrying",
			"address", chunk.Address.Short(),
			"attempt", attempt,
			"backoff", delay,
			"error", err,
		)
	})
	if err != nil {
		return dataerr.NewChunkError("put", chunk.Address, err)
	}
	c.metrics.ObservePut(c.clock.Now().Sub(start))
	c.logger.Debug("chunk stored", "address", chunk.Address.Short(), "size", len(chunk.Content))
	return nil
}

// dedup drops repeated addresses, keeping the first occurrence.
func dedup(chunks []selfencrypt.EncryptedChunk) []selfencrypt.EncryptedChunk {
	seen := make(map[address.Address]struct{}, len(chunks))
	result := make([]selfencrypt.EncryptedChunk, 0, len(chunks))
	for _, chunk := range chunks {
		if _, ok := seen[chunk.Address]; ok {
			continue
		}
		seen[chunk.Address] = struct{}{}
		result = append(result, chunk)
	}
	return result
}
