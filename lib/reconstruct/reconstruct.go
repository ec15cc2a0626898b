// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package reconstruct

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/dustin/go-humanize"

	"github.com/bureau-foundation/selfstore/lib/address"
	"github.com/bureau-foundation/selfstore/lib/clock"
	"github.com/bureau-foundation/selfstore/lib/dataerr"
	"github.com/bureau-foundation/selfstore/lib/datamap"
	"github.com/bureau-foundation/selfstore/lib/metrics"
	"github.com/bureau-foundation/selfstore/lib/retry"
	"github.com/bureau-foundation/selfstore/lib/selfencrypt"
)

// DefaultConcurrency is the fetch fan-out when Config.Concurrency is
// unset.
const DefaultConcurrency = 16

// MaxRootMapSize bounds a root data map chunk fetched by address.
const MaxRootMapSize = 16 * 1024 * 1024

// Fetcher retrieves encrypted chunks. A netstore.ChunkStore is one.
type Fetcher interface {
	Get(ctx context.Context, addr address.Address) ([]byte, error)
}

// Config configures a Reconstructor. Fetcher is required.
type Config struct {
	Fetcher Fetcher

	// Concurrency bounds in-flight fetches per level.
	Concurrency int

	// Retry bounds retries of one fetch.
	Retry retry.Policy

	Clock   clock.Clock
	Logger  *slog.Logger
	Metrics *metrics.Metrics
}

// Reconstructor fetches and decrypts objects. Safe for concurrent use.
type Reconstructor struct {
	fetcher     Fetcher
	concurrency int
	retry       retry.Policy
	clock       clock.Clock
	logger      *slog.Logger
	metrics     *metrics.Metrics
}

// New creates a Reconstructor.
func New(cfg Config) (*Reconstructor, error) {
	if cfg.Fetcher == nil {
		return nil, errors.New("reconstruct: Fetcher is required")
	}
	r := &Reconstructor{
		fetcher:     cfg.Fetcher,
		concurrency: cfg.Concurrency,
		retry:       cfg.Retry,
		clock:       cfg.Clock,
		logger:      cfg.Logger,
		metrics:     cfg.Metrics,
	}
	if r.concurrency <= 0 {
		r.concurrency = DefaultConcurrency
	}
	if r.clock == nil {
		r.clock = clock.Real()
	}
	if r.logger == nil {
		r.logger = slog.New(slog.DiscardHandler)
	}
	return r, nil
}

// Chunks resolves m to its content level and returns the decrypted
// content chunks in order.
func (r *Reconstructor) Chunks(ctx context.Context, m *datamap.DataMap) ([][]byte, error) {
	content, err := r.Resolve(ctx, m)
	if err != nil {
		return nil, err
	}
	return r.decryptLevel(ctx, content)
}

// Resolve walks m down to its content-level map, fetching and
// decrypting every intermediate level. A map already at level 0 is
// validated and returned as is.
func (r *Reconstructor) Resolve(ctx context.Context, m *datamap.DataMap) (*datamap.DataMap, error) {
	return datamap.Resolve(ctx, m, r.unwrap)
}

// Retrieve returns the complete object described by m.
func (r *Reconstructor) Retrieve(ctx context.Context, m *datamap.DataMap) ([]byte, error) {
	start := r.clock.Now()
	chunks, err := r.Chunks(ctx, m)
	if err != nil {
		return nil, err
	}
	output := join(chunks)
	r.logger.Info("object retrieved",
		"size", humanize.IBytes(uint64(len(output))),
		"chunk_count", len(chunks),
		"level", m.Level,
		"elapsed", r.clock.Now().Sub(start).Round(time.Millisecond),
	)
	return output, nil
}

// Write streams the object described by m to w in chunk order and
// returns the number of bytes written. Nothing is written unless
// every chunk verified.
func (r *Reconstructor) Write(ctx context.Context, m *datamap.DataMap, w io.Writer) (int64, error) {
	chunks, err := r.Chunks(ctx, m)
	if err != nil {
		return 0, err
	}
	var written int64
	for i, chunk := range chunks {
		n, err := w.Write(chunk)
		written += int64(n)
		if err != nil {
			return written, fmt.Errorf("writing chunk %d: %w", i, err)
		}
	}
	return written, nil
}

// Get retrieves an object by the address of its stored root data map.
// The root map chunk is stored unencrypted and must hash to addr in
// the data map domain.
func (r *Reconstructor) Get(ctx context.Context, addr address.Address) ([]byte, error) {
	m, err := r.FetchDataMap(ctx, addr)
	if err != nil {
		return nil, err
	}
	return r.Retrieve(ctx, m)
}

// FetchDataMap fetches, verifies, and decodes the root data map stored
// at addr.
func (r *Reconstructor) FetchDataMap(ctx context.Context, addr address.Address) (*datamap.DataMap, error) {
	serialized, err := r.fetch(ctx, addr)
	if err != nil {
		return nil, err
	}
	if len(serialized) > MaxRootMapSize {
		return nil, dataerr.Corrupt(addr, "root data map is %d bytes, maximum is %d", len(serialized), MaxRootMapSize)
	}
	if address.ForDataMap(serialized) != addr {
		r.metrics.Corrupt()
		return nil, dataerr.Corrupt(addr, "content is not the data map stored at this address")
	}
	m, err := datamap.Unmarshal(serialized)
	if err != nil {
		return nil, dataerr.NewChunkError("decode", addr, err)
	}
	return m, nil
}

// unwrap is the datamap.UnwrapFunc: the joined plaintext of one level.
func (r *Reconstructor) unwrap(ctx context.Context, m *datamap.DataMap) ([]byte, error) {
	chunks, err := r.decryptLevel(ctx, m)
	if err != nil {
		return nil, err
	}
	serialized := join(chunks)
	r.logger.Debug("data map level unwrapped", "level", m.Level, "chunk_count", len(m.Chunks))
	return serialized, nil
}

// decryptLevel fetches and decrypts every chunk of one map level.
// Results land in index order; the first failure cancels the rest.
// Chunks sharing an address (identical content with identical
// neighbors) are fetched once and decrypted at each position.
func (r *Reconstructor) decryptLevel(ctx context.Context, m *datamap.DataMap) ([][]byte, error) {
	sourceHashes := m.SourceHashes()
	results := make([][]byte, len(m.Chunks))

	var order []address.Address
	positions := make(map[address.Address][]int, len(m.Chunks))
	for i, info := range m.Chunks {
		if _, seen := positions[info.Address]; !seen {
			order = append(order, info.Address)
		}
		positions[info.Address] = append(positions[info.Address], i)
	}

	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(r.concurrency)
	for _, addr := range order {
		if groupCtx.Err() != nil {
			break
		}
		group.Go(func() error {
			content, err := r.fetch(groupCtx, addr)
			if err != nil {
				return err
			}
			for _, i := range positions[addr] {
				plaintext, err := selfencrypt.DecryptChunk(m.Chunks[i], sourceHashes, content)
				if err != nil {
					if errors.Is(err, dataerr.ErrCorruptChunk) {
						r.metrics.Corrupt()
						r.logger.Error("corrupt chunk", "address", addr.Short(), "chunk_index", i, "error", err)
					}
					return err
				}
				results[i] = plaintext
			}
			r.logger.Debug("chunk verified", "address", addr.Short(), "positions", len(positions[addr]))
			return nil
		})
	}
	if err := group.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return results, nil
}

// fetch gets one chunk, retrying transient failures. Errors are
// attributed to addr.
func (r *Reconstructor) fetch(ctx context.Context, addr address.Address) ([]byte, error) {
	var content []byte
	err := retry.Do(ctx, r.clock, r.retry, func(ctx context.Context) error {
		var err error
		content, err = r.fetcher.Get(ctx, addr)
		return err
	}, func(attempt int, delay time.Duration, err error) {
		r.metrics.FetchRetry()
		r.logger.Warn("chunk fetch failed, retrying",
			"address", addr.Short(),
			"attempt", attempt,
			"backoff", delay,
			"error", err,
		)
	})
	if err != nil {
		return nil, dataerr.NewChunkError("get", addr, err)
	}
	r.metrics.Fetched()
	return content, nil
}

// join concatenates verified chunks. The total comes from the chunks
// themselves rather than a map's claimed size.
func join(chunks [][]byte) []byte {
	total := 0
	for _, chunk := range chunks {
		total += len(chunk)
	}
	output := make([]byte, 0, total)
	for _, chunk := range chunks {
		output = append(output, chunk...)
	}
	return output
}
