// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package retry

import (
	"context"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/bureau-foundation/selfstore/lib/clock"
	"github.com/bureau-foundation/selfstore/lib/dataerr"
)

// Policy bounds the retries of one chunk operation.
type Policy struct {
	// MaxAttempts counts the first try. 1 disables retries.
	MaxAttempts int

	InitialBackoff time.Duration
	MaxBackoff     time.Duration

	// Jitter is the backoff randomization factor in [0, 1). Zero
	// gives an exact doubling schedule.
	Jitter float64
}

// DefaultPolicy is five attempts from 250ms doubling to 10s.
func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts:    5,
		InitialBackoff: 250 * time.Millisecond,
		MaxBackoff:     10 * time.Second,
		Jitter:         0.2,
	}
}

func (p Policy) withDefaults() Policy {
	defaults := DefaultPolicy()
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = defaults.MaxAttempts
	}
	if p.InitialBackoff <= 0 {
		p.InitialBackoff = defaults.InitialBackoff
	}
	if p.MaxBackoff < p.InitialBackoff {
		p.MaxBackoff = max(defaults.MaxBackoff, p.InitialBackoff)
	}
	if p.Jitter < 0 || p.Jitter >= 1 {
		p.Jitter = 0
	}
	return p
}

// NotifyFunc observes a failed attempt that will be retried after
// delay. attempt counts from 1.
type NotifyFunc func(attempt int, delay time.Duration, err error)

// Do runs operation until it succeeds, returns an error that is not
// dataerr.ErrNetworkTransient, or exhausts p.MaxAttempts. Waits go
// through c so tests can drive them with a fake clock. A cancelled ctx
// ends the wait and returns ctx.Err().
func Do(ctx context.Context, c clock.Clock, p Policy, operation func(ctx context.Context) error, notify NotifyFunc) error {
	p = p.withDefaults()

	exponential := backoff.NewExponentialBackOff()
	exponential.InitialInterval = p.InitialBackoff
	exponential.MaxInterval = p.MaxBackoff
	exponential.RandomizationFactor = p.Jitter
	exponential.Multiplier = 2
	exponential.MaxElapsedTime = 0
	schedule := backoff.WithContext(backoff.WithMaxRetries(exponential, uint64(p.MaxAttempts-1)), ctx)

	attempt := 0
	err := backoff.RetryNotifyWithTimer(
		func() error {
			attempt++
			if err := ctx.Err(); err != nil {
				return backoff.Permanent(err)
			}
			err := operation(ctx)
			if err != nil && !dataerr.IsRetryable(err) {
				return backoff.Permanent(err)
			}
			return err
		},
		schedule,
		func(err error, delay time.Duration) {
			if notify != nil {
				notify(attempt, delay, err)
			}
		},
		&clockTimer{clock: c},
	)
	if err != nil && dataerr.IsRetryable(err) && attempt >= p.MaxAttempts {
		return fmt.Errorf("giving up after %d attempts: %w", attempt, err)
	}
	return err
}

// clockTimer adapts a clock.Clock to backoff.Timer.
type clockTimer struct {
	clock   clock.Clock
	channel <-chan time.Time
}

func (t *clockTimer) Start(duration time.Duration) { t.channel = t.clock.After(duration) }

func (t *clockTimer) Stop() {}

func (t *clockTimer) C() <-chan time.Time { return t.channel }
