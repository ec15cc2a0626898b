// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package clock is the injectable time source used by retry loops and
// payment bookkeeping.
//
// Structs that wait or timestamp take a Clock field. Production wires
// Real(); tests wire Fake() and drive time by hand:
//
//	fake := clock.Fake(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
//	go coordinator.Upload(ctx, chunks) // retries wait on fake.After
//	fake.WaitForTimers(1)              // the retry has registered its wait
//	fake.Advance(time.Second)          // and now proceeds
//
// The retry package adapts a Clock into the timer its backoff loop
// waits on, so retry schedules are testable without sleeping.
package clock
