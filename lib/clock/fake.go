// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package clock

import (
	"cmp"
	"slices"
	"sync"
	"time"
)

// FakeClock is a Clock whose time moves only when Advance is called.
// Safe for concurrent use.
type FakeClock struct {
	mu      sync.Mutex
	now     time.Time
	waiters []waiter
	// registered is signalled whenever a waiter is added.
	registered *sync.Cond
}

type waiter struct {
	at   time.Time
	fire chan time.Time
}

// Fake returns a FakeClock reading start.
func Fake(start time.Time) *FakeClock {
	fake := &FakeClock{now: start}
	fake.registered = sync.NewCond(&fake.mu)
	return fake
}

// Now returns the fake time.
func (f *FakeClock) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

// After returns a channel that fires once Advance reaches now+d.
// Non-positive durations fire immediately.
func (f *FakeClock) After(d time.Duration) <-chan time.Time {
	fire := make(chan time.Time, 1)
	f.mu.Lock()
	defer f.mu.Unlock()
	if d <= 0 {
		fire <- f.now
		return fire
	}
	f.waiters = append(f.waiters, waiter{at: f.now.Add(d), fire: fire})
	f.registered.Broadcast()
	return fire
}

// Advance moves time forward by d and fires the waiters that came
// due, in deadline order.
func (f *FakeClock) Advance(d time.Duration) {
	f.mu.Lock()
	f.now = f.now.Add(d)
	now := f.now
	var due []waiter
	f.waiters = slices.DeleteFunc(f.waiters, func(w waiter) bool {
		if w.at.After(now) {
			return false
		}
		due = append(due, w)
		return true
	})
	f.mu.Unlock()

	slices.SortStableFunc(due, func(a, b waiter) int { return cmp.Compare(a.at.UnixNano(), b.at.UnixNano()) })
	for _, w := range due {
		w.fire <- now
	}
}

// WaitForTimers blocks until n or more waiters are pending. Tests call
// it before Advance so the goroutine under test has registered its
// wait.
func (f *FakeClock) WaitForTimers(n int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for len(f.waiters) < n {
		f.registered.Wait()
	}
}

// PendingCount is the number of waiters not yet fired.
func (f *FakeClock) PendingCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.waiters)
}
