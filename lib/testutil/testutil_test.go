// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package testutil

import (
	"bytes"
	"fmt"
	"strings"
	"testing"
	"time"
)

type recordingTB struct {
	failed  bool
	message string
}

func (r *recordingTB) Helper() {}

func (r *recordingTB) Fatalf(format string, args ...any) {
	r.failed = true
	r.message = fmt.Sprintf(format, args...)
	// The helpers panic after Fatalf returns; stop here like
	// runtime.Goexit would.
	panic(r)
}

func capture(fn func(tb TB)) *recordingTB {
	tb := &recordingTB{}
	func() {
		defer func() {
			if recovered := recover(); recovered != nil && recovered != tb {
				panic(recovered)
			}
		}()
		fn(tb)
	}()
	return tb
}

func TestRandomBytesIsReproducible(t *testing.T) {
	a := RandomBytes(1000, 7)
	b := RandomBytes(1000, 7)
	c := RandomBytes(1000, 8)
	if !bytes.Equal(a, b) {
		t.Error("same seed gave different bytes")
	}
	if bytes.Equal(a, c) {
		t.Error("different seeds gave the same bytes")
	}
	if len(RandomBytes(0, 1)) != 0 {
		t.Error("zero size gave bytes")
	}
}

func TestUniqueID(t *testing.T) {
	first := UniqueID("deposit")
	second := UniqueID("deposit")
	if first == second || !strings.HasPrefix(first, "deposit-") {
		t.Errorf("UniqueID gave %q then %q", first, second)
	}
}

func TestRequireReceive(t *testing.T) {
	ch := make(chan int, 1)
	ch <- 42
	if got := RequireReceive(t, ch, time.Second, "value"); got != 42 {
		t.Errorf("got %d", got)
	}

	closed := make(chan int)
	close(closed)
	tb := capture(func(tb TB) { RequireReceive(tb, closed, time.Second, "waiting for %s", "value") })
	if !tb.failed || !strings.Contains(tb.message, "waiting for value") {
		t.Errorf("closed channel: failed=%v message=%q", tb.failed, tb.message)
	}

	tb = capture(func(tb TB) { RequireReceive(tb, make(chan int), time.Millisecond) })
	if !tb.failed || !strings.Contains(tb.message, "timed out") {
		t.Errorf("timeout: failed=%v message=%q", tb.failed, tb.message)
	}
}

func TestRequireClosed(t *testing.T) {
	done := make(chan struct{})
	close(done)
	RequireClosed(t, done, time.Second)

	tb := capture(func(tb TB) { RequireClosed(tb, make(chan struct{}), time.Millisecond, "ready") })
	if !tb.failed || !strings.Contains(tb.message, "ready") {
		t.Errorf("failed=%v message=%q", tb.failed, tb.message)
	}
}
