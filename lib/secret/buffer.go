// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package secret

import (
	"crypto/subtle"
	"errors"
	"fmt"
	"sync"

	"golang.org/x/sys/unix"
)

// Buffer is a fixed-size region of key material outside the Go heap.
// The region is pinned in RAM and left out of core dumps. After Close
// the region is gone and reading it panics.
type Buffer struct {
	mu     sync.Mutex
	region []byte
	closed bool
}

// mapLocked allocates size bytes of anonymous memory and pins it.
func mapLocked(size int) ([]byte, error) {
	region, err := unix.Mmap(-1, 0, size, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_PRIVATE|unix.MAP_ANONYMOUS)
	if err != nil {
		return nil, fmt.Errorf("secret: mmap %d bytes: %w", size, err)
	}
	if err := unix.Mlock(region); err != nil {
		unix.Munmap(region)
		return nil, fmt.Errorf("secret: pinning %d bytes: %w", size, err)
	}
	if err := unix.Madvise(region, unix.MADV_DONTDUMP); err != nil {
		unmapLocked(region)
		return nil, fmt.Errorf("secret: excluding from core dumps: %w", err)
	}
	return region, nil
}

// unmapLocked scrubs and releases a region from mapLocked.
func unmapLocked(region []byte) error {
	Zero(region)
	var errs []error
	if err := unix.Munlock(region); err != nil {
		errs = append(errs, fmt.Errorf("secret: munlock: %w", err))
	}
	if err := unix.Munmap(region); err != nil {
		errs = append(errs, fmt.Errorf("secret: munmap: %w", err))
	}
	return errors.Join(errs...)
}

// New returns a zeroed Buffer of size bytes.
func New(size int) (*Buffer, error) {
	if size < 1 {
		return nil, fmt.Errorf("secret: size %d is not positive", size)
	}
	region, err := mapLocked(size)
	if err != nil {
		return nil, err
	}
	return &Buffer{region: region}, nil
}

// NewFromBytes moves source into a new Buffer. Source is zeroed
// whether or not the move succeeds.
func NewFromBytes(source []byte) (*Buffer, error) {
	defer Zero(source)
	if len(source) == 0 {
		return nil, errors.New("secret: nothing to protect")
	}
	buffer, err := New(len(source))
	if err != nil {
		return nil, err
	}
	copy(buffer.region, source)
	return buffer, nil
}

// Zero clears data in place.
func Zero(data []byte) {
	clear(data)
}

// Bytes aliases the protected region. Do not keep the slice past
// Close.
func (b *Buffer) Bytes() []byte {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		panic("secret: buffer used after Close")
	}
	return b.region
}

// String copies the contents onto the heap. Only for APIs that take
// key material as a string, such as age identity parsing.
func (b *Buffer) String() string {
	return string(b.Bytes())
}

// Len is the size of the region, or zero after Close.
func (b *Buffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.region)
}

// Equal reports whether both buffers hold the same bytes, in constant
// time.
func (b *Buffer) Equal(other *Buffer) bool {
	return subtle.ConstantTimeCompare(b.Bytes(), other.Bytes()) == 1
}

// Close scrubs and releases the region. Closing twice is harmless.
func (b *Buffer) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil
	}
	b.closed = true
	region := b.region
	b.region = nil
	return unmapLocked(region)
}
