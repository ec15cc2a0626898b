// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package datamap

import (
	"context"
	"errors"
	"fmt"

	"github.com/bureau-foundation/selfstore/lib/address"
	"github.com/bureau-foundation/selfstore/lib/codec"
	"github.com/bureau-foundation/selfstore/lib/dataerr"
)

const (
	// Version is the current data map format version.
	Version = 1

	// MinChunks is the smallest chunk count a valid map may list.
	MinChunks = 3

	// MaxDepth bounds the number of levels above the content map.
	// Each level divides the serialized size by roughly the chunk
	// size over the descriptor size (thousands), so real objects
	// never come close.
	MaxDepth = 16
)

// ChunkInfo describes one encrypted chunk.
type ChunkInfo struct {
	// Index is the chunk's position in the object.
	Index int `json:"index"`

	// Address is the content hash of the encrypted chunk: its key
	// in the chunk store.
	Address address.Address `json:"address"`

	// SourceHash is the hash of the chunk's plaintext. Neighboring
	// source hashes derive the chunk's key; this one verifies the
	// decrypted result.
	SourceHash address.Address `json:"source_hash"`

	// SourceSize is the plaintext length in bytes.
	SourceSize int64 `json:"source_size"`

	// EncryptedSize is the stored ciphertext length in bytes.
	EncryptedSize int64 `json:"encrypted_size"`
}

// DataMap is the ordered chunk index for one object (Level 0) or for
// the serialized map one level below (Level > 0).
type DataMap struct {
	// Version is the format tag. Currently 1.
	Version int `json:"version"`

	// Level is 0 when Chunks hold content, n when they hold the
	// serialized map of level n-1.
	Level int `json:"level"`

	// Size is the total plaintext length of the chunks.
	Size int64 `json:"size"`

	// Chunks lists the chunks in order.
	Chunks []ChunkInfo `json:"chunks"`
}

// Build assembles a content-level map from chunk descriptors and
// validates it.
func Build(chunks []ChunkInfo) (*DataMap, error) {
	var size int64
	for _, chunk := range chunks {
		size += chunk.SourceSize
	}
	dataMap := &DataMap{
		Version: Version,
		Level:   0,
		Size:    size,
		Chunks:  chunks,
	}
	if err := dataMap.Validate(); err != nil {
		return nil, err
	}
	return dataMap, nil
}

// SourceHashes returns the source hash of every chunk, in order. This
// is the array key derivation indexes into.
func (m *DataMap) SourceHashes() []address.Address {
	hashes := make([]address.Address, len(m.Chunks))
	for i, chunk := range m.Chunks {
		hashes[i] = chunk.SourceHash
	}
	return hashes
}

// Addresses returns every chunk address listed by this level.
func (m *DataMap) Addresses() []address.Address {
	addresses := make([]address.Address, len(m.Chunks))
	for i, chunk := range m.Chunks {
		addresses[i] = chunk.Address
	}
	return addresses
}

// EncryptedSize is the sum of the stored chunk sizes at this level.
func (m *DataMap) EncryptedSize() int64 {
	var total int64
	for _, chunk := range m.Chunks {
		total += chunk.EncryptedSize
	}
	return total
}

// Validate checks that the map is internally consistent. All problems
// are reported together, wrapped in dataerr.ErrMalformedDataMap.
func (m *DataMap) Validate() error {
	var problems []error

	if m.Version != Version {
		problems = append(problems, fmt.Errorf("version %d is not supported (want %d)", m.Version, Version))
	}
	if m.Level < 0 || m.Level > MaxDepth {
		problems = append(problems, fmt.Errorf("level %d is outside [0, %d]", m.Level, MaxDepth))
	}
	if len(m.Chunks) < MinChunks {
		problems = append(problems, fmt.Errorf("%d chunks listed, minimum is %d", len(m.Chunks), MinChunks))
	}

	var total int64
	for i, chunk := range m.Chunks {
		if chunk.Index != i {
			problems = append(problems, fmt.Errorf("chunk %d: index is %d", i, chunk.Index))
		}
		if chunk.Address.IsZero() {
			problems = append(problems, fmt.Errorf("chunk %d: address is zero", i))
		}
		if chunk.SourceHash.IsZero() {
			problems = append(problems, fmt.Errorf("chunk %d: source hash is zero", i))
		}
		if chunk.SourceSize < 0 {
			problems = append(problems, fmt.Errorf("chunk %d: source size %d is negative", i, chunk.SourceSize))
		}
		if chunk.EncryptedSize < 1 {
			problems = append(problems, fmt.Errorf("chunk %d: encrypted size %d is not positive", i, chunk.EncryptedSize))
		}
		total += chunk.SourceSize
	}
	if total != m.Size {
		problems = append(problems, fmt.Errorf("chunk sizes sum to %d, map size is %d", total, m.Size))
	}

	if len(problems) > 0 {
		return fmt.Errorf("%w: %w", dataerr.ErrMalformedDataMap, errors.Join(problems...))
	}
	return nil
}

// Marshal encodes a map to CBOR.
func Marshal(m *DataMap) ([]byte, error) {
	data, err := codec.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("encoding data map: %w", err)
	}
	return data, nil
}

// Unmarshal decodes and validates a CBOR-encoded map. Any decoding or
// validation failure wraps dataerr.ErrMalformedDataMap.
func Unmarshal(data []byte) (*DataMap, error) {
	var dataMap DataMap
	if err := codec.Unmarshal(data, &dataMap); err != nil {
		return nil, fmt.Errorf("%w: decoding: %w", dataerr.ErrMalformedDataMap, err)
	}
	if err := dataMap.Validate(); err != nil {
		return nil, err
	}
	return &dataMap, nil
}

// WrapFunc self-encrypts a serialized map and returns the descriptors
// of the resulting chunks. The caller keeps the encrypted chunks for
// upload.
type WrapFunc func(serialized []byte) ([]ChunkInfo, error)

// Shrink wraps m in higher levels while its encoding exceeds
// threshold bytes. It stops early once a level would list no fewer
// chunks than the one below it, since further wrapping could not make
// the map smaller. Returns the top map.
func Shrink(m *DataMap, threshold int, wrap WrapFunc) (*DataMap, error) {
	current := m
	for {
		serialized, err := Marshal(current)
		if err != nil {
			return nil, err
		}
		if len(serialized) <= threshold || len(current.Chunks) <= MinChunks {
			return current, nil
		}
		if current.Level >= MaxDepth {
			return nil, fmt.Errorf("%w: shrinking past level %d", dataerr.ErrMalformedDataMap, MaxDepth)
		}

		chunks, err := wrap(serialized)
		if err != nil {
			return nil, fmt.Errorf("wrapping level %d: %w", current.Level, err)
		}
		if len(chunks) >= len(current.Chunks) {
			return current, nil
		}

		parent := &DataMap{
			Version: Version,
			Level:   current.Level + 1,
			Size:    int64(len(serialized)),
			Chunks:  chunks,
		}
		if err := parent.Validate(); err != nil {
			return nil, err
		}
		current = parent
	}
}

// UnwrapFunc fetches and decrypts the chunks of a map with Level > 0
// and returns the concatenated plaintext: the serialized map one
// level down.
type UnwrapFunc func(ctx context.Context, m *DataMap) ([]byte, error)

// Resolve walks m down to its content level. Each step must produce
// a map exactly one level lower, which bounds the walk at m.Level
// steps (at most MaxDepth).
func Resolve(ctx context.Context, m *DataMap, unwrap UnwrapFunc) (*DataMap, error) {
	if err := m.Validate(); err != nil {
		return nil, err
	}

	current := m
	for steps := 0; current.Level > 0; steps++ {
		if steps >= MaxDepth {
			return nil, fmt.Errorf("%w: more than %d levels", dataerr.ErrMalformedDataMap, MaxDepth)
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		serialized, err := unwrap(ctx, current)
		if err != nil {
			return nil, fmt.Errorf("resolving level %d: %w", current.Level, err)
		}
		if int64(len(serialized)) != current.Size {
			return nil, fmt.Errorf("%w: level %d decoded to %d bytes, map says %d",
				dataerr.ErrMalformedDataMap, current.Level, len(serialized), current.Size)
		}

		child, err := Unmarshal(serialized)
		if err != nil {
			return nil, fmt.Errorf("level %d: %w", current.Level-1, err)
		}
		if child.Level != current.Level-1 {
			return nil, fmt.Errorf("%w: level %d points at level %d",
				dataerr.ErrMalformedDataMap, current.Level, child.Level)
		}
		current = child
	}
	return current, nil
}
