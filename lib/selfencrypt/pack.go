// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package selfencrypt

import (
	"fmt"

	"github.com/bureau-foundation/selfstore/lib/address"
	"github.com/bureau-foundation/selfstore/lib/chunker"
	"github.com/bureau-foundation/selfstore/lib/datamap"
)

// PackOptions controls [Pack].
type PackOptions struct {
	// Chunking controls content chunk boundaries. Levels above the
	// content always use the fixed strategy with the same sizes.
	Chunking chunker.Config

	Options
}

// Packed is the result of self-encrypting one object.
type Packed struct {
	// DataMap is the top map: the only thing a reader needs.
	DataMap *datamap.DataMap

	// Content is the level 0 map listing the content chunks. Equal to
	// DataMap when no wrapping was needed.
	Content *datamap.DataMap

	// Chunks holds every encrypted chunk referenced from any level,
	// each address once, content chunks first.
	Chunks []EncryptedChunk
}

// Pack chunks data, self-encrypts the chunks, and wraps the resulting
// data map in higher levels until it fits in one chunk.
func Pack(data []byte, options PackOptions) (*Packed, error) {
	chunks, err := chunker.Split(data, options.Chunking)
	if err != nil {
		return nil, err
	}
	encrypted, infos, err := Encrypt(chunks, options.Options)
	if err != nil {
		return nil, err
	}
	content, err := datamap.Build(infos)
	if err != nil {
		return nil, fmt.Errorf("building data map: %w", err)
	}

	packed := &Packed{Content: content}
	seen := make(map[address.Address]struct{}, len(encrypted))
	collect := func(batch []EncryptedChunk) {
		for _, chunk := range batch {
			if _, duplicate := seen[chunk.Address]; duplicate {
				continue
			}
			seen[chunk.Address] = struct{}{}
			packed.Chunks = append(packed.Chunks, chunk)
		}
	}
	collect(encrypted)

	levelChunking := options.Chunking
	levelChunking.Strategy = chunker.StrategyFixed

	// Shrink may discard the last wrap when it does not reduce the
	// chunk count, so level chunks are collected only once a parent
	// map actually references them.
	var pending []EncryptedChunk
	wrap := func(serialized []byte) ([]datamap.ChunkInfo, error) {
		levelChunks, err := chunker.Split(serialized, levelChunking)
		if err != nil {
			return nil, err
		}
		levelEncrypted, levelInfos, err := Encrypt(levelChunks, options.Options)
		if err != nil {
			return nil, err
		}
		collect(pending)
		pending = levelEncrypted
		return levelInfos, nil
	}

	top, err := datamap.Shrink(content, options.Chunking.MaxChunkSize, wrap)
	if err != nil {
		return nil, fmt.Errorf("shrinking data map: %w", err)
	}
	if len(pending) > 0 && top.Level > 0 && top.Chunks[0].Address == pending[0].Address {
		collect(pending)
	}
	packed.DataMap = top
	return packed, nil
}

// Unpack decrypts a complete set of chunks for one map level, in
// order, and returns the joined plaintext. contents[i] must be the
// fetched bytes for m.Chunks[i].
func Unpack(m *datamap.DataMap, contents [][]byte) ([]byte, error) {
	if len(contents) != len(m.Chunks) {
		return nil, fmt.Errorf("got %d chunk contents for %d descriptors", len(contents), len(m.Chunks))
	}
	sourceHashes := m.SourceHashes()
	output := make([]byte, 0, m.Size)
	for i, info := range m.Chunks {
		plaintext, err := DecryptChunk(info, sourceHashes, contents[i])
		if err != nil {
			return nil, err
		}
		output = append(output, plaintext...)
	}
	return output, nil
}
