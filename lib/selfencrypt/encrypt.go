// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package selfencrypt

import (
	"fmt"
	"runtime"

	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/sync/errgroup"

	"github.com/bureau-foundation/selfstore/lib/address"
	"github.com/bureau-foundation/selfstore/lib/chunker"
	"github.com/bureau-foundation/selfstore/lib/dataerr"
	"github.com/bureau-foundation/selfstore/lib/datamap"
)

// ChunkVersion is the first byte of every encrypted chunk. It is
// authenticated along with the compression tag and the source hash.
const ChunkVersion byte = 0x01

// ChunkOverhead is the fixed per-chunk expansion: version byte,
// compression tag, and the Poly1305 tag. The nonce is derived, not
// stored.
const ChunkOverhead = 2 + chacha20poly1305.Overhead

// MaxSourceSize caps the plaintext size of one chunk. Decryption
// allocates the claimed size up front, so an unbounded value would let
// a hostile map exhaust memory. Encrypt refuses larger chunks.
const MaxSourceSize = chunker.MaxChunkSizeLimit

const minChunks = chunker.DefaultMinChunks

// EncryptedChunk is one chunk ready for upload.
type EncryptedChunk struct {
	Address address.Address
	Content []byte
}

// Options controls encryption.
type Options struct {
	// Compression is applied to each chunk before encryption.
	// Defaults to CompressAuto.
	Compression Compression

	// Concurrency bounds the goroutines hashing and encrypting
	// chunks. Defaults to GOMAXPROCS.
	Concurrency int
}

func (o Options) withDefaults() Options {
	if o.Compression == "" {
		o.Compression = CompressAuto
	}
	if o.Concurrency <= 0 {
		o.Concurrency = runtime.GOMAXPROCS(0)
	}
	return o
}

// Encrypt self-encrypts an ordered chunk list. Every source hash is
// computed before any chunk is encrypted, since each key draws on
// neighbors. Both passes run in parallel; neither touches another
// chunk's output.
//
// The returned descriptors are in chunk order and feed
// [datamap.Build].
func Encrypt(chunks []chunker.Chunk, options Options) ([]EncryptedChunk, []datamap.ChunkInfo, error) {
	if len(chunks) < minChunks {
		return nil, nil, fmt.Errorf("self-encryption needs at least %d chunks, got %d", minChunks, len(chunks))
	}
	for i, chunk := range chunks {
		if len(chunk.Data) > MaxSourceSize {
			return nil, nil, fmt.Errorf("chunk %d is %d bytes, maximum is %d", i, len(chunk.Data), MaxSourceSize)
		}
	}
	options = options.withDefaults()

	sourceHashes := make([]address.Address, len(chunks))
	var hashing errgroup.Group
	hashing.SetLimit(options.Concurrency)
	for i := range chunks {
		hashing.Go(func() error {
			sourceHashes[i] = address.ForSource(chunks[i].Data)
			return nil
		})
	}
	_ = hashing.Wait()

	encrypted := make([]EncryptedChunk, len(chunks))
	infos := make([]datamap.ChunkInfo, len(chunks))
	var encrypting errgroup.Group
	encrypting.SetLimit(options.Concurrency)
	for i := range chunks {
		encrypting.Go(func() error {
			content, err := encryptChunk(chunks[i].Data, sourceHashes, i, options.Compression)
			if err != nil {
				return fmt.Errorf("encrypting chunk %d: %w", i, err)
			}
			chunkAddress := address.ForContent(content)
			encrypted[i] = EncryptedChunk{Address: chunkAddress, Content: content}
			infos[i] = datamap.ChunkInfo{
				Index:         i,
				Address:       chunkAddress,
				SourceHash:    sourceHashes[i],
				SourceSize:    int64(len(chunks[i].Data)),
				EncryptedSize: int64(len(content)),
			}
			return nil
		})
	}
	if err := encrypting.Wait(); err != nil {
		return nil, nil, err
	}
	return encrypted, infos, nil
}

// encryptChunk produces the stored form of one chunk:
//
//	[version][compression tag][XChaCha20-Poly1305 ciphertext+tag, XOR padded]
func encryptChunk(plaintext []byte, sourceHashes []address.Address, index int, mode Compression) ([]byte, error) {
	keys, err := DeriveKeySet(sourceHashes, index)
	if err != nil {
		return nil, err
	}
	defer keys.Zero()

	compressed, tag, err := compress(plaintext, mode)
	if err != nil {
		return nil, fmt.Errorf("compressing: %w", err)
	}

	aead, err := chacha20poly1305.NewX(keys.Key[:])
	if err != nil {
		return nil, fmt.Errorf("creating XChaCha20-Poly1305 cipher: %w", err)
	}

	output := make([]byte, 2, 2+len(compressed)+aead.Overhead())
	output[0] = ChunkVersion
	output[1] = byte(tag)
	output = aead.Seal(output, keys.Nonce[:], compressed, buildAAD(ChunkVersion, tag, sourceHashes[index]))
	applyPad(output[2:], &keys.Pad)
	return output, nil
}

// DecryptChunk verifies and decrypts one fetched chunk. sourceHashes
// is the full list from the data map level that info belongs to.
//
// Every verification failure returns dataerr.ErrCorruptChunk
// attributed to info.Address: content that does not hash to the
// address, a bad header, failed authentication, failed decompression,
// or plaintext that does not hash to the recorded source hash. The
// plaintext is returned only when all checks pass.
func DecryptChunk(info datamap.ChunkInfo, sourceHashes []address.Address, content []byte) ([]byte, error) {
	if got := address.ForContent(content); got != info.Address {
		return nil, dataerr.Corrupt(info.Address, "content hashes to %s", got.Short())
	}
	if len(content) < ChunkOverhead {
		return nil, dataerr.Corrupt(info.Address, "%d bytes is shorter than the %d byte overhead", len(content), ChunkOverhead)
	}
	if content[0] != ChunkVersion {
		return nil, dataerr.Corrupt(info.Address, "chunk version %d is not supported", content[0])
	}
	if info.SourceSize < 0 || info.SourceSize > MaxSourceSize {
		return nil, dataerr.Corrupt(info.Address, "recorded source size %d is outside [0, %d]", info.SourceSize, MaxSourceSize)
	}
	tag := CompressionTag(content[1])

	keys, err := DeriveKeySet(sourceHashes, info.Index)
	if err != nil {
		return nil, dataerr.NewChunkError("decrypt", info.Address, err)
	}
	defer keys.Zero()

	sealed := make([]byte, len(content)-2)
	copy(sealed, content[2:])
	applyPad(sealed, &keys.Pad)

	aead, err := chacha20poly1305.NewX(keys.Key[:])
	if err != nil {
		return nil, dataerr.NewChunkError("decrypt", info.Address, err)
	}
	compressed, err := aead.Open(sealed[:0], keys.Nonce[:], sealed, buildAAD(content[0], tag, info.SourceHash))
	if err != nil {
		return nil, dataerr.Corrupt(info.Address, "authentication failed")
	}

	plaintext, err := decompress(compressed, tag, info.SourceSize)
	if err != nil {
		return nil, dataerr.Corrupt(info.Address, "%v", err)
	}
	if got := address.ForSource(plaintext); got != info.SourceHash {
		return nil, dataerr.Corrupt(info.Address, "plaintext hashes to %s, data map records %s",
			got.Short(), info.SourceHash.Short())
	}
	return plaintext, nil
}

// buildAAD binds the ciphertext to its format version, compression
// tag, and source hash.
func buildAAD(version byte, tag CompressionTag, sourceHash address.Address) []byte {
	aad := make([]byte, 2+address.Size)
	aad[0] = version
	aad[1] = byte(tag)
	copy(aad[2:], sourceHash[:])
	return aad
}
