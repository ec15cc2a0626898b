// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package chunker

import (
	"encoding/binary"
	"fmt"
	"math/bits"

	"github.com/zeebo/blake3"
)

// Strategy selects how chunk boundaries are placed.
type Strategy string

const (
	// StrategyFixed splits into near-equal chunks.
	StrategyFixed Strategy = "fixed"

	// StrategyContent places boundaries with a GearHash rolling hash.
	StrategyContent Strategy = "content"
)

const (
	// DefaultMinChunks is the smallest chunk count self-encryption
	// accepts: chunk i draws key material from i-1, i+1, and i+2.
	DefaultMinChunks = 3

	// DefaultMaxChunkSize bounds every chunk's plaintext size.
	DefaultMaxChunkSize = 1024 * 1024 // 1 MiB

	// MaxChunkSizeLimit is the largest MaxChunkSize accepted. Readers
	// refuse to allocate more than this for one chunk, so a larger
	// chunk could be stored but never read back.
	MaxChunkSizeLimit = 64 * 1024 * 1024 // 64 MiB

	// minContentChunkSize is the smallest MaxChunkSize accepted by
	// StrategyContent. Below it the rolling hash window is a large
	// fraction of a chunk and boundaries stop being content-defined.
	minContentChunkSize = 4096

	// gearWindow is the effective window of the GearHash: a 64-bit
	// hash shifted left once per byte forgets a byte after 64 steps.
	gearWindow = 64
)

// Config controls chunking. The zero value is not valid; start from
// [DefaultConfig].
type Config struct {
	Strategy     Strategy
	MinChunks    int
	MaxChunkSize int
}

// DefaultConfig returns the fixed strategy with a three-chunk minimum
// and 1 MiB chunks.
func DefaultConfig() Config {
	return Config{
		Strategy:     StrategyFixed,
		MinChunks:    DefaultMinChunks,
		MaxChunkSize: DefaultMaxChunkSize,
	}
}

// Validate checks that the configuration can produce chunks the
// self-encryptor accepts.
func (c Config) Validate() error {
	if c.MinChunks < DefaultMinChunks {
		return fmt.Errorf("chunker: MinChunks %d is below %d", c.MinChunks, DefaultMinChunks)
	}
	if c.MaxChunkSize < 1 {
		return fmt.Errorf("chunker: MaxChunkSize %d must be positive", c.MaxChunkSize)
	}
	if c.MaxChunkSize > MaxChunkSizeLimit {
		return fmt.Errorf("chunker: MaxChunkSize %d exceeds the %d byte limit", c.MaxChunkSize, MaxChunkSizeLimit)
	}
	switch c.Strategy {
	case StrategyFixed:
	case StrategyContent:
		if c.MaxChunkSize < minContentChunkSize {
			return fmt.Errorf("chunker: content strategy needs MaxChunkSize >= %d, got %d",
				minContentChunkSize, c.MaxChunkSize)
		}
	default:
		return fmt.Errorf("chunker: unknown strategy %q", c.Strategy)
	}
	return nil
}

// Chunk is one contiguous range of the input.
type Chunk struct {
	// Index is the chunk's position in the output sequence.
	Index int

	// Offset is the position of Data's first byte in the input.
	Offset int64

	// Data is a slice into the input (not a copy). It may be empty
	// when the input is shorter than MinChunks bytes.
	Data []byte
}

// Split divides data into at least cfg.MinChunks chunks. The returned
// chunks alias data; the caller must not modify data while they are
// in use.
func Split(data []byte, cfg Config) ([]Chunk, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	var boundaries []int
	if cfg.Strategy == StrategyContent {
		boundaries = contentBoundaries(data, cfg.MaxChunkSize)
		if len(boundaries) < cfg.MinChunks {
			boundaries = nil
		}
	}
	if boundaries == nil {
		boundaries = fixedBoundaries(len(data), cfg)
	}

	chunks := make([]Chunk, len(boundaries))
	start := 0
	for i, end := range boundaries {
		chunks[i] = Chunk{
			Index:  i,
			Offset: int64(start),
			Data:   data[start:end:end],
		}
		start = end
	}
	return chunks, nil
}

// Count returns the number of chunks the fixed strategy produces for
// an input of the given size.
func Count(size int, cfg Config) int {
	count := (size + cfg.MaxChunkSize - 1) / cfg.MaxChunkSize
	return max(count, cfg.MinChunks)
}

// fixedBoundaries returns the exclusive end offset of each chunk for
// an even split. The first size%count chunks carry one extra byte.
func fixedBoundaries(size int, cfg Config) []int {
	count := Count(size, cfg)
	base := size / count
	extra := size % count

	boundaries := make([]int, count)
	end := 0
	for i := range boundaries {
		end += base
		if i < extra {
			end++
		}
		boundaries[i] = end
	}
	return boundaries
}

// contentBoundaries returns GearHash chunk ends. Chunks are at least
// maxSize/16 bytes (except the last), average about maxSize/4, and
// never exceed maxSize.
func contentBoundaries(data []byte, maxSize int) []int {
	minSize := maxSize / 16
	mask := boundaryMask(maxSize / 4)

	var boundaries []int
	position := 0
	for position < len(data) {
		length := gearFindBoundary(data[position:], minSize, maxSize, mask)
		position += length
		boundaries = append(boundaries, position)
	}
	return boundaries
}

// boundaryMask returns a mask over the high bits of the rolling hash
// whose all-zero probability is roughly 1/target.
func boundaryMask(target int) uint64 {
	maskBits := bits.Len(uint(target)) - 1
	if maskBits < 1 {
		maskBits = 1
	}
	return ((uint64(1) << maskBits) - 1) << (64 - maskBits)
}

// gearFindBoundary returns the length of the next chunk in data.
func gearFindBoundary(data []byte, minSize, maxSize int, mask uint64) int {
	if len(data) <= minSize {
		return len(data)
	}

	// Bytes more than a window before minSize cannot influence the
	// hash at any eligible boundary, so hashing starts just before it.
	var hash uint64
	position := max(minSize-gearWindow-1, 0)
	limit := min(maxSize, len(data))

	for position < limit {
		hash = (hash << 1) + gearTable[data[position]]
		position++
		if position >= minSize && hash&mask == 0 {
			return position
		}
	}
	return limit
}

// gearTable holds one pseudo-random 64-bit constant per byte value.
// The constants are the first 8 bytes of BLAKE3("selfstore.gear" ||
// byte), fixed forever because they decide every content-defined
// boundary.
var gearTable = func() [256]uint64 {
	var table [256]uint64
	for value := range table {
		digest := blake3.Sum256([]byte{'s', 'e', 'l', 'f', 's', 't', 'o', 'r', 'e', '.', 'g', 'e', 'a', 'r', byte(value)})
		table[value] = binary.LittleEndian.Uint64(digest[:8])
	}
	return table
}()
