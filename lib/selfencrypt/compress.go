// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package selfencrypt

import (
	"errors"
	"fmt"

	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
)

// CompressionTag identifies how a chunk's plaintext was compressed
// before encryption. The tag is the second byte of every encrypted
// chunk and is authenticated; the values are part of the chunk format.
type CompressionTag uint8

const (
	// CompressionNone stores the plaintext as-is. Used for empty
	// chunks and for data that does not compress.
	CompressionNone CompressionTag = 0

	// CompressionLZ4 is LZ4 block compression: fast, modest ratio.
	CompressionLZ4 CompressionTag = 1

	// CompressionZstd is zstd at the default level: better ratio for
	// text-like content.
	CompressionZstd CompressionTag = 2
)

// String returns the name of a compression tag.
func (tag CompressionTag) String() string {
	switch tag {
	case CompressionNone:
		return "none"
	case CompressionLZ4:
		return "lz4"
	case CompressionZstd:
		return "zstd"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(tag))
	}
}

// Compression selects the compression applied to each chunk.
type Compression string

const (
	// CompressNone never compresses.
	CompressNone Compression = "none"
	// CompressLZ4 always tries LZ4.
	CompressLZ4 Compression = "lz4"
	// CompressZstd always tries zstd.
	CompressZstd Compression = "zstd"
	// CompressAuto samples each chunk with zstd and picks zstd, LZ4,
	// or nothing depending on the ratio.
	CompressAuto Compression = "auto"
)

// ParseCompression validates a compression mode name.
func ParseCompression(name string) (Compression, error) {
	switch mode := Compression(name); mode {
	case CompressNone, CompressLZ4, CompressZstd, CompressAuto:
		return mode, nil
	default:
		return "", fmt.Errorf("unknown compression mode %q", name)
	}
}

// errIncompressible means the compressed form was not smaller than
// the input.
var errIncompressible = errors.New("data is incompressible")

// zstdEncoder and zstdDecoder are shared; both are safe for
// concurrent use through EncodeAll/DecodeAll.
var (
	zstdEncoder *zstd.Encoder
	zstdDecoder *zstd.Decoder
)

func init() {
	var err error
	zstdEncoder, err = zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		panic("selfencrypt: zstd encoder initialization failed: " + err.Error())
	}
	zstdDecoder, err = zstd.NewReader(nil, zstd.WithDecoderMaxMemory(MaxSourceSize))
	if err != nil {
		panic("selfencrypt: zstd decoder initialization failed: " + err.Error())
	}
}

// selectTag picks the tag to try for data under mode. The choice
// depends only on the bytes, so identical chunks always compress the
// same way.
func selectTag(data []byte, mode Compression) CompressionTag {
	if len(data) == 0 {
		return CompressionNone
	}
	switch mode {
	case CompressLZ4:
		return CompressionLZ4
	case CompressZstd:
		return CompressionZstd
	case CompressAuto:
		sample := data
		if len(sample) > 64*1024 {
			sample = sample[:64*1024]
		}
		compressed := zstdEncoder.EncodeAll(sample, nil)
		ratio := float64(len(sample)) / float64(max(len(compressed), 1))
		switch {
		case ratio >= 1.5:
			return CompressionZstd
		case ratio >= 1.1:
			return CompressionLZ4
		}
	}
	return CompressionNone
}

// compress applies mode to data, falling back to CompressionNone when
// compression does not help.
func compress(data []byte, mode Compression) ([]byte, CompressionTag, error) {
	tag := selectTag(data, mode)

	var (
		compressed []byte
		err        error
	)
	switch tag {
	case CompressionNone:
		return data, CompressionNone, nil
	case CompressionLZ4:
		compressed, err = compressLZ4(data)
	case CompressionZstd:
		compressed, err = compressZstd(data)
	}
	if errors.Is(err, errIncompressible) {
		return data, CompressionNone, nil
	}
	if err != nil {
		return nil, 0, err
	}
	return compressed, tag, nil
}

// decompress reverses compress. The result must be exactly size bytes.
func decompress(data []byte, tag CompressionTag, size int64) ([]byte, error) {
	switch tag {
	case CompressionNone:
		if int64(len(data)) != size {
			return nil, fmt.Errorf("uncompressed chunk is %d bytes, expected %d", len(data), size)
		}
		return data, nil
	case CompressionLZ4:
		return decompressLZ4(data, size)
	case CompressionZstd:
		return decompressZstd(data, size)
	default:
		return nil, fmt.Errorf("unsupported compression tag %d", tag)
	}
}

func compressLZ4(data []byte) ([]byte, error) {
	destination := make([]byte, lz4.CompressBlockBound(len(data)))
	written, err := lz4.CompressBlock(data, destination, nil)
	if err != nil {
		return nil, fmt.Errorf("lz4 compress: %w", err)
	}
	// CompressBlock reports 0 for incompressible input.
	if written == 0 || written >= len(data) {
		return nil, errIncompressible
	}
	return destination[:written], nil
}

func decompressLZ4(compressed []byte, size int64) ([]byte, error) {
	destination := make([]byte, size)
	read, err := lz4.UncompressBlock(compressed, destination)
	if err != nil {
		return nil, fmt.Errorf("lz4 decompress: %w", err)
	}
	if int64(read) != size {
		return nil, fmt.Errorf("lz4 decompress: got %d bytes, expected %d", read, size)
	}
	return destination, nil
}

func compressZstd(data []byte) ([]byte, error) {
	compressed := zstdEncoder.EncodeAll(data, nil)
	if len(compressed) >= len(data) {
		return nil, errIncompressible
	}
	return compressed, nil
}

func decompressZstd(compressed []byte, size int64) ([]byte, error) {
	result, err := zstdDecoder.DecodeAll(compressed, make([]byte, 0, size))
	if err != nil {
		return nil, fmt.Errorf("zstd decompress: %w", err)
	}
	if int64(len(result)) != size {
		return nil, fmt.Errorf("zstd decompress: got %d bytes, expected %d", len(result), size)
	}
	return result, nil
}
