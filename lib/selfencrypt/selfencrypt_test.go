// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package selfencrypt

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"pgregory.net/rapid"

	"github.com/bureau-foundation/selfstore/lib/address"
	"github.com/bureau-foundation/selfstore/lib/chunker"
	"github.com/bureau-foundation/selfstore/lib/dataerr"
	"github.com/bureau-foundation/selfstore/lib/datamap"
	"github.com/bureau-foundation/selfstore/lib/testutil"
)

func smallChunking() chunker.Config {
	cfg := chunker.DefaultConfig()
	cfg.MaxChunkSize = 4096
	return cfg
}

func testPackOptions() PackOptions {
	return PackOptions{Chunking: smallChunking(), Options: Options{Compression: CompressAuto}}
}

// unpackAll decrypts every level of a packed object using its own
// chunk list as the store.
func unpackAll(t *testing.T, packed *Packed) []byte {
	t.Helper()
	store := make(map[address.Address][]byte, len(packed.Chunks))
	for _, chunk := range packed.Chunks {
		store[chunk.Address] = chunk.Content
	}

	current := packed.DataMap
	for {
		contents := make([][]byte, len(current.Chunks))
		for i, info := range current.Chunks {
			content, ok := store[info.Address]
			if !ok {
				t.Fatalf("level %d chunk %d (%s) missing from packed chunks", current.Level, i, info.Address.Short())
			}
			contents[i] = content
		}
		plaintext, err := Unpack(current, contents)
		if err != nil {
			t.Fatalf("Unpack level %d: %v", current.Level, err)
		}
		if current.Level == 0 {
			return plaintext
		}
		child, err := datamap.Unmarshal(plaintext)
		if err != nil {
			t.Fatalf("Unmarshal level %d: %v", current.Level-1, err)
		}
		current = child
	}
}

func TestPackRoundtrip(t *testing.T) {
	tests := []struct {
		name string
		data []byte
	}{
		{"empty", []byte{}},
		{"one byte", []byte{0x7f}},
		{"two bytes", []byte{1, 2}},
		{"below one chunk", testutil.RandomBytes(1000, 1)},
		{"exactly three chunks", testutil.RandomBytes(3*4096, 2)},
		{"many chunks", testutil.RandomBytes(50_000, 3)},
		{"compressible", bytes.Repeat([]byte("self-encrypting text "), 4000)},
		{"zeros", make([]byte, 20_000)},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			packed, err := Pack(test.data, testPackOptions())
			if err != nil {
				t.Fatalf("Pack: %v", err)
			}
			if len(packed.Content.Chunks) < chunker.DefaultMinChunks {
				t.Errorf("content map has %d chunks", len(packed.Content.Chunks))
			}
			if packed.Content.Size != int64(len(test.data)) {
				t.Errorf("content map size = %d, want %d", packed.Content.Size, len(test.data))
			}
			got := unpackAll(t, packed)
			if !bytes.Equal(got, test.data) {
				t.Errorf("roundtrip mismatch: got %d bytes, want %d", len(got), len(test.data))
			}
		})
	}
}

func TestPackDeterministic(t *testing.T) {
	data := testutil.RandomBytes(40_000, 4)

	first, err := Pack(data, testPackOptions())
	if err != nil {
		t.Fatalf("first Pack: %v", err)
	}
	second, err := Pack(data, testPackOptions())
	if err != nil {
		t.Fatalf("second Pack: %v", err)
	}

	firstMap, err := datamap.Marshal(first.DataMap)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	secondMap, err := datamap.Marshal(second.DataMap)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	if !bytes.Equal(firstMap, secondMap) {
		t.Error("data maps differ between runs")
	}
	if len(first.Chunks) != len(second.Chunks) {
		t.Fatalf("chunk counts differ: %d vs %d", len(first.Chunks), len(second.Chunks))
	}
	for i := range first.Chunks {
		if first.Chunks[i].Address != second.Chunks[i].Address {
			t.Errorf("chunk %d address differs", i)
		}
		if !bytes.Equal(first.Chunks[i].Content, second.Chunks[i].Content) {
			t.Errorf("chunk %d ciphertext differs", i)
		}
	}
}

func TestPackDeduplicatesIdenticalChunks(t *testing.T) {
	// All-zero input: every chunk has the same plaintext and, with
	// the neighbors all identical too, the same ciphertext.
	packed, err := Pack(make([]byte, 3*4096), testPackOptions())
	if err != nil {
		t.Fatalf("Pack: %v", err)
	}
	if len(packed.Content.Chunks) != 3 {
		t.Fatalf("content map has %d chunks, want 3", len(packed.Content.Chunks))
	}
	if len(packed.Chunks) != 1 {
		t.Errorf("packed %d distinct chunks, want 1", len(packed.Chunks))
	}
}

func TestPackWrapsLargeDataMaps(t *testing.T) {
	options := PackOptions{
		Chunking: chunker.Config{Strategy: chunker.StrategyFixed, MinChunks: 3, MaxChunkSize: 1024},
		Options:  Options{Compression: CompressNone},
	}
	data := testutil.RandomBytes(400*1024, 5)

	packed, err := Pack(data, options)
	if err != nil {
		t.Fatalf("Pack: %v", err)
	}
	if packed.DataMap.Level == 0 {
		t.Fatal("400 descriptors at 1 KiB chunks did not produce a wrapped map")
	}
	if packed.Content.Level != 0 || len(packed.Content.Chunks) != 400 {
		t.Errorf("content map: level %d, %d chunks", packed.Content.Level, len(packed.Content.Chunks))
	}
	if !bytes.Equal(unpackAll(t, packed), data) {
		t.Error("roundtrip through wrapped levels failed")
	}
}

func TestEncryptRejectsTooFewChunks(t *testing.T) {
	chunks := []chunker.Chunk{{Index: 0, Data: []byte("a")}, {Index: 1, Data: []byte("b")}}
	if _, _, err := Encrypt(chunks, Options{}); err == nil {
		t.Error("Encrypt accepted two chunks")
	}
}

func TestEncryptRejectsOversizedChunk(t *testing.T) {
	chunks := []chunker.Chunk{
		{Index: 0, Data: make([]byte, MaxSourceSize+1)},
		{Index: 1, Data: []byte("b")},
		{Index: 2, Data: []byte("c")},
	}
	if _, _, err := Encrypt(chunks, Options{Compression: CompressNone}); err == nil {
		t.Fatal("Encrypt accepted a chunk that DecryptChunk would refuse")
	}
}

func TestPackRejectsUnreadableChunkSize(t *testing.T) {
	options := PackOptions{
		Chunking: chunker.Config{
			Strategy:     chunker.StrategyFixed,
			MinChunks:    chunker.DefaultMinChunks,
			MaxChunkSize: MaxSourceSize + 1,
		},
		Options: Options{Compression: CompressNone},
	}
	if _, err := Pack([]byte("small object"), options); err == nil {
		t.Fatal("Pack accepted a chunk size above MaxSourceSize")
	}
}

func TestKeysDependOnNeighbors(t *testing.T) {
	hashes := []address.Address{
		address.ForSource([]byte("a")),
		address.ForSource([]byte("b")),
		address.ForSource([]byte("c")),
		address.ForSource([]byte("d")),
	}
	original, err := DeriveKeySet(hashes, 1)
	if err != nil {
		t.Fatalf("DeriveKeySet: %v", err)
	}

	// Chunk 1's neighbors are 0, 2, and 3. Changing any of them, or
	// chunk 1 itself, changes its keys.
	for _, changed := range []int{0, 1, 2, 3} {
		modified := append([]address.Address(nil), hashes...)
		modified[changed] = address.ForSource([]byte("changed"))
		keys, err := DeriveKeySet(modified, 1)
		if err != nil {
			t.Fatalf("DeriveKeySet: %v", err)
		}
		if keys.Key == original.Key {
			t.Errorf("changing chunk %d did not change chunk 1's key", changed)
		}
	}

	previous, next, afterNext := Neighbors(3, 4)
	if previous != 2 || next != 0 || afterNext != 1 {
		t.Errorf("Neighbors(3, 4) = %d, %d, %d; want 2, 0, 1", previous, next, afterNext)
	}
	previous, next, afterNext = Neighbors(0, 3)
	if previous != 2 || next != 1 || afterNext != 2 {
		t.Errorf("Neighbors(0, 3) = %d, %d, %d; want 2, 1, 2", previous, next, afterNext)
	}
}

func TestDeriveKeySetErrors(t *testing.T) {
	hashes := []address.Address{address.ForSource([]byte("x")), address.ForSource([]byte("y"))}
	if _, err := DeriveKeySet(hashes, 0); err == nil {
		t.Error("DeriveKeySet accepted two hashes")
	}
	hashes = append(hashes, address.ForSource([]byte("z")))
	if _, err := DeriveKeySet(hashes, 3); err == nil {
		t.Error("DeriveKeySet accepted an out-of-range index")
	}
}

func TestDecryptDetectsEveryBitFlip(t *testing.T) {
	packed, err := Pack(testutil.RandomBytes(200, 6), PackOptions{
		Chunking: smallChunking(),
		Options:  Options{Compression: CompressNone},
	})
	if err != nil {
		t.Fatalf("Pack: %v", err)
	}
	info := packed.Content.Chunks[0]
	sourceHashes := packed.Content.SourceHashes()
	original := packed.Chunks[0].Content

	for bit := 0; bit < len(original)*8; bit++ {
		tampered := append([]byte(nil), original...)
		tampered[bit/8] ^= 1 << (bit % 8)

		plaintext, err := DecryptChunk(info, sourceHashes, tampered)
		if plaintext != nil {
			t.Fatalf("bit %d: tampered chunk returned plaintext", bit)
		}
		if !errors.Is(err, dataerr.ErrCorruptChunk) {
			t.Fatalf("bit %d: error = %v, want ErrCorruptChunk", bit, err)
		}
		if got, _ := dataerr.AddressOf(err); got != info.Address {
			t.Fatalf("bit %d: error attributed to %s, want %s", bit, got, info.Address)
		}
	}
}

// readdress recomputes a tampered chunk's address so the content hash
// check passes and the deeper checks are exercised.
func readdress(info datamap.ChunkInfo, content []byte) datamap.ChunkInfo {
	info.Address = address.ForContent(content)
	info.EncryptedSize = int64(len(content))
	return info
}

func TestDecryptVerificationLayers(t *testing.T) {
	packed, err := Pack(bytes.Repeat([]byte("layered "), 200), PackOptions{
		Chunking: smallChunking(),
		Options:  Options{Compression: CompressZstd},
	})
	if err != nil {
		t.Fatalf("Pack: %v", err)
	}
	info := packed.Content.Chunks[1]
	sourceHashes := packed.Content.SourceHashes()
	content := packed.Chunks[0].Content
	for _, chunk := range packed.Chunks {
		if chunk.Address == info.Address {
			content = chunk.Content
		}
	}

	tests := []struct {
		name   string
		mutate func() (datamap.ChunkInfo, []address.Address, []byte)
		detail string
	}{
		{
			name: "flipped ciphertext with matching address",
			mutate: func() (datamap.ChunkInfo, []address.Address, []byte) {
				tampered := append([]byte(nil), content...)
				tampered[len(tampered)-1] ^= 0x01
				return readdress(info, tampered), sourceHashes, tampered
			},
			detail: "authentication",
		},
		{
			name: "changed compression tag",
			mutate: func() (datamap.ChunkInfo, []address.Address, []byte) {
				tampered := append([]byte(nil), content...)
				tampered[1] = byte(CompressionLZ4)
				return readdress(info, tampered), sourceHashes, tampered
			},
			detail: "authentication",
		},
		{
			name: "unknown version",
			mutate: func() (datamap.ChunkInfo, []address.Address, []byte) {
				tampered := append([]byte(nil), content...)
				tampered[0] = 0x09
				return readdress(info, tampered), sourceHashes, tampered
			},
			detail: "version",
		},
		{
			name: "truncated",
			mutate: func() (datamap.ChunkInfo, []address.Address, []byte) {
				tampered := content[:4]
				return readdress(info, tampered), sourceHashes, tampered
			},
			detail: "overhead",
		},
		{
			name: "wrong neighbor hash",
			mutate: func() (datamap.ChunkInfo, []address.Address, []byte) {
				modified := append([]address.Address(nil), sourceHashes...)
				modified[2] = address.ForSource([]byte("not the neighbor"))
				return info, modified, content
			},
			detail: "authentication",
		},
		{
			name: "oversized source claim",
			mutate: func() (datamap.ChunkInfo, []address.Address, []byte) {
				modified := info
				modified.SourceSize = MaxSourceSize + 1
				return modified, sourceHashes, content
			},
			detail: "source size",
		},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			chunkInfo, hashes, chunkContent := test.mutate()
			plaintext, err := DecryptChunk(chunkInfo, hashes, chunkContent)
			if plaintext != nil {
				t.Fatal("returned plaintext for a corrupt chunk")
			}
			if !errors.Is(err, dataerr.ErrCorruptChunk) {
				t.Fatalf("error = %v, want ErrCorruptChunk", err)
			}
			if !strings.Contains(err.Error(), test.detail) {
				t.Errorf("error %q does not mention %q", err.Error(), test.detail)
			}
		})
	}
}

func TestCompressionModes(t *testing.T) {
	text := bytes.Repeat([]byte("compressible content "), 500)
	noise := testutil.RandomBytes(8192, 7)

	tests := []struct {
		name string
		data []byte
		mode Compression
		want CompressionTag
	}{
		{"none", text, CompressNone, CompressionNone},
		{"lz4 text", text, CompressLZ4, CompressionLZ4},
		{"zstd text", text, CompressZstd, CompressionZstd},
		{"auto text", text, CompressAuto, CompressionZstd},
		{"auto noise", noise, CompressAuto, CompressionNone},
		{"zstd noise falls back", noise, CompressZstd, CompressionNone},
		{"empty", nil, CompressZstd, CompressionNone},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			compressed, tag, err := compress(test.data, test.mode)
			if err != nil {
				t.Fatalf("compress: %v", err)
			}
			if tag != test.want {
				t.Errorf("tag = %s, want %s", tag, test.want)
			}
			restored, err := decompress(compressed, tag, int64(len(test.data)))
			if err != nil {
				t.Fatalf("decompress: %v", err)
			}
			if !bytes.Equal(restored, test.data) {
				t.Error("decompressed bytes differ")
			}
		})
	}
}

func TestParseCompression(t *testing.T) {
	for _, name := range []string{"none", "lz4", "zstd", "auto"} {
		if _, err := ParseCompression(name); err != nil {
			t.Errorf("ParseCompression(%q): %v", name, err)
		}
	}
	if _, err := ParseCompression("brotli"); err == nil {
		t.Error("ParseCompression accepted brotli")
	}
}

func TestPackRoundtripProperty(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		data := rapid.SliceOfN(rapid.Byte(), 0, 20_000).Draw(t, "data")
		mode := rapid.SampledFrom([]Compression{CompressNone, CompressLZ4, CompressZstd, CompressAuto}).Draw(t, "mode")
		maxChunk := rapid.IntRange(512, 8192).Draw(t, "maxChunk")

		options := PackOptions{
			Chunking: chunker.Config{Strategy: chunker.StrategyFixed, MinChunks: 3, MaxChunkSize: maxChunk},
			Options:  Options{Compression: mode},
		}
		packed, err := Pack(data, options)
		if err != nil {
			t.Fatalf("Pack: %v", err)
		}

		store := make(map[address.Address][]byte)
		for _, chunk := range packed.Chunks {
			store[chunk.Address] = chunk.Content
		}
		current := packed.DataMap
		for {
			contents := make([][]byte, len(current.Chunks))
			for i, info := range current.Chunks {
				contents[i] = store[info.Address]
			}
			plaintext, err := Unpack(current, contents)
			if err != nil {
				t.Fatalf("Unpack: %v", err)
			}
			if current.Level == 0 {
				if !bytes.Equal(plaintext, data) {
					t.Fatalf("roundtrip mismatch for %d bytes", len(data))
				}
				return
			}
			current, err = datamap.Unmarshal(plaintext)
			if err != nil {
				t.Fatalf("Unmarshal: %v", err)
			}
		}
	})
}
