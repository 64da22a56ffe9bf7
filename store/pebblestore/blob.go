// Copyright 2026 The Klaxon Authors
// SPDX-License-Identifier: Apache-2.0

package pebblestore

import (
	"encoding/binary"
	"encoding/hex"
	"fmt"

	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
)

// BlobAddress is the content address of a stored blob: a 32-byte BLAKE3
// hash, keyed in encrypted stores.
type BlobAddress [32]byte

// String returns the address as lowercase hex.
func (a BlobAddress) String() string {
	return hex.EncodeToString(a[:])
}

// ParseBlobAddress parses a lowercase hex blob address.
func ParseBlobAddress(s string) (BlobAddress, error) {
	raw, err := hex.DecodeString(s)
	if err != nil {
		return BlobAddress{}, fmt.Errorf("pebblestore: parsing blob address: %w", err)
	}
	if len(raw) != len(BlobAddress{}) {
		return BlobAddress{}, fmt.Errorf("pebblestore: blob address is %d bytes, want %d", len(raw), len(BlobAddress{}))
	}
	var addr BlobAddress
	copy(addr[:], raw)
	return addr, nil
}

// compressionTag identifies the compression applied to a stored blob.
// Stored in the blob frame header; format constants.
type compressionTag byte

const (
	compressNone compressionTag = 0
	compressLZ4  compressionTag = 1
	compressZstd compressionTag = 2
)

func (tag compressionTag) String() string {
	switch tag {
	case compressNone:
		return "none"
	case compressLZ4:
		return "lz4"
	case compressZstd:
		return "zstd"
	default:
		return fmt.Sprintf("unknown(%d)", byte(tag))
	}
}

// blobHeaderSize is the frame header: 1-byte tag + 4-byte big-endian
// uncompressed size.
const blobHeaderSize = 5

// compressProbeMin is the smallest blob worth probing for compression.
const compressProbeMin = 64

// maxBlobSize caps the declared uncompressed size accepted on unpack,
// bounding allocation from a corrupted plain-mode record.
const maxBlobSize = 64 << 20

// The zstd encoder and decoder are shared across calls; both are safe
// for concurrent use.
var (
	zstdEncoder *zstd.Encoder
	zstdDecoder *zstd.Decoder
)

func init() {
	var err error
	zstdEncoder, err = zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		panic("pebblestore: zstd encoder initialization failed: " + err.Error())
	}
	zstdDecoder, err = zstd.NewReader(nil)
	if err != nil {
		panic("pebblestore: zstd decoder initialization failed: " + err.Error())
	}
}

// packBlob frames content for storage: [tag] [uint32 size] [payload].
// Compression is probed per blob; content that does not compress
// meaningfully stores raw.
func packBlob(content []byte) []byte {
	tag, payload := compressBlob(content)
	out := make([]byte, blobHeaderSize+len(payload))
	out[0] = byte(tag)
	binary.BigEndian.PutUint32(out[1:blobHeaderSize], uint32(len(content)))
	copy(out[blobHeaderSize:], payload)
	return out
}

// compressBlob picks an algorithm by probing with zstd: strong ratios
// keep the zstd output, moderate ones prefer LZ4 when it also wins, and
// near-incompressible content stores raw. Avatars are typically
// pre-compressed images, so the raw path is the common one.
func compressBlob(content []byte) (compressionTag, []byte) {
	if len(content) < compressProbeMin {
		return compressNone, content
	}

	compressed := zstdEncoder.EncodeAll(content, nil)
	ratio := float64(len(content)) / float64(len(compressed))
	switch {
	case ratio >= 1.5:
		return compressZstd, compressed
	case ratio >= 1.1:
		if lz4Out, ok := compressWithLZ4(content); ok {
			return compressLZ4, lz4Out
		}
		return compressZstd, compressed
	default:
		return compressNone, content
	}
}

func compressWithLZ4(content []byte) ([]byte, bool) {
	out := make([]byte, lz4.CompressBlockBound(len(content)))
	written, err := lz4.CompressBlock(content, out, nil)
	if err != nil || written == 0 || written >= len(content) {
		return nil, false
	}
	return out[:written], true
}

// unpackBlob reverses packBlob, verifying the declared size.
func unpackBlob(stored []byte) ([]byte, error) {
	if len(stored) < blobHeaderSize {
		return nil, fmt.Errorf("pebblestore: blob frame is %d bytes, minimum is %d", len(stored), blobHeaderSize)
	}
	tag := compressionTag(stored[0])
	size := int(binary.BigEndian.Uint32(stored[1:blobHeaderSize]))
	if size > maxBlobSize {
		return nil, fmt.Errorf("pebblestore: blob declares %d bytes, maximum is %d", size, maxBlobSize)
	}
	payload := stored[blobHeaderSize:]

	switch tag {
	case compressNone:
		if len(payload) != size {
			return nil, fmt.Errorf("pebblestore: raw blob is %d bytes, header declares %d", len(payload), size)
		}
		out := make([]byte, size)
		copy(out, payload)
		return out, nil

	case compressLZ4:
		out := make([]byte, size)
		read, err := lz4.UncompressBlock(payload, out)
		if err != nil {
			return nil, fmt.Errorf("pebblestore: lz4 decompress: %w", err)
		}
		if read != size {
			return nil, fmt.Errorf("pebblestore: lz4 decompress produced %d bytes, header declares %d", read, size)
		}
		return out, nil

	case compressZstd:
		out, err := zstdDecoder.DecodeAll(payload, make([]byte, 0, size))
		if err != nil {
			return nil, fmt.Errorf("pebblestore: zstd decompress: %w", err)
		}
		if len(out) != size {
			return nil, fmt.Errorf("pebblestore: zstd decompress produced %d bytes, header declares %d", len(out), size)
		}
		return out, nil

	default:
		return nil, fmt.Errorf("pebblestore: unsupported blob compression tag %d", byte(tag))
	}
}
