// Copyright 2026 The Klaxon Authors
// SPDX-License-Identifier: Apache-2.0

package pebblestore

import (
	"bytes"
	"encoding/binary"
	"math/rand"
	"strings"
	"testing"
)

func TestPackBlobRoundTrip(t *testing.T) {
	random := make([]byte, 4096)
	rand.New(rand.NewSource(7)).Read(random)

	cases := []struct {
		name    string
		content []byte
		// wantRaw asserts the pack stored the content uncompressed.
		wantRaw bool
	}{
		{name: "compressible text", content: []byte(strings.Repeat("the quick brown fox jumps over the lazy dog ", 200))},
		{name: "incompressible noise", content: random, wantRaw: true},
		{name: "below probe threshold", content: []byte("tiny avatar"), wantRaw: true},
		{name: "empty", content: []byte{}, wantRaw: true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			packed := packBlob(tc.content)
			if tc.wantRaw {
				if got := compressionTag(packed[0]); got != compressNone {
					t.Fatalf("tag = %v, want none", got)
				}
				if len(packed) != blobHeaderSize+len(tc.content) {
					t.Fatalf("raw frame length = %d, want %d", len(packed), blobHeaderSize+len(tc.content))
				}
			} else if len(packed) >= blobHeaderSize+len(tc.content) {
				t.Fatalf("compressible content did not shrink: %d -> %d", len(tc.content), len(packed)-blobHeaderSize)
			}

			unpacked, err := unpackBlob(packed)
			if err != nil {
				t.Fatalf("unpackBlob: %v", err)
			}
			if !bytes.Equal(unpacked, tc.content) {
				t.Fatalf("round trip diverged: %d bytes in, %d out", len(tc.content), len(unpacked))
			}
		})
	}
}

func TestUnpackBlobRejectsCorruptFrames(t *testing.T) {
	if _, err := unpackBlob([]byte{0, 0, 0}); err == nil {
		t.Fatal("truncated frame unpacked")
	}

	frame := packBlob([]byte("some avatar bytes"))

	unknown := append([]byte(nil), frame...)
	unknown[0] = 9
	if _, err := unpackBlob(unknown); err == nil {
		t.Fatal("unknown compression tag unpacked")
	}

	lying := append([]byte(nil), frame...)
	binary.BigEndian.PutUint32(lying[1:blobHeaderSize], 9999)
	if _, err := unpackBlob(lying); err == nil {
		t.Fatal("size mismatch unpacked")
	}

	huge := append([]byte(nil), frame...)
	binary.BigEndian.PutUint32(huge[1:blobHeaderSize], maxBlobSize+1)
	if _, err := unpackBlob(huge); err == nil {
		t.Fatal("oversized declaration unpacked")
	}
}

func TestBlobAddressString(t *testing.T) {
	var addr BlobAddress
	addr[0] = 0xab
	addr[31] = 0x01

	parsed, err := ParseBlobAddress(addr.String())
	if err != nil {
		t.Fatalf("ParseBlobAddress: %v", err)
	}
	if parsed != addr {
		t.Fatalf("parsed = %v, want %v", parsed, addr)
	}

	if _, err := ParseBlobAddress("abcd"); err == nil {
		t.Fatal("short address parsed")
	}
	if _, err := ParseBlobAddress(strings.Repeat("zz", 32)); err == nil {
		t.Fatal("non-hex address parsed")
	}
}
