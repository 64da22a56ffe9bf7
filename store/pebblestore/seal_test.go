// Copyright 2026 The Klaxon Authors
// SPDX-License-Identifier: Apache-2.0

package pebblestore

import (
	"bytes"
	"strings"
	"testing"

	"github.com/klaxon-im/klaxon/lib/secret"
)

func newPassphrase(t *testing.T, phrase string) *secret.Buffer {
	t.Helper()
	buf, err := secret.NewFromBytes([]byte(phrase))
	if err != nil {
		t.Fatalf("NewFromBytes: %v", err)
	}
	t.Cleanup(func() { buf.Close() })
	return buf
}

func newTestSealer(t *testing.T, phrase string) *sealer {
	t.Helper()
	salt := bytes.Repeat([]byte{0x5a}, saltSize)
	s, err := newSealer(newPassphrase(t, phrase), salt)
	if err != nil {
		t.Fatalf("newSealer: %v", err)
	}
	t.Cleanup(func() { s.close() })
	return s
}

func TestSealRoundTrip(t *testing.T) {
	s := newTestSealer(t, "correct horse battery staple")
	key := []byte("contact/3e0b7a00-0000-4000-8000-000000000001")
	plaintext := []byte("record payload")

	sealed, err := s.seal(key, plaintext)
	if err != nil {
		t.Fatalf("seal: %v", err)
	}
	if sealed[0] != recordSealed {
		t.Fatalf("version byte = %#x, want %#x", sealed[0], recordSealed)
	}
	if len(sealed) != sealedOverhead+len(plaintext) {
		t.Fatalf("sealed length = %d, want %d", len(sealed), sealedOverhead+len(plaintext))
	}

	opened, err := s.open(key, sealed)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if !bytes.Equal(opened, plaintext) {
		t.Fatalf("opened = %q, want %q", opened, plaintext)
	}
}

func TestSealBindsStorageKey(t *testing.T) {
	s := newTestSealer(t, "correct horse battery staple")
	sealed, err := s.seal([]byte("msg/contact:a/00000000000000001000"), []byte("hello"))
	if err != nil {
		t.Fatalf("seal: %v", err)
	}

	// Pasting the value under a different key must fail authentication.
	if _, err := s.open([]byte("msg/contact:b/00000000000000001000"), sealed); err == nil {
		t.Fatal("record opened under a foreign key")
	}
}

func TestSealRejectsTamper(t *testing.T) {
	s := newTestSealer(t, "correct horse battery staple")
	key := []byte("profile/x")
	sealed, err := s.seal(key, []byte("payload"))
	if err != nil {
		t.Fatalf("seal: %v", err)
	}

	tampered := append([]byte(nil), sealed...)
	tampered[len(tampered)-1] ^= 0x01
	if _, err := s.open(key, tampered); err == nil {
		t.Fatal("tampered record opened")
	}

	upgraded := append([]byte(nil), sealed...)
	upgraded[0] = 0x7f
	if _, err := s.open(key, upgraded); err == nil {
		t.Fatal("record with unknown version opened")
	}
}

func TestSealWrongPassphrase(t *testing.T) {
	right := newTestSealer(t, "right")
	wrong := newTestSealer(t, "wrong")

	key := []byte("meta/check")
	sealed, err := right.seal(key, []byte(checkPlaintext))
	if err != nil {
		t.Fatalf("seal: %v", err)
	}
	if _, err := wrong.open(key, sealed); err == nil {
		t.Fatal("record opened under the wrong passphrase")
	}
}

func TestPlainSealerFrames(t *testing.T) {
	s := newPlainSealer()
	key := []byte("contact/x")

	sealed, err := s.seal(key, []byte("payload"))
	if err != nil {
		t.Fatalf("seal: %v", err)
	}
	if sealed[0] != recordPlain || len(sealed) != 1+len("payload") {
		t.Fatalf("plain frame = %v", sealed)
	}
	opened, err := s.open(key, sealed)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if string(opened) != "payload" {
		t.Fatalf("opened = %q", opened)
	}
}

func TestPlainSealerRejectsSealedRecord(t *testing.T) {
	enc := newTestSealer(t, "hunter2")
	sealed, err := enc.seal([]byte("contact/x"), []byte("payload"))
	if err != nil {
		t.Fatalf("seal: %v", err)
	}

	_, err = newPlainSealer().open([]byte("contact/x"), sealed)
	if err == nil || !strings.Contains(err.Error(), "passphrase") {
		t.Fatalf("expected passphrase error, got %v", err)
	}
}

func TestBlobAddressDomains(t *testing.T) {
	content := []byte("the same avatar bytes")

	plain := newPlainSealer().blobAddress(content)
	keyed := newTestSealer(t, "hunter2").blobAddress(content)
	if plain == keyed {
		t.Fatal("keyed and unkeyed addresses collide")
	}

	again := newTestSealer(t, "hunter2").blobAddress(content)
	if keyed != again {
		t.Fatal("keyed address is not deterministic")
	}
	if other := newTestSealer(t, "different").blobAddress(content); other == keyed {
		t.Fatal("addresses identical across passphrases")
	}
}
