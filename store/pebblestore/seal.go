// Copyright 2026 The Klaxon Authors
// SPDX-License-Identifier: Apache-2.0

package pebblestore

import (
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"fmt"
	"io"

	"github.com/zeebo/blake3"
	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/hkdf"

	"github.com/klaxon-im/klaxon/lib/secret"
)

// recordKeySize is the size of the derived record encryption key and
// the blob naming key.
const recordKeySize = 32

// saltSize is the size of the per-store HKDF salt generated when an
// encrypted store is created.
const saltSize = 16

// Record version bytes, the first byte of every stored record value.
// The version binds into the AEAD's additional authenticated data, so
// rewriting it on a sealed record breaks authentication. These are
// format constants; changing them invalidates existing stores.
const (
	recordPlain  byte = 0x00
	recordSealed byte = 0x01
)

// sealedOverhead is the fixed byte overhead of a sealed record: version,
// XChaCha20-Poly1305 nonce, and Poly1305 tag.
const sealedOverhead = 1 + chacha20poly1305.NonceSizeX + chacha20poly1305.Overhead

// HKDF info strings, the domain separators between the two keys derived
// from one passphrase.
var (
	hkdfInfoRecordKey = []byte("klaxon.store.record.v1")
	hkdfInfoBlobName  = []byte("klaxon.store.blobname.v1")
)

// blobNameDomain prefixes the content bytes in keyed blob addressing.
var blobNameDomain = []byte("klaxon.store.blob.v1")

// sealer wraps and unwraps record values for storage. A plaintext
// sealer (no passphrase) only frames values with the plain version
// byte; an encrypted one seals them under XChaCha20-Poly1305, with the
// storage key as AAD so a record pasted under a different key fails to
// authenticate.
type sealer struct {
	aead    cipher.AEAD
	nameKey *secret.Buffer
}

func newPlainSealer() *sealer {
	return &sealer{}
}

// newSealer derives the record and blob-naming keys from the passphrase
// and the store's salt. The passphrase buffer is borrowed, not closed.
func newSealer(passphrase *secret.Buffer, salt []byte) (*sealer, error) {
	recordKey, err := deriveKey(passphrase.Bytes(), salt, hkdfInfoRecordKey)
	if err != nil {
		return nil, err
	}
	defer recordKey.Close()

	aead, err := chacha20poly1305.NewX(recordKey.Bytes())
	if err != nil {
		return nil, fmt.Errorf("pebblestore: initializing record cipher: %w", err)
	}

	nameKey, err := deriveKey(passphrase.Bytes(), salt, hkdfInfoBlobName)
	if err != nil {
		return nil, err
	}
	return &sealer{aead: aead, nameKey: nameKey}, nil
}

// sealed reports whether records encrypt at rest.
func (s *sealer) sealed() bool {
	return s.aead != nil
}

// close releases the blob naming key. The record key lives only inside
// the AEAD's internal state.
func (s *sealer) close() error {
	if s.nameKey == nil {
		return nil
	}
	return s.nameKey.Close()
}

// seal wraps plaintext for storage under the given key:
//
//	plain:  [0x00] [plaintext]
//	sealed: [0x01] [24-byte nonce] [ciphertext+tag]
func (s *sealer) seal(storageKey, plaintext []byte) ([]byte, error) {
	if s.aead == nil {
		out := make([]byte, 1+len(plaintext))
		out[0] = recordPlain
		copy(out[1:], plaintext)
		return out, nil
	}

	var nonce [chacha20poly1305.NonceSizeX]byte
	if _, err := io.ReadFull(rand.Reader, nonce[:]); err != nil {
		return nil, fmt.Errorf("pebblestore: generating nonce: %w", err)
	}

	out := make([]byte, 1+chacha20poly1305.NonceSizeX, sealedOverhead+len(plaintext))
	out[0] = recordSealed
	copy(out[1:], nonce[:])
	return s.aead.Seal(out, nonce[:], plaintext, recordAAD(recordSealed, storageKey)), nil
}

// open unwraps a stored record value. The returned plaintext may alias
// stored; callers must finish with it before releasing the backing
// memory.
func (s *sealer) open(storageKey, stored []byte) ([]byte, error) {
	if len(stored) == 0 {
		return nil, fmt.Errorf("pebblestore: empty record %q", storageKey)
	}
	switch stored[0] {
	case recordPlain:
		if s.aead != nil {
			return nil, fmt.Errorf("pebblestore: plaintext record %q in an encrypted store", storageKey)
		}
		return stored[1:], nil

	case recordSealed:
		if s.aead == nil {
			return nil, fmt.Errorf("pebblestore: record %q is encrypted: passphrase required", storageKey)
		}
		if len(stored) < sealedOverhead {
			return nil, fmt.Errorf("pebblestore: sealed record %q is %d bytes, minimum is %d",
				storageKey, len(stored), sealedOverhead)
		}
		nonce := stored[1 : 1+chacha20poly1305.NonceSizeX]
		ciphertext := stored[1+chacha20poly1305.NonceSizeX:]
		plaintext, err := s.aead.Open(nil, nonce, ciphertext, recordAAD(recordSealed, storageKey))
		if err != nil {
			return nil, fmt.Errorf("pebblestore: record %q failed authentication (wrong passphrase or tampered store): %w",
				storageKey, err)
		}
		return plaintext, nil

	default:
		return nil, fmt.Errorf("pebblestore: record %q has unsupported version %d", storageKey, stored[0])
	}
}

// blobAddress computes the content address for blob storage. Encrypted
// stores use a BLAKE3 keyed hash so an attacker holding the database
// cannot confirm known content by address; plain stores hash directly.
func (s *sealer) blobAddress(content []byte) BlobAddress {
	if s.nameKey == nil {
		return BlobAddress(blake3.Sum256(content))
	}
	hasher, err := blake3.NewKeyed(s.nameKey.Bytes())
	if err != nil {
		panic("pebblestore: BLAKE3 keyed hasher initialization failed (key must be 32 bytes): " + err.Error())
	}
	hasher.Write(blobNameDomain)
	hasher.Write(content)
	var addr BlobAddress
	copy(addr[:], hasher.Sum(nil))
	return addr
}

// deriveKey is the shared HKDF-SHA256 derivation for both store keys.
func deriveKey(passphrase, salt, info []byte) (*secret.Buffer, error) {
	reader := hkdf.New(sha256.New, passphrase, salt, info)
	derived := make([]byte, recordKeySize)
	if _, err := io.ReadFull(reader, derived); err != nil {
		secret.Zero(derived)
		return nil, fmt.Errorf("pebblestore: deriving store key: %w", err)
	}
	return secret.NewFromBytes(derived)
}

// recordAAD builds the additional authenticated data for a record: the
// version byte followed by the full storage key.
func recordAAD(version byte, storageKey []byte) []byte {
	aad := make([]byte, 1+len(storageKey))
	aad[0] = version
	copy(aad[1:], storageKey)
	return aad
}
