// Copyright 2026 The Klaxon Authors
// SPDX-License-Identifier: Apache-2.0

// Package pebblestore persists account state in a Pebble database: the
// contact, group, and profile records the backend learns during sync,
// the per-thread message log the session engine replays at startup, and
// content-addressed avatar blobs.
//
// A store optionally encrypts at rest. With a passphrase, every record
// value seals under XChaCha20-Poly1305 with a key derived via
// HKDF-SHA256 from the passphrase and a per-store random salt; the
// storage key binds into the AEAD so records cannot be swapped between
// keys. Only the bootstrap metadata needed to open the store (format
// version, salt, passphrase check) stays plain.
//
// The package implements backend.Store; the extra writer and listing
// methods serve the backend implementation that owns the store and the
// inspection tooling.
package pebblestore
