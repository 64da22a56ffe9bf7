// Copyright 2026 The Klaxon Authors
// SPDX-License-Identifier: Apache-2.0

// Package backend defines the boundary between the session engine and the
// messaging protocol implementation: the wire-adjacent envelope model, the
// durable store records, and the interfaces (Loader, Session, Handle, Store)
// that a concrete protocol backend provides.
//
// Everything in this package is transport-agnostic. Envelopes arrive already
// decrypted and sealed-sender-resolved; the session engine never sees
// ciphertext, prekeys, or session ratchets. The store records are the
// durable mirror of what the backend has learned about the account:
// contacts, groups, profiles, and the per-thread message log.
//
// All persisted types carry cbor struct tags and are encoded with lib/codec.
package backend
