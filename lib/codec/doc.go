// Copyright 2026 The Klaxon Authors
// SPDX-License-Identifier: Apache-2.0

// Package codec provides Klaxon's standard CBOR encoding configuration.
//
// Everything Klaxon persists — contact and group records, profiles,
// message envelopes, the registration record — is CBOR. This package
// holds the shared encoding and decoding modes so that every package
// encodes identically without duplicating configuration. The encoder
// uses Core Deterministic Encoding (RFC 8949 §4.2): sorted map keys,
// smallest integer encoding, no indefinite-length items. Same logical
// record always produces identical bytes, which matters once records
// are sealed: a rewrite of unchanged data produces unchanged
// plaintext.
//
//	data, err := codec.Marshal(record)
//	err = codec.Unmarshal(data, &record)
//
// # Struct Tag Rules
//
// Persisted types carry `cbor` struct tags. They are never marshaled
// to JSON; the tag documents that the type's only serialized form is
// a store record. Short field names are fine — the record layout is
// internal to the store and versioned by the store format byte.
package codec
