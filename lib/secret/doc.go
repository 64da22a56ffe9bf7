// Copyright 2026 The Klaxon Authors
// SPDX-License-Identifier: Apache-2.0

// Package secret provides a memory-safe buffer for sensitive data:
// store passphrases and the encryption keys derived from them.
//
// [Buffer] allocates memory outside the Go heap via
// mmap(MAP_ANONYMOUS), locks it into physical RAM via mlock
// (preventing swap), and marks it excluded from core dumps via
// madvise(MADV_DONTDUMP). On Close, the memory is zeroed, unlocked,
// and unmapped. Because the memory lives outside the Go heap, the
// garbage collector cannot copy or relocate it, guaranteeing the key
// material does not persist after release.
//
// Constructors:
//
//   - [New] — allocates a zero-filled buffer of a given size
//   - [NewFromBytes] — copies into protected memory, zeros the source
//   - [ReadFromPath] — reads a passphrase file (or stdin via "-")
//
// Access via [Buffer.Bytes], a slice into the mmap region. After
// Close, any access panics. Close is idempotent.
//
// Depends on golang.org/x/sys/unix. No Klaxon-internal dependencies.
// Imported by the store's sealing layer for passphrase and derived
// key protection.
package secret
