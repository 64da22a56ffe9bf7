// Copyright 2026 The Klaxon Authors
// SPDX-License-Identifier: Apache-2.0

// Package testutil provides shared test helpers for Klaxon packages.
//
// [RequireReceive], [RequireSend], and [RequireClosed] encapsulate the
// timeout safety valve pattern (select with time.After fallback) so
// that individual tests never hang on a channel that will not
// deliver. These are the only place in the test suite where real
// wall-clock timeouts are used; everything timer-driven goes through
// lib/clock fakes.
//
// [UniqueID] generates monotonically increasing identifiers for test
// disambiguation: message bodies, device names, and store paths that
// must be distinguishable across subtests.
//
// All helpers call t.Fatalf on failure rather than returning errors,
// since test setup failures are not recoverable.
//
// This package has no Klaxon-internal dependencies.
package testutil
