// Copyright 2026 The Klaxon Authors
// SPDX-License-Identifier: Apache-2.0

package testutil

import (
	"fmt"
	"sync/atomic"
)

var uniqueCounter atomic.Uint64

// UniqueID returns a string of the form "prefix-N" where N is a
// monotonically increasing integer. Use this instead of time.Now()
// when tests need identifiers that must be distinguishable across
// subtests running in the same process.
//
//	body := testutil.UniqueID("hello")      // "hello-1", "hello-2", ...
//	device := testutil.UniqueID("klaxon")   // "klaxon-3", ...
func UniqueID(prefix string) string {
	return fmt.Sprintf("%s-%d", prefix, uniqueCounter.Add(1))
}
