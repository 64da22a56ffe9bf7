// Copyright 2026 The Klaxon Authors
// SPDX-License-Identifier: Apache-2.0

package clock

import "time"

// Clock abstracts the time operations the session engine performs so
// that tests can drive them deterministically. Production code injects
// Real(); tests inject Fake() and call Advance.
//
// Any function that would call time.Now, time.After, or time.Sleep
// takes a Clock (or lives on a struct carrying one) instead of
// touching the time package directly. Backoff delays are the main
// consumer: a retry loop against a fake clock finishes in
// microseconds and asserts the exact delay sequence.
type Clock interface {
	// Now returns the current time.
	Now() time.Time

	// After returns a channel that receives the current time once
	// duration d has elapsed. If d <= 0 the channel receives
	// immediately.
	After(d time.Duration) <-chan time.Time

	// Sleep blocks the calling goroutine for at least duration d.
	Sleep(d time.Duration)
}
