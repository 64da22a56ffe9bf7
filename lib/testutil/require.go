// Copyright 2026 The Klaxon Authors
// SPDX-License-Identifier: Apache-2.0

package testutil

import (
	"fmt"
	"time"
)

// waitLimit bounds every channel wait in the test suite. Generous on
// purpose: a passing test never waits this long, and a hanging test
// fails with a message instead of tripping the package deadline.
const waitLimit = 5 * time.Second

// testingT is the subset of *testing.T the helpers need. Declared as
// an interface so the helpers also accept *testing.B and test fakes.
type testingT interface {
	Helper()
	Fatalf(format string, args ...any)
}

// RequireReceive reads one value from ch or fails the test after the
// package wait limit. The description names what the test was
// waiting for.
//
//	event := testutil.RequireReceive(t, events, "first decoded event")
func RequireReceive[T any](t testingT, ch <-chan T, format string, args ...any) T {
	t.Helper()
	select {
	case v, ok := <-ch:
		if !ok {
			t.Fatalf("channel closed while waiting for %s", description(format, args))
		}
		return v
	case <-time.After(waitLimit): //nolint:realclock test hang prevention
		t.Fatalf("timed out after %v waiting for %s", waitLimit, description(format, args))
	}
	panic("unreachable")
}

// RequireSend sends v on ch or fails the test after the package wait
// limit.
//
//	testutil.RequireSend(t, commands, cmd, "submitting load command")
func RequireSend[T any](t testingT, ch chan<- T, v T, format string, args ...any) {
	t.Helper()
	select {
	case ch <- v:
	case <-time.After(waitLimit): //nolint:realclock test hang prevention
		t.Fatalf("timed out after %v while %s", waitLimit, description(format, args))
	}
}

// RequireClosed waits for ch to be closed (or to deliver a value) or
// fails the test after the package wait limit. Use it for done
// channels that signal by closing.
//
//	testutil.RequireClosed(t, session.Done(), "session shutdown")
func RequireClosed(t testingT, ch <-chan struct{}, format string, args ...any) {
	t.Helper()
	select {
	case <-ch:
	case <-time.After(waitLimit): //nolint:realclock test hang prevention
		t.Fatalf("timed out after %v waiting for close: %s", waitLimit, description(format, args))
	}
}

func description(format string, args []any) string {
	if len(args) == 0 {
		return format
	}
	return fmt.Sprintf(format, args...)
}
