// Copyright 2026 The Klaxon Authors
// SPDX-License-Identifier: Apache-2.0

// Package clock provides an injectable time abstraction for testability.
//
// Production code accepts a Clock parameter instead of calling
// time.Now, time.After, or time.Sleep directly. Real() wires in the
// standard library; Fake() provides a deterministic clock that moves
// only when Advance is called.
//
// The backoff retry loop is the main consumer: against a FakeClock a
// test can observe every delay in the Fibonacci sequence without the
// test itself taking any wall time.
//
// # FakeClock Synchronization
//
// When a goroutine calls Sleep or After on a FakeClock it registers a
// pending waiter. Use WaitForWaiters to block until a known number of
// waiters are registered before calling Advance; that removes the
// race between waiter registration and time advancement that plagues
// tests built on real sleeps.
package clock
