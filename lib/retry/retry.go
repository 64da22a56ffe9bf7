// Copyright 2026 The Klaxon Authors
// SPDX-License-Identifier: Apache-2.0

// Package retry provides a backoff loop for probes against the
// backend that may transiently fail, typically during startup races:
// registration data that is not yet readable in the instant after a
// device links, a receive queue that has not opened.
//
// Delays follow a Fibonacci sequence rather than doubling: growth is
// gentle early (100ms, 100ms, 200ms, 300ms, 500ms, ...) where most
// transient conditions clear, while still reaching the ceiling for
// conditions that do not.
package retry

import (
	"context"
	"time"

	"github.com/klaxon-im/klaxon/lib/clock"
)

const (
	// initialDelay is the first wait between probe attempts.
	initialDelay = 100 * time.Millisecond

	// maxDelay caps the Fibonacci growth. Once reached, every
	// subsequent wait is exactly maxDelay.
	maxDelay = 1_000_000 * time.Millisecond
)

// Fibonacci invokes probe until it reports success, waiting between
// attempts with Fibonacci-growing delays. The attempt count is
// unbounded; cancellation happens only through ctx. Waits go through
// clk so tests can drive the sequence deterministically.
//
// The delay sequence is non-decreasing and bounded above by maxDelay.
func Fibonacci[T any](ctx context.Context, clk clock.Clock, probe func(context.Context) (T, bool)) (T, error) {
	previous, delay := time.Duration(0), initialDelay

	for {
		if value, ok := probe(ctx); ok {
			return value, nil
		}

		select {
		case <-clk.After(delay):
		case <-ctx.Done():
			var zero T
			return zero, ctx.Err()
		}

		previous, delay = delay, min(maxDelay, previous+delay)
	}
}
