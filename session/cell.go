// Copyright 2026 The Klaxon Authors
// SPDX-License-Identifier: Apache-2.0

package session

import (
	"context"
	"sync"

	"github.com/klaxon-im/klaxon/backend"
)

// handleCell is a set-once slot for the live backend handle. LoadSession
// and LinkDevice both try to fill it; the first success wins and later
// sets are ignored. Stream and send work waits on the cell rather than
// failing when it starts before a handle exists.
type handleCell struct {
	mu     sync.Mutex
	ready  chan struct{}
	handle backend.Handle
}

func newHandleCell() *handleCell {
	return &handleCell{ready: make(chan struct{})}
}

// set stores the handle if the cell is still empty and reports whether
// it did.
func (c *handleCell) set(h backend.Handle) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.handle != nil {
		return false
	}
	c.handle = h
	close(c.ready)
	return true
}

// get returns the handle without waiting.
func (c *handleCell) get() (backend.Handle, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.handle, c.handle != nil
}

// wait blocks until a handle is set or ctx is cancelled.
func (c *handleCell) wait(ctx context.Context) (backend.Handle, error) {
	select {
	case <-c.ready:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.handle, nil
}
