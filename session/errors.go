// Copyright 2026 The Klaxon Authors
// SPDX-License-Identifier: Apache-2.0

package session

import (
	"errors"
	"fmt"

	"github.com/klaxon-im/klaxon/backend"
)

// ErrClosed is returned by Session methods after the session has shut
// down.
var ErrClosed = errors.New("session: closed")

// errNoHandle indicates a command needed the live backend handle before
// LoadSession or LinkDevice provided one.
var errNoHandle = errors.New("no live backend handle")

// SendOp identifies which outgoing operation a SendError belongs to.
type SendOp string

// Outgoing operations.
const (
	OpSend SendOp = "send"
	OpEdit SendOp = "edit"
)

// SendError reports a failed outgoing message. Callers can use
// errors.As (or AsSendError) to recover the structured information:
//
//	var sendErr *session.SendError
//	if errors.As(err, &sendErr) {
//	    retryLater(sendErr.Thread)
//	}
//
// A SendError means the message may not have reached the service; the
// session stays usable and the caller decides whether to retry.
type SendError struct {
	// Op is the operation that failed.
	Op SendOp
	// Thread is the conversation the message was addressed to.
	Thread backend.Thread
	// Err is the underlying cause.
	Err error
}

func (e *SendError) Error() string {
	return fmt.Sprintf("session: %s to %s failed: %v", e.Op, e.Thread, e.Err)
}

func (e *SendError) Unwrap() error {
	return e.Err
}

// AsSendError extracts a SendError from err's chain.
func AsSendError(err error) (*SendError, bool) {
	var sendErr *SendError
	if errors.As(err, &sendErr) {
		return sendErr, true
	}
	return nil, false
}
