// Copyright 2026 The Klaxon Authors
// SPDX-License-Identifier: Apache-2.0

package chat

import (
	"fmt"

	"github.com/klaxon-im/klaxon/backend"
)

// Action is one timeline mutation produced by the session engine. The
// concrete types are Insert, Replace, Delete, and Discovered; apply them
// to a Timeline (or a consumer's own view) in arrival order.
type Action interface {
	isAction()
	fmt.Stringer
}

// Insert adds a message to the timeline, overwriting any previous entry
// at the same sent timestamp.
type Insert struct {
	Message Message
}

func (Insert) isAction() {}

func (a Insert) String() string {
	return "insert " + a.Message.SentAt.String()
}

// Replace substitutes an edited message: the entry at OldSentAt (if any)
// is removed and Message takes its place at its own sent timestamp.
type Replace struct {
	OldSentAt backend.Timestamp
	Message   Message
}

func (Replace) isAction() {}

func (a Replace) String() string {
	return "replace " + a.OldSentAt.String() + " with " + a.Message.SentAt.String()
}

// Delete removes the entry at SentAt. Deleting an absent timestamp is a
// no-op.
type Delete struct {
	SentAt backend.Timestamp
}

func (Delete) isAction() {}

func (a Delete) String() string {
	return "delete " + a.SentAt.String()
}

// ContactDiscovered announces a chat with no message attached: emitted
// during cache warm-up for every stored contact and group so consumers
// can list conversations before any message traffic decodes.
type ContactDiscovered struct{}

func (ContactDiscovered) isAction() {}

func (ContactDiscovered) String() string {
	return "discovered"
}

var (
	_ Action = Insert{}
	_ Action = Replace{}
	_ Action = Delete{}
	_ Action = ContactDiscovered{}
)
