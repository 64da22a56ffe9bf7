// Copyright 2026 The Klaxon Authors
// SPDX-License-Identifier: Apache-2.0

package chat

import (
	"cmp"
	"slices"

	"github.com/klaxon-im/klaxon/backend"
)

// Timeline is one chat's message history keyed by sent timestamp. It is
// the reference reduction of an Action stream: applying the same set of
// actions yields the same final contents regardless of order, because
// inserts land on distinct timestamps and superseded entries are removed
// from the store before their replacements replay.
//
// Timeline is not safe for concurrent use.
type Timeline struct {
	messages map[backend.Timestamp]Message
}

// NewTimeline returns an empty timeline.
func NewTimeline() *Timeline {
	return &Timeline{messages: make(map[backend.Timestamp]Message)}
}

// Apply folds one action into the timeline.
func (t *Timeline) Apply(action Action) {
	switch a := action.(type) {
	case Insert:
		t.messages[a.Message.SentAt] = a.Message
	case Replace:
		delete(t.messages, a.OldSentAt)
		t.messages[a.Message.SentAt] = a.Message
	case Delete:
		delete(t.messages, a.SentAt)
	case ContactDiscovered:
		// Announces the chat itself; no timeline content.
	}
}

// Len returns the number of messages.
func (t *Timeline) Len() int {
	return len(t.messages)
}

// Get returns the message at the given sent timestamp.
func (t *Timeline) Get(ts backend.Timestamp) (Message, bool) {
	m, ok := t.messages[ts]
	return m, ok
}

// Messages returns all messages in ascending sent-timestamp order.
func (t *Timeline) Messages() []Message {
	out := make([]Message, 0, len(t.messages))
	for _, m := range t.messages {
		out = append(out, m)
	}
	slices.SortFunc(out, func(a, b Message) int {
		return cmp.Compare(a.SentAt, b.SentAt)
	})
	return out
}
