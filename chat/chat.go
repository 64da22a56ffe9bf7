// Copyright 2026 The Klaxon Authors
// SPDX-License-Identifier: Apache-2.0

package chat

import (
	"github.com/google/uuid"

	"github.com/klaxon-im/klaxon/backend"
)

// Chat is a resolved conversation: a contact or a group.
type Chat interface {
	// Thread identifies the conversation.
	Thread() backend.Thread
	// DisplayName is the name to render: the contact's profile name or
	// the group title.
	DisplayName() string
}

// Contact is a fully resolved contact: profile fetched, avatar fetched
// (nil when the contact has none), and self-flagged when the contact is
// the local account.
type Contact struct {
	ID         uuid.UUID
	ProfileKey backend.ProfileKey
	Name       string
	Avatar     []byte
	IsSelf     bool
}

// Thread implements Chat.
func (c Contact) Thread() backend.Thread {
	return backend.ContactThread(c.ID)
}

// DisplayName implements Chat.
func (c Contact) DisplayName() string {
	return c.Name
}

// Group is a fully resolved group at a specific revision: title, avatar,
// and every member resolved to a Contact. A Group is valid only for its
// revision; traffic citing a newer revision forces a re-resolution.
type Group struct {
	Key      backend.GroupKey
	Revision uint32
	Title    string
	Avatar   []byte
	Members  []Contact
}

// Thread implements Chat.
func (g Group) Thread() backend.Thread {
	return backend.GroupThread(g.Key)
}

// DisplayName implements Chat.
func (g Group) DisplayName() string {
	return g.Title
}

var (
	_ Chat = Contact{}
	_ Chat = Group{}
)
