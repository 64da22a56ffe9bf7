// Copyright 2026 The Klaxon Authors
// SPDX-License-Identifier: Apache-2.0

package chat

import (
	"github.com/klaxon-im/klaxon/backend"
)

// Message is a decoded message positioned in a timeline. SentAt is its
// identity within the thread: edits and deletes address it by this
// timestamp.
type Message struct {
	SentAt      backend.Timestamp
	Sender      Contact
	Body        string
	Ranges      []backend.BodyRange
	Attachments []Attachment
	Sticker     *Attachment
	Quote       *Quote
}

// Attachment pairs the opaque backend pointer with the inline thumbnail
// bytes for visual media. Thumbnail is nil for non-image content; the
// full attachment data is never downloaded by the session.
type Attachment struct {
	Pointer   backend.AttachmentPointer
	Thumbnail []byte
}

// Quote is a resolved reply reference. Sender is nil when the quoted
// author is not in the resolution cache; the quote still renders with
// its captured body.
type Quote struct {
	SentAt      backend.Timestamp
	Sender      *Contact
	Body        string
	Ranges      []backend.BodyRange
	Attachments []backend.AttachmentPointer
}
