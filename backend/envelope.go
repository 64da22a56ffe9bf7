// Copyright 2026 The Klaxon Authors
// SPDX-License-Identifier: Apache-2.0

package backend

import (
	"strings"

	"github.com/google/uuid"
)

// Envelope is one decrypted unit of traffic from the backend. Sender is
// the originating account (the local account itself for sync transcripts)
// and Timestamp is the envelope's server-assigned metadata timestamp,
// which for sent transcripts equals the message's sent timestamp.
type Envelope struct {
	Sender    uuid.UUID `cbor:"sender"`
	Timestamp Timestamp `cbor:"timestamp"`
	Content   Content   `cbor:"content"`
}

// Content is the typed body of an envelope. At most one field is set;
// an envelope with none set carries traffic the session does not consume
// (receipts, typing, protocol chatter) and is skipped.
type Content struct {
	DataMessage *DataMessage `cbor:"data_message,omitempty"`
	SyncMessage *SyncMessage `cbor:"sync_message,omitempty"`
	EditMessage *EditMessage `cbor:"edit_message,omitempty"`
	Receipt     *Receipt     `cbor:"receipt,omitempty"`
	Typing      *Typing      `cbor:"typing,omitempty"`
}

// DataMessage is the payload of a regular message: body text, styled
// ranges, attachments, and the optional group context, quote, sticker,
// and remote-delete instruction.
type DataMessage struct {
	Body         *string             `cbor:"body,omitempty"`
	BodyRanges   []BodyRange         `cbor:"body_ranges,omitempty"`
	Attachments  []AttachmentPointer `cbor:"attachments,omitempty"`
	GroupContext *GroupContext       `cbor:"group,omitempty"`
	ProfileKey   *ProfileKey         `cbor:"profile_key,omitempty"`
	Quote        *Quote              `cbor:"quote,omitempty"`
	Sticker      *Sticker            `cbor:"sticker,omitempty"`
	Delete       *Delete             `cbor:"delete,omitempty"`
}

// SyncMessage carries multi-device traffic synced from the account's other
// devices. The session consumes only sent transcripts.
type SyncMessage struct {
	Sent *Sent `cbor:"sent,omitempty"`
}

// Sent is the transcript of a message sent from another device (or echoed
// for a send from this device). Destination identifies the contact for a
// direct send; group sends carry their thread in the message's group
// context instead. Exactly one of Message and EditMessage is set.
type Sent struct {
	Destination *uuid.UUID   `cbor:"destination,omitempty"`
	Timestamp   Timestamp    `cbor:"timestamp"`
	Message     *DataMessage `cbor:"message,omitempty"`
	EditMessage *EditMessage `cbor:"edit_message,omitempty"`
}

// EditMessage replaces the content of a previously sent message. The
// target is identified by its sent timestamp within the same thread.
type EditMessage struct {
	TargetSentTimestamp Timestamp    `cbor:"target_sent_timestamp"`
	DataMessage         *DataMessage `cbor:"data_message,omitempty"`
}

// Delete is a remote-delete instruction: the sender retracts the message
// it sent at the target timestamp.
type Delete struct {
	TargetSentTimestamp Timestamp `cbor:"target_sent_timestamp"`
}

// GroupContext binds a message to a group thread and cites the group
// revision the sender composed against. A cited revision newer than the
// locally cached one invalidates the cache entry.
type GroupContext struct {
	MasterKey GroupKey `cbor:"master_key"`
	Revision  uint32   `cbor:"revision"`
}

// Quote references an earlier message being replied to. ID is the sent
// timestamp of the quoted message; Author is its sender.
type Quote struct {
	ID          Timestamp           `cbor:"id"`
	Author      *uuid.UUID          `cbor:"author,omitempty"`
	Text        *string             `cbor:"text,omitempty"`
	BodyRanges  []BodyRange         `cbor:"body_ranges,omitempty"`
	Attachments []AttachmentPointer `cbor:"attachments,omitempty"`
}

// Sticker is a sticker reference; Data points at the sticker image.
type Sticker struct {
	PackID    []byte             `cbor:"pack_id,omitempty"`
	PackKey   []byte             `cbor:"pack_key,omitempty"`
	StickerID uint32             `cbor:"sticker_id"`
	Data      *AttachmentPointer `cbor:"data,omitempty"`
}

// AttachmentPointer is an opaque reference to attachment content held by
// the backend. The session never downloads full attachment data; only the
// inline Thumbnail bytes (present for visual media) are surfaced.
type AttachmentPointer struct {
	ContentType string  `cbor:"content_type,omitempty"`
	FileName    *string `cbor:"file_name,omitempty"`
	Size        *uint32 `cbor:"size,omitempty"`
	Key         []byte  `cbor:"key,omitempty"`
	Digest      []byte  `cbor:"digest,omitempty"`
	Thumbnail   []byte  `cbor:"thumbnail,omitempty"`
	Width       *uint32 `cbor:"width,omitempty"`
	Height      *uint32 `cbor:"height,omitempty"`
}

// IsImage reports whether the pointer's declared MIME type is an image
// type. Non-image attachments stay opaque: no preview is surfaced.
func (p AttachmentPointer) IsImage() bool {
	return strings.HasPrefix(p.ContentType, "image/")
}

// BodyStyle is a text style applied to a body range.
type BodyStyle uint8

// Body range styles.
const (
	StyleNone BodyStyle = iota
	StyleBold
	StyleItalic
	StyleSpoiler
	StyleStrikethrough
	StyleMonospace
)

// BodyRange marks a span of the message body, measured in UTF-16 code
// units, carrying either a style or a mention. Exactly one of Style and
// Mention is meaningful per range.
type BodyRange struct {
	Start   uint32     `cbor:"start"`
	Length  uint32     `cbor:"length"`
	Style   BodyStyle  `cbor:"style,omitempty"`
	Mention *uuid.UUID `cbor:"mention,omitempty"`
}

// Receipt acknowledges delivery or reading of earlier messages. The
// session passes receipts through undecoded.
type Receipt struct {
	Timestamps []Timestamp `cbor:"timestamps,omitempty"`
}

// Typing is a typing indicator. The session skips it.
type Typing struct {
	Started bool `cbor:"started"`
}

// ReceivedKind discriminates items on the backend receive stream.
type ReceivedKind uint8

const (
	// ReceivedContent carries a decrypted envelope.
	ReceivedContent ReceivedKind = iota + 1
	// ReceivedQueueEmpty signals that the backend's offline queue has
	// been drained: everything after this marker arrived live.
	ReceivedQueueEmpty
	// ReceivedContacts signals that a contact sync has completed and the
	// stored contact list may have changed.
	ReceivedContacts
)

func (k ReceivedKind) String() string {
	switch k {
	case ReceivedContent:
		return "content"
	case ReceivedQueueEmpty:
		return "queue-empty"
	case ReceivedContacts:
		return "contacts"
	default:
		return "unknown"
	}
}

// Received is one item on the backend receive stream: either an envelope
// or a position marker. Envelope is set only when Kind is ReceivedContent.
type Received struct {
	Kind     ReceivedKind
	Envelope *Envelope
}
