// Copyright 2026 The Klaxon Authors
// SPDX-License-Identifier: Apache-2.0

package session

import (
	"context"
	"log/slog"

	"github.com/google/uuid"

	"github.com/klaxon-im/klaxon/backend"
	"github.com/klaxon-im/klaxon/chat"
)

// decoder maps envelopes to (chat, action) pairs, resolving chats
// through the cache as a side effect. An envelope that carries nothing
// for the timeline — receipts, typing, unrecognized sync payloads — or
// whose chat cannot be resolved decodes to nothing and is skipped.
type decoder struct {
	cache *cache
	store backend.Store
	log   *slog.Logger
}

// decode runs the envelope through the arms below. The order is
// load-bearing: edits and deletes nest inside the same payloads as
// plain messages and must be recognized first, and received shapes are
// distinguished from self-originated sync transcripts arm by arm.
func (d *decoder) decode(ctx context.Context, env backend.Envelope) (chat.Chat, chat.Action, bool) {
	content := env.Content
	sent := syncSent(content)

	// Edit, received: replacement content addressed at an earlier
	// timestamp from another account.
	if edit := content.EditMessage; edit != nil && edit.DataMessage != nil {
		target, ok := d.originChat(ctx, env.Sender, edit.DataMessage)
		if !ok {
			return nil, nil, false
		}
		message, ok := d.message(env.Timestamp, env.Sender, edit.DataMessage)
		if !ok {
			return nil, nil, false
		}
		d.pruneSuperseded(ctx, target.Thread(), edit.TargetSentTimestamp)
		return target, chat.Replace{OldSentAt: edit.TargetSentTimestamp, Message: message}, true
	}

	// Edit, self-originated: the transcript of an edit sent from
	// another device of this account.
	if sent != nil && sent.EditMessage != nil && sent.EditMessage.DataMessage != nil {
		edit := sent.EditMessage
		target, ok := d.destinationChat(ctx, sent, edit.DataMessage)
		if !ok {
			return nil, nil, false
		}
		message, ok := d.message(env.Timestamp, env.Sender, edit.DataMessage)
		if !ok {
			return nil, nil, false
		}
		d.pruneSuperseded(ctx, target.Thread(), edit.TargetSentTimestamp)
		return target, chat.Replace{OldSentAt: edit.TargetSentTimestamp, Message: message}, true
	}

	// Delete, received: a retraction; no content decodes.
	if dm := content.DataMessage; dm != nil && dm.Delete != nil {
		target, ok := d.originChat(ctx, env.Sender, dm)
		if !ok {
			return nil, nil, false
		}
		return target, chat.Delete{SentAt: dm.Delete.TargetSentTimestamp}, true
	}

	// Delete, self-originated.
	if sent != nil && sent.Message != nil && sent.Message.Delete != nil {
		target, ok := d.destinationChat(ctx, sent, sent.Message)
		if !ok {
			return nil, nil, false
		}
		return target, chat.Delete{SentAt: sent.Message.Delete.TargetSentTimestamp}, true
	}

	// Plain message, received.
	if dm := content.DataMessage; dm != nil {
		target, ok := d.originChat(ctx, env.Sender, dm)
		if !ok {
			return nil, nil, false
		}
		message, ok := d.message(env.Timestamp, env.Sender, dm)
		if !ok {
			return nil, nil, false
		}
		return target, chat.Insert{Message: message}, true
	}

	// Plain message, self-originated.
	if sent != nil && sent.Message != nil {
		target, ok := d.destinationChat(ctx, sent, sent.Message)
		if !ok {
			return nil, nil, false
		}
		message, ok := d.message(env.Timestamp, env.Sender, sent.Message)
		if !ok {
			return nil, nil, false
		}
		return target, chat.Insert{Message: message}, true
	}

	// Receipts, typing, everything else: nothing for the timeline.
	return nil, nil, false
}

func syncSent(content backend.Content) *backend.Sent {
	if content.SyncMessage == nil {
		return nil
	}
	return content.SyncMessage.Sent
}

// originChat resolves the thread a received payload belongs to: its
// group context when present, the sender otherwise.
func (d *decoder) originChat(ctx context.Context, sender uuid.UUID, dm *backend.DataMessage) (chat.Chat, bool) {
	if dm.GroupContext != nil {
		return d.cache.resolveGroup(ctx, *dm.GroupContext)
	}
	return d.cache.resolveContact(ctx, sender, dm.ProfileKey)
}

// destinationChat resolves the thread a sent transcript belongs to: the
// group context when present, the declared destination otherwise.
func (d *decoder) destinationChat(ctx context.Context, sent *backend.Sent, dm *backend.DataMessage) (chat.Chat, bool) {
	if dm.GroupContext != nil {
		return d.cache.resolveGroup(ctx, *dm.GroupContext)
	}
	if sent.Destination == nil {
		return nil, false
	}
	return d.cache.resolveContact(ctx, *sent.Destination, dm.ProfileKey)
}

// message builds the timeline message for a payload. The sender must
// already be cached — resolution happened when the chat resolved, or
// never will.
func (d *decoder) message(ts backend.Timestamp, sender uuid.UUID, dm *backend.DataMessage) (chat.Message, bool) {
	senderContact, ok := d.cache.contact(sender)
	if !ok {
		d.log.Debug("dropping message from uncached sender", "sender", sender.String())
		return chat.Message{}, false
	}
	message := chat.Message{
		SentAt: ts,
		Sender: senderContact,
		Ranges: dm.BodyRanges,
	}
	if dm.Body != nil {
		message.Body = *dm.Body
	}
	for _, pointer := range dm.Attachments {
		message.Attachments = append(message.Attachments, attachment(pointer))
	}
	if dm.Sticker != nil && dm.Sticker.Data != nil {
		sticker := attachment(*dm.Sticker.Data)
		message.Sticker = &sticker
	}
	if dm.Quote != nil {
		message.Quote = d.quote(*dm.Quote)
	}
	return message, true
}

// quote resolves a reply reference. The quoted author is looked up
// cache-only: an uncached author leaves the quote sender empty rather
// than failing the message.
func (d *decoder) quote(q backend.Quote) *chat.Quote {
	quote := &chat.Quote{
		SentAt:      q.ID,
		Ranges:      q.BodyRanges,
		Attachments: q.Attachments,
	}
	if q.Text != nil {
		quote.Body = *q.Text
	}
	if q.Author != nil {
		if author, ok := d.cache.contact(*q.Author); ok {
			quote.Sender = &author
		}
	}
	return quote
}

// attachment keeps the pointer opaque and surfaces inline thumbnail
// bytes only for declared image content; nothing is ever downloaded.
func attachment(pointer backend.AttachmentPointer) chat.Attachment {
	att := chat.Attachment{Pointer: pointer}
	if pointer.IsImage() {
		att.Thumbnail = pointer.Thumbnail
	}
	return att
}

// pruneSuperseded removes the persisted record an edit replaces, so a
// restart replays only the edit. Absence is fine; a store error is
// logged and the replacement still goes out.
func (d *decoder) pruneSuperseded(ctx context.Context, thread backend.Thread, ts backend.Timestamp) {
	if _, err := d.store.DeleteMessage(ctx, thread, ts); err != nil {
		d.log.Warn("failed to prune superseded message",
			"thread", thread.String(), "timestamp", ts.String(), "error", err)
	}
}
