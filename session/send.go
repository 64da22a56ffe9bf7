// Copyright 2026 The Klaxon Authors
// SPDX-License-Identifier: Apache-2.0

package session

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/klaxon-im/klaxon/backend"
	"github.com/klaxon-im/klaxon/chat"
)

func (a *actor) sendTask(cmd sendCommand) {
	event, err := a.send(a.ctx, cmd.target, cmd.body, cmd.quote)
	cmd.reply <- sendReply{event: event, err: err}
}

func (a *actor) editTask(cmd editCommand) {
	event, err := a.edit(a.ctx, cmd.target, cmd.body, cmd.timestamp)
	cmd.reply <- sendReply{event: event, err: err}
}

// send composes a message for the target chat, transmits it, persists
// the sent transcript, and decodes that transcript back into the event
// the caller folds into its timeline. Every failure comes back as a
// *SendError; the engine is unaffected.
func (a *actor) send(ctx context.Context, target chat.Chat, body string, quote *chat.Message) (Event, error) {
	thread := target.Thread()
	fail := func(stage string, err error) (Event, error) {
		a.log.Warn("send failed", "thread", thread.String(), "stage", stage, "error", err)
		return Event{}, &SendError{Op: OpSend, Thread: thread, Err: fmt.Errorf("%s: %w", stage, err)}
	}

	self := a.self.Load()
	if self == nil {
		return fail("identity", errors.New("account identity not yet established"))
	}

	dm := &backend.DataMessage{Body: &body}
	if quote != nil {
		author := quote.Sender.ID
		quoted := quote.Body
		dm.Quote = &backend.Quote{
			ID:         quote.SentAt,
			Author:     &author,
			Text:       &quoted,
			BodyRanges: quote.Ranges,
		}
	}

	ts := backend.TimestampFromTime(a.clk.Now())
	sent, err := a.transmit(ctx, target, backend.Content{DataMessage: dm}, dm, ts)
	if err != nil {
		return fail("transmit", err)
	}
	sent.Message = dm

	return a.recordTranscript(ctx, thread, self.ACI, ts, sent, OpSend)
}

// edit composes replacement content for the message sent at timestamp,
// transmits the edit, prunes the superseded record, persists the edit
// transcript, and returns the Replace event.
func (a *actor) edit(ctx context.Context, target chat.Chat, body string, timestamp backend.Timestamp) (Event, error) {
	thread := target.Thread()
	fail := func(stage string, err error) (Event, error) {
		a.log.Warn("edit failed", "thread", thread.String(), "stage", stage, "error", err)
		return Event{}, &SendError{Op: OpEdit, Thread: thread, Err: fmt.Errorf("%s: %w", stage, err)}
	}

	self := a.self.Load()
	if self == nil {
		return fail("identity", errors.New("account identity not yet established"))
	}

	dm := &backend.DataMessage{Body: &body}
	edit := &backend.EditMessage{TargetSentTimestamp: timestamp, DataMessage: dm}

	ts := backend.TimestampFromTime(a.clk.Now())
	sent, err := a.transmit(ctx, target, backend.Content{EditMessage: edit}, dm, ts)
	if err != nil {
		return fail("transmit", err)
	}
	sent.EditMessage = edit

	// Remove the pre-edit record before persisting the edit, so a crash
	// between the two replays at most the edit, never both.
	if _, err := a.store.DeleteMessage(ctx, thread, timestamp); err != nil {
		return fail("prune", err)
	}

	return a.recordTranscript(ctx, thread, self.ACI, ts, sent, OpEdit)
}

// transmit sends content to the chat's destination, stamping group
// context into the payload for group sends. The returned Sent carries
// the destination; the caller attaches the payload.
func (a *actor) transmit(ctx context.Context, target chat.Chat, content backend.Content, dm *backend.DataMessage, ts backend.Timestamp) (*backend.Sent, error) {
	h, ok := a.handle.get()
	if !ok {
		return nil, errNoHandle
	}
	thread := target.Thread()

	if key, ok := thread.Group(); ok {
		group, ok := target.(chat.Group)
		if !ok {
			return nil, errors.New("group thread with non-group chat")
		}
		dm.GroupContext = &backend.GroupContext{MasterKey: key, Revision: group.Revision}
		if err := h.SendGroupMessage(ctx, key, content, ts); err != nil {
			return nil, err
		}
		return &backend.Sent{Timestamp: ts}, nil
	}

	id, ok := thread.Contact()
	if !ok {
		return nil, errors.New("invalid chat thread")
	}
	if err := h.SendMessage(ctx, id, content, ts); err != nil {
		return nil, err
	}
	destination := id
	return &backend.Sent{Destination: &destination, Timestamp: ts}, nil
}

// recordTranscript persists the sent transcript and decodes it through
// the inbound path, so outgoing messages take the exact shape received
// ones do — including surviving restarts via replay.
func (a *actor) recordTranscript(ctx context.Context, thread backend.Thread, sender uuid.UUID, ts backend.Timestamp, sent *backend.Sent, op SendOp) (Event, error) {
	fail := func(stage string, err error) (Event, error) {
		a.log.Warn("recording transcript failed",
			"thread", thread.String(), "stage", stage, "error", err)
		return Event{}, &SendError{Op: op, Thread: thread, Err: fmt.Errorf("%s: %w", stage, err)}
	}

	env := backend.Envelope{
		Sender:    sender,
		Timestamp: ts,
		Content:   backend.Content{SyncMessage: &backend.SyncMessage{Sent: sent}},
	}
	if err := a.store.SaveMessage(ctx, thread, env); err != nil {
		return fail("persist", err)
	}
	target, action, ok := a.dec.decode(ctx, env)
	if !ok {
		return fail("decode", errors.New("transcript did not decode"))
	}
	return Event{Chat: target, Action: action, Live: a.synced.Load()}, nil
}
