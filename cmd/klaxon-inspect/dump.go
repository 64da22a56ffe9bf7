// Copyright 2026 The Klaxon Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/google/uuid"

	"github.com/klaxon-im/klaxon/backend"
	"github.com/klaxon-im/klaxon/chat"
	"github.com/klaxon-im/klaxon/lib/codec"
	"github.com/klaxon-im/klaxon/store/pebblestore"
)

// timeLayout renders message timestamps with the millisecond precision
// that is their identity.
const timeLayout = "2006-01-02 15:04:05.000"

func dumpThreads(ctx context.Context, store *pebblestore.Store, out io.Writer) error {
	threads, err := store.Threads(ctx)
	if err != nil {
		return err
	}

	tw := tabwriter.NewWriter(out, 2, 0, 3, ' ', 0)
	fmt.Fprintf(tw, "THREAD\tMESSAGES\tFIRST\tLAST\n")
	for _, thread := range threads {
		envelopes, err := store.Messages(ctx, thread)
		if err != nil {
			return err
		}
		first, last := "-", "-"
		if len(envelopes) > 0 {
			first = envelopes[0].Timestamp.Time().Format(timeLayout)
			last = envelopes[len(envelopes)-1].Timestamp.Time().Format(timeLayout)
		}
		fmt.Fprintf(tw, "%s\t%d\t%s\t%s\n", thread, len(envelopes), first, last)
	}
	return tw.Flush()
}

// dumpTimeline replays a thread's persisted records through a Timeline,
// exactly as the session does after a restart, and prints the surviving
// messages in timestamp order.
func dumpTimeline(ctx context.Context, store *pebblestore.Store, out io.Writer, thread backend.Thread) error {
	name, err := contactNamer(ctx, store)
	if err != nil {
		return err
	}
	envelopes, err := store.Messages(ctx, thread)
	if err != nil {
		return err
	}

	timeline := chat.NewTimeline()
	for _, envelope := range envelopes {
		if action, ok := timelineAction(envelope, name); ok {
			timeline.Apply(action)
		}
	}

	tw := tabwriter.NewWriter(out, 2, 0, 3, ' ', 0)
	fmt.Fprintf(tw, "TIME\tSENT-AT\tSENDER\tMESSAGE\n")
	for _, message := range timeline.Messages() {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n",
			message.SentAt.Time().Format(timeLayout),
			message.SentAt,
			message.Sender.Name,
			renderMessage(message),
		)
	}
	return tw.Flush()
}

func dumpContacts(ctx context.Context, store *pebblestore.Store, out io.Writer) error {
	contacts, err := store.Contacts(ctx)
	if err != nil {
		return err
	}

	tw := tabwriter.NewWriter(out, 2, 0, 3, ' ', 0)
	fmt.Fprintf(tw, "ID\tNAME\tPROFILE-KEY\n")
	for _, contact := range contacts {
		key := "set"
		if contact.ProfileKey.IsZero() {
			key = "-"
		}
		name := contact.Name
		if name == "" {
			name = "-"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\n", contact.ID, name, key)
	}
	return tw.Flush()
}

func dumpGroups(ctx context.Context, store *pebblestore.Store, out io.Writer) error {
	groups, err := store.Groups(ctx)
	if err != nil {
		return err
	}

	tw := tabwriter.NewWriter(out, 2, 0, 3, ' ', 0)
	fmt.Fprintf(tw, "TITLE\tREVISION\tMEMBERS\tKEY\n")
	for _, group := range groups {
		title := group.Title
		if title == "" {
			title = "-"
		}
		fmt.Fprintf(tw, "%s\t%d\t%d\t%s\n", title, group.Revision, len(group.Members), group.Key)
	}
	return tw.Flush()
}

func dumpStats(ctx context.Context, store *pebblestore.Store, out io.Writer) error {
	stats, err := store.Stats(ctx)
	if err != nil {
		return err
	}

	fmt.Fprintf(out, "sealed:         %t\n", stats.Sealed)
	fmt.Fprintf(out, "contacts:       %d\n", stats.Contacts)
	fmt.Fprintf(out, "groups:         %d\n", stats.Groups)
	fmt.Fprintf(out, "profiles:       %d\n", stats.Profiles)
	fmt.Fprintf(out, "messages:       %d (%d bytes stored)\n", stats.Messages, stats.MessageBytes)
	fmt.Fprintf(out, "blobs:          %d (%d bytes stored)\n", stats.Blobs, stats.BlobBytes)

	registration, err := store.Registration(ctx)
	switch {
	case errors.Is(err, backend.ErrNotFound):
		fmt.Fprintf(out, "registration:   not linked\n")
	case err != nil:
		return err
	default:
		fmt.Fprintf(out, "registration:   %s on %s (device %q)\n",
			registration.ACI, registration.Server, registration.DeviceName)
	}
	return nil
}

// dumpRecord prints one stored record in CBOR diagnostic notation, after
// unsealing. Key forms match the store layout: contact/<uuid>,
// group/<hex>, profile/<uuid>, msg/<thread>/<zero-padded ts>, and
// meta/registration.
func dumpRecord(ctx context.Context, store *pebblestore.Store, out io.Writer, key string) error {
	plain, err := store.RawRecord(ctx, key)
	if err != nil {
		return err
	}
	diagnostic, err := codec.Diagnose(plain)
	if err != nil {
		return fmt.Errorf("record %s does not decode: %w", key, err)
	}
	fmt.Fprintln(out, diagnostic)
	return nil
}

// contactNamer resolves sender UUIDs against stored contact records.
// Unknown senders render as a truncated UUID; the inspector never
// fetches profiles.
func contactNamer(ctx context.Context, store *pebblestore.Store) (func(uuid.UUID) string, error) {
	contacts, err := store.Contacts(ctx)
	if err != nil {
		return nil, err
	}
	names := make(map[uuid.UUID]string, len(contacts))
	for _, contact := range contacts {
		if contact.Name != "" {
			names[contact.ID] = contact.Name
		}
	}
	return func(id uuid.UUID) string {
		if name, ok := names[id]; ok {
			return name
		}
		return id.String()[:8]
	}, nil
}

// timelineAction maps one persisted envelope to a timeline action
// without touching the backend. Precedence matches the session decoder:
// edits before deletes before plain messages, received forms before
// sent transcripts. Traffic the session does not consume folds to
// nothing.
func timelineAction(envelope backend.Envelope, name func(uuid.UUID) string) (chat.Action, bool) {
	content := envelope.Content
	var sent *backend.Sent
	if content.SyncMessage != nil {
		sent = content.SyncMessage.Sent
	}

	switch {
	case content.EditMessage != nil && content.EditMessage.DataMessage != nil:
		return chat.Replace{
			OldSentAt: content.EditMessage.TargetSentTimestamp,
			Message:   storedMessage(envelope.Timestamp, envelope.Sender, *content.EditMessage.DataMessage, name),
		}, true
	case sent != nil && sent.EditMessage != nil && sent.EditMessage.DataMessage != nil:
		return chat.Replace{
			OldSentAt: sent.EditMessage.TargetSentTimestamp,
			Message:   storedMessage(sent.Timestamp, envelope.Sender, *sent.EditMessage.DataMessage, name),
		}, true
	case content.DataMessage != nil && content.DataMessage.Delete != nil:
		return chat.Delete{SentAt: content.DataMessage.Delete.TargetSentTimestamp}, true
	case sent != nil && sent.Message != nil && sent.Message.Delete != nil:
		return chat.Delete{SentAt: sent.Message.Delete.TargetSentTimestamp}, true
	case content.DataMessage != nil:
		return chat.Insert{
			Message: storedMessage(envelope.Timestamp, envelope.Sender, *content.DataMessage, name),
		}, true
	case sent != nil && sent.Message != nil:
		return chat.Insert{
			Message: storedMessage(sent.Timestamp, envelope.Sender, *sent.Message, name),
		}, true
	default:
		return nil, false
	}
}

// storedMessage builds a displayable message from a persisted payload.
func storedMessage(ts backend.Timestamp, sender uuid.UUID, dm backend.DataMessage, name func(uuid.UUID) string) chat.Message {
	message := chat.Message{
		SentAt: ts,
		Sender: chat.Contact{ID: sender, Name: name(sender)},
		Ranges: dm.BodyRanges,
	}
	if dm.Body != nil {
		message.Body = *dm.Body
	}
	for _, pointer := range dm.Attachments {
		message.Attachments = append(message.Attachments, chat.Attachment{Pointer: pointer})
	}
	if dm.Sticker != nil && dm.Sticker.Data != nil {
		message.Sticker = &chat.Attachment{Pointer: *dm.Sticker.Data}
	}
	if quote := dm.Quote; quote != nil {
		resolved := &chat.Quote{
			SentAt:      quote.ID,
			Ranges:      quote.BodyRanges,
			Attachments: quote.Attachments,
		}
		if quote.Text != nil {
			resolved.Body = *quote.Text
		}
		if quote.Author != nil {
			author := chat.Contact{ID: *quote.Author, Name: name(*quote.Author)}
			resolved.Sender = &author
		}
		message.Quote = resolved
	}
	return message
}

// renderMessage flattens a message to one line of output.
func renderMessage(message chat.Message) string {
	parts := make([]string, 0, 4)
	if message.Quote != nil {
		parts = append(parts, fmt.Sprintf("[reply to %s]", message.Quote.SentAt))
	}
	if message.Body != "" {
		parts = append(parts, message.Body)
	}
	for _, attachment := range message.Attachments {
		contentType := attachment.Pointer.ContentType
		if contentType == "" {
			contentType = "attachment"
		}
		parts = append(parts, "["+contentType+"]")
	}
	if message.Sticker != nil {
		parts = append(parts, "[sticker]")
	}
	if len(parts) == 0 {
		parts = append(parts, "[empty]")
	}
	return strings.Join(parts, " ")
}
