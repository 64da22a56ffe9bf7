// Copyright 2026 The Klaxon Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/google/uuid"

	"github.com/klaxon-im/klaxon/backend"
	"github.com/klaxon-im/klaxon/chat"
	"github.com/klaxon-im/klaxon/store/pebblestore"
)

var (
	inspectSelfID  = uuid.MustParse("5f627f7f-d2f4-4e4b-ae9f-3a0a2b653319")
	inspectAliceID = uuid.MustParse("11f41fc0-3c15-4bd9-8b1c-e5467b3d46ac")
)

func text(s string) *string {
	return &s
}

// seededStore opens a fresh store holding one direct conversation with
// alice: a received greeting, a sent reply that was later edited, and a
// received message that was remote-deleted.
func seededStore(t *testing.T) (*pebblestore.Store, backend.Thread) {
	t.Helper()
	ctx := context.Background()
	log := slog.New(slog.NewTextHandler(io.Discard, nil))

	store, err := pebblestore.Open(t.TempDir(), pebblestore.Options{Logger: log})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	if err := store.SaveContact(ctx, backend.ContactRecord{ID: inspectAliceID, Name: "alice"}); err != nil {
		t.Fatal(err)
	}
	if err := store.SaveContact(ctx, backend.ContactRecord{ID: inspectSelfID, Name: "me"}); err != nil {
		t.Fatal(err)
	}

	thread := backend.ContactThread(inspectAliceID)
	envelopes := []backend.Envelope{
		{
			Sender:    inspectAliceID,
			Timestamp: 1000,
			Content: backend.Content{
				DataMessage: &backend.DataMessage{Body: text("hello there")},
			},
		},
		// Reply sent from this account, recorded as a transcript.
		{
			Sender:    inspectSelfID,
			Timestamp: 2000,
			Content: backend.Content{
				SyncMessage: &backend.SyncMessage{Sent: &backend.Sent{
					Destination: &inspectAliceID,
					Timestamp:   2000,
					Message:     &backend.DataMessage{Body: text("hi alcie")},
				}},
			},
		},
		// The typo fixed: transcript of an edit targeting 2000.
		{
			Sender:    inspectSelfID,
			Timestamp: 2500,
			Content: backend.Content{
				SyncMessage: &backend.SyncMessage{Sent: &backend.Sent{
					Destination: &inspectAliceID,
					Timestamp:   2500,
					EditMessage: &backend.EditMessage{
						TargetSentTimestamp: 2000,
						DataMessage:         &backend.DataMessage{Body: text("hi alice")},
					},
				}},
			},
		},
		{
			Sender:    inspectAliceID,
			Timestamp: 3000,
			Content: backend.Content{
				DataMessage: &backend.DataMessage{Body: text("retracted thought")},
			},
		},
		// Alice remote-deletes her 3000 message.
		{
			Sender:    inspectAliceID,
			Timestamp: 3500,
			Content: backend.Content{
				DataMessage: &backend.DataMessage{
					Delete: &backend.Delete{TargetSentTimestamp: 3000},
				},
			},
		},
	}
	for _, envelope := range envelopes {
		if err := store.SaveMessage(ctx, thread, envelope); err != nil {
			t.Fatalf("SaveMessage %d: %v", envelope.Timestamp, err)
		}
	}
	return store, thread
}

func TestDumpThreads(t *testing.T) {
	store, thread := seededStore(t)

	var out bytes.Buffer
	if err := dumpThreads(context.Background(), store, &out); err != nil {
		t.Fatalf("dumpThreads: %v", err)
	}

	got := out.String()
	var threadLine string
	for _, line := range strings.Split(got, "\n") {
		if strings.Contains(line, thread.String()) {
			threadLine = line
		}
	}
	if threadLine == "" {
		t.Fatalf("output missing thread %s:\n%s", thread, got)
	}
	fields := strings.Fields(threadLine)
	if len(fields) < 2 || fields[1] != "5" {
		t.Errorf("thread line %q, want message count 5 in second column", threadLine)
	}
}

func TestDumpTimelineReplaysEditsAndDeletes(t *testing.T) {
	store, thread := seededStore(t)

	var out bytes.Buffer
	if err := dumpTimeline(context.Background(), store, &out, thread); err != nil {
		t.Fatalf("dumpTimeline: %v", err)
	}
	got := out.String()

	if !strings.Contains(got, "hello there") {
		t.Errorf("output missing received message:\n%s", got)
	}
	if !strings.Contains(got, "hi alice") {
		t.Errorf("output missing edited body:\n%s", got)
	}
	if strings.Contains(got, "hi alcie") {
		t.Errorf("output still shows pre-edit body:\n%s", got)
	}
	if strings.Contains(got, "retracted thought") {
		t.Errorf("output shows remote-deleted message:\n%s", got)
	}
	if !strings.Contains(got, "alice") || !strings.Contains(got, "me") {
		t.Errorf("output missing resolved sender names:\n%s", got)
	}
}

func TestDumpContactsAndStats(t *testing.T) {
	store, _ := seededStore(t)
	ctx := context.Background()

	var contacts bytes.Buffer
	if err := dumpContacts(ctx, store, &contacts); err != nil {
		t.Fatalf("dumpContacts: %v", err)
	}
	if !strings.Contains(contacts.String(), "alice") {
		t.Errorf("contacts output missing alice:\n%s", contacts.String())
	}

	var stats bytes.Buffer
	if err := dumpStats(ctx, store, &stats); err != nil {
		t.Fatalf("dumpStats: %v", err)
	}
	got := stats.String()
	if !strings.Contains(got, "contacts:       2") {
		t.Errorf("stats output missing contact count:\n%s", got)
	}
	if !strings.Contains(got, "not linked") {
		t.Errorf("stats output missing registration state:\n%s", got)
	}
}

func TestDumpRecordDiagnostic(t *testing.T) {
	store, _ := seededStore(t)

	key := "contact/" + inspectAliceID.String()
	var out bytes.Buffer
	if err := dumpRecord(context.Background(), store, &out, key); err != nil {
		t.Fatalf("dumpRecord: %v", err)
	}
	if !strings.Contains(out.String(), "alice") {
		t.Errorf("diagnostic output missing contact name:\n%s", out.String())
	}

	if err := dumpRecord(context.Background(), store, io.Discard, "contact/"+uuid.Nil.String()); err == nil {
		t.Error("dumpRecord of absent key: want error, got nil")
	}
}

func TestTimelineActionMapping(t *testing.T) {
	plainName := func(id uuid.UUID) string { return "someone" }

	receipt := backend.Envelope{
		Sender:    inspectAliceID,
		Timestamp: 100,
		Content: backend.Content{
			Receipt: &backend.Receipt{Timestamps: []backend.Timestamp{50}},
		},
	}
	if _, ok := timelineAction(receipt, plainName); ok {
		t.Error("receipt envelope: want no action")
	}

	edit := backend.Envelope{
		Sender:    inspectAliceID,
		Timestamp: 200,
		Content: backend.Content{
			EditMessage: &backend.EditMessage{
				TargetSentTimestamp: 100,
				DataMessage:         &backend.DataMessage{Body: text("fixed")},
			},
			// An edit envelope still carries a data message shell in
			// some client versions; the edit arm must win.
			DataMessage: &backend.DataMessage{Body: text("shadow")},
		},
	}
	action, ok := timelineAction(edit, plainName)
	if !ok {
		t.Fatal("edit envelope: want action")
	}
	replace, ok := action.(chat.Replace)
	if !ok {
		t.Fatalf("edit envelope: got %T, want chat.Replace", action)
	}
	if replace.OldSentAt != 100 || replace.Message.Body != "fixed" {
		t.Errorf("replace = %+v, want target 100 body %q", replace, "fixed")
	}

	transcriptDelete := backend.Envelope{
		Sender:    inspectSelfID,
		Timestamp: 300,
		Content: backend.Content{
			SyncMessage: &backend.SyncMessage{Sent: &backend.Sent{
				Timestamp: 300,
				Message: &backend.DataMessage{
					Delete: &backend.Delete{TargetSentTimestamp: 250},
				},
			}},
		},
	}
	action, ok = timelineAction(transcriptDelete, plainName)
	if !ok {
		t.Fatal("transcript delete: want action")
	}
	if del, ok := action.(chat.Delete); !ok || del.SentAt != 250 {
		t.Errorf("transcript delete = %#v, want chat.Delete{SentAt: 250}", action)
	}
}
