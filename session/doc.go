// Copyright 2026 The Klaxon Authors
// SPDX-License-Identifier: Apache-2.0

// Package session runs the account engine: one goroutine per account
// that owns the live backend handle and the chat resolution cache, and
// serializes all work through a bounded command queue.
//
// A Session value is a cloneable handle to that goroutine. Commands
// (LoadSession, LinkDevice, StreamEvents, SendMessage, EditMessage)
// enqueue work and wait for a reply; the loop itself never performs
// backend I/O — each command's work runs as its own goroutine sharing
// the cache. When the last clone of a Session is closed the loop shuts
// down; in-flight work is cut off by context cancellation.
//
// StreamEvents drives synchronization: cache warm-up from stored
// contacts and groups, a concurrent replay of all persisted history,
// then the live receive stream. Consumers fold the resulting Event
// stream into per-chat timelines (chat.Timeline is the reference
// reduction); events are not ordered across concurrent decodes, so
// consumers key strictly by message timestamp.
package session
