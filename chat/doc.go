// Copyright 2026 The Klaxon Authors
// SPDX-License-Identifier: Apache-2.0

// Package chat holds the resolved conversation model the session engine
// produces for its consumer: contacts and groups with display state
// attached, decoded messages, and the Action stream that drives a
// timeline.
//
// Values in this package are snapshots. A Contact or Group captured in a
// message never mutates when the underlying profile or group state
// changes; the session re-resolves and emits fresh values instead.
package chat
