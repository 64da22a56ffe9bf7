// Copyright 2026 The Klaxon Authors
// SPDX-License-Identifier: Apache-2.0

// Package backendtest provides an in-memory backend for tests: a Loader,
// Session, Handle, and Store that implement the backend interfaces
// without network or disk.
//
// Tests seed state through the exported setters (Store.PutContact,
// Handle.SetProfile, ...) and drive the receive stream by injecting
// traffic with Handle.Deliver and the marker methods. Transmitted
// messages are recorded for assertions rather than delivered anywhere.
package backendtest
