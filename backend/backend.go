// Copyright 2026 The Klaxon Authors
// SPDX-License-Identifier: Apache-2.0

package backend

import (
	"context"
	"errors"

	"github.com/google/uuid"
)

// Server selects the service environment a device registers against.
type Server string

// Known service environments.
const (
	ProductionServer Server = "production"
	StagingServer    Server = "staging"
)

// ErrNotFound is returned by Store point reads when no record exists for
// the requested key.
var ErrNotFound = errors.New("backend: not found")

// Loader opens backend sessions from durable state at a filesystem
// location. Implementations decide what lives there (the protocol
// database, registration state, message log).
type Loader interface {
	// Open loads or initializes the durable state at location and
	// returns the session wrapping it. Open does not touch the network.
	Open(ctx context.Context, location string) (Session, error)
}

// Session is an opened account state: the durable store plus the two ways
// of obtaining a live protocol handle. A session without a registration
// can only link; a registered one loads directly.
type Session interface {
	// Store returns the durable store backing this session. The store
	// remains valid for the lifetime of the session.
	Store() Store

	// LoadRegistered connects the already-registered device and returns
	// a live handle. It fails when the session has no registration.
	LoadRegistered(ctx context.Context) (Handle, error)

	// LinkSecondaryDevice provisions this session as a new secondary
	// device on an existing account. The one-time provisioning URL is
	// sent on urls exactly once when available; the caller renders it
	// (QR or text) for the primary device to scan. LinkSecondaryDevice
	// blocks until linking completes or ctx is cancelled, then returns
	// the live handle.
	LinkSecondaryDevice(ctx context.Context, server Server, deviceName string, urls chan<- string) (Handle, error)
}

// Handle is a live connection to the messaging service. All methods are
// safe for concurrent use. Methods that hit the network respect ctx
// cancellation; transient failures shortly after connecting are expected
// and callers retry with lib/retry.
type Handle interface {
	// WhoAmI reports the account identity this handle is registered to.
	WhoAmI(ctx context.Context) (WhoAmI, error)

	// ReceiveMessages opens the receive stream. The backend first drains
	// its queue of messages received while offline (persisting each to
	// the store), emits a ReceivedQueueEmpty marker, then delivers live
	// traffic. The channel closes when ctx is cancelled or the
	// connection is lost.
	ReceiveMessages(ctx context.Context) (<-chan Received, error)

	// SendMessage transmits content to a single contact at the given
	// sent timestamp.
	SendMessage(ctx context.Context, to uuid.UUID, content Content, timestamp Timestamp) error

	// SendGroupMessage transmits content to every current member of the
	// group at the given sent timestamp.
	SendGroupMessage(ctx context.Context, key GroupKey, content Content, timestamp Timestamp) error

	// RetrieveProfile fetches a contact's profile using its profile key.
	RetrieveProfile(ctx context.Context, id uuid.UUID, key ProfileKey) (Profile, error)

	// RetrieveProfileAvatar fetches a contact's avatar image bytes. A
	// nil slice with a nil error means the contact has no avatar.
	RetrieveProfileAvatar(ctx context.Context, id uuid.UUID, key ProfileKey) ([]byte, error)

	// RetrieveGroupAvatar fetches a group's avatar image bytes. A nil
	// slice with a nil error means the group has no avatar.
	RetrieveGroupAvatar(ctx context.Context, gctx GroupContext) ([]byte, error)

	// RequestContactSync asks the primary device to send a fresh contact
	// list. Completion is signalled later by a ReceivedContacts marker
	// on the receive stream.
	RequestContactSync(ctx context.Context) error
}

// Store is the durable state the session engine reads and (for its own
// outgoing messages) writes. The backend implementation owns all other
// writes: it records contacts and groups during sync and persists every
// received envelope so the message log survives restarts.
//
// Point reads return ErrNotFound when no record exists.
type Store interface {
	// Contacts lists all stored contact records.
	Contacts(ctx context.Context) ([]ContactRecord, error)

	// Contact reads one contact record by account ID.
	Contact(ctx context.Context, id uuid.UUID) (ContactRecord, error)

	// Groups lists all stored group records.
	Groups(ctx context.Context) ([]GroupRecord, error)

	// Group reads one group record by master key.
	Group(ctx context.Context, key GroupKey) (GroupRecord, error)

	// Profile reads the cached profile for a contact.
	Profile(ctx context.Context, id uuid.UUID) (Profile, error)

	// Messages returns the thread's persisted envelopes in ascending
	// timestamp order.
	Messages(ctx context.Context, thread Thread) ([]Envelope, error)

	// SaveMessage persists an envelope into the thread's message log,
	// keyed by the envelope timestamp. Saving an existing timestamp
	// overwrites the record.
	SaveMessage(ctx context.Context, thread Thread, env Envelope) error

	// DeleteMessage removes the persisted envelope with the given
	// timestamp from the thread's log. It reports whether a record
	// existed; deleting an absent timestamp is not an error.
	DeleteMessage(ctx context.Context, thread Thread, ts Timestamp) (bool, error)

	// Registration reads the device registration record.
	Registration(ctx context.Context) (Registration, error)
}
