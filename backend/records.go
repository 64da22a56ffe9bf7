// Copyright 2026 The Klaxon Authors
// SPDX-License-Identifier: Apache-2.0

package backend

import "github.com/google/uuid"

// ContactRecord is the durable record of a known contact, written by the
// backend during contact sync. A contact whose profile key is zero cannot
// be resolved into a displayable identity until a key arrives.
type ContactRecord struct {
	ID         uuid.UUID  `cbor:"id"`
	Name       string     `cbor:"name,omitempty"`
	ProfileKey ProfileKey `cbor:"profile_key,omitempty"`
}

// GroupMember is one member of a stored group, carrying the profile key
// needed to resolve the member into a contact.
type GroupMember struct {
	ID         uuid.UUID  `cbor:"id"`
	ProfileKey ProfileKey `cbor:"profile_key,omitempty"`
}

// GroupRecord is the durable record of a group the account belongs to.
// Revision is the group state version; an envelope citing a newer revision
// than a cached resolution forces a full member refresh.
type GroupRecord struct {
	Key      GroupKey      `cbor:"key"`
	Title    string        `cbor:"title,omitempty"`
	Revision uint32        `cbor:"revision"`
	Members  []GroupMember `cbor:"members,omitempty"`
}

// Profile is the displayable profile fetched for a contact. Name is nil
// when the contact has not published one, which makes the contact
// unresolvable.
type Profile struct {
	Name  *string `cbor:"name,omitempty"`
	About *string `cbor:"about,omitempty"`
}

// WhoAmI identifies the local account as reported by the backend.
type WhoAmI struct {
	ACI uuid.UUID `cbor:"aci"`
	PNI uuid.UUID `cbor:"pni,omitempty"`
}

// Registration is the durable record of the local device registration,
// written when linking completes.
type Registration struct {
	ACI        uuid.UUID `cbor:"aci"`
	PNI        uuid.UUID `cbor:"pni,omitempty"`
	DeviceName string    `cbor:"device_name,omitempty"`
	Server     Server    `cbor:"server,omitempty"`
}
