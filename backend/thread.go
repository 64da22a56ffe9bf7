// Copyright 2026 The Klaxon Authors
// SPDX-License-Identifier: Apache-2.0

package backend

import (
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Timestamp is a point in time expressed as milliseconds since the Unix
// epoch. Message timestamps double as per-thread identity: within one
// thread the sent timestamp is the key that edits and deletes target.
type Timestamp int64

// TimestampFromTime converts a time.Time to a Timestamp, truncating to
// millisecond precision.
func TimestampFromTime(t time.Time) Timestamp {
	return Timestamp(t.UnixMilli())
}

// Time converts the timestamp back to a time.Time in UTC.
func (t Timestamp) Time() time.Time {
	return time.UnixMilli(int64(t)).UTC()
}

func (t Timestamp) String() string {
	return strconv.FormatInt(int64(t), 10)
}

// ProfileKey is the per-contact key material required to fetch a contact's
// profile and avatar from the backend. Without it a contact cannot be
// resolved into a displayable identity.
type ProfileKey [32]byte

// ProfileKeyFromBytes copies b into a ProfileKey. It returns an error when
// b is not exactly 32 bytes.
func ProfileKeyFromBytes(b []byte) (ProfileKey, error) {
	var k ProfileKey
	if len(b) != len(k) {
		return ProfileKey{}, fmt.Errorf("backend: profile key must be %d bytes, got %d", len(k), len(b))
	}
	copy(k[:], b)
	return k, nil
}

// IsZero reports whether the key is all zero bytes (absent).
func (k ProfileKey) IsZero() bool {
	return k == ProfileKey{}
}

// GroupKey is the 32-byte master key that identifies a group. All group
// state (title, members, revision, avatar) is addressed by it.
type GroupKey [32]byte

// GroupKeyFromBytes copies b into a GroupKey. It returns an error when b is
// not exactly 32 bytes.
func GroupKeyFromBytes(b []byte) (GroupKey, error) {
	var k GroupKey
	if len(b) != len(k) {
		return GroupKey{}, fmt.Errorf("backend: group key must be %d bytes, got %d", len(k), len(b))
	}
	copy(k[:], b)
	return k, nil
}

// String returns the key as lowercase hex.
func (k GroupKey) String() string {
	return hex.EncodeToString(k[:])
}

// ParseGroupKey parses the lowercase-hex form produced by String.
func ParseGroupKey(s string) (GroupKey, error) {
	b, err := hex.DecodeString(s)
	if err != nil {
		return GroupKey{}, fmt.Errorf("backend: invalid group key %q: %w", s, err)
	}
	return GroupKeyFromBytes(b)
}

type threadKind uint8

const (
	threadContact threadKind = iota + 1
	threadGroup
)

// Thread identifies a conversation: either a direct thread with a single
// contact or a group thread. Thread is comparable and is used as the cache
// and store key for all per-conversation state.
//
// The zero Thread is invalid; construct values with ContactThread or
// GroupThread.
type Thread struct {
	kind    threadKind
	contact uuid.UUID
	group   GroupKey
}

// ContactThread returns the direct thread with the given contact.
func ContactThread(id uuid.UUID) Thread {
	return Thread{kind: threadContact, contact: id}
}

// GroupThread returns the thread for the given group.
func GroupThread(key GroupKey) Thread {
	return Thread{kind: threadGroup, group: key}
}

// IsZero reports whether t is the invalid zero Thread.
func (t Thread) IsZero() bool {
	return t.kind == 0
}

// IsGroup reports whether t identifies a group thread.
func (t Thread) IsGroup() bool {
	return t.kind == threadGroup
}

// Contact returns the contact ID for a direct thread. ok is false for
// group threads and the zero Thread.
func (t Thread) Contact() (id uuid.UUID, ok bool) {
	return t.contact, t.kind == threadContact
}

// Group returns the group key for a group thread. ok is false for direct
// threads and the zero Thread.
func (t Thread) Group() (key GroupKey, ok bool) {
	return t.group, t.kind == threadGroup
}

// String returns "contact:<uuid>" or "group:<hex key>". The form is stable
// and is used both for log output and as the store key prefix for the
// thread's message log.
func (t Thread) String() string {
	switch t.kind {
	case threadContact:
		return "contact:" + t.contact.String()
	case threadGroup:
		return "group:" + t.group.String()
	default:
		return "invalid"
	}
}

// ParseThread parses the form produced by String.
func ParseThread(s string) (Thread, error) {
	tag, rest, ok := strings.Cut(s, ":")
	if !ok {
		return Thread{}, fmt.Errorf("backend: invalid thread %q", s)
	}
	switch tag {
	case "contact":
		id, err := uuid.Parse(rest)
		if err != nil {
			return Thread{}, fmt.Errorf("backend: invalid thread %q: %w", s, err)
		}
		return ContactThread(id), nil
	case "group":
		key, err := ParseGroupKey(rest)
		if err != nil {
			return Thread{}, fmt.Errorf("backend: invalid thread %q: %w", s, err)
		}
		return GroupThread(key), nil
	default:
		return Thread{}, fmt.Errorf("backend: invalid thread %q", s)
	}
}

// MarshalText implements encoding.TextMarshaler so Thread can serve as a
// CBOR map key and appear in log attributes.
func (t Thread) MarshalText() ([]byte, error) {
	if t.IsZero() {
		return nil, fmt.Errorf("backend: cannot marshal zero thread")
	}
	return []byte(t.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (t *Thread) UnmarshalText(text []byte) error {
	parsed, err := ParseThread(string(text))
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}
