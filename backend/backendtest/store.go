// Copyright 2026 The Klaxon Authors
// SPDX-License-Identifier: Apache-2.0

package backendtest

import (
	"cmp"
	"context"
	"slices"
	"sync"

	"github.com/google/uuid"

	"github.com/klaxon-im/klaxon/backend"
)

// Store is an in-memory backend.Store. All methods are safe for
// concurrent use. The zero value is not usable; construct with NewStore.
type Store struct {
	mu           sync.Mutex
	contacts     map[uuid.UUID]backend.ContactRecord
	groups       map[backend.GroupKey]backend.GroupRecord
	profiles     map[uuid.UUID]backend.Profile
	messages     map[backend.Thread]map[backend.Timestamp]backend.Envelope
	registration *backend.Registration
}

// NewStore returns an empty store.
func NewStore() *Store {
	return &Store{
		contacts: make(map[uuid.UUID]backend.ContactRecord),
		groups:   make(map[backend.GroupKey]backend.GroupRecord),
		profiles: make(map[uuid.UUID]backend.Profile),
		messages: make(map[backend.Thread]map[backend.Timestamp]backend.Envelope),
	}
}

var _ backend.Store = (*Store)(nil)

// PutContact seeds or replaces a contact record.
func (s *Store) PutContact(rec backend.ContactRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.contacts[rec.ID] = rec
}

// PutGroup seeds or replaces a group record.
func (s *Store) PutGroup(rec backend.GroupRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.groups[rec.Key] = rec
}

// PutProfile seeds or replaces a cached profile.
func (s *Store) PutProfile(id uuid.UUID, p backend.Profile) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.profiles[id] = p
}

// SetRegistration seeds the registration record.
func (s *Store) SetRegistration(reg backend.Registration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.registration = &reg
}

func (s *Store) Contacts(context.Context) ([]backend.ContactRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]backend.ContactRecord, 0, len(s.contacts))
	for _, rec := range s.contacts {
		out = append(out, rec)
	}
	slices.SortFunc(out, func(a, b backend.ContactRecord) int {
		return cmp.Compare(a.ID.String(), b.ID.String())
	})
	return out, nil
}

func (s *Store) Contact(_ context.Context, id uuid.UUID) (backend.ContactRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.contacts[id]
	if !ok {
		return backend.ContactRecord{}, backend.ErrNotFound
	}
	return rec, nil
}

func (s *Store) Groups(context.Context) ([]backend.GroupRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]backend.GroupRecord, 0, len(s.groups))
	for _, rec := range s.groups {
		out = append(out, rec)
	}
	slices.SortFunc(out, func(a, b backend.GroupRecord) int {
		return cmp.Compare(a.Key.String(), b.Key.String())
	})
	return out, nil
}

func (s *Store) Group(_ context.Context, key backend.GroupKey) (backend.GroupRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.groups[key]
	if !ok {
		return backend.GroupRecord{}, backend.ErrNotFound
	}
	return rec, nil
}

func (s *Store) Profile(_ context.Context, id uuid.UUID) (backend.Profile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.profiles[id]
	if !ok {
		return backend.Profile{}, backend.ErrNotFound
	}
	return p, nil
}

func (s *Store) Messages(_ context.Context, thread backend.Thread) ([]backend.Envelope, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	byTS := s.messages[thread]
	out := make([]backend.Envelope, 0, len(byTS))
	for _, env := range byTS {
		out = append(out, env)
	}
	slices.SortFunc(out, func(a, b backend.Envelope) int {
		return cmp.Compare(a.Timestamp, b.Timestamp)
	})
	return out, nil
}

func (s *Store) SaveMessage(_ context.Context, thread backend.Thread, env backend.Envelope) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	byTS := s.messages[thread]
	if byTS == nil {
		byTS = make(map[backend.Timestamp]backend.Envelope)
		s.messages[thread] = byTS
	}
	byTS[env.Timestamp] = env
	return nil
}

func (s *Store) DeleteMessage(_ context.Context, thread backend.Thread, ts backend.Timestamp) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	byTS := s.messages[thread]
	if _, ok := byTS[ts]; !ok {
		return false, nil
	}
	delete(byTS, ts)
	return true, nil
}

func (s *Store) Registration(context.Context) (backend.Registration, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.registration == nil {
		return backend.Registration{}, backend.ErrNotFound
	}
	return *s.registration, nil
}
