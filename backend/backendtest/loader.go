// Copyright 2026 The Klaxon Authors
// SPDX-License-Identifier: Apache-2.0

package backendtest

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/klaxon-im/klaxon/backend"
)

// Loader is an in-memory backend.Loader. Sessions are keyed by location;
// opening the same location twice yields the same session, as with a
// real on-disk state directory.
type Loader struct {
	mu       sync.Mutex
	sessions map[string]*Session
	openErr  error
}

// NewLoader returns an empty loader.
func NewLoader() *Loader {
	return &Loader{sessions: make(map[string]*Session)}
}

var _ backend.Loader = (*Loader)(nil)

// SetOpenError forces subsequent Open calls to fail with err.
func (l *Loader) SetOpenError(err error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.openErr = err
}

// Session returns the session at location, creating it if needed. Use
// this in test setup to seed state before the code under test opens the
// same location.
func (l *Loader) Session(location string) *Session {
	l.mu.Lock()
	defer l.mu.Unlock()
	sess, ok := l.sessions[location]
	if !ok {
		sess = NewSession()
		l.sessions[location] = sess
	}
	return sess
}

func (l *Loader) Open(_ context.Context, location string) (backend.Session, error) {
	l.mu.Lock()
	if err := l.openErr; err != nil {
		l.mu.Unlock()
		return nil, err
	}
	l.mu.Unlock()
	return l.Session(location), nil
}

// Session is an in-memory backend.Session. A fresh session is unlinked:
// LoadRegistered fails until either Register seeds a registration or
// LinkSecondaryDevice completes.
type Session struct {
	mu       sync.Mutex
	store    *Store
	identity backend.WhoAmI
	handle   *Handle
	linkURL  string
	linkErr  error
	loadErr  error
}

// NewSession returns an unlinked session with an empty store.
func NewSession() *Session {
	s := &Session{store: NewStore(), linkURL: "sgnl://linkdevice?uuid=test"}
	return s
}

var _ backend.Session = (*Session)(nil)

// TestStore returns the concrete store for seeding.
func (s *Session) TestStore() *Store {
	return s.store
}

// Register marks the session as registered with the given identity, as
// if a previous run had linked. The returned handle accepts seeding and
// traffic injection.
func (s *Session) Register(identity backend.WhoAmI) *Handle {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.identity = identity
	s.handle = NewHandle(s.store, identity)
	s.store.SetRegistration(backend.Registration{ACI: identity.ACI, PNI: identity.PNI})
	return s.handle
}

// SetIdentity sets the identity an eventual LinkSecondaryDevice will
// register, without registering yet.
func (s *Session) SetIdentity(identity backend.WhoAmI) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.identity = identity
}

// SetLinkURL overrides the provisioning URL delivered during linking.
func (s *Session) SetLinkURL(url string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.linkURL = url
}

// SetLinkError forces LinkSecondaryDevice to fail after delivering the
// provisioning URL, as when the primary device rejects the link.
func (s *Session) SetLinkError(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.linkErr = err
}

// SetLoadError forces LoadRegistered to fail with err even when a
// registration exists.
func (s *Session) SetLoadError(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.loadErr = err
}

// Handle returns the live handle, or nil before registration.
func (s *Session) Handle() *Handle {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.handle
}

func (s *Session) Store() backend.Store {
	return s.store
}

func (s *Session) LoadRegistered(context.Context) (backend.Handle, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.loadErr != nil {
		return nil, s.loadErr
	}
	if s.handle == nil {
		return nil, errors.New("backendtest: session has no registration")
	}
	return s.handle, nil
}

func (s *Session) LinkSecondaryDevice(ctx context.Context, server backend.Server, deviceName string, urls chan<- string) (backend.Handle, error) {
	s.mu.Lock()
	url := s.linkURL
	s.mu.Unlock()

	select {
	case urls <- url:
	case <-ctx.Done():
		return nil, fmt.Errorf("backendtest: link cancelled: %w", ctx.Err())
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.linkErr != nil {
		return nil, s.linkErr
	}
	s.handle = NewHandle(s.store, s.identity)
	s.store.SetRegistration(backend.Registration{
		ACI:        s.identity.ACI,
		PNI:        s.identity.PNI,
		DeviceName: deviceName,
		Server:     server,
	})
	return s.handle, nil
}
