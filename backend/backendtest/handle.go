// Copyright 2026 The Klaxon Authors
// SPDX-License-Identifier: Apache-2.0

package backendtest

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/klaxon-im/klaxon/backend"
)

// receiveBuffer sizes the injected traffic queue. Tests inject well
// below this; Deliver never blocks in practice.
const receiveBuffer = 256

// profileEntry is the service-side profile state for one account.
type profileEntry struct {
	key     backend.ProfileKey
	profile backend.Profile
	avatar  []byte
	fetches int
}

// Handle is an in-memory backend.Handle. Tests seed profiles and group
// avatars, inject receive traffic, and inspect recorded sends. All
// methods are safe for concurrent use.
type Handle struct {
	mu            sync.Mutex
	store         *Store
	identity      backend.WhoAmI
	whoAmIFails   int
	profiles      map[uuid.UUID]*profileEntry
	groupAvatars  map[backend.GroupKey][]byte
	groupFetches  map[backend.GroupKey]int
	received      chan backend.Received
	sent          []SentRecord
	sendErr       error
	syncRequests  int
	receiveErrors int
}

// SentRecord captures one transmitted message. Exactly one of To and
// Group is set.
type SentRecord struct {
	To        *uuid.UUID
	Group     *backend.GroupKey
	Content   backend.Content
	Timestamp backend.Timestamp
}

// NewHandle returns a handle over the given store reporting the given
// identity.
func NewHandle(store *Store, identity backend.WhoAmI) *Handle {
	return &Handle{
		store:        store,
		identity:     identity,
		profiles:     make(map[uuid.UUID]*profileEntry),
		groupAvatars: make(map[backend.GroupKey][]byte),
		groupFetches: make(map[backend.GroupKey]int),
		received:     make(chan backend.Received, receiveBuffer),
	}
}

var _ backend.Handle = (*Handle)(nil)

// SetProfile seeds the service-side profile for an account. Fetches must
// present the matching profile key or they fail, as with the real
// service.
func (h *Handle) SetProfile(id uuid.UUID, key backend.ProfileKey, profile backend.Profile, avatar []byte) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.profiles[id] = &profileEntry{key: key, profile: profile, avatar: avatar}
}

// SetGroupAvatar seeds a group's avatar bytes.
func (h *Handle) SetGroupAvatar(key backend.GroupKey, avatar []byte) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.groupAvatars[key] = avatar
}

// FailWhoAmI makes the next n WhoAmI calls fail, for exercising the
// caller's retry path.
func (h *Handle) FailWhoAmI(n int) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.whoAmIFails = n
}

// FailReceive makes the next n ReceiveMessages calls fail.
func (h *Handle) FailReceive(n int) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.receiveErrors = n
}

// SetSendError forces subsequent sends to fail with err. Pass nil to
// restore success.
func (h *Handle) SetSendError(err error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.sendErr = err
}

// Deliver injects an envelope on the receive stream, persisting it to
// the store first when its thread is derivable, as the real backend does
// for queued and live traffic.
func (h *Handle) Deliver(env backend.Envelope) {
	if thread, ok := threadOf(env); ok {
		// Store writes in this fake cannot fail.
		_ = h.store.SaveMessage(context.Background(), thread, env)
	}
	h.received <- backend.Received{Kind: backend.ReceivedContent, Envelope: &env}
}

// DeliverQueueEmpty injects the queue-drained marker.
func (h *Handle) DeliverQueueEmpty() {
	h.received <- backend.Received{Kind: backend.ReceivedQueueEmpty}
}

// DeliverContacts injects the contact-sync-complete marker.
func (h *Handle) DeliverContacts() {
	h.received <- backend.Received{Kind: backend.ReceivedContacts}
}

// Sent returns a copy of all transmitted messages in order.
func (h *Handle) Sent() []SentRecord {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]SentRecord, len(h.sent))
	copy(out, h.sent)
	return out
}

// ProfileFetches reports how many times the profile for id was fetched.
func (h *Handle) ProfileFetches(id uuid.UUID) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	if entry, ok := h.profiles[id]; ok {
		return entry.fetches
	}
	return 0
}

// GroupAvatarFetches reports how many times the group avatar was fetched.
func (h *Handle) GroupAvatarFetches(key backend.GroupKey) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.groupFetches[key]
}

// SyncRequests reports how many contact syncs were requested.
func (h *Handle) SyncRequests() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.syncRequests
}

func (h *Handle) WhoAmI(context.Context) (backend.WhoAmI, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.whoAmIFails > 0 {
		h.whoAmIFails--
		return backend.WhoAmI{}, errors.New("backendtest: whoami unavailable")
	}
	return h.identity, nil
}

func (h *Handle) ReceiveMessages(ctx context.Context) (<-chan backend.Received, error) {
	h.mu.Lock()
	if h.receiveErrors > 0 {
		h.receiveErrors--
		h.mu.Unlock()
		return nil, errors.New("backendtest: receive stream unavailable")
	}
	h.mu.Unlock()

	out := make(chan backend.Received)
	go func() {
		defer close(out)
		for {
			select {
			case <-ctx.Done():
				return
			case item := <-h.received:
				select {
				case out <- item:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out, nil
}

func (h *Handle) SendMessage(_ context.Context, to uuid.UUID, content backend.Content, ts backend.Timestamp) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.sendErr != nil {
		return h.sendErr
	}
	recipient := to
	h.sent = append(h.sent, SentRecord{To: &recipient, Content: content, Timestamp: ts})
	return nil
}

func (h *Handle) SendGroupMessage(_ context.Context, key backend.GroupKey, content backend.Content, ts backend.Timestamp) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.sendErr != nil {
		return h.sendErr
	}
	group := key
	h.sent = append(h.sent, SentRecord{Group: &group, Content: content, Timestamp: ts})
	return nil
}

func (h *Handle) RetrieveProfile(_ context.Context, id uuid.UUID, key backend.ProfileKey) (backend.Profile, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	entry, ok := h.profiles[id]
	if !ok {
		return backend.Profile{}, fmt.Errorf("backendtest: no profile for %s", id)
	}
	if entry.key != key {
		return backend.Profile{}, fmt.Errorf("backendtest: wrong profile key for %s", id)
	}
	entry.fetches++
	return entry.profile, nil
}

func (h *Handle) RetrieveProfileAvatar(_ context.Context, id uuid.UUID, key backend.ProfileKey) ([]byte, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	entry, ok := h.profiles[id]
	if !ok {
		return nil, fmt.Errorf("backendtest: no profile for %s", id)
	}
	if entry.key != key {
		return nil, fmt.Errorf("backendtest: wrong profile key for %s", id)
	}
	return entry.avatar, nil
}

func (h *Handle) RetrieveGroupAvatar(_ context.Context, gctx backend.GroupContext) ([]byte, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.groupFetches[gctx.MasterKey]++
	return h.groupAvatars[gctx.MasterKey], nil
}

func (h *Handle) RequestContactSync(context.Context) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.syncRequests++
	return nil
}

// threadOf derives the thread an envelope belongs to, mirroring how the
// real backend files traffic: group context wins, then the sender for
// received messages, then the declared destination for sent transcripts.
func threadOf(env backend.Envelope) (backend.Thread, bool) {
	content := env.Content
	switch {
	case content.DataMessage != nil:
		if g := content.DataMessage.GroupContext; g != nil {
			return backend.GroupThread(g.MasterKey), true
		}
		return backend.ContactThread(env.Sender), true
	case content.EditMessage != nil && content.EditMessage.DataMessage != nil:
		if g := content.EditMessage.DataMessage.GroupContext; g != nil {
			return backend.GroupThread(g.MasterKey), true
		}
		return backend.ContactThread(env.Sender), true
	case content.SyncMessage != nil && content.SyncMessage.Sent != nil:
		sent := content.SyncMessage.Sent
		dm := sent.Message
		if dm == nil && sent.EditMessage != nil {
			dm = sent.EditMessage.DataMessage
		}
		if dm != nil && dm.GroupContext != nil {
			return backend.GroupThread(dm.GroupContext.MasterKey), true
		}
		if sent.Destination != nil {
			return backend.ContactThread(*sent.Destination), true
		}
	}
	return backend.Thread{}, false
}
