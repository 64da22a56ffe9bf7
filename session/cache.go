// Copyright 2026 The Klaxon Authors
// SPDX-License-Identifier: Apache-2.0

package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"

	"github.com/klaxon-im/klaxon/backend"
	"github.com/klaxon-im/klaxon/chat"
)

// cache resolves threads to chats, fetching profiles and avatars from
// the backend on first reference. Contacts are cached for the session
// lifetime without invalidation (profile changes surface only across
// restarts); groups are cached per revision and fully re-resolved when
// an envelope cites a newer one. Nothing is ever evicted.
//
// Concurrent resolutions of the same thread are collapsed into one
// backend fetch via singleflight, keyed by thread.
type cache struct {
	store  backend.Store
	handle *handleCell
	self   *atomic.Pointer[backend.WhoAmI]
	log    *slog.Logger

	mu      sync.Mutex
	entries map[backend.Thread]chat.Chat
	flight  singleflight.Group
}

func newCache(store backend.Store, handle *handleCell, self *atomic.Pointer[backend.WhoAmI], log *slog.Logger) *cache {
	return &cache{
		store:   store,
		handle:  handle,
		self:    self,
		log:     log,
		entries: make(map[backend.Thread]chat.Chat),
	}
}

// contact returns the cached contact for id without resolving. Message
// sender and quote author lookups are cache-only: a sender outside the
// cache fails the message rather than triggering a fetch storm.
func (c *cache) contact(id uuid.UUID) (chat.Contact, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	entry, ok := c.entries[backend.ContactThread(id)]
	if !ok {
		return chat.Contact{}, false
	}
	contact, ok := entry.(chat.Contact)
	return contact, ok
}

// resolveContact returns the chat for a contact, fetching profile and
// avatar on first reference. The profile key requirement is hard: with
// no key in hand (from the envelope or the stored contact record) and
// no cached entry, the contact cannot be resolved.
func (c *cache) resolveContact(ctx context.Context, id uuid.UUID, key *backend.ProfileKey) (chat.Contact, bool) {
	thread := backend.ContactThread(id)
	c.mu.Lock()
	if entry, ok := c.entries[thread]; ok {
		c.mu.Unlock()
		contact, ok := entry.(chat.Contact)
		return contact, ok
	}
	c.mu.Unlock()

	value, err, _ := c.flight.Do(thread.String(), func() (any, error) {
		// A sibling flight may have landed between the miss and here.
		c.mu.Lock()
		entry, ok := c.entries[thread]
		c.mu.Unlock()
		if ok {
			return entry, nil
		}
		return c.fetchContact(ctx, id, key)
	})
	if err != nil {
		c.log.Debug("contact resolution failed", "contact", id.String(), "error", err)
		return chat.Contact{}, false
	}
	contact, ok := value.(chat.Contact)
	return contact, ok
}

func (c *cache) fetchContact(ctx context.Context, id uuid.UUID, key *backend.ProfileKey) (chat.Contact, error) {
	profileKey, err := c.profileKeyFor(ctx, id, key)
	if err != nil {
		return chat.Contact{}, err
	}
	h, ok := c.handle.get()
	if !ok {
		return chat.Contact{}, errNoHandle
	}
	profile, err := h.RetrieveProfile(ctx, id, profileKey)
	if err != nil {
		return chat.Contact{}, fmt.Errorf("fetch profile: %w", err)
	}
	if profile.Name == nil {
		return chat.Contact{}, errors.New("profile has no name")
	}
	avatar, err := h.RetrieveProfileAvatar(ctx, id, profileKey)
	if err != nil {
		return chat.Contact{}, fmt.Errorf("fetch avatar: %w", err)
	}
	self := c.self.Load()
	contact := chat.Contact{
		ID:         id,
		ProfileKey: profileKey,
		Name:       *profile.Name,
		Avatar:     avatar,
		IsSelf:     self != nil && self.ACI == id,
	}
	c.mu.Lock()
	c.entries[backend.ContactThread(id)] = contact
	c.mu.Unlock()
	return contact, nil
}

// profileKeyFor picks the key for a fetch: the caller's key (from an
// envelope or group member record) wins, then the stored contact
// record's key.
func (c *cache) profileKeyFor(ctx context.Context, id uuid.UUID, key *backend.ProfileKey) (backend.ProfileKey, error) {
	if key != nil && !key.IsZero() {
		return *key, nil
	}
	rec, err := c.store.Contact(ctx, id)
	if err == nil && !rec.ProfileKey.IsZero() {
		return rec.ProfileKey, nil
	}
	return backend.ProfileKey{}, errors.New("no profile key available")
}

// resolveGroup returns the chat for a group. A cached entry is valid
// only while its revision matches the cited one; otherwise the group is
// rebuilt from the stored record — every member resolved, avatar
// re-fetched — and the entry replaced wholesale. A single member
// failure aborts the refresh and leaves the cache unchanged.
func (c *cache) resolveGroup(ctx context.Context, gctx backend.GroupContext) (chat.Group, bool) {
	thread := backend.GroupThread(gctx.MasterKey)
	c.mu.Lock()
	entry, ok := c.entries[thread]
	c.mu.Unlock()
	if ok {
		if group, ok := entry.(chat.Group); ok && group.Revision == gctx.Revision {
			return group, true
		}
	}

	value, err, _ := c.flight.Do(thread.String(), func() (any, error) {
		c.mu.Lock()
		entry, ok := c.entries[thread]
		c.mu.Unlock()
		if ok {
			if group, ok := entry.(chat.Group); ok && group.Revision == gctx.Revision {
				return group, nil
			}
		}
		return c.fetchGroup(ctx, gctx)
	})
	if err != nil {
		c.log.Debug("group resolution failed",
			"group", gctx.MasterKey.String(), "revision", gctx.Revision, "error", err)
		return chat.Group{}, false
	}
	group, ok := value.(chat.Group)
	return group, ok
}

func (c *cache) fetchGroup(ctx context.Context, gctx backend.GroupContext) (chat.Group, error) {
	rec, err := c.store.Group(ctx, gctx.MasterKey)
	if err != nil {
		return chat.Group{}, fmt.Errorf("stored group: %w", err)
	}
	h, ok := c.handle.get()
	if !ok {
		return chat.Group{}, errNoHandle
	}
	members := make([]chat.Contact, 0, len(rec.Members))
	for _, member := range rec.Members {
		key := member.ProfileKey
		contact, ok := c.resolveContact(ctx, member.ID, &key)
		if !ok {
			return chat.Group{}, fmt.Errorf("member %s unresolvable", member.ID)
		}
		members = append(members, contact)
	}
	avatar, err := h.RetrieveGroupAvatar(ctx, gctx)
	if err != nil {
		return chat.Group{}, fmt.Errorf("fetch group avatar: %w", err)
	}
	group := chat.Group{
		Key:      rec.Key,
		Revision: rec.Revision,
		Title:    rec.Title,
		Avatar:   avatar,
		Members:  members,
	}
	c.mu.Lock()
	c.entries[backend.GroupThread(rec.Key)] = group
	c.mu.Unlock()
	return group, nil
}
