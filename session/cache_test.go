// Copyright 2026 The Klaxon Authors
// SPDX-License-Identifier: Apache-2.0

package session

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/google/uuid"

	"github.com/klaxon-im/klaxon/backend"
	"github.com/klaxon-im/klaxon/backend/backendtest"
)

var (
	selfID  = uuid.MustParse("5f627f7f-d2f4-4e4b-ae9f-3a0a2b653319")
	aliceID = uuid.MustParse("11f41fc0-3c15-4bd9-8b1c-e5467b3d46ac")
	bobID   = uuid.MustParse("b0d5dad5-9bc9-4b13-87eb-137eba2f2136")
	carolID = uuid.MustParse("07139b6a-d25e-4aa5-b67a-dcdd48bdb271")
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testKey(b byte) backend.ProfileKey {
	var k backend.ProfileKey
	k[0] = b
	return k
}

func testGroupKey(b byte) backend.GroupKey {
	var k backend.GroupKey
	k[0] = b
	return k
}

func named(name string) backend.Profile {
	return backend.Profile{Name: &name}
}

// newCacheFixture builds a cache over a fake store and handle, with the
// account identity already established.
func newCacheFixture(t *testing.T) (*cache, *backendtest.Store, *backendtest.Handle) {
	t.Helper()
	store := backendtest.NewStore()
	handle := backendtest.NewHandle(store, backend.WhoAmI{ACI: selfID})
	cell := newHandleCell()
	cell.set(handle)
	self := &atomic.Pointer[backend.WhoAmI]{}
	self.Store(&backend.WhoAmI{ACI: selfID})
	return newCache(store, cell, self, discardLogger()), store, handle
}

func TestResolveContactFetchesOnce(t *testing.T) {
	c, _, handle := newCacheFixture(t)
	key := testKey(1)
	handle.SetProfile(aliceID, key, named("alice"), []byte("avatar-bytes"))

	first, ok := c.resolveContact(context.Background(), aliceID, &key)
	if !ok {
		t.Fatalf("first resolution failed")
	}
	if first.Name != "alice" || string(first.Avatar) != "avatar-bytes" || first.IsSelf {
		t.Fatalf("unexpected contact: %+v", first)
	}

	second, ok := c.resolveContact(context.Background(), aliceID, &key)
	if !ok {
		t.Fatalf("second resolution failed")
	}
	if second.Name != first.Name {
		t.Fatalf("cached contact differs: %+v", second)
	}
	if got := handle.ProfileFetches(aliceID); got != 1 {
		t.Fatalf("profile fetched %d times, want 1", got)
	}
}

func TestResolveContactConcurrentSingleFetch(t *testing.T) {
	c, _, handle := newCacheFixture(t)
	key := testKey(1)
	handle.SetProfile(aliceID, key, named("alice"), nil)

	var start, done sync.WaitGroup
	start.Add(1)
	for i := 0; i < 8; i++ {
		done.Add(1)
		go func() {
			defer done.Done()
			start.Wait()
			if _, ok := c.resolveContact(context.Background(), aliceID, &key); !ok {
				t.Errorf("concurrent resolution failed")
			}
		}()
	}
	start.Done()
	done.Wait()

	if got := handle.ProfileFetches(aliceID); got != 1 {
		t.Fatalf("profile fetched %d times under concurrency, want 1", got)
	}
}

func TestResolveContactRequiresProfileKey(t *testing.T) {
	c, store, handle := newCacheFixture(t)
	key := testKey(1)
	handle.SetProfile(aliceID, key, named("alice"), nil)

	// No key in hand, none stored: unresolvable.
	if _, ok := c.resolveContact(context.Background(), aliceID, nil); ok {
		t.Fatalf("resolved contact without any profile key")
	}
	var zero backend.ProfileKey
	if _, ok := c.resolveContact(context.Background(), aliceID, &zero); ok {
		t.Fatalf("resolved contact with zero profile key")
	}

	// A stored contact record supplies the key when the envelope lacks one.
	store.PutContact(backend.ContactRecord{ID: aliceID, ProfileKey: key})
	contact, ok := c.resolveContact(context.Background(), aliceID, nil)
	if !ok {
		t.Fatalf("stored profile key not used")
	}
	if contact.ProfileKey != key {
		t.Fatalf("contact carries key %v, want %v", contact.ProfileKey, key)
	}
}

func TestResolveContactWrongKeyFails(t *testing.T) {
	c, _, handle := newCacheFixture(t)
	handle.SetProfile(aliceID, testKey(1), named("alice"), nil)

	wrong := testKey(9)
	if _, ok := c.resolveContact(context.Background(), aliceID, &wrong); ok {
		t.Fatalf("resolution succeeded with the wrong profile key")
	}
}

func TestResolveContactNamelessProfileFails(t *testing.T) {
	c, _, handle := newCacheFixture(t)
	key := testKey(1)
	handle.SetProfile(aliceID, key, backend.Profile{}, nil)

	if _, ok := c.resolveContact(context.Background(), aliceID, &key); ok {
		t.Fatalf("resolved a contact whose profile has no name")
	}
}

func TestResolveContactSelfFlag(t *testing.T) {
	c, _, handle := newCacheFixture(t)
	selfKey, aliceKey := testKey(7), testKey(1)
	handle.SetProfile(selfID, selfKey, named("me"), nil)
	handle.SetProfile(aliceID, aliceKey, named("alice"), nil)

	self, ok := c.resolveContact(context.Background(), selfID, &selfKey)
	if !ok || !self.IsSelf {
		t.Fatalf("self contact not flagged: %+v, ok=%v", self, ok)
	}
	alice, ok := c.resolveContact(context.Background(), aliceID, &aliceKey)
	if !ok || alice.IsSelf {
		t.Fatalf("other contact flagged as self: %+v, ok=%v", alice, ok)
	}
}

// seedGroup stores a two-member group and the service-side state needed
// to resolve it.
func seedGroup(store *backendtest.Store, handle *backendtest.Handle, key backend.GroupKey, revision uint32) {
	handle.SetProfile(aliceID, testKey(1), named("alice"), nil)
	handle.SetProfile(bobID, testKey(2), named("bob"), nil)
	handle.SetGroupAvatar(key, []byte("group-avatar"))
	store.PutGroup(backend.GroupRecord{
		Key:      key,
		Title:    "climbing",
		Revision: revision,
		Members: []backend.GroupMember{
			{ID: aliceID, ProfileKey: testKey(1)},
			{ID: bobID, ProfileKey: testKey(2)},
		},
	})
}

func TestResolveGroupCachedPerRevision(t *testing.T) {
	c, store, handle := newCacheFixture(t)
	key := testGroupKey(0xaa)
	seedGroup(store, handle, key, 3)
	gctx := backend.GroupContext{MasterKey: key, Revision: 3}

	group, ok := c.resolveGroup(context.Background(), gctx)
	if !ok {
		t.Fatalf("group resolution failed")
	}
	if group.Title != "climbing" || group.Revision != 3 || len(group.Members) != 2 {
		t.Fatalf("unexpected group: %+v", group)
	}
	if string(group.Avatar) != "group-avatar" {
		t.Fatalf("avatar = %q", group.Avatar)
	}

	// Citing the cached revision again touches nothing.
	if _, ok := c.resolveGroup(context.Background(), gctx); !ok {
		t.Fatalf("cached resolution failed")
	}
	if got := handle.GroupAvatarFetches(key); got != 1 {
		t.Fatalf("group avatar fetched %d times, want 1", got)
	}
	if got := handle.ProfileFetches(aliceID); got != 1 {
		t.Fatalf("member profile fetched %d times, want 1", got)
	}
}

func TestResolveGroupRefreshOnNewRevision(t *testing.T) {
	c, store, handle := newCacheFixture(t)
	key := testGroupKey(0xaa)
	seedGroup(store, handle, key, 3)
	if _, ok := c.resolveGroup(context.Background(), backend.GroupContext{MasterKey: key, Revision: 3}); !ok {
		t.Fatalf("initial resolution failed")
	}

	// The backend records a new revision with a third member.
	handle.SetProfile(carolID, testKey(3), named("carol"), nil)
	store.PutGroup(backend.GroupRecord{
		Key:      key,
		Title:    "climbing (indoor)",
		Revision: 4,
		Members: []backend.GroupMember{
			{ID: aliceID, ProfileKey: testKey(1)},
			{ID: bobID, ProfileKey: testKey(2)},
			{ID: carolID, ProfileKey: testKey(3)},
		},
	})

	group, ok := c.resolveGroup(context.Background(), backend.GroupContext{MasterKey: key, Revision: 4})
	if !ok {
		t.Fatalf("refresh failed")
	}
	if group.Revision != 4 || group.Title != "climbing (indoor)" || len(group.Members) != 3 {
		t.Fatalf("stale group after refresh: %+v", group)
	}

	// The refresh re-fetched the avatar but reused cached member contacts.
	if got := handle.GroupAvatarFetches(key); got != 2 {
		t.Fatalf("group avatar fetched %d times, want 2", got)
	}
	if got := handle.ProfileFetches(aliceID); got != 1 {
		t.Fatalf("cached member re-fetched: %d fetches", got)
	}
	if got := handle.ProfileFetches(carolID); got != 1 {
		t.Fatalf("new member fetched %d times, want 1", got)
	}
}

func TestResolveGroupMemberFailureAborts(t *testing.T) {
	c, store, handle := newCacheFixture(t)
	key := testGroupKey(0xbb)
	// Carol has no service-side profile: her resolution fails, and with
	// it the whole group.
	handle.SetProfile(aliceID, testKey(1), named("alice"), nil)
	store.PutGroup(backend.GroupRecord{
		Key:      key,
		Title:    "partial",
		Revision: 1,
		Members: []backend.GroupMember{
			{ID: aliceID, ProfileKey: testKey(1)},
			{ID: carolID, ProfileKey: testKey(3)},
		},
	})

	if _, ok := c.resolveGroup(context.Background(), backend.GroupContext{MasterKey: key, Revision: 1}); ok {
		t.Fatalf("group resolved despite unresolvable member")
	}

	// No partial group was cached: once carol resolves, the group does.
	handle.SetProfile(carolID, testKey(3), named("carol"), nil)
	group, ok := c.resolveGroup(context.Background(), backend.GroupContext{MasterKey: key, Revision: 1})
	if !ok {
		t.Fatalf("group still unresolvable after member became resolvable")
	}
	if len(group.Members) != 2 {
		t.Fatalf("group has %d members, want 2", len(group.Members))
	}
}

func TestResolveGroupWithoutStoredRecordFails(t *testing.T) {
	c, _, _ := newCacheFixture(t)
	gctx := backend.GroupContext{MasterKey: testGroupKey(0xcc), Revision: 1}
	if _, ok := c.resolveGroup(context.Background(), gctx); ok {
		t.Fatalf("resolved a group with no stored record")
	}
}

func TestContactLookupIsCacheOnly(t *testing.T) {
	c, _, handle := newCacheFixture(t)
	key := testKey(1)
	handle.SetProfile(aliceID, key, named("alice"), nil)

	if _, ok := c.contact(aliceID); ok {
		t.Fatalf("cache-only lookup hit before any resolution")
	}
	if _, ok := c.resolveContact(context.Background(), aliceID, &key); !ok {
		t.Fatalf("resolution failed")
	}
	contact, ok := c.contact(aliceID)
	if !ok || contact.Name != "alice" {
		t.Fatalf("cache-only lookup missed after resolution: %+v, ok=%v", contact, ok)
	}
}
