// Copyright 2026 The Klaxon Authors
// SPDX-License-Identifier: Apache-2.0

package session

import (
	"context"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/klaxon-im/klaxon/backend"
	"github.com/klaxon-im/klaxon/chat"
	"github.com/klaxon-im/klaxon/lib/retry"
)

// streamTask drives one StreamEvents subscription: wait for the handle,
// learn the account identity, warm the cache from stored records,
// replay persisted history, then forward live traffic until the engine
// shuts down. The events channel closes when the task ends.
func (a *actor) streamTask(events chan<- Event) {
	defer close(events)
	ctx := a.ctx

	h, err := a.handle.wait(ctx)
	if err != nil {
		return
	}

	// The identity distinguishes self in every later resolution, so it
	// lands before any cache population. Right after linking the backend
	// can briefly not know who it is.
	identity, err := retry.Fibonacci(ctx, a.clk, func(ctx context.Context) (backend.WhoAmI, bool) {
		id, err := h.WhoAmI(ctx)
		if err != nil {
			a.log.Debug("whoami probe failed", "error", err)
			return backend.WhoAmI{}, false
		}
		return id, true
	})
	if err != nil {
		return
	}
	a.self.CompareAndSwap(nil, &identity)
	a.log.Info("account identity established", "aci", identity.ACI.String())

	// Completion arrives later as a contacts marker on the live stream.
	if err := h.RequestContactSync(ctx); err != nil {
		a.log.Warn("contact sync request failed", "error", err)
	}

	a.warmUp(ctx, events)
	a.replay(ctx, events)

	rx, err := retry.Fibonacci(ctx, a.clk, func(ctx context.Context) (<-chan backend.Received, bool) {
		rx, err := h.ReceiveMessages(ctx)
		if err != nil {
			a.log.Debug("receive stream probe failed", "error", err)
			return nil, false
		}
		return rx, true
	})
	if err != nil {
		return
	}
	a.log.Info("live receive stream open")

	var tasks sync.WaitGroup
	for received := range rx {
		switch received.Kind {
		case backend.ReceivedQueueEmpty:
			a.synced.Store(true)
			a.log.Info("offline queue drained")
		case backend.ReceivedContacts:
			a.log.Info("contact sync completed")
			tasks.Add(1)
			go func() {
				defer tasks.Done()
				a.warmUp(ctx, events)
			}()
		case backend.ReceivedContent:
			env := *received.Envelope
			tasks.Add(1)
			go func() {
				defer tasks.Done()
				a.decodeAndEmit(ctx, env, events)
			}()
		}
	}
	tasks.Wait()
}

// warmUp resolves every stored contact and group so conversations are
// listable before any message decodes, announcing each with a
// ContactDiscovered action. Unresolvable records (no profile key yet)
// are skipped; a later contact sync marker re-runs the warm-up.
func (a *actor) warmUp(ctx context.Context, events chan<- Event) {
	contacts, err := a.store.Contacts(ctx)
	if err != nil {
		a.log.Warn("listing stored contacts failed", "error", err)
		return
	}
	for _, rec := range contacts {
		key := rec.ProfileKey
		contact, ok := a.cache.resolveContact(ctx, rec.ID, &key)
		if !ok {
			continue
		}
		a.emit(ctx, events, contact, chat.ContactDiscovered{})
	}

	groups, err := a.store.Groups(ctx)
	if err != nil {
		a.log.Warn("listing stored groups failed", "error", err)
		return
	}
	for _, rec := range groups {
		gctx := backend.GroupContext{MasterKey: rec.Key, Revision: rec.Revision}
		group, ok := a.cache.resolveGroup(ctx, gctx)
		if !ok {
			continue
		}
		a.emit(ctx, events, group, chat.ContactDiscovered{})
	}
}

// replay decodes every persisted message of every known thread, one
// goroutine per message with bounded concurrency. Completion order is
// deliberately unordered; consumers key by timestamp.
func (a *actor) replay(ctx context.Context, events chan<- Event) {
	var group errgroup.Group
	group.SetLimit(a.replayWorkers)

	for _, thread := range a.knownThreads(ctx) {
		envelopes, err := a.store.Messages(ctx, thread)
		if err != nil {
			a.log.Warn("reading thread history failed",
				"thread", thread.String(), "error", err)
			continue
		}
		for _, env := range envelopes {
			env := env
			group.Go(func() error {
				a.decodeAndEmit(ctx, env, events)
				return nil
			})
		}
	}
	// Decode tasks never return errors; they log and skip instead.
	_ = group.Wait()
	a.log.Info("history replay complete")
}

// knownThreads lists the thread of every stored contact and group.
func (a *actor) knownThreads(ctx context.Context) []backend.Thread {
	var threads []backend.Thread
	contacts, err := a.store.Contacts(ctx)
	if err != nil {
		a.log.Warn("listing stored contacts failed", "error", err)
	}
	for _, rec := range contacts {
		threads = append(threads, backend.ContactThread(rec.ID))
	}
	groups, err := a.store.Groups(ctx)
	if err != nil {
		a.log.Warn("listing stored groups failed", "error", err)
	}
	for _, rec := range groups {
		threads = append(threads, backend.GroupThread(rec.Key))
	}
	return threads
}

func (a *actor) decodeAndEmit(ctx context.Context, env backend.Envelope, events chan<- Event) {
	target, action, ok := a.dec.decode(ctx, env)
	if !ok {
		return
	}
	a.emit(ctx, events, target, action)
}

// emit delivers an event, stamping it live once the offline queue has
// drained. Delivery aborts if the engine shuts down while the consumer
// is not draining.
func (a *actor) emit(ctx context.Context, events chan<- Event, target chat.Chat, action chat.Action) {
	event := Event{Chat: target, Action: action, Live: a.synced.Load()}
	select {
	case events <- event:
	case <-ctx.Done():
	}
}
