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

	"github.com/klaxon-im/klaxon/backend"
	"github.com/klaxon-im/klaxon/chat"
	"github.com/klaxon-im/klaxon/lib/clock"
)

const (
	// defaultQueueSize bounds the command queue. A full queue suspends
	// callers until the loop catches up; this is the engine's only
	// backpressure mechanism.
	defaultQueueSize = 100

	// eventBuffer sizes each StreamEvents channel. Decode goroutines
	// block on a full buffer until the consumer drains it.
	eventBuffer = 100

	// defaultReplayWorkers bounds concurrent decode goroutines during
	// history replay.
	defaultReplayWorkers = 8

	// defaultDeviceName is the name a linked device registers under.
	defaultDeviceName = "klaxon"
)

// Config configures a session engine.
type Config struct {
	// Loader opens the account state. Required.
	Loader backend.Loader

	// Location is the account state directory. Required.
	Location string

	// Server selects the service environment for linking. Defaults to
	// backend.ProductionServer.
	Server backend.Server

	// DeviceName is the name registered when LinkDevice provisions this
	// install. Defaults to "klaxon".
	DeviceName string

	// Logger receives engine logs. Defaults to slog.Default().
	Logger *slog.Logger

	// Clock drives send timestamps and retry backoff. Defaults to the
	// real clock; tests inject clock.Fake.
	Clock clock.Clock

	// QueueSize overrides the command queue bound.
	QueueSize int

	// ReplayWorkers overrides the replay decode concurrency.
	ReplayWorkers int
}

// Event is one engine output: a timeline action for a resolved chat.
// Live distinguishes newly arrived traffic from catch-up: false until
// the backend's offline queue drains, so consumers suppress notification
// side effects during replay.
type Event struct {
	Chat   chat.Chat
	Action chat.Action
	Live   bool
}

// Session is a cloneable handle to one account engine. All methods are
// safe for concurrent use. When the last clone is closed the engine
// shuts down; Done is closed once the loop has exited.
type Session struct {
	commands chan<- command
	done     chan struct{}
	refs     *refCount
	closed   atomic.Bool
}

// refCount tracks live handle clones.
type refCount struct {
	mu    sync.Mutex
	count int
}

type command interface {
	name() string
}

type loadCommand struct {
	reply chan<- error
}

func (loadCommand) name() string { return "load" }

type linkCommand struct {
	urls  chan<- string
	reply chan<- error
}

func (linkCommand) name() string { return "link" }

type streamCommand struct {
	reply chan<- <-chan Event
}

func (streamCommand) name() string { return "stream" }

type sendCommand struct {
	target chat.Chat
	body   string
	quote  *chat.Message
	reply  chan<- sendReply
}

func (sendCommand) name() string { return "send" }

type editCommand struct {
	target    chat.Chat
	body      string
	timestamp backend.Timestamp
	reply     chan<- sendReply
}

func (editCommand) name() string { return "edit" }

type shutdownCommand struct{}

func (shutdownCommand) name() string { return "shutdown" }

type sendReply struct {
	event Event
	err   error
}

// actor is the engine goroutine's state: the only owner of the backend
// session and the resolution cache. The dispatch loop never performs
// backend I/O; every command spawns its work as a goroutine bound to
// the actor context.
type actor struct {
	log           *slog.Logger
	clk           clock.Clock
	account       backend.Session
	store         backend.Store
	cache         *cache
	dec           *decoder
	handle        *handleCell
	self          atomic.Pointer[backend.WhoAmI]
	synced        atomic.Bool
	server        backend.Server
	deviceName    string
	replayWorkers int

	ctx    context.Context
	cancel context.CancelFunc
}

// Start opens the account state at cfg.Location and launches the engine
// loop. ctx bounds only the open; the engine's lifetime is governed by
// Close on the returned handle.
func Start(ctx context.Context, cfg Config) (*Session, error) {
	if cfg.Loader == nil {
		return nil, errors.New("session: Config.Loader is required")
	}
	if cfg.Location == "" {
		return nil, errors.New("session: Config.Location is required")
	}
	if cfg.Server == "" {
		cfg.Server = backend.ProductionServer
	}
	if cfg.DeviceName == "" {
		cfg.DeviceName = defaultDeviceName
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Clock == nil {
		cfg.Clock = clock.Real()
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = defaultQueueSize
	}
	if cfg.ReplayWorkers <= 0 {
		cfg.ReplayWorkers = defaultReplayWorkers
	}

	account, err := cfg.Loader.Open(ctx, cfg.Location)
	if err != nil {
		return nil, fmt.Errorf("session: open account state: %w", err)
	}

	actorCtx, cancel := context.WithCancel(context.Background())
	a := &actor{
		log:           cfg.Logger,
		clk:           cfg.Clock,
		account:       account,
		store:         account.Store(),
		handle:        newHandleCell(),
		server:        cfg.Server,
		deviceName:    cfg.DeviceName,
		replayWorkers: cfg.ReplayWorkers,
		ctx:           actorCtx,
		cancel:        cancel,
	}
	a.cache = newCache(a.store, a.handle, &a.self, a.log)
	a.dec = &decoder{cache: a.cache, store: a.store, log: a.log}

	commands := make(chan command, cfg.QueueSize)
	s := &Session{
		commands: commands,
		done:     make(chan struct{}),
		refs:     &refCount{count: 1},
	}
	go a.run(commands, s.done)
	return s, nil
}

// run is the dispatch loop. It exits only on shutdownCommand, cancelling
// the actor context so in-flight goroutines wind down.
func (a *actor) run(commands <-chan command, done chan<- struct{}) {
	defer close(done)
	defer a.cancel()
	a.log.Info("session engine started")
	for cmd := range commands {
		a.log.Debug("dispatching command", "command", cmd.name())
		switch c := cmd.(type) {
		case loadCommand:
			go a.loadTask(c.reply)
		case linkCommand:
			go a.linkTask(c.urls, c.reply)
		case streamCommand:
			events := make(chan Event, eventBuffer)
			go a.streamTask(events)
			c.reply <- events
		case sendCommand:
			go a.sendTask(c)
		case editCommand:
			go a.editTask(c)
		case shutdownCommand:
			a.log.Info("session engine stopped")
			return
		}
	}
}

// loadTask connects an already-registered device. The first successful
// load or link wins the handle slot; repeats are no-ops.
func (a *actor) loadTask(reply chan<- error) {
	h, err := a.account.LoadRegistered(a.ctx)
	if err != nil {
		a.log.Warn("session load failed", "error", err)
		reply <- fmt.Errorf("session: load: %w", err)
		return
	}
	if !a.handle.set(h) {
		a.log.Debug("backend handle already present")
	}
	reply <- nil
}

// linkTask provisions this install as a secondary device. The backend
// pushes the one-time provisioning URL to urls when it is ready.
func (a *actor) linkTask(urls chan<- string, reply chan<- error) {
	h, err := a.account.LinkSecondaryDevice(a.ctx, a.server, a.deviceName, urls)
	if err != nil {
		a.log.Warn("device linking failed", "error", err)
		reply <- fmt.Errorf("session: link: %w", err)
		return
	}
	a.log.Info("device linked", "device_name", a.deviceName)
	if !a.handle.set(h) {
		a.log.Debug("backend handle already present")
	}
	reply <- nil
}

// submit enqueues a command, honoring queue backpressure. A context
// cancelled before the call fails it before anything enqueues.
func (s *Session) submit(ctx context.Context, cmd command) error {
	if s.closed.Load() {
		return ErrClosed
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	select {
	case s.commands <- cmd:
		return nil
	case <-s.done:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// LoadSession connects a previously linked device. It is idempotent
// once a handle exists. Failures are returned to the caller and never
// retried internally; a fresh install fails here and links instead.
func (s *Session) LoadSession(ctx context.Context) error {
	reply := make(chan error, 1)
	if err := s.submit(ctx, loadCommand{reply: reply}); err != nil {
		return err
	}
	select {
	case err := <-reply:
		return err
	case <-s.done:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// LinkDevice provisions this install as a new device on an existing
// account. The one-time provisioning URL is pushed to urls exactly once
// when available; LinkDevice returns once linking completes or fails.
// On success the engine holds a live handle, exactly as after a
// successful LoadSession.
func (s *Session) LinkDevice(ctx context.Context, urls chan<- string) error {
	reply := make(chan error, 1)
	if err := s.submit(ctx, linkCommand{urls: urls, reply: reply}); err != nil {
		return err
	}
	select {
	case err := <-reply:
		return err
	case <-s.done:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// StreamEvents starts synchronization and returns the event stream:
// cache warm-up, full history replay, then live traffic until the
// engine shuts down, at which point the channel closes. Call it after
// LoadSession or LinkDevice has succeeded; started earlier it idles
// until a handle exists. Each call returns an independent stream that
// replays history from the start.
func (s *Session) StreamEvents(ctx context.Context) (<-chan Event, error) {
	reply := make(chan (<-chan Event), 1)
	if err := s.submit(ctx, streamCommand{reply: reply}); err != nil {
		return nil, err
	}
	select {
	case events := <-reply:
		return events, nil
	case <-s.done:
		return nil, ErrClosed
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// SendMessage composes and transmits a message to the given chat,
// persists the sent transcript, and returns the resulting timeline
// event — decoded through the same path as inbound traffic, so the
// caller folds it in exactly like a received message. A non-nil quote
// marks the message as a reply to it. Failures return a *SendError and
// leave the engine usable.
func (s *Session) SendMessage(ctx context.Context, target chat.Chat, body string, quote *chat.Message) (Event, error) {
	reply := make(chan sendReply, 1)
	cmd := sendCommand{target: target, body: body, quote: quote, reply: reply}
	if err := s.submit(ctx, cmd); err != nil {
		return Event{}, err
	}
	select {
	case r := <-reply:
		return r.event, r.err
	case <-s.done:
		return Event{}, ErrClosed
	case <-ctx.Done():
		return Event{}, ctx.Err()
	}
}

// EditMessage replaces the body of an earlier outgoing message,
// identified by its sent timestamp within the chat. The superseded
// persisted record is removed so a restart never re-surfaces the
// pre-edit copy; the returned event is the corresponding Replace.
func (s *Session) EditMessage(ctx context.Context, target chat.Chat, body string, timestamp backend.Timestamp) (Event, error) {
	reply := make(chan sendReply, 1)
	cmd := editCommand{target: target, body: body, timestamp: timestamp, reply: reply}
	if err := s.submit(ctx, cmd); err != nil {
		return Event{}, err
	}
	select {
	case r := <-reply:
		return r.event, r.err
	case <-s.done:
		return Event{}, ErrClosed
	case <-ctx.Done():
		return Event{}, ctx.Err()
	}
}

// Clone returns a new handle to the same engine. Each clone must be
// closed; the engine runs until the last one is.
func (s *Session) Clone() *Session {
	if s.closed.Load() {
		panic("session: Clone of closed handle")
	}
	s.refs.mu.Lock()
	defer s.refs.mu.Unlock()
	s.refs.count++
	return &Session{commands: s.commands, done: s.done, refs: s.refs}
}

// Close releases this handle. Closing the last handle posts shutdown;
// the loop honors it at the next dispatch and Done closes. Close does
// not wait and is idempotent per handle.
func (s *Session) Close() {
	if s.closed.Swap(true) {
		return
	}
	s.refs.mu.Lock()
	s.refs.count--
	last := s.refs.count == 0
	s.refs.mu.Unlock()
	if !last {
		return
	}
	select {
	case s.commands <- shutdownCommand{}:
	case <-s.done:
	}
}

// Done is closed once the engine loop has exited.
func (s *Session) Done() <-chan struct{} {
	return s.done
}
