// Copyright 2026 The Guildbot Authors
// SPDX-License-Identifier: Apache-2.0

// Package bus routes inbound platform events to subscribed handlers.
//
// Delivery is synchronous and sequential: Publish invokes every
// handler registered for the event's kind in registration order, on
// the publishing goroutine. This preserves the transport's per-guild
// ordering. Handlers that need unbounded work must hand off to a
// goroutine and return; the bus never spawns goroutines itself.
//
// Handler failures are isolated. An error return is logged and
// skipped; a panic is recovered, logged, and skipped. Neither
// prevents delivery to later handlers or reaches the publisher.
package bus

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/guildbot-project/guildbot/platform"
)

// Handler processes one event. Handlers run on the publishing
// goroutine and must return promptly.
type Handler func(ctx context.Context, event platform.Event) error

// SubscriptionID identifies a registration for later removal.
type SubscriptionID uint64

// Bus is the process-wide event dispatcher. The zero value is not
// usable; call New.
type Bus struct {
	logger *slog.Logger

	mu     sync.Mutex
	nextID SubscriptionID
	byKind map[platform.EventKind][]subscription

	// dispatching counts Publish calls in flight on this goroutine
	// set. While non-zero, unsubscribes are queued and applied when
	// the outermost dispatch completes, so no handler can pull
	// another out from under the event that is being delivered.
	dispatching int
	deferred    []SubscriptionID
}

type subscription struct {
	id      SubscriptionID
	name    string
	handler Handler
}

// New creates an empty bus. A nil logger defaults to slog.Default().
func New(logger *slog.Logger) *Bus {
	if logger == nil {
		logger = slog.Default()
	}
	return &Bus{
		logger: logger,
		byKind: make(map[platform.EventKind][]subscription),
	}
}

// Subscribe registers handler for events of the given kind. The name
// appears in failure logs. Handlers for one kind run in registration
// order.
func (b *Bus) Subscribe(kind platform.EventKind, name string, handler Handler) SubscriptionID {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.nextID++
	b.byKind[kind] = append(b.byKind[kind], subscription{
		id:      b.nextID,
		name:    name,
		handler: handler,
	})
	return b.nextID
}

// Unsubscribe removes a registration. If called from inside a
// handler (directly or transitively), removal is deferred until the
// current dispatch completes. Unknown IDs are ignored.
func (b *Bus) Unsubscribe(id SubscriptionID) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.dispatching > 0 {
		b.deferred = append(b.deferred, id)
		return
	}
	b.removeLocked(id)
}

func (b *Bus) removeLocked(id SubscriptionID) {
	for kind, subs := range b.byKind {
		for i, sub := range subs {
			if sub.id == id {
				b.byKind[kind] = append(subs[:i:i], subs[i+1:]...)
				return
			}
		}
	}
}

// Publish delivers event to every handler subscribed to its kind, in
// registration order. Always returns after every handler has run;
// handler errors and panics never propagate to the caller.
func (b *Bus) Publish(ctx context.Context, event platform.Event) {
	b.mu.Lock()
	subs := make([]subscription, len(b.byKind[event.Kind]))
	copy(subs, b.byKind[event.Kind])
	b.dispatching++
	b.mu.Unlock()

	for _, sub := range subs {
		b.invoke(ctx, sub, event)
	}

	b.mu.Lock()
	b.dispatching--
	if b.dispatching == 0 && len(b.deferred) > 0 {
		for _, id := range b.deferred {
			b.removeLocked(id)
		}
		b.deferred = b.deferred[:0]
	}
	b.mu.Unlock()
}

// invoke runs one handler with panic isolation.
func (b *Bus) invoke(ctx context.Context, sub subscription, event platform.Event) {
	defer func() {
		if recovered := recover(); recovered != nil {
			b.logger.Error("event handler panicked",
				"handler", sub.name,
				"kind", event.Kind,
				"guild_id", event.GuildID,
				"panic", fmt.Sprintf("%v", recovered),
			)
		}
	}()

	if err := sub.handler(ctx, event); err != nil {
		b.logger.Error("event handler failed",
			"handler", sub.name,
			"kind", event.Kind,
			"guild_id", event.GuildID,
			"error", err,
		)
	}
}
