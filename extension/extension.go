// Copyright 2026 The Guildbot Authors
// SPDX-License-Identifier: Apache-2.0

// Package extension activates feature bundles against the bus and the
// command router.
//
// A bundle is a named unit of feature glue: event subscriptions plus
// slash commands sharing one concern (economy, levels, music, ...).
// Bundles register through a Registry that records everything they
// attach, so unloading a bundle removes exactly its subscriptions and
// commands and nothing else. The manager bundle activates before the
// rest and survives bulk unload, so the operator can always reload
// what was torn down.
package extension

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"sync"

	"github.com/guildbot-project/guildbot/bus"
	"github.com/guildbot-project/guildbot/command"
	"github.com/guildbot-project/guildbot/lib/clock"
	"github.com/guildbot-project/guildbot/platform"
	"github.com/guildbot-project/guildbot/purpose"
	"github.com/guildbot-project/guildbot/reconcile"
	"github.com/guildbot-project/guildbot/session"
	"github.com/guildbot-project/guildbot/store"
	"github.com/guildbot-project/guildbot/ticket"
)

// Bundle is one activatable feature unit.
type Bundle interface {
	// Name identifies the bundle in logs and Unload calls.
	Name() string

	// Setup attaches the bundle's subscriptions and commands. A
	// returned error leaves whatever was attached in place; the
	// loader unwinds it.
	Setup(ctx context.Context, reg *Registry) error
}

// Deps is the shared collaborator set handed to every bundle.
type Deps struct {
	Client     platform.Client
	Store      *store.Store
	Sessions   *session.Registry
	Purposes   *purpose.Service
	Tickets    *ticket.Service
	Reconciler *reconcile.Reconciler
	Resolver   platform.TrackResolver
	Clock      clock.Clock
	Logger     *slog.Logger
}

// Registry is a bundle's recording registrar. Everything attached
// through it is credited to the bundle for later unload.
type Registry struct {
	Deps

	loader *Loader
	rec    *activation
}

// Subscribe registers an event handler credited to the bundle.
func (r *Registry) Subscribe(kind platform.EventKind, name string, handler bus.Handler) {
	id := r.loader.bus.Subscribe(kind, name, handler)
	r.rec.subs = append(r.rec.subs, id)
}

// Register registers a command credited to the bundle.
func (r *Registry) Register(cmd *command.Command) {
	r.loader.router.Register(cmd)
	r.rec.commands = append(r.rec.commands, commandKey{cmd.Namespace, cmd.Sub})
}

// Go runs f on a goroutine bounded by the loader's worker semaphore.
// Event handlers use it for slow work so the bus stays responsive;
// when all workers are busy, Go blocks until one frees up.
func (r *Registry) Go(f func()) {
	r.loader.workers <- struct{}{}
	go func() {
		defer func() { <-r.loader.workers }()
		f()
	}()
}

type commandKey struct {
	namespace string
	sub       string
}

type activation struct {
	subs     []bus.SubscriptionID
	commands []commandKey
}

// DefaultWorkers bounds concurrent background work spawned through
// Registry.Go.
const DefaultWorkers = 16

// Loader owns bundle activation and unload.
type Loader struct {
	bus     *bus.Bus
	router  *command.Router
	deps    Deps
	logger  *slog.Logger
	workers chan struct{}

	mu      sync.Mutex
	manager Bundle
	bundles []Bundle
	active  map[string]*activation
}

// LoaderConfig configures a Loader. Bus, Router, and Deps are
// required; Workers defaults to DefaultWorkers.
type LoaderConfig struct {
	Bus     *bus.Bus
	Router  *command.Router
	Deps    Deps
	Logger  *slog.Logger
	Workers int
}

// NewLoader returns a Loader with no bundles.
func NewLoader(cfg LoaderConfig) *Loader {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	workers := cfg.Workers
	if workers <= 0 {
		workers = DefaultWorkers
	}
	return &Loader{
		bus:     cfg.Bus,
		router:  cfg.Router,
		deps:    cfg.Deps,
		logger:  logger,
		workers: make(chan struct{}, workers),
		active:  make(map[string]*activation),
	}
}

// SetManager designates the bundle that activates first and is
// excluded from UnloadAll.
func (l *Loader) SetManager(b Bundle) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.manager = b
}

// Add registers a bundle for activation, in call order.
func (l *Loader) Add(b Bundle) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.bundles = append(l.bundles, b)
}

// Activate sets up the manager bundle, then every added bundle in
// order. A manager failure aborts; any other bundle's failure is
// logged, its partial registrations are unwound, and activation
// continues with the rest.
func (l *Loader) Activate(ctx context.Context) error {
	l.mu.Lock()
	manager := l.manager
	bundles := slices.Clone(l.bundles)
	l.mu.Unlock()

	if manager != nil {
		if err := l.activateOne(ctx, manager); err != nil {
			return fmt.Errorf("extension: manager bundle %q: %w", manager.Name(), err)
		}
	}
	for _, b := range bundles {
		if err := l.activateOne(ctx, b); err != nil {
			l.logger.Error("bundle activation failed", "bundle", b.Name(), "error", err)
		}
	}
	return nil
}

func (l *Loader) activateOne(ctx context.Context, b Bundle) error {
	name := b.Name()
	l.mu.Lock()
	if _, exists := l.active[name]; exists {
		l.mu.Unlock()
		return fmt.Errorf("bundle %q already active", name)
	}
	rec := &activation{}
	l.active[name] = rec
	l.mu.Unlock()

	reg := &Registry{Deps: l.deps, loader: l, rec: rec}
	reg.Logger = l.logger.With("bundle", name)
	if err := b.Setup(ctx, reg); err != nil {
		l.detach(name)
		return err
	}
	l.logger.Info("bundle active",
		"bundle", name,
		"subscriptions", len(rec.subs),
		"commands", len(rec.commands),
	)
	return nil
}

// Unload removes a bundle's subscriptions and commands. Unknown or
// inactive names are a no-op.
func (l *Loader) Unload(name string) {
	l.detach(name)
}

// UnloadAll unloads every active bundle except the manager.
func (l *Loader) UnloadAll() {
	l.mu.Lock()
	var names []string
	for name := range l.active {
		if l.manager != nil && name == l.manager.Name() {
			continue
		}
		names = append(names, name)
	}
	l.mu.Unlock()

	slices.Sort(names)
	for _, name := range names {
		l.detach(name)
	}
}

// Active returns the names of active bundles, sorted.
func (l *Loader) Active() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	names := make([]string, 0, len(l.active))
	for name := range l.active {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

func (l *Loader) detach(name string) {
	l.mu.Lock()
	rec, exists := l.active[name]
	if exists {
		delete(l.active, name)
	}
	l.mu.Unlock()
	if !exists {
		return
	}

	for _, id := range rec.subs {
		l.bus.Unsubscribe(id)
	}
	for _, key := range rec.commands {
		l.router.Unregister(key.namespace, key.sub)
	}
	l.logger.Info("bundle unloaded", "bundle", name)
}
