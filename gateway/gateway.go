// Copyright 2026 The Guildbot Authors
// SPDX-License-Identifier: Apache-2.0

// Package gateway defines the seam between guildbot and the chat
// platform's wire protocol. An adapter owns the websocket (or whatever
// the platform speaks), decodes its traffic into [platform.Event]
// values and [command.Request] invocations, and exposes the REST
// surface as a [platform.Client].
//
// Guildbot itself carries no wire implementation. Deployments link an
// adapter package and install it with [Register]; tests install fakes
// the same way through the connector parameter of the daemon's run
// function.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/guildbot-project/guildbot/command"
	"github.com/guildbot-project/guildbot/lib/clock"
	"github.com/guildbot-project/guildbot/platform"
)

// ErrNoAdapter is returned by [Connect] when no adapter has been
// registered under the requested name.
var ErrNoAdapter = errors.New("gateway: no transport adapter registered")

// Config carries what an adapter needs to reach the platform.
type Config struct {
	// Token authenticates the bot account. Required.
	Token string

	// Shards is how many gateway shards to open. Adapters that do
	// not shard ignore it.
	Shards int

	Logger *slog.Logger
	Clock  clock.Clock
}

// Sink receives decoded gateway traffic. The daemon's implementation
// publishes events on the bus and dispatches requests on the router.
type Sink interface {
	Event(ctx context.Context, event platform.Event)
	Request(ctx context.Context, req command.Request)
}

// Conn is a live platform connection.
type Conn interface {
	// Client returns the REST capability surface of the connection.
	Client() platform.Client

	// Resolver returns the track resolver backing music playback,
	// or nil when the adapter has none.
	Resolver() platform.TrackResolver

	// DeclareCommands publishes the command table to the platform so
	// invocations arrive as structured requests.
	DeclareCommands(ctx context.Context, cmds []*command.Command) error

	// Run delivers decoded traffic to sink until ctx is cancelled
	// or the connection fails terminally.
	Run(ctx context.Context, sink Sink) error

	// Close tears the connection down. Safe after Run returns.
	Close(ctx context.Context) error
}

// Connector dials the platform.
type Connector func(ctx context.Context, cfg Config) (Conn, error)

var (
	registryMu sync.Mutex
	registry   = make(map[string]Connector)
)

// Register installs an adapter under a name, typically from the
// adapter package's init. Registering the same name twice panics.
func Register(name string, c Connector) {
	registryMu.Lock()
	defer registryMu.Unlock()
	if _, dup := registry[name]; dup {
		panic(fmt.Sprintf("gateway: duplicate adapter registration of %q", name))
	}
	registry[name] = c
}

// Connect dials the platform with the named adapter.
func Connect(ctx context.Context, name string, cfg Config) (Conn, error) {
	registryMu.Lock()
	c, ok := registry[name]
	registryMu.Unlock()
	if !ok {
		return nil, fmt.Errorf("gateway: adapter %q: %w", name, ErrNoAdapter)
	}
	return c(ctx, cfg)
}

// Adapters returns the registered adapter names, for error messages
// and --version style diagnostics.
func Adapters() []string {
	registryMu.Lock()
	defer registryMu.Unlock()
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	return names
}
