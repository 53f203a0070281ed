// Copyright 2026 The Guildbot Authors
// SPDX-License-Identifier: Apache-2.0

package session

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/guildbot-project/guildbot/lib/clock"
	"github.com/guildbot-project/guildbot/ref"
)

// DefaultIdleTimeout is how long a session's playback loop waits on
// an empty queue before tearing the session down.
const DefaultIdleTimeout = 3 * time.Minute

// Registry maps guilds to their sessions. Lookups are atomic: two
// concurrent GetOrCreate calls for the same guild observe the same
// Session.
type Registry struct {
	logger      *slog.Logger
	clk         clock.Clock
	idleTimeout time.Duration

	mu       sync.Mutex
	sessions map[ref.GuildID]*Session
}

// RegistryConfig configures a Registry. Zero fields take defaults.
type RegistryConfig struct {
	Logger *slog.Logger
	Clock  clock.Clock

	// IdleTimeout overrides DefaultIdleTimeout, mainly for tests.
	IdleTimeout time.Duration
}

// NewRegistry returns an empty registry.
func NewRegistry(cfg RegistryConfig) *Registry {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Clock == nil {
		cfg.Clock = clock.Real()
	}
	if cfg.IdleTimeout == 0 {
		cfg.IdleTimeout = DefaultIdleTimeout
	}
	return &Registry{
		logger:      cfg.Logger,
		clk:         cfg.Clock,
		idleTimeout: cfg.IdleTimeout,
		sessions:    make(map[ref.GuildID]*Session),
	}
}

// GetOrCreate returns the guild's session, creating it on first use.
func (r *Registry) GetOrCreate(guildID ref.GuildID) *Session {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[guildID]
	if !ok {
		s = newSession(guildID, r.logger, r.clk, r)
		r.sessions[guildID] = s
	}
	return s
}

// Get returns the guild's session without creating one.
func (r *Registry) Get(guildID ref.GuildID) (*Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[guildID]
	return s, ok
}

// Remove detaches the guild's session and tears it down: the playback
// loop is cancelled and waited for, then the voice connection is
// released. Removing an absent guild is a no-op. A GetOrCreate after
// Remove returns a fresh session.
func (r *Registry) Remove(ctx context.Context, guildID ref.GuildID) {
	r.mu.Lock()
	s, ok := r.sessions[guildID]
	delete(r.sessions, guildID)
	r.mu.Unlock()
	if !ok {
		return
	}
	s.teardown(ctx)
}

// RemoveAll tears down every session, for shutdown.
func (r *Registry) RemoveAll(ctx context.Context) {
	r.mu.Lock()
	detached := make([]*Session, 0, len(r.sessions))
	for id, s := range r.sessions {
		detached = append(detached, s)
		delete(r.sessions, id)
	}
	r.mu.Unlock()

	for _, s := range detached {
		s.teardown(ctx)
	}
}

// Len returns the number of live sessions.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}
