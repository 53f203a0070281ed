// Copyright 2026 The Guildbot Authors
// SPDX-License-Identifier: Apache-2.0

// Package reconcile keeps the store in step with guild rosters.
//
// The platform is the source of truth for who is in a guild; the
// store is the source of truth for what the bot knows about them.
// Reconciliation closes the gap in one direction: every roster member
// gets a balance and a level record (insert-if-absent, so replays and
// races are harmless), members who left while the bot was offline are
// picked up by the member-left event path, and members who returned
// are reactivated.
//
// Reconciliation runs on the ready event, on each guild-join, and on
// a configurable schedule.
package reconcile

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/guildbot-project/guildbot/bus"
	"github.com/guildbot-project/guildbot/lib/clock"
	"github.com/guildbot-project/guildbot/lib/codec"
	"github.com/guildbot-project/guildbot/lib/cron"
	"github.com/guildbot-project/guildbot/platform"
	"github.com/guildbot-project/guildbot/ref"
	"github.com/guildbot-project/guildbot/store"
)

// Reconciler registers members and repairs drift between the platform
// roster and the store.
type Reconciler struct {
	store  *store.Store
	client platform.Client
	logger *slog.Logger
	clk    clock.Clock
}

// Config holds the collaborators for a Reconciler. All fields are
// required except Logger.
type Config struct {
	Store  *store.Store
	Client platform.Client
	Logger *slog.Logger
	Clock  clock.Clock
}

// New returns a Reconciler.
func New(cfg Config) *Reconciler {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	clk := cfg.Clock
	if clk == nil {
		clk = clock.Real()
	}
	return &Reconciler{
		store:  cfg.Store,
		client: cfg.Client,
		logger: logger,
		clk:    clk,
	}
}

// RegisterMember ensures the member has a balance and a level record
// in the guild. Idempotent: concurrent and repeated calls for the
// same member yield exactly one record per table.
func (r *Reconciler) RegisterMember(ctx context.Context, memberID ref.UserID, guildID ref.GuildID) error {
	if err := r.store.EnsureGuild(ctx, guildID); err != nil {
		return fmt.Errorf("reconcile: register %s in %s: %w", memberID, guildID, err)
	}
	if _, err := r.store.InsertBalanceIfAbsent(ctx, memberID, guildID); err != nil {
		return fmt.Errorf("reconcile: register %s in %s: %w", memberID, guildID, err)
	}
	if _, err := r.store.InsertLevelIfAbsent(ctx, memberID, guildID); err != nil {
		return fmt.Errorf("reconcile: register %s in %s: %w", memberID, guildID, err)
	}
	return nil
}

// MemberJoined registers a joining member and reactivates their
// economy record if they had one from a previous stay. The level
// record starts over: it was deleted when they left.
func (r *Reconciler) MemberJoined(ctx context.Context, memberID ref.UserID, guildID ref.GuildID) error {
	if err := r.RegisterMember(ctx, memberID, guildID); err != nil {
		return err
	}
	if err := r.store.SetBalanceActive(ctx, memberID, guildID, true); err != nil {
		return fmt.Errorf("reconcile: reactivate %s in %s: %w", memberID, guildID, err)
	}
	return nil
}

// MemberLeft deactivates the member's balance (kept, in case they
// return) and deletes their level record (experience does not survive
// leaving). A member the store never saw is a no-op.
func (r *Reconciler) MemberLeft(ctx context.Context, memberID ref.UserID, guildID ref.GuildID) error {
	err := r.store.SetBalanceActive(ctx, memberID, guildID, false)
	if err != nil && !errors.Is(err, store.ErrEmptyResult) {
		return fmt.Errorf("reconcile: deactivate %s in %s: %w", memberID, guildID, err)
	}
	if err := r.store.DeleteLevel(ctx, memberID, guildID); err != nil {
		return fmt.Errorf("reconcile: delete level %s in %s: %w", memberID, guildID, err)
	}
	return nil
}

// ReconcileGuild fetches the guild roster and registers every human
// member, reactivating any the store had marked inactive.
func (r *Reconciler) ReconcileGuild(ctx context.Context, guildID ref.GuildID) error {
	roster, err := r.client.GuildRoster(ctx, guildID)
	if err != nil {
		return fmt.Errorf("reconcile: roster for %s: %w", guildID, err)
	}

	inactive, err := r.store.InactiveMembers(ctx, guildID)
	if err != nil {
		return err
	}
	inactiveSet := make(map[ref.UserID]struct{}, len(inactive))
	for _, id := range inactive {
		inactiveSet[id] = struct{}{}
	}

	registered := 0
	for _, member := range roster {
		if member.Bot {
			continue
		}
		if err := r.RegisterMember(ctx, member.UserID, guildID); err != nil {
			return err
		}
		registered++
		if _, wasInactive := inactiveSet[member.UserID]; wasInactive {
			if err := r.store.SetBalanceActive(ctx, member.UserID, guildID, true); err != nil {
				return fmt.Errorf("reconcile: reactivate %s in %s: %w", member.UserID, guildID, err)
			}
		}
	}

	r.logger.Debug("guild reconciled",
		"guild", guildID,
		"roster", len(roster),
		"registered", registered,
	)
	return nil
}

// ReconcileAll reconciles every guild the bot is in. Per-guild
// failures are logged and do not stop the sweep.
func (r *Reconciler) ReconcileAll(ctx context.Context) error {
	guilds, err := r.client.Guilds(ctx)
	if err != nil {
		return fmt.Errorf("reconcile: listing guilds: %w", err)
	}

	for _, guildID := range guilds {
		if err := r.ReconcileGuild(ctx, guildID); err != nil {
			r.logger.Error("guild reconcile failed", "guild", guildID, "error", err)
		}
	}
	return nil
}

// ApplyDelta applies a relative update to a member's numeric record.
// A member the store has not seen yet is registered and the delta
// retried, so the first message from a new member still counts.
func (r *Reconciler) ApplyDelta(ctx context.Context, memberID ref.UserID, guildID ref.GuildID, table string, delta int64) error {
	err := r.store.Delta(ctx, table, memberID, guildID, delta)
	if !errors.Is(err, store.ErrEmptyResult) {
		return err
	}
	if err := r.RegisterMember(ctx, memberID, guildID); err != nil {
		return err
	}
	return r.store.Delta(ctx, table, memberID, guildID, delta)
}

// ShouldApply journals an event and reports whether its effects
// should be applied. A replayed event (same kind, IDs, and payload
// token, typically after a gateway reconnect) returns false.
func (r *Reconciler) ShouldApply(ctx context.Context, kind string, guildID ref.GuildID, actorID ref.UserID, messageID ref.MessageID) (bool, error) {
	token, err := codec.Marshal(messageID)
	if err != nil {
		return false, fmt.Errorf("reconcile: journal token: %w", err)
	}
	key := store.DedupeKey(kind, guildID, actorID, token)
	return r.store.RecordDispatch(ctx, key, kind, guildID, store.JournalEntry{
		Kind:      kind,
		GuildID:   guildID,
		ActorID:   actorID,
		MessageID: messageID,
	})
}

// Attach subscribes the reconciler to lifecycle events. Roster
// fetches are slow I/O, so the sweeps run on their own goroutines;
// registration effects are idempotent, so overlap with the scheduled
// sweep is harmless.
func (r *Reconciler) Attach(b *bus.Bus) {
	b.Subscribe(platform.EventReady, "reconcile-ready", func(ctx context.Context, event platform.Event) error {
		go func() {
			if err := r.ReconcileAll(context.WithoutCancel(ctx)); err != nil {
				r.logger.Error("reconcile on ready failed", "error", err)
			}
		}()
		return nil
	})
	b.Subscribe(platform.EventGuildJoined, "reconcile-guild-joined", func(ctx context.Context, event platform.Event) error {
		guildID := event.GuildID
		go func() {
			if err := r.ReconcileGuild(context.WithoutCancel(ctx), guildID); err != nil {
				r.logger.Error("reconcile on guild join failed", "guild", guildID, "error", err)
			}
		}()
		return nil
	})
}

// RunSchedule re-runs ReconcileAll on the given schedule until ctx is
// cancelled. Blocks; run it on its own goroutine.
func (r *Reconciler) RunSchedule(ctx context.Context, schedule cron.Schedule) {
	for {
		next, err := schedule.Next(r.clk.Now())
		if err != nil {
			r.logger.Error("reconcile schedule has no next run", "error", err)
			return
		}
		select {
		case <-ctx.Done():
			return
		case <-r.clk.After(next.Sub(r.clk.Now())):
		}
		if err := r.ReconcileAll(ctx); err != nil {
			r.logger.Error("scheduled reconcile failed", "error", err)
		}
	}
}
