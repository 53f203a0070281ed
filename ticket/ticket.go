// Copyright 2026 The Guildbot Authors
// SPDX-License-Identifier: Apache-2.0

// Package ticket runs the support ticket workflow.
//
// A member's ticket moves through three states: absent, open, closed.
// Opening creates a record and a dedicated text channel under the
// guild's ticket category; closing marks the record and deletes the
// channel after a grace period so participants can read the final
// exchange; reopening allocates a fresh channel. Illegal transitions
// fail without mutating anything.
package ticket

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/guildbot-project/guildbot/lib/clock"
	"github.com/guildbot-project/guildbot/platform"
	"github.com/guildbot-project/guildbot/purpose"
	"github.com/guildbot-project/guildbot/ref"
	"github.com/guildbot-project/guildbot/store"
)

// DefaultCloseGrace is how long a closed ticket's channel stays up
// before deletion.
const DefaultCloseGrace = 30 * time.Second

// ErrNoCategory reports a guild with no tickets-purposed category;
// tickets cannot be opened there until an admin binds one.
var ErrNoCategory = errors.New("ticket: no ticket category bound in this guild")

// InvalidStateError reports a transition the state machine does not
// allow, such as closing an already-closed ticket.
type InvalidStateError struct {
	From   store.TicketStatus
	Action string
}

func (e *InvalidStateError) Error() string {
	return fmt.Sprintf("ticket: cannot %s a ticket that is %s", e.Action, e.From)
}

// Service drives ticket transitions against the store and the
// platform.
type Service struct {
	store      *store.Store
	client     platform.Client
	purposes   *purpose.Service
	logger     *slog.Logger
	clk        clock.Clock
	closeGrace time.Duration
}

// Config holds the collaborators for a Service. Logger and CloseGrace
// are optional.
type Config struct {
	Store      *store.Store
	Client     platform.Client
	Purposes   *purpose.Service
	Logger     *slog.Logger
	Clock      clock.Clock
	CloseGrace time.Duration
}

// NewService returns a ticket Service.
func NewService(cfg Config) *Service {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	clk := cfg.Clock
	if clk == nil {
		clk = clock.Real()
	}
	grace := cfg.CloseGrace
	if grace <= 0 {
		grace = DefaultCloseGrace
	}
	return &Service{
		store:      cfg.Store,
		client:     cfg.Client,
		purposes:   cfg.Purposes,
		logger:     logger,
		clk:        clk,
		closeGrace: grace,
	}
}

// Open creates a ticket for the member and its channel under the
// guild's ticket category. A member with a ticket already open gets
// that ticket back unchanged; a second channel is never created.
func (s *Service) Open(ctx context.Context, guildID ref.GuildID, memberID ref.UserID, description string) (store.Ticket, error) {
	existing, err := s.store.OpenTicketFor(ctx, guildID, memberID)
	switch {
	case err == nil && !existing.ChannelID.IsZero():
		return existing, nil
	case err == nil:
		// Record without a channel: an earlier open got as far as
		// the record and then lost the channel call. Finish the job.
		return s.attachChannel(ctx, guildID, existing.ID, existing.Description)
	case !errors.Is(err, store.ErrEmptyResult):
		return store.Ticket{}, err
	}

	id, err := s.store.CreateTicket(ctx, guildID, memberID, description)
	if err != nil {
		return store.Ticket{}, err
	}
	t, err := s.attachChannel(ctx, guildID, id, description)
	if err != nil {
		return store.Ticket{}, err
	}
	s.logger.Info("ticket opened",
		"guild", guildID, "ticket", id, "member", memberID, "channel", t.ChannelID)
	return t, nil
}

// attachChannel creates the ticket's channel under the guild's ticket
// category and binds it to the record.
func (s *Service) attachChannel(ctx context.Context, guildID ref.GuildID, id int64, topic string) (store.Ticket, error) {
	categoryID, err := s.purposes.Resolve(ctx, guildID, purpose.Tickets)
	if err != nil {
		if errors.Is(err, purpose.ErrNotBound) {
			return store.Ticket{}, ErrNoCategory
		}
		return store.Ticket{}, err
	}

	channel, err := s.client.CreateChannel(ctx, guildID, platform.ChannelSpec{
		Name:     fmt.Sprintf("ticket-%d", id),
		Topic:    topic,
		ParentID: ref.ChannelIDFrom(categoryID),
	})
	if err != nil {
		// The record stays; the next open attempt retries the channel.
		s.logger.Error("ticket channel creation failed",
			"guild", guildID, "ticket", id, "error", err)
		return store.Ticket{}, &platform.ExternalError{Op: "CreateChannel", Err: err}
	}

	if err := s.store.SetTicketStatus(ctx, guildID, id, store.TicketOpen, channel.ID); err != nil {
		return store.Ticket{}, err
	}
	return s.store.GetTicket(ctx, guildID, id)
}

// Close marks the ticket closed and schedules its channel for
// deletion after the grace period. The record stays closed even when
// the deletion later fails; that failure is logged and reported to
// the guild's log channel.
func (s *Service) Close(ctx context.Context, guildID ref.GuildID, id int64) (store.Ticket, error) {
	t, err := s.store.GetTicket(ctx, guildID, id)
	if err != nil {
		return store.Ticket{}, err
	}
	if t.Status != store.TicketOpen {
		return store.Ticket{}, &InvalidStateError{From: t.Status, Action: "close"}
	}

	if err := s.store.SetTicketStatus(ctx, guildID, id, store.TicketClosed, t.ChannelID); err != nil {
		return store.Ticket{}, err
	}
	if !t.ChannelID.IsZero() {
		s.scheduleChannelDeletion(guildID, id, t.ChannelID)
	}
	s.logger.Info("ticket closed", "guild", guildID, "ticket", id)
	return s.store.GetTicket(ctx, guildID, id)
}

// Reopen moves a closed ticket back to open with a fresh channel.
func (s *Service) Reopen(ctx context.Context, guildID ref.GuildID, id int64) (store.Ticket, error) {
	t, err := s.store.GetTicket(ctx, guildID, id)
	if err != nil {
		return store.Ticket{}, err
	}
	if t.Status != store.TicketClosed {
		return store.Ticket{}, &InvalidStateError{From: t.Status, Action: "reopen"}
	}

	reopened, err := s.attachChannel(ctx, guildID, id, t.Description)
	if err != nil {
		return store.Ticket{}, err
	}
	s.logger.Info("ticket reopened", "guild", guildID, "ticket", id, "channel", reopened.ChannelID)
	return reopened, nil
}

// Get returns one ticket.
func (s *Service) Get(ctx context.Context, guildID ref.GuildID, id int64) (store.Ticket, error) {
	return s.store.GetTicket(ctx, guildID, id)
}

// List returns a guild's tickets with the given status.
func (s *Service) List(ctx context.Context, guildID ref.GuildID, status store.TicketStatus) ([]store.Ticket, error) {
	return s.store.ListTickets(ctx, guildID, status)
}

func (s *Service) scheduleChannelDeletion(guildID ref.GuildID, id int64, channelID ref.ChannelID) {
	s.clk.AfterFunc(s.closeGrace, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := s.client.DeleteChannel(ctx, channelID); err != nil {
			// The ticket stays closed; the channel outlives it.
			s.logger.Error("ticket channel deletion failed",
				"guild", guildID, "ticket", id, "channel", channelID, "error", err)
			s.reportDeletionFailure(ctx, guildID, channelID, err)
		}
	})
}

// reportDeletionFailure tells the guild's admin log channel about an
// orphaned ticket channel. Best effort.
func (s *Service) reportDeletionFailure(ctx context.Context, guildID ref.GuildID, channelID ref.ChannelID, cause error) {
	logChannel, err := s.purposes.Resolve(ctx, guildID, purpose.GuildLogs)
	if err != nil {
		return
	}
	_, err = s.client.SendMessage(ctx, ref.ChannelIDFrom(logChannel), platform.Outgoing{
		Content: fmt.Sprintf("Could not delete ticket channel <#%s>: %v. Please remove it manually.", channelID, cause),
	})
	if err != nil {
		s.logger.Warn("deletion failure report not delivered", "guild", guildID, "error", err)
	}
}
