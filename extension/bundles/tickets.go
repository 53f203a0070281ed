// Copyright 2026 The Guildbot Authors
// SPDX-License-Identifier: Apache-2.0

package bundles

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/guildbot-project/guildbot/command"
	"github.com/guildbot-project/guildbot/extension"
	"github.com/guildbot-project/guildbot/platform"
	"github.com/guildbot-project/guildbot/store"
	"github.com/guildbot-project/guildbot/ticket"
)

// Tickets exposes the ticket workflow as commands.
type Tickets struct{}

// NewTickets returns the tickets bundle.
func NewTickets() *Tickets { return &Tickets{} }

func (*Tickets) Name() string { return "tickets" }

func (t *Tickets) Setup(_ context.Context, reg *extension.Registry) error {
	reg.Register(&command.Command{
		Namespace:   "ticket",
		Sub:         "create",
		Description: "Open a support ticket.",
		Constraints: command.Constraints{
			GuildOnly: true,
			Cooldown:  &command.CooldownSpec{Capacity: 1, Window: 5 * time.Minute},
		},
		Handler: t.create(reg),
	})
	reg.Register(&command.Command{
		Namespace:   "ticket",
		Sub:         "close",
		Description: "Close a ticket.",
		Constraints: command.Constraints{GuildOnly: true},
		Handler:     t.close(reg),
	})
	reg.Register(&command.Command{
		Namespace:   "ticket",
		Sub:         "reopen",
		Description: "Reopen a closed ticket.",
		Constraints: command.Constraints{
			GuildOnly:  true,
			Permission: platform.PermissionModerateMembers,
		},
		Handler: t.reopen(reg),
	})
	return nil
}

func (t *Tickets) create(reg *extension.Registry) command.Handler {
	return func(ctx context.Context, inv *command.Invocation) error {
		description, ok := inv.StringArg("description")
		if !ok || strings.TrimSpace(description) == "" {
			return &command.PreconditionError{Reason: "Describe what the ticket is about."}
		}
		tk, err := reg.Tickets.Open(ctx, inv.GuildID, inv.UserID, description)
		if errors.Is(err, ticket.ErrNoCategory) {
			return &command.PreconditionError{Reason: "This server has no ticket category set up."}
		}
		if err != nil {
			return err
		}
		return inv.Replyf(ctx, "Ticket #%d is open in %s.", tk.ID, channelMention(tk.ChannelID))
	}
}

func (t *Tickets) close(reg *extension.Registry) command.Handler {
	return func(ctx context.Context, inv *command.Invocation) error {
		id, ok := inv.IntArg("id")
		if !ok {
			return &command.PreconditionError{Reason: "Tell me which ticket to close."}
		}
		_, err := reg.Tickets.Close(ctx, inv.GuildID, id)
		if err != nil {
			return ticketError(err)
		}
		return inv.Replyf(ctx, "Ticket #%d closed. Its channel will be removed shortly.", id)
	}
}

func (t *Tickets) reopen(reg *extension.Registry) command.Handler {
	return func(ctx context.Context, inv *command.Invocation) error {
		id, ok := inv.IntArg("id")
		if !ok {
			return &command.PreconditionError{Reason: "Tell me which ticket to reopen."}
		}
		tk, err := reg.Tickets.Reopen(ctx, inv.GuildID, id)
		if err != nil {
			return ticketError(err)
		}
		return inv.Replyf(ctx, "Ticket #%d reopened in %s.", tk.ID, channelMention(tk.ChannelID))
	}
}

// ticketError rephrases workflow errors for chat.
func ticketError(err error) error {
	var invalid *ticket.InvalidStateError
	switch {
	case errors.Is(err, store.ErrEmptyResult):
		return &command.PreconditionError{Reason: "No such ticket."}
	case errors.As(err, &invalid):
		return &command.PreconditionError{Reason: "That ticket is already " + string(invalid.From) + "."}
	case errors.Is(err, ticket.ErrNoCategory):
		return &command.PreconditionError{Reason: "This server has no ticket category set up."}
	default:
		return err
	}
}
