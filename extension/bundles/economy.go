// Copyright 2026 The Guildbot Authors
// SPDX-License-Identifier: Apache-2.0

package bundles

import (
	"context"
	"errors"
	"time"

	"github.com/guildbot-project/guildbot/command"
	"github.com/guildbot-project/guildbot/extension"
	"github.com/guildbot-project/guildbot/platform"
	"github.com/guildbot-project/guildbot/store"
)

// rewardPerMessage is the balance credit for each human message.
const rewardPerMessage = 1

// Economy earns members currency for activity and lets them check
// and transfer it.
type Economy struct{}

// NewEconomy returns the economy bundle.
func NewEconomy() *Economy { return &Economy{} }

func (*Economy) Name() string { return "economy" }

func (e *Economy) Setup(_ context.Context, reg *extension.Registry) error {
	reg.Subscribe(platform.EventMessageCreated, "economy-messages", func(ctx context.Context, event platform.Event) error {
		if event.ActorIsBot || event.GuildID.IsZero() {
			return nil
		}
		apply, err := reg.Reconciler.ShouldApply(ctx, "economy.message", event.GuildID, event.ActorID, event.Message.MessageID)
		if err != nil {
			return err
		}
		if !apply {
			return nil
		}
		return reg.Reconciler.ApplyDelta(ctx, event.ActorID, event.GuildID, "balances", rewardPerMessage)
	})

	reg.Subscribe(platform.EventMemberJoined, "economy-joins", func(ctx context.Context, event platform.Event) error {
		if event.ActorIsBot {
			return nil
		}
		return reg.Reconciler.MemberJoined(ctx, event.ActorID, event.GuildID)
	})

	reg.Subscribe(platform.EventMemberLeft, "economy-leaves", func(ctx context.Context, event platform.Event) error {
		if event.ActorIsBot {
			return nil
		}
		return reg.Reconciler.MemberLeft(ctx, event.ActorID, event.GuildID)
	})

	reg.Register(&command.Command{
		Namespace:   "money",
		Sub:         "balance",
		Description: "Show your current balance.",
		Constraints: command.Constraints{
			GuildOnly: true,
			Cooldown:  &command.CooldownSpec{Capacity: 1, Window: 5 * time.Second},
		},
		Handler: e.balance(reg),
	})
	reg.Register(&command.Command{
		Namespace:   "money",
		Sub:         "give",
		Description: "Give some of your balance to another member.",
		Constraints: command.Constraints{
			GuildOnly: true,
			Cooldown:  &command.CooldownSpec{Capacity: 3, Window: 30 * time.Second},
		},
		Handler: e.give(reg),
	})
	return nil
}

func (e *Economy) balance(reg *extension.Registry) command.Handler {
	return func(ctx context.Context, inv *command.Invocation) error {
		bal, err := reg.Store.GetBalance(ctx, inv.UserID, inv.GuildID)
		if errors.Is(err, store.ErrEmptyResult) {
			if err := reg.Reconciler.RegisterMember(ctx, inv.UserID, inv.GuildID); err != nil {
				return err
			}
			return inv.Replyf(ctx, "You have 0 coins.")
		}
		if err != nil {
			return err
		}
		return inv.Replyf(ctx, "You have %d coins.", bal.Amount)
	}
}

func (e *Economy) give(reg *extension.Registry) command.Handler {
	return func(ctx context.Context, inv *command.Invocation) error {
		to, ok := inv.UserArg("to")
		if !ok {
			return &command.PreconditionError{Reason: "Tell me who to give to."}
		}
		amount, ok := inv.IntArg("amount")
		if !ok || amount <= 0 {
			return &command.PreconditionError{Reason: "The amount must be a positive number."}
		}
		if to == inv.UserID {
			return &command.PreconditionError{Reason: "You cannot give coins to yourself."}
		}
		recipient, err := reg.Client.FetchMember(ctx, inv.GuildID, to)
		if err != nil {
			return &platform.ExternalError{Op: "FetchMember", Err: err}
		}
		if recipient.Bot {
			return &command.PreconditionError{Reason: "Bots have no use for coins."}
		}

		// Both sides idempotently registered so the transfer only
		// fails for the reason it says.
		if err := reg.Reconciler.RegisterMember(ctx, inv.UserID, inv.GuildID); err != nil {
			return err
		}
		if err := reg.Reconciler.RegisterMember(ctx, to, inv.GuildID); err != nil {
			return err
		}

		err = reg.Store.TransferBalance(ctx, inv.UserID, to, inv.GuildID, amount)
		if errors.Is(err, store.ErrInsufficientFunds) {
			return &command.PreconditionError{Reason: "You do not have that many coins."}
		}
		if err != nil {
			return err
		}
		return inv.Replyf(ctx, "Gave %d coins to %s.", amount, mention(to))
	}
}
