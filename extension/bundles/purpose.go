// Copyright 2026 The Guildbot Authors
// SPDX-License-Identifier: Apache-2.0

package bundles

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/guildbot-project/guildbot/command"
	"github.com/guildbot-project/guildbot/extension"
	"github.com/guildbot-project/guildbot/platform"
	"github.com/guildbot-project/guildbot/purpose"
	"github.com/guildbot-project/guildbot/store"
)

// Purposes lets moderators bind guild objects to well-known purposes.
type Purposes struct{}

// NewPurposes returns the purpose bundle.
func NewPurposes() *Purposes { return &Purposes{} }

func (*Purposes) Name() string { return "purpose" }

func (p *Purposes) Setup(_ context.Context, reg *extension.Registry) error {
	var ids []string
	for _, def := range reg.Purposes.Table().Definitions() {
		ids = append(ids, def.ID)
	}
	moderator := command.Constraints{
		GuildOnly:  true,
		Permission: platform.PermissionModerateMembers,
		Choices:    map[string][]string{"purpose": ids},
	}

	reg.Register(&command.Command{
		Namespace:   "purpose",
		Sub:         "bind",
		Description: "Bind a channel, category, or role to a purpose.",
		Constraints: moderator,
		Handler:     p.bind(reg),
	})
	reg.Register(&command.Command{
		Namespace:   "purpose",
		Sub:         "unbind",
		Description: "Remove a purpose binding.",
		Constraints: moderator,
		Handler:     p.unbind(reg),
	})
	reg.Register(&command.Command{
		Namespace:   "purpose",
		Sub:         "list",
		Description: "Show this server's purpose bindings.",
		Constraints: command.Constraints{
			GuildOnly:  true,
			Permission: platform.PermissionModerateMembers,
		},
		Handler: p.list(reg),
	})
	return nil
}

func (p *Purposes) bind(reg *extension.Registry) command.Handler {
	return func(ctx context.Context, inv *command.Invocation) error {
		purposeID, objectID, err := purposeArgs(inv)
		if err != nil {
			return err
		}
		created, err := reg.Purposes.Bind(ctx, purposeID, objectID, inv.GuildID)
		if errors.Is(err, purpose.ErrUnknownPurpose) {
			return &command.PreconditionError{Reason: "There is no such purpose."}
		}
		if err != nil {
			return err
		}
		if !created {
			return inv.Replyf(ctx, "That binding already exists.")
		}
		return inv.Replyf(ctx, "Bound object %d to `%s`.", objectID, purposeID)
	}
}

func (p *Purposes) unbind(reg *extension.Registry) command.Handler {
	return func(ctx context.Context, inv *command.Invocation) error {
		purposeID, objectID, err := purposeArgs(inv)
		if err != nil {
			return err
		}
		err = reg.Purposes.Unbind(ctx, purposeID, objectID)
		switch {
		case errors.Is(err, purpose.ErrUnknownPurpose):
			return &command.PreconditionError{Reason: "There is no such purpose."}
		case errors.Is(err, store.ErrEmptyResult):
			return &command.PreconditionError{Reason: "That binding does not exist."}
		case err != nil:
			return err
		}
		return inv.Replyf(ctx, "Removed the `%s` binding for object %d.", purposeID, objectID)
	}
}

func (p *Purposes) list(reg *extension.Registry) command.Handler {
	return func(ctx context.Context, inv *command.Invocation) error {
		bindings, err := reg.Purposes.List(ctx, inv.GuildID)
		if err != nil {
			return err
		}
		if len(bindings) == 0 {
			return inv.Replyf(ctx, "No purposes are bound here yet.")
		}
		var b strings.Builder
		for _, binding := range bindings {
			fmt.Fprintf(&b, "`%s` → %d\n", binding.PurposeID, binding.ObjectID)
		}
		return inv.Replyf(ctx, "%s", strings.TrimRight(b.String(), "\n"))
	}
}

func purposeArgs(inv *command.Invocation) (string, uint64, error) {
	purposeID, ok := inv.StringArg("purpose")
	if !ok {
		return "", 0, &command.PreconditionError{Reason: "Tell me which purpose."}
	}
	objectID, ok := inv.IntArg("object")
	if !ok || objectID <= 0 {
		return "", 0, &command.PreconditionError{Reason: "Tell me the object's ID."}
	}
	return purposeID, uint64(objectID), nil
}
