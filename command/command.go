// Copyright 2026 The Guildbot Authors
// SPDX-License-Identifier: Apache-2.0

// Package command routes typed chat-command invocations to handlers.
//
// Commands live in namespaces (one per extension bundle, typically)
// and are addressed as "namespace sub". The router enforces each
// command's declared constraints before its handler runs: guild-only,
// required permissions, argument choices, and a per-user cooldown.
// Constraint failures never reach the handler and always turn into a
// user-visible reply.
package command

import (
	"context"
	"fmt"

	"github.com/guildbot-project/guildbot/platform"
	"github.com/guildbot-project/guildbot/ref"
)

// Constraints gate a command before its handler runs. The zero value
// imposes nothing.
type Constraints struct {
	// GuildOnly rejects invocations that carry no guild, such as
	// direct messages.
	GuildOnly bool

	// Permission is the permission set the invoking member must hold.
	// Zero means no permission check.
	Permission platform.Permission

	// Choices restricts string arguments, by name, to a fixed set of
	// accepted values. Validated before the handler runs.
	Choices map[string][]string

	// Cooldown, when non-nil, rate limits the command per user per
	// guild.
	Cooldown *CooldownSpec
}

// Handler executes one invocation. A nil error with no reply sent is
// a handler defect and is logged; any returned error becomes a
// user-visible failure reply chosen by the error's type.
type Handler func(ctx context.Context, inv *Invocation) error

// Command is one registered command.
type Command struct {
	Namespace   string
	Sub         string
	Description string
	Constraints Constraints
	Handler     Handler
}

// Arg is one named invocation argument, already decoded by the
// transport into its Go representation.
type Arg struct {
	Name  string
	Value any
}

// Invocation carries everything a handler needs for one command use.
type Invocation struct {
	Command *Command

	// GuildID is zero for invocations outside any guild.
	GuildID ref.GuildID
	UserID  ref.UserID

	// Member is the invoking member, resolved by the transport. Nil
	// outside a guild.
	Member *platform.Member

	// ChannelID is where the invocation happened.
	ChannelID ref.ChannelID

	Args []Arg

	reply *Reply
}

// Reply sends the single initial response for this invocation.
func (inv *Invocation) Reply(ctx context.Context, msg platform.Outgoing) error {
	return inv.reply.Reply(ctx, msg)
}

// Replyf sends a plain-text initial response, formatted Printf-style.
func (inv *Invocation) Replyf(ctx context.Context, format string, args ...any) error {
	return inv.reply.Reply(ctx, platform.Outgoing{Content: fmt.Sprintf(format, args...)})
}

// Defer acknowledges the invocation now and promises a followup. See
// Reply.Defer.
func (inv *Invocation) Defer(ctx context.Context) (FollowupToken, error) {
	return inv.reply.Defer(ctx)
}

// Followup completes a deferred invocation.
func (inv *Invocation) Followup(ctx context.Context, tok FollowupToken, msg platform.Outgoing) error {
	return inv.reply.Followup(ctx, tok, msg)
}

// StringArg returns the named string argument. ok is false when the
// argument is absent or not a string.
func (inv *Invocation) StringArg(name string) (s string, ok bool) {
	v, ok := inv.arg(name)
	if !ok {
		return "", false
	}
	s, ok = v.(string)
	return s, ok
}

// IntArg returns the named integer argument.
func (inv *Invocation) IntArg(name string) (n int64, ok bool) {
	v, ok := inv.arg(name)
	if !ok {
		return 0, false
	}
	n, ok = v.(int64)
	return n, ok
}

// BoolArg returns the named boolean argument.
func (inv *Invocation) BoolArg(name string) (b bool, ok bool) {
	v, ok := inv.arg(name)
	if !ok {
		return false, false
	}
	b, ok = v.(bool)
	return b, ok
}

// UserArg returns the named user-reference argument.
func (inv *Invocation) UserArg(name string) (id ref.UserID, ok bool) {
	v, ok := inv.arg(name)
	if !ok {
		return ref.UserID{}, false
	}
	id, ok = v.(ref.UserID)
	return id, ok
}

// ChannelArg returns the named channel-reference argument.
func (inv *Invocation) ChannelArg(name string) (id ref.ChannelID, ok bool) {
	v, ok := inv.arg(name)
	if !ok {
		return ref.ChannelID{}, false
	}
	id, ok = v.(ref.ChannelID)
	return id, ok
}

func (inv *Invocation) arg(name string) (any, bool) {
	return argValue(inv.Args, name)
}

func argValue(args []Arg, name string) (any, bool) {
	for _, a := range args {
		if a.Name == name {
			return a.Value, true
		}
	}
	return nil, false
}

func qualifiedName(namespace, sub string) string {
	if sub == "" {
		return namespace
	}
	return namespace + " " + sub
}
