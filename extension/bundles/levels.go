// Copyright 2026 The Guildbot Authors
// SPDX-License-Identifier: Apache-2.0

package bundles

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/guildbot-project/guildbot/command"
	"github.com/guildbot-project/guildbot/extension"
	"github.com/guildbot-project/guildbot/platform"
	"github.com/guildbot-project/guildbot/ref"
	"github.com/guildbot-project/guildbot/store"
)

const (
	xpPerMessage = 35
	xpPerUpdate  = 150

	// SettingLevelUpNotify controls the level-up reply. Members are
	// notified unless they set it to "off".
	SettingLevelUpNotify = "levelup-notify"

	scoreboardSize = 10
)

// Level maps accumulated experience onto a level. Level 1 starts at
// zero; each next level needs a quadratically growing total.
func Level(xp int64) int64 {
	if xp < 0 {
		return 1
	}
	return int64(math.Sqrt(float64(xp)))/7 + 1
}

// LevelFloor returns the minimum experience for the given level.
func LevelFloor(level int64) int64 {
	if level <= 1 {
		return 0
	}
	step := 7 * (level - 1)
	return step * step
}

// Levels awards experience for activity and renders rank standings.
type Levels struct{}

// NewLevels returns the levels bundle.
func NewLevels() *Levels { return &Levels{} }

func (*Levels) Name() string { return "levels" }

func (l *Levels) Setup(_ context.Context, reg *extension.Registry) error {
	reg.Subscribe(platform.EventMessageCreated, "levels-messages", func(ctx context.Context, event platform.Event) error {
		if event.ActorIsBot || event.GuildID.IsZero() {
			return nil
		}
		apply, err := reg.Reconciler.ShouldApply(ctx, "levels.message", event.GuildID, event.ActorID, event.Message.MessageID)
		if err != nil {
			return err
		}
		if !apply {
			return nil
		}
		return l.award(ctx, reg, event, xpPerMessage, event.Message.ChannelID)
	})

	reg.Subscribe(platform.EventMemberUpdated, "levels-updates", func(ctx context.Context, event platform.Event) error {
		if event.ActorIsBot || event.GuildID.IsZero() {
			return nil
		}
		return reg.Reconciler.ApplyDelta(ctx, event.ActorID, event.GuildID, "member_levels", xpPerUpdate)
	})

	reg.Register(&command.Command{
		Namespace:   "rank",
		Sub:         "show",
		Description: "Show a member's level and experience.",
		Constraints: command.Constraints{GuildOnly: true},
		Handler:     l.rank(reg),
	})
	reg.Register(&command.Command{
		Namespace:   "rank",
		Sub:         "scoreboard",
		Description: "Show the guild's top members.",
		Constraints: command.Constraints{
			GuildOnly: true,
			Choices:   map[string][]string{"style": {"icons", "grid", "text"}},
		},
		Handler: l.scoreboard(reg),
	})

	admin := command.Constraints{GuildOnly: true, Permission: platform.PermissionAdministrator}
	reg.Register(&command.Command{
		Namespace:   "rank-admin",
		Sub:         "validate-members",
		Description: "Re-register every roster member in this guild.",
		Constraints: admin,
		Handler: func(ctx context.Context, inv *command.Invocation) error {
			if err := reg.Reconciler.ReconcileGuild(ctx, inv.GuildID); err != nil {
				return err
			}
			return inv.Replyf(ctx, "Member records validated.")
		},
	})
	reg.Register(&command.Command{
		Namespace:   "rank-admin",
		Sub:         "add-xp",
		Description: "Add experience to a member.",
		Constraints: admin,
		Handler:     l.adjustXP(reg, false),
	})
	reg.Register(&command.Command{
		Namespace:   "rank-admin",
		Sub:         "set-xp",
		Description: "Set a member's experience outright.",
		Constraints: admin,
		Handler:     l.adjustXP(reg, true),
	})
	return nil
}

// award applies xp and announces a crossed level boundary in the
// channel the activity happened in.
func (l *Levels) award(ctx context.Context, reg *extension.Registry, event platform.Event, xp int64, channelID ref.ChannelID) error {
	if err := reg.Reconciler.ApplyDelta(ctx, event.ActorID, event.GuildID, "member_levels", xp); err != nil {
		return err
	}
	rec, err := reg.Store.GetExperience(ctx, event.ActorID, event.GuildID)
	if err != nil {
		return err
	}
	before := Level(rec.Experience - xp)
	after := Level(rec.Experience)
	if after == before {
		return nil
	}
	if setting, err := reg.Store.GetSetting(ctx, event.ActorID, SettingLevelUpNotify); err == nil && setting == "off" {
		return nil
	}
	reg.Go(func() {
		sendCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), sendTimeout)
		defer cancel()
		_, err := reg.Client.SendMessage(sendCtx, channelID, platform.Outgoing{
			Content: fmt.Sprintf("%s reached level %d!", mention(event.ActorID), after),
		})
		if err != nil {
			reg.Logger.Warn("level-up notice not delivered",
				"guild", event.GuildID, "member", event.ActorID, "error", err)
		}
	})
	return nil
}

func (l *Levels) rank(reg *extension.Registry) command.Handler {
	return func(ctx context.Context, inv *command.Invocation) error {
		subject := inv.UserID
		if target, ok := inv.UserArg("user"); ok {
			subject = target
		}
		rec, err := reg.Store.GetExperience(ctx, subject, inv.GuildID)
		if errors.Is(err, store.ErrEmptyResult) {
			if err := reg.Reconciler.RegisterMember(ctx, subject, inv.GuildID); err != nil {
				return err
			}
			return inv.Replyf(ctx, "%s was not registered yet. They are now; ask again in a moment.", mention(subject))
		}
		if err != nil {
			return err
		}
		level := Level(rec.Experience)
		next := LevelFloor(level + 1)
		return inv.Replyf(ctx, "%s is level %d with %d XP (%d to next level).",
			mention(subject), level, rec.Experience, next-rec.Experience)
	}
}

func (l *Levels) scoreboard(reg *extension.Registry) command.Handler {
	return func(ctx context.Context, inv *command.Invocation) error {
		style, ok := inv.StringArg("style")
		if !ok {
			style = "text"
		}
		top, err := reg.Store.TopExperience(ctx, inv.GuildID, scoreboardSize)
		if err != nil {
			return err
		}
		if len(top) == 0 {
			return inv.Replyf(ctx, "Nobody has any experience here yet.")
		}
		return inv.Replyf(ctx, "%s", renderScoreboard(style, top))
	}
}

func (l *Levels) adjustXP(reg *extension.Registry, absolute bool) command.Handler {
	return func(ctx context.Context, inv *command.Invocation) error {
		target, ok := inv.UserArg("user")
		if !ok {
			return &command.PreconditionError{Reason: "Tell me whose experience to change."}
		}
		amount, ok := inv.IntArg("amount")
		if !ok {
			return &command.PreconditionError{Reason: "Tell me how much."}
		}
		if err := reg.Reconciler.RegisterMember(ctx, target, inv.GuildID); err != nil {
			return err
		}
		if absolute {
			if amount < 0 {
				return &command.PreconditionError{Reason: "Experience cannot be negative."}
			}
			if err := reg.Store.SetExperience(ctx, target, inv.GuildID, amount); err != nil {
				return err
			}
			return inv.Replyf(ctx, "%s now has %d XP.", mention(target), amount)
		}
		if err := reg.Reconciler.ApplyDelta(ctx, target, inv.GuildID, "member_levels", amount); err != nil {
			return err
		}
		return inv.Replyf(ctx, "Added %d XP to %s.", amount, mention(target))
	}
}

var rankIcons = []string{"🥇", "🥈", "🥉"}

// renderScoreboard lays the standings out in one of three text
// styles. Image cards are deliberately not a thing here.
func renderScoreboard(style string, top []store.LevelRecord) string {
	var b strings.Builder
	switch style {
	case "icons":
		for i, rec := range top {
			icon := "▪️"
			if i < len(rankIcons) {
				icon = rankIcons[i]
			}
			fmt.Fprintf(&b, "%s %s — level %d (%d XP)\n", icon, mention(rec.MemberID), Level(rec.Experience), rec.Experience)
		}
	case "grid":
		b.WriteString("```\n")
		fmt.Fprintf(&b, "%-4s %-22s %-6s %s\n", "#", "member", "level", "xp")
		for i, rec := range top {
			fmt.Fprintf(&b, "%-4d %-22s %-6d %d\n", i+1, rec.MemberID, Level(rec.Experience), rec.Experience)
		}
		b.WriteString("```")
	default:
		for i, rec := range top {
			fmt.Fprintf(&b, "%d. %s — level %d (%d XP)\n", i+1, mention(rec.MemberID), Level(rec.Experience), rec.Experience)
		}
	}
	return strings.TrimRight(b.String(), "\n")
}
