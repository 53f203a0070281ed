// Copyright 2026 The Guildbot Authors
// SPDX-License-Identifier: Apache-2.0

package bundles

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/guildbot-project/guildbot/extension"
	"github.com/guildbot-project/guildbot/platform"
	"github.com/guildbot-project/guildbot/purpose"
	"github.com/guildbot-project/guildbot/ref"
)

// logCacheFreshness is how long a resolved log-channel binding is
// trusted before it is looked up again.
const logCacheFreshness = 5 * time.Minute

type logTarget struct {
	channelID ref.ChannelID
	bound     bool
	fetched   time.Time
}

// GuildLog mirrors notable guild activity into the guild's bound log
// channel.
type GuildLog struct {
	mu    sync.Mutex
	cache map[ref.GuildID]logTarget
}

// NewGuildLog returns the guildlog bundle.
func NewGuildLog() *GuildLog {
	return &GuildLog{cache: make(map[ref.GuildID]logTarget)}
}

func (*GuildLog) Name() string { return "guildlog" }

func (g *GuildLog) Setup(_ context.Context, reg *extension.Registry) error {
	reg.Subscribe(platform.EventMessageEdited, "guildlog-edits", g.handler(reg, func(event platform.Event) string {
		if event.Message.Previous == "" {
			return fmt.Sprintf("%s edited a message in %s.", mention(event.ActorID), channelMention(event.Message.ChannelID))
		}
		return fmt.Sprintf("%s edited a message in %s:\n> before: %s\n> after: %s",
			mention(event.ActorID), channelMention(event.Message.ChannelID), event.Message.Previous, event.Message.Content)
	}))
	reg.Subscribe(platform.EventMessageDeleted, "guildlog-deletes", g.handler(reg, func(event platform.Event) string {
		if event.Message.Content == "" {
			return fmt.Sprintf("A message by %s was deleted in %s.", mention(event.ActorID), channelMention(event.Message.ChannelID))
		}
		return fmt.Sprintf("A message by %s was deleted in %s:\n> %s",
			mention(event.ActorID), channelMention(event.Message.ChannelID), event.Message.Content)
	}))
	reg.Subscribe(platform.EventMemberJoined, "guildlog-joins", g.handler(reg, func(event platform.Event) string {
		return fmt.Sprintf("%s joined the server.", mention(event.ActorID))
	}))
	reg.Subscribe(platform.EventMemberLeft, "guildlog-leaves", g.handler(reg, func(event platform.Event) string {
		return fmt.Sprintf("%s left the server.", mention(event.ActorID))
	}))
	return nil
}

// handler wraps a formatter with the bot filter and channel lookup.
func (g *GuildLog) handler(reg *extension.Registry, format func(platform.Event) string) func(context.Context, platform.Event) error {
	return func(ctx context.Context, event platform.Event) error {
		if event.ActorIsBot || event.GuildID.IsZero() {
			return nil
		}
		target, err := g.target(ctx, reg, event.GuildID)
		if err != nil {
			return err
		}
		if !target.bound {
			return nil
		}
		content := format(event)
		reg.Go(func() {
			sendCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), sendTimeout)
			defer cancel()
			_, err := reg.Client.SendMessage(sendCtx, target.channelID, platform.Outgoing{Content: content})
			if err != nil {
				reg.Logger.Warn("guild log entry not delivered",
					"guild", event.GuildID, "channel", target.channelID, "error", err)
			}
		})
		return nil
	}
}

// target resolves the guild's log channel through a freshness-bounded
// cache. Unbound guilds are cached too, so silent guilds do not hit
// the store on every event.
func (g *GuildLog) target(ctx context.Context, reg *extension.Registry, guildID ref.GuildID) (logTarget, error) {
	now := reg.Clock.Now()

	g.mu.Lock()
	cached, exists := g.cache[guildID]
	g.mu.Unlock()
	if exists && now.Sub(cached.fetched) < logCacheFreshness {
		return cached, nil
	}

	objectID, err := reg.Purposes.Resolve(ctx, guildID, purpose.GuildLogs)
	target := logTarget{fetched: now}
	switch {
	case err == nil:
		target.channelID = ref.ChannelIDFrom(objectID)
		target.bound = true
	case errors.Is(err, purpose.ErrNotBound):
		// cached as unbound
	default:
		return logTarget{}, err
	}

	g.mu.Lock()
	g.cache[guildID] = target
	g.mu.Unlock()
	return target, nil
}
