// Copyright 2026 The Guildbot Authors
// SPDX-License-Identifier: Apache-2.0

package bundles

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/guildbot-project/guildbot/command"
	"github.com/guildbot-project/guildbot/extension"
	"github.com/guildbot-project/guildbot/platform"
	"github.com/guildbot-project/guildbot/session"
)

const queuePageSize = 10

// resolveTimeout bounds one track resolution; slower than this and
// the deferred reply times out anyway.
const resolveTimeout = 2 * time.Minute

// Music exposes the per-guild playback session as commands.
type Music struct{}

// NewMusic returns the music bundle.
func NewMusic() *Music { return &Music{} }

func (*Music) Name() string { return "music" }

func (m *Music) Setup(_ context.Context, reg *extension.Registry) error {
	if reg.Resolver == nil {
		return fmt.Errorf("bundles: music requires a track resolver")
	}
	guildOnly := command.Constraints{GuildOnly: true}

	reg.Register(&command.Command{
		Namespace:   "music",
		Sub:         "join",
		Description: "Join a voice channel.",
		Constraints: guildOnly,
		Handler:     m.join(reg),
	})
	reg.Register(&command.Command{
		Namespace:   "music",
		Sub:         "leave",
		Description: "Leave voice and drop the queue.",
		Constraints: guildOnly,
		Handler:     m.leave(reg),
	})
	reg.Register(&command.Command{
		Namespace:   "music",
		Sub:         "play",
		Description: "Queue a track by search or URL.",
		Constraints: guildOnly,
		Handler:     m.play(reg),
	})
	reg.Register(&command.Command{
		Namespace:   "music",
		Sub:         "queue",
		Description: "Show the queue, ten tracks per page.",
		Constraints: guildOnly,
		Handler:     m.queue(reg),
	})
	reg.Register(&command.Command{
		Namespace:   "music",
		Sub:         "playing",
		Description: "Show the current track.",
		Constraints: guildOnly,
		Handler:     m.playing(reg),
	})
	reg.Register(&command.Command{
		Namespace:   "music",
		Sub:         "skip",
		Description: "Vote to skip the current track.",
		Constraints: guildOnly,
		Handler:     m.skip(reg),
	})
	reg.Register(&command.Command{
		Namespace:   "music",
		Sub:         "loop",
		Description: "Repeat the current track when it finishes.",
		Constraints: guildOnly,
		Handler:     m.loop(reg),
	})
	return nil
}

func (m *Music) join(reg *extension.Registry) command.Handler {
	return func(ctx context.Context, inv *command.Invocation) error {
		channelID, ok := inv.ChannelArg("channel")
		if !ok {
			return &command.PreconditionError{Reason: "Tell me which voice channel to join."}
		}
		sess := reg.Sessions.GetOrCreate(inv.GuildID)
		if err := sess.Connect(ctx, reg.Client, channelID); err != nil {
			return &platform.ExternalError{Op: "JoinVoice", Err: err}
		}
		return inv.Replyf(ctx, "Joined %s.", channelMention(channelID))
	}
}

func (m *Music) leave(reg *extension.Registry) command.Handler {
	return func(ctx context.Context, inv *command.Invocation) error {
		if _, exists := reg.Sessions.Get(inv.GuildID); !exists {
			return &command.PreconditionError{Reason: "I am not in a voice channel here."}
		}
		reg.Sessions.Remove(ctx, inv.GuildID)
		return inv.Replyf(ctx, "Left voice. The queue is gone.")
	}
}

func (m *Music) play(reg *extension.Registry) command.Handler {
	return func(ctx context.Context, inv *command.Invocation) error {
		query, ok := inv.StringArg("query")
		if !ok || strings.TrimSpace(query) == "" {
			return &command.PreconditionError{Reason: "Tell me what to play."}
		}
		sess, exists := reg.Sessions.Get(inv.GuildID)
		if !exists {
			return &command.PreconditionError{Reason: "Use `music join` first."}
		}

		// Resolution hits external services; defer and finish on a
		// worker.
		tok, err := inv.Defer(ctx)
		if err != nil {
			return err
		}
		requester := inv.UserID
		reg.Go(func() {
			workCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), resolveTimeout)
			defer cancel()

			track, err := reg.Resolver.ResolveTrack(workCtx, query)
			if err != nil {
				m.followup(workCtx, reg, inv, tok, fmt.Sprintf("Could not find anything for %q.", query))
				return
			}
			track.RequestedBy = requester
			position, err := sess.Enqueue(track)
			if errors.Is(err, session.ErrNotConnected) {
				m.followup(workCtx, reg, inv, tok, "The session went away before the track resolved.")
				return
			}
			if err != nil {
				m.followup(workCtx, reg, inv, tok, "Could not queue that track.")
				return
			}
			m.followup(workCtx, reg, inv, tok, fmt.Sprintf("Queued **%s** at position %d.", track.Title, position))
		})
		return nil
	}
}

func (m *Music) followup(ctx context.Context, reg *extension.Registry, inv *command.Invocation, tok command.FollowupToken, content string) {
	err := inv.Followup(ctx, tok, platform.Outgoing{Content: content})
	if err != nil && !errors.Is(err, command.ErrTokenExpired) {
		reg.Logger.Warn("music followup not delivered", "guild", inv.GuildID, "error", err)
	}
}

func (m *Music) queue(reg *extension.Registry) command.Handler {
	return func(ctx context.Context, inv *command.Invocation) error {
		sess, exists := reg.Sessions.Get(inv.GuildID)
		if !exists {
			return &command.PreconditionError{Reason: "Nothing is queued here."}
		}
		page := int64(1)
		if n, ok := inv.IntArg("page"); ok && n > 0 {
			page = n
		}
		tracks := sess.Queue()
		if len(tracks) == 0 {
			return inv.Replyf(ctx, "The queue is empty.")
		}

		start := int(page-1) * queuePageSize
		if start >= len(tracks) {
			return inv.Replyf(ctx, "The queue only has %d tracks.", len(tracks))
		}
		end := min(start+queuePageSize, len(tracks))

		var b strings.Builder
		fmt.Fprintf(&b, "Queue, page %d:\n", page)
		for i, track := range tracks[start:end] {
			fmt.Fprintf(&b, "%d. **%s** (requested by %s)\n", start+i+1, track.Title, mention(track.RequestedBy))
		}
		return inv.Replyf(ctx, "%s", strings.TrimRight(b.String(), "\n"))
	}
}

func (m *Music) playing(reg *extension.Registry) command.Handler {
	return func(ctx context.Context, inv *command.Invocation) error {
		sess, exists := reg.Sessions.Get(inv.GuildID)
		if !exists {
			return &command.PreconditionError{Reason: "Nothing is playing here."}
		}
		track, ok := sess.Current()
		if !ok {
			return inv.Replyf(ctx, "Nothing is playing.")
		}
		suffix := ""
		if sess.Loop() {
			suffix = " (looping)"
		}
		return inv.Replyf(ctx, "Now playing: **%s**%s, requested by %s.", track.Title, suffix, mention(track.RequestedBy))
	}
}

func (m *Music) skip(reg *extension.Registry) command.Handler {
	return func(ctx context.Context, inv *command.Invocation) error {
		sess, exists := reg.Sessions.Get(inv.GuildID)
		if !exists {
			return &command.PreconditionError{Reason: "Nothing is playing here."}
		}
		privileged := inv.Member != nil && inv.Member.Permissions.Has(platform.PermissionMoveMembers)
		outcome, err := sess.VoteSkip(inv.UserID, privileged)
		if errors.Is(err, session.ErrNothingPlaying) {
			return inv.Replyf(ctx, "Nothing is playing.")
		}
		if err != nil {
			return err
		}
		if outcome.Skipped {
			return inv.Replyf(ctx, "Skipped.")
		}
		return inv.Replyf(ctx, "Skip vote counted: %d of %d.", outcome.Votes, outcome.Needed)
	}
}

func (m *Music) loop(reg *extension.Registry) command.Handler {
	return func(ctx context.Context, inv *command.Invocation) error {
		sess, exists := reg.Sessions.Get(inv.GuildID)
		if !exists {
			return &command.PreconditionError{Reason: "Nothing is playing here."}
		}
		on, ok := inv.BoolArg("on")
		if !ok {
			return &command.PreconditionError{Reason: "Tell me whether looping should be on or off."}
		}
		sess.SetLoop(on)
		if on {
			return inv.Replyf(ctx, "Looping the current track.")
		}
		return inv.Replyf(ctx, "Looping off.")
	}
}
