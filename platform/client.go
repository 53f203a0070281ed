// Copyright 2026 The Guildbot Authors
// SPDX-License-Identifier: Apache-2.0

// Package platform defines the capability interface between guildbot
// and the chat platform.
//
// The core never talks to a gateway socket or REST endpoint directly:
// everything it needs from the platform — sending messages, creating
// channels, reading rosters, joining voice — goes through [Client].
// The transport adapter implements Client against the real wire
// protocol; tests implement it in memory (see platformtest).
package platform

import (
	"context"
	"time"

	"github.com/guildbot-project/guildbot/ref"
)

// Permission is a bitset of the member permissions guildbot checks.
// Only the bits the command router gates on are modeled; the
// transport adapter projects the platform's full permission set onto
// these.
type Permission uint64

const (
	// PermissionAdministrator grants every gated command.
	PermissionAdministrator Permission = 1 << iota
	// PermissionModerateMembers gates moderation commands (purpose
	// management, ticket close/reopen, rank administration).
	PermissionModerateMembers
	// PermissionMoveMembers gates voice-channel management.
	PermissionMoveMembers
)

// Has reports whether p contains all bits of required. Administrator
// implies everything.
func (p Permission) Has(required Permission) bool {
	if p&PermissionAdministrator != 0 {
		return true
	}
	return p&required == required
}

// Member is a user's membership in a guild.
type Member struct {
	UserID      ref.UserID
	DisplayName string
	Bot         bool
	Permissions Permission
	RoleIDs     []ref.RoleID

	// VoiceChannelID is the voice channel the member currently
	// occupies, zero when not in voice.
	VoiceChannelID ref.ChannelID
}

// Channel is a guild channel or category.
type Channel struct {
	ID       ref.ChannelID
	GuildID  ref.GuildID
	Name     string
	Topic    string
	Category bool

	// ParentID is the category containing this channel, zero for
	// top-level channels and categories.
	ParentID ref.ChannelID
}

// ChannelSpec describes a channel to create.
type ChannelSpec struct {
	Name     string
	Topic    string
	ParentID ref.ChannelID
}

// Attachment is a file sent alongside a message.
type Attachment struct {
	Filename string
	Data     []byte
}

// Outgoing is a message to send. Content is plain text; Attachments
// are optional.
type Outgoing struct {
	Content     string
	Attachments []Attachment
}

// Track is a resolved playable item for the voice subsystem. Source
// resolution and transcoding live behind collaborator interfaces;
// the core only moves these descriptors around.
type Track struct {
	Title       string
	URL         string
	StreamURL   string
	Duration    time.Duration
	RequestedBy ref.UserID
}

// TrackResolver turns a user query (search terms or a URL) into a
// playable Track. Implementations call external services and may be
// slow; callers run them off the event path.
type TrackResolver interface {
	ResolveTrack(ctx context.Context, query string) (Track, error)
}

// VoiceConn is an active voice-channel connection. Play blocks until
// the track finishes, Stop is called, or ctx is cancelled. Stop is
// safe to call concurrently with Play.
type VoiceConn interface {
	ChannelID() ref.ChannelID
	Play(ctx context.Context, track Track) error
	Stop()
	Disconnect(ctx context.Context) error
}

// Client is the platform capability surface. All methods take a
// context and return wrapped errors; callers treat any failure as an
// external failure (logged, surfaced generically, never assumed to
// have partially succeeded).
type Client interface {
	// SendMessage posts to a channel and returns the new message ID.
	SendMessage(ctx context.Context, channelID ref.ChannelID, msg Outgoing) (ref.MessageID, error)

	// FetchMember returns a guild member.
	FetchMember(ctx context.Context, guildID ref.GuildID, userID ref.UserID) (Member, error)

	// FetchChannel returns a channel by ID.
	FetchChannel(ctx context.Context, channelID ref.ChannelID) (Channel, error)

	// CreateChannel creates a channel in a guild.
	CreateChannel(ctx context.Context, guildID ref.GuildID, spec ChannelSpec) (Channel, error)

	// DeleteChannel removes a channel.
	DeleteChannel(ctx context.Context, channelID ref.ChannelID) error

	// GrantRole adds a role to a member.
	GrantRole(ctx context.Context, guildID ref.GuildID, userID ref.UserID, roleID ref.RoleID) error

	// RevokeRole removes a role from a member.
	RevokeRole(ctx context.Context, guildID ref.GuildID, userID ref.UserID, roleID ref.RoleID) error

	// GuildRoster returns the full member list of a guild.
	GuildRoster(ctx context.Context, guildID ref.GuildID) ([]Member, error)

	// Guilds returns the guilds the bot is currently a member of.
	Guilds(ctx context.Context) ([]ref.GuildID, error)

	// JoinVoice connects to a voice channel.
	JoinVoice(ctx context.Context, guildID ref.GuildID, channelID ref.ChannelID) (VoiceConn, error)
}
