// Copyright 2026 The Guildbot Authors
// SPDX-License-Identifier: Apache-2.0

package platform

import (
	"time"

	"github.com/guildbot-project/guildbot/ref"
)

// EventKind discriminates the variants of [Event].
type EventKind string

// The gateway event kinds guildbot consumes. The transport adapter
// maps whatever the wire protocol delivers onto these.
const (
	EventMessageCreated EventKind = "message-created"
	EventMessageEdited  EventKind = "message-edited"
	EventMessageDeleted EventKind = "message-deleted"
	EventMemberJoined   EventKind = "member-joined"
	EventMemberLeft     EventKind = "member-left"
	EventMemberUpdated  EventKind = "member-updated"
	EventReactionAdded  EventKind = "reaction-added"
	EventReady          EventKind = "ready"
	EventGuildJoined    EventKind = "guild-joined"
	EventGuildLeft      EventKind = "guild-left"
)

// Event is one inbound gateway notification. Exactly one payload
// pointer is non-nil, matching Kind. Events are immutable after
// construction: handlers receive the same value and must never
// modify payload contents.
//
// GuildID is zero for global events (ready). ActorID is the user the
// event is about — the message author, the joining member, the
// reacting user. Zero when no single user applies.
type Event struct {
	Kind    EventKind
	GuildID ref.GuildID
	ActorID ref.UserID

	// ActorIsBot is set when the transport knows the actor is an
	// automated account. Most handlers skip bot actors.
	ActorIsBot bool

	Message  *MessagePayload
	Member   *MemberPayload
	Reaction *ReactionPayload
}

// MessagePayload carries message event data. For edits, Previous
// holds the content before the edit when the transport caches it.
type MessagePayload struct {
	ChannelID ref.ChannelID
	MessageID ref.MessageID
	Content   string
	Previous  string
	SentAt    time.Time
}

// MemberPayload carries member event data.
type MemberPayload struct {
	Member Member
}

// ReactionPayload carries reaction event data.
type ReactionPayload struct {
	ChannelID ref.ChannelID
	MessageID ref.MessageID
	Emoji     string
}
