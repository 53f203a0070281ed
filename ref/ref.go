// Copyright 2026 The Guildbot Authors
// SPDX-License-Identifier: Apache-2.0

// Package ref defines the typed identifiers used across guildbot.
//
// Every identifier is a distinct Go type over a snowflake, so a
// UserID can never be passed where a ChannelID is expected. The zero
// value of every type is invalid-but-safe: IsZero reports it, String
// renders "0", and store code treats it as absent.
//
// All types implement encoding.TextMarshaler / TextUnmarshaler so
// they round-trip through the CBOR codec, YAML config, and SQL text
// columns without custom glue.
package ref

import (
	"fmt"

	"github.com/disgoorg/snowflake/v2"
)

// GuildID identifies a guild (server).
type GuildID struct{ id snowflake.ID }

// UserID identifies a platform user.
type UserID struct{ id snowflake.ID }

// ChannelID identifies a channel or category.
type ChannelID struct{ id snowflake.ID }

// RoleID identifies a guild role.
type RoleID struct{ id snowflake.ID }

// MessageID identifies a message within a channel.
type MessageID struct{ id snowflake.ID }

// ParseGuildID parses a decimal snowflake string into a GuildID.
func ParseGuildID(raw string) (GuildID, error) {
	id, err := parseSnowflake(raw, "guild")
	return GuildID{id: id}, err
}

// ParseUserID parses a decimal snowflake string into a UserID.
func ParseUserID(raw string) (UserID, error) {
	id, err := parseSnowflake(raw, "user")
	return UserID{id: id}, err
}

// ParseChannelID parses a decimal snowflake string into a ChannelID.
func ParseChannelID(raw string) (ChannelID, error) {
	id, err := parseSnowflake(raw, "channel")
	return ChannelID{id: id}, err
}

// ParseRoleID parses a decimal snowflake string into a RoleID.
func ParseRoleID(raw string) (RoleID, error) {
	id, err := parseSnowflake(raw, "role")
	return RoleID{id: id}, err
}

// ParseMessageID parses a decimal snowflake string into a MessageID.
func ParseMessageID(raw string) (MessageID, error) {
	id, err := parseSnowflake(raw, "message")
	return MessageID{id: id}, err
}

func parseSnowflake(raw, kind string) (snowflake.ID, error) {
	if raw == "" {
		return 0, fmt.Errorf("ref: empty %s ID", kind)
	}
	id, err := snowflake.Parse(raw)
	if err != nil {
		return 0, fmt.Errorf("ref: invalid %s ID %q: %w", kind, raw, err)
	}
	return id, nil
}

// GuildIDFrom wraps a raw snowflake value. Used by transport adapters
// and test fixtures; application code should carry typed IDs.
func GuildIDFrom(raw uint64) GuildID { return GuildID{id: snowflake.ID(raw)} }

// UserIDFrom wraps a raw snowflake value.
func UserIDFrom(raw uint64) UserID { return UserID{id: snowflake.ID(raw)} }

// ChannelIDFrom wraps a raw snowflake value.
func ChannelIDFrom(raw uint64) ChannelID { return ChannelID{id: snowflake.ID(raw)} }

// RoleIDFrom wraps a raw snowflake value.
func RoleIDFrom(raw uint64) RoleID { return RoleID{id: snowflake.ID(raw)} }

// MessageIDFrom wraps a raw snowflake value.
func MessageIDFrom(raw uint64) MessageID { return MessageID{id: snowflake.ID(raw)} }

func (g GuildID) String() string   { return g.id.String() }
func (u UserID) String() string    { return u.id.String() }
func (c ChannelID) String() string { return c.id.String() }
func (r RoleID) String() string    { return r.id.String() }
func (m MessageID) String() string { return m.id.String() }

func (g GuildID) IsZero() bool   { return g.id == 0 }
func (u UserID) IsZero() bool    { return u.id == 0 }
func (c ChannelID) IsZero() bool { return c.id == 0 }
func (r RoleID) IsZero() bool    { return r.id == 0 }
func (m MessageID) IsZero() bool { return m.id == 0 }

// Uint64 returns the raw snowflake value, for storage as an SQL
// integer column.
func (g GuildID) Uint64() uint64   { return uint64(g.id) }
func (u UserID) Uint64() uint64    { return uint64(u.id) }
func (c ChannelID) Uint64() uint64 { return uint64(c.id) }
func (r RoleID) Uint64() uint64    { return uint64(r.id) }
func (m MessageID) Uint64() uint64 { return uint64(m.id) }

func (g GuildID) MarshalText() ([]byte, error)   { return []byte(g.String()), nil }
func (u UserID) MarshalText() ([]byte, error)    { return []byte(u.String()), nil }
func (c ChannelID) MarshalText() ([]byte, error) { return []byte(c.String()), nil }
func (r RoleID) MarshalText() ([]byte, error)    { return []byte(r.String()), nil }
func (m MessageID) MarshalText() ([]byte, error) { return []byte(m.String()), nil }

func (g *GuildID) UnmarshalText(data []byte) error {
	parsed, err := ParseGuildID(string(data))
	if err != nil {
		return err
	}
	*g = parsed
	return nil
}

func (u *UserID) UnmarshalText(data []byte) error {
	parsed, err := ParseUserID(string(data))
	if err != nil {
		return err
	}
	*u = parsed
	return nil
}

func (c *ChannelID) UnmarshalText(data []byte) error {
	parsed, err := ParseChannelID(string(data))
	if err != nil {
		return err
	}
	*c = parsed
	return nil
}

func (r *RoleID) UnmarshalText(data []byte) error {
	parsed, err := ParseRoleID(string(data))
	if err != nil {
		return err
	}
	*r = parsed
	return nil
}

func (m *MessageID) UnmarshalText(data []byte) error {
	parsed, err := ParseMessageID(string(data))
	if err != nil {
		return err
	}
	*m = parsed
	return nil
}
