// Copyright 2026 The Guildbot Authors
// SPDX-License-Identifier: Apache-2.0

package store

// schema is applied to every connection on open. All statements are
// idempotent, so reopening an existing database is a no-op.
//
// Snowflake IDs are stored as INTEGER: they fit in a signed 64-bit
// value and integer keys index better than text.
const schema = `
	CREATE TABLE IF NOT EXISTS guilds (
		guild_id INTEGER PRIMARY KEY
	);

	CREATE TABLE IF NOT EXISTS balances (
		member_id INTEGER NOT NULL,
		guild_id  INTEGER NOT NULL REFERENCES guilds(guild_id),
		balance   INTEGER NOT NULL DEFAULT 0,
		active    INTEGER NOT NULL DEFAULT 1,
		UNIQUE(member_id, guild_id)
	);
	CREATE INDEX IF NOT EXISTS idx_balances_guild ON balances(guild_id, balance DESC);

	CREATE TABLE IF NOT EXISTS member_levels (
		member_id  INTEGER NOT NULL,
		guild_id   INTEGER NOT NULL REFERENCES guilds(guild_id),
		experience INTEGER NOT NULL DEFAULT 0,
		UNIQUE(member_id, guild_id)
	);
	CREATE INDEX IF NOT EXISTS idx_levels_guild ON member_levels(guild_id, experience DESC);

	CREATE TABLE IF NOT EXISTS tickets (
		id          INTEGER PRIMARY KEY AUTOINCREMENT,
		guild_id    INTEGER NOT NULL REFERENCES guilds(guild_id),
		member_id   INTEGER NOT NULL,
		description TEXT NOT NULL,
		status      TEXT NOT NULL CHECK(status IN ('open', 'closed')),
		channel_id  INTEGER,
		created_at  INTEGER NOT NULL,
		updated_at  INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_tickets_guild ON tickets(guild_id, status);

	CREATE TABLE IF NOT EXISTS purposed_objects (
		purpose_id TEXT    NOT NULL,
		object_id  INTEGER NOT NULL,
		guild_id   INTEGER NOT NULL,
		UNIQUE(purpose_id, object_id)
	);
	CREATE INDEX IF NOT EXISTS idx_purposed_guild ON purposed_objects(guild_id, purpose_id);

	CREATE TABLE IF NOT EXISTS user_settings (
		user_id    INTEGER NOT NULL,
		setting_id TEXT    NOT NULL,
		value      TEXT    NOT NULL,
		UNIQUE(user_id, setting_id)
	);

	CREATE TABLE IF NOT EXISTS dispatch_journal (
		dedupe_key BLOB    NOT NULL UNIQUE,
		kind       TEXT    NOT NULL,
		guild_id   INTEGER NOT NULL,
		payload    BLOB,
		created_at INTEGER NOT NULL
	);
`
