// Copyright 2026 The Guildbot Authors
// SPDX-License-Identifier: Apache-2.0

package store

import (
	"context"
	"fmt"

	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"

	"github.com/guildbot-project/guildbot/ref"
)

// LevelRecord is one member's experience record in one guild.
type LevelRecord struct {
	MemberID   ref.UserID
	GuildID    ref.GuildID
	Experience int64
}

// GetExperience returns a member's experience record. ErrEmptyResult
// when the member is not registered.
func (s *Store) GetExperience(ctx context.Context, memberID ref.UserID, guildID ref.GuildID) (LevelRecord, error) {
	conn, err := s.take(ctx, "get experience")
	if err != nil {
		return LevelRecord{}, err
	}
	defer s.pool.Put(conn)

	found := false
	rec := LevelRecord{MemberID: memberID, GuildID: guildID}
	err = sqlitex.Execute(conn,
		"SELECT experience FROM member_levels WHERE member_id = ? AND guild_id = ?",
		&sqlitex.ExecOptions{
			Args: []any{int64(memberID.Uint64()), int64(guildID.Uint64())},
			ResultFunc: func(stmt *sqlite.Stmt) error {
				found = true
				rec.Experience = stmt.ColumnInt64(0)
				return nil
			},
		})
	if err != nil {
		return LevelRecord{}, fmt.Errorf("store: get experience for %s in %s: %w", memberID, guildID, err)
	}
	if !found {
		return LevelRecord{}, ErrEmptyResult
	}
	return rec, nil
}

// InsertLevelIfAbsent creates a zero-experience record for the member
// if none exists. Returns true when a row was inserted.
func (s *Store) InsertLevelIfAbsent(ctx context.Context, memberID ref.UserID, guildID ref.GuildID) (bool, error) {
	conn, err := s.take(ctx, "insert level")
	if err != nil {
		return false, err
	}
	defer s.pool.Put(conn)

	err = sqlitex.Execute(conn,
		"INSERT OR IGNORE INTO member_levels (member_id, guild_id, experience) VALUES (?, ?, 0)",
		&sqlitex.ExecOptions{
			Args: []any{int64(memberID.Uint64()), int64(guildID.Uint64())},
		})
	if err != nil {
		return false, fmt.Errorf("store: insert level for %s in %s: %w", memberID, guildID, err)
	}
	return conn.Changes() > 0, nil
}

// SetExperience overwrites a member's experience, for rank
// administration. ErrEmptyResult when the member is not registered.
func (s *Store) SetExperience(ctx context.Context, memberID ref.UserID, guildID ref.GuildID, experience int64) error {
	conn, err := s.take(ctx, "set experience")
	if err != nil {
		return err
	}
	defer s.pool.Put(conn)

	err = sqlitex.Execute(conn,
		"UPDATE member_levels SET experience = ? WHERE member_id = ? AND guild_id = ?",
		&sqlitex.ExecOptions{
			Args: []any{experience, int64(memberID.Uint64()), int64(guildID.Uint64())},
		})
	if err != nil {
		return fmt.Errorf("store: set experience for %s in %s: %w", memberID, guildID, err)
	}
	if conn.Changes() == 0 {
		return ErrEmptyResult
	}
	return nil
}

// DeleteLevel removes a member's experience record, when they leave
// the guild. Deleting an absent record is a no-op.
func (s *Store) DeleteLevel(ctx context.Context, memberID ref.UserID, guildID ref.GuildID) error {
	conn, err := s.take(ctx, "delete level")
	if err != nil {
		return err
	}
	defer s.pool.Put(conn)

	err = sqlitex.Execute(conn,
		"DELETE FROM member_levels WHERE member_id = ? AND guild_id = ?",
		&sqlitex.ExecOptions{
			Args: []any{int64(memberID.Uint64()), int64(guildID.Uint64())},
		})
	if err != nil {
		return fmt.Errorf("store: delete level for %s in %s: %w", memberID, guildID, err)
	}
	return nil
}

// TopExperience returns a guild's members ordered by experience,
// highest first, for the scoreboard.
func (s *Store) TopExperience(ctx context.Context, guildID ref.GuildID, limit int) ([]LevelRecord, error) {
	conn, err := s.take(ctx, "top experience")
	if err != nil {
		return nil, err
	}
	defer s.pool.Put(conn)

	if limit <= 0 {
		limit = 10
	}

	var out []LevelRecord
	err = sqlitex.Execute(conn,
		"SELECT member_id, experience FROM member_levels WHERE guild_id = ? ORDER BY experience DESC LIMIT ?",
		&sqlitex.ExecOptions{
			Args: []any{int64(guildID.Uint64()), limit},
			ResultFunc: func(stmt *sqlite.Stmt) error {
				out = append(out, LevelRecord{
					MemberID:   ref.UserIDFrom(uint64(stmt.ColumnInt64(0))),
					GuildID:    guildID,
					Experience: stmt.ColumnInt64(1),
				})
				return nil
			},
		})
	if err != nil {
		return nil, fmt.Errorf("store: top experience in %s: %w", guildID, err)
	}
	return out, nil
}

// RegisteredMembers returns the member IDs with a level record in a
// guild, for rank administration sweeps.
func (s *Store) RegisteredMembers(ctx context.Context, guildID ref.GuildID) ([]ref.UserID, error) {
	conn, err := s.take(ctx, "registered members")
	if err != nil {
		return nil, err
	}
	defer s.pool.Put(conn)

	var out []ref.UserID
	err = sqlitex.Execute(conn,
		"SELECT member_id FROM member_levels WHERE guild_id = ?",
		&sqlitex.ExecOptions{
			Args: []any{int64(guildID.Uint64())},
			ResultFunc: func(stmt *sqlite.Stmt) error {
				out = append(out, ref.UserIDFrom(uint64(stmt.ColumnInt64(0))))
				return nil
			},
		})
	if err != nil {
		return nil, fmt.Errorf("store: registered members in %s: %w", guildID, err)
	}
	return out, nil
}
