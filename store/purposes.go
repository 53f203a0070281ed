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

// Binding assigns a purpose to a platform object (channel, category,
// or role) within a guild.
type Binding struct {
	PurposeID string
	ObjectID  uint64
	GuildID   ref.GuildID
}

// BindPurpose records a purpose binding. Binding the same object to
// the same purpose twice is a no-op; returns true when a new binding
// was created.
func (s *Store) BindPurpose(ctx context.Context, purposeID string, objectID uint64, guildID ref.GuildID) (bool, error) {
	conn, err := s.take(ctx, "bind purpose")
	if err != nil {
		return false, err
	}
	defer s.pool.Put(conn)

	err = sqlitex.Execute(conn,
		"INSERT OR IGNORE INTO purposed_objects (purpose_id, object_id, guild_id) VALUES (?, ?, ?)",
		&sqlitex.ExecOptions{
			Args: []any{purposeID, int64(objectID), int64(guildID.Uint64())},
		})
	if err != nil {
		return false, fmt.Errorf("store: bind purpose %q to %d in %s: %w", purposeID, objectID, guildID, err)
	}
	return conn.Changes() > 0, nil
}

// UnbindPurpose removes a purpose binding. ErrEmptyResult when no
// such binding exists.
func (s *Store) UnbindPurpose(ctx context.Context, purposeID string, objectID uint64) error {
	conn, err := s.take(ctx, "unbind purpose")
	if err != nil {
		return err
	}
	defer s.pool.Put(conn)

	err = sqlitex.Execute(conn,
		"DELETE FROM purposed_objects WHERE purpose_id = ? AND object_id = ?",
		&sqlitex.ExecOptions{
			Args: []any{purposeID, int64(objectID)},
		})
	if err != nil {
		return fmt.Errorf("store: unbind purpose %q from %d: %w", purposeID, objectID, err)
	}
	if conn.Changes() == 0 {
		return ErrEmptyResult
	}
	return nil
}

// ListBindings returns a guild's purpose bindings ordered by purpose.
func (s *Store) ListBindings(ctx context.Context, guildID ref.GuildID) ([]Binding, error) {
	conn, err := s.take(ctx, "list bindings")
	if err != nil {
		return nil, err
	}
	defer s.pool.Put(conn)

	var out []Binding
	err = sqlitex.Execute(conn,
		"SELECT purpose_id, object_id FROM purposed_objects WHERE guild_id = ? ORDER BY purpose_id, object_id",
		&sqlitex.ExecOptions{
			Args: []any{int64(guildID.Uint64())},
			ResultFunc: func(stmt *sqlite.Stmt) error {
				out = append(out, Binding{
					PurposeID: stmt.ColumnText(0),
					ObjectID:  uint64(stmt.ColumnInt64(1)),
					GuildID:   guildID,
				})
				return nil
			},
		})
	if err != nil {
		return nil, fmt.Errorf("store: list bindings in %s: %w", guildID, err)
	}
	return out, nil
}

// ResolveBindings returns the objects bound to a purpose in a guild.
// An unbound purpose yields an empty slice, not an error; callers
// that require a binding treat empty as ErrEmptyResult.
func (s *Store) ResolveBindings(ctx context.Context, guildID ref.GuildID, purposeID string) ([]uint64, error) {
	conn, err := s.take(ctx, "resolve bindings")
	if err != nil {
		return nil, err
	}
	defer s.pool.Put(conn)

	var out []uint64
	err = sqlitex.Execute(conn,
		"SELECT object_id FROM purposed_objects WHERE guild_id = ? AND purpose_id = ? ORDER BY object_id",
		&sqlitex.ExecOptions{
			Args: []any{int64(guildID.Uint64()), purposeID},
			ResultFunc: func(stmt *sqlite.Stmt) error {
				out = append(out, uint64(stmt.ColumnInt64(0)))
				return nil
			},
		})
	if err != nil {
		return nil, fmt.Errorf("store: resolve purpose %q in %s: %w", purposeID, guildID, err)
	}
	return out, nil
}

// BindingsForPurpose returns every binding for a purpose across all
// guilds, for broadcasts to every bot-logs channel.
func (s *Store) BindingsForPurpose(ctx context.Context, purposeID string) ([]Binding, error) {
	conn, err := s.take(ctx, "bindings for purpose")
	if err != nil {
		return nil, err
	}
	defer s.pool.Put(conn)

	var out []Binding
	err = sqlitex.Execute(conn,
		"SELECT object_id, guild_id FROM purposed_objects WHERE purpose_id = ? ORDER BY guild_id, object_id",
		&sqlitex.ExecOptions{
			Args: []any{purposeID},
			ResultFunc: func(stmt *sqlite.Stmt) error {
				out = append(out, Binding{
					PurposeID: purposeID,
					ObjectID:  uint64(stmt.ColumnInt64(0)),
					GuildID:   ref.GuildIDFrom(uint64(stmt.ColumnInt64(1))),
				})
				return nil
			},
		})
	if err != nil {
		return nil, fmt.Errorf("store: bindings for purpose %q: %w", purposeID, err)
	}
	return out, nil
}
