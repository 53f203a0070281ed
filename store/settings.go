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

// UpsertSetting inserts or replaces a user's setting value, keyed
// (user, setting).
func (s *Store) UpsertSetting(ctx context.Context, userID ref.UserID, settingID, value string) error {
	conn, err := s.take(ctx, "upsert setting")
	if err != nil {
		return err
	}
	defer s.pool.Put(conn)

	err = sqlitex.Execute(conn,
		`INSERT INTO user_settings (user_id, setting_id, value) VALUES (?, ?, ?)
		 ON CONFLICT(user_id, setting_id) DO UPDATE SET value = excluded.value`,
		&sqlitex.ExecOptions{
			Args: []any{int64(userID.Uint64()), settingID, value},
		})
	if err != nil {
		return fmt.Errorf("store: upsert setting %q for %s: %w", settingID, userID, err)
	}
	return nil
}

// GetSetting returns a user's setting value. ErrEmptyResult when the
// user never set it; callers apply their default.
func (s *Store) GetSetting(ctx context.Context, userID ref.UserID, settingID string) (string, error) {
	conn, err := s.take(ctx, "get setting")
	if err != nil {
		return "", err
	}
	defer s.pool.Put(conn)

	found := false
	var value string
	err = sqlitex.Execute(conn,
		"SELECT value FROM user_settings WHERE user_id = ? AND setting_id = ?",
		&sqlitex.ExecOptions{
			Args: []any{int64(userID.Uint64()), settingID},
			ResultFunc: func(stmt *sqlite.Stmt) error {
				found = true
				value = stmt.ColumnText(0)
				return nil
			},
		})
	if err != nil {
		return "", fmt.Errorf("store: get setting %q for %s: %w", settingID, userID, err)
	}
	if !found {
		return "", ErrEmptyResult
	}
	return value, nil
}
