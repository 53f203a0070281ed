// Copyright 2026 The Guildbot Authors
// SPDX-License-Identifier: Apache-2.0

// Package store persists guild state in SQLite.
//
// One database file holds everything guildbot remembers across
// restarts: member balances, experience, tickets, purpose bindings,
// user settings, and the dispatch journal. The schema is applied on
// open; every table that models per-member state carries a UNIQUE
// constraint on its natural key, and idempotent registration leans on
// that constraint rather than read-then-write.
//
// Numeric mutations (balance and experience changes) are relative SQL
// updates, never read-modify-write, so concurrent event handlers
// cannot lose increments.
package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"

	"github.com/guildbot-project/guildbot/lib/clock"
	"github.com/guildbot-project/guildbot/lib/sqlitepool"
	"github.com/guildbot-project/guildbot/ref"
)

// ErrEmptyResult is returned when a lookup or targeted mutation finds
// no matching record. Callers treat it as an expected outcome: command
// handlers turn it into a user-facing message, the reconciler into a
// registration.
var ErrEmptyResult = errors.New("store: empty result")

// ErrInsufficientFunds is returned by TransferBalance when the sender
// cannot cover the amount. Nothing is mutated.
var ErrInsufficientFunds = errors.New("store: insufficient funds")

// Store is the persisted record store. Safe for concurrent use.
type Store struct {
	pool   *sqlitepool.Pool
	clock  clock.Clock
	logger *slog.Logger
}

// Config holds the parameters for opening a store.
type Config struct {
	// Path is the SQLite database file. Required.
	Path string

	// PoolSize is passed through to the connection pool.
	PoolSize int

	// Clock provides timestamps for ticket and journal rows. Required.
	Clock clock.Clock

	// Logger receives operational messages. If nil, a no-op logger is
	// used.
	Logger *slog.Logger
}

// Open opens the database, applying the schema to every connection.
func Open(cfg Config) (*Store, error) {
	if cfg.Clock == nil {
		return nil, fmt.Errorf("store: Clock is required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	pool, err := sqlitepool.Open(sqlitepool.Config{
		Path:     cfg.Path,
		PoolSize: cfg.PoolSize,
		Logger:   logger,
		OnConnect: func(conn *sqlite.Conn) error {
			return sqlitex.ExecuteScript(conn, schema, nil)
		},
	})
	if err != nil {
		return nil, fmt.Errorf("store: %w", err)
	}

	return &Store{pool: pool, clock: cfg.Clock, logger: logger}, nil
}

// Close closes the underlying connection pool.
func (s *Store) Close() error {
	return s.pool.Close()
}

// EnsureGuild records a guild the bot has seen. Idempotent.
func (s *Store) EnsureGuild(ctx context.Context, guildID ref.GuildID) error {
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return fmt.Errorf("store: ensure guild: %w", err)
	}
	defer s.pool.Put(conn)

	err = sqlitex.Execute(conn, "INSERT OR IGNORE INTO guilds (guild_id) VALUES (?)", &sqlitex.ExecOptions{
		Args: []any{int64(guildID.Uint64())},
	})
	if err != nil {
		return fmt.Errorf("store: ensure guild %s: %w", guildID, err)
	}
	return nil
}

// Guilds returns every guild the store has seen.
func (s *Store) Guilds(ctx context.Context) ([]ref.GuildID, error) {
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return nil, fmt.Errorf("store: guilds: %w", err)
	}
	defer s.pool.Put(conn)

	var out []ref.GuildID
	err = sqlitex.Execute(conn, "SELECT guild_id FROM guilds ORDER BY guild_id", &sqlitex.ExecOptions{
		ResultFunc: func(stmt *sqlite.Stmt) error {
			out = append(out, ref.GuildIDFrom(uint64(stmt.ColumnInt64(0))))
			return nil
		},
	})
	if err != nil {
		return nil, fmt.Errorf("store: guilds: %w", err)
	}
	return out, nil
}

// deltaTargets is the allow-list for Delta. Relative updates touch
// exactly these numeric columns; anything else is a programming
// error.
var deltaTargets = map[string]string{
	"balances":      "balance",
	"member_levels": "experience",
}

// Delta applies a relative update to a member's numeric field:
// field = field + amount, in SQL, with no read. Returns ErrEmptyResult
// when the member has no row (the caller registers and retries).
func (s *Store) Delta(ctx context.Context, table string, memberID ref.UserID, guildID ref.GuildID, amount int64) error {
	field, ok := deltaTargets[table]
	if !ok {
		return fmt.Errorf("store: delta on unknown table %q", table)
	}

	conn, err := s.pool.Take(ctx)
	if err != nil {
		return fmt.Errorf("store: delta: %w", err)
	}
	defer s.pool.Put(conn)

	query := fmt.Sprintf("UPDATE %s SET %s = %s + ? WHERE member_id = ? AND guild_id = ?", table, field, field)
	err = sqlitex.Execute(conn, query, &sqlitex.ExecOptions{
		Args: []any{amount, int64(memberID.Uint64()), int64(guildID.Uint64())},
	})
	if err != nil {
		return fmt.Errorf("store: delta %s for %s in %s: %w", table, memberID, guildID, err)
	}
	if conn.Changes() == 0 {
		return ErrEmptyResult
	}
	return nil
}

// take borrows a connection with a consistent error prefix.
func (s *Store) take(ctx context.Context, op string) (*sqlite.Conn, error) {
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return nil, fmt.Errorf("store: %s: %w", op, err)
	}
	return conn, nil
}
