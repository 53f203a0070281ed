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

// Balance is one member's economy record in one guild.
type Balance struct {
	MemberID ref.UserID
	GuildID  ref.GuildID
	Amount   int64
	Active   bool
}

// GetBalance returns a member's balance record. ErrEmptyResult when
// the member is not registered.
func (s *Store) GetBalance(ctx context.Context, memberID ref.UserID, guildID ref.GuildID) (Balance, error) {
	conn, err := s.take(ctx, "get balance")
	if err != nil {
		return Balance{}, err
	}
	defer s.pool.Put(conn)

	found := false
	bal := Balance{MemberID: memberID, GuildID: guildID}
	err = sqlitex.Execute(conn,
		"SELECT balance, active FROM balances WHERE member_id = ? AND guild_id = ?",
		&sqlitex.ExecOptions{
			Args: []any{int64(memberID.Uint64()), int64(guildID.Uint64())},
			ResultFunc: func(stmt *sqlite.Stmt) error {
				found = true
				bal.Amount = stmt.ColumnInt64(0)
				bal.Active = stmt.ColumnInt64(1) != 0
				return nil
			},
		})
	if err != nil {
		return Balance{}, fmt.Errorf("store: get balance for %s in %s: %w", memberID, guildID, err)
	}
	if !found {
		return Balance{}, ErrEmptyResult
	}
	return bal, nil
}

// InsertBalanceIfAbsent creates a zero balance for the member if none
// exists. Returns true when a row was inserted. Concurrent calls for
// the same member yield exactly one row; the losers observe a no-op.
func (s *Store) InsertBalanceIfAbsent(ctx context.Context, memberID ref.UserID, guildID ref.GuildID) (bool, error) {
	conn, err := s.take(ctx, "insert balance")
	if err != nil {
		return false, err
	}
	defer s.pool.Put(conn)

	err = sqlitex.Execute(conn,
		"INSERT OR IGNORE INTO balances (member_id, guild_id, balance, active) VALUES (?, ?, 0, 1)",
		&sqlitex.ExecOptions{
			Args: []any{int64(memberID.Uint64()), int64(guildID.Uint64())},
		})
	if err != nil {
		return false, fmt.Errorf("store: insert balance for %s in %s: %w", memberID, guildID, err)
	}
	return conn.Changes() > 0, nil
}

// SetBalanceActive flips the member's active flag, used when a member
// leaves (deactivate) or returns (reactivate). ErrEmptyResult when the
// member was never registered.
func (s *Store) SetBalanceActive(ctx context.Context, memberID ref.UserID, guildID ref.GuildID, active bool) error {
	conn, err := s.take(ctx, "set balance active")
	if err != nil {
		return err
	}
	defer s.pool.Put(conn)

	activeInt := 0
	if active {
		activeInt = 1
	}
	err = sqlitex.Execute(conn,
		"UPDATE balances SET active = ? WHERE member_id = ? AND guild_id = ?",
		&sqlitex.ExecOptions{
			Args: []any{activeInt, int64(memberID.Uint64()), int64(guildID.Uint64())},
		})
	if err != nil {
		return fmt.Errorf("store: set balance active for %s in %s: %w", memberID, guildID, err)
	}
	if conn.Changes() == 0 {
		return ErrEmptyResult
	}
	return nil
}

// InactiveMembers returns the member IDs marked inactive in a guild.
// The reconciler uses this to reactivate members who rejoined while
// the bot was offline.
func (s *Store) InactiveMembers(ctx context.Context, guildID ref.GuildID) ([]ref.UserID, error) {
	conn, err := s.take(ctx, "inactive members")
	if err != nil {
		return nil, err
	}
	defer s.pool.Put(conn)

	var out []ref.UserID
	err = sqlitex.Execute(conn,
		"SELECT member_id FROM balances WHERE guild_id = ? AND active = 0",
		&sqlitex.ExecOptions{
			Args: []any{int64(guildID.Uint64())},
			ResultFunc: func(stmt *sqlite.Stmt) error {
				out = append(out, ref.UserIDFrom(uint64(stmt.ColumnInt64(0))))
				return nil
			},
		})
	if err != nil {
		return nil, fmt.Errorf("store: inactive members in %s: %w", guildID, err)
	}
	return out, nil
}

// TransferBalance moves amount from one member to another in a single
// transaction. Fails with ErrEmptyResult if either party has no
// record, and with ErrInsufficientFunds if the sender's balance would
// go negative.
func (s *Store) TransferBalance(ctx context.Context, from, to ref.UserID, guildID ref.GuildID, amount int64) (err error) {
	if amount <= 0 {
		return fmt.Errorf("store: transfer amount must be positive, got %d", amount)
	}

	conn, err := s.take(ctx, "transfer balance")
	if err != nil {
		return err
	}
	defer s.pool.Put(conn)

	endTransaction, err := sqlitex.ImmediateTransaction(conn)
	if err != nil {
		return fmt.Errorf("store: transfer: begin transaction: %w", err)
	}
	defer endTransaction(&err)

	guild := int64(guildID.Uint64())

	// Debit only succeeds when the sender can cover the amount; the
	// condition and the update are one statement, so two concurrent
	// transfers cannot both spend the same funds.
	err = sqlitex.Execute(conn,
		"UPDATE balances SET balance = balance - ? WHERE member_id = ? AND guild_id = ? AND balance >= ?",
		&sqlitex.ExecOptions{
			Args: []any{amount, int64(from.Uint64()), guild, amount},
		})
	if err != nil {
		return fmt.Errorf("store: transfer debit: %w", err)
	}
	if conn.Changes() == 0 {
		// Distinguish "no record" from "not enough funds".
		exists := false
		err = sqlitex.Execute(conn,
			"SELECT 1 FROM balances WHERE member_id = ? AND guild_id = ?",
			&sqlitex.ExecOptions{
				Args:       []any{int64(from.Uint64()), guild},
				ResultFunc: func(*sqlite.Stmt) error { exists = true; return nil },
			})
		if err != nil {
			return fmt.Errorf("store: transfer debit check: %w", err)
		}
		if !exists {
			return ErrEmptyResult
		}
		return ErrInsufficientFunds
	}

	err = sqlitex.Execute(conn,
		"UPDATE balances SET balance = balance + ? WHERE member_id = ? AND guild_id = ?",
		&sqlitex.ExecOptions{
			Args: []any{amount, int64(to.Uint64()), guild},
		})
	if err != nil {
		return fmt.Errorf("store: transfer credit: %w", err)
	}
	if conn.Changes() == 0 {
		err = ErrEmptyResult
		return err
	}
	return nil
}

// TopBalances returns a guild's active members ordered by balance,
// highest first.
func (s *Store) TopBalances(ctx context.Context, guildID ref.GuildID, limit int) ([]Balance, error) {
	conn, err := s.take(ctx, "top balances")
	if err != nil {
		return nil, err
	}
	defer s.pool.Put(conn)

	if limit <= 0 {
		limit = 10
	}

	var out []Balance
	err = sqlitex.Execute(conn,
		"SELECT member_id, balance, active FROM balances WHERE guild_id = ? AND active = 1 ORDER BY balance DESC LIMIT ?",
		&sqlitex.ExecOptions{
			Args: []any{int64(guildID.Uint64()), limit},
			ResultFunc: func(stmt *sqlite.Stmt) error {
				out = append(out, Balance{
					MemberID: ref.UserIDFrom(uint64(stmt.ColumnInt64(0))),
					GuildID:  guildID,
					Amount:   stmt.ColumnInt64(1),
					Active:   stmt.ColumnInt64(2) != 0,
				})
				return nil
			},
		})
	if err != nil {
		return nil, fmt.Errorf("store: top balances in %s: %w", guildID, err)
	}
	return out, nil
}
