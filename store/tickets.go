// Copyright 2026 The Guildbot Authors
// SPDX-License-Identifier: Apache-2.0

package store

import (
	"context"
	"fmt"
	"time"

	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"

	"github.com/guildbot-project/guildbot/ref"
)

// TicketStatus is a ticket's lifecycle state. A ticket with no row is
// absent; the workflow in the ticket package enforces which
// transitions are legal.
type TicketStatus string

const (
	TicketOpen   TicketStatus = "open"
	TicketClosed TicketStatus = "closed"
)

// Ticket is one support ticket record.
type Ticket struct {
	ID          int64
	GuildID     ref.GuildID
	MemberID    ref.UserID
	Description string
	Status      TicketStatus
	ChannelID   ref.ChannelID
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// CreateTicket inserts an open ticket and returns its assigned ID.
func (s *Store) CreateTicket(ctx context.Context, guildID ref.GuildID, memberID ref.UserID, description string) (int64, error) {
	conn, err := s.take(ctx, "create ticket")
	if err != nil {
		return 0, err
	}
	defer s.pool.Put(conn)

	now := s.clock.Now().Unix()
	err = sqlitex.Execute(conn,
		`INSERT INTO tickets (guild_id, member_id, description, status, created_at, updated_at)
		 VALUES (?, ?, ?, 'open', ?, ?)`,
		&sqlitex.ExecOptions{
			Args: []any{int64(guildID.Uint64()), int64(memberID.Uint64()), description, now, now},
		})
	if err != nil {
		return 0, fmt.Errorf("store: create ticket in %s: %w", guildID, err)
	}
	return conn.LastInsertRowID(), nil
}

// GetTicket returns a ticket by ID within a guild. ErrEmptyResult
// when no such ticket exists. The guild scope keeps one guild's
// moderators from touching another guild's tickets.
func (s *Store) GetTicket(ctx context.Context, guildID ref.GuildID, id int64) (Ticket, error) {
	conn, err := s.take(ctx, "get ticket")
	if err != nil {
		return Ticket{}, err
	}
	defer s.pool.Put(conn)

	found := false
	var ticket Ticket
	err = sqlitex.Execute(conn,
		`SELECT id, guild_id, member_id, description, status, channel_id, created_at, updated_at
		 FROM tickets WHERE id = ? AND guild_id = ?`,
		&sqlitex.ExecOptions{
			Args: []any{id, int64(guildID.Uint64())},
			ResultFunc: func(stmt *sqlite.Stmt) error {
				found = true
				ticket = scanTicket(stmt)
				return nil
			},
		})
	if err != nil {
		return Ticket{}, fmt.Errorf("store: get ticket %d in %s: %w", id, guildID, err)
	}
	if !found {
		return Ticket{}, ErrEmptyResult
	}
	return ticket, nil
}

// OpenTicketFor returns the member's open ticket in a guild, if any.
// Used to make opening a ticket idempotent per member.
func (s *Store) OpenTicketFor(ctx context.Context, guildID ref.GuildID, memberID ref.UserID) (Ticket, error) {
	conn, err := s.take(ctx, "open ticket for")
	if err != nil {
		return Ticket{}, err
	}
	defer s.pool.Put(conn)

	found := false
	var ticket Ticket
	err = sqlitex.Execute(conn,
		`SELECT id, guild_id, member_id, description, status, channel_id, created_at, updated_at
		 FROM tickets WHERE guild_id = ? AND member_id = ? AND status = 'open'`,
		&sqlitex.ExecOptions{
			Args: []any{int64(guildID.Uint64()), int64(memberID.Uint64())},
			ResultFunc: func(stmt *sqlite.Stmt) error {
				found = true
				ticket = scanTicket(stmt)
				return nil
			},
		})
	if err != nil {
		return Ticket{}, fmt.Errorf("store: open ticket for %s in %s: %w", memberID, guildID, err)
	}
	if !found {
		return Ticket{}, ErrEmptyResult
	}
	return ticket, nil
}

// SetTicketStatus updates a ticket's status and channel binding.
// ErrEmptyResult when the ticket does not exist.
func (s *Store) SetTicketStatus(ctx context.Context, guildID ref.GuildID, id int64, status TicketStatus, channelID ref.ChannelID) error {
	conn, err := s.take(ctx, "set ticket status")
	if err != nil {
		return err
	}
	defer s.pool.Put(conn)

	var channel any
	if !channelID.IsZero() {
		channel = int64(channelID.Uint64())
	}
	err = sqlitex.Execute(conn,
		"UPDATE tickets SET status = ?, channel_id = ?, updated_at = ? WHERE id = ? AND guild_id = ?",
		&sqlitex.ExecOptions{
			Args: []any{string(status), channel, s.clock.Now().Unix(), id, int64(guildID.Uint64())},
		})
	if err != nil {
		return fmt.Errorf("store: set ticket %d status in %s: %w", id, guildID, err)
	}
	if conn.Changes() == 0 {
		return ErrEmptyResult
	}
	return nil
}

// ListTickets returns a guild's tickets with the given status, newest
// first.
func (s *Store) ListTickets(ctx context.Context, guildID ref.GuildID, status TicketStatus) ([]Ticket, error) {
	conn, err := s.take(ctx, "list tickets")
	if err != nil {
		return nil, err
	}
	defer s.pool.Put(conn)

	var out []Ticket
	err = sqlitex.Execute(conn,
		`SELECT id, guild_id, member_id, description, status, channel_id, created_at, updated_at
		 FROM tickets WHERE guild_id = ? AND status = ? ORDER BY id DESC`,
		&sqlitex.ExecOptions{
			Args: []any{int64(guildID.Uint64()), string(status)},
			ResultFunc: func(stmt *sqlite.Stmt) error {
				out = append(out, scanTicket(stmt))
				return nil
			},
		})
	if err != nil {
		return nil, fmt.Errorf("store: list tickets in %s: %w", guildID, err)
	}
	return out, nil
}

func scanTicket(stmt *sqlite.Stmt) Ticket {
	ticket := Ticket{
		ID:          stmt.ColumnInt64(0),
		GuildID:     ref.GuildIDFrom(uint64(stmt.ColumnInt64(1))),
		MemberID:    ref.UserIDFrom(uint64(stmt.ColumnInt64(2))),
		Description: stmt.ColumnText(3),
		Status:      TicketStatus(stmt.ColumnText(4)),
		CreatedAt:   time.Unix(stmt.ColumnInt64(6), 0),
		UpdatedAt:   time.Unix(stmt.ColumnInt64(7), 0),
	}
	if !stmt.ColumnIsNull(5) {
		ticket.ChannelID = ref.ChannelIDFrom(uint64(stmt.ColumnInt64(5)))
	}
	return ticket
}
