// Copyright 2026 The Guildbot Authors
// SPDX-License-Identifier: Apache-2.0

package store

import (
	"context"
	"fmt"

	"github.com/zeebo/blake3"
	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"

	"github.com/guildbot-project/guildbot/lib/codec"
	"github.com/guildbot-project/guildbot/ref"
)

// DedupeKey derives the journal identity of one dispatched event. The
// same event replayed after a reconnect hashes to the same key, so
// the UNIQUE constraint on dispatch_journal rejects the duplicate.
// The hash covers the event kind, the acting IDs, and the payload.
func DedupeKey(kind string, guildID ref.GuildID, actorID ref.UserID, payload []byte) []byte {
	h := blake3.New()
	h.Write([]byte(kind))
	h.Write([]byte{0})
	h.Write([]byte(guildID.String()))
	h.Write([]byte{0})
	h.Write([]byte(actorID.String()))
	h.Write([]byte{0})
	h.Write(payload)
	return h.Sum(nil)
}

// JournalEntry is the decoded payload stored with a journal row.
type JournalEntry struct {
	Kind      string        `cbor:"kind"`
	GuildID   ref.GuildID   `cbor:"guild_id"`
	ActorID   ref.UserID    `cbor:"actor_id"`
	MessageID ref.MessageID `cbor:"message_id,omitempty"`
}

// RecordDispatch journals an event by dedupe key. Returns true when
// the event is new and the caller should apply its effects; false
// when an identical event was already journaled (a replay).
func (s *Store) RecordDispatch(ctx context.Context, dedupeKey []byte, kind string, guildID ref.GuildID, entry JournalEntry) (bool, error) {
	payload, err := codec.Marshal(entry)
	if err != nil {
		return false, fmt.Errorf("store: encode journal entry: %w", err)
	}

	conn, err := s.take(ctx, "record dispatch")
	if err != nil {
		return false, err
	}
	defer s.pool.Put(conn)

	err = sqlitex.Execute(conn,
		"INSERT OR IGNORE INTO dispatch_journal (dedupe_key, kind, guild_id, payload, created_at) VALUES (?, ?, ?, ?, ?)",
		&sqlitex.ExecOptions{
			Args: []any{dedupeKey, kind, int64(guildID.Uint64()), payload, s.clock.Now().Unix()},
		})
	if err != nil {
		return false, fmt.Errorf("store: record dispatch %q in %s: %w", kind, guildID, err)
	}
	return conn.Changes() > 0, nil
}

// PruneJournal deletes journal rows older than the cutoff (Unix
// seconds) and returns how many were removed. The journal only needs
// to cover the replay window of a reconnect, not forever.
func (s *Store) PruneJournal(ctx context.Context, cutoff int64) (int, error) {
	conn, err := s.take(ctx, "prune journal")
	if err != nil {
		return 0, err
	}
	defer s.pool.Put(conn)

	err = sqlitex.Execute(conn,
		"DELETE FROM dispatch_journal WHERE created_at < ?",
		&sqlitex.ExecOptions{Args: []any{cutoff}},
	)
	if err != nil {
		return 0, fmt.Errorf("store: prune journal: %w", err)
	}
	return conn.Changes(), nil
}

// JournalSize returns the number of journal rows, for operational
// visibility.
func (s *Store) JournalSize(ctx context.Context) (int64, error) {
	conn, err := s.take(ctx, "journal size")
	if err != nil {
		return 0, err
	}
	defer s.pool.Put(conn)

	var count int64
	err = sqlitex.Execute(conn, "SELECT COUNT(*) FROM dispatch_journal", &sqlitex.ExecOptions{
		ResultFunc: func(stmt *sqlite.Stmt) error {
			count = stmt.ColumnInt64(0)
			return nil
		},
	})
	if err != nil {
		return 0, fmt.Errorf("store: journal size: %w", err)
	}
	return count, nil
}
