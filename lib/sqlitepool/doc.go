// Copyright 2026 The Guildbot Authors
// SPDX-License-Identifier: Apache-2.0

// Package sqlitepool provides guildbot's SQLite connection pool.
//
// The record store keeps all persisted guild state (balances, levels,
// tickets, purpose bindings, the dispatch journal) in one SQLite file.
// This package wraps zombiezen.com/go/sqlite with the defaults that
// workload needs: WAL journal mode so event handlers can read while a
// write is in flight, NORMAL synchronous for process-crash durability
// without fsync-per-commit overhead, and a busy timeout so concurrent
// writers queue instead of failing.
//
// The pool is built on zombiezen's sqlitex.Pool, which manages a
// fixed-size set of connections. Callers [Pool.Take] a connection,
// perform work, and [Pool.Put] it back. Connections are NOT safe for
// concurrent use — each goroutine must hold its own connection for the
// duration of its work.
//
// # Pragmas
//
// Every connection in the pool is initialized with these pragmas:
//
//   - journal_mode=WAL: write-ahead logging for concurrent readers and
//     a single writer.
//   - synchronous=NORMAL: transactions survive process crashes.
//   - busy_timeout=5000: wait up to 5 seconds for a write lock instead
//     of returning SQLITE_BUSY immediately. Event bursts (a busy guild)
//     can pile several balance and experience writes onto one file.
//   - foreign_keys=ON: ticket rows reference guild rows; SQLite
//     enforces it.
//   - temp_store=MEMORY: temporary tables and indexes in memory.
//
// # Usage
//
//	pool, err := sqlitepool.Open(sqlitepool.Config{
//	    Path:   "/var/lib/guildbot/guildbot.db",
//	    Logger: logger,
//	    OnConnect: func(conn *sqlite.Conn) error {
//	        return sqlitex.ExecuteScript(conn, schema, nil)
//	    },
//	})
//	if err != nil {
//	    return err
//	}
//	defer pool.Close()
//
//	conn, err := pool.Take(ctx)
//	if err != nil {
//	    return err
//	}
//	defer pool.Put(conn)
//
// This package is intentionally thin: it applies standard pragmas and
// exposes the underlying zombiezen types directly. The store package
// writes SQL, uses sqlitex.Execute for cached statements, and manages
// transactions with sqlitex.ImmediateTransaction.
package sqlitepool
