// Copyright 2026 The Evidentia Authors
// SPDX-License-Identifier: Apache-2.0

// Package sqlitepool provides Evidentia's standard SQLite connection pool.
//
// The evidence catalog, custody ledger, and case index all live in one
// SQLite database. This package wraps zombiezen.com/go/sqlite with the
// pragmas that workload needs: WAL journal mode so readers observe a
// consistent snapshot while officers append custody events, FULL
// synchronous because a custody record that vanishes on power loss is
// a chain-of-custody failure rather than an inconvenience, and foreign
// keys ON because referential integrity (no event without its
// evidence, no link without its case) is a core invariant rather than
// an application nicety.
//
// The pool is built on zombiezen's sqlitex.Pool, which manages a
// fixed-size set of connections. Callers [Pool.Take] a connection,
// perform work, and [Pool.Put] it back. Connections are NOT safe for
// concurrent use — each goroutine must hold its own connection for the
// duration of its work.
//
// # Usage
//
//	pool, err := sqlitepool.Open(sqlitepool.Config{
//	    Path:   "/var/evidentia/catalog.db",
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
// This package is intentionally thin: it applies standard pragmas and
// exposes the underlying zombiezen types directly. Stores write SQL,
// use sqlitex.Execute for cached statements, and manage transactions
// with sqlitex.ImmediateTransaction. There is no query builder and no
// ORM — an abstraction layer over SQLite fights its strengths.
package sqlitepool
