// Copyright 2026 The Evidentia Authors
// SPDX-License-Identifier: Apache-2.0

package storage

import (
	"log/slog"

	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"

	"github.com/evidentia-foundation/evidentia/lib/sqlitepool"
)

// schema is applied to every connection via OnConnect. All statements
// are idempotent. Timestamps are Unix nanoseconds (UTC) stored as
// INTEGER; digests are raw 32-byte BLOBs.
const schema = `
CREATE TABLE IF NOT EXISTS evidence_items (
	id           TEXT PRIMARY KEY,
	fingerprint  TEXT NOT NULL UNIQUE,
	filename     TEXT NOT NULL,
	size_bytes   INTEGER NOT NULL,
	officer      TEXT NOT NULL,
	ingested_at  INTEGER NOT NULL,
	verification TEXT NOT NULL DEFAULT 'pending'
		CHECK (verification IN ('pending', 'verified', 'mismatched'))
);

CREATE TABLE IF NOT EXISTS custody_events (
	evidence_id  TEXT NOT NULL REFERENCES evidence_items(id),
	seq          INTEGER NOT NULL CHECK (seq >= 1),
	action       TEXT NOT NULL,
	actor        TEXT NOT NULL,
	location     TEXT NOT NULL DEFAULT '',
	notes        TEXT NOT NULL DEFAULT '',
	recorded_at  INTEGER NOT NULL,
	prev_digest  BLOB NOT NULL,
	entry_digest BLOB NOT NULL,
	PRIMARY KEY (evidence_id, seq)
);

CREATE TABLE IF NOT EXISTS cases (
	id          TEXT PRIMARY KEY,
	title       TEXT NOT NULL,
	description TEXT NOT NULL DEFAULT '',
	status      TEXT NOT NULL
		CHECK (status IN ('active', 'pending', 'completed', 'archived')),
	priority    TEXT NOT NULL
		CHECK (priority IN ('low', 'medium', 'high', 'critical')),
	officer     TEXT NOT NULL,
	tags        TEXT NOT NULL DEFAULT '[]',
	created_at  INTEGER NOT NULL,
	updated_at  INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS case_sequence (
	year INTEGER PRIMARY KEY,
	last INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS case_evidence (
	case_id     TEXT NOT NULL REFERENCES cases(id),
	evidence_id TEXT NOT NULL REFERENCES evidence_items(id),
	linked_at   INTEGER NOT NULL,
	PRIMARY KEY (case_id, evidence_id)
);

CREATE TABLE IF NOT EXISTS case_notes (
	case_id    TEXT NOT NULL REFERENCES cases(id),
	note_id    INTEGER NOT NULL CHECK (note_id >= 1),
	author     TEXT NOT NULL,
	content    TEXT NOT NULL,
	created_at INTEGER NOT NULL,
	PRIMARY KEY (case_id, note_id)
);

CREATE INDEX IF NOT EXISTS idx_case_evidence_evidence
	ON case_evidence(evidence_id);
CREATE INDEX IF NOT EXISTS idx_evidence_officer
	ON evidence_items(officer);
CREATE INDEX IF NOT EXISTS idx_cases_status
	ON cases(status);
`

// Config holds the parameters for opening the catalog database.
type Config struct {
	// Path is the filesystem path to the database file.
	Path string

	// PoolSize is the connection pool size. Zero means the
	// sqlitepool default.
	PoolSize int

	// Logger receives operational messages.
	Logger *slog.Logger
}

// Open opens the catalog database with the schema applied. The caller
// must Close the returned pool.
func Open(cfg Config) (*sqlitepool.Pool, error) {
	return sqlitepool.Open(sqlitepool.Config{
		Path:     cfg.Path,
		PoolSize: cfg.PoolSize,
		Logger:   cfg.Logger,
		OnConnect: func(conn *sqlite.Conn) error {
			return sqlitex.ExecuteScript(conn, schema, nil)
		},
	})
}
