// Copyright 2026 The Evidentia Authors
// SPDX-License-Identifier: Apache-2.0

package storage_test

import (
	"context"
	"path/filepath"
	"strings"
	"testing"

	"zombiezen.com/go/sqlite/sqlitex"

	"github.com/evidentia-foundation/evidentia/lib/storage"
)

func TestOpenAppliesSchema(t *testing.T) {
	pool, err := storage.Open(storage.Config{
		Path: filepath.Join(t.TempDir(), "catalog.db"),
	})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer pool.Close()

	conn, err := pool.Take(context.Background())
	if err != nil {
		t.Fatalf("Take: %v", err)
	}
	defer pool.Put(conn)

	for _, table := range []string{
		"evidence_items", "custody_events", "cases",
		"case_sequence", "case_evidence", "case_notes",
	} {
		err := sqlitex.Execute(conn, "SELECT count(*) FROM "+table, nil)
		if err != nil {
			t.Errorf("table %s missing: %v", table, err)
		}
	}
}

func TestForeignKeysEnforced(t *testing.T) {
	pool, err := storage.Open(storage.Config{
		Path: filepath.Join(t.TempDir(), "catalog.db"),
	})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer pool.Close()

	conn, err := pool.Take(context.Background())
	if err != nil {
		t.Fatalf("Take: %v", err)
	}
	defer pool.Put(conn)

	// A custody event for a nonexistent evidence item must be
	// rejected by the schema itself.
	err = sqlitex.Execute(conn, `
		INSERT INTO custody_events
			(evidence_id, seq, action, actor, recorded_at, prev_digest, entry_digest)
		VALUES ('EVD-000000000000', 1, 'uploaded', 'off-1', 0, x'00', x'00')
	`, nil)
	if err == nil {
		t.Fatal("insert with dangling evidence_id should fail")
	}
	if !strings.Contains(err.Error(), "FOREIGN KEY") && !strings.Contains(err.Error(), "foreign key") {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestEnumChecksEnforced(t *testing.T) {
	pool, err := storage.Open(storage.Config{
		Path: filepath.Join(t.TempDir(), "catalog.db"),
	})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer pool.Close()

	conn, err := pool.Take(context.Background())
	if err != nil {
		t.Fatalf("Take: %v", err)
	}
	defer pool.Put(conn)

	err = sqlitex.Execute(conn, `
		INSERT INTO cases (id, title, status, priority, officer, created_at, updated_at)
		VALUES ('CASE-2026-001', 'x', 'reopened', 'high', 'off-1', 0, 0)
	`, nil)
	if err == nil {
		t.Fatal("insert with invalid status should fail the CHECK constraint")
	}
}
