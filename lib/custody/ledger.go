// Copyright 2026 The Evidentia Authors
// SPDX-License-Identifier: Apache-2.0

package custody

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"

	"github.com/evidentia-foundation/evidentia/lib/clock"
	"github.com/evidentia-foundation/evidentia/lib/keymutex"
	"github.com/evidentia-foundation/evidentia/lib/sqlitepool"
)

// Action is the kind of handling action a custody event records.
// Closed enumeration; Validate rejects anything else.
type Action string

const (
	ActionCollected   Action = "collected"
	ActionSecured     Action = "secured"
	ActionImaged      Action = "imaged"
	ActionUploaded    Action = "uploaded"
	ActionAccessed    Action = "accessed"
	ActionTransferred Action = "transferred"
	ActionVerified    Action = "verified"
)

// ValidateAction checks that an action is one of the closed set.
func ValidateAction(action Action) error {
	switch action {
	case ActionCollected, ActionSecured, ActionImaged, ActionUploaded,
		ActionAccessed, ActionTransferred, ActionVerified:
		return nil
	default:
		return fmt.Errorf("custody: invalid action %q", action)
	}
}

// ErrUnknownEvidence is returned when the referenced evidence id does
// not exist in the catalog. Appending to an unknown artifact is a
// referential-integrity violation, surfaced to the caller and never
// silently ignored.
var ErrUnknownEvidence = errors.New("custody: unknown evidence")

// Event is the caller-supplied portion of a custody event. Sequence
// number, timestamp, and digests are assigned by the ledger on append.
type Event struct {
	// Action is the handling action kind.
	Action Action

	// Actor is the verified officer identity performing the action.
	// Attribution comes from the officer token, never from a
	// self-declared name.
	Actor string

	// Location is a free-form location or context string ("evidence
	// locker B", "forensic lab 2").
	Location string

	// Notes is free-form commentary on the action.
	Notes string
}

// Entry is a committed custody event. All fields are frozen once the
// append transaction commits.
type Entry struct {
	EvidenceID  string    `json:"evidence_id"`
	Seq         int64     `json:"seq"`
	Action      Action    `json:"action"`
	Actor       string    `json:"actor"`
	Location    string    `json:"location,omitempty"`
	Notes       string    `json:"notes,omitempty"`
	RecordedAt  time.Time `json:"recorded_at"`
	PrevDigest  Digest    `json:"-"`
	EntryDigest Digest    `json:"-"`
}

// ChainStatus is the result of verifying an artifact's hash chain.
type ChainStatus struct {
	// Valid is true when every stored digest matches recomputation
	// and the sequence is contiguous from 1.
	Valid bool

	// BrokenAtSeq is the first sequence number whose stored record
	// diverges from recomputation. Zero when Valid.
	BrokenAtSeq int64

	// Length is the number of entries examined.
	Length int64
}

// Ledger is the sole writer of the custody event log. Appends to one
// artifact serialize on that artifact's exclusive section; appends to
// different artifacts proceed in parallel.
type Ledger struct {
	pool   *sqlitepool.Pool
	locks  *keymutex.KeyedMutex
	clock  clock.Clock
	logger *slog.Logger
}

// NewLedger creates a Ledger. The locks instance must be the same one
// used by the evidence store, since register+first-event and later
// appends contend for the same per-artifact sections.
func NewLedger(pool *sqlitepool.Pool, locks *keymutex.KeyedMutex, clk clock.Clock, logger *slog.Logger) *Ledger {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Ledger{pool: pool, locks: locks, clock: clk, logger: logger}
}

// Append records a custody event for an artifact: assigns the next
// sequence number, computes the chain digest, and stores the entry.
// Returns the committed entry. Fails with ErrUnknownEvidence if the
// artifact is not in the catalog.
func (l *Ledger) Append(ctx context.Context, evidenceID string, event Event) (Entry, error) {
	if err := ValidateAction(event.Action); err != nil {
		return Entry{}, err
	}

	// The exclusive section is taken before the transaction begins.
	// Lock ordering is keymutex first, SQLite write lock second,
	// everywhere — the reverse order would deadlock under contention.
	l.locks.Lock(evidenceID)
	defer l.locks.Unlock(evidenceID)

	conn, err := l.pool.Take(ctx)
	if err != nil {
		return Entry{}, err
	}
	defer l.pool.Put(conn)

	endTransaction, err := sqlitex.ImmediateTransaction(conn)
	if err != nil {
		return Entry{}, fmt.Errorf("custody: begin append transaction: %w", err)
	}
	defer endTransaction(&err)

	entry, err := l.AppendLocked(conn, evidenceID, event)
	if err != nil {
		return Entry{}, err
	}

	l.logger.Info("custody event appended",
		"evidence_id", evidenceID,
		"seq", entry.Seq,
		"action", entry.Action,
		"actor", entry.Actor,
	)
	return entry, nil
}

// AppendLocked appends a custody event on a connection with an open
// transaction. The caller MUST hold the artifact's exclusive section
// and an immediate transaction on conn; the evidence store uses this
// to make item creation and the first uploaded event a single atomic
// unit, and the case index uses it to pair an unlink with its
// transferred event.
func (l *Ledger) AppendLocked(conn *sqlite.Conn, evidenceID string, event Event) (Entry, error) {
	if err := ValidateAction(event.Action); err != nil {
		return Entry{}, err
	}

	exists := false
	err := sqlitex.Execute(conn, "SELECT 1 FROM evidence_items WHERE id = ?", &sqlitex.ExecOptions{
		Args: []any{evidenceID},
		ResultFunc: func(*sqlite.Stmt) error {
			exists = true
			return nil
		},
	})
	if err != nil {
		return Entry{}, fmt.Errorf("custody: checking evidence %s: %w", evidenceID, err)
	}
	if !exists {
		return Entry{}, fmt.Errorf("%w: %s", ErrUnknownEvidence, evidenceID)
	}

	// Read the chain tip: highest sequence and its digest.
	var lastSeq int64
	prev := genesisDigest
	err = sqlitex.Execute(conn, `
		SELECT seq, entry_digest FROM custody_events
		WHERE evidence_id = ?
		ORDER BY seq DESC LIMIT 1
	`, &sqlitex.ExecOptions{
		Args: []any{evidenceID},
		ResultFunc: func(stmt *sqlite.Stmt) error {
			lastSeq = stmt.ColumnInt64(0)
			stmt.ColumnBytes(1, prev[:])
			return nil
		},
	})
	if err != nil {
		return Entry{}, fmt.Errorf("custody: reading chain tip for %s: %w", evidenceID, err)
	}

	seq := lastSeq + 1
	recordedAt := l.clock.Now().UTC()

	entryDigest, err := computeEntryDigest(prev, seq, event.Action, event.Actor, event.Location, event.Notes, recordedAt)
	if err != nil {
		return Entry{}, fmt.Errorf("custody: encoding chain payload: %w", err)
	}

	err = sqlitex.Execute(conn, `
		INSERT INTO custody_events
			(evidence_id, seq, action, actor, location, notes, recorded_at, prev_digest, entry_digest)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, &sqlitex.ExecOptions{
		Args: []any{
			evidenceID,
			seq,
			string(event.Action),
			event.Actor,
			event.Location,
			event.Notes,
			recordedAt.UnixNano(),
			prev[:],
			entryDigest[:],
		},
	})
	if err != nil {
		return Entry{}, fmt.Errorf("custody: inserting event %d for %s: %w", seq, evidenceID, err)
	}

	return Entry{
		EvidenceID:  evidenceID,
		Seq:         seq,
		Action:      event.Action,
		Actor:       event.Actor,
		Location:    event.Location,
		Notes:       event.Notes,
		RecordedAt:  recordedAt,
		PrevDigest:  prev,
		EntryDigest: entryDigest,
	}, nil
}

// History streams an artifact's custody events in ascending sequence
// order, one at a time. The iteration is lazy (rows are decoded as
// they are visited) and restartable (each call starts from entry 1).
// Returning an error from fn stops the iteration and propagates the
// error. History does not verify the chain; pair it with VerifyChain
// when integrity matters to the caller.
func (l *Ledger) History(ctx context.Context, evidenceID string, fn func(Entry) error) error {
	conn, err := l.pool.Take(ctx)
	if err != nil {
		return err
	}
	defer l.pool.Put(conn)

	return sqlitex.Execute(conn, `
		SELECT seq, action, actor, location, notes, recorded_at, prev_digest, entry_digest
		FROM custody_events
		WHERE evidence_id = ?
		ORDER BY seq ASC
	`, &sqlitex.ExecOptions{
		Args: []any{evidenceID},
		ResultFunc: func(stmt *sqlite.Stmt) error {
			entry := Entry{
				EvidenceID: evidenceID,
				Seq:        stmt.ColumnInt64(0),
				Action:     Action(stmt.ColumnText(1)),
				Actor:      stmt.ColumnText(2),
				Location:   stmt.ColumnText(3),
				Notes:      stmt.ColumnText(4),
				RecordedAt: time.Unix(0, stmt.ColumnInt64(5)).UTC(),
			}
			stmt.ColumnBytes(6, entry.PrevDigest[:])
			stmt.ColumnBytes(7, entry.EntryDigest[:])
			return fn(entry)
		},
	})
}

// Events collects an artifact's full history into a slice. Convenience
// wrapper over History for callers that need everything anyway (the
// custody query endpoint).
func (l *Ledger) Events(ctx context.Context, evidenceID string) ([]Entry, error) {
	var entries []Entry
	err := l.History(ctx, evidenceID, func(entry Entry) error {
		entries = append(entries, entry)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return entries, nil
}

// VerifyChain recomputes the full hash chain for an artifact from
// entry 1 and compares against the stored digests. Read-only; callable
// at any time. Fails with ErrUnknownEvidence for an unknown artifact.
//
// A chain is broken at the first entry where any of these diverge:
// the sequence number is not the predecessor's plus one, the stored
// previous digest is not the predecessor's stored entry digest, or
// the stored entry digest does not match recomputation over the
// stored fields. The result is reported, never repaired.
func (l *Ledger) VerifyChain(ctx context.Context, evidenceID string) (ChainStatus, error) {
	conn, err := l.pool.Take(ctx)
	if err != nil {
		return ChainStatus{}, err
	}
	defer l.pool.Put(conn)

	exists := false
	err = sqlitex.Execute(conn, "SELECT 1 FROM evidence_items WHERE id = ?", &sqlitex.ExecOptions{
		Args: []any{evidenceID},
		ResultFunc: func(*sqlite.Stmt) error {
			exists = true
			return nil
		},
	})
	if err != nil {
		return ChainStatus{}, fmt.Errorf("custody: checking evidence %s: %w", evidenceID, err)
	}
	if !exists {
		return ChainStatus{}, fmt.Errorf("%w: %s", ErrUnknownEvidence, evidenceID)
	}

	status := ChainStatus{Valid: true}
	expectedSeq := int64(1)
	prev := genesisDigest

	err = sqlitex.Execute(conn, `
		SELECT seq, action, actor, location, notes, recorded_at, prev_digest, entry_digest
		FROM custody_events
		WHERE evidence_id = ?
		ORDER BY seq ASC
	`, &sqlitex.ExecOptions{
		Args: []any{evidenceID},
		ResultFunc: func(stmt *sqlite.Stmt) error {
			if !status.Valid {
				// Already diverged; skip the remainder.
				return nil
			}

			seq := stmt.ColumnInt64(0)
			var storedPrev, storedEntry Digest
			stmt.ColumnBytes(6, storedPrev[:])
			stmt.ColumnBytes(7, storedEntry[:])

			recomputed, err := computeEntryDigest(
				prev,
				seq,
				Action(stmt.ColumnText(1)),
				stmt.ColumnText(2),
				stmt.ColumnText(3),
				stmt.ColumnText(4),
				time.Unix(0, stmt.ColumnInt64(5)).UTC(),
			)
			if err != nil {
				return err
			}

			if seq != expectedSeq || storedPrev != prev || recomputed != storedEntry {
				status.Valid = false
				status.BrokenAtSeq = seq
				return nil
			}

			status.Length++
			expectedSeq++
			prev = storedEntry
			return nil
		},
	})
	if err != nil {
		return ChainStatus{}, fmt.Errorf("custody: verifying chain for %s: %w", evidenceID, err)
	}

	if !status.Valid {
		l.logger.Error("custody chain broken",
			"evidence_id", evidenceID,
			"broken_at_seq", status.BrokenAtSeq,
		)
	}
	return status, nil
}
