// Copyright 2026 The Evidentia Authors
// SPDX-License-Identifier: Apache-2.0

package evidence

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"

	"github.com/evidentia-foundation/evidentia/lib/clock"
	"github.com/evidentia-foundation/evidentia/lib/custody"
	"github.com/evidentia-foundation/evidentia/lib/digest"
	"github.com/evidentia-foundation/evidentia/lib/keymutex"
	"github.com/evidentia-foundation/evidentia/lib/sqlitepool"
)

// Verification is an item's verification status.
type Verification string

const (
	VerificationPending    Verification = "pending"
	VerificationVerified   Verification = "verified"
	VerificationMismatched Verification = "mismatched"
)

// ErrDuplicateFingerprint reports that the registered content already
// exists in the catalog. Informational: Register returns the existing
// item alongside it, and callers normally treat it as success.
var ErrDuplicateFingerprint = errors.New("evidence: duplicate fingerprint")

// ErrHashMismatch reports that a verification pass computed a
// fingerprint different from the one on record. The mismatch is
// written to the item's custody chain before this error is returned.
var ErrHashMismatch = errors.New("evidence: fingerprint mismatch")

// Item is a cataloged evidence artifact.
type Item struct {
	ID           string             `json:"id"`
	Fingerprint  digest.Fingerprint `json:"fingerprint"`
	Filename     string             `json:"filename"`
	SizeBytes    int64              `json:"size_bytes"`
	Officer      string             `json:"officer"`
	IngestedAt   time.Time          `json:"ingested_at"`
	Verification Verification       `json:"verification"`
}

// RegisterRequest carries the metadata for a new catalog entry. The
// fingerprint must already be computed over the complete stream.
type RegisterRequest struct {
	Fingerprint digest.Fingerprint
	Filename    string
	SizeBytes   int64
	Officer     string
	Location    string
}

// Filter narrows a List call. Zero fields match everything.
type Filter struct {
	// CaseID restricts to items linked to the given case.
	CaseID string

	// Verification restricts to one verification status.
	Verification Verification

	// Officer restricts to items ingested by one officer.
	Officer string
}

// Store is the evidence catalog. It shares its KeyedMutex and ledger
// with the rest of the service so that per-artifact serialization is
// global to the process.
type Store struct {
	pool   *sqlitepool.Pool
	ledger *custody.Ledger
	locks  *keymutex.KeyedMutex
	clock  clock.Clock
	logger *slog.Logger
}

// NewStore creates a Store. locks must be the same instance the
// custody ledger uses.
func NewStore(pool *sqlitepool.Pool, ledger *custody.Ledger, locks *keymutex.KeyedMutex, clk clock.Clock, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Store{pool: pool, ledger: ledger, locks: locks, clock: clk, logger: logger}
}

// Register catalogs a fingerprinted artifact. The item row and its
// first custody event ("uploaded") commit in one transaction, so the
// catalog never shows an item without history.
//
// If the fingerprint is already cataloged, Register returns the
// existing item, created=false, and ErrDuplicateFingerprint. Nothing
// is written in that case; in particular no second uploaded event
// appears in the history.
func (s *Store) Register(ctx context.Context, req RegisterRequest) (item Item, created bool, err error) {
	if _, err := digest.Parse(string(req.Fingerprint)); err != nil {
		return Item{}, false, err
	}
	if req.Filename == "" {
		return Item{}, false, errors.New("evidence: filename is required")
	}
	if req.Officer == "" {
		return Item{}, false, errors.New("evidence: officer is required")
	}
	if req.SizeBytes < 0 {
		return Item{}, false, fmt.Errorf("evidence: negative size %d", req.SizeBytes)
	}

	id := req.Fingerprint.EvidenceID()

	// The identifier is content-derived, so concurrent registrations
	// of the same bytes contend on the same key and serialize here.
	s.locks.Lock(id)
	defer s.locks.Unlock(id)

	conn, err := s.pool.Take(ctx)
	if err != nil {
		return Item{}, false, err
	}
	defer s.pool.Put(conn)

	endTransaction, err := sqlitex.ImmediateTransaction(conn)
	if err != nil {
		return Item{}, false, fmt.Errorf("evidence: begin register transaction: %w", err)
	}
	defer endTransaction(&err)

	existing, found, err := getItem(conn, id)
	if err != nil {
		return Item{}, false, err
	}
	if found {
		s.logger.Info("duplicate evidence registration",
			"evidence_id", id,
			"fingerprint", req.Fingerprint,
			"officer", req.Officer,
		)
		return existing, false, fmt.Errorf("%w: %s", ErrDuplicateFingerprint, req.Fingerprint)
	}

	ingestedAt := s.clock.Now().UTC()
	err = sqlitex.Execute(conn, `
		INSERT INTO evidence_items (id, fingerprint, filename, size_bytes, officer, ingested_at, verification)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, &sqlitex.ExecOptions{
		Args: []any{
			id,
			string(req.Fingerprint),
			req.Filename,
			req.SizeBytes,
			req.Officer,
			ingestedAt.UnixNano(),
			string(VerificationPending),
		},
	})
	if err != nil {
		return Item{}, false, fmt.Errorf("evidence: inserting item %s: %w", id, err)
	}

	_, err = s.ledger.AppendLocked(conn, id, custody.Event{
		Action:   custody.ActionUploaded,
		Actor:    req.Officer,
		Location: req.Location,
		Notes:    fmt.Sprintf("ingested %s (%d bytes)", req.Filename, req.SizeBytes),
	})
	if err != nil {
		return Item{}, false, err
	}

	s.logger.Info("evidence registered",
		"evidence_id", id,
		"fingerprint", req.Fingerprint,
		"size_bytes", req.SizeBytes,
		"officer", req.Officer,
	)
	return Item{
		ID:           id,
		Fingerprint:  req.Fingerprint,
		Filename:     req.Filename,
		SizeBytes:    req.SizeBytes,
		Officer:      req.Officer,
		IngestedAt:   ingestedAt,
		Verification: VerificationPending,
	}, true, nil
}

// MarkVerified records the outcome of re-fingerprinting the stored
// artifact. A match moves the item to verified; a mismatch moves it to
// mismatched and returns ErrHashMismatch. Either way a "verified"
// custody event attributed to actor is appended in the same
// transaction, so the check itself is part of the item's history.
func (s *Store) MarkVerified(ctx context.Context, id string, computed digest.Fingerprint, actor string) (Item, error) {
	if actor == "" {
		return Item{}, errors.New("evidence: actor is required")
	}

	s.locks.Lock(id)
	defer s.locks.Unlock(id)

	conn, err := s.pool.Take(ctx)
	if err != nil {
		return Item{}, err
	}
	defer s.pool.Put(conn)

	item, match, err := s.recordVerification(conn, id, computed, actor)
	if err != nil {
		return Item{}, err
	}
	if !match {
		s.logger.Error("evidence verification mismatch",
			"evidence_id", id,
			"recorded", item.Fingerprint,
			"computed", computed,
			"actor", actor,
		)
		return item, fmt.Errorf("%w: evidence %s", ErrHashMismatch, id)
	}

	s.logger.Info("evidence verified", "evidence_id", id, "actor", actor)
	return item, nil
}

// recordVerification applies the status change and the custody event
// in one transaction. The mismatch outcome travels in match, not in
// err: the transaction must commit either way, and the deferred close
// rolls back on any non-nil err.
func (s *Store) recordVerification(conn *sqlite.Conn, id string, computed digest.Fingerprint, actor string) (item Item, match bool, err error) {
	endTransaction, err := sqlitex.ImmediateTransaction(conn)
	if err != nil {
		return Item{}, false, fmt.Errorf("evidence: begin verify transaction: %w", err)
	}
	defer endTransaction(&err)

	item, found, err := getItem(conn, id)
	if err != nil {
		return Item{}, false, err
	}
	if !found {
		return Item{}, false, fmt.Errorf("%w: %s", custody.ErrUnknownEvidence, id)
	}

	match = computed == item.Fingerprint
	status := VerificationVerified
	notes := "fingerprint confirmed"
	if !match {
		status = VerificationMismatched
		notes = fmt.Sprintf("fingerprint mismatch: recorded %s, computed %s", item.Fingerprint, computed)
	}

	err = sqlitex.Execute(conn,
		"UPDATE evidence_items SET verification = ? WHERE id = ?",
		&sqlitex.ExecOptions{Args: []any{string(status), id}})
	if err != nil {
		return Item{}, false, fmt.Errorf("evidence: updating verification for %s: %w", id, err)
	}

	_, err = s.ledger.AppendLocked(conn, id, custody.Event{
		Action: custody.ActionVerified,
		Actor:  actor,
		Notes:  notes,
	})
	if err != nil {
		return Item{}, false, err
	}

	item.Verification = status
	return item, match, nil
}

// Get returns one item by identifier.
func (s *Store) Get(ctx context.Context, id string) (Item, error) {
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return Item{}, err
	}
	defer s.pool.Put(conn)

	item, found, err := getItem(conn, id)
	if err != nil {
		return Item{}, err
	}
	if !found {
		return Item{}, fmt.Errorf("%w: %s", custody.ErrUnknownEvidence, id)
	}
	return item, nil
}

// List returns items matching the filter, ordered by ingestion time
// descending then id for a stable order.
func (s *Store) List(ctx context.Context, filter Filter) ([]Item, error) {
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return nil, err
	}
	defer s.pool.Put(conn)

	var (
		where []string
		args  []any
	)
	query := "SELECT e.id, e.fingerprint, e.filename, e.size_bytes, e.officer, e.ingested_at, e.verification FROM evidence_items e"
	if filter.CaseID != "" {
		query += " JOIN case_evidence ce ON ce.evidence_id = e.id"
		where = append(where, "ce.case_id = ?")
		args = append(args, filter.CaseID)
	}
	if filter.Verification != "" {
		where = append(where, "e.verification = ?")
		args = append(args, string(filter.Verification))
	}
	if filter.Officer != "" {
		where = append(where, "e.officer = ?")
		args = append(args, filter.Officer)
	}
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY e.ingested_at DESC, e.id ASC"

	var items []Item
	err = sqlitex.Execute(conn, query, &sqlitex.ExecOptions{
		Args: args,
		ResultFunc: func(stmt *sqlite.Stmt) error {
			items = append(items, itemFromRow(stmt))
			return nil
		},
	})
	if err != nil {
		return nil, fmt.Errorf("evidence: listing items: %w", err)
	}
	return items, nil
}

// getItem reads one item row on an existing connection.
func getItem(conn *sqlite.Conn, id string) (Item, bool, error) {
	var (
		item  Item
		found bool
	)
	err := sqlitex.Execute(conn, `
		SELECT id, fingerprint, filename, size_bytes, officer, ingested_at, verification
		FROM evidence_items WHERE id = ?
	`, &sqlitex.ExecOptions{
		Args: []any{id},
		ResultFunc: func(stmt *sqlite.Stmt) error {
			item = itemFromRow(stmt)
			found = true
			return nil
		},
	})
	if err != nil {
		return Item{}, false, fmt.Errorf("evidence: reading item %s: %w", id, err)
	}
	return item, found, nil
}

func itemFromRow(stmt *sqlite.Stmt) Item {
	return Item{
		ID:           stmt.ColumnText(0),
		Fingerprint:  digest.Fingerprint(stmt.ColumnText(1)),
		Filename:     stmt.ColumnText(2),
		SizeBytes:    stmt.ColumnInt64(3),
		Officer:      stmt.ColumnText(4),
		IngestedAt:   time.Unix(0, stmt.ColumnInt64(5)).UTC(),
		Verification: Verification(stmt.ColumnText(6)),
	}
}
