// Copyright 2026 The Evidentia Authors
// SPDX-License-Identifier: Apache-2.0

package caseindex

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"

	"github.com/evidentia-foundation/evidentia/lib/clock"
	"github.com/evidentia-foundation/evidentia/lib/custody"
	"github.com/evidentia-foundation/evidentia/lib/keymutex"
	"github.com/evidentia-foundation/evidentia/lib/sqlitepool"
)

// Status is a case's lifecycle state.
type Status string

const (
	StatusActive    Status = "active"
	StatusPending   Status = "pending"
	StatusCompleted Status = "completed"
	StatusArchived  Status = "archived"
)

// ValidateStatus checks that a status is one of the closed set.
func ValidateStatus(status Status) error {
	switch status {
	case StatusActive, StatusPending, StatusCompleted, StatusArchived:
		return nil
	default:
		return fmt.Errorf("caseindex: invalid status %q", status)
	}
}

// Priority is a case's urgency level.
type Priority string

const (
	PriorityLow      Priority = "low"
	PriorityMedium   Priority = "medium"
	PriorityHigh     Priority = "high"
	PriorityCritical Priority = "critical"
)

// ValidatePriority checks that a priority is one of the closed set.
func ValidatePriority(priority Priority) error {
	switch priority {
	case PriorityLow, PriorityMedium, PriorityHigh, PriorityCritical:
		return nil
	default:
		return fmt.Errorf("caseindex: invalid priority %q", priority)
	}
}

// ErrUnknownCase is returned when the referenced case id does not
// exist.
var ErrUnknownCase = errors.New("caseindex: unknown case")

// Case is an investigation case.
type Case struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	Description string    `json:"description,omitempty"`
	Status      Status    `json:"status"`
	Priority    Priority  `json:"priority"`
	Officer     string    `json:"officer"`
	Tags        []string  `json:"tags"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Note is an append-only annotation on a case.
type Note struct {
	CaseID    string    `json:"case_id"`
	NoteID    int64     `json:"note_id"`
	Author    string    `json:"author"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

// Filter narrows a List call. Zero fields match everything.
type Filter struct {
	Status   Status
	Priority Priority
	Officer  string
}

// Index is the case registry. It keeps its own KeyedMutex for
// per-case serialization, separate from the evidence locks; where both
// are needed the case section is acquired first.
type Index struct {
	pool    *sqlitepool.Pool
	ledger  *custody.Ledger
	locks   *keymutex.KeyedMutex
	evLocks *keymutex.KeyedMutex
	clock   clock.Clock
	logger  *slog.Logger
}

// NewIndex creates an Index. evidenceLocks must be the instance shared
// with the evidence store and custody ledger.
func NewIndex(pool *sqlitepool.Pool, ledger *custody.Ledger, evidenceLocks *keymutex.KeyedMutex, clk clock.Clock, logger *slog.Logger) *Index {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Index{
		pool:    pool,
		ledger:  ledger,
		locks:   keymutex.New(),
		evLocks: evidenceLocks,
		clock:   clk,
		logger:  logger,
	}
}

// CreateCase opens a new case with status pending and returns it. The
// identifier is allocated from the per-year sequence under the write
// transaction, so concurrent creations get distinct numbers with no
// gaps on success.
func (ix *Index) CreateCase(ctx context.Context, title, description string, priority Priority, officer string, tags []string) (c Case, err error) {
	if title == "" {
		return Case{}, errors.New("caseindex: title is required")
	}
	if officer == "" {
		return Case{}, errors.New("caseindex: officer is required")
	}
	if err := ValidatePriority(priority); err != nil {
		return Case{}, err
	}
	if tags == nil {
		tags = []string{}
	}
	tagsJSON, err := json.Marshal(tags)
	if err != nil {
		return Case{}, fmt.Errorf("caseindex: encoding tags: %w", err)
	}

	conn, err := ix.pool.Take(ctx)
	if err != nil {
		return Case{}, err
	}
	defer ix.pool.Put(conn)

	endTransaction, err := sqlitex.ImmediateTransaction(conn)
	if err != nil {
		return Case{}, fmt.Errorf("caseindex: begin create transaction: %w", err)
	}
	defer endTransaction(&err)

	now := ix.clock.Now().UTC()
	year := now.Year()

	var next int64 = 1
	err = sqlitex.Execute(conn, "SELECT last FROM case_sequence WHERE year = ?", &sqlitex.ExecOptions{
		Args: []any{year},
		ResultFunc: func(stmt *sqlite.Stmt) error {
			next = stmt.ColumnInt64(0) + 1
			return nil
		},
	})
	if err != nil {
		return Case{}, fmt.Errorf("caseindex: reading case sequence: %w", err)
	}
	err = sqlitex.Execute(conn, `
		INSERT INTO case_sequence (year, last) VALUES (?, ?)
		ON CONFLICT (year) DO UPDATE SET last = excluded.last
	`, &sqlitex.ExecOptions{Args: []any{year, next}})
	if err != nil {
		return Case{}, fmt.Errorf("caseindex: advancing case sequence: %w", err)
	}

	id := fmt.Sprintf("CASE-%d-%03d", year, next)
	err = sqlitex.Execute(conn, `
		INSERT INTO cases (id, title, description, status, priority, officer, tags, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, &sqlitex.ExecOptions{
		Args: []any{
			id, title, description,
			string(StatusPending), string(priority),
			officer, string(tagsJSON),
			now.UnixNano(), now.UnixNano(),
		},
	})
	if err != nil {
		return Case{}, fmt.Errorf("caseindex: inserting case %s: %w", id, err)
	}

	ix.logger.Info("case created", "case_id", id, "priority", priority, "officer", officer)
	return Case{
		ID:          id,
		Title:       title,
		Description: description,
		Status:      StatusPending,
		Priority:    priority,
		Officer:     officer,
		Tags:        tags,
		CreatedAt:   now,
		UpdatedAt:   now,
	}, nil
}

// UpdateStatus moves a case to a new lifecycle state.
func (ix *Index) UpdateStatus(ctx context.Context, id string, status Status) (Case, error) {
	if err := ValidateStatus(status); err != nil {
		return Case{}, err
	}
	return ix.updateCase(ctx, id, "status", string(status))
}

// UpdatePriority changes a case's urgency level.
func (ix *Index) UpdatePriority(ctx context.Context, id string, priority Priority) (Case, error) {
	if err := ValidatePriority(priority); err != nil {
		return Case{}, err
	}
	return ix.updateCase(ctx, id, "priority", string(priority))
}

// updateCase sets one column and bumps updated_at. The column name
// comes only from the two callers above, never from input.
func (ix *Index) updateCase(ctx context.Context, id, column, value string) (c Case, err error) {
	ix.locks.Lock(id)
	defer ix.locks.Unlock(id)

	conn, err := ix.pool.Take(ctx)
	if err != nil {
		return Case{}, err
	}
	defer ix.pool.Put(conn)

	endTransaction, err := sqlitex.ImmediateTransaction(conn)
	if err != nil {
		return Case{}, fmt.Errorf("caseindex: begin update transaction: %w", err)
	}
	defer endTransaction(&err)

	current, found, err := getCase(conn, id)
	if err != nil {
		return Case{}, err
	}
	if !found {
		return Case{}, fmt.Errorf("%w: %s", ErrUnknownCase, id)
	}

	updatedAt := ix.monotonicUpdate(current.UpdatedAt)
	err = sqlitex.Execute(conn,
		"UPDATE cases SET "+column+" = ?, updated_at = ? WHERE id = ?",
		&sqlitex.ExecOptions{Args: []any{value, updatedAt.UnixNano(), id}})
	if err != nil {
		return Case{}, fmt.Errorf("caseindex: updating %s for %s: %w", column, id, err)
	}

	ix.logger.Info("case updated", "case_id", id, "field", column, "value", value)
	switch column {
	case "status":
		current.Status = Status(value)
	case "priority":
		current.Priority = Priority(value)
	}
	current.UpdatedAt = updatedAt
	return current, nil
}

// monotonicUpdate returns the clock's current time, nudged forward if
// the clock has moved backward relative to the record's last update.
// updated_at never decreases.
func (ix *Index) monotonicUpdate(last time.Time) time.Time {
	now := ix.clock.Now().UTC()
	if !now.After(last) {
		return last.Add(time.Nanosecond)
	}
	return now
}

// LinkEvidence attaches an evidence item to a case. Links have set
// semantics: linking an already linked pair reports linked=false and
// changes nothing.
func (ix *Index) LinkEvidence(ctx context.Context, caseID, evidenceID string) (linked bool, err error) {
	ix.locks.Lock(caseID)
	defer ix.locks.Unlock(caseID)

	conn, err := ix.pool.Take(ctx)
	if err != nil {
		return false, err
	}
	defer ix.pool.Put(conn)

	endTransaction, err := sqlitex.ImmediateTransaction(conn)
	if err != nil {
		return false, fmt.Errorf("caseindex: begin link transaction: %w", err)
	}
	defer endTransaction(&err)

	if err := requireCase(conn, caseID); err != nil {
		return false, err
	}
	if err := requireEvidence(conn, evidenceID); err != nil {
		return false, err
	}

	err = sqlitex.Execute(conn, `
		INSERT OR IGNORE INTO case_evidence (case_id, evidence_id, linked_at)
		VALUES (?, ?, ?)
	`, &sqlitex.ExecOptions{Args: []any{caseID, evidenceID, ix.clock.Now().UTC().UnixNano()}})
	if err != nil {
		return false, fmt.Errorf("caseindex: linking %s to %s: %w", evidenceID, caseID, err)
	}

	linked = conn.Changes() > 0
	if linked {
		ix.logger.Info("evidence linked", "case_id", caseID, "evidence_id", evidenceID)
	}
	return linked, nil
}

// UnlinkEvidence detaches an evidence item from a case and records a
// "transferred" custody event attributed to actor in the same
// transaction. Unlinking a pair that is not linked reports
// unlinked=false and writes no event.
func (ix *Index) UnlinkEvidence(ctx context.Context, caseID, evidenceID, actor string) (unlinked bool, err error) {
	if actor == "" {
		return false, errors.New("caseindex: actor is required")
	}

	// Case section before evidence section, always.
	ix.locks.Lock(caseID)
	defer ix.locks.Unlock(caseID)
	ix.evLocks.Lock(evidenceID)
	defer ix.evLocks.Unlock(evidenceID)

	conn, err := ix.pool.Take(ctx)
	if err != nil {
		return false, err
	}
	defer ix.pool.Put(conn)

	endTransaction, err := sqlitex.ImmediateTransaction(conn)
	if err != nil {
		return false, fmt.Errorf("caseindex: begin unlink transaction: %w", err)
	}
	defer endTransaction(&err)

	if err := requireCase(conn, caseID); err != nil {
		return false, err
	}
	if err := requireEvidence(conn, evidenceID); err != nil {
		return false, err
	}

	err = sqlitex.Execute(conn,
		"DELETE FROM case_evidence WHERE case_id = ? AND evidence_id = ?",
		&sqlitex.ExecOptions{Args: []any{caseID, evidenceID}})
	if err != nil {
		return false, fmt.Errorf("caseindex: unlinking %s from %s: %w", evidenceID, caseID, err)
	}
	if conn.Changes() == 0 {
		return false, nil
	}

	_, err = ix.ledger.AppendLocked(conn, evidenceID, custody.Event{
		Action: custody.ActionTransferred,
		Actor:  actor,
		Notes:  fmt.Sprintf("unlinked from case %s", caseID),
	})
	if err != nil {
		return false, err
	}

	ix.logger.Info("evidence unlinked", "case_id", caseID, "evidence_id", evidenceID, "actor", actor)
	return true, nil
}

// AddNote appends a note to a case. Note ids are contiguous per case
// from 1.
func (ix *Index) AddNote(ctx context.Context, caseID, author, content string) (n Note, err error) {
	if author == "" {
		return Note{}, errors.New("caseindex: author is required")
	}
	if content == "" {
		return Note{}, errors.New("caseindex: content is required")
	}

	ix.locks.Lock(caseID)
	defer ix.locks.Unlock(caseID)

	conn, err := ix.pool.Take(ctx)
	if err != nil {
		return Note{}, err
	}
	defer ix.pool.Put(conn)

	endTransaction, err := sqlitex.ImmediateTransaction(conn)
	if err != nil {
		return Note{}, fmt.Errorf("caseindex: begin note transaction: %w", err)
	}
	defer endTransaction(&err)

	if err := requireCase(conn, caseID); err != nil {
		return Note{}, err
	}

	var noteID int64 = 1
	err = sqlitex.Execute(conn,
		"SELECT COALESCE(MAX(note_id), 0) + 1 FROM case_notes WHERE case_id = ?",
		&sqlitex.ExecOptions{
			Args: []any{caseID},
			ResultFunc: func(stmt *sqlite.Stmt) error {
				noteID = stmt.ColumnInt64(0)
				return nil
			},
		})
	if err != nil {
		return Note{}, fmt.Errorf("caseindex: allocating note id: %w", err)
	}

	createdAt := ix.clock.Now().UTC()
	err = sqlitex.Execute(conn, `
		INSERT INTO case_notes (case_id, note_id, author, content, created_at)
		VALUES (?, ?, ?, ?, ?)
	`, &sqlitex.ExecOptions{Args: []any{caseID, noteID, author, content, createdAt.UnixNano()}})
	if err != nil {
		return Note{}, fmt.Errorf("caseindex: inserting note for %s: %w", caseID, err)
	}

	return Note{
		CaseID:    caseID,
		NoteID:    noteID,
		Author:    author,
		Content:   content,
		CreatedAt: createdAt,
	}, nil
}

// Notes returns a case's notes in insertion order.
func (ix *Index) Notes(ctx context.Context, caseID string) ([]Note, error) {
	conn, err := ix.pool.Take(ctx)
	if err != nil {
		return nil, err
	}
	defer ix.pool.Put(conn)

	if err := requireCase(conn, caseID); err != nil {
		return nil, err
	}

	var notes []Note
	err = sqlitex.Execute(conn, `
		SELECT note_id, author, content, created_at
		FROM case_notes WHERE case_id = ? ORDER BY note_id ASC
	`, &sqlitex.ExecOptions{
		Args: []any{caseID},
		ResultFunc: func(stmt *sqlite.Stmt) error {
			notes = append(notes, Note{
				CaseID:    caseID,
				NoteID:    stmt.ColumnInt64(0),
				Author:    stmt.ColumnText(1),
				Content:   stmt.ColumnText(2),
				CreatedAt: time.Unix(0, stmt.ColumnInt64(3)).UTC(),
			})
			return nil
		},
	})
	if err != nil {
		return nil, fmt.Errorf("caseindex: listing notes for %s: %w", caseID, err)
	}
	return notes, nil
}

// EvidenceCount returns the number of items linked to a case.
func (ix *Index) EvidenceCount(ctx context.Context, caseID string) (int64, error) {
	conn, err := ix.pool.Take(ctx)
	if err != nil {
		return 0, err
	}
	defer ix.pool.Put(conn)

	if err := requireCase(conn, caseID); err != nil {
		return 0, err
	}

	var count int64
	err = sqlitex.Execute(conn,
		"SELECT COUNT(*) FROM case_evidence WHERE case_id = ?",
		&sqlitex.ExecOptions{
			Args: []any{caseID},
			ResultFunc: func(stmt *sqlite.Stmt) error {
				count = stmt.ColumnInt64(0)
				return nil
			},
		})
	if err != nil {
		return 0, fmt.Errorf("caseindex: counting evidence for %s: %w", caseID, err)
	}
	return count, nil
}

// CasesFor returns the ids of cases an evidence item is linked to,
// sorted ascending.
func (ix *Index) CasesFor(ctx context.Context, evidenceID string) ([]string, error) {
	conn, err := ix.pool.Take(ctx)
	if err != nil {
		return nil, err
	}
	defer ix.pool.Put(conn)

	var ids []string
	err = sqlitex.Execute(conn, `
		SELECT case_id FROM case_evidence
		WHERE evidence_id = ? ORDER BY case_id ASC
	`, &sqlitex.ExecOptions{
		Args: []any{evidenceID},
		ResultFunc: func(stmt *sqlite.Stmt) error {
			ids = append(ids, stmt.ColumnText(0))
			return nil
		},
	})
	if err != nil {
		return nil, fmt.Errorf("caseindex: listing cases for %s: %w", evidenceID, err)
	}
	return ids, nil
}

// Get returns one case by identifier.
func (ix *Index) Get(ctx context.Context, id string) (Case, error) {
	conn, err := ix.pool.Take(ctx)
	if err != nil {
		return Case{}, err
	}
	defer ix.pool.Put(conn)

	c, found, err := getCase(conn, id)
	if err != nil {
		return Case{}, err
	}
	if !found {
		return Case{}, fmt.Errorf("%w: %s", ErrUnknownCase, id)
	}
	return c, nil
}

// List returns cases matching the filter, newest update first, id as
// tie-break.
func (ix *Index) List(ctx context.Context, filter Filter) ([]Case, error) {
	if filter.Status != "" {
		if err := ValidateStatus(filter.Status); err != nil {
			return nil, err
		}
	}
	if filter.Priority != "" {
		if err := ValidatePriority(filter.Priority); err != nil {
			return nil, err
		}
	}

	conn, err := ix.pool.Take(ctx)
	if err != nil {
		return nil, err
	}
	defer ix.pool.Put(conn)

	var (
		where []string
		args  []any
	)
	query := "SELECT id, title, description, status, priority, officer, tags, created_at, updated_at FROM cases"
	if filter.Status != "" {
		where = append(where, "status = ?")
		args = append(args, string(filter.Status))
	}
	if filter.Priority != "" {
		where = append(where, "priority = ?")
		args = append(args, string(filter.Priority))
	}
	if filter.Officer != "" {
		where = append(where, "officer = ?")
		args = append(args, filter.Officer)
	}
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY updated_at DESC, id ASC"

	var cases []Case
	err = sqlitex.Execute(conn, query, &sqlitex.ExecOptions{
		Args: args,
		ResultFunc: func(stmt *sqlite.Stmt) error {
			c, err := caseFromRow(stmt)
			if err != nil {
				return err
			}
			cases = append(cases, c)
			return nil
		},
	})
	if err != nil {
		return nil, fmt.Errorf("caseindex: listing cases: %w", err)
	}
	return cases, nil
}

// requireCase fails with ErrUnknownCase when the case does not exist.
func requireCase(conn *sqlite.Conn, id string) error {
	exists := false
	err := sqlitex.Execute(conn, "SELECT 1 FROM cases WHERE id = ?", &sqlitex.ExecOptions{
		Args: []any{id},
		ResultFunc: func(*sqlite.Stmt) error {
			exists = true
			return nil
		},
	})
	if err != nil {
		return fmt.Errorf("caseindex: checking case %s: %w", id, err)
	}
	if !exists {
		return fmt.Errorf("%w: %s", ErrUnknownCase, id)
	}
	return nil
}

// requireEvidence fails with custody.ErrUnknownEvidence when the item
// does not exist.
func requireEvidence(conn *sqlite.Conn, id string) error {
	exists := false
	err := sqlitex.Execute(conn, "SELECT 1 FROM evidence_items WHERE id = ?", &sqlitex.ExecOptions{
		Args: []any{id},
		ResultFunc: func(*sqlite.Stmt) error {
			exists = true
			return nil
		},
	})
	if err != nil {
		return fmt.Errorf("caseindex: checking evidence %s: %w", id, err)
	}
	if !exists {
		return fmt.Errorf("%w: %s", custody.ErrUnknownEvidence, id)
	}
	return nil
}

func getCase(conn *sqlite.Conn, id string) (Case, bool, error) {
	var (
		c      Case
		found  bool
		rowErr error
	)
	err := sqlitex.Execute(conn, `
		SELECT id, title, description, status, priority, officer, tags, created_at, updated_at
		FROM cases WHERE id = ?
	`, &sqlitex.ExecOptions{
		Args: []any{id},
		ResultFunc: func(stmt *sqlite.Stmt) error {
			c, rowErr = caseFromRow(stmt)
			found = true
			return rowErr
		},
	})
	if err != nil {
		return Case{}, false, fmt.Errorf("caseindex: reading case %s: %w", id, err)
	}
	return c, found, nil
}

func caseFromRow(stmt *sqlite.Stmt) (Case, error) {
	c := Case{
		ID:          stmt.ColumnText(0),
		Title:       stmt.ColumnText(1),
		Description: stmt.ColumnText(2),
		Status:      Status(stmt.ColumnText(3)),
		Priority:    Priority(stmt.ColumnText(4)),
		Officer:     stmt.ColumnText(5),
		CreatedAt:   time.Unix(0, stmt.ColumnInt64(7)).UTC(),
		UpdatedAt:   time.Unix(0, stmt.ColumnInt64(8)).UTC(),
	}
	if err := json.Unmarshal([]byte(stmt.ColumnText(6)), &c.Tags); err != nil {
		return Case{}, fmt.Errorf("caseindex: decoding tags for %s: %w", c.ID, err)
	}
	if c.Tags == nil {
		c.Tags = []string{}
	}
	return c, nil
}
