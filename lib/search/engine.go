// Copyright 2026 The Evidentia Authors
// SPDX-License-Identifier: Apache-2.0

package search

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"

	"github.com/evidentia-foundation/evidentia/lib/caseindex"
	"github.com/evidentia-foundation/evidentia/lib/sqlitepool"
)

// Tier classifies how a case's text matched the query. Higher tiers
// always outrank lower tiers regardless of BM25 score.
type Tier int

const (
	// TierNone means the text did not match. Cases in this tier are
	// excluded from text-query results.
	TierNone Tier = iota

	// TierTag means a case tag equals the query (case-insensitive).
	TierTag

	// TierNote means the query appears inside a case note but not in
	// the title or description.
	TierNote

	// TierSubstring means the query appears inside the title or
	// description.
	TierSubstring

	// TierExact means the title or description equals the query
	// (case-insensitive).
	TierExact
)

// Predicate is a conjunction of search conditions. Zero fields match
// everything.
type Predicate struct {
	// Text ranks by tiered relevance; empty means no text condition
	// and results order by case id.
	Text string

	// Tags requires every listed tag to be present on the case.
	Tags []string

	// Officer requires the case's assigned officer.
	Officer string

	// Status requires the case's lifecycle state.
	Status caseindex.Status

	// Priority requires the case's urgency level.
	Priority caseindex.Priority

	// From/To bound the case creation time (inclusive). Zero means
	// unbounded.
	From time.Time
	To   time.Time
}

// Hit is one search result.
type Hit struct {
	Case  caseindex.Case `json:"case"`
	Tier  Tier           `json:"tier"`
	Score float64        `json:"score"`
}

// Stats are dashboard aggregates over the whole catalog.
type Stats struct {
	TotalCases         int64            `json:"total_cases"`
	CasesByStatus      map[string]int64 `json:"cases_by_status"`
	TotalEvidence      int64            `json:"total_evidence"`
	EvidenceByStatus   map[string]int64 `json:"evidence_by_status"`
	TotalBytesIngested int64            `json:"total_bytes_ingested"`
}

// Engine answers queries over the case registry. Read-only; safe for
// concurrent use.
type Engine struct {
	pool  *sqlitepool.Pool
	index *caseindex.Index
}

// NewEngine creates an Engine over the shared pool. The case index is
// used only for note retrieval.
func NewEngine(pool *sqlitepool.Pool, index *caseindex.Index) *Engine {
	return &Engine{pool: pool, index: index}
}

// Search evaluates the predicate and returns one stable page of hits.
// Filtering happens in SQL where possible (status, priority, officer,
// time bounds); tag conjunction and text tiering happen over the
// filtered candidates. A negative offset or limit is treated as zero;
// limit zero means no cap.
func (e *Engine) Search(ctx context.Context, predicate Predicate, offset, limit int) ([]Hit, error) {
	candidates, err := e.filterCases(ctx, predicate)
	if err != nil {
		return nil, err
	}

	var hits []Hit
	if strings.TrimSpace(predicate.Text) == "" {
		hits = make([]Hit, 0, len(candidates))
		for _, c := range candidates {
			hits = append(hits, Hit{Case: c})
		}
		sort.Slice(hits, func(a, b int) bool {
			return hits[a].Case.ID < hits[b].Case.ID
		})
	} else {
		hits, err = e.rankByText(ctx, candidates, predicate.Text)
		if err != nil {
			return nil, err
		}
	}

	return page(hits, offset, limit), nil
}

// rankByText tiers and scores the candidates against the query and
// returns matching hits in descending rank.
func (e *Engine) rankByText(ctx context.Context, candidates []caseindex.Case, text string) ([]Hit, error) {
	query := strings.TrimSpace(text)
	queryLower := strings.ToLower(query)

	documents := make([]caseDocument, len(candidates))
	for i, c := range candidates {
		notes, err := e.index.Notes(ctx, c.ID)
		if err != nil {
			return nil, fmt.Errorf("search: loading notes for %s: %w", c.ID, err)
		}
		doc := caseDocument{caseID: c.ID, title: c.Title, description: c.Description}
		for _, note := range notes {
			doc.notes = append(doc.notes, note.Content)
		}
		documents[i] = doc
	}

	r := newRanker(documents)
	queryTokens := tokenize(query)

	var hits []Hit
	for i, c := range candidates {
		tier := classify(c, documents[i].notes, queryLower)
		if tier == TierNone {
			continue
		}
		hits = append(hits, Hit{
			Case:  c,
			Tier:  tier,
			Score: r.score(i, queryTokens),
		})
	}

	sort.Slice(hits, func(a, b int) bool {
		if hits[a].Tier != hits[b].Tier {
			return hits[a].Tier > hits[b].Tier
		}
		if hits[a].Score != hits[b].Score {
			return hits[a].Score > hits[b].Score
		}
		return hits[a].Case.ID < hits[b].Case.ID
	})
	return hits, nil
}

// classify places a case in its text-match tier. Notes are part of
// the searched text: a case whose only mention of the query sits in a
// note still matches, below title and description matches.
func classify(c caseindex.Case, notes []string, queryLower string) Tier {
	titleLower := strings.ToLower(c.Title)
	descriptionLower := strings.ToLower(c.Description)

	if titleLower == queryLower || (descriptionLower != "" && descriptionLower == queryLower) {
		return TierExact
	}
	if strings.Contains(titleLower, queryLower) || strings.Contains(descriptionLower, queryLower) {
		return TierSubstring
	}
	for _, note := range notes {
		if strings.Contains(strings.ToLower(note), queryLower) {
			return TierNote
		}
	}
	for _, tag := range c.Tags {
		if strings.ToLower(tag) == queryLower {
			return TierTag
		}
	}
	return TierNone
}

// filterCases applies the predicate's structural conditions.
func (e *Engine) filterCases(ctx context.Context, predicate Predicate) ([]caseindex.Case, error) {
	if predicate.Status != "" {
		if err := caseindex.ValidateStatus(predicate.Status); err != nil {
			return nil, err
		}
	}
	if predicate.Priority != "" {
		if err := caseindex.ValidatePriority(predicate.Priority); err != nil {
			return nil, err
		}
	}

	conn, err := e.pool.Take(ctx)
	if err != nil {
		return nil, err
	}
	defer e.pool.Put(conn)

	var (
		where []string
		args  []any
	)
	query := "SELECT id, title, description, status, priority, officer, tags, created_at, updated_at FROM cases"
	if predicate.Status != "" {
		where = append(where, "status = ?")
		args = append(args, string(predicate.Status))
	}
	if predicate.Priority != "" {
		where = append(where, "priority = ?")
		args = append(args, string(predicate.Priority))
	}
	if predicate.Officer != "" {
		where = append(where, "officer = ?")
		args = append(args, predicate.Officer)
	}
	if !predicate.From.IsZero() {
		where = append(where, "created_at >= ?")
		args = append(args, predicate.From.UTC().UnixNano())
	}
	if !predicate.To.IsZero() {
		where = append(where, "created_at <= ?")
		args = append(args, predicate.To.UTC().UnixNano())
	}
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY id ASC"

	var cases []caseindex.Case
	err = sqlitex.Execute(conn, query, &sqlitex.ExecOptions{
		Args: args,
		ResultFunc: func(stmt *sqlite.Stmt) error {
			c, err := caseFromSearchRow(stmt)
			if err != nil {
				return err
			}
			if !hasAllTags(c.Tags, predicate.Tags) {
				return nil
			}
			cases = append(cases, c)
			return nil
		},
	})
	if err != nil {
		return nil, fmt.Errorf("search: filtering cases: %w", err)
	}
	return cases, nil
}

// hasAllTags reports whether every required tag is present
// (case-insensitive).
func hasAllTags(have, want []string) bool {
	for _, w := range want {
		found := false
		for _, h := range have {
			if strings.EqualFold(h, w) {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

// page slices out one offset/limit window.
func page(hits []Hit, offset, limit int) []Hit {
	if offset < 0 {
		offset = 0
	}
	if offset >= len(hits) {
		return []Hit{}
	}
	hits = hits[offset:]
	if limit > 0 && len(hits) > limit {
		hits = hits[:limit]
	}
	return hits
}

// Stats computes catalog-wide aggregates for the dashboard.
func (e *Engine) Stats(ctx context.Context) (Stats, error) {
	conn, err := e.pool.Take(ctx)
	if err != nil {
		return Stats{}, err
	}
	defer e.pool.Put(conn)

	stats := Stats{
		CasesByStatus:    make(map[string]int64),
		EvidenceByStatus: make(map[string]int64),
	}

	err = sqlitex.Execute(conn, "SELECT status, COUNT(*) FROM cases GROUP BY status", &sqlitex.ExecOptions{
		ResultFunc: func(stmt *sqlite.Stmt) error {
			count := stmt.ColumnInt64(1)
			stats.CasesByStatus[stmt.ColumnText(0)] = count
			stats.TotalCases += count
			return nil
		},
	})
	if err != nil {
		return Stats{}, fmt.Errorf("search: aggregating cases: %w", err)
	}

	err = sqlitex.Execute(conn, `
		SELECT verification, COUNT(*), COALESCE(SUM(size_bytes), 0)
		FROM evidence_items GROUP BY verification
	`, &sqlitex.ExecOptions{
		ResultFunc: func(stmt *sqlite.Stmt) error {
			count := stmt.ColumnInt64(1)
			stats.EvidenceByStatus[stmt.ColumnText(0)] = count
			stats.TotalEvidence += count
			stats.TotalBytesIngested += stmt.ColumnInt64(2)
			return nil
		},
	})
	if err != nil {
		return Stats{}, fmt.Errorf("search: aggregating evidence: %w", err)
	}

	return stats, nil
}

// caseFromSearchRow decodes a case row in the column order used by
// filterCases.
func caseFromSearchRow(stmt *sqlite.Stmt) (caseindex.Case, error) {
	c := caseindex.Case{
		ID:          stmt.ColumnText(0),
		Title:       stmt.ColumnText(1),
		Description: stmt.ColumnText(2),
		Status:      caseindex.Status(stmt.ColumnText(3)),
		Priority:    caseindex.Priority(stmt.ColumnText(4)),
		Officer:     stmt.ColumnText(5),
		CreatedAt:   time.Unix(0, stmt.ColumnInt64(7)).UTC(),
		UpdatedAt:   time.Unix(0, stmt.ColumnInt64(8)).UTC(),
	}
	if err := json.Unmarshal([]byte(stmt.ColumnText(6)), &c.Tags); err != nil {
		return caseindex.Case{}, fmt.Errorf("search: decoding tags for %s: %w", c.ID, err)
	}
	if c.Tags == nil {
		c.Tags = []string{}
	}
	return c, nil
}
