// Copyright 2026 The Evidentia Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"bytes"
	"errors"
	"io"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/evidentia-foundation/evidentia/lib/caseindex"
	"github.com/evidentia-foundation/evidentia/lib/custody"
	"github.com/evidentia-foundation/evidentia/lib/digest"
	"github.com/evidentia-foundation/evidentia/lib/evidence"
	"github.com/evidentia-foundation/evidentia/lib/search"
)

// handleIngest accepts a raw evidence stream, fingerprints and spools
// it, stores the blob, registers the catalog entry, and optionally
// links it to a case. A failed or truncated stream registers nothing.
func (s *Server) handleIngest(w http.ResponseWriter, r *http.Request) {
	officer := officerFrom(r.Context())
	query := r.URL.Query()

	filename := query.Get("filename")
	if filename == "" {
		s.writeError(w, http.StatusBadRequest, "filename query parameter is required")
		return
	}

	var declaredSize int64 = -1
	if raw := query.Get("size"); raw != "" {
		parsed, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || parsed < 0 {
			s.writeError(w, http.StatusBadRequest, "size must be a non-negative integer")
			return
		}
		declaredSize = parsed
	}

	caseID := query.Get("case")
	if caseID != "" {
		if _, err := s.cases.Get(r.Context(), caseID); err != nil {
			s.writeMappedError(w, err)
			return
		}
	}

	// Hash and spool to disk in one pass, so memory stays bounded no
	// matter how large the artifact is. No lock is held during this
	// read: a slow upload must not block other operations on the
	// artifact.
	spool, err := s.blobs.NewSpool()
	if err != nil {
		s.writeMappedError(w, err)
		return
	}
	defer func() {
		spool.Close()
		os.Remove(spool.Name())
	}()

	digester := digest.NewDigester()
	if _, err := io.Copy(io.MultiWriter(digester, spool), r.Body); err != nil {
		streamErr := &digest.StreamReadError{BytesRead: digester.Size(), Err: err}
		s.logger.Warn("evidence stream failed", "error", streamErr)
		s.writeError(w, http.StatusBadGateway, streamErr.Error())
		return
	}
	if declaredSize >= 0 && declaredSize != digester.Size() {
		s.writeError(w, http.StatusBadRequest, "declared size does not match stream length")
		return
	}

	fingerprint := digester.Fingerprint()
	if _, err := spool.Seek(0, io.SeekStart); err != nil {
		s.writeMappedError(w, err)
		return
	}
	if _, err := s.blobs.PutStream(fingerprint, spool, digester.Size()); err != nil {
		s.writeMappedError(w, err)
		return
	}

	item, created, err := s.evidence.Register(r.Context(), evidence.RegisterRequest{
		Fingerprint: fingerprint,
		Filename:    filename,
		SizeBytes:   digester.Size(),
		Officer:     officer.OfficerID,
	})
	if err != nil && !errors.Is(err, evidence.ErrDuplicateFingerprint) {
		s.writeMappedError(w, err)
		return
	}

	if caseID != "" {
		if _, err := s.cases.LinkEvidence(r.Context(), caseID, item.ID); err != nil {
			s.writeMappedError(w, err)
			return
		}
	}

	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	s.writeJSON(w, status, map[string]any{
		"evidence_id":  item.ID,
		"fingerprint":  item.Fingerprint,
		"size_bytes":   item.SizeBytes,
		"verification": item.Verification,
		"created":      created,
	})
}

func (s *Server) handleListEvidence(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	items, err := s.evidence.List(r.Context(), evidence.Filter{
		CaseID:       query.Get("case"),
		Verification: evidence.Verification(query.Get("verification")),
		Officer:      query.Get("officer"),
	})
	if err != nil {
		s.writeMappedError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"items": items, "count": len(items)})
}

func (s *Server) handleGetEvidence(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	item, err := s.evidence.Get(r.Context(), id)
	if err != nil {
		s.writeMappedError(w, err)
		return
	}
	caseIDs, err := s.cases.CasesFor(r.Context(), id)
	if err != nil {
		s.writeMappedError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"item": item, "cases": caseIDs})
}

// handleCustody returns the full ordered event history together with
// the chain verification result. A broken chain is reported, never
// hidden.
func (s *Server) handleCustody(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if _, err := s.evidence.Get(r.Context(), id); err != nil {
		s.writeMappedError(w, err)
		return
	}

	events, err := s.ledger.Events(r.Context(), id)
	if err != nil {
		s.writeMappedError(w, err)
		return
	}
	status, err := s.ledger.VerifyChain(r.Context(), id)
	if err != nil {
		s.writeMappedError(w, err)
		return
	}

	body := map[string]any{
		"evidence_id": id,
		"events":      events,
		"chain":       "valid",
	}
	if !status.Valid {
		body["chain"] = "broken"
		body["broken_at_seq"] = status.BrokenAtSeq
	}
	s.writeJSON(w, http.StatusOK, body)
}

func (s *Server) handleAppendEvent(w http.ResponseWriter, r *http.Request) {
	officer := officerFrom(r.Context())
	id := chi.URLParam(r, "id")

	var body struct {
		Action   custody.Action `json:"action"`
		Location string         `json:"location"`
		Notes    string         `json:"notes"`
	}
	if err := decodeBody(r, &body); err != nil {
		s.writeError(w, http.StatusBadRequest, "malformed request body")
		return
	}
	if err := custody.ValidateAction(body.Action); err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	// The uploaded event is written exactly once, by ingestion.
	if body.Action == custody.ActionUploaded {
		s.writeError(w, http.StatusBadRequest, "uploaded events are recorded at ingestion")
		return
	}

	entry, err := s.ledger.Append(r.Context(), id, custody.Event{
		Action:   body.Action,
		Actor:    officer.OfficerID,
		Location: body.Location,
		Notes:    body.Notes,
	})
	if err != nil {
		s.writeMappedError(w, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, entry)
}

// handleVerify re-derives the artifact's fingerprint and records the
// outcome. With an expected_fingerprint in the body, that value is
// compared instead of re-reading the blob (client-side
// recomputation). A mismatch responds 409 and still appends the
// verification event.
func (s *Server) handleVerify(w http.ResponseWriter, r *http.Request) {
	officer := officerFrom(r.Context())
	id := chi.URLParam(r, "id")

	item, err := s.evidence.Get(r.Context(), id)
	if err != nil {
		s.writeMappedError(w, err)
		return
	}

	var body struct {
		ExpectedFingerprint string `json:"expected_fingerprint"`
	}
	if err := decodeBody(r, &body); err != nil && !errors.Is(err, io.EOF) {
		s.writeError(w, http.StatusBadRequest, "malformed request body")
		return
	}

	var computed digest.Fingerprint
	if body.ExpectedFingerprint != "" {
		computed, err = digest.Parse(body.ExpectedFingerprint)
		if err != nil {
			s.writeError(w, http.StatusBadRequest, err.Error())
			return
		}
	} else {
		payload, err := s.blobs.Get(item.Fingerprint)
		if err != nil {
			s.writeMappedError(w, err)
			return
		}
		computed, _, err = digest.Sum(bytes.NewReader(payload))
		if err != nil {
			s.writeMappedError(w, err)
			return
		}
	}

	verified, err := s.evidence.MarkVerified(r.Context(), id, computed, officer.OfficerID)
	if err != nil && !errors.Is(err, evidence.ErrHashMismatch) {
		s.writeMappedError(w, err)
		return
	}

	events, eventsErr := s.ledger.Events(r.Context(), id)
	var recorded any
	if eventsErr == nil && len(events) > 0 {
		recorded = events[len(events)-1]
	}

	status := http.StatusOK
	if err != nil {
		status = http.StatusConflict
	}
	s.writeJSON(w, status, map[string]any{
		"evidence_id":  verified.ID,
		"verification": verified.Verification,
		"computed":     computed,
		"recorded":     verified.Fingerprint,
		"event":        recorded,
	})
}

func (s *Server) handleCreateCase(w http.ResponseWriter, r *http.Request) {
	officer := officerFrom(r.Context())

	var body struct {
		Title       string             `json:"title"`
		Description string             `json:"description"`
		Priority    caseindex.Priority `json:"priority"`
		Tags        []string           `json:"tags"`
	}
	if err := decodeBody(r, &body); err != nil {
		s.writeError(w, http.StatusBadRequest, "malformed request body")
		return
	}
	if body.Title == "" {
		s.writeError(w, http.StatusBadRequest, "title is required")
		return
	}
	if err := caseindex.ValidatePriority(body.Priority); err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	created, err := s.cases.CreateCase(r.Context(), body.Title, body.Description, body.Priority, officer.OfficerID, body.Tags)
	if err != nil {
		s.writeMappedError(w, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, created)
}

func (s *Server) handleListCases(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	filter := caseindex.Filter{
		Status:   caseindex.Status(query.Get("status")),
		Priority: caseindex.Priority(query.Get("priority")),
		Officer:  query.Get("officer"),
	}
	if filter.Status != "" {
		if err := caseindex.ValidateStatus(filter.Status); err != nil {
			s.writeError(w, http.StatusBadRequest, err.Error())
			return
		}
	}
	if filter.Priority != "" {
		if err := caseindex.ValidatePriority(filter.Priority); err != nil {
			s.writeError(w, http.StatusBadRequest, err.Error())
			return
		}
	}

	cases, err := s.cases.List(r.Context(), filter)
	if err != nil {
		s.writeMappedError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"cases": cases, "count": len(cases)})
}

func (s *Server) handleGetCase(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	c, err := s.cases.Get(r.Context(), id)
	if err != nil {
		s.writeMappedError(w, err)
		return
	}
	count, err := s.cases.EvidenceCount(r.Context(), id)
	if err != nil {
		s.writeMappedError(w, err)
		return
	}
	items, err := s.evidence.List(r.Context(), evidence.Filter{CaseID: id})
	if err != nil {
		s.writeMappedError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{
		"case":           c,
		"evidence_count": count,
		"evidence":       items,
	})
}

func (s *Server) handleUpdateCase(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var body struct {
		Status   caseindex.Status   `json:"status"`
		Priority caseindex.Priority `json:"priority"`
	}
	if err := decodeBody(r, &body); err != nil {
		s.writeError(w, http.StatusBadRequest, "malformed request body")
		return
	}
	if body.Status == "" && body.Priority == "" {
		s.writeError(w, http.StatusBadRequest, "status or priority is required")
		return
	}

	var (
		updated caseindex.Case
		err     error
	)
	if body.Status != "" {
		if err := caseindex.ValidateStatus(body.Status); err != nil {
			s.writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		updated, err = s.cases.UpdateStatus(r.Context(), id, body.Status)
		if err != nil {
			s.writeMappedError(w, err)
			return
		}
	}
	if body.Priority != "" {
		if err := caseindex.ValidatePriority(body.Priority); err != nil {
			s.writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		updated, err = s.cases.UpdatePriority(r.Context(), id, body.Priority)
		if err != nil {
			s.writeMappedError(w, err)
			return
		}
	}
	s.writeJSON(w, http.StatusOK, updated)
}

func (s *Server) handleAddNote(w http.ResponseWriter, r *http.Request) {
	officer := officerFrom(r.Context())
	id := chi.URLParam(r, "id")

	var body struct {
		Content string `json:"content"`
	}
	if err := decodeBody(r, &body); err != nil {
		s.writeError(w, http.StatusBadRequest, "malformed request body")
		return
	}
	if body.Content == "" {
		s.writeError(w, http.StatusBadRequest, "content is required")
		return
	}

	note, err := s.cases.AddNote(r.Context(), id, officer.OfficerID, body.Content)
	if err != nil {
		s.writeMappedError(w, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, note)
}

func (s *Server) handleListNotes(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	notes, err := s.cases.Notes(r.Context(), id)
	if err != nil {
		s.writeMappedError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"notes": notes, "count": len(notes)})
}

func (s *Server) handleLinkEvidence(w http.ResponseWriter, r *http.Request) {
	caseID := chi.URLParam(r, "id")
	evidenceID := chi.URLParam(r, "evidenceID")

	linked, err := s.cases.LinkEvidence(r.Context(), caseID, evidenceID)
	if err != nil {
		s.writeMappedError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{
		"case_id":     caseID,
		"evidence_id": evidenceID,
		"linked":      linked,
	})
}

func (s *Server) handleUnlinkEvidence(w http.ResponseWriter, r *http.Request) {
	officer := officerFrom(r.Context())
	caseID := chi.URLParam(r, "id")
	evidenceID := chi.URLParam(r, "evidenceID")

	unlinked, err := s.cases.UnlinkEvidence(r.Context(), caseID, evidenceID, officer.OfficerID)
	if err != nil {
		s.writeMappedError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{
		"case_id":     caseID,
		"evidence_id": evidenceID,
		"unlinked":    unlinked,
	})
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()

	predicate := search.Predicate{
		Text:     query.Get("q"),
		Tags:     query["tag"],
		Officer:  query.Get("officer"),
		Status:   caseindex.Status(query.Get("status")),
		Priority: caseindex.Priority(query.Get("priority")),
	}
	if predicate.Status != "" {
		if err := caseindex.ValidateStatus(predicate.Status); err != nil {
			s.writeError(w, http.StatusBadRequest, err.Error())
			return
		}
	}
	if predicate.Priority != "" {
		if err := caseindex.ValidatePriority(predicate.Priority); err != nil {
			s.writeError(w, http.StatusBadRequest, err.Error())
			return
		}
	}
	for _, bound := range []struct {
		name string
		into *time.Time
	}{
		{"from", &predicate.From},
		{"to", &predicate.To},
	} {
		if raw := query.Get(bound.name); raw != "" {
			parsed, err := time.Parse(time.RFC3339, raw)
			if err != nil {
				s.writeError(w, http.StatusBadRequest, bound.name+" must be RFC 3339")
				return
			}
			*bound.into = parsed
		}
	}

	offset, err := parseNonNegative(query.Get("offset"), 0)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "offset must be a non-negative integer")
		return
	}
	limit, err := parseNonNegative(query.Get("limit"), 50)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "limit must be a non-negative integer")
		return
	}

	hits, err := s.engine.Search(r.Context(), predicate, offset, limit)
	if err != nil {
		s.writeMappedError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{
		"hits":   hits,
		"count":  len(hits),
		"offset": offset,
		"limit":  limit,
	})
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.engine.Stats(r.Context())
	if err != nil {
		s.writeMappedError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, stats)
}

// parseNonNegative parses a query integer with a default for the
// empty string.
func parseNonNegative(raw string, fallback int) (int, error) {
	if raw == "" {
		return fallback, nil
	}
	parsed, err := strconv.Atoi(raw)
	if err != nil || parsed < 0 {
		return 0, errors.New("negative or malformed")
	}
	return parsed, nil
}
