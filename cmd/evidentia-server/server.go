// Copyright 2026 The Evidentia Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"crypto/ed25519"
	"encoding/base64"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/evidentia-foundation/evidentia/lib/blobstore"
	"github.com/evidentia-foundation/evidentia/lib/caseindex"
	"github.com/evidentia-foundation/evidentia/lib/clock"
	"github.com/evidentia-foundation/evidentia/lib/custody"
	"github.com/evidentia-foundation/evidentia/lib/evidence"
	"github.com/evidentia-foundation/evidentia/lib/officertoken"
	"github.com/evidentia-foundation/evidentia/lib/search"
	"github.com/evidentia-foundation/evidentia/lib/version"
)

// Deps are the collaborators the server routes requests to.
type Deps struct {
	Evidence *evidence.Store
	Ledger   *custody.Ledger
	Cases    *caseindex.Index
	Engine   *search.Engine
	Blobs    *blobstore.Store
	TrustKey ed25519.PublicKey
	Clock    clock.Clock
	Logger   *slog.Logger
}

// Server is the HTTP surface of the service.
type Server struct {
	evidence *evidence.Store
	ledger   *custody.Ledger
	cases    *caseindex.Index
	engine   *search.Engine
	blobs    *blobstore.Store
	trustKey ed25519.PublicKey
	clock    clock.Clock
	logger   *slog.Logger
}

// NewServer builds a Server from its dependencies.
func NewServer(deps Deps) *Server {
	logger := deps.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Server{
		evidence: deps.Evidence,
		ledger:   deps.Ledger,
		cases:    deps.Cases,
		engine:   deps.Engine,
		blobs:    deps.Blobs,
		trustKey: deps.TrustKey,
		clock:    deps.Clock,
		logger:   logger,
	}
}

// Routes builds the router. Everything under /api requires a valid
// officer token; /healthz does not.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Get("/healthz", s.handleHealthz)

	r.Route("/api", func(r chi.Router) {
		r.Use(s.requireOfficer)

		r.Post("/evidence", s.handleIngest)
		r.Get("/evidence", s.handleListEvidence)
		r.Get("/evidence/{id}", s.handleGetEvidence)
		r.Get("/evidence/{id}/custody", s.handleCustody)
		r.Post("/evidence/{id}/events", s.handleAppendEvent)
		r.Post("/evidence/{id}/verify", s.handleVerify)

		r.Post("/cases", s.handleCreateCase)
		r.Get("/cases", s.handleListCases)
		r.Get("/cases/{id}", s.handleGetCase)
		r.Patch("/cases/{id}", s.handleUpdateCase)
		r.Post("/cases/{id}/notes", s.handleAddNote)
		r.Get("/cases/{id}/notes", s.handleListNotes)
		r.Put("/cases/{id}/evidence/{evidenceID}", s.handleLinkEvidence)
		r.Delete("/cases/{id}/evidence/{evidenceID}", s.handleUnlinkEvidence)

		r.Get("/search", s.handleSearch)
		r.Get("/stats", s.handleStats)
	})

	return r
}

// officerKey is the context key for the verified officer token.
type officerKey struct{}

// requireOfficer verifies the Bearer officer token and stores it in
// the request context. The token is base64 (standard encoding) of the
// raw minted bytes.
func (s *Server) requireOfficer(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		encoded, ok := strings.CutPrefix(header, "Bearer ")
		if !ok {
			s.writeError(w, http.StatusUnauthorized, "missing bearer token")
			return
		}
		raw, err := base64.StdEncoding.DecodeString(encoded)
		if err != nil {
			s.writeError(w, http.StatusUnauthorized, "malformed bearer token")
			return
		}
		token, err := officertoken.VerifyAt(s.trustKey, raw, s.clock.Now())
		if err != nil {
			s.logger.Warn("rejected officer token", "error", err)
			s.writeError(w, http.StatusUnauthorized, "invalid officer token")
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), officerKey{}, token)))
	})
}

// officerFrom returns the verified token from the request context.
// Panics if called outside requireOfficer; routing guarantees it is
// not.
func officerFrom(ctx context.Context) *officertoken.Token {
	return ctx.Value(officerKey{}).(*officertoken.Token)
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{
		"status":  "ok",
		"version": version.Short(),
	})
}

// writeJSON writes a JSON response body with the given status.
func (s *Server) writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		s.logger.Error("writing response", "error", err)
	}
}

// writeError writes the standard error body.
func (s *Server) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, map[string]string{"error": message})
}

// writeMappedError translates a domain error into its HTTP status.
func (s *Server) writeMappedError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, custody.ErrUnknownEvidence),
		errors.Is(err, caseindex.ErrUnknownCase),
		errors.Is(err, blobstore.ErrBlobNotFound):
		s.writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, evidence.ErrHashMismatch):
		s.writeError(w, http.StatusConflict, err.Error())
	default:
		s.logger.Error("request failed", "error", err)
		s.writeError(w, http.StatusInternalServerError, "internal error")
	}
}

// decodeBody decodes a JSON request body, rejecting unknown fields.
func decodeBody(r *http.Request, into any) error {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	return decoder.Decode(into)
}
