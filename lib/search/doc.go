// Copyright 2026 The Evidentia Authors
// SPDX-License-Identifier: Apache-2.0

// Package search answers read-only queries over the case registry.
//
// Results are deterministic: the same catalog state and the same
// predicate always produce the same ordering. Text relevance is
// tiered — an exact title or description match outranks a title or
// description substring match, which outranks a match inside a case
// note, which outranks a tag match — and within a tier a BM25
// score over title, description, and notes orders the hits, with the
// case id as the final tie-break. Pagination by offset and limit is
// stable across calls because the ordering is total.
package search
