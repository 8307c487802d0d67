// Copyright 2026 The Evidentia Authors
// SPDX-License-Identifier: Apache-2.0

// Package caseindex manages investigation cases and their links to
// evidence items.
//
// Case identifiers are allocated from a per-year sequence
// ("CASE-2026-001") and never reused. Evidence links have set
// semantics: linking twice is a no-op, and unlinking writes a
// "transferred" custody event rather than erasing history. Cases are
// archived, never deleted.
//
// Mutations to one case serialize on that case's exclusive section.
// When a case mutation also touches an evidence item (unlink), the
// case section is always acquired before the evidence section.
package caseindex
