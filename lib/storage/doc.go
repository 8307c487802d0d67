// Copyright 2026 The Evidentia Authors
// SPDX-License-Identifier: Apache-2.0

// Package storage owns the catalog schema and opens the shared pool.
//
// One SQLite database holds the evidence catalog, the custody ledger,
// and the case index. Keeping them in one database is what makes the
// core atomicity guarantee cheap: registering an evidence item and
// appending its first custody event is a single transaction, so no
// evidence item can ever exist without at least one custody event.
//
// The schema encodes the data-model invariants directly:
//
//   - evidence fingerprints are UNIQUE (one record per artifact),
//   - custody events are keyed (evidence_id, seq) with a foreign key
//     to evidence_items (no event for an unknown artifact),
//   - case↔evidence links are a primary-keyed pair table (a set, not
//     a list — duplicate links are structurally impossible),
//   - status and verification columns carry CHECK constraints for the
//     closed enumerations.
//
// Nothing in the schema supports deletion of evidence or custody
// events; removal from a case is recorded as a custody event and the
// rows stay.
package storage
