// Copyright 2026 The Evidentia Authors
// SPDX-License-Identifier: Apache-2.0

// Package evidence is the catalog of ingested evidence items.
//
// An item's identifier is derived from its content fingerprint, so
// registering the same bytes twice resolves to the same record: the
// duplicate is reported with [ErrDuplicateFingerprint] alongside the
// existing item, and no second record or custody event is created.
//
// Registration and the item's first custody event ("uploaded") commit
// in a single transaction under the item's exclusive section. An item
// visible in the catalog therefore always has custody history, and a
// failed registration leaves nothing behind.
//
// Items are never deleted. Verification status moves from pending to
// verified or mismatched; a mismatch is recorded in the custody chain
// before the error is surfaced.
package evidence
