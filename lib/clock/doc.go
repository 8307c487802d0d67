// Copyright 2026 The Evidentia Authors
// SPDX-License-Identifier: Apache-2.0

// Package clock provides an injectable time abstraction for testability.
//
// Production code accepts a Clock parameter instead of calling
// time.Now directly. In production, Real() provides standard library
// behavior. In tests, Fake() provides a deterministic clock that
// advances only when Advance is called, so timestamps on custody
// events, cases, and notes are reproducible.
//
// # Wiring Pattern
//
// Add a Clock field to structs that timestamp records:
//
//	type Ledger struct {
//	    clock clock.Clock
//	    // ...
//	}
//
// In production:
//
//	ledger := custody.NewLedger(pool, locks, clock.Real(), logger)
//
// In tests:
//
//	clk := clock.Fake(time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC))
package clock
