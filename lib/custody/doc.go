// Copyright 2026 The Evidentia Authors
// SPDX-License-Identifier: Apache-2.0

// Package custody maintains the append-only, tamper-evident handling
// history of every evidence artifact.
//
// Each artifact has its own event sequence, numbered contiguously from
// 1. Every entry carries a digest computed over the previous entry's
// digest concatenated with the deterministic CBOR encoding of the
// entry's own fields — a hash chain. Editing, removing, or reordering
// any past entry changes every digest after it, so [Ledger.VerifyChain]
// detects retroactive tampering by recomputing the chain from entry 1
// and comparing against what is stored.
//
// Entry digests are BLAKE3 keyed hashes with a fixed domain key, so a
// custody digest can never collide with a digest from another context.
// The chain's genesis predecessor is 32 zero bytes.
//
// The ledger is the only writer of custody_events. Other packages that
// need an event recorded (the evidence store's atomic
// register+uploaded step, the case index's unlink events) go through
// [Ledger.AppendLocked] inside their own transaction — they never
// touch the table directly.
//
// A broken chain is reported, never repaired. The divergence point is
// a fact about the evidence that must persist for legal review.
package custody
