// Copyright 2026 The Evidentia Authors
// SPDX-License-Identifier: Apache-2.0

// Package digest computes content fingerprints for evidence artifacts.
//
// A fingerprint is the algorithm-tagged SHA-256 digest of an
// artifact's exact byte content, formatted as "sha256:<64 hex chars>".
// The fingerprint is the artifact's identity: two uploads with the
// same fingerprint are the same artifact, and the evidence identifier
// is derived from the fingerprint so re-registration is naturally
// idempotent.
//
// Digestion streams: input of any length is hashed in constant memory
// via io.Copy, so multi-gigabyte disk images never pass through a
// buffer of their own size. A read failure mid-stream yields a
// *StreamReadError and no fingerprint — a partially digested upload is
// treated as wholly absent.
package digest
