// Copyright 2026 The Evidentia Authors
// SPDX-License-Identifier: Apache-2.0

// Package officertoken issues and verifies officer identity tokens.
//
// A token is the deterministic CBOR encoding of the officer payload
// followed by a 64-byte Ed25519 signature. The server trusts one
// issuing public key; custody attribution always comes from a
// verified token subject, never from a self-declared name in the
// request body.
package officertoken
