// Copyright 2026 The Evidentia Authors
// SPDX-License-Identifier: Apache-2.0

// Package codec provides Evidentia's standard CBOR encoding configuration.
//
// Evidentia uses two serialization formats with a clear boundary:
//
//   - JSON for the external HTTP API consumed by the dashboard, report
//     generator, and search ranker.
//   - CBOR for integrity-critical byte sequences: the custody hash
//     chain payloads and officer identity tokens.
//
// The encoder uses Core Deterministic Encoding (RFC 8949 §4.2): sorted
// map keys, smallest integer encoding, no indefinite-length items.
// Same logical data always produces identical bytes. This property is
// load-bearing for the custody ledger: each ledger entry's digest is
// computed over the CBOR encoding of its fields, and chain verification
// re-encodes those fields from the stored record. A non-deterministic
// encoding would make an intact chain unverifiable.
//
// For buffer-oriented operations:
//
//	data, err := codec.Marshal(value)
//	err = codec.Unmarshal(data, &value)
//
// # Struct Tag Rules
//
//   - `cbor` tag: the type is ONLY ever serialized as CBOR (chain
//     payloads, token payloads).
//   - `json` tag: the type may be serialized as both JSON and CBOR.
//     fxamacker/cbor v2 reads `json` tags as fallback when `cbor` tags
//     are absent, so a single `json` tag controls field naming for
//     both formats.
//
// Never use both `cbor` and `json` tags on the same field.
package codec
