// Copyright 2026 The Evidentia Authors
// SPDX-License-Identifier: Apache-2.0

package digest

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"hash"
	"io"
	"strings"
)

// Algorithm is the fingerprint algorithm tag. Only SHA-256 is
// currently issued; the tag is stored so a future algorithm migration
// can coexist with existing records.
const Algorithm = "sha256"

// fingerprintPrefix is the canonical textual prefix of a fingerprint.
const fingerprintPrefix = Algorithm + ":"

// Fingerprint is an algorithm-tagged content digest in canonical form:
// "sha256:" followed by 64 lowercase hex characters. The zero value is
// invalid; construct via Sum, NewDigester, or Parse.
type Fingerprint string

// Parse validates a fingerprint string and returns it in canonical
// form. Uppercase hex is normalized to lowercase.
func Parse(s string) (Fingerprint, error) {
	rest, ok := strings.CutPrefix(s, fingerprintPrefix)
	if !ok {
		return "", fmt.Errorf("digest: fingerprint %q missing %q prefix", s, fingerprintPrefix)
	}
	if len(rest) != sha256.Size*2 {
		return "", fmt.Errorf("digest: fingerprint hex is %d characters, want %d", len(rest), sha256.Size*2)
	}
	decoded, err := hex.DecodeString(rest)
	if err != nil {
		return "", fmt.Errorf("digest: parsing fingerprint: %w", err)
	}
	return fromBytes(decoded), nil
}

// fromBytes builds the canonical fingerprint from a raw 32-byte digest.
func fromBytes(sum []byte) Fingerprint {
	return Fingerprint(fingerprintPrefix + hex.EncodeToString(sum))
}

// String returns the canonical textual form.
func (f Fingerprint) String() string { return string(f) }

// Hex returns the 64-character hex portion without the algorithm tag.
// Used for sharded blob paths and derived identifiers.
func (f Fingerprint) Hex() string {
	return strings.TrimPrefix(string(f), fingerprintPrefix)
}

// EvidenceID derives the evidence identifier for this fingerprint:
// "EVD-" followed by the first 12 hex characters. Deriving the
// identifier from content means registering the same bytes twice
// yields the same identifier — the idempotence the catalog requires.
func (f Fingerprint) EvidenceID() string {
	return "EVD-" + f.Hex()[:12]
}

// MarshalText implements encoding.TextMarshaler.
func (f Fingerprint) MarshalText() ([]byte, error) {
	return []byte(f), nil
}

// UnmarshalText implements encoding.TextUnmarshaler, validating the
// canonical form.
func (f *Fingerprint) UnmarshalText(text []byte) error {
	parsed, err := Parse(string(text))
	if err != nil {
		return err
	}
	*f = parsed
	return nil
}

// StreamReadError reports that the byte source failed before the
// stream completed. No fingerprint exists for the partial prefix —
// the caller must treat the upload as wholly absent and retry from
// the beginning.
type StreamReadError struct {
	// BytesRead is how far the stream got before failing. Diagnostic
	// only; the partial digest is discarded.
	BytesRead int64

	// Err is the underlying read error.
	Err error
}

func (e *StreamReadError) Error() string {
	return fmt.Sprintf("digest: stream failed after %d bytes: %v", e.BytesRead, e.Err)
}

func (e *StreamReadError) Unwrap() error { return e.Err }

// Sum streams r to completion and returns the content fingerprint and
// total byte count. Memory use is constant regardless of input size.
// An empty stream is valid and produces the well-known SHA-256 digest
// of zero bytes.
func Sum(r io.Reader) (Fingerprint, int64, error) {
	hasher := sha256.New()
	n, err := io.Copy(hasher, r)
	if err != nil {
		return "", 0, &StreamReadError{BytesRead: n, Err: err}
	}
	return fromBytes(hasher.Sum(nil)), n, nil
}

// Digester accumulates a fingerprint while the caller writes the
// stream through it. Ingestion uses this to hash and spool an upload
// in a single pass: io.Copy(io.MultiWriter(digester, spool), body).
//
// Digester is not safe for concurrent use.
type Digester struct {
	hasher hash.Hash
	size   int64
}

// NewDigester returns a Digester ready to receive bytes.
func NewDigester() *Digester {
	return &Digester{hasher: sha256.New()}
}

// Write implements io.Writer. It never returns an error.
func (d *Digester) Write(p []byte) (int, error) {
	d.hasher.Write(p)
	d.size += int64(len(p))
	return len(p), nil
}

// Fingerprint returns the fingerprint of all bytes written so far.
func (d *Digester) Fingerprint() Fingerprint {
	return fromBytes(d.hasher.Sum(nil))
}

// Size returns the total number of bytes written so far.
func (d *Digester) Size() int64 { return d.size }
