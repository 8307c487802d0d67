// Copyright 2026 The Evidentia Authors
// SPDX-License-Identifier: Apache-2.0

package officertoken

import (
	"crypto/ed25519"
	"errors"
	"fmt"
	"time"

	"github.com/evidentia-foundation/evidentia/lib/codec"
)

// signatureSize is the fixed size of an Ed25519 signature.
const signatureSize = ed25519.SignatureSize // 64 bytes

// Token is the CBOR-encoded payload of an officer identity token.
type Token struct {
	// OfficerID is the stable officer identifier ("off-1041").
	// Custody events are attributed to this value.
	OfficerID string `cbor:"1,keyasint"`

	// Name is the officer's display name.
	Name string `cbor:"2,keyasint,omitempty"`

	// IssuedAt is a Unix timestamp (seconds) of when the token was
	// minted.
	IssuedAt int64 `cbor:"3,keyasint"`

	// ExpiresAt is a Unix timestamp (seconds) after which the token
	// is no longer valid.
	ExpiresAt int64 `cbor:"4,keyasint"`
}

// Errors returned by Verify.
var (
	ErrTokenTooShort    = errors.New("officertoken: token too short for signature")
	ErrInvalidSignature = errors.New("officertoken: invalid Ed25519 signature")
	ErrTokenExpired     = errors.New("officertoken: token has expired")
)

// Mint signs a Token with the issuer's private key and returns the
// raw wire bytes: CBOR payload followed by the 64-byte signature.
func Mint(privateKey ed25519.PrivateKey, token *Token) ([]byte, error) {
	if token.OfficerID == "" {
		return nil, errors.New("officertoken: officer id is required")
	}
	payload, err := codec.Marshal(token)
	if err != nil {
		return nil, fmt.Errorf("officertoken: encoding token payload: %w", err)
	}

	signature := ed25519.Sign(privateKey, payload)

	result := make([]byte, len(payload)+signatureSize)
	copy(result, payload)
	copy(result[len(payload):], signature)
	return result, nil
}

// Verify splits the raw token bytes, checks the Ed25519 signature,
// decodes the payload, and checks expiry. Returns the decoded Token
// on success.
func Verify(publicKey ed25519.PublicKey, tokenBytes []byte) (*Token, error) {
	return VerifyAt(publicKey, tokenBytes, time.Now())
}

// VerifyAt is like Verify but accepts an explicit time for expiry
// checks. This supports deterministic testing.
func VerifyAt(publicKey ed25519.PublicKey, tokenBytes []byte, now time.Time) (*Token, error) {
	if len(tokenBytes) <= signatureSize {
		return nil, ErrTokenTooShort
	}

	splitPoint := len(tokenBytes) - signatureSize
	payload := tokenBytes[:splitPoint]
	signature := tokenBytes[splitPoint:]

	if !ed25519.Verify(publicKey, payload, signature) {
		return nil, ErrInvalidSignature
	}

	var token Token
	if err := codec.Unmarshal(payload, &token); err != nil {
		return nil, fmt.Errorf("officertoken: decoding token payload: %w", err)
	}

	if now.Unix() >= token.ExpiresAt {
		return nil, ErrTokenExpired
	}

	return &token, nil
}
