// Copyright 2026 The Evidentia Authors
// SPDX-License-Identifier: Apache-2.0

package custody

import (
	"time"

	"github.com/zeebo/blake3"

	"github.com/evidentia-foundation/evidentia/lib/codec"
)

// DigestSize is the size in bytes of a chain entry digest.
const DigestSize = 32

// Digest is a 32-byte BLAKE3 keyed hash over a chain entry.
type Digest [DigestSize]byte

// entryDomainKey is the BLAKE3 key for custody entry digests. Domain
// separation ensures a custody digest can never equal a digest
// computed in any other context over the same bytes. The value is the
// ASCII domain name zero-padded to 32 bytes; changing it invalidates
// every stored chain.
var entryDomainKey = [32]byte{
	'e', 'v', 'i', 'd', 'e', 'n', 't', 'i', 'a', '.',
	'c', 'u', 's', 't', 'o', 'd', 'y', '.',
	'e', 'n', 't', 'r', 'y', 0, 0, 0, 0, 0, 0, 0, 0, 0,
}

// genesisDigest is the predecessor digest of the first entry in every
// chain: 32 zero bytes.
var genesisDigest Digest

// chainPayload is the CBOR structure an entry digest commits to. The
// integer keys are protocol constants — reordering or renumbering
// them invalidates every stored chain.
type chainPayload struct {
	Seq        int64  `cbor:"1,keyasint"`
	Action     string `cbor:"2,keyasint"`
	Actor      string `cbor:"3,keyasint"`
	Location   string `cbor:"4,keyasint"`
	Notes      string `cbor:"5,keyasint"`
	RecordedAt int64  `cbor:"6,keyasint"` // Unix nanoseconds UTC
}

// computeEntryDigest returns the digest for an entry: BLAKE3 keyed
// hash over the previous entry's digest followed by the deterministic
// CBOR encoding of the entry's fields.
func computeEntryDigest(prev Digest, seq int64, action Action, actor, location, notes string, recordedAt time.Time) (Digest, error) {
	payload, err := codec.Marshal(chainPayload{
		Seq:        seq,
		Action:     string(action),
		Actor:      actor,
		Location:   location,
		Notes:      notes,
		RecordedAt: recordedAt.UnixNano(),
	})
	if err != nil {
		return Digest{}, err
	}

	// NewKeyed only fails for a wrong key length, which the fixed-size
	// array rules out.
	hasher, err := blake3.NewKeyed(entryDomainKey[:])
	if err != nil {
		panic("custody: BLAKE3 keyed hash initialization failed: " + err.Error())
	}
	hasher.Write(prev[:])
	hasher.Write(payload)

	var digest Digest
	copy(digest[:], hasher.Sum(nil))
	return digest, nil
}
