// Copyright 2026 The Evidentia Authors
// SPDX-License-Identifier: Apache-2.0

package blobstore

import (
	"bytes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/binary"
	"fmt"
	"io"

	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/hkdf"

	"github.com/evidentia-foundation/evidentia/lib/digest"
)

// SealKeySize is the required size of the store seal key.
const SealKeySize = 32

// hkdfInfoBlobSeal is the HKDF info prefix for per-blob key
// derivation. Changing it invalidates every sealed blob.
var hkdfInfoBlobSeal = []byte("evidentia.blob.seal.v1")

// sealChunkSize is the plaintext span sealed per chunk. Bounding the
// chunk keeps sealing and unsealing memory constant regardless of
// blob size.
const sealChunkSize = 4 << 20

// sealOverhead is the minimum size of one sealed chunk frame past its
// length prefix: a 24-byte nonce plus the 16-byte Poly1305 tag.
const sealOverhead = chacha20poly1305.NonceSizeX + chacha20poly1305.Overhead

// deriveBlobKey derives the per-blob seal key with HKDF-SHA256 over
// the store key and the blob's fingerprint. Nil salt per RFC 5869:
// the store key is already uniformly random.
func deriveBlobKey(sealKey []byte, fingerprint digest.Fingerprint) ([]byte, error) {
	info := make([]byte, 0, len(hkdfInfoBlobSeal)+len(fingerprint.Hex()))
	info = append(info, hkdfInfoBlobSeal...)
	info = append(info, fingerprint.Hex()...)

	derived := make([]byte, SealKeySize)
	if _, err := io.ReadFull(hkdf.New(sha256.New, sealKey, nil, info), derived); err != nil {
		return nil, fmt.Errorf("blobstore: deriving blob key: %w", err)
	}
	return derived, nil
}

// sealWriter seals its input with XChaCha20-Poly1305 in fixed-size
// chunks as the bytes stream through. Frame layout per chunk: 4-byte
// little-endian sealed length, 24-byte random nonce, ciphertext and
// tag. Each chunk's AAD is the blob AAD plus the chunk index, so
// chunks cannot be reordered or transplanted between blobs. Dropped
// trailing chunks are caught by the content rehash on read.
type sealWriter struct {
	dst     io.Writer
	aead    cipher.AEAD
	baseAAD []byte
	buf     []byte
	index   uint64
}

func newSealWriter(dst io.Writer, sealKey, baseAAD []byte, fingerprint digest.Fingerprint) (*sealWriter, error) {
	blobKey, err := deriveBlobKey(sealKey, fingerprint)
	if err != nil {
		return nil, err
	}
	aead, err := chacha20poly1305.NewX(blobKey)
	if err != nil {
		return nil, fmt.Errorf("blobstore: creating seal cipher: %w", err)
	}
	return &sealWriter{
		dst:     dst,
		aead:    aead,
		baseAAD: baseAAD,
		buf:     make([]byte, 0, sealChunkSize),
	}, nil
}

func (w *sealWriter) Write(p []byte) (int, error) {
	total := len(p)
	for len(p) > 0 {
		space := sealChunkSize - len(w.buf)
		if space == 0 {
			if err := w.flush(); err != nil {
				return 0, err
			}
			space = sealChunkSize
		}
		if space > len(p) {
			space = len(p)
		}
		w.buf = append(w.buf, p[:space]...)
		p = p[space:]
	}
	return total, nil
}

// Close seals the final partial chunk. An empty payload still gets
// one chunk so the blob always authenticates. dst is not closed.
func (w *sealWriter) Close() error {
	if len(w.buf) > 0 || w.index == 0 {
		return w.flush()
	}
	return nil
}

func (w *sealWriter) flush() error {
	frame := make([]byte, 4+chacha20poly1305.NonceSizeX, 4+chacha20poly1305.NonceSizeX+len(w.buf)+w.aead.Overhead())
	if _, err := io.ReadFull(rand.Reader, frame[4:]); err != nil {
		return fmt.Errorf("blobstore: generating nonce: %w", err)
	}
	sealed := w.aead.Seal(frame, frame[4:4+chacha20poly1305.NonceSizeX], w.buf, chunkAAD(w.baseAAD, w.index))
	binary.LittleEndian.PutUint32(sealed[:4], uint32(len(sealed)-4))
	w.index++
	w.buf = w.buf[:0]
	if _, err := w.dst.Write(sealed); err != nil {
		return fmt.Errorf("blobstore: writing sealed chunk: %w", err)
	}
	return nil
}

// chunkAAD binds a chunk to its position within the blob.
func chunkAAD(base []byte, index uint64) []byte {
	aad := make([]byte, len(base)+8)
	copy(aad, base)
	binary.LittleEndian.PutUint64(aad[len(base):], index)
	return aad
}

// sealChunks seals an in-memory payload into the chunked frame
// format.
func sealChunks(payload, sealKey, baseAAD []byte, fingerprint digest.Fingerprint) ([]byte, error) {
	var out bytes.Buffer
	w, err := newSealWriter(&out, sealKey, baseAAD, fingerprint)
	if err != nil {
		return nil, err
	}
	if _, err := w.Write(payload); err != nil {
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	return out.Bytes(), nil
}

// unsealChunks reverses the chunked seal. Fails when the key is
// wrong, a chunk was altered or reordered, or the blob was moved to a
// different fingerprint.
func unsealChunks(sealed, sealKey, baseAAD []byte, fingerprint digest.Fingerprint) ([]byte, error) {
	blobKey, err := deriveBlobKey(sealKey, fingerprint)
	if err != nil {
		return nil, err
	}
	aead, err := chacha20poly1305.NewX(blobKey)
	if err != nil {
		return nil, fmt.Errorf("blobstore: creating seal cipher: %w", err)
	}

	var (
		payload []byte
		index   uint64
	)
	for offset := 0; offset < len(sealed); {
		if len(sealed)-offset < 4 {
			return nil, fmt.Errorf("blobstore: sealed blob %s is truncated at chunk %d", fingerprint, index)
		}
		frameLen := int(binary.LittleEndian.Uint32(sealed[offset:]))
		offset += 4
		if frameLen < sealOverhead || frameLen > len(sealed)-offset {
			return nil, fmt.Errorf("blobstore: sealed blob %s has a malformed chunk %d", fingerprint, index)
		}
		frame := sealed[offset : offset+frameLen]
		offset += frameLen

		chunk, err := aead.Open(nil, frame[:chacha20poly1305.NonceSizeX], frame[chacha20poly1305.NonceSizeX:], chunkAAD(baseAAD, index))
		if err != nil {
			return nil, fmt.Errorf("blobstore: unsealing blob %s: %w", fingerprint, err)
		}
		payload = append(payload, chunk...)
		index++
	}
	if index == 0 {
		return nil, fmt.Errorf("blobstore: sealed blob %s has no chunks", fingerprint)
	}
	return payload, nil
}
