// Copyright 2026 The Evidentia Authors
// SPDX-License-Identifier: Apache-2.0

// Package blobstore holds evidence payload bytes on disk, addressed
// by content fingerprint.
//
// Blobs are sharded two levels deep by fingerprint hex and written via
// a temporary file plus rename, so a blob path either holds a complete
// blob or nothing. Stored bytes are compressed (zstd, lz4, or left
// alone when incompressible) and optionally sealed with
// XChaCha20-Poly1305 under a key derived per blob from the store key.
// The fingerprint is bound into the seal as authenticated data, so a
// blob moved to another fingerprint's path fails to open.
//
// Blobs are immutable: a second Put of the same fingerprint is a
// no-op, and there is no delete.
package blobstore
