// Copyright 2026 The Evidentia Authors
// SPDX-License-Identifier: Apache-2.0

package blobstore

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"os"
	"path/filepath"

	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"

	"github.com/evidentia-foundation/evidentia/lib/digest"
)

// Blob format versions. The version is the first byte of every blob
// file and is bound into the seal's authenticated data.
const (
	blobVersionPlain  byte = 0x01
	blobVersionSealed byte = 0x02
)

// headerSize is the fixed blob header: version (1), compression tag
// (1), uncompressed size (8, little-endian).
const headerSize = 10

// ErrBlobNotFound is returned by Get for a fingerprint with no stored
// blob.
var ErrBlobNotFound = errors.New("blobstore: blob not found")

// Config holds the parameters for opening a blob store.
type Config struct {
	// Root is the directory holding the sharded blob tree. Created
	// if absent.
	Root string

	// Compression is the preferred algorithm for new blobs.
	// Incompressible payloads are stored uncompressed regardless.
	Compression CompressionTag

	// SealKey, when non-nil, enables at-rest sealing and must be
	// exactly SealKeySize bytes.
	SealKey []byte

	// Logger receives operational messages.
	Logger *slog.Logger
}

// Store is a content-addressed blob store. Safe for concurrent use;
// the filesystem rename is the only synchronization it needs.
type Store struct {
	root        string
	compression CompressionTag
	sealKey     []byte
	logger      *slog.Logger
}

// New opens (creating if needed) the blob store rooted at cfg.Root.
func New(cfg Config) (*Store, error) {
	if cfg.Root == "" {
		return nil, errors.New("blobstore: root directory is required")
	}
	if cfg.SealKey != nil && len(cfg.SealKey) != SealKeySize {
		return nil, fmt.Errorf("blobstore: seal key must be %d bytes, got %d", SealKeySize, len(cfg.SealKey))
	}
	if err := os.MkdirAll(cfg.Root, 0o700); err != nil {
		return nil, fmt.Errorf("blobstore: creating root: %w", err)
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Store{
		root:        cfg.Root,
		compression: cfg.Compression,
		sealKey:     cfg.SealKey,
		logger:      logger,
	}, nil
}

// Put stores a payload under its fingerprint. Returns stored=false
// when the blob already exists; content addressing makes that payload
// byte-identical by construction, so nothing is rewritten.
func (s *Store) Put(fingerprint digest.Fingerprint, payload []byte) (stored bool, err error) {
	path := s.path(fingerprint)
	if _, err := os.Stat(path); err == nil {
		return false, nil
	} else if !errors.Is(err, os.ErrNotExist) {
		return false, fmt.Errorf("blobstore: probing %s: %w", path, err)
	}

	compressed, tag, err := compress(payload, s.compression)
	if err != nil {
		return false, err
	}

	version := blobVersionPlain
	if s.sealKey != nil {
		version = blobVersionSealed
	}
	header := make([]byte, headerSize)
	header[0] = version
	header[1] = byte(tag)
	binary.LittleEndian.PutUint64(header[2:], uint64(len(payload)))

	body := compressed
	if s.sealKey != nil {
		body, err = sealChunks(compressed, s.sealKey, sealAAD(header, fingerprint), fingerprint)
		if err != nil {
			return false, err
		}
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return false, fmt.Errorf("blobstore: creating shard directory: %w", err)
	}

	// Write through a temporary file in the same directory so the
	// final rename is atomic on the same filesystem.
	tmp, err := os.CreateTemp(filepath.Dir(path), ".blob-*")
	if err != nil {
		return false, fmt.Errorf("blobstore: creating temp file: %w", err)
	}
	defer func() {
		if err != nil {
			tmp.Close()
			os.Remove(tmp.Name())
		}
	}()

	if _, err = tmp.Write(header); err != nil {
		return false, fmt.Errorf("blobstore: writing header: %w", err)
	}
	if _, err = tmp.Write(body); err != nil {
		return false, fmt.Errorf("blobstore: writing payload: %w", err)
	}
	if err = tmp.Sync(); err != nil {
		return false, fmt.Errorf("blobstore: syncing blob: %w", err)
	}
	if err = tmp.Close(); err != nil {
		return false, fmt.Errorf("blobstore: closing blob: %w", err)
	}
	if err = os.Rename(tmp.Name(), path); err != nil {
		return false, fmt.Errorf("blobstore: publishing blob: %w", err)
	}

	s.logger.Info("blob stored",
		"fingerprint", fingerprint,
		"size_bytes", len(payload),
		"stored_bytes", len(body),
		"compression", tag,
		"sealed", s.sealKey != nil,
	)
	return true, nil
}

// Get returns the original payload for a fingerprint.
func (s *Store) Get(fingerprint digest.Fingerprint) ([]byte, error) {
	raw, err := os.ReadFile(s.path(fingerprint))
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrBlobNotFound, fingerprint)
	}
	if err != nil {
		return nil, fmt.Errorf("blobstore: reading blob %s: %w", fingerprint, err)
	}
	if len(raw) < headerSize {
		return nil, fmt.Errorf("blobstore: blob %s is %d bytes, shorter than the header", fingerprint, len(raw))
	}

	header := raw[:headerSize]
	body := raw[headerSize:]
	tag := CompressionTag(header[1])
	uncompressedSize := binary.LittleEndian.Uint64(header[2:])
	if uncompressedSize > math.MaxInt {
		return nil, fmt.Errorf("blobstore: blob %s header declares %d bytes, beyond addressable memory", fingerprint, uncompressedSize)
	}

	switch header[0] {
	case blobVersionPlain:
		// Nothing to unseal.
	case blobVersionSealed:
		if s.sealKey == nil {
			return nil, fmt.Errorf("blobstore: blob %s is sealed but no seal key is configured", fingerprint)
		}
		body, err = unsealChunks(body, s.sealKey, sealAAD(header, fingerprint), fingerprint)
		if err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("blobstore: blob %s has unsupported version %d", fingerprint, header[0])
	}

	payload, err := decompress(body, tag, int(uncompressedSize))
	if err != nil {
		return nil, err
	}

	// The payload must still hash to the name it is stored under.
	computed, _, err := digest.Sum(bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("blobstore: rehashing blob %s: %w", fingerprint, err)
	}
	if computed != fingerprint {
		return nil, fmt.Errorf("blobstore: blob %s is corrupt: content hashes to %s", fingerprint, computed)
	}
	return payload, nil
}

// PutStream stores a payload of known size streamed from r without
// materializing it in memory: compression and sealing both operate on
// bounded windows of the stream. The fingerprint must have been
// computed over exactly the bytes r yields; size is cross-checked
// against the stream and a short or long stream stores nothing.
//
// Unlike Put, the streaming path applies the configured compression
// unconditionally: there is no second pass over the data to detect
// incompressible input.
func (s *Store) PutStream(fingerprint digest.Fingerprint, r io.Reader, size int64) (stored bool, err error) {
	if size < 0 {
		return false, fmt.Errorf("blobstore: negative stream size %d", size)
	}
	path := s.path(fingerprint)
	if _, err := os.Stat(path); err == nil {
		return false, nil
	} else if !errors.Is(err, os.ErrNotExist) {
		return false, fmt.Errorf("blobstore: probing %s: %w", path, err)
	}

	version := blobVersionPlain
	if s.sealKey != nil {
		version = blobVersionSealed
	}
	header := make([]byte, headerSize)
	header[0] = version
	header[1] = byte(s.compression)
	binary.LittleEndian.PutUint64(header[2:], uint64(size))

	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return false, fmt.Errorf("blobstore: creating shard directory: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), ".blob-*")
	if err != nil {
		return false, fmt.Errorf("blobstore: creating temp file: %w", err)
	}
	defer func() {
		if err != nil {
			tmp.Close()
			os.Remove(tmp.Name())
		}
	}()

	if _, err = tmp.Write(header); err != nil {
		return false, fmt.Errorf("blobstore: writing header: %w", err)
	}

	var body io.Writer = tmp
	var sealer *sealWriter
	if s.sealKey != nil {
		sealer, err = newSealWriter(tmp, s.sealKey, sealAAD(header, fingerprint), fingerprint)
		if err != nil {
			return false, err
		}
		body = sealer
	}

	var copied int64
	switch s.compression {
	case CompressionNone:
		copied, err = io.Copy(body, r)
	case CompressionLZ4:
		lzWriter := lz4.NewWriter(body)
		if copied, err = io.Copy(lzWriter, r); err == nil {
			err = lzWriter.Close()
		}
	case CompressionZstd:
		var zstdWriter *zstd.Encoder
		zstdWriter, err = zstd.NewWriter(body, zstd.WithEncoderLevel(zstd.SpeedDefault))
		if err == nil {
			if copied, err = io.Copy(zstdWriter, r); err == nil {
				err = zstdWriter.Close()
			}
		}
	default:
		err = fmt.Errorf("blobstore: unsupported compression tag %d", s.compression)
	}
	if err != nil {
		return false, fmt.Errorf("blobstore: compressing stream: %w", err)
	}
	if copied != size {
		err = fmt.Errorf("blobstore: stream yielded %d bytes, expected %d", copied, size)
		return false, err
	}
	if sealer != nil {
		if err = sealer.Close(); err != nil {
			return false, err
		}
	}

	if err = tmp.Sync(); err != nil {
		return false, fmt.Errorf("blobstore: syncing blob: %w", err)
	}
	if err = tmp.Close(); err != nil {
		return false, fmt.Errorf("blobstore: closing blob: %w", err)
	}
	if err = os.Rename(tmp.Name(), path); err != nil {
		return false, fmt.Errorf("blobstore: publishing blob: %w", err)
	}

	s.logger.Info("blob stored",
		"fingerprint", fingerprint,
		"size_bytes", size,
		"compression", s.compression,
		"sealed", s.sealKey != nil,
		"streamed", true,
	)
	return true, nil
}

// NewSpool creates a temporary file in the store root for staging an
// incoming stream before PutStream. The caller closes and removes it.
func (s *Store) NewSpool() (*os.File, error) {
	f, err := os.CreateTemp(s.root, ".spool-*")
	if err != nil {
		return nil, fmt.Errorf("blobstore: creating spool file: %w", err)
	}
	return f, nil
}

// Has reports whether a blob exists for the fingerprint.
func (s *Store) Has(fingerprint digest.Fingerprint) bool {
	_, err := os.Stat(s.path(fingerprint))
	return err == nil
}

// path returns the sharded blob path: two directory levels of two hex
// characters each, then the full hex digest.
func (s *Store) path(fingerprint digest.Fingerprint) string {
	hex := fingerprint.Hex()
	return filepath.Join(s.root, hex[:2], hex[2:4], hex)
}

// sealAAD builds the authenticated data binding a sealed payload to
// its header and fingerprint.
func sealAAD(header []byte, fingerprint digest.Fingerprint) []byte {
	aad := make([]byte, 0, len(header)+len(fingerprint))
	aad = append(aad, header...)
	aad = append(aad, fingerprint...)
	return aad
}
