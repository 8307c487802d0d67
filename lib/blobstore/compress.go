// Copyright 2026 The Evidentia Authors
// SPDX-License-Identifier: Apache-2.0

package blobstore

import (
	"bytes"
	"errors"
	"fmt"
	"io"

	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
)

// CompressionTag identifies the compression algorithm used for a
// stored blob. The tag is written into the blob header (1 byte);
// the values are format constants.
type CompressionTag uint8

const (
	// CompressionNone stores the payload unchanged. Chosen
	// automatically when compression would not shrink the data
	// (disk images, media files, already-compressed archives).
	CompressionNone CompressionTag = 0

	// CompressionLZ4 is LZ4 frame compression. Fast default for
	// mixed binary evidence.
	CompressionLZ4 CompressionTag = 1

	// CompressionZstd is zstd at the default level. Better ratios
	// for text-heavy evidence (logs, exports, documents).
	CompressionZstd CompressionTag = 2
)

// String returns the tag's configuration name.
func (tag CompressionTag) String() string {
	switch tag {
	case CompressionNone:
		return "none"
	case CompressionLZ4:
		return "lz4"
	case CompressionZstd:
		return "zstd"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(tag))
	}
}

// ParseCompressionTag parses a configuration name into a tag.
func ParseCompressionTag(name string) (CompressionTag, error) {
	switch name {
	case "none":
		return CompressionNone, nil
	case "lz4":
		return CompressionLZ4, nil
	case "zstd":
		return CompressionZstd, nil
	default:
		return 0, fmt.Errorf("blobstore: unknown compression %q", name)
	}
}

// errIncompressible reports that compressed output would not be
// smaller than the input; the caller falls back to CompressionNone.
var errIncompressible = errors.New("blobstore: data is incompressible")

// zstdEncoder and zstdDecoder are shared across calls; both are safe
// for concurrent use.
var (
	zstdEncoder *zstd.Encoder
	zstdDecoder *zstd.Decoder
)

func init() {
	var err error
	zstdEncoder, err = zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		panic("blobstore: zstd encoder initialization failed: " + err.Error())
	}
	zstdDecoder, err = zstd.NewReader(nil)
	if err != nil {
		panic("blobstore: zstd decoder initialization failed: " + err.Error())
	}
}

// compress applies the preferred algorithm, falling back to
// CompressionNone when the data does not shrink. Returns the stored
// bytes and the tag actually used.
func compress(data []byte, preferred CompressionTag) ([]byte, CompressionTag, error) {
	switch preferred {
	case CompressionNone:
		return data, CompressionNone, nil

	case CompressionLZ4:
		compressed, err := compressLZ4(data)
		if errors.Is(err, errIncompressible) {
			return data, CompressionNone, nil
		}
		if err != nil {
			return nil, 0, err
		}
		return compressed, CompressionLZ4, nil

	case CompressionZstd:
		compressed := zstdEncoder.EncodeAll(data, nil)
		if len(compressed) >= len(data) {
			return data, CompressionNone, nil
		}
		return compressed, CompressionZstd, nil

	default:
		return nil, 0, fmt.Errorf("blobstore: unsupported compression tag %d", preferred)
	}
}

// decompress reverses compress. The uncompressed size comes from the
// blob header and must match exactly.
func decompress(stored []byte, tag CompressionTag, uncompressedSize int) ([]byte, error) {
	switch tag {
	case CompressionNone:
		if len(stored) != uncompressedSize {
			return nil, fmt.Errorf("blobstore: stored size %d does not match expected %d", len(stored), uncompressedSize)
		}
		return stored, nil

	case CompressionLZ4:
		reader := lz4.NewReader(bytes.NewReader(stored))
		destination := make([]byte, uncompressedSize)
		if _, err := io.ReadFull(reader, destination); err != nil {
			return nil, fmt.Errorf("blobstore: lz4 decompress: %w", err)
		}
		if n, _ := reader.Read(make([]byte, 1)); n != 0 {
			return nil, fmt.Errorf("blobstore: lz4 decompress produced more than the expected %d bytes", uncompressedSize)
		}
		return destination, nil

	case CompressionZstd:
		result, err := zstdDecoder.DecodeAll(stored, make([]byte, 0, uncompressedSize))
		if err != nil {
			return nil, fmt.Errorf("blobstore: zstd decompress: %w", err)
		}
		if len(result) != uncompressedSize {
			return nil, fmt.Errorf("blobstore: zstd decompress produced %d bytes, expected %d", len(result), uncompressedSize)
		}
		return result, nil

	default:
		return nil, fmt.Errorf("blobstore: unsupported compression tag %d", tag)
	}
}

func compressLZ4(data []byte) ([]byte, error) {
	var buf bytes.Buffer
	writer := lz4.NewWriter(&buf)
	if _, err := writer.Write(data); err != nil {
		return nil, fmt.Errorf("blobstore: lz4 compress: %w", err)
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("blobstore: lz4 compress: %w", err)
	}
	if buf.Len() >= len(data) {
		return nil, errIncompressible
	}
	return buf.Bytes(), nil
}
