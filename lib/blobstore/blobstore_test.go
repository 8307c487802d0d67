// Copyright 2026 The Evidentia Authors
// SPDX-License-Identifier: Apache-2.0

package blobstore

import (
	"bytes"
	"crypto/rand"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/evidentia-foundation/evidentia/lib/digest"
)

func fingerprintOf(t *testing.T, payload []byte) digest.Fingerprint {
	t.Helper()
	fp, _, err := digest.Sum(bytes.NewReader(payload))
	if err != nil {
		t.Fatalf("digest.Sum: %v", err)
	}
	return fp
}

func TestPutGetRoundtrip(t *testing.T) {
	compressible := []byte(strings.Repeat("evidence log line: access granted\n", 200))
	random := make([]byte, 4096)
	if _, err := rand.Read(random); err != nil {
		t.Fatalf("rand.Read: %v", err)
	}

	for _, tag := range []CompressionTag{CompressionNone, CompressionLZ4, CompressionZstd} {
		for name, payload := range map[string][]byte{
			"compressible":   compressible,
			"incompressible": random,
			"empty":          {},
		} {
			store, err := New(Config{Root: t.TempDir(), Compression: tag})
			if err != nil {
				t.Fatalf("New: %v", err)
			}
			fp := fingerprintOf(t, payload)

			stored, err := store.Put(fp, payload)
			if err != nil {
				t.Fatalf("%s/%s: Put: %v", tag, name, err)
			}
			if !stored {
				t.Errorf("%s/%s: stored = false on first Put", tag, name)
			}

			got, err := store.Get(fp)
			if err != nil {
				t.Fatalf("%s/%s: Get: %v", tag, name, err)
			}
			if !bytes.Equal(got, payload) {
				t.Errorf("%s/%s: roundtrip mismatch", tag, name)
			}
		}
	}
}

func TestPutIdempotent(t *testing.T) {
	store, err := New(Config{Root: t.TempDir(), Compression: CompressionZstd})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	payload := []byte("immutable evidence bytes")
	fp := fingerprintOf(t, payload)

	if _, err := store.Put(fp, payload); err != nil {
		t.Fatalf("first Put: %v", err)
	}
	stored, err := store.Put(fp, payload)
	if err != nil {
		t.Fatalf("second Put: %v", err)
	}
	if stored {
		t.Error("second Put reported stored = true")
	}
	if !store.Has(fp) {
		t.Error("Has = false after Put")
	}
}

func TestGetUnknownBlob(t *testing.T) {
	store, err := New(Config{Root: t.TempDir()})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	_, err = store.Get(fingerprintOf(t, []byte("never stored")))
	if !errors.Is(err, ErrBlobNotFound) {
		t.Errorf("err = %v, want ErrBlobNotFound", err)
	}
}

func TestSealedRoundtrip(t *testing.T) {
	key := make([]byte, SealKeySize)
	if _, err := rand.Read(key); err != nil {
		t.Fatalf("rand.Read: %v", err)
	}
	store, err := New(Config{Root: t.TempDir(), Compression: CompressionZstd, SealKey: key})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	payload := []byte(strings.Repeat("sealed case export\n", 100))
	fp := fingerprintOf(t, payload)
	if _, err := store.Put(fp, payload); err != nil {
		t.Fatalf("Put: %v", err)
	}

	got, err := store.Get(fp)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if !bytes.Equal(got, payload) {
		t.Error("sealed roundtrip mismatch")
	}

	// On-disk bytes must not contain the plaintext.
	raw, err := os.ReadFile(store.path(fp))
	if err != nil {
		t.Fatalf("reading blob file: %v", err)
	}
	if bytes.Contains(raw, []byte("sealed case export")) {
		t.Error("plaintext visible in sealed blob file")
	}
}

func TestSealedWrongKey(t *testing.T) {
	root := t.TempDir()
	keyA := bytes.Repeat([]byte{0xA1}, SealKeySize)
	keyB := bytes.Repeat([]byte{0xB2}, SealKeySize)

	storeA, err := New(Config{Root: root, SealKey: keyA})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	payload := []byte("confidential payload")
	fp := fingerprintOf(t, payload)
	if _, err := storeA.Put(fp, payload); err != nil {
		t.Fatalf("Put: %v", err)
	}

	storeB, err := New(Config{Root: root, SealKey: keyB})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if _, err := storeB.Get(fp); err == nil {
		t.Error("Get with wrong seal key should fail")
	}

	storeNone, err := New(Config{Root: root})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if _, err := storeNone.Get(fp); err == nil {
		t.Error("Get of sealed blob without a key should fail")
	}
}

func TestSealedBlobBoundToFingerprint(t *testing.T) {
	key := bytes.Repeat([]byte{0x5C}, SealKeySize)
	store, err := New(Config{Root: t.TempDir(), SealKey: key})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	payload := []byte("original evidence")
	fp := fingerprintOf(t, payload)
	if _, err := store.Put(fp, payload); err != nil {
		t.Fatalf("Put: %v", err)
	}

	// Copy the sealed file to another fingerprint's path. Opening it
	// there must fail authentication.
	other := fingerprintOf(t, []byte("different content"))
	raw, err := os.ReadFile(store.path(fp))
	if err != nil {
		t.Fatalf("reading blob file: %v", err)
	}
	if err := os.MkdirAll(filepath.Dir(store.path(other)), 0o700); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(store.path(other), raw, 0o600); err != nil {
		t.Fatalf("writing swapped blob: %v", err)
	}

	if _, err := store.Get(other); err == nil {
		t.Error("Get of a blob swapped to another fingerprint should fail")
	}
}

func TestPutStreamRoundtrip(t *testing.T) {
	payload := []byte(strings.Repeat("body camera segment\n", 300))

	for _, tag := range []CompressionTag{CompressionNone, CompressionLZ4, CompressionZstd} {
		store, err := New(Config{Root: t.TempDir(), Compression: tag})
		if err != nil {
			t.Fatalf("New: %v", err)
		}
		fp := fingerprintOf(t, payload)

		stored, err := store.PutStream(fp, bytes.NewReader(payload), int64(len(payload)))
		if err != nil {
			t.Fatalf("%s: PutStream: %v", tag, err)
		}
		if !stored {
			t.Errorf("%s: stored = false on first PutStream", tag)
		}

		got, err := store.Get(fp)
		if err != nil {
			t.Fatalf("%s: Get: %v", tag, err)
		}
		if !bytes.Equal(got, payload) {
			t.Errorf("%s: roundtrip mismatch", tag)
		}

		stored, err = store.PutStream(fp, bytes.NewReader(payload), int64(len(payload)))
		if err != nil {
			t.Fatalf("%s: second PutStream: %v", tag, err)
		}
		if stored {
			t.Errorf("%s: second PutStream reported stored = true", tag)
		}
	}
}

func TestPutStreamSealedMultiChunk(t *testing.T) {
	key := bytes.Repeat([]byte{0x3D}, SealKeySize)
	store, err := New(Config{Root: t.TempDir(), Compression: CompressionNone, SealKey: key})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	// Incompressible payload larger than one seal chunk.
	payload := make([]byte, sealChunkSize+sealChunkSize/2)
	if _, err := rand.Read(payload); err != nil {
		t.Fatalf("rand.Read: %v", err)
	}
	fp := fingerprintOf(t, payload)

	if _, err := store.PutStream(fp, bytes.NewReader(payload), int64(len(payload))); err != nil {
		t.Fatalf("PutStream: %v", err)
	}
	got, err := store.Get(fp)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if !bytes.Equal(got, payload) {
		t.Error("sealed streaming roundtrip mismatch")
	}
}

func TestPutStreamSizeMismatch(t *testing.T) {
	store, err := New(Config{Root: t.TempDir(), Compression: CompressionZstd})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	payload := []byte("short stream")
	fp := fingerprintOf(t, payload)

	if _, err := store.PutStream(fp, bytes.NewReader(payload), int64(len(payload))+7); err == nil {
		t.Fatal("PutStream with a wrong size should fail")
	}
	if store.Has(fp) {
		t.Error("a rejected stream left a blob behind")
	}
}

func TestGetRejectsAbsurdHeaderSize(t *testing.T) {
	store, err := New(Config{Root: t.TempDir(), Compression: CompressionNone})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	payload := []byte("small payload")
	fp := fingerprintOf(t, payload)
	if _, err := store.Put(fp, payload); err != nil {
		t.Fatalf("Put: %v", err)
	}

	// Rewrite the header's size field to the maximum uint64.
	raw, err := os.ReadFile(store.path(fp))
	if err != nil {
		t.Fatalf("reading blob file: %v", err)
	}
	for i := 2; i < headerSize; i++ {
		raw[i] = 0xFF
	}
	if err := os.WriteFile(store.path(fp), raw, 0o600); err != nil {
		t.Fatalf("writing tampered blob: %v", err)
	}

	if _, err := store.Get(fp); err == nil {
		t.Error("Get with an absurd header size should fail")
	}
}

func TestGetDetectsCorruption(t *testing.T) {
	store, err := New(Config{Root: t.TempDir(), Compression: CompressionNone})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	payload := []byte("pristine evidence payload")
	fp := fingerprintOf(t, payload)
	if _, err := store.Put(fp, payload); err != nil {
		t.Fatalf("Put: %v", err)
	}

	// Flip one payload byte on disk.
	raw, err := os.ReadFile(store.path(fp))
	if err != nil {
		t.Fatalf("reading blob file: %v", err)
	}
	raw[len(raw)-1] ^= 0xFF
	if err := os.WriteFile(store.path(fp), raw, 0o600); err != nil {
		t.Fatalf("writing corrupted blob: %v", err)
	}

	if _, err := store.Get(fp); err == nil {
		t.Error("Get of a corrupted blob should fail")
	}
}

func TestParseCompressionTag(t *testing.T) {
	for _, tag := range []CompressionTag{CompressionNone, CompressionLZ4, CompressionZstd} {
		parsed, err := ParseCompressionTag(tag.String())
		if err != nil {
			t.Errorf("ParseCompressionTag(%q): %v", tag.String(), err)
		}
		if parsed != tag {
			t.Errorf("ParseCompressionTag(%q) = %d, want %d", tag.String(), parsed, tag)
		}
	}
	if _, err := ParseCompressionTag("gzip"); err == nil {
		t.Error("ParseCompressionTag(\"gzip\") should fail")
	}
	if _, err := New(Config{Root: t.TempDir(), SealKey: []byte("short")}); err == nil {
		t.Error("New with a short seal key should fail")
	}
}
