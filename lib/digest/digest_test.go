// Copyright 2026 The Evidentia Authors
// SPDX-License-Identifier: Apache-2.0

package digest

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"io"
	"strings"
	"testing"
)

func TestSumEmptyStream(t *testing.T) {
	// A 0-byte artifact is valid and has a well-defined fingerprint.
	fp, n, err := Sum(bytes.NewReader(nil))
	if err != nil {
		t.Fatalf("Sum: %v", err)
	}
	if n != 0 {
		t.Errorf("size = %d, want 0", n)
	}

	want := "sha256:" + hex.EncodeToString(func() []byte {
		sum := sha256.Sum256(nil)
		return sum[:]
	}())
	if fp.String() != want {
		t.Errorf("fingerprint = %s, want %s", fp, want)
	}
}

func TestSumDeterministic(t *testing.T) {
	content := bytes.Repeat([]byte("forensic artifact bytes "), 4096)

	first, n1, err := Sum(bytes.NewReader(content))
	if err != nil {
		t.Fatalf("Sum: %v", err)
	}
	second, n2, err := Sum(bytes.NewReader(content))
	if err != nil {
		t.Fatalf("Sum: %v", err)
	}

	if first != second {
		t.Errorf("same content produced different fingerprints: %s vs %s", first, second)
	}
	if n1 != int64(len(content)) || n2 != int64(len(content)) {
		t.Errorf("sizes = %d, %d, want %d", n1, n2, len(content))
	}
}

func TestSumDistinctContent(t *testing.T) {
	first, _, err := Sum(strings.NewReader("artifact one"))
	if err != nil {
		t.Fatalf("Sum: %v", err)
	}
	second, _, err := Sum(strings.NewReader("artifact two"))
	if err != nil {
		t.Fatalf("Sum: %v", err)
	}
	if first == second {
		t.Errorf("different content produced identical fingerprint %s", first)
	}
}

// failingReader yields some bytes and then an error, simulating an
// interrupted upload.
type failingReader struct {
	data []byte
	err  error
	read bool
}

func (r *failingReader) Read(p []byte) (int, error) {
	if !r.read {
		r.read = true
		return copy(p, r.data), nil
	}
	return 0, r.err
}

func TestSumInterruptedStream(t *testing.T) {
	cause := errors.New("connection reset")
	_, _, err := Sum(&failingReader{data: []byte("partial"), err: cause})
	if err == nil {
		t.Fatal("Sum should fail for an interrupted stream")
	}

	var streamErr *StreamReadError
	if !errors.As(err, &streamErr) {
		t.Fatalf("error type = %T, want *StreamReadError", err)
	}
	if streamErr.BytesRead != int64(len("partial")) {
		t.Errorf("BytesRead = %d, want %d", streamErr.BytesRead, len("partial"))
	}
	if !errors.Is(err, cause) {
		t.Error("StreamReadError does not wrap the underlying cause")
	}
}

func TestDigesterMatchesSum(t *testing.T) {
	content := []byte("streamed through a tee")

	want, _, err := Sum(bytes.NewReader(content))
	if err != nil {
		t.Fatalf("Sum: %v", err)
	}

	d := NewDigester()
	if _, err := io.Copy(d, bytes.NewReader(content)); err != nil {
		t.Fatalf("Copy: %v", err)
	}
	if d.Fingerprint() != want {
		t.Errorf("Digester fingerprint = %s, want %s", d.Fingerprint(), want)
	}
	if d.Size() != int64(len(content)) {
		t.Errorf("Size = %d, want %d", d.Size(), len(content))
	}
}

func TestParse(t *testing.T) {
	fp, _, err := Sum(strings.NewReader("x"))
	if err != nil {
		t.Fatalf("Sum: %v", err)
	}

	parsed, err := Parse(fp.String())
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if parsed != fp {
		t.Errorf("Parse roundtrip = %s, want %s", parsed, fp)
	}

	for _, bad := range []string{
		"",
		"md5:abcd",
		"sha256:zz",
		"sha256:" + strings.Repeat("a", 63),
		"sha256:" + strings.Repeat("g", 64),
		strings.Repeat("a", 64),
	} {
		if _, err := Parse(bad); err == nil {
			t.Errorf("Parse(%q) should fail", bad)
		}
	}
}

func TestEvidenceID(t *testing.T) {
	fp, _, err := Sum(strings.NewReader("identity"))
	if err != nil {
		t.Fatalf("Sum: %v", err)
	}

	id := fp.EvidenceID()
	if !strings.HasPrefix(id, "EVD-") {
		t.Errorf("EvidenceID = %q, want EVD- prefix", id)
	}
	if len(id) != len("EVD-")+12 {
		t.Errorf("EvidenceID length = %d, want %d", len(id), len("EVD-")+12)
	}
	if id != fp.EvidenceID() {
		t.Error("EvidenceID is not deterministic")
	}
}
