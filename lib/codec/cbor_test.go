// Copyright 2026 The Evidentia Authors
// SPDX-License-Identifier: Apache-2.0

package codec

import (
	"bytes"
	"testing"
)

func TestMarshalDeterministic(t *testing.T) {
	// Two maps with identical contents built in different insertion
	// orders must encode to identical bytes. The custody chain depends
	// on this: entry digests are computed over encoded payloads.
	first := map[string]any{"action": "uploaded", "actor": "off-17", "seq": int64(3)}
	second := map[string]any{"seq": int64(3), "actor": "off-17", "action": "uploaded"}

	firstBytes, err := Marshal(first)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	secondBytes, err := Marshal(second)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}

	if !bytes.Equal(firstBytes, secondBytes) {
		t.Errorf("deterministic encoding violated:\n  %x\n  %x", firstBytes, secondBytes)
	}
}

func TestRoundtrip(t *testing.T) {
	type payload struct {
		Action string `cbor:"1,keyasint"`
		Actor  string `cbor:"2,keyasint"`
		Seq    uint64 `cbor:"3,keyasint"`
	}

	in := payload{Action: "verified", Actor: "off-2", Seq: 41}
	data, err := Marshal(in)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}

	var out payload
	if err := Unmarshal(data, &out); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if out != in {
		t.Errorf("roundtrip = %+v, want %+v", out, in)
	}
}

func TestUnknownFieldsIgnored(t *testing.T) {
	// Forward compatibility: decoding into a struct with fewer fields
	// must not error.
	data, err := Marshal(map[string]any{"known": "x", "unknown": 7})
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}

	var out struct {
		Known string `cbor:"known"`
	}
	if err := Unmarshal(data, &out); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if out.Known != "x" {
		t.Errorf("Known = %q, want %q", out.Known, "x")
	}
}
