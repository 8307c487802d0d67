// Copyright 2026 The Evidentia Authors
// SPDX-License-Identifier: Apache-2.0

package custody

import (
	"testing"
	"time"
)

var chainTestTime = time.Date(2026, 3, 14, 9, 26, 53, 0, time.UTC)

func TestComputeEntryDigestDeterministic(t *testing.T) {
	a, err := computeEntryDigest(genesisDigest, 1, ActionCollected, "off-7", "scene", "bagged", chainTestTime)
	if err != nil {
		t.Fatalf("computeEntryDigest: %v", err)
	}
	b, err := computeEntryDigest(genesisDigest, 1, ActionCollected, "off-7", "scene", "bagged", chainTestTime)
	if err != nil {
		t.Fatalf("computeEntryDigest: %v", err)
	}
	if a != b {
		t.Error("identical inputs produced different digests")
	}
}

func TestComputeEntryDigestFieldSensitivity(t *testing.T) {
	base, err := computeEntryDigest(genesisDigest, 1, ActionCollected, "off-7", "scene", "bagged", chainTestTime)
	if err != nil {
		t.Fatalf("computeEntryDigest: %v", err)
	}

	var altPrev Digest
	altPrev[0] = 1

	variants := map[string]func() (Digest, error){
		"prev": func() (Digest, error) {
			return computeEntryDigest(altPrev, 1, ActionCollected, "off-7", "scene", "bagged", chainTestTime)
		},
		"seq": func() (Digest, error) {
			return computeEntryDigest(genesisDigest, 2, ActionCollected, "off-7", "scene", "bagged", chainTestTime)
		},
		"action": func() (Digest, error) {
			return computeEntryDigest(genesisDigest, 1, ActionSecured, "off-7", "scene", "bagged", chainTestTime)
		},
		"actor": func() (Digest, error) {
			return computeEntryDigest(genesisDigest, 1, ActionCollected, "off-8", "scene", "bagged", chainTestTime)
		},
		"location": func() (Digest, error) {
			return computeEntryDigest(genesisDigest, 1, ActionCollected, "off-7", "locker", "bagged", chainTestTime)
		},
		"notes": func() (Digest, error) {
			return computeEntryDigest(genesisDigest, 1, ActionCollected, "off-7", "scene", "sealed", chainTestTime)
		},
		"time": func() (Digest, error) {
			return computeEntryDigest(genesisDigest, 1, ActionCollected, "off-7", "scene", "bagged", chainTestTime.Add(time.Nanosecond))
		},
	}
	for name, compute := range variants {
		got, err := compute()
		if err != nil {
			t.Fatalf("%s variant: %v", name, err)
		}
		if got == base {
			t.Errorf("changing %s did not change the digest", name)
		}
	}
}

func TestValidateAction(t *testing.T) {
	for _, action := range []Action{
		ActionCollected, ActionSecured, ActionImaged, ActionUploaded,
		ActionAccessed, ActionTransferred, ActionVerified,
	} {
		if err := ValidateAction(action); err != nil {
			t.Errorf("ValidateAction(%q): %v", action, err)
		}
	}
	for _, action := range []Action{"", "stolen", "Collected", "uploaded "} {
		if err := ValidateAction(action); err == nil {
			t.Errorf("ValidateAction(%q) should fail", action)
		}
	}
}
